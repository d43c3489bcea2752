package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractPublicIDs(t *testing.T) {
	tests := []struct {
		name string
		html string
		want []string
	}{
		{
			name: "empty body",
			html: "",
			want: []string{},
		},
		{
			name: "plain text",
			html: "<p>hello</p>",
			want: []string{},
		},
		{
			name: "data attribute both quote styles",
			html: `<img data-public-id="uploads/2024/05/aaa"><img data-public-id='uploads/2024/05/bbb'>`,
			want: []string{"uploads/2024/05/aaa", "uploads/2024/05/bbb"},
		},
		{
			name: "attribute value kept verbatim",
			html: `<img data-public-id=" uploads/x "><img data-public-id="uploads/x">`,
			want: []string{" uploads/x ", "uploads/x"},
		},
		{
			name: "attribute name is case insensitive",
			html: `<IMG DATA-PUBLIC-ID="uploads/x">`,
			want: []string{"uploads/x"},
		},
		{
			name: "delivery url with transformations",
			html: `<img src="https://res.cloudinary.com/demo/image/upload/f_auto,q_auto/v1712345678/uploads/2024/05/abc.webp">`,
			want: []string{"uploads/2024/05/abc"},
		},
		{
			name: "query string and escaping",
			html: `<img src='https://res.cloudinary.com/demo/image/upload/v1/uploads/my%20pic.jpg?_a=BAMAAAB0'>`,
			want: []string{"uploads/my pic"},
		},
		{
			name: "url without version segment is ignored",
			html: `<img src="https://res.cloudinary.com/demo/image/upload/uploads/2024/05/abc.png">`,
			want: []string{},
		},
		{
			name: "other hosts are ignored",
			html: `<img src="https://example.com/image/upload/v1/uploads/a.png">`,
			want: []string{},
		},
		{
			name: "same asset referenced twice",
			html: `<img data-public-id="uploads/2024/05/abc" src="https://res.cloudinary.com/demo/image/upload/v99/uploads/2024/05/abc.png">`,
			want: []string{"uploads/2024/05/abc"},
		},
		{
			name: "only the final extension is removed",
			html: `<img src="https://res.cloudinary.com/demo/image/upload/v2/uploads/v1.2/pic.tar.gz">`,
			want: []string{"uploads/v1.2/pic.tar"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractPublicIDs(tt.html))
		})
	}
}
