package utils

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name   string
		xff    string
		remote string
		want   string
	}{
		{name: "first forwarded entry", xff: "198.51.100.7, 10.0.0.1", remote: "10.0.0.2:4000", want: "198.51.100.7"},
		{name: "single forwarded entry", xff: " 198.51.100.8 ", remote: "10.0.0.2:4000", want: "198.51.100.8"},
		{name: "blank forwarded entry", xff: " ,10.0.0.1", remote: "192.0.2.1:5555", want: "192.0.2.1"},
		{name: "peer address", remote: "192.0.2.1:5555", want: "192.0.2.1"},
		{name: "peer without port", remote: "192.0.2.9", want: "192.0.2.9"},
		{name: "unknown", want: "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remote
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			assert.Equal(t, tt.want, ClientIP(r))
		})
	}
}
