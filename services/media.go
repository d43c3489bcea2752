package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "golang.org/x/image/webp"

	"github.com/creeps/board/config"
)

// ErrUnsupportedImage is returned for bytes that are not an accepted image format.
var ErrUnsupportedImage = errors.New("unsupported image format")

var allowedFormats = map[string]struct{}{
	"jpeg": {},
	"png":  {},
	"gif":  {},
	"webp": {},
}

// UploadResult is what the media host confirmed after an upload.
type UploadResult struct {
	URL      string `json:"url"`
	PublicID string `json:"public_id"`
}

// MediaStore is the remote image host.
type MediaStore interface {
	MediaDeleter
	Upload(ctx context.Context, data []byte, publicID string) (*UploadResult, error)
}

// NewMediaStore builds the configured media host.
func NewMediaStore(cfg config.AppConfig) (MediaStore, error) {
	switch strings.ToLower(cfg.MediaProvider) {
	case "cloudinary":
		return NewCloudinaryStore(cfg)
	case "minio":
		return NewMinioStore(cfg)
	default:
		return nil, fmt.Errorf("unknown media provider %q", cfg.MediaProvider)
	}
}

// DetectImageFormat decodes only the image header and returns its format name.
func DetectImageFormat(data []byte) (string, error) {
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", ErrUnsupportedImage
	}
	if _, ok := allowedFormats[format]; !ok {
		return "", ErrUnsupportedImage
	}
	return format, nil
}

// NewPublicID returns uploads/YYYY/MM/<32 hex chars>.
func NewPublicID(now time.Time) string {
	return fmt.Sprintf("uploads/%04d/%02d/%s", now.Year(), int(now.Month()), strings.ReplaceAll(uuid.NewString(), "-", ""))
}
