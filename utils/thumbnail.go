package utils

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"veritas-client/llm"
)

// ErrNoThumbnail is returned for media that has no visual preview
var ErrNoThumbnail = errors.New("no thumbnail for media type")

// ImageThumbnailer renders small JPEG previews of image content as data URLs
type ImageThumbnailer struct {
	maxPixels uint
	quality   int
}

// NewImageThumbnailer creates a thumbnailer bounding both sides to maxPixels
func NewImageThumbnailer(maxPixels uint) *ImageThumbnailer {
	if maxPixels == 0 {
		maxPixels = 160
	}
	return &ImageThumbnailer{maxPixels: maxPixels, quality: 75}
}

// Thumbnail returns a data URL preview of media. Decoding is not interruptible,
// so ctx is only checked before and after the work.
func (t *ImageThumbnailer) Thumbnail(ctx context.Context, media *llm.Media) (string, error) {
	if media == nil || (llm.Content{Media: media}).Type() != llm.ContentImage {
		return "", ErrNoThumbnail
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	img, _, err := image.Decode(bytes.NewReader(media.Data))
	if err != nil {
		return "", fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	if uint(bounds.Dx()) > t.maxPixels || uint(bounds.Dy()) > t.maxPixels {
		img = resize.Thumbnail(t.maxPixels, t.maxPixels, img, resize.Lanczos3)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: t.quality}); err != nil {
		return "", fmt.Errorf("failed to encode image: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
