// Package imaging validates submitted images and produces the small
// thumbnail stored (encrypted) next to each enrollment.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	// MaxImageBytes caps the accepted upload size (8 MiB).
	MaxImageBytes = 8 << 20

	// MaxImageDim caps accepted pixel dimensions per side.
	MaxImageDim = 8192

	// MinImageDim rejects images too small to contain a usable face.
	MinImageDim = 64

	// thumbnailSize is the long-edge size of stored thumbnails.
	thumbnailSize = 96

	// thumbnailQuality is the JPEG quality of stored thumbnails.
	thumbnailQuality = 80
)

// ErrInvalidImage reports an undecodable or out-of-bounds image. No side
// effects have happened when it is returned.
var ErrInvalidImage = errors.New("invalid image")

// Decode parses and validates an uploaded image. JPEG, PNG, and WebP are
// accepted.
func Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty data", ErrInvalidImage)
	}
	if len(data) > MaxImageBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds limit", ErrInvalidImage, len(data))
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	b := img.Bounds()
	if b.Dx() > MaxImageDim || b.Dy() > MaxImageDim {
		return nil, fmt.Errorf("%w: %dx%d exceeds maximum dimensions", ErrInvalidImage, b.Dx(), b.Dy())
	}
	if b.Dx() < MinImageDim || b.Dy() < MinImageDim {
		return nil, fmt.Errorf("%w: %dx%d below minimum dimensions", ErrInvalidImage, b.Dx(), b.Dy())
	}

	return img, nil
}

// Thumbnail scales the image down to thumbnailSize on its long edge and
// encodes it as JPEG.
func Thumbnail(img image.Image) ([]byte, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w > h {
		h = h * thumbnailSize / w
		w = thumbnailSize
	} else {
		w = w * thumbnailSize / h
		h = thumbnailSize
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, xdraw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: thumbnailQuality}); err != nil {
		return nil, fmt.Errorf("encoding thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}
