package parser

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"os"
	"strings"

	"document-processor/internal/models"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const DefaultMaxImageSize = 2048

type ImageOptions struct {
	// Optimize downsizes images larger than MaxSize on either side and re-encodes them as PNG.
	Optimize bool
	MaxSize  int
}

// media types LLM APIs accept as-is
var webMediaTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/webp": true,
}

// PrepareImage sniffs data and returns a payload an LLM API accepts.
// Formats other than PNG/JPEG/GIF/WebP are converted to PNG.
func PrepareImage(data []byte, opts ImageOptions) (models.ImagePayload, error) {
	mt := mimetype.Detect(data)
	mediaType := mt.String()
	if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		mediaType = mediaType[:i]
	}

	if webMediaTypes[mediaType] && !opts.Optimize {
		return models.ImagePayload{
			Data:      data,
			Format:    strings.TrimPrefix(mediaType, "image/"),
			MediaType: mediaType,
		}, nil
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return models.ImagePayload{}, fmt.Errorf("decode %s image: %w", mediaType, err)
	}

	if opts.Optimize {
		maxSize := opts.MaxSize
		if maxSize <= 0 {
			maxSize = DefaultMaxImageSize
		}
		resized, changed := fitWithin(src, maxSize)
		if !changed && webMediaTypes[mediaType] {
			return models.ImagePayload{
				Data:      data,
				Format:    strings.TrimPrefix(mediaType, "image/"),
				MediaType: mediaType,
			}, nil
		}
		src = resized
	}

	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, src); err != nil {
		return models.ImagePayload{}, fmt.Errorf("encode png: %w", err)
	}
	return models.ImagePayload{
		Data:      buf.Bytes(),
		Format:    models.DefaultImageFormat,
		MediaType: models.DefaultMediaType,
	}, nil
}

// fitWithin scales img down, keeping its aspect ratio, so neither side exceeds maxSize.
func fitWithin(img image.Image, maxSize int) (image.Image, bool) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxSize && h <= maxSize {
		return img, false
	}

	nw, nh := maxSize, maxSize
	if w >= h {
		nh = max(1, h*maxSize/w)
	} else {
		nw = max(1, w*maxSize/h)
	}

	dst := image.NewNRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst, true
}

// extractImage reads a standalone image file as a single image unit.
func extractImage(_ context.Context, e *Extractor, path string, out *unitList) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	img, err := PrepareImage(data, e.images)
	if err != nil {
		return err
	}
	out.addImage(img)
	return nil
}
