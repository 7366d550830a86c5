package parser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"document-processor/internal/models"

	"github.com/rs/zerolog/log"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrExtractionFailed  = errors.New("content extraction failed")
)

// Parser turns a document into ordered content units.
type Parser interface {
	Extract(ctx context.Context, path string) ([]models.ContentUnit, error)
}

type extractFunc func(ctx context.Context, e *Extractor, path string, out *unitList) error

var extractors = map[string]extractFunc{
	".pdf":      extractPDF,
	".docx":     extractDOCX,
	".pptx":     extractPPTX,
	".xlsx":     extractXLSX,
	".xlsm":     extractWorkbook,
	".xltx":     extractWorkbook,
	".txt":      extractText,
	".text":     extractText,
	".md":       extractMarkdown,
	".markdown": extractMarkdown,
	".png":      extractImage,
	".jpg":      extractImage,
	".jpeg":     extractImage,
	".gif":      extractImage,
	".webp":     extractImage,
	".bmp":      extractImage,
	".tif":      extractImage,
	".tiff":     extractImage,
}

// SupportedExtensions lists the file extensions Extract accepts.
func SupportedExtensions() []string {
	exts := make([]string, 0, len(extractors))
	for ext := range extractors {
		exts = append(exts, ext)
	}
	slices.Sort(exts)
	return exts
}

// Supported reports whether path has an extension Extract can read.
func Supported(path string) bool {
	_, ok := extractors[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Extractor dispatches on the file extension.
type Extractor struct {
	images ImageOptions
}

func New(images ImageOptions) *Extractor {
	if images.MaxSize <= 0 {
		images.MaxSize = DefaultMaxImageSize
	}
	return &Extractor{images: images}
}

func (e *Extractor) Extract(ctx context.Context, path string) ([]models.ContentUnit, error) {
	ext := strings.ToLower(filepath.Ext(path))
	fn, ok := extractors[ext]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	var out unitList
	if err := fn(ctx, e, path, &out); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrExtractionFailed, filepath.Base(path), err)
	}

	log.Info().
		Str("file", filepath.Base(path)).
		Int("text_units", out.texts).
		Int("image_units", out.images).
		Msg("Extraction complete")
	return out.units, nil
}

// unitList assigns monotonic positions as units are appended.
type unitList struct {
	units  []models.ContentUnit
	texts  int
	images int
}

func (l *unitList) addText(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	l.units = append(l.units, models.TextUnit(len(l.units), text))
	l.texts++
}

func (l *unitList) addImage(img models.ImagePayload) {
	l.units = append(l.units, models.ImageUnit(len(l.units), img))
	l.images++
}

// addRawImage prepares data and appends it. Undecodable images are skipped.
func (e *Extractor) addRawImage(out *unitList, data []byte, source string) {
	img, err := PrepareImage(data, e.images)
	if err != nil {
		log.Warn().Err(err).Str("image", source).Msg("Skipping image")
		return
	}
	out.addImage(img)
}

func marker(kind string, n int) string {
	return fmt.Sprintf("--- %s %d ---", kind, n)
}
