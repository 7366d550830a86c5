package parser

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rs/zerolog/log"
)

// extractPDF emits, per page, a page marker, the page text and the page images.
// Text comes from ledongthuc/pdf, images from pdfcpu. A PDF pdfcpu cannot
// read still yields its text.
func extractPDF(ctx context.Context, e *Extractor, path string, out *unitList) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf reader panic: %v", r)
		}
	}()

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return err
	}
	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		return err
	}

	imgCtx := openPDFImages(path)

	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		out.addText(marker("Page", i))

		page := reader.Page(i)
		if !page.V.IsNull() {
			pageText, err := page.GetPlainText(nil)
			if err != nil {
				return fmt.Errorf("page %d: %w", i, err)
			}
			out.addText(pageText)
		}

		if imgCtx != nil {
			e.addPDFImages(imgCtx, i, out)
		}
	}
	return nil
}

func openPDFImages(path string) (pdfCtx *model.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Str("file", path).Msgf("PDF images unavailable: %v", r)
			pdfCtx = nil
		}
	}()

	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	pdfCtx, err = api.ReadValidateAndOptimize(f, model.NewDefaultConfiguration())
	if err != nil {
		log.Warn().Err(err).Str("file", path).Msg("PDF images unavailable")
		return nil
	}
	return pdfCtx
}

func (e *Extractor) addPDFImages(pdfCtx *model.Context, pageNr int, out *unitList) {
	images, err := pdfcpu.ExtractPageImages(pdfCtx, pageNr, false)
	if err != nil {
		log.Warn().Err(err).Int("page", pageNr).Msg("Failed to extract page images")
		return
	}

	objNrs := make([]int, 0, len(images))
	for nr := range images {
		objNrs = append(objNrs, nr)
	}
	sort.Ints(objNrs)

	for _, nr := range objNrs {
		img := images[nr]
		data, err := io.ReadAll(img.Reader)
		if err != nil {
			log.Warn().Err(err).Int("page", pageNr).Int("obj", nr).Msg("Failed to read page image")
			continue
		}
		e.addRawImage(out, data, fmt.Sprintf("page %d obj %d (%s)", pageNr, nr, img.FileType))
	}
}
