package parser

import (
	"context"
	"encoding/xml"
	"errors"
	"io"
	"strings"

	"github.com/nguyenthenguyen/docx"
)

const docxBody = "word/document.xml"

// extractDOCX walks the document body in order: paragraphs become text units,
// tables become one text unit each (cells joined by " | "), and embedded
// pictures become image units where they appear.
func extractDOCX(ctx context.Context, e *Extractor, path string, out *unitList) error {
	r, err := docx.ReadDocxFile(path)
	if err != nil {
		return err
	}
	body := r.Editable().GetContent()
	r.Close()

	pkg, err := openPackage(path)
	if err != nil {
		return err
	}
	defer pkg.Close()

	rels, err := pkg.rels(docxBody)
	if err != nil {
		return err
	}

	w := docxWalker{e: e, pkg: pkg, rels: rels, out: out}
	return w.walk(ctx, strings.NewReader(body))
}

type docxWalker struct {
	e    *Extractor
	pkg  *ooxmlPackage
	rels map[string]string
	out  *unitList

	para     strings.Builder
	inText   bool
	tblDepth int
	cell     []string
	row      []string
	rows     []string
}

func (w *docxWalker) walk(ctx context.Context, r io.Reader) error {
	dec := xml.NewDecoder(r)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			w.start(t)
		case xml.EndElement:
			w.end(t)
		case xml.CharData:
			if w.inText {
				w.para.Write(t)
			}
		}
	}
}

func (w *docxWalker) start(t xml.StartElement) {
	switch t.Name.Local {
	case "p":
		w.para.Reset()
	case "t":
		w.inText = true
	case "tab":
		w.para.WriteByte('\t')
	case "br", "cr":
		w.para.WriteByte('\n')
	case "tbl":
		w.tblDepth++
		if w.tblDepth == 1 {
			w.rows = nil
		}
	case "tr":
		w.row = nil
	case "tc":
		w.cell = nil
	case "blip":
		if id := attr(t, "embed"); id != "" {
			w.image(id)
		}
	}
}

func (w *docxWalker) end(t xml.EndElement) {
	switch t.Name.Local {
	case "t":
		w.inText = false
	case "p":
		text := strings.TrimSpace(w.para.String())
		w.para.Reset()
		if w.tblDepth > 0 {
			if text != "" {
				w.cell = append(w.cell, text)
			}
			return
		}
		w.out.addText(text)
	case "tc":
		w.row = append(w.row, strings.Join(w.cell, " "))
	case "tr":
		w.rows = append(w.rows, strings.Join(w.row, " | "))
	case "tbl":
		w.tblDepth--
		if w.tblDepth == 0 && len(w.rows) > 0 {
			w.out.addText("[Table]\n" + strings.Join(w.rows, "\n"))
			w.rows = nil
		}
	}
}

func (w *docxWalker) image(relID string) {
	part, ok := w.rels[relID]
	if !ok {
		return
	}
	data, err := w.pkg.read(part)
	if err != nil {
		return
	}
	// text written so far in this paragraph precedes the picture
	if w.tblDepth == 0 {
		if text := strings.TrimSpace(w.para.String()); text != "" {
			w.out.addText(text)
			w.para.Reset()
		}
	}
	w.e.addRawImage(w.out, data, part)
}
