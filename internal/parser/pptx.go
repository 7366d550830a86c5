package parser

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"io"
	"sort"
	"strconv"
	"strings"
)

// extractPPTX emits, per slide in order, a slide marker, one text unit per
// shape and one image unit per picture.
func extractPPTX(ctx context.Context, e *Extractor, path string, out *unitList) error {
	pkg, err := openPackage(path)
	if err != nil {
		return err
	}
	defer pkg.Close()

	slides := slideParts(pkg)
	for i, slide := range slides {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := pkg.read(slide)
		if err != nil {
			return err
		}
		rels, err := pkg.rels(slide)
		if err != nil {
			return err
		}

		out.addText(marker("Slide", i+1))
		if err := walkSlide(e, pkg, rels, data, out); err != nil {
			return err
		}
	}
	return nil
}

// slideParts returns ppt/slides/slideN.xml names ordered by N.
func slideParts(pkg *ooxmlPackage) []string {
	type slide struct {
		name string
		n    int
	}
	var slides []slide
	for name := range pkg.parts {
		if !strings.HasPrefix(name, "ppt/slides/slide") || !strings.HasSuffix(name, ".xml") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, "ppt/slides/slide"), ".xml"))
		if err != nil {
			continue
		}
		slides = append(slides, slide{name: name, n: n})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].n < slides[j].n })

	names := make([]string, len(slides))
	for i, s := range slides {
		names[i] = s.name
	}
	return names
}

func walkSlide(e *Extractor, pkg *ooxmlPackage, rels map[string]string, data []byte, out *unitList) error {
	dec := xml.NewDecoder(bytes.NewReader(data))

	var (
		shape   strings.Builder
		spDepth int
		inText  bool
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "sp":
				if spDepth == 0 {
					shape.Reset()
				}
				spDepth++
			case "t":
				inText = true
			case "br":
				shape.WriteByte('\n')
			case "blip":
				if part, ok := rels[attr(t, "embed")]; ok {
					if img, err := pkg.read(part); err == nil {
						e.addRawImage(out, img, part)
					}
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if spDepth > 0 && shape.Len() > 0 {
					shape.WriteByte('\n')
				}
			case "sp":
				spDepth--
				if spDepth == 0 {
					out.addText(strings.TrimSpace(shape.String()))
				}
			}
		case xml.CharData:
			if inText && spDepth > 0 {
				shape.Write(t)
			}
		}
	}
}
