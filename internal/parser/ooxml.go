package parser

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"strings"
)

// ooxmlPackage gives name-based access to the parts of a docx/pptx archive.
type ooxmlPackage struct {
	rc    *zip.ReadCloser
	parts map[string]*zip.File
}

func openPackage(filePath string) (*ooxmlPackage, error) {
	rc, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}
	p := &ooxmlPackage{rc: rc, parts: make(map[string]*zip.File, len(rc.File))}
	for _, f := range rc.File {
		p.parts[f.Name] = f
	}
	return p, nil
}

func (p *ooxmlPackage) Close() error {
	return p.rc.Close()
}

func (p *ooxmlPackage) has(name string) bool {
	_, ok := p.parts[name]
	return ok
}

func (p *ooxmlPackage) read(name string) ([]byte, error) {
	f, ok := p.parts[name]
	if !ok {
		return nil, fmt.Errorf("part %s not found", name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

type relationships struct {
	Items []struct {
		ID         string `xml:"Id,attr"`
		Target     string `xml:"Target,attr"`
		TargetMode string `xml:"TargetMode,attr"`
	} `xml:"Relationship"`
}

// rels maps relationship ids of part to absolute part names. A part without
// a relationships file yields an empty map.
func (p *ooxmlPackage) rels(part string) (map[string]string, error) {
	relsName := path.Join(path.Dir(part), "_rels", path.Base(part)+".rels")
	out := map[string]string{}
	if !p.has(relsName) {
		return out, nil
	}

	data, err := p.read(relsName)
	if err != nil {
		return nil, err
	}
	var r relationships
	if err := xml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse %s: %w", relsName, err)
	}
	for _, rel := range r.Items {
		if rel.TargetMode == "External" {
			continue
		}
		target := rel.Target
		if strings.HasPrefix(target, "/") {
			target = strings.TrimPrefix(target, "/")
		} else {
			target = path.Join(path.Dir(part), target)
		}
		out[rel.ID] = target
	}
	return out, nil
}

// attr returns the value of the attribute with the given local name.
func attr(se xml.StartElement, local string) string {
	for _, a := range se.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}
