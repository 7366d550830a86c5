package parser

import (
	"context"
	"os"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// extractText splits plain text into paragraphs on blank lines.
func extractText(_ context.Context, _ *Extractor, path string, out *unitList) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	for _, para := range splitParagraphs(string(data)) {
		out.addText(para)
	}
	return nil
}

func splitParagraphs(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	var out []string
	for _, p := range strings.Split(s, "\n\n") {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}

// extractMarkdown emits one unit per top-level markdown block, keeping the
// block's original source text.
func extractMarkdown(_ context.Context, _ *Extractor, path string, out *unitList) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	src := []byte(strings.ReplaceAll(string(data), "\r\n", "\n"))
	for _, block := range markdownBlocks(src) {
		out.addText(block)
	}
	return nil
}

func markdownBlocks(src []byte) []string {
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	var starts []int
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		if s, ok := blockStart(n, src); ok {
			if len(starts) == 0 || s > starts[len(starts)-1] {
				starts = append(starts, s)
			}
		}
	}
	if len(starts) == 0 {
		if b := strings.TrimSpace(string(src)); b != "" {
			return []string{b}
		}
		return nil
	}
	// content before the first located block belongs to it
	starts[0] = 0

	blocks := make([]string, 0, len(starts))
	for i, s := range starts {
		end := len(src)
		if i+1 < len(starts) {
			end = starts[i+1]
		}
		b := strings.TrimRight(strings.TrimLeft(string(src[s:end]), "\n"), " \t\n")
		if b != "" {
			blocks = append(blocks, b)
		}
	}
	return blocks
}

// blockStart finds the offset of the first source line of a top-level block.
func blockStart(n ast.Node, src []byte) (int, bool) {
	if fc, ok := n.(*ast.FencedCodeBlock); ok {
		if fc.Info != nil {
			return lineStart(src, fc.Info.Segment.Start), true
		}
		if fc.Lines().Len() > 0 {
			first := lineStart(src, fc.Lines().At(0).Start)
			return lineStart(src, max(0, first-1)), true
		}
		return 0, false
	}

	start, found := len(src), false
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || c.Type() != ast.TypeBlock {
			return ast.WalkContinue, nil
		}
		lines := c.Lines()
		if lines != nil && lines.Len() > 0 {
			if s := lines.At(0).Start; s < start {
				start, found = s, true
			}
		}
		return ast.WalkContinue, nil
	})
	if !found {
		return 0, false
	}
	return lineStart(src, start), true
}

func lineStart(src []byte, off int) int {
	off = min(off, len(src))
	for off > 0 && src[off-1] != '\n' {
		off--
	}
	return off
}
