package chunker

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"document-processor/internal/models"
)

var ErrInvalidOptions = errors.New("invalid chunk options")

// Options bound chunk size and overlap, both in characters (runes).
type Options struct {
	ChunkSize int `json:"chunk_size"`
	Overlap   int `json:"chunk_overlap"`
}

func (o Options) Validate() error {
	if o.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk size %d must be positive", ErrInvalidOptions, o.ChunkSize)
	}
	if o.Overlap < 0 || o.Overlap >= o.ChunkSize {
		return fmt.Errorf("%w: overlap %d must be in [0, %d)", ErrInvalidOptions, o.Overlap, o.ChunkSize)
	}
	return nil
}

// pending accumulates units for the chunk under construction.
type pending struct {
	parts      []string
	textRunes  int
	images     []models.Attachment
	startPos   int
	started    bool
	hasNew     bool // holds content beyond the carried overlap
	overlapLen int
}

func (p *pending) size() int {
	return p.textRunes + len(p.images)*models.ImageSizeWeight
}

func (p *pending) begin(position int) {
	if !p.started {
		p.startPos = position
		p.started = true
	}
}

func (p *pending) addText(text string) {
	if len(p.parts) > 0 {
		p.textRunes += utf8.RuneCountInString(models.TextSeparator)
	}
	p.parts = append(p.parts, text)
	p.textRunes += utf8.RuneCountInString(text)
	p.hasNew = true
}

// Build groups units into chunks of roughly opts.ChunkSize characters.
// A single text unit larger than the limit is never split and yields an
// oversized chunk. Empty text units are skipped.
func Build(units []models.ContentUnit, opts Options) ([]models.Chunk, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	var (
		chunks []models.Chunk
		cur    pending
	)

	for _, u := range units {
		switch u.Kind {
		case models.UnitText:
			if u.Text == "" {
				continue
			}
			added := utf8.RuneCountInString(u.Text)
			if len(cur.parts) > 0 {
				added += utf8.RuneCountInString(models.TextSeparator)
			}
			if cur.hasNew && cur.size()+added > opts.ChunkSize {
				closed := cur.close(len(chunks))
				chunks = append(chunks, closed)
				cur = seed(closed.Text, opts.Overlap, u.Position)
			}
			cur.begin(u.Position)
			cur.addText(u.Text)

		case models.UnitImage:
			if u.Image == nil {
				continue
			}
			cur.begin(u.Position)
			cur.images = append(cur.images, models.Attachment{
				Position:  u.Position,
				Data:      u.Image.Data,
				Format:    u.Image.Format,
				MediaType: u.Image.MediaType,
			})
			cur.hasNew = true
		}
	}

	if cur.hasNew {
		chunks = append(chunks, cur.close(len(chunks)))
	}
	return chunks, nil
}

// seed starts the next chunk with the trailing overlap of the closed text.
func seed(prevText string, overlap, position int) pending {
	next := pending{startPos: position, started: true}
	if tail := lastRunes(prevText, overlap); tail != "" {
		next.parts = []string{tail}
		next.textRunes = utf8.RuneCountInString(tail)
		next.overlapLen = next.textRunes
	}
	return next
}

func (p *pending) close(index int) models.Chunk {
	text := strings.Join(p.parts, models.TextSeparator)

	kind := models.ChunkText
	switch {
	case text != "" && len(p.images) > 0:
		kind = models.ChunkMixed
	case len(p.images) > 0:
		kind = models.ChunkImage
	}

	return models.Chunk{
		Index:           index,
		Kind:            kind,
		Text:            text,
		Images:          p.images,
		EstimatedTokens: EstimateTokens(text, len(p.images)),
		SourcePosition:  p.startPos,
		OverlapChars:    p.overlapLen,
	}
}

// EstimateTokens is the heuristic token count for a chunk body.
func EstimateTokens(text string, images int) int {
	return utf8.RuneCountInString(text)/models.CharsPerToken + images*models.TokensPerImage
}

// Reassemble strips carried overlap from each chunk and rebuilds the joined
// source text.
func Reassemble(chunks []models.Chunk) string {
	var b strings.Builder
	for _, c := range chunks {
		body := c.Text
		if c.OverlapChars > 0 {
			body = string([]rune(body)[c.OverlapChars:])
		} else if body != "" && b.Len() > 0 {
			b.WriteString(models.TextSeparator)
		}
		b.WriteString(body)
	}
	return b.String()
}

func lastRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}
