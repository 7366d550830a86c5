package models

// UnitKind is the type of an extracted content unit.
type UnitKind string

const (
	UnitText  UnitKind = "text"
	UnitImage UnitKind = "image"
)

// ChunkKind describes what a chunk carries.
type ChunkKind string

const (
	ChunkText  ChunkKind = "text"
	ChunkImage ChunkKind = "image"
	ChunkMixed ChunkKind = "mixed"
)

// ImagePayload is an encoded image pulled out of a document
type ImagePayload struct {
	Data      []byte `json:"data"`
	Format    string `json:"format"`
	MediaType string `json:"media_type"`
}

// ContentUnit is one atomic item produced by an extractor, in source order.
type ContentUnit struct {
	Position int           `json:"position"`
	Kind     UnitKind      `json:"kind"`
	Text     string        `json:"text,omitempty"`
	Image    *ImagePayload `json:"image,omitempty"`
}

// TextUnit builds a text content unit.
func TextUnit(position int, text string) ContentUnit {
	return ContentUnit{Position: position, Kind: UnitText, Text: text}
}

// ImageUnit builds an image content unit.
func ImageUnit(position int, img ImagePayload) ContentUnit {
	return ContentUnit{Position: position, Kind: UnitImage, Image: &img}
}

// Attachment is an image attached to a chunk. Data is base64 in JSON.
type Attachment struct {
	Position  int    `json:"position"`
	Data      []byte `json:"data"`
	Format    string `json:"format"`
	MediaType string `json:"media_type"`
}

// Chunk is a unit of work submitted to the LLM
type Chunk struct {
	Index           int          `json:"index"`
	Kind            ChunkKind    `json:"kind"`
	Text            string       `json:"text,omitempty"`
	Images          []Attachment `json:"images,omitempty"`
	EstimatedTokens int          `json:"estimated_tokens"`
	SourcePosition  int          `json:"source_position"`
	// rune length of the prefix of Text carried over from the previous chunk
	OverlapChars int `json:"overlap_chars"`
}

// HasText reports whether the chunk carries any text.
func (c Chunk) HasText() bool {
	return c.Text != ""
}
