package processor

import (
	"strings"

	"document-processor/internal/llmservice"
	"document-processor/internal/models"
)

// RenderPrompt puts the chunk text into template. Without a placeholder the
// text is appended after a blank line. Image-only chunks get the image prompt.
func RenderPrompt(template string, chunk models.Chunk) string {
	if !chunk.HasText() {
		return models.DefaultImagePrompt
	}
	if template == "" {
		template = models.DefaultPromptTemplate
	}
	if strings.Contains(template, models.ChunkPlaceholder) {
		return strings.ReplaceAll(template, models.ChunkPlaceholder, chunk.Text)
	}
	return template + models.TextSeparator + chunk.Text
}

// chunkMessage builds the single user message sent for a chunk.
func chunkMessage(template string, chunk models.Chunk) llmservice.Message {
	msg := llmservice.Message{Text: RenderPrompt(template, chunk)}
	for _, img := range chunk.Images {
		mediaType := img.MediaType
		if mediaType == "" {
			mediaType = models.DefaultMediaType
		}
		msg.Images = append(msg.Images, llmservice.Image{Data: img.Data, MediaType: mediaType})
	}
	return msg
}
