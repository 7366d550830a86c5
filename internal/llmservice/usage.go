package llmservice

import "github.com/tmc/langchaingo/llms"

// generation info keys reported by langchaingo backends
var (
	inputTokenKeys  = []string{"InputTokens", "PromptTokens"}
	outputTokenKeys = []string{"OutputTokens", "CompletionTokens"}
)

// usageFromChoices reads token usage out of langchaingo generation info.
func usageFromChoices(choices []*llms.ContentChoice) (in, out int, ok bool) {
	for _, c := range choices {
		if c == nil || c.GenerationInfo == nil {
			continue
		}
		i, okIn := intFromInfo(c.GenerationInfo, inputTokenKeys)
		o, okOut := intFromInfo(c.GenerationInfo, outputTokenKeys)
		if okIn || okOut {
			return i, o, true
		}
	}
	return 0, 0, false
}

func intFromInfo(info map[string]any, keys []string) (int, bool) {
	for _, k := range keys {
		switch v := info[k].(type) {
		case int:
			return v, true
		case int32:
			return int(v), true
		case int64:
			return int(v), true
		case float64:
			return int(v), true
		}
	}
	return 0, false
}

// joinChoices concatenates the text of every choice.
func joinChoices(choices []*llms.ContentChoice) string {
	var text string
	for _, c := range choices {
		if c != nil {
			text += c.Content
		}
	}
	return text
}

// messageContent converts a request into langchaingo messages.
func messageContent(req Request) []llms.MessageContent {
	msgs := make([]llms.MessageContent, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeSystem, req.SystemPrompt))
	}
	for _, m := range req.Messages {
		parts := make([]llms.ContentPart, 0, len(m.Images)+1)
		for _, img := range m.Images {
			parts = append(parts, llms.BinaryPart(img.MediaType, img.Data))
		}
		if m.Text != "" {
			parts = append(parts, llms.TextContent{Text: m.Text})
		}
		msgs = append(msgs, llms.MessageContent{Role: llms.ChatMessageTypeHuman, Parts: parts})
	}
	return msgs
}
