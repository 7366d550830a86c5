package models

const (
	TextSeparator    = "\n\n"
	ChunkPlaceholder = "{chunk_text}"
	ThinkTag         = `(?s)<think>.*?</think>`

	// size pressure of one image, in characters
	ImageSizeWeight = 3000
	// token heuristics
	CharsPerToken  = 2
	TokensPerImage = 1500

	DefaultImageFormat = "png"
	DefaultMediaType   = "image/png"
)

var (
	DefaultSystemPrompt = "You are an expert document analyst."

	DefaultPromptTemplate = `Analyze the following content:

{chunk_text}`

	DefaultImagePrompt = "Please analyze the attached image(s)."

	AnswerPromptTemplate = `<results>
%s
</results>
Here is a question about the document these results were produced from
<question>
%s
</question>
Answer the question using only the results above. If they do not contain the answer, say so.
`
)
