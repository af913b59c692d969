package llm

import (
	"fmt"

	"github.com/tmc/langchaingo/llms"

	"github.com/skyroast/skyroast/pkg/models"
)

// systemPrompt defines the assistant persona, the hard output-length limit,
// and the no-emoji rule.
const systemPrompt = `You are a playful and toxic AI junior Web developer girl.
I am giving you some tech-related Twitter or blogs, try to comment in a toxic but friendly way. 
Control the length within 50 words.
Don't use emojis in your comment.`

// BuildPrompt assembles the system turn and the multi-part user turn for a
// post's extracted content: the text echo first, then the image-count
// announcement and one image part per URL in original order. When the content
// carries neither, a placeholder text part is substituted so the user turn is
// never empty.
func BuildPrompt(content *models.PostContent) []llms.MessageContent {
	var parts []llms.ContentPart

	if content.Text != "" {
		parts = append(parts, llms.TextPart("Here is the content: "+content.Text))
	}

	if len(content.ImageURL) > 0 {
		plural := ""
		if len(content.ImageURL) > 1 {
			plural = "s"
		}
		parts = append(parts, llms.TextPart(fmt.Sprintf(
			"The post also includes %d image%s. Review them before crafting your toxic reply.",
			len(content.ImageURL), plural)))
		for _, u := range content.ImageURL {
			parts = append(parts, llms.ImageURLPart(u))
		}
	}

	if len(parts) == 0 {
		parts = append(parts, llms.TextPart("No textual content or images could be extracted from this post."))
	}

	return []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		{Role: llms.ChatMessageTypeHuman, Parts: parts},
	}
}
