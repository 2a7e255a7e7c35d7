package content

import (
	"strings"

	"github.com/soypete/pedropost/pkg/ideas"
)

const systemPrompt = "You are an assistant that prepares engaging social media posts and illustration prompts " +
	"for an automated social media account."

// buildUserPrompt asks for a JSON object with the post copy and an image prompt.
func buildUserPrompt(idea ideas.Idea) string {
	var b strings.Builder
	b.WriteString("Using the following idea, craft an engaging post and a concise image generation prompt. ")
	b.WriteString("Respond strictly as JSON with the keys 'post_text' and 'image_prompt'.\n\n")
	b.WriteString(idea.PromptFragment())
	b.WriteString("\n")
	b.WriteString("Post requirements:\n")
	b.WriteString("- Maximum of 250 characters.\n")
	b.WriteString("- Include relevant hashtags.\n")
	b.WriteString("- Be friendly and inspirational.\n\n")
	b.WriteString("Image prompt requirements:\n")
	b.WriteString("- Be vivid, visually descriptive, and mention the desired artistic style.\n")
	b.WriteString("- Avoid referencing text or typography.\n")
	return b.String()
}
