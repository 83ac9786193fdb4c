package ai

// Item summary prompts
const (
	SummarySystemPrompt = `You write short teasers for links shared in a community chat channel.

Rules:
- One or two sentences, at most 200 characters
- Plain text, no markdown, no hashtags, no emojis
- Describe what the reader will get from the content
- Never invent facts that are not in the provided fields`

	SummaryUserPrompt = `Summarize this %s item.

Title: %s
Author: %s
URL: %s
Details: %s`
)
