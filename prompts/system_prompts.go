package prompts

import (
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

// SystemPrompts holds the chat templates used by the scoring service.
type SystemPrompts struct {
	Scoring prompt.ChatTemplate
}

func NewSystemPrompts() *SystemPrompts {
	return &SystemPrompts{Scoring: createScoringTemplate()}
}

// Template variables: {url} and {content}. Literal braces in the response
// shape are doubled for FString formatting.
func createScoringTemplate() prompt.ChatTemplate {
	return prompt.FromMessages(
		schema.FString,
		schema.UserMessage(`You are evaluating content using the RFC 2025 SICTP (Standardized Information Content Trust Protocol) scoring system.

URL: {url}

Content to evaluate:
{content}

Please evaluate this content and provide scores for:
1. Cw (Content Worth): 0-100 score indicating the value and quality of the content
2. Sd (Source Dependability): 0-100 score indicating the reliability and trustworthiness of the source
3. Dv (Diversity): 0-100 score indicating the diversity of perspectives and information sources

Respond in JSON format with the following structure:
{{
  "Cw": <number 0-100>,
  "Sd": <number 0-100>,
  "Dv": <number 0-100>,
  "reasoning": "<brief explanation of scores>"
}}`),
	)
}
