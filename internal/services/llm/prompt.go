package llm

import (
	"fmt"
	"strings"

	"quill/internal/knowledge"
)

const analysisSystemPrompt = `You are an editorial analyst. Given source material, respond with JSON only:
{
  "summary": "two to three sentence summary",
  "key_topics": ["topic", ...],
  "suggested_title": "publishable article title",
  "estimated_article_length": 1200,
  "difficulty_level": "beginner|intermediate|advanced",
  "target_audience": "who should read this",
  "recommended_structure": ["section heading", ...]
}
No prose outside the JSON object.`

const generationSystemPrompt = `You are a technical writer. Write a complete Markdown article from the supplied source material and analysis. Respond with JSON only:
{
  "title": "final article title",
  "emoji": "single emoji for the article",
  "type": "tech|idea|personal",
  "topics": ["topic", ...],
  "published": true,
  "content": "full Markdown body without front matter",
  "metadata": {
    "estimated_reading_time": 5,
    "word_count": 1000,
    "difficulty": "beginner|intermediate|advanced"
  }
}
No prose outside the JSON object.`

func analysisUserPrompt(title, content string) string {
	var b strings.Builder
	if title = strings.TrimSpace(title); title != "" {
		fmt.Fprintf(&b, "Title: %s\n\n", title)
	}
	b.WriteString("Source material:\n")
	b.WriteString(strings.TrimSpace(content))
	return b.String()
}

func generationUserPrompt(item *knowledge.Item, analysis *knowledge.ContentAnalysis, opts GenerateOptions) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Suggested title: %s\n", analysis.SuggestedTitle)
	if analysis.TargetAudience != "" {
		fmt.Fprintf(&b, "Target audience: %s\n", analysis.TargetAudience)
	}
	if analysis.DifficultyLevel != "" {
		fmt.Fprintf(&b, "Difficulty: %s\n", analysis.DifficultyLevel)
	}
	if len(analysis.RecommendedStructure) > 0 {
		fmt.Fprintf(&b, "Recommended structure: %s\n", strings.Join(analysis.RecommendedStructure, "; "))
	}
	if opts.Category != "" {
		fmt.Fprintf(&b, "Category: %s\n", opts.Category)
	}
	if len(opts.Tags) > 0 {
		fmt.Fprintf(&b, "Tags: %s\n", strings.Join(opts.Tags, ", "))
	}
	b.WriteString("\nSource material:\n")
	b.WriteString(strings.TrimSpace(item.Content))
	return b.String()
}
