package services

import (
	"context"
	"fmt"
	"log"
	"strings"
)

const summarizerSystemPrompt = `You are an EXTRACTIVE summarizer.

STRICT RULES:
1) If the reply is %d words or fewer: return it EXACTLY as-is (verbatim). Do not change wording, casing, punctuation, or order.
2) If it is longer: produce a summary of at most %d words using ONLY text copied from the original reply. You may delete sentences or phrases, but you may not invent, rephrase, or add pleasantries.
3) Never add any new sentence not present in the original. Do NOT address the user or change the speaker's identity.
4) If the reply includes structured data (client codes, IDs, JSON, lists, tables): copy that DATA verbatim and only trim surrounding prose. Do NOT truncate, mask, or summarize the data itself.
5) If the reply appears cut off, complete only the current sentence so it becomes grammatically complete - do not add new information.

Output: plain text only, no meta commentary.`

// Summarizer condenses long answers without adding content. Answers at or
// below the word limit bypass the model entirely and come back verbatim.
type Summarizer struct {
	llm       LLMClient
	model     string
	wordLimit int
}

// NewSummarizer creates a summarizer with the given word limit
func NewSummarizer(llm LLMClient, model string, wordLimit int) *Summarizer {
	if wordLimit <= 0 {
		wordLimit = 100
	}
	return &Summarizer{llm: llm, model: model, wordLimit: wordLimit}
}

// WordCount counts whitespace-separated words
func WordCount(text string) int {
	return len(strings.Fields(text))
}

// NeedsSummary reports whether the answer exceeds the word limit
func (s *Summarizer) NeedsSummary(answer string) bool {
	return WordCount(answer) > s.wordLimit
}

// Summarize returns the answer unchanged when it fits the limit, otherwise
// asks the summary model for an extractive condensation.
func (s *Summarizer) Summarize(ctx context.Context, apiKey, answer string) (string, error) {
	if !s.NeedsSummary(answer) {
		return answer, nil
	}

	req := &CompletionRequest{
		Model: s.model,
		Messages: []map[string]interface{}{
			{"role": "system", "content": fmt.Sprintf(summarizerSystemPrompt, s.wordLimit, s.wordLimit)},
			{"role": "user", "content": strings.TrimSpace(answer)},
		},
		Temperature: 0,
	}

	completion, err := s.llm.Complete(ctx, apiKey, req)
	if err != nil {
		return "", fmt.Errorf("summarization failed: %w", err)
	}

	summary := strings.TrimSpace(completion.Text)
	if summary == "" {
		return "", fmt.Errorf("summarization returned empty text")
	}

	log.Printf("✂️  [SUMMARIZER] Condensed %d words to %d", WordCount(answer), WordCount(summary))
	return summary, nil
}
