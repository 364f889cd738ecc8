package services

import (
	"context"
	"strings"
	"testing"
)

// stubLLM returns a fixed completion and counts calls
type stubLLM struct {
	text  string
	calls int
}

func (s *stubLLM) Complete(ctx context.Context, apiKey string, req *CompletionRequest) (*Completion, error) {
	s.calls++
	return &Completion{Text: s.text}, nil
}

func (s *stubLLM) CompleteStream(ctx context.Context, apiKey string, req *CompletionRequest, onDelta func(string)) (string, error) {
	s.calls++
	onDelta(s.text)
	return s.text, nil
}

func TestSummarizer_ShortAnswerReturnsVerbatim(t *testing.T) {
	llm := &stubLLM{text: "should never be used"}
	sum := NewSummarizer(llm, "test-model", 100)

	answer := "The NAV of a mutual fund is its per-unit value."
	got, err := sum.Summarize(context.Background(), "key", answer)
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if got != answer {
		t.Errorf("Short answer should pass through verbatim, got %q", got)
	}
	if llm.calls != 0 {
		t.Errorf("Short answer should not call the model, got %d calls", llm.calls)
	}
}

func TestSummarizer_LongAnswerCallsModelOnce(t *testing.T) {
	llm := &stubLLM{text: "A condensed version of the answer."}
	sum := NewSummarizer(llm, "test-model", 100)

	long := strings.Repeat("word ", 130)
	if !sum.NeedsSummary(long) {
		t.Fatal("130-word answer should need a summary")
	}

	got, err := sum.Summarize(context.Background(), "key", long)
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if got != llm.text {
		t.Errorf("Expected the model's summary, got %q", got)
	}
	if llm.calls != 1 {
		t.Errorf("Expected exactly one model call, got %d", llm.calls)
	}
}

func TestSummarizer_BoundaryWordCount(t *testing.T) {
	llm := &stubLLM{text: "summary"}
	sum := NewSummarizer(llm, "test-model", 100)

	exactly := strings.TrimSpace(strings.Repeat("word ", 100))
	if sum.NeedsSummary(exactly) {
		t.Error("An answer of exactly the limit should not need a summary")
	}

	over := strings.TrimSpace(strings.Repeat("word ", 101))
	if !sum.NeedsSummary(over) {
		t.Error("An answer one word over the limit should need a summary")
	}
}

func TestWordCount(t *testing.T) {
	cases := []struct {
		text string
		want int
	}{
		{"", 0},
		{"   ", 0},
		{"one", 1},
		{"two words", 2},
		{"  padded   words \n here ", 3},
	}
	for _, tc := range cases {
		if got := WordCount(tc.text); got != tc.want {
			t.Errorf("WordCount(%q) = %d, want %d", tc.text, got, tc.want)
		}
	}
}
