package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"fundpilot/internal/retrieval"
)

type knowledgeLookupArgs struct {
	Question string `json:"question"`
}

// NewKnowledgeLookupTool returns the retrieval tool: it answers general and
// explanatory questions by pulling passages from the organization's index.
func NewKnowledgeLookupTool(retriever retrieval.Retriever) *Tool {
	return &Tool{
		Name:        "knowledge_lookup",
		Kind:        KindRetrieval,
		Description: "Answer general or explanatory (non-transaction) questions from the organization's knowledge base.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"question": map[string]interface{}{
					"type":        "string",
					"description": "The question to look up",
				},
			},
			"required": []string{"question"},
		},
		Handler: func(ctx context.Context, turn *TurnContext, rawArgs string) (string, error) {
			var args knowledgeLookupArgs
			if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
				return "", fmt.Errorf("invalid arguments: %w", err)
			}
			if strings.TrimSpace(args.Question) == "" {
				return "", fmt.Errorf("question is required")
			}

			passages, err := retriever.Retrieve(ctx, turn.OrgID, args.Question)
			if err != nil {
				return "", err
			}
			if len(passages) == 0 {
				return "No relevant information found in the knowledge base.", nil
			}
			return strings.Join(passages, "\n"), nil
		},
	}
}
