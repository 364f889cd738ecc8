package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

type searchClientArgs struct {
	Name string `json:"name"`
}

// NewSearchClientTool returns the client-search tool
func NewSearchClientTool(platform *PlatformClient) *Tool {
	return &Tool{
		Name:        "search_client",
		Kind:        KindTransactional,
		Description: "Search clients by name and return the list of matching records.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"name": map[string]interface{}{
					"type":        "string",
					"description": "Client name to search for",
				},
			},
			"required": []string{"name"},
		},
		Handler: func(ctx context.Context, turn *TurnContext, rawArgs string) (string, error) {
			var args searchClientArgs
			if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
				return "", fmt.Errorf("invalid arguments: %w", err)
			}
			if strings.TrimSpace(args.Name) == "" {
				return "", fmt.Errorf("name is required")
			}

			body, err := platform.Get(ctx, "/clients/search", url.Values{"name": {args.Name}})
			if err != nil {
				return "", err
			}

			var result struct {
				Clients []map[string]interface{} `json:"clients"`
			}
			if err := json.Unmarshal(body, &result); err != nil {
				return "", fmt.Errorf("failed to parse client search response: %w", err)
			}

			if len(result.Clients) == 0 {
				payload := map[string]interface{}{
					"clients": []interface{}{},
					"count":   0,
					"note":    fmt.Sprintf("No clients found for %q.", args.Name),
				}
				out, _ := json.Marshal(payload)
				return string(out), nil
			}

			payload := map[string]interface{}{
				"clients": result.Clients,
				"count":   len(result.Clients),
			}
			out, _ := json.Marshal(payload)
			return string(out), nil
		},
	}
}

type listInvestmentsArgs struct {
	ClientID string `json:"client_id"`
}

// NewListInvestmentsTool returns the holdings-listing tool
func NewListInvestmentsTool(platform *PlatformClient) *Tool {
	return &Tool{
		Name:        "list_investments",
		Kind:        KindTransactional,
		Description: "List a client's fund holdings.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"client_id": map[string]interface{}{
					"type":        "string",
					"description": "Client identifier",
				},
			},
			"required": []string{"client_id"},
		},
		Handler: func(ctx context.Context, turn *TurnContext, rawArgs string) (string, error) {
			var args listInvestmentsArgs
			if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
				return "", fmt.Errorf("invalid arguments: %w", err)
			}
			if args.ClientID == "" {
				return "", fmt.Errorf("client_id is required")
			}

			body, err := platform.Get(ctx, "/investors/"+url.PathEscape(args.ClientID)+"/funds", nil)
			if err != nil {
				return "", err
			}

			var result struct {
				Funds []map[string]interface{} `json:"funds"`
			}
			if err := json.Unmarshal(body, &result); err != nil {
				return "", fmt.Errorf("failed to parse holdings response: %w", err)
			}

			payload := map[string]interface{}{
				"funds": result.Funds,
				"count": len(result.Funds),
			}
			out, _ := json.Marshal(payload)
			return string(out), nil
		},
	}
}

type schemeDetailsArgs struct {
	PCode string `json:"pcode"`
}

// NewSchemeDetailsTool returns the scheme-lookup tool
func NewSchemeDetailsTool(platform *PlatformClient) *Tool {
	return &Tool{
		Name:        "scheme_details",
		Kind:        KindTransactional,
		Description: "Get scheme details by product code (pcode).",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"pcode": map[string]interface{}{
					"type":        "string",
					"description": "Scheme product code",
				},
			},
			"required": []string{"pcode"},
		},
		Handler: func(ctx context.Context, turn *TurnContext, rawArgs string) (string, error) {
			var args schemeDetailsArgs
			if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
				return "", fmt.Errorf("invalid arguments: %w", err)
			}
			if args.PCode == "" {
				return "", fmt.Errorf("pcode is required")
			}

			body, err := platform.Get(ctx, "/schemes/"+url.PathEscape(args.PCode), nil)
			if err != nil {
				return "", err
			}
			return string(body), nil
		},
	}
}
