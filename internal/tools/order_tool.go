package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

type purchaseOrderArgs struct {
	ClientID      string  `json:"client_id"`
	ClientCode    string  `json:"client_code"`
	NSEMemberID   string  `json:"nse_member_id"`
	PCode         string  `json:"pcode"`
	SchemeName    string  `json:"scheme_name"`
	SchemeCodes   string  `json:"scheme_codes"`
	SchemeType    string  `json:"scheme_type"`
	TrType        string  `json:"tr_type"`
	Amount        float64 `json:"amount"`
	MinimumAmount float64 `json:"minimum_amount"`
	Folio         string  `json:"folio"`
}

// NewPurchaseOrderTool returns the order-placement tool
func NewPurchaseOrderTool(platform *PlatformClient) *Tool {
	return &Tool{
		Name:        "place_purchase_order",
		Kind:        KindTransactional,
		Description: "Place a purchase order for the given scheme and client.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"client_id":      map[string]interface{}{"type": "string"},
				"client_code":    map[string]interface{}{"type": "string"},
				"nse_member_id":  map[string]interface{}{"type": "string"},
				"pcode":          map[string]interface{}{"type": "string"},
				"scheme_name":    map[string]interface{}{"type": "string"},
				"scheme_codes":   map[string]interface{}{"type": "string"},
				"scheme_type":    map[string]interface{}{"type": "string"},
				"tr_type":        map[string]interface{}{"type": "string"},
				"amount":         map[string]interface{}{"type": "number"},
				"minimum_amount": map[string]interface{}{"type": "number"},
				"folio":          map[string]interface{}{"type": "string", "description": "Existing folio number, or \"New\""},
			},
			"required": []string{"client_id", "pcode", "scheme_name", "amount"},
		},
		Handler: func(ctx context.Context, turn *TurnContext, rawArgs string) (string, error) {
			var args purchaseOrderArgs
			if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
				return "", fmt.Errorf("invalid arguments: %w", err)
			}
			if args.ClientID == "" || args.PCode == "" {
				return "", fmt.Errorf("client_id and pcode are required")
			}
			if args.Amount <= 0 {
				return "", fmt.Errorf("amount must be positive")
			}
			if args.Folio == "" {
				args.Folio = "New"
			}

			body, err := platform.Post(ctx, "/orders/purchase", args)
			if err != nil {
				return "", err
			}
			return string(body), nil
		},
	}
}
