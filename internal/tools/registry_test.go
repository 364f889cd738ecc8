package tools

import (
	"context"
	"strings"
	"testing"
)

func echoTool(name string, kind Kind) *Tool {
	return &Tool{
		Name:        name,
		Kind:        kind,
		Description: "test tool",
		Parameters:  map[string]interface{}{"type": "object"},
		Handler: func(ctx context.Context, turn *TurnContext, rawArgs string) (string, error) {
			return "ran " + name, nil
		},
	}
}

func TestRegistry_RegisterAndDispatch(t *testing.T) {
	registry := NewRegistry()

	if err := registry.Register(echoTool("lookup", KindRetrieval)); err != nil {
		t.Fatalf("Failed to register tool: %v", err)
	}

	result, kind, err := registry.Dispatch(context.Background(), &TurnContext{SessionID: "s1"}, "lookup", "{}")
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if result != "ran lookup" {
		t.Errorf("Unexpected result: %q", result)
	}
	if kind != KindRetrieval {
		t.Errorf("Expected retrieval kind, got %q", kind)
	}
}

func TestRegistry_UnknownToolRejected(t *testing.T) {
	registry := NewRegistry()

	_, _, err := registry.Dispatch(context.Background(), &TurnContext{}, "nope", "{}")
	if err == nil || !strings.Contains(err.Error(), "unknown tool") {
		t.Errorf("Expected unknown tool error, got %v", err)
	}
}

func TestRegistry_DuplicateNameRejected(t *testing.T) {
	registry := NewRegistry()

	if err := registry.Register(echoTool("dup", KindRetrieval)); err != nil {
		t.Fatalf("Failed to register tool: %v", err)
	}
	if err := registry.Register(echoTool("dup", KindTransactional)); err == nil {
		t.Error("Duplicate registration should fail")
	}
	if registry.Count() != 1 {
		t.Errorf("Expected 1 tool, got %d", registry.Count())
	}
}

func TestRegistry_InvalidToolsRejected(t *testing.T) {
	registry := NewRegistry()

	if err := registry.Register(&Tool{Kind: KindRetrieval, Handler: echoTool("x", KindRetrieval).Handler}); err == nil {
		t.Error("Nameless tool should be rejected")
	}
	if err := registry.Register(&Tool{Name: "no-handler", Kind: KindRetrieval}); err == nil {
		t.Error("Handlerless tool should be rejected")
	}
	if err := registry.Register(&Tool{Name: "bad-kind", Kind: "other", Handler: echoTool("x", KindRetrieval).Handler}); err == nil {
		t.Error("Unknown kind should be rejected")
	}
}

func TestRegistry_SpecsKeepRegistrationOrder(t *testing.T) {
	registry := NewRegistry()

	names := []string{"alpha", "beta", "gamma"}
	for _, name := range names {
		if err := registry.Register(echoTool(name, KindRetrieval)); err != nil {
			t.Fatalf("Failed to register %s: %v", name, err)
		}
	}

	specs := registry.Specs()
	if len(specs) != 3 {
		t.Fatalf("Expected 3 specs, got %d", len(specs))
	}
	for i, spec := range specs {
		fn, ok := spec["function"].(map[string]interface{})
		if !ok {
			t.Fatalf("Spec %d missing function block", i)
		}
		if fn["name"] != names[i] {
			t.Errorf("Spec %d expected %s, got %v", i, names[i], fn["name"])
		}
	}
}
