package tools_test

import (
	"context"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"

	"github.com/voralis/skycast/backend/internal/tools"
)

type stubTool struct {
	name   string
	params map[string]*schema.ParameterInfo
	result tools.Result
	panics bool
	calls  int
}

func (t *stubTool) Info() *schema.ToolInfo {
	return &schema.ToolInfo{
		Name:        t.name,
		Desc:        "stub",
		ParamsOneOf: schema.NewParamsOneOfByParams(t.params),
	}
}

func (t *stubTool) Params() map[string]*schema.ParameterInfo {
	return t.params
}

func (t *stubTool) Call(_ context.Context, _ map[string]any) tools.Result {
	t.calls++
	if t.panics {
		panic("provider exploded")
	}
	return t.result
}

func newStub(name string) *stubTool {
	return &stubTool{
		name: name,
		params: map[string]*schema.ParameterInfo{
			"place": {Type: schema.String, Required: true},
			"count": {Type: schema.Number},
		},
		result: tools.Success("stub payload"),
	}
}

func TestRegistryDispatchSuccess(t *testing.T) {
	stub := newStub("lookup")
	registry := tools.NewRegistry(stub)

	result := registry.Dispatch(context.Background(), "lookup", `{"place":"Paris"}`)
	if !result.OK() {
		t.Fatalf("expected ok result, got %s: %s", result.Kind, result.Content)
	}
	if stub.calls != 1 {
		t.Fatalf("expected 1 call, got %d", stub.calls)
	}
}

func TestRegistryDispatchUnknownTool(t *testing.T) {
	registry := tools.NewRegistry(newStub("lookup"))

	result := registry.Dispatch(context.Background(), "nope", `{}`)
	if result.Kind != tools.KindUnknownTool {
		t.Fatalf("expected unknown_tool, got %s", result.Kind)
	}
}

func TestRegistryDispatchMissingRequiredArgument(t *testing.T) {
	stub := newStub("lookup")
	registry := tools.NewRegistry(stub)

	result := registry.Dispatch(context.Background(), "lookup", `{"count":3}`)
	if result.Kind != tools.KindInvalidArguments {
		t.Fatalf("expected invalid_arguments, got %s", result.Kind)
	}
	if !strings.Contains(result.Content, "place") {
		t.Fatalf("expected offending field in message, got %q", result.Content)
	}
	if stub.calls != 0 {
		t.Fatal("tool must not run on validation failure")
	}
}

func TestRegistryDispatchWrongType(t *testing.T) {
	stub := newStub("lookup")
	registry := tools.NewRegistry(stub)

	result := registry.Dispatch(context.Background(), "lookup", `{"place":"Paris","count":"many"}`)
	if result.Kind != tools.KindInvalidArguments {
		t.Fatalf("expected invalid_arguments, got %s", result.Kind)
	}
}

func TestRegistryDispatchNumericString(t *testing.T) {
	stub := newStub("lookup")
	registry := tools.NewRegistry(stub)

	// Models routinely quote numbers; those still validate.
	result := registry.Dispatch(context.Background(), "lookup", `{"place":"Paris","count":"3"}`)
	if !result.OK() {
		t.Fatalf("expected ok result, got %s: %s", result.Kind, result.Content)
	}
}

func TestRegistryDispatchMalformedJSON(t *testing.T) {
	registry := tools.NewRegistry(newStub("lookup"))

	result := registry.Dispatch(context.Background(), "lookup", `{"place":`)
	if result.Kind != tools.KindInvalidArguments {
		t.Fatalf("expected invalid_arguments, got %s", result.Kind)
	}
}

func TestRegistryDispatchRecoversPanic(t *testing.T) {
	stub := newStub("lookup")
	stub.panics = true
	registry := tools.NewRegistry(stub)

	result := registry.Dispatch(context.Background(), "lookup", `{"place":"Paris"}`)
	if result.Kind != tools.KindProviderError {
		t.Fatalf("expected provider_error, got %s", result.Kind)
	}
}

func TestRegistryInfosKeepRegistrationOrder(t *testing.T) {
	registry := tools.NewRegistry(newStub("first"), newStub("second"))

	infos := registry.Infos()
	if len(infos) != 2 {
		t.Fatalf("expected 2 infos, got %d", len(infos))
	}
	if infos[0].Name != "first" || infos[1].Name != "second" {
		t.Fatalf("unexpected order: %s, %s", infos[0].Name, infos[1].Name)
	}
}
