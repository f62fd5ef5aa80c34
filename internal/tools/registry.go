package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strconv"

	"github.com/cloudwego/eino/schema"
)

// Tool is an external capability invocable by name with structured
// arguments. Info is advertised to the model; Params drives argument
// validation before Call ever runs.
type Tool interface {
	Info() *schema.ToolInfo
	Params() map[string]*schema.ParameterInfo
	Call(ctx context.Context, args map[string]any) Result
}

// Registry maps tool names to implementations. Tools are registered
// once at startup and the registry is read-only afterwards.
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewRegistry builds a registry over the given tools.
func NewRegistry(ts ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool, len(ts))}
	for _, t := range ts {
		name := t.Info().Name
		if _, exists := r.tools[name]; !exists {
			r.order = append(r.order, name)
		}
		r.tools[name] = t
	}
	return r
}

// Infos returns the descriptors advertised to the model, in
// registration order.
func (r *Registry) Infos() []*schema.ToolInfo {
	infos := make([]*schema.ToolInfo, 0, len(r.order))
	for _, name := range r.order {
		infos = append(infos, r.tools[name].Info())
	}
	return infos
}

// Dispatch validates the JSON-encoded arguments against the tool's
// parameter schema and runs the tool. It fails closed: an unknown name,
// malformed arguments, or a panicking provider call all come back as a
// failure result rather than an error or a crash.
func (r *Registry) Dispatch(ctx context.Context, name, argsJSON string) (result Result) {
	tool, ok := r.tools[name]
	if !ok {
		log.Printf("[tools] dispatch of unknown tool %q", name)
		return Failure(KindUnknownTool, fmt.Sprintf("unknown tool %q", name))
	}

	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[tools] %s panicked: %v", name, rec)
			result = Failure(KindProviderError, fmt.Sprintf("%s failed unexpectedly", name))
		}
	}()

	args := make(map[string]any)
	if argsJSON != "" {
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			return Failure(KindInvalidArguments, fmt.Sprintf("arguments are not valid JSON: %v", err))
		}
	}

	if err := validateArgs(tool.Params(), args); err != nil {
		return Failure(KindInvalidArguments, err.Error())
	}

	return tool.Call(ctx, args)
}

func validateArgs(params map[string]*schema.ParameterInfo, args map[string]any) error {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		info := params[name]
		value, present := args[name]
		if !present || value == nil {
			if info.Required {
				return fmt.Errorf("missing required argument %q", name)
			}
			continue
		}

		switch info.Type {
		case schema.String:
			if _, ok := value.(string); !ok {
				return fmt.Errorf("argument %q must be a string", name)
			}
		case schema.Number, schema.Integer:
			if _, err := numericValue(value); err != nil {
				return fmt.Errorf("argument %q must be a number", name)
			}
		case schema.Boolean:
			if _, ok := value.(bool); !ok {
				return fmt.Errorf("argument %q must be a boolean", name)
			}
		}
	}
	return nil
}

// numericValue accepts JSON numbers as well as numeric strings; models
// routinely quote coordinates.
func numericValue(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case json.Number:
		return v.Float64()
	case string:
		return strconv.ParseFloat(v, 64)
	default:
		return 0, fmt.Errorf("not a number: %v", value)
	}
}

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func floatArg(args map[string]any, key string) (float64, bool) {
	value, ok := args[key]
	if !ok || value == nil {
		return 0, false
	}
	f, err := numericValue(value)
	if err != nil {
		return 0, false
	}
	return f, true
}
