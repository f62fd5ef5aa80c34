package tools

import (
	"errors"
	"fmt"
)

// Kind classifies the outcome of a tool dispatch.
type Kind string

const (
	KindOK               Kind = "ok"
	KindInvalidArguments Kind = "invalid_arguments"
	KindNotFound         Kind = "not_found"
	KindProviderError    Kind = "provider_error"
	KindUnknownTool      Kind = "unknown_tool"
)

// Result is what a tool dispatch hands back to the dialogue loop. The
// content is always model-readable text: on failure it describes the
// problem so the model can self-correct on the next round.
type Result struct {
	Kind    Kind   `json:"kind"`
	Content string `json:"content"`
}

// OK reports whether the dispatch succeeded.
func (r Result) OK() bool {
	return r.Kind == KindOK
}

// Success wraps a formatted payload in an ok result.
func Success(content string) Result {
	return Result{Kind: KindOK, Content: content}
}

// Failure wraps an error description in a result of the given kind.
func Failure(kind Kind, content string) Result {
	return Result{Kind: kind, Content: content}
}

// toolError carries a failure kind alongside the model-readable
// description. Tool internals return it as a plain error; Call maps it
// back to a Result at the dispatch boundary.
type toolError struct {
	kind    Kind
	message string
}

func (e *toolError) Error() string {
	return e.message
}

// errorf builds a classified tool error.
func errorf(kind Kind, format string, args ...any) error {
	return &toolError{kind: kind, message: fmt.Sprintf(format, args...)}
}

// failureFromError converts a tool error into a failure result.
// Unclassified errors count as provider failures.
func failureFromError(err error) Result {
	var te *toolError
	if errors.As(err, &te) {
		return Failure(te.kind, te.message)
	}
	return Failure(KindProviderError, err.Error())
}
