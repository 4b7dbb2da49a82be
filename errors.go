// Typed errors for template parsing, parameter access and rendering.
package texttemplar

import "fmt"

// StructuralError reports a fatal defect in the template structure, found
// at parse time: an unmatched block-start tag or excessive nesting. A parse
// either fully succeeds or fails wholesale with one of these.
type StructuralError struct {
	Message string
	Line    int
}

func (e *StructuralError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("template structure error at line %d: %s", e.Line, e.Message)
	}
	return fmt.Sprintf("template structure error: %s", e.Message)
}

// NewStructuralError creates a structural error with an optional 1-based
// line number (0 when unknown).
func NewStructuralError(message string, line int) error {
	return &StructuralError{Message: message, Line: line}
}

// UnknownParamError reports a Set or Get of a name the template never
// mentions, in strict mode.
type UnknownParamError struct {
	Name string
}

func (e *UnknownParamError) Error() string {
	return fmt.Sprintf("unknown parameter name: %s", e.Name)
}

// SourceAccessError reports a failure to read a template source file.
type SourceAccessError struct {
	Path  string
	Cause error
}

func (e *SourceAccessError) Error() string {
	return fmt.Sprintf("cannot access template source %s: %v", e.Path, e.Cause)
}

func (e *SourceAccessError) Unwrap() error {
	return e.Cause
}

// EvalError reports a failed conditional expression during rendering.
type EvalError struct {
	Expression string
	Cause      error
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("condition %q: %v", e.Expression, e.Cause)
}

func (e *EvalError) Unwrap() error {
	return e.Cause
}
