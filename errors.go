package polyhost

import "fmt"

// CompilationErrorKind classifies why a voice engine factory could not be
// built.
type CompilationErrorKind int

const (
	// KindSyntax is a malformed patch or compiler option.
	KindSyntax CompilationErrorKind = iota
	// KindBackendUnavailable is an unknown or unsupported backend.
	KindBackendUnavailable
	// KindResource is a patch exceeding the limits of the engines.
	KindResource
)

func (k CompilationErrorKind) String() string {
	switch k {
	case KindSyntax:
		return "syntax"
	case KindBackendUnavailable:
		return "backend unavailable"
	case KindResource:
		return "resource"
	}
	return fmt.Sprintf("CompilationErrorKind(%d)", int(k))
}

// CompilationError is returned when building a voice engine factory fails.
// Match it with errors.As to get the kind and the diagnostic message.
type CompilationError struct {
	Kind       CompilationErrorKind
	Diagnostic string
}

func (e *CompilationError) Error() string {
	return fmt.Sprintf("%v error: %v", e.Kind, e.Diagnostic)
}

// Errorf returns a CompilationError of the given kind with a formatted
// diagnostic.
func Errorf(kind CompilationErrorKind, format string, args ...any) error {
	return &CompilationError{Kind: kind, Diagnostic: fmt.Sprintf(format, args...)}
}
