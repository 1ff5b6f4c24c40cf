package dataType

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a fatal bootstrap failure.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	// ConfigurationError: missing or contradictory settings.
	ConfigurationError
	// SourceError: a peer or binary source was unreachable, malformed or empty.
	SourceError
	// VerificationError: the hl-visor signature check failed.
	VerificationError
	// IOError: a local filesystem operation failed.
	IOError
	// ThresholdError: no seed peer passed the latency threshold.
	ThresholdError
)

func (k ErrorKind) String() string {
	switch k {
	case ConfigurationError:
		return "configuration error"
	case SourceError:
		return "source error"
	case VerificationError:
		return "verification error"
	case IOError:
		return "io error"
	case ThresholdError:
		return "threshold error"
	default:
		return "error"
	}
}

// BootstrapError is a classified failure of one pipeline stage.
type BootstrapError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *BootstrapError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *BootstrapError) Unwrap() error {
	return e.Err
}

// NewError wraps err with a kind and the operation that failed.
func NewError(kind ErrorKind, op string, err error) error {
	return &BootstrapError{Kind: kind, Op: op, Err: err}
}

// Errorf builds a classified error from a format string.
func Errorf(kind ErrorKind, op string, format string, args ...any) error {
	return &BootstrapError{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the outermost BootstrapError in err's chain.
func KindOf(err error) ErrorKind {
	var bootstrapErr *BootstrapError
	if errors.As(err, &bootstrapErr) {
		return bootstrapErr.Kind
	}
	return KindUnknown
}
