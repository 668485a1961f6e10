package builder

import (
	"errors"
	"fmt"
)

var (
	ErrSerialize    = errors.New("serialize snapshot value")
	ErrRender       = errors.New("render snapshot difference")
	ErrEmptyPayload = errors.New("empty artifact payload")
	ErrUnsupported  = errors.New("unsupported snapshot strategy")
)

// BuildError reports why an artifact could not be regenerated.
//
// Kind is one of the Err* sentinels above and is matched by errors.Is.
type BuildError struct {
	Kind error
	Name string
	Err  error
}

func (e *BuildError) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Kind.Error()
	if e.Name != "" {
		msg = fmt.Sprintf("%s %q", msg, e.Name)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *BuildError) Is(target error) bool { return e != nil && e.Kind == target }

func (e *BuildError) Unwrap() error { return e.Err }

func buildErr(kind error, name string, err error) error {
	return &BuildError{Kind: kind, Name: name, Err: err}
}

func unsupportedf(format string, args ...any) error {
	return &BuildError{Kind: ErrUnsupported, Err: fmt.Errorf(format, args...)}
}
