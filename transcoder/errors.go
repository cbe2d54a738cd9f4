package transcoder

import (
	"errors"
	"fmt"
)

// Sentinel errors classifying a failed translation. Every error returned by
// Translate matches exactly one of them with errors.Is.
var (
	// ErrEncoding indicates the document declares an encoding other than UTF-8.
	ErrEncoding = errors.New("transcoder: unsupported document encoding")
	// ErrStructure indicates a required element or attribute is missing, or an
	// event arrived that the current state cannot accept.
	ErrStructure = errors.New("transcoder: unexpected document structure")
	// ErrDateFormat indicates a timestamp that is not valid RFC 3339.
	ErrDateFormat = errors.New("transcoder: invalid date format")
	// ErrSyntax indicates the input is not well-formed XML.
	ErrSyntax = errors.New("transcoder: malformed xml")
)

// TranslationError wraps translation failures with the state the transcoder
// was in and the element being handled.
//
//	var terr *transcoder.TranslationError
//	if errors.As(err, &terr) {
//		fmt.Printf("failed in %s at <%s>: %v\n", terr.State, terr.Element, terr.Err)
//	}
type TranslationError struct {
	// Kind is one of ErrEncoding, ErrStructure, ErrDateFormat or ErrSyntax.
	Kind error
	// State is the transcoder state when the failure occurred.
	State State
	// Element is the local name of the element being handled, if any.
	Element string
	// Err is the underlying cause. May be nil.
	Err error
}

// Error returns a string representation of the translation error.
func (e *TranslationError) Error() string {
	msg := e.Kind.Error()
	if e.Element != "" {
		msg += fmt.Sprintf(" in <%s>", e.Element)
	}
	msg += " (state " + e.State.String() + ")"
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the error kind and the underlying cause to errors.Is
// and errors.As.
func (e *TranslationError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func structuralf(state State, element, format string, args ...any) error {
	return &TranslationError{
		Kind:    ErrStructure,
		State:   state,
		Element: element,
		Err:     fmt.Errorf(format, args...),
	}
}
