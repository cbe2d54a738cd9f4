// Package transcoder converts a YouTube channel's Atom video feed into an
// RSS 2.0 feed in a single streaming pass.
//
// Parse events are pulled from the Atom document one at a time and fed to a
// small state machine (see State) that emits the matching RSS write events.
// Nothing outlives a call; a Transcoder may be used from many goroutines.
package transcoder

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"
)

// Transcoder translates Atom feeds into RSS documents.
type Transcoder struct {
	now       func() time.Time
	logger    *slog.Logger
	sanitizer Sanitizer
}

// Option configures a Transcoder.
type Option func(*Transcoder)

// WithClock sets the time source used for <lastBuildDate>.
func WithClock(now func() time.Time) Option {
	return func(t *Transcoder) {
		if now != nil {
			t.now = now
		}
	}
}

// WithLogger sets the logger receiving diagnostics about ignored input.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transcoder) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithDescriptionSanitizer cleans every video description before it is
// embedded in the item HTML. Descriptions are copied verbatim by default.
func WithDescriptionSanitizer(s Sanitizer) Option {
	return func(t *Transcoder) {
		t.sanitizer = s
	}
}

// New creates a Transcoder.
func New(opts ...Option) *Transcoder {
	t := &Transcoder{
		now:    time.Now,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Translate converts a UTF-8 Atom document into an RSS 2.0 document whose
// self link points at {baseURL}/channel/{channel id}.
//
// On failure no partial output is returned; the error is a
// *TranslationError matching one of ErrEncoding, ErrStructure,
// ErrDateFormat or ErrSyntax.
func (t *Transcoder) Translate(atom, baseURL string) (string, error) {
	return t.TranslateReader(strings.NewReader(atom), baseURL)
}

// TranslateReader is like Translate but reads the Atom document from r.
func (t *Transcoder) TranslateReader(r io.Reader, baseURL string) (string, error) {
	m := &Machine{
		BaseURL:   baseURL,
		Now:       t.now,
		Logger:    t.logger,
		Sanitizer: t.sanitizer,
	}

	c := NewCursor(Events(r))
	defer c.Close()

	out := newEmitter()
	state := StateInitial
	for {
		ev, err := c.Next()
		if err != nil {
			return "", annotate(err, state)
		}

		next, writes, err := m.Step(state, ev, c)
		if err != nil {
			return "", annotate(err, state)
		}
		for _, w := range writes {
			if err := out.write(w); err != nil {
				return "", &TranslationError{Kind: ErrStructure, State: state, Err: err}
			}
		}

		if ev.Kind == KindDocumentEnd {
			doc, err := out.finish()
			if err != nil {
				return "", &TranslationError{Kind: ErrStructure, State: state, Err: err}
			}
			return doc, nil
		}

		if next != state {
			t.logger.Debug("transcoder state change", "from", state, "to", next)
		}
		state = next
	}
}

// annotate records the state a pulled-event failure surfaced in.
func annotate(err error, state State) error {
	var terr *TranslationError
	if errors.As(err, &terr) {
		terr.State = state
		return terr
	}
	return &TranslationError{Kind: ErrStructure, State: state, Err: err}
}

var defaultTranscoder = New()

// Translate converts an Atom document using a Transcoder with default
// options: the wall clock and no diagnostics.
func Translate(atom, baseURL string) (string, error) {
	return defaultTranscoder.Translate(atom, baseURL)
}
