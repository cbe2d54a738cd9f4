package transcoder

import (
	"bufio"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"iter"
	"regexp"
	"strings"
)

// errEventsExhausted is returned when a handler pulls past the document end.
var errEventsExhausted = errors.New("event stream ended unexpectedly")

// Events returns a lazy, forward-only sequence of parse events read from r.
//
// The sequence always starts with a KindDocumentStart event (synthesised as
// version 1.0, UTF-8 when the document has no declaration) and ends with a
// KindDocumentEnd event, unless an error is yielded first. Adjacent character
// data is coalesced into one KindText event; comments, directives, processing
// instructions and whitespace outside the root element are dropped.
//
// Errors are *TranslationError values of kind ErrSyntax. The sequence stops
// after the first error.
func Events(r io.Reader) iter.Seq2[ParseEvent, error] {
	return func(yield func(ParseEvent, error) bool) {
		var (
			scope   nsScope
			depth   int
			begun   bool
			rooted  bool
			pending strings.Builder
			hasText bool
		)

		fail := func(err error) {
			yield(ParseEvent{}, &TranslationError{Kind: ErrSyntax, Err: err})
		}
		begin := func(version, encoding string) bool {
			begun = true
			return yield(ParseEvent{Kind: KindDocumentStart, Version: version, Encoding: encoding}, nil)
		}
		flush := func() bool {
			if !hasText {
				return true
			}
			s := pending.String()
			pending.Reset()
			hasText = false
			if depth == 0 {
				if strings.TrimSpace(s) != "" {
					fail(errors.New("character data outside the root element"))
					return false
				}
				return true
			}
			return yield(ParseEvent{Kind: KindText, Text: s}, nil)
		}

		// The declaration is consumed here rather than by the decoder, which
		// rejects versions other than 1.0 and encodings it cannot convert.
		br := bufio.NewReader(r)
		decl, err := readDeclaration(br)
		if err != nil {
			fail(err)
			return
		}
		if decl != nil {
			if !begin(decl["version"], decl["encoding"]) {
				return
			}
		}
		d := xml.NewDecoder(br)

		for {
			tok, err := d.Token()
			if err == io.EOF {
				if !flush() {
					return
				}
				if !begun && !begin("1.0", "UTF-8") {
					return
				}
				if !rooted {
					fail(errors.New("document has no root element"))
					return
				}
				yield(ParseEvent{Kind: KindDocumentEnd}, nil)
				return
			}
			if err != nil {
				fail(err)
				return
			}

			if !begun && !begin("1.0", "UTF-8") {
				return
			}

			switch t := tok.(type) {
			case xml.CharData:
				pending.Write(t)
				hasText = true
			case xml.StartElement:
				if !flush() {
					return
				}
				scope.push(t.Attr)
				rooted = true
				depth++
				ev := ParseEvent{
					Kind:   KindStartElement,
					Name:   t.Name,
					Prefix: scope.prefix(t.Name.Space),
					Attrs:  t.Attr,
				}
				if !yield(ev, nil) {
					return
				}
			case xml.EndElement:
				if !flush() {
					return
				}
				ev := ParseEvent{
					Kind:   KindEndElement,
					Name:   t.Name,
					Prefix: scope.prefix(t.Name.Space),
				}
				scope.pop()
				depth--
				if !yield(ev, nil) {
					return
				}
			}
		}
	}
}

var declParamRegex = regexp.MustCompile(`([A-Za-z]+)\s*=\s*["']([^"']*)["']`)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// readDeclaration consumes a leading byte-order mark and XML declaration from
// br and returns the declaration's pseudo-attributes, or nil when the
// document has none.
func readDeclaration(br *bufio.Reader) (map[string]string, error) {
	if bom, _ := br.Peek(len(utf8BOM)); bytes.Equal(bom, utf8BOM) {
		br.Discard(len(utf8BOM))
	}
	head, _ := br.Peek(6)
	if len(head) < 6 || string(head[:5]) != "<?xml" || !isSpace(head[5]) {
		return nil, nil
	}
	inst, err := br.ReadBytes('>')
	if err != nil {
		return nil, fmt.Errorf("unterminated xml declaration: %w", err)
	}
	if !bytes.HasSuffix(inst, []byte("?>")) {
		return nil, errors.New("malformed xml declaration")
	}
	params := make(map[string]string)
	for _, m := range declParamRegex.FindAllSubmatch(inst, -1) {
		params[string(m[1])] = string(m[2])
	}
	return params, nil
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\r' || b == '\n'
}

// binding is one namespace declaration. The default namespace has an empty
// prefix.
type binding struct {
	prefix, uri string
}

// nsScope tracks prefix bindings for the open elements, innermost last.
// Each frame keeps its declarations in document order.
type nsScope [][]binding

func (s *nsScope) push(attrs []xml.Attr) {
	var frame []binding
	for _, a := range attrs {
		switch {
		case a.Name.Space == "xmlns":
			frame = append(frame, binding{a.Name.Local, a.Value})
		case a.Name.Space == "" && a.Name.Local == "xmlns":
			frame = append(frame, binding{"", a.Value})
		}
	}
	*s = append(*s, frame)
}

func (s *nsScope) pop() {
	if n := len(*s); n > 0 {
		*s = (*s)[:n-1]
	}
}

// prefix returns the prefix bound to uri in the innermost scope. When one
// element binds several prefixes to uri the first declared wins. Undeclared
// prefixes are left in Name.Space by the decoder and come back unchanged.
func (s nsScope) prefix(uri string) string {
	if uri == "" {
		return ""
	}
	shadowed := make(map[string]bool)
	for i := len(s) - 1; i >= 0; i-- {
		for _, b := range s[i] {
			if shadowed[b.prefix] {
				continue
			}
			shadowed[b.prefix] = true
			if b.uri == uri {
				return b.prefix
			}
		}
	}
	return uri
}

// Cursor pulls events one at a time from a sequence. Handlers that need to
// resolve nested structure advance the same cursor the main loop reads from.
type Cursor struct {
	next func() (ParseEvent, error, bool)
	stop func()
}

// NewCursor starts pulling from events. Call Close when done.
func NewCursor(events iter.Seq2[ParseEvent, error]) *Cursor {
	next, stop := iter.Pull2(events)
	return &Cursor{next: next, stop: stop}
}

// Next returns the next event.
func (c *Cursor) Next() (ParseEvent, error) {
	ev, err, ok := c.next()
	if !ok {
		return ParseEvent{}, &TranslationError{Kind: ErrStructure, Err: errEventsExhausted}
	}
	return ev, err
}

// NextSignificant returns the next event that is not whitespace-only text.
// All whitespace skipping inside fixed element layouts goes through here.
func (c *Cursor) NextSignificant() (ParseEvent, error) {
	for {
		ev, err := c.Next()
		if err != nil || !ev.IsWhitespace() {
			return ev, err
		}
	}
}

// Close releases the underlying sequence.
func (c *Cursor) Close() {
	c.stop()
}
