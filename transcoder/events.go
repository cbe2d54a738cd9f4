package transcoder

import (
	"encoding/xml"
	"strings"
)

// EventKind identifies the variant carried by a ParseEvent.
type EventKind int

const (
	// KindDocumentStart is always the first event of a document.
	KindDocumentStart EventKind = iota
	// KindStartElement opens an element.
	KindStartElement
	// KindEndElement closes the most recently opened element.
	KindEndElement
	// KindText is coalesced character data, CDATA included.
	KindText
	// KindDocumentEnd is always the last event of a document.
	KindDocumentEnd
)

// String returns the string representation of an event kind.
func (k EventKind) String() string {
	switch k {
	case KindDocumentStart:
		return "document-start"
	case KindStartElement:
		return "element-start"
	case KindEndElement:
		return "element-end"
	case KindText:
		return "text"
	case KindDocumentEnd:
		return "document-end"
	default:
		return "unknown"
	}
}

// ParseEvent is a single unit of Atom input.
type ParseEvent struct {
	Kind EventKind

	// Version and Encoding come from the XML declaration (document start only).
	Version  string
	Encoding string

	// Name holds the element's local name and namespace URI.
	Name xml.Name
	// Prefix is the namespace prefix bound to Name.Space where the element
	// appears. Empty for the default namespace.
	Prefix string
	// Attrs are the element's attributes in document order.
	Attrs []xml.Attr

	// Text is the character data of a text event.
	Text string
}

// Attr returns the value of the attribute with the given local name.
func (e ParseEvent) Attr(local string) (string, bool) {
	for _, a := range e.Attrs {
		if a.Name.Local == local {
			return a.Value, true
		}
	}
	return "", false
}

// IsStart reports whether e opens an element with the given local name.
func (e ParseEvent) IsStart(local string) bool {
	return e.Kind == KindStartElement && e.Name.Local == local
}

// IsWhitespace reports whether e is a text event holding only whitespace.
func (e ParseEvent) IsWhitespace() bool {
	return e.Kind == KindText && strings.TrimSpace(e.Text) == ""
}

// WriteKind identifies the variant carried by a WriteEvent.
type WriteKind int

const (
	WriteDocumentStart WriteKind = iota
	WriteStartElement
	WriteText
	WriteRaw
	WriteEndElement
)

// WriteEvent is a single unit of RSS output.
type WriteEvent struct {
	Kind WriteKind

	// Version, Encoding and Standalone describe the XML declaration.
	Version    string
	Encoding   string
	Standalone bool

	// Name and Attrs describe an element start.
	Name  string
	Attrs []xml.Attr

	// Text is escaped for WriteText and copied verbatim for WriteRaw.
	Text string
}

func startElement(name string, attrs ...xml.Attr) WriteEvent {
	return WriteEvent{Kind: WriteStartElement, Name: name, Attrs: attrs}
}

func endElement() WriteEvent {
	return WriteEvent{Kind: WriteEndElement}
}

func text(s string) WriteEvent {
	return WriteEvent{Kind: WriteText, Text: s}
}

func newline() WriteEvent {
	return WriteEvent{Kind: WriteRaw, Text: "\n"}
}

func attr(name, value string) xml.Attr {
	return xml.Attr{Name: xml.Name{Local: name}, Value: value}
}

// textElement writes <name>value</name> followed by a line break.
func textElement(name, value string) []WriteEvent {
	return []WriteEvent{startElement(name), text(value), endElement(), newline()}
}
