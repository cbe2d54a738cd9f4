package transcoder

import (
	"errors"
	"log/slog"
	"strings"
	"time"
)

const (
	atomNamespace = "http://www.w3.org/2005/Atom"
	rssMediaType  = "application/rss+xml"
	mediaPrefix   = "media"
)

// Sanitizer cleans description text before it is placed in the item HTML.
// *bluemonday.Policy satisfies it.
type Sanitizer interface {
	Sanitize(string) string
}

// Machine maps parse events onto write events. It holds only the inputs of
// a single translation and may be shared by concurrent callers.
type Machine struct {
	BaseURL   string
	Now       func() time.Time
	Logger    *slog.Logger
	Sanitizer Sanitizer
}

var (
	ignoredChannelElements = setOf("channelId", "id", "author", "name", "uri")
	ignoredEntryElements   = setOf("id", "updated", "videoId", "channelId", "author", "group",
		"name", "uri", "community", "starRating", "statistics")
)

func setOf(names ...string) map[string]bool {
	s := make(map[string]bool, len(names))
	for _, n := range names {
		s[n] = true
	}
	return s
}

// Step advances the translation by one parse event. Handlers that need the
// content of an element pull further events from c.
func (m *Machine) Step(state State, ev ParseEvent, c *Cursor) (State, []WriteEvent, error) {
	switch ev.Kind {
	case KindDocumentStart:
		return m.documentStart(state, ev)
	case KindDocumentEnd:
		return m.documentEnd(state)
	case KindStartElement:
		if state == StateInitial {
			return state, nil, structuralf(state, ev.Name.Local, "element before document start")
		}
	default:
		if state == StateInitial {
			return state, nil, structuralf(state, "", "unexpected %s before document start", ev.Kind)
		}
		return state, nil, nil
	}

	switch state {
	case StateHeader:
		return m.header(ev)
	case StateChannelInfo:
		return m.channelInfo(ev, c)
	case StateVideoEntries:
		if ev.IsStart("entry") {
			return StateVideoEntry, []WriteEvent{startElement("item"), newline()}, nil
		}
		return state, nil, nil
	case StateVideoEntry:
		return m.videoEntry(ev, c)
	default:
		return state, nil, structuralf(state, ev.Name.Local, "unknown state")
	}
}

func (m *Machine) documentStart(state State, ev ParseEvent) (State, []WriteEvent, error) {
	if state != StateInitial {
		return state, nil, structuralf(state, "", "repeated document start")
	}
	// A declaration without an encoding defaults to UTF-8.
	if ev.Encoding != "" && !strings.EqualFold(ev.Encoding, "UTF-8") {
		return state, nil, &TranslationError{Kind: ErrEncoding, State: state, Err: errors.New(ev.Encoding)}
	}
	if ev.Version != "1.0" {
		m.logger().Warn("parsing xml document with untested version", "version", ev.Version)
	}
	return StateHeader, nil, nil
}

func (m *Machine) documentEnd(state State) (State, []WriteEvent, error) {
	switch state {
	case StateInitial, StateHeader:
		return state, nil, structuralf(state, "", "document ended before the feed element")
	case StateVideoEntry:
		return state, nil, structuralf(state, "entry", "entry ended without media content")
	}
	// Closes <channel> and <rss>.
	return state, []WriteEvent{endElement(), endElement()}, nil
}

func (m *Machine) header(ev ParseEvent) (State, []WriteEvent, error) {
	if ev.Name.Local != "feed" {
		return StateHeader, nil, structuralf(StateHeader, ev.Name.Local, "root element is not an atom feed")
	}
	if ev.Name.Space != atomNamespace {
		m.logger().Warn("feed element outside the atom namespace", "namespace", ev.Name.Space)
	}
	return StateChannelInfo, []WriteEvent{
		{Kind: WriteDocumentStart, Version: "1.0", Encoding: "UTF-8", Standalone: true},
		newline(),
		startElement("rss", attr("version", "2.0"), attr("xmlns:atom", atomNamespace)),
		newline(),
	}, nil
}

func (m *Machine) channelInfo(ev ParseEvent, c *Cursor) (State, []WriteEvent, error) {
	const state = StateChannelInfo
	switch name := ev.Name.Local; name {
	case "link":
		rel, href, err := linkAttrs(state, ev)
		if err != nil {
			return state, nil, err
		}
		switch rel {
		case "self":
			return state, []WriteEvent{
				startElement("channel"),
				newline(),
				startElement("atom:link",
					attr("href", m.BaseURL+"/channel/"+ChannelID(href)),
					attr("rel", "self"),
					attr("type", rssMediaType),
				),
				endElement(),
				newline(),
			}, nil
		case "alternate":
			return state, textElement("link", href), nil
		}
		return state, nil, nil

	case "title":
		title, err := textContent(c, state, name)
		if err != nil {
			return state, nil, err
		}
		// RSS requires a channel description; the feed title stands in.
		return state, append(textElement("title", title), textElement("description", title)...), nil

	case "published":
		if _, err := textContent(c, state, name); err != nil {
			return state, nil, err
		}
		built := m.now().UTC().Format(time.RFC1123Z)
		return StateVideoEntries, textElement("lastBuildDate", built), nil

	default:
		if !ignoredChannelElements[name] {
			m.logger().Debug("ignoring unknown channel element", "element", name)
		}
		return state, nil, nil
	}
}

func (m *Machine) videoEntry(ev ParseEvent, c *Cursor) (State, []WriteEvent, error) {
	const state = StateVideoEntry
	switch name := ev.Name.Local; name {
	case "title":
		// media:group repeats the title as media:title.
		if ev.Prefix == mediaPrefix {
			return state, nil, nil
		}
		title, err := textContent(c, state, name)
		if err != nil {
			return state, nil, err
		}
		return state, textElement("title", title), nil

	case "link":
		href, ok := ev.Attr("href")
		if !ok {
			return state, nil, structuralf(state, name, "missing href attribute")
		}
		return state, textElement("link", href), nil

	case "published":
		raw, err := textContent(c, state, name)
		if err != nil {
			return state, nil, err
		}
		published, err := time.Parse(time.RFC3339, strings.TrimSpace(raw))
		if err != nil {
			return state, nil, &TranslationError{Kind: ErrDateFormat, State: state, Element: name, Err: err}
		}
		return state, textElement("pubDate", published.Format(time.RFC1123Z)), nil

	case "entry":
		// Entries end with their media content. Carrying on would merge two
		// entries into one item.
		return state, nil, structuralf(state, name, "entry started before the previous entry's media content")

	case "content":
		mc, err := readMediaContent(c, ev)
		if err != nil {
			return state, nil, err
		}
		description := mc.Description
		if m.Sanitizer != nil {
			description = m.Sanitizer.Sanitize(description)
		}
		out := textElement("guid", StripQuery(mc.URL))
		out = append(out, textElement("description", DescriptionHTML(mc.Thumbnail, description, VideoID(mc.URL)))...)
		out = append(out, endElement())
		return StateVideoEntries, out, nil

	default:
		if !ignoredEntryElements[name] {
			m.logger().Debug("ignoring unknown entry element", "element", name)
		}
		return state, nil, nil
	}
}

// linkAttrs returns the rel and href attributes every feed link must carry.
func linkAttrs(state State, ev ParseEvent) (rel, href string, err error) {
	rel, ok := ev.Attr("rel")
	if !ok {
		return "", "", structuralf(state, ev.Name.Local, "missing rel attribute")
	}
	href, ok = ev.Attr("href")
	if !ok {
		return "", "", structuralf(state, ev.Name.Local, "missing href attribute")
	}
	return rel, href, nil
}

// textContent pulls the character data of the element just opened. An empty
// element yields the empty string.
func textContent(c *Cursor, state State, element string) (string, error) {
	ev, err := c.Next()
	if err != nil {
		return "", err
	}
	switch ev.Kind {
	case KindText:
		return ev.Text, nil
	case KindEndElement:
		return "", nil
	default:
		return "", structuralf(state, element, "expected text content, got %s", ev.Kind)
	}
}

func (m *Machine) now() time.Time {
	if m.Now == nil {
		return time.Now()
	}
	return m.Now()
}

func (m *Machine) logger() *slog.Logger {
	if m.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return m.Logger
}
