package transcoder

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMachine() *Machine {
	return &Machine{
		BaseURL: testBaseURL,
		Now:     fixedClock(time.Date(2026, 10, 15, 12, 30, 0, 0, time.UTC)),
	}
}

func noEvents() *Cursor {
	return NewCursor(eventSeq())
}

func TestStepDocumentStart(t *testing.T) {
	m := newTestMachine()

	next, out, err := m.Step(StateInitial, ParseEvent{Kind: KindDocumentStart, Version: "1.0", Encoding: "utf-8"}, noEvents())
	require.NoError(t, err)
	assert.Equal(t, StateHeader, next)
	assert.Empty(t, out)

	_, _, err = m.Step(StateHeader, ParseEvent{Kind: KindDocumentStart, Version: "1.0"}, noEvents())
	assert.ErrorIs(t, err, ErrStructure)

	_, _, err = m.Step(StateInitial, ParseEvent{Kind: KindDocumentStart, Version: "1.0", Encoding: "UTF-16"}, noEvents())
	assert.ErrorIs(t, err, ErrEncoding)
	assert.Contains(t, err.Error(), "UTF-16")
}

func TestStepDocumentStartWarnsOnVersion(t *testing.T) {
	var logs bytes.Buffer
	m := newTestMachine()
	m.Logger = slog.New(slog.NewTextHandler(&logs, nil))

	next, _, err := m.Step(StateInitial, ParseEvent{Kind: KindDocumentStart, Version: "1.1", Encoding: "UTF-8"}, noEvents())
	require.NoError(t, err)
	assert.Equal(t, StateHeader, next)
	assert.Contains(t, logs.String(), "level=WARN")
	assert.Contains(t, logs.String(), "version=1.1")
}

func TestStepBeforeDocumentStart(t *testing.T) {
	m := newTestMachine()
	for _, ev := range []ParseEvent{startEv("feed", ""), endEv("feed"), textEv("x")} {
		_, _, err := m.Step(StateInitial, ev, noEvents())
		assert.ErrorIs(t, err, ErrStructure, "event %s", ev.Kind)
	}
}

func TestStepHeader(t *testing.T) {
	m := newTestMachine()

	feedStart := startEv("feed", "")
	feedStart.Name.Space = atomNamespace
	next, out, err := m.Step(StateHeader, feedStart, noEvents())
	require.NoError(t, err)
	assert.Equal(t, StateChannelInfo, next)
	require.Len(t, out, 4)
	assert.Equal(t, WriteDocumentStart, out[0].Kind)
	assert.True(t, out[0].Standalone)
	assert.Equal(t, startElement("rss", attr("version", "2.0"), attr("xmlns:atom", atomNamespace)), out[2])

	_, _, err = m.Step(StateHeader, startEv("rss", ""), noEvents())
	assert.ErrorIs(t, err, ErrStructure)
}

func TestStepChannelInfoLinks(t *testing.T) {
	m := newTestMachine()

	self := startEv("link", "", "rel", "self", "href", "http://www.youtube.com/feeds/videos.xml?channel_id=UC123")
	next, out, err := m.Step(StateChannelInfo, self, noEvents())
	require.NoError(t, err)
	assert.Equal(t, StateChannelInfo, next)
	assert.Equal(t, []WriteEvent{
		startElement("channel"),
		newline(),
		startElement("atom:link",
			attr("href", testBaseURL+"/channel/UC123"),
			attr("rel", "self"),
			attr("type", "application/rss+xml"),
		),
		endElement(),
		newline(),
	}, out)

	alt := startEv("link", "", "rel", "alternate", "href", "https://www.youtube.com/channel/UC123")
	_, out, err = m.Step(StateChannelInfo, alt, noEvents())
	require.NoError(t, err)
	assert.Equal(t, textElement("link", "https://www.youtube.com/channel/UC123"), out)

	other := startEv("link", "", "rel", "hub", "href", "https://pubsubhubbub.appspot.com")
	_, out, err = m.Step(StateChannelInfo, other, noEvents())
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestStepChannelInfoTitle(t *testing.T) {
	m := newTestMachine()
	c := NewCursor(eventSeq(textEv("Rick & Co"), endEv("title")))
	defer c.Close()

	next, out, err := m.Step(StateChannelInfo, startEv("title", ""), c)
	require.NoError(t, err)
	assert.Equal(t, StateChannelInfo, next)
	assert.Equal(t, append(textElement("title", "Rick & Co"), textElement("description", "Rick & Co")...), out)
}

func TestStepChannelInfoPublished(t *testing.T) {
	m := newTestMachine()
	c := NewCursor(eventSeq(textEv("not even a date"), endEv("published")))
	defer c.Close()

	next, out, err := m.Step(StateChannelInfo, startEv("published", ""), c)
	require.NoError(t, err)
	assert.Equal(t, StateVideoEntries, next)
	assert.Equal(t, textElement("lastBuildDate", "Thu, 15 Oct 2026 12:30:00 +0000"), out)
}

func TestStepChannelInfoIgnoresUnknown(t *testing.T) {
	var logs bytes.Buffer
	m := newTestMachine()
	m.Logger = slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	next, out, err := m.Step(StateChannelInfo, startEv("icon", ""), noEvents())
	require.NoError(t, err)
	assert.Equal(t, StateChannelInfo, next)
	assert.Empty(t, out)
	assert.Contains(t, logs.String(), "element=icon")

	logs.Reset()
	_, _, err = m.Step(StateChannelInfo, startEv("author", ""), noEvents())
	require.NoError(t, err)
	assert.Empty(t, logs.String())
}

func TestStepVideoEntries(t *testing.T) {
	m := newTestMachine()

	next, out, err := m.Step(StateVideoEntries, startEv("entry", ""), noEvents())
	require.NoError(t, err)
	assert.Equal(t, StateVideoEntry, next)
	assert.Equal(t, []WriteEvent{startElement("item"), newline()}, out)

	next, out, err = m.Step(StateVideoEntries, startEv("group", "media"), noEvents())
	require.NoError(t, err)
	assert.Equal(t, StateVideoEntries, next)
	assert.Empty(t, out)

	next, _, err = m.Step(StateVideoEntries, endEv("entry"), noEvents())
	require.NoError(t, err)
	assert.Equal(t, StateVideoEntries, next)
}

func TestStepVideoEntryFields(t *testing.T) {
	m := newTestMachine()

	c := NewCursor(eventSeq(textEv("Video"), endEv("title")))
	defer c.Close()
	_, out, err := m.Step(StateVideoEntry, startEv("title", ""), c)
	require.NoError(t, err)
	assert.Equal(t, textElement("title", "Video"), out)

	_, out, err = m.Step(StateVideoEntry, startEv("title", "media"), noEvents())
	require.NoError(t, err)
	assert.Empty(t, out)

	_, out, err = m.Step(StateVideoEntry, startEv("link", "", "rel", "alternate", "href", "https://www.youtube.com/watch?v=abc"), noEvents())
	require.NoError(t, err)
	assert.Equal(t, textElement("link", "https://www.youtube.com/watch?v=abc"), out)

	pc := NewCursor(eventSeq(textEv(" 2015-07-28T07:00:01-07:00 "), endEv("published")))
	defer pc.Close()
	_, out, err = m.Step(StateVideoEntry, startEv("published", ""), pc)
	require.NoError(t, err)
	assert.Equal(t, textElement("pubDate", "Tue, 28 Jul 2015 07:00:01 -0700"), out)
}

func TestStepVideoEntryContent(t *testing.T) {
	m := newTestMachine()
	c := NewCursor(eventSeq(
		endEv("content"),
		textEv("\n   "),
		startEv("thumbnail", "media", "url", "https://i.ytimg.com/vi/abc/hq.jpg", "width", "480", "height", "360"),
		endEv("thumbnail"),
		textEv("\n   "),
		startEv("description", "media"),
		textEv("about abc"),
		endEv("description"),
	))
	defer c.Close()

	content := startEv("content", "media", "url", "https://www.youtube.com/v/abc?version=3")
	next, out, err := m.Step(StateVideoEntry, content, c)
	require.NoError(t, err)
	assert.Equal(t, StateVideoEntries, next)

	thumb := Thumbnail{URL: "https://i.ytimg.com/vi/abc/hq.jpg", Width: 480, Height: 360}
	want := textElement("guid", "https://www.youtube.com/v/abc")
	want = append(want, textElement("description", DescriptionHTML(thumb, "about abc", "abc"))...)
	want = append(want, endElement())
	assert.Equal(t, want, out)
}

func TestStepVideoEntryContentThumbnailNamedContent(t *testing.T) {
	m := newTestMachine()
	c := NewCursor(eventSeq(
		endEv("content"),
		startEv("content", "media", "url", "https://i.ytimg.com/vi/abc/hq.jpg", "width", "120", "height", "90"),
		endEv("content"),
		endEv("group"),
	))
	defer c.Close()

	content := startEv("content", "media", "url", "https://www.youtube.com/v/abc")
	_, out, err := m.Step(StateVideoEntry, content, c)
	require.NoError(t, err)
	require.Len(t, out, 9)
	assert.Contains(t, out[5].Text, `width="120" height="90"`)
}

func TestStepVideoEntryErrors(t *testing.T) {
	m := newTestMachine()

	_, _, err := m.Step(StateVideoEntry, startEv("link", "", "rel", "alternate"), noEvents())
	assert.ErrorIs(t, err, ErrStructure)

	pc := NewCursor(eventSeq(textEv("yesterday"), endEv("published")))
	defer pc.Close()
	_, _, err = m.Step(StateVideoEntry, startEv("published", ""), pc)
	assert.ErrorIs(t, err, ErrDateFormat)

	_, _, err = m.Step(StateVideoEntry, startEv("content", "media"), noEvents())
	assert.ErrorIs(t, err, ErrStructure)

	tc := NewCursor(eventSeq(startEv("span", ""), endEv("span")))
	defer tc.Close()
	_, _, err = m.Step(StateVideoEntry, startEv("title", ""), tc)
	assert.ErrorIs(t, err, ErrStructure)

	_, out, err := m.Step(StateVideoEntry, startEv("entry", ""), noEvents())
	assert.ErrorIs(t, err, ErrStructure)
	assert.Empty(t, out)
}

func TestStepDocumentEnd(t *testing.T) {
	m := newTestMachine()
	end := ParseEvent{Kind: KindDocumentEnd}

	for _, state := range []State{StateChannelInfo, StateVideoEntries} {
		_, out, err := m.Step(state, end, noEvents())
		require.NoError(t, err, state.String())
		assert.Equal(t, []WriteEvent{endElement(), endElement()}, out)
	}
	for _, state := range []State{StateInitial, StateHeader, StateVideoEntry} {
		_, _, err := m.Step(state, end, noEvents())
		assert.ErrorIs(t, err, ErrStructure, state.String())
	}
}
