package transcoder

import (
	"fmt"
	"strconv"
	"strings"
)

// descriptionTemplate is the HTML body of every item. Podcast apps render the
// thumbnail first, so the <img> leads. Arguments: thumbnail url, width,
// height, description text, video id.
const descriptionTemplate = `
<img src="%s" alt="YouTube thumbnail" class="" loading="lazy" width="%d" height="%d" />
<p>%s</p>
<iframe
    allow="accelerometer; autoplay; clipboard-write; encrypted-media; gyroscope; picture-in-picture; web-share"
    allowfullscreen="allowfullscreen"
    loading="eager"
    referrerpolicy="strict-origin-when-cross-origin"
    src="https://www.youtube.com/embed/%s?autoplay=0&controls=1&end=0&loop=0&mute=0&start=0"
    style="position: absolute; top: 0; left: 0; width: 100%%; height: 100%%; border:0;"
    title="YouTube video">
</iframe>
`

// Thumbnail is the preview image of a single video.
type Thumbnail struct {
	URL    string
	Width  uint64
	Height uint64
}

// mediaContent is what the media:group of an entry contributes to its item.
type mediaContent struct {
	URL         string
	Thumbnail   Thumbnail
	Description string
}

// StripQuery returns u without its query suffix.
func StripQuery(u string) string {
	if i := strings.IndexByte(u, '?'); i >= 0 {
		return u[:i]
	}
	return u
}

// VideoID returns the last path segment of a media content URL, without
// any query suffix.
func VideoID(contentURL string) string {
	return StripQuery(contentURL[strings.LastIndexByte(contentURL, '/')+1:])
}

// ChannelID returns the text after the last '=' of a feed self link, or the
// whole href when it has none.
func ChannelID(selfHref string) string {
	return selfHref[strings.LastIndexByte(selfHref, '=')+1:]
}

// DescriptionHTML renders the item body for a video.
func DescriptionHTML(thumb Thumbnail, description, videoID string) string {
	return fmt.Sprintf(descriptionTemplate, thumb.URL, thumb.Width, thumb.Height, description, videoID)
}

// readMediaContent consumes the fixed layout that follows a media:content
// start inside media:group:
//
//	<media:content .../>
//	<media:thumbnail url="..." width="..." height="..."/>
//	<media:description>text</media:description>
//
// Whitespace between the elements is skipped. A missing thumbnail or
// description leaves the defaults in place.
//
// TODO: replace the fixed layout with a scan of all media:group children
// once the feed is seen to reorder them.
func readMediaContent(c *Cursor, start ParseEvent) (mediaContent, error) {
	var mc mediaContent

	url, ok := start.Attr("url")
	if !ok {
		return mc, structuralf(StateVideoEntry, start.Name.Local, "missing url attribute")
	}
	mc.URL = url

	ev, err := c.NextSignificant()
	if err != nil {
		return mc, err
	}
	if ev.Kind != KindEndElement {
		return mc, structuralf(StateVideoEntry, start.Name.Local, "expected empty element, got %s", ev.Kind)
	}

	ev, err = c.NextSignificant()
	if err != nil {
		return mc, err
	}
	if ev.IsStart("thumbnail") || ev.IsStart("content") {
		if mc.Thumbnail, err = parseThumbnail(ev); err != nil {
			return mc, err
		}
		end, err := c.NextSignificant()
		if err != nil {
			return mc, err
		}
		if end.Kind != KindEndElement {
			return mc, structuralf(StateVideoEntry, ev.Name.Local, "expected empty element, got %s", end.Kind)
		}
		if ev, err = c.NextSignificant(); err != nil {
			return mc, err
		}
	}

	if ev.IsStart("description") {
		body, err := c.Next()
		if err != nil {
			return mc, err
		}
		if body.Kind == KindText {
			mc.Description = body.Text
		}
	}
	return mc, nil
}

func parseThumbnail(ev ParseEvent) (Thumbnail, error) {
	var thumb Thumbnail
	thumb.URL, _ = ev.Attr("url")
	for _, dim := range []struct {
		name string
		dst  *uint64
	}{
		{"width", &thumb.Width},
		{"height", &thumb.Height},
	} {
		v, ok := ev.Attr(dim.name)
		if !ok {
			continue
		}
		n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 32)
		if err != nil {
			return thumb, &TranslationError{
				Kind:    ErrStructure,
				State:   StateVideoEntry,
				Element: ev.Name.Local,
				Err:     fmt.Errorf("%s attribute: %w", dim.name, err),
			}
		}
		*dim.dst = n
	}
	return thumb, nil
}
