package transcoder

import (
	"encoding/xml"
	"fmt"
	"iter"
	"strings"
	"time"
)

const testBaseURL = "https://rss.example.org"

// sampleFeed mirrors https://www.youtube.com/feeds/videos.xml?channel_id=UCuAXFkgsw1L7xaCfnd5JJOw
const sampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns:yt="http://www.youtube.com/xml/schemas/2015" xmlns:media="http://search.yahoo.com/mrss/" xmlns="http://www.w3.org/2005/Atom">
 <link rel="self" href="http://www.youtube.com/feeds/videos.xml?channel_id=UCuAXFkgsw1L7xaCfnd5JJOw"/>
 <id>yt:channel:uAXFkgsw1L7xaCfnd5JJOw</id>
 <yt:channelId>uAXFkgsw1L7xaCfnd5JJOw</yt:channelId>
 <title>Rick Astley</title>
 <link rel="alternate" href="https://www.youtube.com/channel/UCuAXFkgsw1L7xaCfnd5JJOw"/>
 <author>
  <name>Rick Astley</name>
  <uri>https://www.youtube.com/channel/UCuAXFkgsw1L7xaCfnd5JJOw</uri>
 </author>
 <published>2015-05-01T00:00:00+00:00</published>
 <entry>
  <id>yt:video:dQw4w9WgXcQ</id>
  <yt:videoId>dQw4w9WgXcQ</yt:videoId>
  <yt:channelId>UCuAXFkgsw1L7xaCfnd5JJOw</yt:channelId>
  <title>Never Gonna Give You Up</title>
  <link rel="alternate" href="https://www.youtube.com/watch?v=dQw4w9WgXcQ"/>
  <author>
   <name>Rick Astley</name>
   <uri>https://www.youtube.com/channel/UCuAXFkgsw1L7xaCfnd5JJOw</uri>
  </author>
  <published>2009-10-25T06:57:33+00:00</published>
  <updated>2024-03-01T10:00:00+00:00</updated>
  <media:group>
   <media:title>Never Gonna Give You Up</media:title>
   <media:content url="https://www.youtube.com/v/dQw4w9WgXcQ?version=3" type="application/x-shockwave-flash" width="640" height="390"/>
   <media:thumbnail url="https://i4.ytimg.com/vi/dQw4w9WgXcQ/hqdefault.jpg" width="480" height="360"/>
   <media:description>The official video for “Never Gonna Give You Up” by Rick Astley</media:description>
   <media:community>
    <media:starRating count="18000000" average="5.00" min="1" max="5"/>
    <media:statistics views="1500000000"/>
   </media:community>
  </media:group>
 </entry>
 <entry>
  <id>yt:video:yPYZpwSpKmA</id>
  <yt:videoId>yPYZpwSpKmA</yt:videoId>
  <yt:channelId>UCuAXFkgsw1L7xaCfnd5JJOw</yt:channelId>
  <title>Together Forever &amp; Ever</title>
  <link rel="alternate" href="https://www.youtube.com/watch?v=yPYZpwSpKmA"/>
  <author>
   <name>Rick Astley</name>
   <uri>https://www.youtube.com/channel/UCuAXFkgsw1L7xaCfnd5JJOw</uri>
  </author>
  <published>2015-07-28T07:00:01-07:00</published>
  <updated>2024-03-01T10:00:00+00:00</updated>
  <media:group>
   <media:title>Together Forever &amp; Ever</media:title>
   <media:content url="https://www.youtube.com/v/yPYZpwSpKmA?version=3" type="application/x-shockwave-flash" width="640" height="390"/>
   <media:thumbnail url="https://i1.ytimg.com/vi/yPYZpwSpKmA/hqdefault.jpg" width="480" height="360"/>
   <media:description><![CDATA[Remastered in 4K]]> and more</media:description>
   <media:community>
    <media:starRating count="1000" average="5.00" min="1" max="5"/>
    <media:statistics views="100000"/>
   </media:community>
  </media:group>
 </entry>
</feed>`

// feed builds a minimal YouTube-shaped feed around the given entries.
func feed(title, channelID string, entries ...string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns:yt="http://www.youtube.com/xml/schemas/2015" xmlns:media="http://search.yahoo.com/mrss/" xmlns="http://www.w3.org/2005/Atom">
 <link rel="self" href="http://www.youtube.com/feeds/videos.xml?channel_id=%s"/>
 <title>%s</title>
 <link rel="alternate" href="https://www.youtube.com/channel/%s"/>
 <published>2020-01-01T00:00:00+00:00</published>
%s
</feed>`, channelID, title, channelID, strings.Join(entries, "\n"))
}

// entry builds a single YouTube-shaped entry.
func entry(title, published, contentURL, thumbURL string, width, height int, description string) string {
	return fmt.Sprintf(` <entry>
  <id>yt:video:x</id>
  <title>%s</title>
  <link rel="alternate" href="https://www.youtube.com/watch?v=%s"/>
  <published>%s</published>
  <media:group>
   <media:title>%s</media:title>
   <media:content url="%s" type="application/x-shockwave-flash" width="%d" height="%d"/>
   <media:thumbnail url="%s" width="%d" height="%d"/>
   <media:description>%s</media:description>
  </media:group>
 </entry>`, title, VideoID(contentURL), published, title, contentURL, width, height, thumbURL, width, height, description)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// eventSeq replays a fixed list of events.
func eventSeq(events ...ParseEvent) iter.Seq2[ParseEvent, error] {
	return func(yield func(ParseEvent, error) bool) {
		for _, ev := range events {
			if !yield(ev, nil) {
				return
			}
		}
	}
}

func startEv(local, prefix string, attrs ...string) ParseEvent {
	ev := ParseEvent{Kind: KindStartElement, Name: xml.Name{Local: local}, Prefix: prefix}
	for i := 0; i+1 < len(attrs); i += 2 {
		ev.Attrs = append(ev.Attrs, attr(attrs[i], attrs[i+1]))
	}
	return ev
}

func endEv(local string) ParseEvent {
	return ParseEvent{Kind: KindEndElement, Name: xml.Name{Local: local}}
}

func textEv(s string) ParseEvent {
	return ParseEvent{Kind: KindText, Text: s}
}

// rssDocument is the subset of RSS 2.0 the transcoder produces.
type rssDocument struct {
	XMLName  xml.Name     `xml:"rss"`
	Version  string       `xml:"version,attr"`
	Channels []rssChannel `xml:"channel"`
}

type rssChannel struct {
	AtomLink      rssAtomLink `xml:"http://www.w3.org/2005/Atom link"`
	Links         []rssLink   `xml:"link"`
	Title         string      `xml:"title"`
	Description   string      `xml:"description"`
	LastBuildDate string      `xml:"lastBuildDate"`
	Items         []rssItem   `xml:"item"`
}

type rssAtomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
	Type string `xml:"type,attr"`
}

type rssLink struct {
	XMLName xml.Name
	Value   string `xml:",chardata"`
}

type rssItem struct {
	Titles      []string `xml:"title"`
	Link        string   `xml:"link"`
	PubDate     string   `xml:"pubDate"`
	GUID        string   `xml:"guid"`
	Description string   `xml:"description"`
}

// channelLink returns the plain RSS <link> of a channel.
func (c rssChannel) channelLink() string {
	for _, l := range c.Links {
		if l.XMLName.Space == "" {
			return l.Value
		}
	}
	return ""
}
