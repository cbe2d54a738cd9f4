package transcoder

// State is the position of the transcoder within the Atom document.
// Values are ordered chronologically; the only backward transition is
// StateVideoEntry -> StateVideoEntries, once per finished item.
type State int

const (
	// StateInitial expects the document start.
	StateInitial State = iota
	// StateHeader expects the <feed> root element.
	StateHeader
	// StateChannelInfo maps feed-level metadata onto the RSS channel.
	StateChannelInfo
	// StateVideoEntries waits for the next <entry>.
	StateVideoEntries
	// StateVideoEntry maps the fields of a single <entry> onto an RSS item.
	StateVideoEntry
)

// String returns the string representation of a transcoder state.
func (s State) String() string {
	switch s {
	case StateInitial:
		return "initial"
	case StateHeader:
		return "header"
	case StateChannelInfo:
		return "channel-info"
	case StateVideoEntries:
		return "video-entries"
	case StateVideoEntry:
		return "video-entry"
	default:
		return "unknown"
	}
}
