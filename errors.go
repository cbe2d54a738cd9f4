package ytrss

import (
	"ytrss/internal/retry"
	"ytrss/transcoder"
	"ytrss/upstream"
)

// Error handling types exported for library users.
//
// All error types support errors.Is for the sentinels and errors.As for the
// wrapper types.

// Translation errors.
var (
	// ErrEncoding reports a document declared in an encoding other than UTF-8.
	ErrEncoding = transcoder.ErrEncoding
	// ErrStructure reports a document that does not follow the YouTube feed layout.
	ErrStructure = transcoder.ErrStructure
	// ErrDateFormat reports a date that is not RFC 3339.
	ErrDateFormat = transcoder.ErrDateFormat
	// ErrSyntax reports malformed XML.
	ErrSyntax = transcoder.ErrSyntax
)

// Fetch errors.
var (
	ErrChannelNotFound  = upstream.ErrChannelNotFound
	ErrInvalidChannelID = upstream.ErrInvalidChannelID
	ErrCircuitOpen      = upstream.ErrCircuitOpen
)

type (
	// TranslationError describes where a translation failed.
	TranslationError = transcoder.TranslationError
	// FetchError wraps a failure to download a channel feed.
	FetchError = upstream.FetchError
	// RateLimitError is returned when YouTube throttles requests.
	RateLimitError = upstream.RateLimitError
	// HTTPError is an unexpected HTTP status from YouTube.
	HTTPError = upstream.HTTPError
	// RetryableError is returned once fetch retries are exhausted.
	RetryableError = retry.RetryableError
)

// Translate converts a YouTube Atom feed into RSS 2.0 with its self link at
// {baseURL}/channel/{channel id}.
func Translate(atom, baseURL string) (string, error) {
	return transcoder.Translate(atom, baseURL)
}
