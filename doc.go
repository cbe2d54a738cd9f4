// Package ytrss bridges YouTube channel feeds to RSS 2.0.
//
// YouTube publishes every channel's uploads as an Atom document at
// https://www.youtube.com/feeds/videos.xml?channel_id={id}. Many feed readers
// handle RSS better than YouTube's Atom flavour, so ytrss rewrites the feed
// into a fixed RSS 2.0 layout: one channel with a self link pointing back at
// the bridge, and one item per video whose description embeds the thumbnail
// and a player.
//
// Quick Start
//
// Translate an Atom document you already have:
//
//	rss, err := ytrss.Translate(atom, "https://rss.example.org")
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(rss)
//
// The self link of the result is https://rss.example.org/channel/{id}.
//
// Serving
//
// The ytrss command (see cli/) runs an HTTP server answering
// GET /channel/{channel id} with the translated feed:
//
//	BASE_URL=https://rss.example.org LISTENING_ADDRESS=0.0.0.0:8080 ytrss serve
//
// Configuration
//
// Settings are loaded from several sources:
//
//   1. Environment variables (highest priority)
//   2. Config file (ytrss.yaml or ~/.config/ytrss/ytrss.yaml)
//   3. Default values (lowest priority)
//
// Environment variables:
//
//   - LISTENING_ADDRESS / YTRSS_LISTENING_ADDRESS: server bind address
//   - BASE_URL / YTRSS_BASE_URL: public URL of the bridge (required)
//   - YTRSS_CACHE_TTL: how long translated feeds are cached
//   - YTRSS_REDIS_ADDR: share the cache through Redis
//   - YTRSS_MAX_RETRIES, YTRSS_INITIAL_BACKOFF, YTRSS_MAX_BACKOFF: fetch retries
//   - YTRSS_LOG_LEVEL: debug, info, warn or error
//
// Error Handling
//
// Translation failures match one of the sentinel kinds:
//
//	if errors.Is(err, ytrss.ErrDateFormat) {
//		fmt.Println("feed carries an unparseable date")
//	}
//
// and carry the state and element they occurred in:
//
//	var terr *ytrss.TranslationError
//	if errors.As(err, &terr) {
//		fmt.Printf("failed in %s at <%s>\n", terr.State, terr.Element)
//	}
//
// Advanced Usage
//
// For more control, use the sub-packages directly:
//
//   - transcoder: the streaming Atom to RSS translation
//   - upstream: fetching feeds with retries, rate limiting and circuit breaking
//   - cache: in-memory and Redis caches of translated feeds
//   - server: the HTTP bridge
//   - config: configuration management
package ytrss
