package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/urfave/cli/v2"

	"ytrss/cache"
	"ytrss/config"
	"ytrss/internal/atomicfile"
	"ytrss/server"
	"ytrss/transcoder"
	"ytrss/upstream"
)

func main() {
	app := newApp(os.Stdin, os.Stdout, os.Stderr)
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var (
	baseURLFlag = &cli.StringFlag{
		Name:    "base-url",
		Usage:   "public URL of the bridge; self links point at `URL`/channel/{id}",
		EnvVars: []string{"YTRSS_BASE_URL", "BASE_URL"},
	}
	sanitizeFlag = &cli.BoolFlag{
		Name:  "sanitize",
		Usage: "strip markup from video descriptions",
	}
	logLevelFlag = &cli.StringFlag{
		Name:  "log-level",
		Value: "warn",
		Usage: "diagnostics level: debug, info, warn or error",
	}
)

func newApp(stdin io.Reader, stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:      "ytrss",
		Usage:     "serve YouTube channel feeds as RSS 2.0",
		Writer:    stdout,
		ErrWriter: stderr,
		Commands: []*cli.Command{{
			Name:  "serve",
			Usage: "run the HTTP bridge until interrupted",
			Description: "Configuration is read from ytrss.yaml, " +
				"~/.config/ytrss/ytrss.yaml or YTRSS_CONFIG_FILE, then from " +
				"the environment (LISTENING_ADDRESS, BASE_URL, YTRSS_*).",
			Action: func(c *cli.Context) error {
				return serve(c.Context, stderr)
			},
		}, {
			Name:      "translate",
			Usage:     "translate a YouTube Atom document into RSS",
			ArgsUsage: "[FILE|-]",
			Flags: []cli.Flag{
				baseURLFlag,
				sanitizeFlag,
				logLevelFlag,
				&cli.StringFlag{
					Name:    "output",
					Aliases: []string{"o"},
					Usage:   "write the feed to `FILE` instead of stdout",
				},
			},
			Action: func(c *cli.Context) error {
				return translate(c, stdin, stdout, stderr)
			},
		}, {
			Name:      "fetch",
			Usage:     "fetch a channel's feed from YouTube and print it as RSS",
			ArgsUsage: "CHANNEL_ID",
			Flags: []cli.Flag{
				baseURLFlag,
				sanitizeFlag,
				logLevelFlag,
				&cli.DurationFlag{
					Name:  "timeout",
					Value: upstream.DefaultConfig().Timeout,
					Usage: "timeout for a single request to YouTube",
				},
				&cli.StringFlag{
					Name:   "endpoint",
					Value:  upstream.FeedEndpoint,
					Hidden: true,
				},
			},
			Action: func(c *cli.Context) error {
				return fetch(c, stdout, stderr)
			},
		}},
	}
}

func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l})), nil
}

func newTranscoder(logger *slog.Logger, sanitize bool) *transcoder.Transcoder {
	opts := []transcoder.Option{transcoder.WithLogger(logger)}
	if sanitize {
		opts = append(opts, transcoder.WithDescriptionSanitizer(bluemonday.StrictPolicy()))
	}
	return transcoder.New(opts...)
}

func requireBaseURL(c *cli.Context) (string, error) {
	baseURL := strings.TrimRight(c.String(baseURLFlag.Name), "/")
	if baseURL == "" {
		return "", errors.New("missing --base-url (or BASE_URL)")
	}
	return baseURL, nil
}

func serve(ctx context.Context, stderr io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	level, err := cfg.Level()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	client := upstream.New(cfg.Upstream(), upstream.WithLogger(logger))
	defer client.Close()

	var c cache.Cache = cache.NewMemory()
	if cfg.RedisAddr != "" {
		rc := cache.NewRedis(cache.NewRedisClient(cfg.RedisAddr, "", 0), "ytrss:feed:")
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := rc.Ping(pingCtx); err != nil {
			logger.Warn("redis unreachable, feeds are served uncached until it recovers",
				"addr", cfg.RedisAddr, "error", err)
		}
		cancel()
		c = rc
	}

	srv := server.New(server.Options{
		BaseURL:    cfg.BaseURL,
		Fetcher:    client,
		Translator: newTranscoder(logger, cfg.SanitizeDescriptions),
		Cache:      c,
		CacheTTL:   cfg.CacheTTL,
		Logger:     logger,
	})

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.Run(ctx, cfg.ListenAddr)
}

func translate(c *cli.Context, stdin io.Reader, stdout, stderr io.Writer) error {
	baseURL, err := requireBaseURL(c)
	if err != nil {
		return err
	}
	logger, err := newLogger(stderr, c.String(logLevelFlag.Name))
	if err != nil {
		return err
	}
	if c.NArg() > 1 {
		return fmt.Errorf("expected at most one input file, got %d", c.NArg())
	}

	in := stdin
	if name := c.Args().First(); name != "" && name != "-" {
		f, err := os.Open(name)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	rss, err := newTranscoder(logger, c.Bool(sanitizeFlag.Name)).TranslateReader(in, baseURL)
	if err != nil {
		return err
	}

	if out := c.String("output"); out != "" {
		return atomicfile.WriteFile(out, strings.NewReader(rss))
	}
	_, err = io.WriteString(stdout, rss)
	return err
}

func fetch(c *cli.Context, stdout, stderr io.Writer) error {
	baseURL, err := requireBaseURL(c)
	if err != nil {
		return err
	}
	logger, err := newLogger(stderr, c.String(logLevelFlag.Name))
	if err != nil {
		return err
	}
	if c.NArg() != 1 {
		return errors.New("expected exactly one CHANNEL_ID")
	}
	channelID := c.Args().First()

	cfg := upstream.DefaultConfig()
	cfg.Endpoint = c.String("endpoint")
	cfg.Timeout = c.Duration("timeout")
	client := upstream.New(cfg, upstream.WithLogger(logger))
	defer client.Close()

	atom, err := client.FetchChannel(c.Context, channelID)
	if err != nil {
		return err
	}
	rss, err := newTranscoder(logger, c.Bool(sanitizeFlag.Name)).Translate(string(atom), baseURL)
	if err != nil {
		return err
	}
	_, err = io.WriteString(stdout, rss)
	return err
}
