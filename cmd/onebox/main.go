package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/ShriramNarkhede/Email-OneBox/pkg/classify"
	"github.com/ShriramNarkhede/Email-OneBox/pkg/config"
	"github.com/ShriramNarkhede/Email-OneBox/pkg/email"
	"github.com/ShriramNarkhede/Email-OneBox/pkg/imap"
	"github.com/ShriramNarkhede/Email-OneBox/pkg/index"
	"github.com/ShriramNarkhede/Email-OneBox/pkg/ingest"
	"github.com/ShriramNarkhede/Email-OneBox/pkg/notify"
	"github.com/ShriramNarkhede/Email-OneBox/pkg/reply"
	"github.com/ShriramNarkhede/Email-OneBox/pkg/vector"
)

// Filled at build time with the -X linker flag.
var (
	Version = "0.1.0"
	Commit  = "unknown"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	suggestFor := flag.String("suggest-reply", "", "print a reply suggestion for the given message id and exit")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("onebox %s (%s)\n", Version, Commit)
		return
	}

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *configPath).Msg("Failed to load configuration")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		log = log.Level(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	idx, err := index.OpenSQLite(cfg.Index.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open mail index")
	}
	defer idx.Close()
	if err := idx.EnsureSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to prepare index schema")
	}

	store := vector.NewStore()
	if cfg.Reply.ProductInfo != "" {
		store.Upsert("product_context", cfg.Reply.ProductInfo)
	}
	if cfg.Reply.MeetingLink != "" {
		store.Upsert("meeting_link", "Meetings can be booked at "+cfg.Reply.MeetingLink)
	}

	if *suggestFor != "" {
		resolver := reply.NewResolver(log, idx, store, cfg.Reply)
		suggestion, err := resolver.SuggestReply(ctx, *suggestFor)
		if err != nil {
			log.Fatal().Err(err).Str("id", *suggestFor).Msg("Failed to compose reply suggestion")
		}
		fmt.Println(suggestion.Reply)
		return
	}

	var channels []notify.Notifier
	if cfg.Slack.WebhookURL != "" {
		channels = append(channels, notify.NewSlackNotifier(cfg.Slack.WebhookURL))
	}
	if cfg.Webhook.URL != "" {
		channels = append(channels, notify.NewWebhookNotifier(cfg.Webhook.URL))
	}
	notifier := notify.NewMulti(log, channels...)

	pipeline := email.NewPipeline(log, classify.NewKeywordClassifier(), idx, notifier)

	factory := func(account config.Account, l zerolog.Logger) ingest.Session {
		return imap.NewSession(account, l)
	}
	coordinator := ingest.NewCoordinator(log, cfg.Accounts, cfg.SyncDays, factory, pipeline)

	log.Info().
		Str("version", Version).
		Int("accounts", len(cfg.Accounts)).
		Int("sync_days", cfg.SyncDays).
		Msg("Starting onebox")

	if err := coordinator.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start ingestion")
	}

	<-ctx.Done()
	log.Info().Msg("Shutdown signal received")
	coordinator.Shutdown()
}
