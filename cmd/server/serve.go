package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/chadiek/mock-interview/internal/analysis"
	"github.com/chadiek/mock-interview/internal/config"
	"github.com/chadiek/mock-interview/internal/credits"
	"github.com/chadiek/mock-interview/internal/httpserver"
	"github.com/chadiek/mock-interview/internal/infra/events"
	"github.com/chadiek/mock-interview/internal/infra/storage"
	"github.com/chadiek/mock-interview/internal/interview"
	"github.com/chadiek/mock-interview/internal/llm"
	"github.com/chadiek/mock-interview/internal/logging"
	"github.com/chadiek/mock-interview/internal/scorecard"
	"github.com/chadiek/mock-interview/internal/tts"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func loadConfig() (config.Config, *logrus.Logger) {
	boot := logging.New(logLevel)
	cfg := config.Load(boot)
	if logLevel == "" {
		logLevel = cfg.LogLevel
	}
	return cfg, logging.New(logLevel)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log := loadConfig()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ledger, closeLedger, err := openLedger(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeLedger()
	gate := credits.NewGate(ledger, log)

	store, closeStore, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	genOpts := scorecard.Options{
		Store:           store,
		AnalysisTimeout: cfg.AnalysisTimeout,
		Log:             log,
	}
	if cfg.AnalysisURL != "" {
		genOpts.Analyzer = analysis.NewClient(cfg.AnalysisURL, cfg.GenerationAPIKey)
	}
	if cfg.AMQPURL != "" {
		pub, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			log.WithError(err).Warn("amqp unavailable; analyzed events will not be published")
		} else {
			defer pub.Close()
			genOpts.Publisher = pub
		}
	}
	gen := scorecard.NewGenerator(genOpts)

	hub := httpserver.NewHub(log)
	var speaker httpserver.Speaker
	if synth := newSynthesizer(cfg, log); synth != nil {
		notifier := tts.NewNotifier(synth, hub, 32, log)
		go notifier.Run(ctx)
		defer notifier.Close()
		speaker = notifier
	}

	genClient := llm.NewGenerationClient(cfg.GenerationURL, cfg.GenerationAPIKey)
	srv := httpserver.New(httpserver.Options{
		Session: interview.Deps{
			Gate:         gate,
			NewTransport: func() interview.TurnSender { return llm.NewTransport(genClient, log) },
			Scorer:       gen,
			Log:          log,
		},
		Balances:  gate,
		Hub:       hub,
		Speaker:   speaker,
		Retention: cfg.SessionRetention,
		Log:       log,
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.HTTPAddress).Info("server listening")
		serverErrors <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("graceful shutdown failed")
		_ = server.Close()
	}
	// let in-flight scorecards finish persisting
	gen.Wait()
	return nil
}

func openLedger(ctx context.Context, cfg config.Config) (credits.Ledger, func(), error) {
	switch cfg.CreditBackend {
	case "postgres":
		l, err := credits.OpenPostgresLedger(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("open credit ledger: %w", err)
		}
		return l, func() { _ = l.Close() }, nil
	case "supabase":
		l, err := credits.NewSupabaseLedger(cfg.SupabaseURL, cfg.SupabaseServiceRoleKey)
		if err != nil {
			return nil, nil, fmt.Errorf("open credit ledger: %w", err)
		}
		return l, func() {}, nil
	case "memory", "":
		return credits.NewMemoryLedger(cfg.InitialCredits), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown CREDIT_BACKEND %q", cfg.CreditBackend)
}

func openStore(cfg config.Config, log logrus.FieldLogger) (storage.Store, func(), error) {
	switch cfg.StoreBackend {
	case "supabase":
		s, err := storage.NewSupabaseStore(storage.SupabaseConfig{
			URL:            cfg.SupabaseURL,
			ServiceRoleKey: cfg.SupabaseServiceRoleKey,
			Table:          cfg.SupabaseTable,
			Bucket:         cfg.SupabaseBucket,
			Log:            log,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("open store: %w", err)
		}
		return s, func() {}, nil
	case "sqlite", "":
		s, err := storage.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open store: %w", err)
		}
		return s, func() { _ = s.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
}

func newSynthesizer(cfg config.Config, log logrus.FieldLogger) tts.Synthesizer {
	switch cfg.TTSProvider {
	case "deepgram":
		if cfg.DeepgramKey != "" {
			return tts.NewDeepgramClient(cfg.DeepgramKey, cfg.DeepgramModel, log)
		}
	case "elevenlabs":
		if cfg.ElevenLabsKey != "" && cfg.ElevenLabsVoiceID != "" {
			return tts.NewElevenLabsClient(cfg.ElevenLabsKey, cfg.ElevenLabsVoiceID, log)
		}
	}
	return nil
}
