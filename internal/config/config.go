package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config holds application configuration.
type Config struct {
	HTTPAddress      string
	LogLevel         string
	SessionRetention time.Duration

	GenerationURL    string
	GenerationAPIKey string
	AnalysisURL      string
	AnalysisTimeout  time.Duration

	CreditBackend  string
	DatabaseURL    string
	InitialCredits int

	StoreBackend           string
	SQLitePath             string
	SupabaseURL            string
	SupabaseServiceRoleKey string
	SupabaseTable          string
	SupabaseBucket         string

	AMQPURL      string
	AMQPExchange string

	TTSProvider       string
	DeepgramKey       string
	DeepgramModel     string
	ElevenLabsKey     string
	ElevenLabsVoiceID string
}

// Load reads .env (when present) and the environment and returns Config
// with sane defaults. Missing provider keys are logged and degrade the
// feature that needs them.
func Load(log logrus.FieldLogger) Config {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if err := godotenv.Load(); err != nil {
		log.Debug("no .env file loaded")
	}

	cfg := Config{
		HTTPAddress:      env("HTTP_ADDRESS", ":8080"),
		LogLevel:         env("LOG_LEVEL", "info"),
		SessionRetention: envDuration(log, "SESSION_RETENTION", 15*time.Minute),

		GenerationURL:    os.Getenv("GENERATION_URL"),
		GenerationAPIKey: os.Getenv("GENERATION_API_KEY"),
		AnalysisURL:      os.Getenv("ANALYSIS_URL"),
		AnalysisTimeout:  envDuration(log, "ANALYSIS_TIMEOUT", 45*time.Second),

		CreditBackend:  strings.ToLower(env("CREDIT_BACKEND", "memory")),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		InitialCredits: envInt(log, "INITIAL_CREDITS", 5),

		StoreBackend:           strings.ToLower(env("STORE_BACKEND", "sqlite")),
		SQLitePath:             env("SQLITE_PATH", "interviews.sqlite"),
		SupabaseURL:            os.Getenv("SUPABASE_URL"),
		SupabaseServiceRoleKey: os.Getenv("SUPABASE_SERVICE_ROLE_KEY"),
		SupabaseTable:          env("SUPABASE_TABLE", "interview_sessions"),
		SupabaseBucket:         os.Getenv("SUPABASE_BUCKET"),

		AMQPURL:      os.Getenv("AMQP_URL"),
		AMQPExchange: env("AMQP_EXCHANGE", "interview.analyzed"),

		TTSProvider:       strings.ToLower(env("TTS_PROVIDER", "none")),
		DeepgramKey:       os.Getenv("DEEPGRAM_API_KEY"),
		DeepgramModel:     env("DEEPGRAM_MODEL", "aura-2-thalia-en"),
		ElevenLabsKey:     os.Getenv("ELEVENLABS_API_KEY"),
		ElevenLabsVoiceID: os.Getenv("ELEVENLABS_VOICE_ID"),
	}

	if cfg.GenerationURL == "" {
		log.Warn("GENERATION_URL not set - interview turns will fail and fall back")
	}
	if cfg.AnalysisURL == "" {
		log.Warn("ANALYSIS_URL not set - only provisional scorecards will be produced")
	}
	switch cfg.TTSProvider {
	case "deepgram":
		if cfg.DeepgramKey == "" {
			log.Warn("DEEPGRAM_API_KEY not set - speech will not work")
		}
	case "elevenlabs":
		if cfg.ElevenLabsKey == "" || cfg.ElevenLabsVoiceID == "" {
			log.Warn("ELEVENLABS_API_KEY or ELEVENLABS_VOICE_ID not set - speech will not work")
		}
	}

	log.WithFields(logrus.Fields{
		"http_address": cfg.HTTPAddress,
		"credits":      cfg.CreditBackend,
		"store":        cfg.StoreBackend,
		"tts":          cfg.TTSProvider,
	}).Info("config loaded")
	return cfg
}

func env(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(log logrus.FieldLogger, key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.WithField("key", key).Warnf("invalid integer %q, using %d", v, def)
		return def
	}
	return n
}

func envDuration(log logrus.FieldLogger, key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.WithField("key", key).Warnf("invalid duration %q, using %s", v, def)
		return def
	}
	return d
}
