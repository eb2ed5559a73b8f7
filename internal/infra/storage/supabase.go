package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/supabase-community/supabase-go"
)

// SupabaseConfig selects the table and, optionally, a bucket that receives a
// JSON archive of each transcript.
type SupabaseConfig struct {
	URL            string
	ServiceRoleKey string
	Table          string
	Bucket         string
	Log            logrus.FieldLogger
}

// SupabaseStore implements Store on a Supabase project.
type SupabaseStore struct {
	client *supabase.Client
	table  string
	bucket string
	log    logrus.FieldLogger
}

// NewSupabaseStore constructs a store from cfg.
func NewSupabaseStore(cfg SupabaseConfig) (*SupabaseStore, error) {
	if cfg.URL == "" || cfg.ServiceRoleKey == "" {
		return nil, fmt.Errorf("missing Supabase configuration: SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY required")
	}
	client, err := supabase.NewClient(cfg.URL, cfg.ServiceRoleKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create Supabase client: %w", err)
	}
	table := cfg.Table
	if table == "" {
		table = "interview_sessions"
	}
	log := cfg.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &SupabaseStore{client: client, table: table, bucket: cfg.Bucket, log: log}, nil
}

type sessionRow struct {
	ID         string          `json:"id"`
	UserID     string          `json:"user_id"`
	Role       string          `json:"role"`
	Difficulty int             `json:"difficulty"`
	Persona    string          `json:"persona"`
	Overall    int             `json:"overall_score"`
	Report     json.RawMessage `json:"report"`
	Transcript json.RawMessage `json:"transcript"`
	FinishedAt string          `json:"finished_at"`
}

func (s *SupabaseStore) Save(_ context.Context, rec Record) error {
	report, err := json.Marshal(rec.Report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	transcript, err := json.Marshal(rec.Transcript)
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}
	row := sessionRow{
		ID:         rec.SessionID,
		UserID:     rec.UserID,
		Role:       rec.Role,
		Difficulty: rec.Difficulty,
		Persona:    rec.Persona,
		Overall:    rec.Report.Overall,
		Report:     report,
		Transcript: transcript,
		FinishedAt: rec.FinishedAt.UTC().Format(time.RFC3339Nano),
	}
	if _, _, err := s.client.From(s.table).Insert(row, false, "", "minimal", "").Execute(); err != nil {
		return fmt.Errorf("failed to insert session into Supabase: %w", err)
	}

	if s.bucket == "" {
		return nil
	}
	key := fmt.Sprintf("%s/%s.json", rec.UserID, rec.SessionID)
	// the row is the record of truth; a missing archive is only logged
	if _, err := s.client.Storage.UploadFile(s.bucket, key, bytes.NewReader(transcript)); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{"session_id": rec.SessionID, "bucket": s.bucket}).Warn("transcript archive upload failed")
	}
	return nil
}
