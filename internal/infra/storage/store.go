// Package storage persists finished interview sessions.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/chadiek/mock-interview/internal/analysis"
)

// ErrNotFound is returned when a session record does not exist.
var ErrNotFound = errors.New("session record not found")

// Record is a finished session as handed to the persistence call.
type Record struct {
	SessionID  string               `json:"session_id"`
	UserID     string               `json:"user_id"`
	Role       string               `json:"role"`
	Difficulty int                  `json:"difficulty"`
	Persona    string               `json:"persona"`
	Transcript []analysis.Entry     `json:"transcript"`
	Report     analysis.ScoreReport `json:"report"`
	FinishedAt time.Time            `json:"finished_at"`
}

// Store saves finished sessions.
type Store interface {
	Save(ctx context.Context, rec Record) error
}
