// Package credits gates session start on an atomic credit deduction.
package credits

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// SessionCost is the number of credits one practice session consumes.
const SessionCost = 1

// ErrUnknownUser is returned by ledgers that have no account for the user.
var ErrUnknownUser = errors.New("unknown credit account")

// DeductResult mirrors the ledger's deduct response.
type DeductResult struct {
	Success   bool
	Remaining int
}

// Ledger is the credit store. Deduct must be atomic: it either removes
// exactly amount credits or leaves the balance untouched and reports
// Success=false.
type Ledger interface {
	Balance(ctx context.Context, userID string) (int, error)
	Deduct(ctx context.Context, userID string, amount int) (DeductResult, error)
}

// Outcome of CheckAndStart. Granted=false means the balance was insufficient.
type Outcome struct {
	Granted   bool
	Remaining int
}

// Gate decides whether a session may start.
type Gate struct {
	ledger Ledger
	log    logrus.FieldLogger
}

// NewGate returns a gate over ledger.
func NewGate(ledger Ledger, log logrus.FieldLogger) *Gate {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Gate{ledger: ledger, log: log}
}

// CheckAndStart performs the gated deduction. Insufficient balance is a
// normal outcome, not an error; errors are ledger failures.
func (g *Gate) CheckAndStart(ctx context.Context, userID string) (Outcome, error) {
	res, err := g.ledger.Deduct(ctx, userID, SessionCost)
	if err != nil {
		return Outcome{}, fmt.Errorf("deduct credits: %w", err)
	}
	log := g.log.WithFields(logrus.Fields{"user_id": userID, "remaining": res.Remaining})
	if !res.Success {
		log.Info("insufficient credits to start session")
		return Outcome{Granted: false, Remaining: res.Remaining}, nil
	}
	log.Info("credit deducted for session start")
	return Outcome{Granted: true, Remaining: res.Remaining}, nil
}

// Balance is for display only and must not gate a start.
func (g *Gate) Balance(ctx context.Context, userID string) (int, error) {
	return g.ledger.Balance(ctx, userID)
}
