package credits

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/supabase-community/supabase-go"
)

// SupabaseLedger deducts through a deduct_credits Postgres function exposed
// over PostgREST, which performs the conditional update server side.
type SupabaseLedger struct {
	client *supabase.Client
	table  string
}

// NewSupabaseLedger connects to the project at url.
func NewSupabaseLedger(url, serviceKey string) (*SupabaseLedger, error) {
	client, err := supabase.NewClient(url, serviceKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create Supabase client: %w", err)
	}
	return &SupabaseLedger{client: client, table: "credit_balances"}, nil
}

type balanceRow struct {
	Balance int `json:"balance"`
}

type deductResponse struct {
	Success   bool `json:"success"`
	Remaining int  `json:"remaining"`
}

func (s *SupabaseLedger) Balance(_ context.Context, userID string) (int, error) {
	var row balanceRow
	_, err := s.client.From(s.table).
		Select("balance", "", false).
		Eq("user_id", userID).
		Single().
		ExecuteTo(&row)
	if err != nil {
		return 0, fmt.Errorf("failed to read balance: %w", err)
	}
	return row.Balance, nil
}

func (s *SupabaseLedger) Deduct(_ context.Context, userID string, amount int) (DeductResult, error) {
	raw := s.client.Rpc("deduct_credits", "", map[string]any{
		"p_user_id": userID,
		"p_amount":  amount,
	})
	if raw == "" {
		return DeductResult{}, fmt.Errorf("deduct_credits: empty response")
	}
	var resp deductResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return DeductResult{}, fmt.Errorf("deduct_credits: decode %q: %w", raw, err)
	}
	return DeductResult{Success: resp.Success, Remaining: resp.Remaining}, nil
}
