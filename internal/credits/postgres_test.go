package credits

import (
	"context"
	"os"
	"sync"
	"testing"
)

// Runs only when TEST_DATABASE_URL points at a disposable Postgres.
func TestPostgresLedger_ConcurrentDeduct(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	ledger, err := OpenPostgresLedger(ctx, dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer ledger.Close()

	if _, err := ledger.db.ExecContext(ctx, `
		INSERT INTO credit_balances (user_id, balance) VALUES ('ledger-test', 1)
		ON CONFLICT (user_id) DO UPDATE SET balance = 1`); err != nil {
		t.Fatalf("seed: %v", err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := ledger.Deduct(ctx, "ledger-test", 1)
			if err != nil {
				t.Errorf("deduct: %v", err)
				return
			}
			if res.Success {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if granted != 1 {
		t.Fatalf("granted %d, want 1", granted)
	}
	if b, err := ledger.Balance(ctx, "ledger-test"); err != nil || b != 0 {
		t.Fatalf("balance=%d err=%v", b, err)
	}
}
