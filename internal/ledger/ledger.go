package ledger

import (
	"context"
	"fmt"

	"github.com/hopkins385/mcp-google-vertex/internal/infra"
)

// Entry records one completed generation call for usage accounting.
type Entry struct {
	RequestID  string
	Kind       string
	Model      string
	Prompt     string
	ItemCount  int
	DurationMS int64
	CostUSD    float64
}

// Recorder persists generation entries. Implementations must be safe for
// concurrent use.
type Recorder interface {
	Record(ctx context.Context, entry Entry) error
}

// Noop discards every entry. It stands in when no database is configured.
type Noop struct{}

func (Noop) Record(context.Context, Entry) error { return nil }

// PGLedger persists entries into PostgreSQL.
type PGLedger struct {
	db infra.SQLExecutor
}

// NewPGLedger creates a ledger backed by PostgreSQL.
func NewPGLedger(db infra.SQLExecutor) *PGLedger {
	return &PGLedger{db: db}
}

// EnsureSchema creates the ledger table when it does not exist yet.
func (l *PGLedger) EnsureSchema(ctx context.Context) error {
	query := `
CREATE TABLE IF NOT EXISTS generation_ledger (
    id BIGSERIAL PRIMARY KEY,
    request_id TEXT NOT NULL,
    kind TEXT NOT NULL,
    model TEXT NOT NULL,
    prompt TEXT NOT NULL DEFAULT '',
    item_count INT NOT NULL DEFAULT 0,
    duration_ms BIGINT NOT NULL DEFAULT 0,
    cost_usd NUMERIC(10, 4) NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`
	if _, err := l.db.Exec(ctx, query); err != nil {
		return fmt.Errorf("ensure ledger schema: %w", err)
	}
	return nil
}

// Totals reports the lifetime entry count and accumulated cost.
func (l *PGLedger) Totals(ctx context.Context) (int64, float64, error) {
	row := l.db.QueryRow(ctx, `SELECT COUNT(*), COALESCE(SUM(cost_usd), 0) FROM generation_ledger;`)
	var entries int64
	var costUSD float64
	if err := row.Scan(&entries, &costUSD); err != nil {
		return 0, 0, fmt.Errorf("read ledger totals: %w", err)
	}
	return entries, costUSD, nil
}

// Record inserts a single entry.
func (l *PGLedger) Record(ctx context.Context, entry Entry) error {
	query := `
INSERT INTO generation_ledger (request_id, kind, model, prompt, item_count, duration_ms, cost_usd)
VALUES ($1, $2, $3, $4, $5, $6, $7);
`
	_, err := l.db.Exec(ctx, query,
		entry.RequestID,
		entry.Kind,
		entry.Model,
		entry.Prompt,
		entry.ItemCount,
		entry.DurationMS,
		entry.CostUSD,
	)
	return err
}

var (
	_ Recorder = (*PGLedger)(nil)
	_ Recorder = Noop{}
)
