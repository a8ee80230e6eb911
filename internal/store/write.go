package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/seedkit/internal/metricquery"
	"github.com/roach88/seedkit/internal/provenance"
	"github.com/roach88/seedkit/internal/simulate"
)

// Batch is one seed run's output for a single tenant and source.
type Batch struct {
	TenantID  string
	Source    string
	CreatedAt string
	Campaigns []simulate.Campaign
	Rows      []simulate.MetricRow
}

// Counts reports rows written or removed.
type Counts struct {
	Campaigns  int64 `json:"campaigns"`
	MetricRows int64 `json:"metricRows"`
}

var campaignColumns = []string{"id", "tenant_id", "platform", "name", "is_mock_data", "source", "created_at"}

var metricColumns = []string{
	"id", "tenant_id", "campaign_id", "platform", "metric_date",
	"impressions", "clicks", "spend", "conversions", "revenue",
	"is_mock_data", "source",
}

// validate rejects batches that would write rows outside the batch's own
// tenant and toolkit provenance.
func (b Batch) validate() error {
	if b.TenantID == "" {
		return errors.New("tenant id is required")
	}
	if !provenance.IsToolkit(b.Source) {
		return fmt.Errorf("source %q does not carry the %q prefix", b.Source, provenance.SourcePrefix)
	}
	for _, c := range b.Campaigns {
		if c.TenantID != b.TenantID || c.Source != b.Source || !c.IsMockData {
			return fmt.Errorf("campaign %s is not tagged for tenant %s source %s", c.ID, b.TenantID, b.Source)
		}
	}
	for _, r := range b.Rows {
		if r.TenantID != b.TenantID || r.Source != b.Source || !r.IsMockData {
			return fmt.Errorf("metric row %s is not tagged for tenant %s source %s", r.ID, b.TenantID, b.Source)
		}
	}
	return nil
}

// ReplaceSeed replaces the tenant's rows for b.Source with the batch, in one
// transaction. Rows of other sources, other tenants and real data are never
// touched. Inserts run in batches throttled by the store's write limits.
func (s *Store) ReplaceSeed(ctx context.Context, b Batch) (Counts, error) {
	if err := b.validate(); err != nil {
		return Counts{}, fmt.Errorf("replace seed: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Counts{}, fmt.Errorf("replace seed: begin: %w", err)
	}
	defer tx.Rollback()

	// Metrics reference campaigns, so they go first.
	for _, table := range []string{"metrics", "campaigns"} {
		q := s.rebind("DELETE FROM " + table + " WHERE tenant_id = ? AND source = ? AND is_mock_data = ?")
		if _, err := tx.ExecContext(ctx, q, b.TenantID, b.Source, true); err != nil {
			return Counts{}, fmt.Errorf("replace seed: clear %s: %w", table, err)
		}
	}

	campaignRows := make([][]any, len(b.Campaigns))
	for i, c := range b.Campaigns {
		campaignRows[i] = []any{c.ID, c.TenantID, c.Platform, c.Name, c.IsMockData, c.Source, b.CreatedAt}
	}
	metricRows := make([][]any, len(b.Rows))
	for i, r := range b.Rows {
		metricRows[i] = []any{
			r.ID, r.TenantID, r.CampaignID, r.Platform, r.Date,
			r.Impressions, r.Clicks, r.Spend, r.Conversions, r.Revenue,
			r.IsMockData, r.Source,
		}
	}

	var counts Counts
	if counts.Campaigns, err = s.insertBatched(ctx, tx, "campaigns", campaignColumns, campaignRows); err != nil {
		return Counts{}, fmt.Errorf("replace seed: %w", err)
	}
	if counts.MetricRows, err = s.insertBatched(ctx, tx, "metrics", metricColumns, metricRows); err != nil {
		return Counts{}, fmt.Errorf("replace seed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Counts{}, fmt.Errorf("replace seed: commit: %w", err)
	}
	return counts, nil
}

// insertBatched inserts rows in multi-row INSERT statements of at most
// s.batchSize rows, waiting on the limiter before each statement.
func (s *Store) insertBatched(ctx context.Context, tx *sql.Tx, table string, columns []string, rows [][]any) (int64, error) {
	var total int64
	for start := 0; start < len(rows); start += s.batchSize {
		end := min(start+s.batchSize, len(rows))
		chunk := rows[start:end]

		if err := s.limiter.Wait(ctx); err != nil {
			return total, fmt.Errorf("insert %s: %w", table, err)
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES ", table, strings.Join(columns, ", "))
		tuple := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ") + ")"
		args := make([]any, 0, len(chunk)*len(columns))
		for i, row := range chunk {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(tuple)
			args = append(args, row...)
		}

		res, err := tx.ExecContext(ctx, s.rebind(sb.String()), args...)
		if err != nil {
			return total, fmt.Errorf("insert %s: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("insert %s: %w", table, err)
		}
		total += n
	}
	return total, nil
}

// PurgeMock removes every toolkit row of the tenant: rows flagged as mock
// data whose source carries the toolkit prefix. With dryRun it only counts
// what would be removed.
func (s *Store) PurgeMock(ctx context.Context, tenantID string, dryRun bool) (Counts, error) {
	if tenantID == "" {
		return Counts{}, errors.New("purge mock: tenant id is required")
	}

	where, args, err := metricquery.Compile(metricquery.Provenance(tenantID), s.dialect.Placeholder())
	if err != nil {
		return Counts{}, fmt.Errorf("purge mock: %w", err)
	}

	if dryRun {
		var counts Counts
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM metrics WHERE "+where, args...).Scan(&counts.MetricRows); err != nil {
			return Counts{}, fmt.Errorf("purge mock: count metrics: %w", err)
		}
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM campaigns WHERE "+where, args...).Scan(&counts.Campaigns); err != nil {
			return Counts{}, fmt.Errorf("purge mock: count campaigns: %w", err)
		}
		return counts, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Counts{}, fmt.Errorf("purge mock: begin: %w", err)
	}
	defer tx.Rollback()

	var counts Counts
	res, err := tx.ExecContext(ctx, "DELETE FROM metrics WHERE "+where, args...)
	if err != nil {
		return Counts{}, fmt.Errorf("purge mock: delete metrics: %w", err)
	}
	if counts.MetricRows, err = res.RowsAffected(); err != nil {
		return Counts{}, fmt.Errorf("purge mock: %w", err)
	}

	res, err = tx.ExecContext(ctx, "DELETE FROM campaigns WHERE "+where, args...)
	if err != nil {
		return Counts{}, fmt.Errorf("purge mock: delete campaigns: %w", err)
	}
	if counts.Campaigns, err = res.RowsAffected(); err != nil {
		return Counts{}, fmt.Errorf("purge mock: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Counts{}, fmt.Errorf("purge mock: commit: %w", err)
	}
	return counts, nil
}
