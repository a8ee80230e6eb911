package store

import (
	"context"
	"fmt"

	"github.com/roach88/seedkit/internal/metricquery"
)

// Aggregate is the per-campaign sum of metric rows matching a predicate.
type Aggregate struct {
	CampaignID  string
	Platform    string
	Impressions int64
	Clicks      int64
	Spend       float64
	Conversions int64
	Revenue     float64
	IsMockData  bool
	Source      string
}

// CountMetrics returns the number of metric rows matching pred.
func (s *Store) CountMetrics(ctx context.Context, pred metricquery.Predicate) (int64, error) {
	where, args, err := metricquery.Compile(pred, s.dialect.Placeholder())
	if err != nil {
		return 0, fmt.Errorf("count metrics: %w", err)
	}

	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM metrics WHERE "+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count metrics: %w", err)
	}
	return n, nil
}

// aggregateColumns is the SELECT list of AggregateMetrics.
const aggregateColumns = `campaign_id, platform, source,
		MIN(CASE WHEN is_mock_data THEN 1 ELSE 0 END),
		CAST(SUM(impressions) AS BIGINT),
		CAST(SUM(clicks) AS BIGINT),
		CAST(SUM(spend) AS DOUBLE PRECISION),
		CAST(SUM(conversions) AS BIGINT),
		CAST(SUM(revenue) AS DOUBLE PRECISION)`

// AggregateMetrics sums the rows matching pred per campaign.
// Results are ordered by platform then campaign id.
//
// Returns an empty slice (not nil) if no rows match.
func (s *Store) AggregateMetrics(ctx context.Context, pred metricquery.Predicate) ([]Aggregate, error) {
	where, args, err := metricquery.Compile(pred, s.dialect.Placeholder())
	if err != nil {
		return nil, fmt.Errorf("aggregate metrics: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+aggregateColumns+`
		FROM metrics
		WHERE `+where+`
		GROUP BY campaign_id, platform, source
		ORDER BY platform ASC, campaign_id ASC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("aggregate metrics: %w", err)
	}
	defer rows.Close()

	aggregates := []Aggregate{}
	for rows.Next() {
		var (
			a    Aggregate
			mock int64
		)
		if err := rows.Scan(
			&a.CampaignID,
			&a.Platform,
			&a.Source,
			&mock,
			&a.Impressions,
			&a.Clicks,
			&a.Spend,
			&a.Conversions,
			&a.Revenue,
		); err != nil {
			return nil, fmt.Errorf("scan aggregate: %w", err)
		}
		a.IsMockData = mock == 1
		aggregates = append(aggregates, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate aggregates: %w", err)
	}

	return aggregates, nil
}
