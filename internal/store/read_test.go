package store

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/seedkit/internal/metricquery"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db, DialectPostgres), mock
}

func TestCountMetricsPostgresSQL(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(
		`SELECT COUNT(*) FROM metrics WHERE tenant_id = $1 AND is_mock_data = $2 AND source LIKE $3 ESCAPE '\'`)).
		WithArgs("tenant-a", true, "toolkit:%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(7)))

	n, err := s.CountMetrics(context.Background(), metricquery.Provenance("tenant-a"))
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAggregateMetricsScansRows(t *testing.T) {
	s, mock := newMockStore(t)

	cols := []string{"campaign_id", "platform", "source", "mock", "impressions", "clicks", "spend", "conversions", "revenue"}
	mock.ExpectQuery(`GROUP BY campaign_id, platform, source\s+ORDER BY platform ASC, campaign_id ASC`).
		WithArgs("tenant-a", true, "toolkit:%", "2023-12-02", "2024-01-01").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("c-1", "line", "toolkit:x", int64(1), int64(1000), int64(30), 15.5, int64(3), 60.0).
			AddRow("c-2", "shopee", "toolkit:x", int64(1), int64(500), int64(10), 5.0, int64(0), 0.0))

	pred := metricquery.AllOf(metricquery.Provenance("tenant-a"), metricquery.Within{From: "2023-12-02", To: "2024-01-01"})
	aggs, err := s.AggregateMetrics(context.Background(), pred)
	require.NoError(t, err)
	require.Len(t, aggs, 2)

	assert.Equal(t, Aggregate{
		CampaignID:  "c-1",
		Platform:    "line",
		Impressions: 1000,
		Clicks:      30,
		Spend:       15.5,
		Conversions: 3,
		Revenue:     60,
		IsMockData:  true,
		Source:      "toolkit:x",
	}, aggs[0])
	assert.Equal(t, "shopee", aggs[1].Platform)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReadErrorsAreWrapped(t *testing.T) {
	s, mock := newMockStore(t)
	boom := errors.New("connection reset")

	mock.ExpectQuery("SELECT COUNT").WillReturnError(boom)
	_, err := s.CountMetrics(context.Background(), metricquery.Provenance("t"))
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "count metrics")

	mock.ExpectQuery("GROUP BY").WillReturnError(boom)
	_, err = s.AggregateMetrics(context.Background(), metricquery.Provenance("t"))
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "aggregate metrics")
}

func TestReplaceSeedPostgresSQL(t *testing.T) {
	s, mock := newMockStore(t)
	s.SetWriteLimits(1, 0)
	b := generateBatch(t, "tenant-a", "line")
	b.Campaigns = b.Campaigns[:1]
	b.Rows = b.Rows[:1]
	b.Rows[0].CampaignID = b.Campaigns[0].ID

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM metrics WHERE tenant_id = $1 AND source = $2 AND is_mock_data = $3")).
		WithArgs("tenant-a", "toolkit:steady-state", true).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM campaigns WHERE tenant_id = $1 AND source = $2 AND is_mock_data = $3")).
		WithArgs("tenant-a", "toolkit:steady-state", true).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO campaigns (id, tenant_id, platform, name, is_mock_data, source, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO metrics (id, tenant_id, campaign_id, platform, metric_date, impressions, clicks, spend, conversions, revenue, is_mock_data, source) VALUES ($1,")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	counts, err := s.ReplaceSeed(context.Background(), b)
	require.NoError(t, err)
	assert.Equal(t, Counts{Campaigns: 1, MetricRows: 1}, counts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceSeedRollsBackOnInsertError(t *testing.T) {
	s, mock := newMockStore(t)
	b := generateBatch(t, "tenant-a", "line")

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM metrics").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM campaigns").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO campaigns").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err := s.ReplaceSeed(context.Background(), b)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}
