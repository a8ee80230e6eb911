package verify

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/seedkit/internal/rules"
	"github.com/roach88/seedkit/internal/store"
)

// TestVerifyIsReadOnly runs a verification against a mocked database that
// only expects SELECTs. Any INSERT, UPDATE, DELETE or transaction would be an
// unexpected call and fail the run.
func TestVerifyIsReadOnly(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	db.SetMaxOpenConns(1)
	mock.MatchExpectationsInOrder(false)

	count := func(n int64) *sqlmock.Rows { return sqlmock.NewRows([]string{"count"}).AddRow(n) }

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM metrics WHERE .*\(metric_date < \?`).
		WithArgs("tenant-a", true, "toolkit:%", "2023-12-25", "2024-01-01").
		WillReturnRows(count(0))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM metrics WHERE tenant_id = \? AND is_mock_data = \? AND source LIKE \? ESCAPE '\\'$`).
		WithArgs("tenant-a", false, "toolkit:%").
		WillReturnRows(count(0))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM metrics WHERE .* BETWEEN`).
		WithArgs("tenant-a", true, "toolkit:%", "2023-12-25", "2024-01-01").
		WillReturnRows(count(28))
	mock.ExpectQuery(`GROUP BY campaign_id, platform, source`).
		WithArgs("tenant-a", true, "toolkit:%", "2023-12-25", "2024-01-01").
		WillReturnRows(sqlmock.NewRows([]string{"campaign_id", "platform", "source", "mock", "impressions", "clicks", "spend", "conversions", "revenue"}).
			AddRow("c-1", "line", "toolkit:steady-state", int64(1), int64(10000), int64(300), 150.0, int64(15), 600.0))

	svc := newTestService(t, store.New(db, store.DialectSQLite), Options{})
	res, err := svc.VerifyScenario(context.Background(), Request{ScenarioID: "steady-state", TenantID: "tenant-a"})
	require.NoError(t, err)

	assert.Equal(t, rules.StatusPass, res.Summary.Status)
	assert.Len(t, res.Results, 10)
	assert.NoError(t, mock.ExpectationsWereMet())
}
