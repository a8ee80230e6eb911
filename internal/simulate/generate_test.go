package simulate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/seedkit/internal/failure"
	"github.com/roach88/seedkit/internal/scenario"
)

func testSpec(t *testing.T, trend scenario.Trend, days int) *scenario.Spec {
	t.Helper()
	spec, err := scenario.FromDocument("checkout-growth", map[string]any{
		"schemaVersion": "1.0.0",
		"name":          "Checkout growth",
		"trend":         string(trend),
		"days":          days,
	})
	require.NoError(t, err)
	return spec
}

func TestParsePlatforms(t *testing.T) {
	got, err := ParsePlatforms(" LINE, shopee,line ,lazada,")
	require.NoError(t, err)
	assert.Equal(t, []string{"line", "shopee", "lazada"}, got)

	all, err := ParsePlatforms("")
	require.NoError(t, err)
	assert.Equal(t, SeedablePlatforms(), all)
}

func TestParsePlatformsRejectsNonSeedable(t *testing.T) {
	_, err := ParsePlatforms("line,instagram,myspace")
	require.Error(t, err)

	assert.Equal(t, failure.CodePlatformNotSeedable, failure.CodeOf(err))
	assert.Equal(t, failure.ExitValidationFailed, failure.ExitCode(err))
	assert.Contains(t, err.Error(), "instagram, myspace")
	assert.Contains(t, err.Error(), "facebook, google_ads, lazada, line, shopee, tiktok")
}

func TestGenerateCounts(t *testing.T) {
	out := Generate(Input{
		Spec:      testSpec(t, scenario.TrendStable, 30),
		Seed:      42,
		Platforms: []string{"line", "shopee"},
		TenantID:  "tenant-a",
	})

	assert.Len(t, out.Campaigns, 2*CampaignsPerPlatform)
	assert.Len(t, out.Rows, 2*CampaignsPerPlatform*30)

	shape := ShapeOf(out)
	assert.Equal(t, 4, shape.TotalCampaigns)
	assert.Equal(t, 120, shape.TotalMetricRows)
	assert.Equal(t, 60, shape.PerPlatform["line"].MetricRows)
	assert.Equal(t, 2, shape.PerPlatform["shopee"].Campaigns)
}

func TestGenerateIsDeterministic(t *testing.T) {
	in := Input{Spec: testSpec(t, scenario.TrendGrowth, 10), Seed: 7, Platforms: []string{"tiktok", "line"}, TenantID: "t"}

	assert.Equal(t, Generate(in), Generate(in))

	other := in
	other.Seed = 8
	assert.NotEqual(t, Generate(in).Rows[0].Impressions, Generate(other).Rows[0].Impressions)
}

func TestGenerateDaysOverride(t *testing.T) {
	out := Generate(Input{Spec: testSpec(t, scenario.TrendStable, 30), Seed: 1, Days: 5, Platforms: []string{"line"}})
	assert.Len(t, out.Rows, CampaignsPerPlatform*5)
}

func TestGenerateRowsAreTaggedAndSane(t *testing.T) {
	out := Generate(Input{Spec: testSpec(t, scenario.TrendSpike, 7), Seed: 3, Platforms: SeedablePlatforms(), TenantID: "tenant-a"})

	ids := make(map[string]bool)
	for _, c := range out.Campaigns {
		assert.True(t, c.IsMockData)
		assert.Equal(t, "toolkit:checkout-growth", c.Source)
	}
	for _, r := range out.Rows {
		assert.True(t, r.IsMockData)
		assert.Equal(t, "toolkit:checkout-growth", r.Source)
		assert.Equal(t, "tenant-a", r.TenantID)
		assert.LessOrEqual(t, r.Clicks, r.Impressions)
		assert.LessOrEqual(t, r.Conversions, r.Clicks)
		assert.GreaterOrEqual(t, r.Spend, 0.0)
		assert.False(t, ids[r.ID], "duplicate row id %s", r.ID)
		ids[r.ID] = true
	}
}

func TestGenerateDateRangeEndsAtAnchor(t *testing.T) {
	out := Generate(Input{Spec: testSpec(t, scenario.TrendStable, 3), Seed: 1, Platforms: []string{"line"}})

	var dates []string
	for _, r := range out.Rows[:3] {
		dates = append(dates, r.Date)
	}
	assert.Equal(t, []string{"2023-12-30", "2023-12-31", "2024-01-01"}, dates)

	w := testSpec(t, scenario.TrendStable, 3).Window(0)
	for _, r := range out.Rows {
		assert.True(t, w.Contains(r.Date), r.Date)
	}
}

func TestTrendMultiplier(t *testing.T) {
	assert.Equal(t, 1.0, trendMultiplier(scenario.TrendStable, 9, 10))
	assert.InDelta(t, 1.03*1.03, trendMultiplier(scenario.TrendGrowth, 2, 10), 1e-9)
	assert.InDelta(t, 0.9, trendMultiplier(scenario.TrendDecline, 5, 10), 1e-9)
	assert.Equal(t, 0.2, trendMultiplier(scenario.TrendDecline, 100, 365))
	assert.Equal(t, 3.0, trendMultiplier(scenario.TrendSpike, 5, 10))
	assert.Equal(t, 1.0, trendMultiplier(scenario.TrendSpike, 4, 10))
}

func TestSamples(t *testing.T) {
	out := Generate(Input{Spec: testSpec(t, scenario.TrendStable, 2), Seed: 1, Platforms: []string{"line", "shopee", "tiktok"}})

	samples := Samples(out, 2)
	require.Len(t, samples, 2)
	assert.Equal(t, "line", samples[0]["platform"])
	assert.Equal(t, "shopee", samples[1]["platform"])
}
