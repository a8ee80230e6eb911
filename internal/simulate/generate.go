// Package simulate produces deterministic synthetic advertising metrics.
//
// Output is a pure function of the scenario, seed, day count and platform
// list: the same inputs always yield the same campaigns and rows, byte for
// byte, and the row count is platforms x CampaignsPerPlatform x days.
package simulate

import (
	"fmt"
	"hash/fnv"
	"math"
	"math/rand/v2"

	"github.com/google/uuid"

	"github.com/roach88/seedkit/internal/fixture"
	"github.com/roach88/seedkit/internal/provenance"
	"github.com/roach88/seedkit/internal/scenario"
)

// CampaignsPerPlatform is the number of campaigns generated per platform.
const CampaignsPerPlatform = 2

// idNamespace scopes the name-based UUIDs of generated rows.
var idNamespace = uuid.MustParse("6f1c3a8e-4b7d-5e2f-9a10-3c5d7e9f1b24")

// Campaign is a generated campaign.
type Campaign struct {
	ID         string `json:"id"`
	TenantID   string `json:"tenantId"`
	Platform   string `json:"platform"`
	Name       string `json:"name"`
	IsMockData bool   `json:"isMockData"`
	Source     string `json:"source"`
}

// MetricRow is one campaign-day of generated metrics.
type MetricRow struct {
	ID          string  `json:"id"`
	TenantID    string  `json:"tenantId"`
	CampaignID  string  `json:"campaignId"`
	Platform    string  `json:"platform"`
	Date        string  `json:"date"`
	Impressions int64   `json:"impressions"`
	Clicks      int64   `json:"clicks"`
	Spend       float64 `json:"spend"`
	Conversions int64   `json:"conversions"`
	Revenue     float64 `json:"revenue"`
	IsMockData  bool    `json:"isMockData"`
	Source      string  `json:"source"`
}

// Input parameterises one generation.
type Input struct {
	Spec      *scenario.Spec
	Seed      int64
	Days      int
	Platforms []string
	TenantID  string
}

// Output is the generated data set.
type Output struct {
	Campaigns []Campaign
	Rows      []MetricRow
}

// Generate builds campaigns and daily metric rows for every platform.
// Dates run from anchor-(days-1) through the anchor day.
func Generate(in Input) Output {
	days := in.Spec.EffectiveDays(in.Days)
	anchor := in.Spec.Anchor()
	source := provenance.Source(in.Spec.ScenarioID)
	base := float64(in.Spec.Impressions())

	out := Output{
		Campaigns: make([]Campaign, 0, len(in.Platforms)*CampaignsPerPlatform),
		Rows:      make([]MetricRow, 0, len(in.Platforms)*CampaignsPerPlatform*days),
	}

	for _, platform := range in.Platforms {
		rng := rand.New(rand.NewPCG(uint64(in.Seed), platformStream(platform)))

		for c := 1; c <= CampaignsPerPlatform; c++ {
			campaign := Campaign{
				ID:         nameID(in.TenantID, in.Spec.ScenarioID, platform, in.Seed, c, -1),
				TenantID:   in.TenantID,
				Platform:   platform,
				Name:       fmt.Sprintf("[mock] %s %s %d", in.Spec.Name, platform, c),
				IsMockData: true,
				Source:     source,
			}
			out.Campaigns = append(out.Campaigns, campaign)

			scale := 0.8 + 0.4*rng.Float64()
			ctr := 0.01 + 0.04*rng.Float64()
			cvr := 0.02 + 0.08*rng.Float64()
			cpc := 0.2 + 1.3*rng.Float64()
			aov := 10 + 50*rng.Float64()

			for i := 0; i < days; i++ {
				noise := 0.9 + 0.2*rng.Float64()
				impressions := int64(math.Round(base * scale * trendMultiplier(in.Spec.Trend, i, days) * noise))
				clicks := int64(math.Round(float64(impressions) * ctr))
				conversions := int64(math.Round(float64(clicks) * cvr))

				out.Rows = append(out.Rows, MetricRow{
					ID:          nameID(in.TenantID, in.Spec.ScenarioID, platform, in.Seed, c, i),
					TenantID:    in.TenantID,
					CampaignID:  campaign.ID,
					Platform:    platform,
					Date:        anchor.AddDate(0, 0, i-(days-1)).Format(scenario.DateLayout),
					Impressions: impressions,
					Clicks:      clicks,
					Spend:       round2(float64(clicks) * cpc),
					Conversions: conversions,
					Revenue:     round2(float64(conversions) * aov),
					IsMockData:  true,
					Source:      source,
				})
			}
		}
	}
	return out
}

// trendMultiplier returns the scale applied on day i of days.
func trendMultiplier(t scenario.Trend, i, days int) float64 {
	switch t {
	case scenario.TrendGrowth:
		return math.Pow(1.03, float64(i))
	case scenario.TrendDecline:
		return math.Max(0.2, 1-0.02*float64(i))
	case scenario.TrendSpike:
		if i == days/2 {
			return 3
		}
		return 1
	default:
		return 1
	}
}

// ShapeOf summarises out.
func ShapeOf(out Output) fixture.Shape {
	shape := fixture.Shape{
		TotalCampaigns:  len(out.Campaigns),
		TotalMetricRows: len(out.Rows),
		PerPlatform:     make(map[string]fixture.PlatformShape),
	}
	for _, c := range out.Campaigns {
		ps := shape.PerPlatform[c.Platform]
		ps.Campaigns++
		shape.PerPlatform[c.Platform] = ps
	}
	for _, r := range out.Rows {
		ps := shape.PerPlatform[r.Platform]
		ps.MetricRows++
		shape.PerPlatform[r.Platform] = ps
	}
	return shape
}

// Samples returns up to n rows, one per platform first, as generic maps for
// embedding in a fixture.
func Samples(out Output, n int) []map[string]any {
	samples := make([]map[string]any, 0, n)
	seen := make(map[string]bool)
	for _, r := range out.Rows {
		if len(samples) >= n {
			break
		}
		if seen[r.Platform] {
			continue
		}
		seen[r.Platform] = true
		samples = append(samples, map[string]any{
			"platform":    r.Platform,
			"date":        r.Date,
			"impressions": r.Impressions,
			"clicks":      r.Clicks,
			"spend":       r.Spend,
			"conversions": r.Conversions,
			"revenue":     r.Revenue,
		})
	}
	return samples
}

func platformStream(platform string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(platform))
	return h.Sum64()
}

func nameID(tenant, scenarioID, platform string, seed int64, campaign, day int) string {
	name := fmt.Sprintf("%s|%s|%s|%d|%d|%d", tenant, scenarioID, platform, seed, campaign, day)
	return uuid.NewSHA1(idNamespace, []byte(name)).String()
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
