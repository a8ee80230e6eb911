package simulate

import (
	"sort"
	"strings"

	"github.com/roach88/seedkit/internal/failure"
)

// seedable is the capability set of platforms the generator can produce.
var seedable = map[string]bool{
	"facebook":   true,
	"google_ads": true,
	"lazada":     true,
	"line":       true,
	"shopee":     true,
	"tiktok":     true,
}

// SeedablePlatforms returns the seedable platforms in sorted order.
func SeedablePlatforms() []string {
	out := make([]string, 0, len(seedable))
	for p := range seedable {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// IsSeedable reports whether platform can be generated.
func IsSeedable(platform string) bool {
	return seedable[platform]
}

// ParsePlatforms parses a comma-separated platform list such as
// "line,shopee,lazada". Entries are trimmed, lowercased and de-duplicated
// with first-seen order kept. An empty list selects every seedable platform.
//
// Any entry outside the seedable set fails with PLATFORM_NOT_SEEDABLE naming
// every offender and the allowed set.
func ParsePlatforms(csv string) ([]string, error) {
	var out, rejected []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(csv, ",") {
		p := strings.ToLower(strings.TrimSpace(part))
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		if !IsSeedable(p) {
			rejected = append(rejected, p)
			continue
		}
		out = append(out, p)
	}

	if len(rejected) > 0 {
		allowed := SeedablePlatforms()
		return nil, failure.Input(failure.CodePlatformNotSeedable,
			"platform(s) not seedable: %s (allowed: %s)",
			strings.Join(rejected, ", "), strings.Join(allowed, ", ")).
			WithDetail("rejected", rejected).
			WithDetail("allowed", allowed)
	}
	if len(out) == 0 {
		return SeedablePlatforms(), nil
	}
	return out, nil
}
