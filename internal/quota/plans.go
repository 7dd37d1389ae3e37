package quota

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Tier is a subscription plan.
type Tier string

const (
	TierFree      Tier = "free"
	TierBasic     Tier = "basic"
	TierPro       Tier = "pro"
	TierUnlimited Tier = "unlimited"
)

// NormalizeTier maps stored plan names onto a Tier. "premium" is the legacy
// name of basic; anything unrecognized is free.
func NormalizeTier(s string) Tier {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "basic", "premium":
		return TierBasic
	case "pro":
		return TierPro
	case "unlimited":
		return TierUnlimited
	default:
		return TierFree
	}
}

// ParseTier is the strict form of NormalizeTier for operator input: unknown
// names are reported instead of falling back to free.
func ParseTier(s string) (Tier, bool) {
	switch t := strings.ToLower(strings.TrimSpace(s)); t {
	case "free", "basic", "premium", "pro", "unlimited":
		return NormalizeTier(t), true
	}
	return "", false
}

// Feature is a metered AI capability.
type Feature string

const (
	FeatureSearch   Feature = "search"
	FeatureAnalysis Feature = "analysis"
	FeatureInsights Feature = "insights"
)

func ParseFeature(s string) (Feature, bool) {
	switch Feature(strings.ToLower(strings.TrimSpace(s))) {
	case FeatureSearch:
		return FeatureSearch, true
	case FeatureAnalysis:
		return FeatureAnalysis, true
	case FeatureInsights:
		return FeatureInsights, true
	}
	return "", false
}

// Limits holds the two daily allowance tables.
//
// Photo analysis and insights are priced per plan tier. Text search is
// priced per identity kind (anonymous device, free account, paid account).
// The two tables stay separate: search is the free on-ramp and is metered
// even for devices that have no plan at all.
type Limits struct {
	Analysis map[Tier]int `yaml:"analysis"`
	Search   SearchLimits `yaml:"search"`
}

type SearchLimits struct {
	Device int `yaml:"device"`
	Free   int `yaml:"free"`
	Paid   int `yaml:"paid"`
}

// DefaultLimits returns the production allowance tables.
func DefaultLimits() Limits {
	return Limits{
		Analysis: map[Tier]int{
			TierFree:      0,
			TierBasic:     3,
			TierPro:       8,
			TierUnlimited: Unbounded,
		},
		Search: SearchLimits{Device: 1, Free: 25, Paid: 60},
	}
}

// For returns the daily limit for a feature. An identity without an account
// is only ever allowed to search.
func (l Limits) For(f Feature, tier Tier, authenticated bool) int {
	if f == FeatureSearch {
		switch {
		case !authenticated:
			return l.Search.Device
		case tier == TierFree:
			return l.Search.Free
		default:
			return l.Search.Paid
		}
	}
	if !authenticated {
		return 0
	}
	limit, ok := l.Analysis[tier]
	if !ok {
		return l.Analysis[TierFree]
	}
	return limit
}

// Check rejects unknown tier names and limits below Unbounded.
func (l Limits) Check() error {
	var errs []error
	tiers := make([]string, 0, len(l.Analysis))
	for k := range l.Analysis {
		tiers = append(tiers, string(k))
	}
	sort.Strings(tiers)
	for _, k := range tiers {
		if _, ok := ParseTier(k); !ok {
			errs = append(errs, fmt.Errorf("quota: unknown plan tier %q in analysis limits", k))
		}
		if v := l.Analysis[Tier(k)]; v < Unbounded {
			errs = append(errs, fmt.Errorf("quota: analysis limit for %q must be %d or more, got %d", k, Unbounded, v))
		}
	}
	for name, v := range map[string]int{"device": l.Search.Device, "free": l.Search.Free, "paid": l.Search.Paid} {
		if v < Unbounded {
			errs = append(errs, fmt.Errorf("quota: search limit %q must be %d or more, got %d", name, Unbounded, v))
		}
	}
	return errors.Join(errs...)
}

// Merge overlays o onto l. Every analysis entry present in o replaces the
// base value, zero included, so a tier can be switched off. Search limits are
// only replaced when non-zero.
func (l Limits) Merge(o Limits) Limits {
	out := Limits{Analysis: make(map[Tier]int, len(l.Analysis)), Search: l.Search}
	for k, v := range l.Analysis {
		out.Analysis[k] = v
	}
	for k, v := range o.Analysis {
		out.Analysis[NormalizeTier(string(k))] = v
	}
	if o.Search.Device != 0 {
		out.Search.Device = o.Search.Device
	}
	if o.Search.Free != 0 {
		out.Search.Free = o.Search.Free
	}
	if o.Search.Paid != 0 {
		out.Search.Paid = o.Search.Paid
	}
	return out
}
