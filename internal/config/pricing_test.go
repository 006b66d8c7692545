package config

import (
	"math"
	"testing"
	"time"
)

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		t.Fatalf("parse date %q: %v", s, err)
	}
	return d
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestLookupPricingAt_UsesEffectiveDate(t *testing.T) {
	model := "test-model-windowed"
	orig, had := defaultPricingHistory[model]
	if had {
		defer func() { defaultPricingHistory[model] = orig }()
	} else {
		defer delete(defaultPricingHistory, model)
	}

	defaultPricingHistory[model] = []modelPricingVersion{
		{
			EffectiveFrom: mustDate(t, "2025-01-01"),
			Pricing:       ModelPricing{InputPerMTok: 1.0},
		},
		{
			EffectiveFrom: mustDate(t, "2025-07-01"),
			Pricing:       ModelPricing{InputPerMTok: 2.0},
		},
	}

	aprPrice, ok := LookupPricingAt(model, mustDate(t, "2025-04-15"))
	if !ok {
		t.Fatal("LookupPricingAt returned !ok for historical model")
	}
	if aprPrice.InputPerMTok != 1.0 {
		t.Fatalf("April price InputPerMTok = %.2f, want 1.0", aprPrice.InputPerMTok)
	}

	augPrice, ok := LookupPricingAt(model, mustDate(t, "2025-08-15"))
	if !ok {
		t.Fatal("LookupPricingAt returned !ok for historical model in later window")
	}
	if augPrice.InputPerMTok != 2.0 {
		t.Fatalf("August price InputPerMTok = %.2f, want 2.0", augPrice.InputPerMTok)
	}
}

func TestLookupPricingAt_DefaultHistoryRepricing(t *testing.T) {
	before, ok := LookupPricingAt("claude-3-5-haiku-20241022", mustDate(t, "2024-11-20"))
	if !ok {
		t.Fatal("LookupPricingAt returned !ok for claude-3-5-haiku")
	}
	if before.InputPerMTok != 1.00 || before.OutputPerMTok != 5.00 {
		t.Errorf("launch price = %+v, want $1/$5", before)
	}

	after, _ := LookupPricingAt("claude-3-5-haiku", mustDate(t, "2025-02-01"))
	if after != DefaultPricing["claude-3-5-haiku"] {
		t.Errorf("current price = %+v, want %+v", after, DefaultPricing["claude-3-5-haiku"])
	}

	latest, _ := LookupPricingAt("claude-3-5-haiku", time.Time{})
	if latest != after {
		t.Errorf("zero-time price = %+v, want latest %+v", latest, after)
	}

	table := NewPriceTable(PricingOverrides{})
	old := table.Cost("claude-3-5-haiku", mustDate(t, "2024-11-20"), 1_000_000, 0)
	cur := table.Cost("claude-3-5-haiku", mustDate(t, "2025-02-01"), 1_000_000, 0)
	if !almostEqual(old, 1.00) || !almostEqual(cur, 0.80) {
		t.Errorf("costs = %.2f / %.2f, want 1.00 / 0.80", old, cur)
	}
}

func TestDefaultPricingHistory_EndsAtDefaultPricing(t *testing.T) {
	for name, pricing := range DefaultPricing {
		versions := defaultPricingHistory[name]
		if len(versions) == 0 {
			t.Errorf("%s: no history", name)
			continue
		}
		if got := versions[len(versions)-1].Pricing; got != pricing {
			t.Errorf("%s: latest history price = %+v, want %+v", name, got, pricing)
		}
		for i := 1; i < len(versions); i++ {
			if !versions[i-1].EffectiveFrom.Before(versions[i].EffectiveFrom) {
				t.Errorf("%s: history not sorted at %d", name, i)
			}
		}
	}
}

func TestNormalizeModelName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"claude-3-opus-20240229", "claude-3-opus"},
		{"claude-3-5-sonnet-20241022", "claude-3-5-sonnet"},
		{"claude-3-5-haiku-latest", "claude-3-5-haiku"},
		{"claude-sonnet-4-5", "claude-sonnet-4-5"},
		{"claude-next-20990101", "claude-next-20990101"},
		{"gpt-4", "gpt-4"},
	}
	for _, tt := range tests {
		if got := NormalizeModelName(tt.in); got != tt.want {
			t.Errorf("NormalizeModelName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPriceTable_OpusMillionTokens(t *testing.T) {
	table := NewPriceTable(PricingOverrides{})
	got := table.Cost("claude-3-opus-20240229", time.Now(), 1_000_000, 1_000_000)
	if !almostEqual(got, 90) {
		t.Fatalf("Cost = %.6f, want 90", got)
	}
}

func TestPriceTable_UnknownModelUsesFallback(t *testing.T) {
	table := NewPriceTable(PricingOverrides{})
	p, known := table.Lookup("some-future-model", time.Time{})
	if known {
		t.Fatal("Lookup reported unknown model as known")
	}
	if p != FallbackPricing {
		t.Fatalf("Lookup = %+v, want fallback %+v", p, FallbackPricing)
	}
	got := table.Cost("some-future-model", time.Time{}, 1_000_000, 0)
	if !almostEqual(got, FallbackPricing.InputPerMTok) {
		t.Fatalf("Cost = %.6f, want %.2f", got, FallbackPricing.InputPerMTok)
	}
}

func TestPriceTable_Overrides(t *testing.T) {
	in := 1.5
	table := NewPriceTable(PricingOverrides{Overrides: map[string]ModelPricingOverride{
		"claude-3-haiku-20240307": {InputPerMTok: &in},
	}})

	p, known := table.Lookup("claude-3-haiku", time.Time{})
	if !known {
		t.Fatal("Lookup returned !known for overridden model")
	}
	if p.InputPerMTok != 1.5 {
		t.Fatalf("InputPerMTok = %.2f, want 1.5", p.InputPerMTok)
	}
	if p.OutputPerMTok != 1.25 {
		t.Fatalf("OutputPerMTok = %.2f, want default 1.25", p.OutputPerMTok)
	}
}

func TestPriceTable_NilUsesDefaults(t *testing.T) {
	var table *PriceTable
	got := table.Cost("claude-3-haiku", time.Time{}, 1_000_000, 1_000_000)
	if !almostEqual(got, 1.5) {
		t.Fatalf("Cost = %.6f, want 1.5", got)
	}
}

func TestKnownModels(t *testing.T) {
	models := KnownModels()
	if len(models) != len(DefaultPricing) {
		t.Fatalf("KnownModels() len = %d, want %d", len(models), len(DefaultPricing))
	}
	for i := 1; i < len(models); i++ {
		if models[i-1] < models[i] {
			t.Fatalf("KnownModels() not sorted descending at %d: %q < %q", i, models[i-1], models[i])
		}
	}
}
