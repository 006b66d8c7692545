package config

import (
	"sort"
	"strings"
	"time"
)

// ModelPricing holds per-million-token prices for a model.
type ModelPricing struct {
	InputPerMTok  float64
	OutputPerMTok float64
}

type modelPricingVersion struct {
	EffectiveFrom time.Time
	Pricing       ModelPricing
}

// FallbackPricing is charged for models missing from the table.
var FallbackPricing = ModelPricing{InputPerMTok: 3.00, OutputPerMTok: 15.00}

// DefaultPricing maps model base names to their pricing.
var DefaultPricing = map[string]ModelPricing{
	"claude-opus-4-5":   {InputPerMTok: 5.00, OutputPerMTok: 25.00},
	"claude-opus-4-1":   {InputPerMTok: 15.00, OutputPerMTok: 75.00},
	"claude-opus-4":     {InputPerMTok: 15.00, OutputPerMTok: 75.00},
	"claude-sonnet-4-5": {InputPerMTok: 3.00, OutputPerMTok: 15.00},
	"claude-sonnet-4":   {InputPerMTok: 3.00, OutputPerMTok: 15.00},
	"claude-haiku-4-5":  {InputPerMTok: 1.00, OutputPerMTok: 5.00},
	"claude-3-7-sonnet": {InputPerMTok: 3.00, OutputPerMTok: 15.00},
	"claude-3-5-sonnet": {InputPerMTok: 3.00, OutputPerMTok: 15.00},
	"claude-3-5-haiku":  {InputPerMTok: 0.80, OutputPerMTok: 4.00},
	"claude-3-opus":     {InputPerMTok: 15.00, OutputPerMTok: 75.00},
	"claude-3-sonnet":   {InputPerMTok: 3.00, OutputPerMTok: 15.00},
	"claude-3-haiku":    {InputPerMTok: 0.25, OutputPerMTok: 1.25},
}

// KnownModels returns the priced model base names in reverse name order.
func KnownModels() []string {
	names := make([]string, 0, len(DefaultPricing))
	for name := range DefaultPricing {
		names = append(names, name)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names
}

// pricingChanges lists prices that were charged before a model's current
// DefaultPricing entry took effect. The last entry per model marks the
// date the current price started.
var pricingChanges = map[string][]modelPricingVersion{
	// Launched at $1/$5, cut to $0.80/$4.
	"claude-3-5-haiku": {
		{Pricing: ModelPricing{InputPerMTok: 1.00, OutputPerMTok: 5.00}},
		{EffectiveFrom: time.Date(2024, time.December, 3, 0, 0, 0, 0, time.UTC)},
	},
}

// defaultPricingHistory stores effective-dated prices for each model.
// Entries must be sorted by EffectiveFrom ascending.
var defaultPricingHistory = makeDefaultPricingHistory(DefaultPricing, pricingChanges)

func makeDefaultPricingHistory(base map[string]ModelPricing, changes map[string][]modelPricingVersion) map[string][]modelPricingVersion {
	history := make(map[string][]modelPricingVersion, len(base))
	for modelName, pricing := range base {
		dated := changes[modelName]
		if len(dated) == 0 {
			history[modelName] = []modelPricingVersion{{Pricing: pricing}}
			continue
		}
		versions := make([]modelPricingVersion, len(dated))
		copy(versions, dated)
		versions[len(versions)-1].Pricing = pricing
		history[modelName] = versions
	}
	return history
}

func hasPricingModel(model string) bool {
	if _, ok := defaultPricingHistory[model]; ok {
		return true
	}
	_, ok := DefaultPricing[model]
	return ok
}

// NormalizeModelName strips date and alias suffixes from model identifiers.
// e.g., "claude-3-opus-20240229" -> "claude-3-opus"
func NormalizeModelName(raw string) string {
	raw = strings.TrimSpace(raw)
	if hasPricingModel(raw) {
		return raw
	}

	parts := strings.Split(raw, "-")
	if len(parts) >= 2 {
		last := parts[len(parts)-1]
		if (isAllDigits(last) && len(last) >= 8) || last == "latest" {
			candidate := strings.Join(parts[:len(parts)-1], "-")
			if hasPricingModel(candidate) {
				return candidate
			}
		}
	}

	return raw
}

func isAllDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return len(s) > 0
}

// LookupPricingAt returns the pricing for a model at the given timestamp.
// If at is zero, the latest known pricing entry is used.
func LookupPricingAt(model string, at time.Time) (ModelPricing, bool) {
	normalized := NormalizeModelName(model)
	versions, ok := defaultPricingHistory[normalized]
	if !ok || len(versions) == 0 {
		p, fallback := DefaultPricing[normalized]
		return p, fallback
	}

	if at.IsZero() {
		return versions[len(versions)-1].Pricing, true
	}

	at = at.UTC()
	selected := versions[0].Pricing
	for _, v := range versions {
		if v.EffectiveFrom.IsZero() || !at.Before(v.EffectiveFrom.UTC()) {
			selected = v.Pricing
			continue
		}
		break
	}
	return selected, true
}

// PriceTable resolves prices with user overrides layered over the defaults.
type PriceTable struct {
	overrides map[string]ModelPricingOverride
}

// NewPriceTable builds a table from the [pricing] section of the config.
func NewPriceTable(p PricingOverrides) *PriceTable {
	o := make(map[string]ModelPricingOverride, len(p.Overrides))
	for name, ov := range p.Overrides {
		o[NormalizeModelName(name)] = ov
	}
	return &PriceTable{overrides: o}
}

// Lookup returns the pricing in effect at the given time. The boolean is
// false when the model is unknown and FallbackPricing was used.
func (t *PriceTable) Lookup(model string, at time.Time) (ModelPricing, bool) {
	pricing, known := LookupPricingAt(model, at)
	if !known {
		pricing = FallbackPricing
	}
	if t == nil {
		return pricing, known
	}
	if ov, ok := t.overrides[NormalizeModelName(model)]; ok {
		if ov.InputPerMTok != nil {
			pricing.InputPerMTok = *ov.InputPerMTok
		}
		if ov.OutputPerMTok != nil {
			pricing.OutputPerMTok = *ov.OutputPerMTok
		}
		known = true
	}
	return pricing, known
}

// Cost computes the estimated cost in USD for a single request.
func (t *PriceTable) Cost(model string, at time.Time, promptTokens, completionTokens int64) float64 {
	pricing, _ := t.Lookup(model, at)
	cost := float64(promptTokens) * pricing.InputPerMTok / 1_000_000
	cost += float64(completionTokens) * pricing.OutputPerMTok / 1_000_000
	return cost
}
