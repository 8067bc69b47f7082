package models

// Tier represents the model capability tier assigned to an agent.
// Tiers are mapped to concrete model names in configuration so the
// orchestration core never hardcodes model identifiers.
type Tier string

const (
	// TierReliable is the cheapest, most dependable tier. Used by the
	// single-agent fallback loop.
	TierReliable Tier = "reliable"
	// TierStandard is the default implementation tier (worker).
	TierStandard Tier = "standard"
	// TierAdvanced is the high-capability planning tier (manager).
	TierAdvanced Tier = "advanced"
)

// Valid returns true if the tier is a known value.
func (t Tier) Valid() bool {
	switch t {
	case TierReliable, TierStandard, TierAdvanced:
		return true
	default:
		return false
	}
}
