package quota

// Tier is a named subscription plan determining the usage threshold.
// The storage layer does not reject values outside the known set: a
// webhook-derived tier name falls back to the default policy instead.
type Tier string

const (
	TierFree    Tier = "free"
	TierBasic   Tier = "basic"
	TierPro     Tier = "pro"
	TierPremium Tier = "premium"
)

// Policy holds the static per-tier constraints. Rank orders plans by value
// (free < basic < pro < premium) for upgrade/downgrade direction checks.
type Policy struct {
	Threshold int64
	Rank      int
}

var tierPolicies = map[Tier]Policy{
	TierFree:    {Threshold: 10, Rank: 0},
	TierBasic:   {Threshold: 50, Rank: 1},
	TierPro:     {Threshold: 100, Rank: 2},
	TierPremium: {Threshold: 500, Rank: 3},
}

// PolicyFor returns the policy for a tier. Unknown tier names resolve to the
// free-tier policy so provider-side price renames degrade gracefully instead
// of breaking billing sync.
func PolicyFor(tier Tier) Policy {
	if p, ok := tierPolicies[tier]; ok {
		return p
	}
	return tierPolicies[TierFree]
}

// ThresholdFor returns the usage threshold for a tier, total over all inputs.
func ThresholdFor(tier Tier) int64 {
	return PolicyFor(tier).Threshold
}

// KnownTier reports whether the tier belongs to the closed plan set.
func KnownTier(tier Tier) bool {
	_, ok := tierPolicies[tier]
	return ok
}

// ParseTier normalizes a stored tier value. Unknown or missing values default
// to free.
func ParseTier(s string) Tier {
	if KnownTier(Tier(s)) {
		return Tier(s)
	}
	return TierFree
}
