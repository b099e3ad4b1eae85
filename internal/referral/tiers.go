package referral

// Tier maps a range of lifetime completed-referral counts to a reward
// multiplier. Multipliers are held in integer percent so reward math stays
// exact in minor currency units.
type Tier struct {
	Min     int64
	Max     int64 // -1 marks the open-ended final range
	Percent int64
}

// DefaultTiers is the immutable multiplier schedule: ranges are ordered and
// disjoint, and multipliers never decrease as the count grows.
var DefaultTiers = []Tier{
	{Min: 0, Max: 2, Percent: 100},
	{Min: 3, Max: 5, Percent: 120},
	{Min: 6, Max: 10, Percent: 150},
	{Min: 11, Max: 20, Percent: 180},
	{Min: 21, Max: 50, Percent: 200},
	{Min: 51, Max: 100, Percent: 250},
	{Min: 101, Max: -1, Percent: 300},
}

// Multiplier returns the percent multiplier of the range containing count.
func Multiplier(tiers []Tier, count int64) int64 {
	for _, t := range tiers {
		if count >= t.Min && (t.Max < 0 || count <= t.Max) {
			return t.Percent
		}
	}
	// Counts are non-negative and the schedule starts at zero; falling through
	// means a malformed schedule, treat it as the base multiplier.
	return 100
}

// Next returns the first tier whose range starts strictly above count, or false
// once count sits in the final open range.
func Next(tiers []Tier, count int64) (Tier, bool) {
	for _, t := range tiers {
		if t.Min > count {
			return t, true
		}
	}
	return Tier{}, false
}

// totalPossible is the retroactively repriced lifetime earning: the whole
// completed history valued at the multiplier of the current count.
func totalPossible(tiers []Tier, count, baseReward int64) int64 {
	return count * baseReward * Multiplier(tiers, count) / 100
}
