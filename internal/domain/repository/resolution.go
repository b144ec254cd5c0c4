package repository

// Resolution is the candle bucket size requested from a market data provider.
type Resolution string

const (
	ResolutionDaily   Resolution = "D"
	ResolutionWeekly  Resolution = "W"
	ResolutionMonthly Resolution = "M"
)

// IsValidResolution returns true if r is a supported resolution.
func IsValidResolution(r Resolution) bool {
	switch r {
	case ResolutionDaily, ResolutionWeekly, ResolutionMonthly:
		return true
	default:
		return false
	}
}

// NormalizeResolution converts a raw string to a valid resolution, defaulting to daily.
func NormalizeResolution(s string) Resolution {
	r := Resolution(s)
	if IsValidResolution(r) {
		return r
	}
	return ResolutionDaily
}
