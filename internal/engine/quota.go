package engine

// DefaultQuotas returns the built-in per-category daily caps.
// These are configuration, not user-editable state.
func DefaultQuotas() map[Category]int {
	return map[Category]int{
		CategoryGoalReminder:  8,
		CategoryCooldownEnd:   20,
		CategoryPetCheckIn:    3,
		CategoryPetStateAlert: 6,
		CategoryMotivational:  4,
		CategoryStreak:        5,
		CategoryDailySummary:  1,
		CategoryGeneral:       10,
	}
}

// resolveQuotas merges configured overrides onto the defaults.
// Non-positive overrides are ignored.
func resolveQuotas(overrides map[Category]int) map[Category]int {
	q := DefaultQuotas()
	for c, n := range overrides {
		if n > 0 {
			q[c] = n
		}
	}
	return q
}
