package engine

import "time"

// QuietWindow is a daily do-not-disturb window [StartHour, 24) + [0, EndHour)
// in the engine's location. Times inside the window are deferred to EndHour,
// never advanced: the adjusted time is max(original, shifted).
//
// StartHour == EndHour disables the window.
type QuietWindow struct {
	StartHour int // inclusive, e.g. 22
	EndHour   int // exclusive, e.g. 8
}

// DefaultQuietWindow is [22:00, 08:00) local time.
func DefaultQuietWindow() QuietWindow { return QuietWindow{StartHour: 22, EndHour: 8} }

// Contains reports whether t's hour-of-day falls inside the window.
func (w QuietWindow) Contains(t time.Time) bool {
	if w.StartHour == w.EndHour {
		return false
	}
	h := t.Hour()
	if w.StartHour < w.EndHour {
		return h >= w.StartHour && h < w.EndHour
	}
	return h >= w.StartHour || h < w.EndHour
}

// Adjust defers t out of the quiet window.
//
// Hours in [StartHour, 24) shift to EndHour:00 of the next calendar day;
// hours in [0, EndHour) shift to EndHour:00 of the same day. Applying
// Adjust twice is a no-op: the shifted time lands exactly on EndHour,
// which is outside the window.
func (w QuietWindow) Adjust(t time.Time) time.Time {
	if !w.Contains(t) {
		return t
	}
	day := t
	if w.StartHour > w.EndHour && t.Hour() >= w.StartHour {
		day = t.AddDate(0, 0, 1)
	}
	adj := time.Date(day.Year(), day.Month(), day.Day(), w.EndHour, 0, 0, 0, t.Location())
	if adj.Before(t) {
		// Quiet hours only ever delay delivery.
		return t
	}
	return adj
}
