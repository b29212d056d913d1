package engine

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Category classifies a notification's purpose. Each category carries its
// own enable toggle and daily quota.
type Category int

const (
	CategoryGeneral Category = iota
	CategoryGoalReminder
	CategoryCooldownEnd
	CategoryPetCheckIn
	CategoryPetStateAlert
	CategoryMotivational
	CategoryStreak
	CategoryDailySummary
)

var categorySlugs = map[Category]string{
	CategoryGeneral:       "general",
	CategoryGoalReminder:  "goal-reminder",
	CategoryCooldownEnd:   "cooldown-end",
	CategoryPetCheckIn:    "pet-check-in",
	CategoryPetStateAlert: "pet-state-alert",
	CategoryMotivational:  "motivational",
	CategoryStreak:        "streak",
	CategoryDailySummary:  "daily-summary",
}

// Categories lists all known categories in stable order.
func Categories() []Category {
	return []Category{
		CategoryGeneral,
		CategoryGoalReminder,
		CategoryCooldownEnd,
		CategoryPetCheckIn,
		CategoryPetStateAlert,
		CategoryMotivational,
		CategoryStreak,
		CategoryDailySummary,
	}
}

func (c Category) String() string {
	if s, ok := categorySlugs[c]; ok {
		return s
	}
	return "general"
}

// ParseCategory maps a slug back to its Category. Unknown slugs fall back
// to CategoryGeneral so persisted state from newer versions stays readable.
func ParseCategory(s string) (Category, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for c, slug := range categorySlugs {
		if slug == s {
			return c, true
		}
	}
	return CategoryGeneral, false
}

// Request is a single notification request. Immutable once created; the
// engine owns it after admission.
type Request struct {
	ID       string
	Title    string
	Body     string
	Category Category
	Delay    time.Duration // from now; <0 treated as 0
	Repeats  bool
}

// Key returns the throttle identity of the request.
func (r Request) Key() ThrottleKey {
	return ThrottleKey{Category: r.Category, Title: r.Title}
}

// ThrottleKey is the (category, title) identity used for per-key throttling.
type ThrottleKey struct {
	Category Category
	Title    string
}

func (k ThrottleKey) String() string {
	return k.Category.String() + "|" + k.Title
}

// ParseThrottleKey is the inverse of ThrottleKey.String, used when loading
// persisted last-sent stamps.
func ParseThrottleKey(s string) (ThrottleKey, bool) {
	slug, title, ok := strings.Cut(s, "|")
	if !ok {
		return ThrottleKey{}, false
	}
	c, ok := ParseCategory(slug)
	if !ok {
		return ThrottleKey{}, false
	}
	return ThrottleKey{Category: c, Title: title}, true
}

// PendingEntry wraps an admitted request plus its computed fire time.
// It lives in the pacer queue until dispatch (or cancellation).
type PendingEntry struct {
	Request    Request
	AdmittedAt time.Time
	FireAt     time.Time // before quiet-hours adjustment
}

// Finalized is what the pacer hands to the delivery sink: the admitted
// request with its quiet-hours-adjusted fire time.
type Finalized struct {
	Request Request
	FireAt  time.Time
}

// RejectCode enumerates policy gate outcomes.
type RejectCode int

const (
	RejectCategoryDisabled RejectCode = iota + 1
	RejectThrottled
	RejectDailyLimitReached
)

func (c RejectCode) String() string {
	switch c {
	case RejectCategoryDisabled:
		return "category_disabled"
	case RejectThrottled:
		return "throttled"
	case RejectDailyLimitReached:
		return "daily_limit_reached"
	default:
		return "unknown"
	}
}

// Rejection is a silent policy outcome, not an error.
type Rejection struct {
	Code      RejectCode
	Remaining time.Duration // for RejectThrottled: time until the key unlocks
}

func (r Rejection) String() string {
	if r.Code == RejectThrottled && r.Remaining > 0 {
		return fmt.Sprintf("%s (%s remaining)", r.Code, r.Remaining.Round(time.Second))
	}
	return r.Code.String()
}

// Settings is the engine's per-decision view of user preferences.
// It is read-only from the engine's perspective; the settings store owns
// mutation and persistence.
type Settings struct {
	Enabled map[Category]bool

	GoalReminderInterval time.Duration
	PetCheckInInterval   time.Duration
	MotivationalInterval time.Duration
}

// CategoryEnabled reports whether a category is switched on. Categories
// absent from the map default to enabled.
func (s Settings) CategoryEnabled(c Category) bool {
	if s.Enabled == nil {
		return true
	}
	en, ok := s.Enabled[c]
	if !ok {
		return true
	}
	return en
}

// SettingsSource provides the current notification settings.
// Implementations must be safe for concurrent use.
type SettingsSource interface {
	Current() Settings
}

// PermissionProvider answers whether OS-level delivery is permitted at all.
// A false short-circuits Schedule before the policy gate.
type PermissionProvider interface {
	DeliveryPermitted(ctx context.Context) bool
}

// Sink accepts a finalized request and performs the actual presentation.
// Failures are logged and dropped; the engine never retries.
type Sink interface {
	Deliver(ctx context.Context, f Finalized) error
}

// DeliveryRecord is a bounded in-memory history item for introspection.
type DeliveryRecord struct {
	At       time.Time
	ID       string
	Category Category
	Title    string
	FireAt   time.Time
	Error    string
}

// Config controls the engine.
type Config struct {
	Enabled bool

	// QueueSize bounds the pacer queue; overflowing requests are dropped
	// (logged), matching the best-effort delivery contract.
	QueueSize int

	PerKeyThrottle      time.Duration // min gap between two admissions sharing a key
	MinDispatchInterval time.Duration // min gap between any two dispatches

	QuietStartHour int // inclusive, 0..23
	QuietEndHour   int // exclusive, 0..23

	Timezone string // IANA TZ; empty means time.Local

	// Quotas overrides the default per-category daily caps.
	// Zero/absent entries keep the defaults.
	Quotas map[Category]int
}

// Snapshot is a point-in-time view of the engine for operators and tests.
type Snapshot struct {
	Enabled      bool
	QueueLen     int
	Draining     bool
	LastDispatch time.Time
	DailyCounts  map[Category]int
	Pending      []PendingEntry
}
