package models

import "time"

// Well-known flood action types. Each maps to a FloodRule; callers may
// register additional types through configuration.
const (
	FloodActionGeneric       = "generic"
	FloodActionPasswordReset = "forgotpassword"
	FloodActionUpload        = "upload"
	FloodActionAvailability  = "availabilityMessage"
)

// FloodEvent is a single recorded occurrence of a guarded action.
// Events are append-only; they are never mutated after creation and are
// removed only by the periodic cleanup sweep.
type FloodEvent struct {
	ID           string    `db:"id"`
	IP           string    `db:"ip"`
	ActionType   string    `db:"action_type"`
	ReferenceKey int64     `db:"reference_key"`
	CreatedAt    time.Time `db:"created_at"`
}

// FloodRule configures one limiter variant. Variants are plain values
// keyed by action type rather than limiter subclasses.
type FloodRule struct {
	ActionType    string
	Limit         int
	FloodWindow   time.Duration
	CleanupWindow time.Duration

	// InclusiveLimit switches the admission comparison from count < limit
	// to count <= limit, effectively allowing one extra attempt. The
	// password-reset rule is the only known user of this; it looks like an
	// off-by-one in the original flow but both behaviors are preserved
	// deliberately. See DESIGN.md.
	InclusiveLimit bool
}

// Valid reports whether the rule is internally consistent. Cleanup must
// retain events at least as long as the flood window needs them.
func (r FloodRule) Valid() bool {
	return r.ActionType != "" &&
		r.Limit > 0 &&
		r.FloodWindow > 0 &&
		r.CleanupWindow >= r.FloodWindow
}

// Allows applies the rule's admission comparison to an observed count.
func (r FloodRule) Allows(count int) bool {
	if r.InclusiveLimit {
		return count <= r.Limit
	}
	return count < r.Limit
}

// DefaultFloodRules returns the built-in limiter variants.
func DefaultFloodRules() map[string]FloodRule {
	return map[string]FloodRule{
		FloodActionGeneric: {
			ActionType:    FloodActionGeneric,
			Limit:         3,
			FloodWindow:   5 * time.Minute,
			CleanupWindow: 60 * time.Minute,
		},
		FloodActionPasswordReset: {
			ActionType:     FloodActionPasswordReset,
			Limit:          3,
			FloodWindow:    5 * time.Minute,
			CleanupWindow:  60 * time.Minute,
			InclusiveLimit: true,
		},
		FloodActionUpload: {
			ActionType:    FloodActionUpload,
			Limit:         10,
			FloodWindow:   60 * time.Minute,
			CleanupWindow: 60 * time.Minute,
		},
		FloodActionAvailability: {
			ActionType:    FloodActionAvailability,
			Limit:         1,
			FloodWindow:   2 * time.Minute,
			CleanupWindow: 3 * time.Minute,
		},
	}
}
