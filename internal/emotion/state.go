// Package emotion models the bounded emotional state of a companion
// character and the arithmetic that advances it between turns.
//
// A State is a four-dimensional vector (affection, jealousy, anger, trust),
// each dimension clamped to [0,100]. A Delta is the signed, possibly partial
// adjustment a single turn proposes; a Bonus holds operator-tuned multipliers
// that amplify positive reinforcement. Apply is the only transition function
// and is pure: the generative model that produces deltas is not deterministic,
// so everything after it must be.
package emotion

// State is the live emotional state of a chat room. All dimensions are kept
// within [0,100]; any value outside that range is a bug in the writer.
type State struct {
	Affection float64 `json:"affection" gorm:"column:affection"`
	Jealousy  float64 `json:"jealousy"  gorm:"column:jealousy"`
	Anger     float64 `json:"anger"     gorm:"column:anger"`
	Trust     float64 `json:"trust"     gorm:"column:trust"`
}

// Delta is a per-turn adjustment. Nil fields mean "leave unchanged"; the
// distinction between nil and zero matters for back-annotation display.
type Delta struct {
	Affection *float64 `json:"affection,omitempty"`
	Jealousy  *float64 `json:"jealousy,omitempty"`
	Anger     *float64 `json:"anger,omitempty"`
	Trust     *float64 `json:"trust,omitempty"`
}

// Bonus holds multiplicative coefficients applied to positive deltas only.
// Anger has no bonus: there is nothing an operator should want to amplify
// about making the character angrier.
type Bonus struct {
	Affection float64
	Jealousy  float64
	Trust     float64
}

// NeutralBonus returns the identity coefficients (1.0 each).
func NeutralBonus() Bonus {
	return Bonus{Affection: 1, Jealousy: 1, Trust: 1}
}

// DefaultState returns the initial state used when a room's character
// configuration is missing.
func DefaultState() State {
	return State{Affection: 20, Jealousy: 0, Anger: 0, Trust: 60}
}

// IsEmpty reports whether the delta carries no adjustments at all.
func (d Delta) IsEmpty() bool {
	return d.Affection == nil && d.Jealousy == nil && d.Anger == nil && d.Trust == nil
}

// Apply returns the state that results from applying d to s under b.
//
// Rules, per dimension present in d:
//   - positive affection/jealousy/trust deltas are scaled by the matching
//     bonus coefficient before adding; anger is never scaled
//   - a zero coefficient is honored: operators may nullify positive movement
//     on a dimension by setting its bonus to 0
//   - negative deltas are never scaled (bonuses amplify or suppress
//     reinforcement, never penalties)
//   - the result is clamped to [0,100] independently per dimension
//
// Absent dimensions are untouched, so Apply(s, Delta{}, b) == s. A zero-value
// Bonus means "not configured" and is replaced with NeutralBonus, so a
// half-initialized record cannot silently erase positive progress.
func Apply(s State, d Delta, b Bonus) State {
	if b == (Bonus{}) {
		b = NeutralBonus()
	}
	out := s
	if d.Affection != nil {
		out.Affection = clamp(s.Affection + scale(*d.Affection, b.Affection))
	}
	if d.Jealousy != nil {
		out.Jealousy = clamp(s.Jealousy + scale(*d.Jealousy, b.Jealousy))
	}
	if d.Anger != nil {
		out.Anger = clamp(s.Anger + *d.Anger)
	}
	if d.Trust != nil {
		out.Trust = clamp(s.Trust + scale(*d.Trust, b.Trust))
	}
	return out
}

// scale multiplies positive values by coef; negative values pass through.
// Zero coefficients multiply like any other; only a negative coef (invalid
// upstream) is ignored.
func scale(v, coef float64) float64 {
	if v <= 0 {
		return v
	}
	if coef < 0 {
		return v
	}
	return v * coef
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
