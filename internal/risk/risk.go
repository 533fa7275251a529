// Package risk scores transfers before funds move.
//
// A deterministic rule table maps location, device and IP change signals to a
// fixed score. An optional trained model can raise the score further; the
// blended score is the larger of the two. Transfers whose blended score is at
// or above the block threshold are rejected by the transfer service.
package risk

import "strings"

// DefaultBlockThreshold is the blended score at or above which a transfer is blocked.
const DefaultBlockThreshold = 0.80

// KeepCurrent is the override value meaning "use the account's current value".
const KeepCurrent = "-- keep current --"

// ReasonNormal is the reason attached to combinations outside the rule table.
const ReasonNormal = "Normal"

// SignalStatus describes how a caller-supplied device or IP relates to the
// account's current value.
type SignalStatus int

const (
	Kept SignalStatus = iota
	Changed
	Unknown
)

func (s SignalStatus) String() string {
	switch s {
	case Kept:
		return "kept"
	case Changed:
		return "changed"
	case Unknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// IsKeep reports whether an override input means "keep current".
func IsKeep(override string) bool {
	v := strings.TrimSpace(override)
	return v == "" || v == KeepCurrent
}

// DeriveSignal classifies a device or IP override against the current value.
func DeriveSignal(override, current string) SignalStatus {
	if IsKeep(override) {
		return Kept
	}
	v := strings.TrimSpace(override)
	if strings.EqualFold(v, "unknown") {
		return Unknown
	}
	if v != strings.TrimSpace(current) {
		return Changed
	}
	return Kept
}

// LocationChanged reports whether a location override differs from home.
// Location has no unknown state.
func LocationChanged(override, home string) bool {
	if IsKeep(override) {
		return false
	}
	return strings.TrimSpace(override) != strings.TrimSpace(home)
}

// Resolve returns the override when it is set, otherwise current.
func Resolve(override, current string) string {
	if IsKeep(override) {
		return current
	}
	return strings.TrimSpace(override)
}

// Signals carries the raw override inputs and the account values they are
// compared against.
type Signals struct {
	LocationOverride string
	DeviceChoice     string
	IPChoice         string

	HomeLocation  string
	CurrentDevice string
	CurrentIP     string
}

// Rule runs the rule table over the derived signal statuses.
func (s Signals) Rule() RuleResult {
	return Assess(
		LocationChanged(s.LocationOverride, s.HomeLocation),
		DeriveSignal(s.DeviceChoice, s.CurrentDevice),
		DeriveSignal(s.IPChoice, s.CurrentIP),
	)
}
