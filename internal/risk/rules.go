package risk

// RuleResult is the outcome of the rule table.
type RuleResult struct {
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
}

type rule struct {
	locationChanged bool
	device, ip      SignalStatus
	result          RuleResult
}

// rules are mutually exclusive; any combination not listed scores zero.
var rules = []rule{
	{true, Changed, Changed, RuleResult{0.95, "Location changed + Device changed + IP changed"}},
	{true, Unknown, Unknown, RuleResult{0.90, "Location changed + Unknown Device + Unknown IP"}},
	{false, Unknown, Unknown, RuleResult{0.85, "Location kept + Unknown Device + Unknown IP"}},
	{false, Unknown, Changed, RuleResult{0.80, "Location kept + IP changed + Unknown Device"}},
	{false, Changed, Unknown, RuleResult{0.80, "Location kept + IP unknown + Device changed"}},
	{true, Kept, Kept, RuleResult{0.90, "Location changed + IP kept + Device kept"}},
}

// Assess maps the three change signals to a score and reason. It is pure.
func Assess(locationChanged bool, device, ip SignalStatus) RuleResult {
	for _, r := range rules {
		if r.locationChanged == locationChanged && r.device == device && r.ip == ip {
			return r.result
		}
	}
	return RuleResult{Score: 0, Reason: ReasonNormal}
}
