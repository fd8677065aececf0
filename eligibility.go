package main

// Eligibility is a rule's applicability expressed as data instead of a closure.
// Every non-empty constraint must hold; an empty expression matches everyone.
type Eligibility struct {
	Sex         Sex      `json:"sex,omitempty"`         // empty matches any sex
	MinAge      int      `json:"minAge,omitempty"`      // inclusive, 0 for no lower bound
	MaxAge      int      `json:"maxAge,omitempty"`      // inclusive, 0 for no upper bound
	Pathologies []string `json:"pathologies,omitempty"` // patient needs at least one, empty for no requirement

	// AlwaysShown keeps the rule visible even when the predicate fails. The
	// predicate is still evaluated so the override can be reported.
	AlwaysShown bool `json:"alwaysShown,omitempty"`
}

func always() Eligibility {
	return Eligibility{}
}

func alwaysShownFor(pathologies ...string) Eligibility {
	return Eligibility{Pathologies: pathologies, AlwaysShown: true}
}

func forPathologies(pathologies ...string) Eligibility {
	return Eligibility{Pathologies: pathologies}
}

func forSexAndAge(sex Sex, minAge, maxAge int) Eligibility {
	return Eligibility{Sex: sex, MinAge: minAge, MaxAge: maxAge}
}

// Matches evaluates the predicate alone, ignoring AlwaysShown.
func (e Eligibility) Matches(pc PatientContext) bool {
	if e.Sex != "" && pc.Sex != e.Sex {
		return false
	}
	if e.MinAge > 0 && pc.Age < e.MinAge {
		return false
	}
	if e.MaxAge > 0 && pc.Age > e.MaxAge {
		return false
	}
	if len(e.Pathologies) > 0 && !pc.HasAny(e.Pathologies...) {
		return false
	}
	return true
}

type EligibilityResult struct {
	Eligible bool
	// Shown only because of AlwaysShown
	Overridden bool
}

func evaluateEligibility(rule Rule, pc PatientContext) EligibilityResult {
	matches := rule.Eligibility.Matches(pc)
	if matches {
		return EligibilityResult{Eligible: true}
	}
	if rule.Eligibility.AlwaysShown {
		return EligibilityResult{Eligible: true, Overridden: true}
	}
	return EligibilityResult{}
}
