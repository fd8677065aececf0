package main

import (
	"sort"
	"strings"
)

var diabetesMarkers = []string{"DM", "Diabetes", "diabetes"}

// Rule describes one clinical item whose vigency is tracked.
type Rule struct {
	Key         string
	Label       string
	Icon        string
	VigencyDays int
	// Name of the remote window that overrides VigencyDays, if any
	WindowKey   string
	Category    Category
	Eligibility Eligibility
	Lookup      RecordLookup
}

// RecordLookup finds the record a rule applies to and the date it was taken.
type RecordLookup func(set ClassifiedAlertSet, aux AuxData) (found bool, date Date)

// RuleCatalog is built once at start and only read afterwards.
type RuleCatalog struct {
	rules []Rule
}

func (c RuleCatalog) Rules() []Rule {
	rules := make([]Rule, len(c.rules))
	copy(rules, c.rules)
	return rules
}

func (c RuleCatalog) Len() int {
	return len(c.rules)
}

var defaultCatalog = RuleCatalog{rules: []Rule{
	{
		Key: "HbA1c", Label: "HbA1c (Diabetes)", Icon: "🩸", VigencyDays: 365,
		Category: CategoryExamenes, Eligibility: alwaysShownFor(diabetesMarkers...),
		Lookup: examLookup(keyContains("hba1c")),
	},
	{
		Key: "VFG", Label: "VFG (Función Renal)", Icon: "🫘", VigencyDays: 365,
		Category: CategoryExamenes, Eligibility: always(),
		Lookup: examLookup(keyContains("vfg")),
	},
	{
		Key: "LDL", Label: "LDL Colesterol", Icon: "💙", VigencyDays: 365,
		Category: CategoryExamenes, Eligibility: always(),
		Lookup: examLookup(keyContains("ldl")),
	},
	{
		Key: "RAC", Label: "RAC (Albumina/Creatinina)", Icon: "🔬", VigencyDays: 365,
		Category: CategoryExamenes, Eligibility: always(),
		Lookup: examLookup(keyContains("rac")),
	},
	{
		Key: "Creatininemia", Label: "Creatininemia", Icon: "🧪", VigencyDays: 365,
		Category: CategoryExamenes, Eligibility: always(),
		Lookup: examLookup(keyContains("creatinin")),
	},
	{
		Key: "EKG", Label: "EKG (Electrocardiograma)", Icon: "❤️", VigencyDays: 365,
		Category: CategoryExamenes, Eligibility: always(),
		Lookup: examLookup(keyContains("ekg")),
	},
	{
		Key: "FondoDeOjos", Label: "Fondo de Ojos", Icon: "👁️", VigencyDays: 365,
		Category: CategoryExamenes, Eligibility: alwaysShownFor(diabetesMarkers...),
		Lookup: examLookup(keyContains("fondo")),
	},
	{
		Key: "EvaluacionPieDiabetico", Label: "Evaluación Pie Diabético", Icon: "🦶", VigencyDays: 365,
		Category: CategoryExamenes, Eligibility: alwaysShownFor(diabetesMarkers...),
		Lookup: footEvaluationLookup,
	},
	{
		Key: "podologia", Label: "Atención Podológica", Icon: "👣", VigencyDays: 365,
		Category: CategoryProcedimientos, Eligibility: forPathologies("DM", "RiesgoPieDM"),
		Lookup: podologyLookup,
	},
	{
		Key: "curaciones_piedm", Label: "Registro Curaciones", Icon: "🩹", VigencyDays: 365,
		Category: CategoryProcedimientos, Eligibility: forPathologies("DM", "RiesgoPieDM"),
		Lookup: auxLookup(procedureFact("curaciones_piedm"), keyContains("curaciones")),
	},
	{
		Key: "amputacion_piedm", Label: "Registro Amputación Pie Diabético", Icon: "🦿", VigencyDays: 365,
		Category: CategoryProcedimientos, Eligibility: forPathologies("DM", "RiesgoPieDM"),
		Lookup: auxLookup(procedureFact("amputacion_piedm"), keyContains("amputacion")),
	},
	{
		Key: "ultima_insulina", Label: "Registro Uso Insulina", Icon: "💉", VigencyDays: 90,
		Category: CategoryTratamientos, Eligibility: forPathologies("DM", "Diabetes"),
		Lookup: auxLookup(diabetesControlFact("ultima_insulina"), keyContains("insulina")),
	},
	{
		Key: "ultima_hipoglicemia", Label: "Registro Hipoglicemias", Icon: "⚠️", VigencyDays: 30,
		Category: CategoryTratamientos, Eligibility: forPathologies("DM", "Diabetes"),
		Lookup: auxLookup(diabetesControlFact("ultima_hipoglicemia"), keyContains("hipoglicemia")),
	},
	{
		Key: "PAP", Label: "PAP (citología cervicouterina)", Icon: "🧫", VigencyDays: 36 * 30, WindowKey: "pap",
		Category: CategoryScreening, Eligibility: forSexAndAge(SexFemale, 25, 64),
		Lookup: screeningLookup(keyIs("pap")),
	},
	{
		Key: "MAMO", Label: "Mamografía", Icon: "🎗️", VigencyDays: 24 * 30, WindowKey: "mamografia",
		Category: CategoryScreening, Eligibility: forSexAndAge(SexFemale, 50, 74),
		Lookup: screeningLookup(keyContains("mamo")),
	},
	{
		Key: "PSA", Label: "PSA (próstata)", Icon: "🧬", VigencyDays: 12 * 30, WindowKey: "psa",
		Category: CategoryScreening, Eligibility: forSexAndAge(SexMale, 50, 0),
		Lookup: screeningLookup(keyIs("psa")),
	},
}}

/*******************************
 ******* Lookup helpers ********
 *******************************/

type keyMatcher func(lowerKey string) bool

func keyContains(substr string) keyMatcher {
	return func(lowerKey string) bool {
		return strings.Contains(lowerKey, substr)
	}
}

// Exact key or the key followed by a qualifier ("psa", "psa_total")
func keyIs(name string) keyMatcher {
	return func(lowerKey string) bool {
		return lowerKey == name || strings.HasPrefix(lowerKey, name+"_")
	}
}

// findRecord scans buckets in order, keys sorted within each bucket. A match
// with a date wins over an earlier match without one.
func findRecord(match keyMatcher, buckets ...map[string]NormalizedRecord) (bool, Date) {
	found := false
	for _, bucket := range buckets {
		keys := make([]string, 0, len(bucket))
		for key := range bucket {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		for _, key := range keys {
			if !match(strings.ToLower(key)) {
				continue
			}
			found = true
			if date := bucket[key].Fecha; !date.IsZero() {
				return true, date
			}
		}
	}
	return found, Date{}
}

func examLookup(match keyMatcher) RecordLookup {
	return func(set ClassifiedAlertSet, _ AuxData) (bool, Date) {
		return findRecord(match, set.Examenes)
	}
}

func screeningLookup(match keyMatcher) RecordLookup {
	return func(set ClassifiedAlertSet, _ AuxData) (bool, Date) {
		return findRecord(match, set.Screening, set.Examenes)
	}
}

func footEvaluationLookup(set ClassifiedAlertSet, _ AuxData) (bool, Date) {
	found, date := findRecord(keyContains("pie"), set.Examenes)
	if !date.IsZero() {
		return true, date
	}

	if record, ok := set.Cardiovascular[footCareKey]; ok {
		found = true
		if !record.Fecha.IsZero() {
			return true, record.Fecha
		}
	}

	if set.Podologia != nil {
		return true, set.Podologia.Fecha
	}

	return found, Date{}
}

func podologyLookup(set ClassifiedAlertSet, _ AuxData) (bool, Date) {
	if set.Podologia == nil {
		return false, Date{}
	}
	return true, set.Podologia.Fecha
}

type auxFact func(aux AuxData) (string, bool)

func diabetesControlFact(name string) auxFact {
	return func(aux AuxData) (string, bool) {
		value, ok := aux.DiabetesControls[name]
		return value, ok
	}
}

func procedureFact(name string) auxFact {
	return func(aux AuxData) (string, bool) {
		value, ok := aux.Procedures[name]
		return value, ok
	}
}

// auxLookup prefers the presenter supplied fact and falls back to the
// treatments bucket of the alert stream.
func auxLookup(fact auxFact, match keyMatcher) RecordLookup {
	return func(set ClassifiedAlertSet, aux AuxData) (bool, Date) {
		if value, ok := fact(aux); ok && strings.TrimSpace(value) != "" {
			return true, toDate(value)
		}
		return findRecord(match, set.Tratamientos)
	}
}
