package main

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// All diabetic foot records collapse into this cardiovascular key
const footCareKey = "EVAL_PIE_DIABETICO"

var (
	footCareDescriptionRegex = regexp.MustCompile(`(?i)pie\s*diab|pie\s*dm`)
	footCareCodeRegex        = regexp.MustCompile(`(?i)pie[_\s]*dm|piedm`)
	racWordRegex             = regexp.MustCompile(`(?i)\brac\b`)

	diabetesExamCodes      = []string{"hba1c", "vfg", "ldl", "rac", "creatininemia", "ekg", "fondo_ojos"}
	diabetesTreatmentCodes = []string{"ieca", "insulina", "fumador", "curaciones", "hipoglicemias", "amputacion"}
	labelQualifiers        = []string{" vigente", " (1 año)"}
)

type bucket int

const (
	bucketNone bucket = iota
	bucketExamenes
	bucketScreening
	bucketPodologia
	bucketTratamientos
	bucketCardiovascular
)

// classifyRecords maps the upstream alert stream into category buckets. The
// input is put in a canonical order first, so the same records always produce
// the same set regardless of how the upstream ordered them.
func classifyRecords(records []RawAlertRecord) ClassifiedAlertSet {
	set := newClassifiedAlertSet()

	// Track which bucket owns each key so no code lands in two buckets
	owner := map[string]bucket{}
	podologiaKey := ""

	for _, record := range canonicalOrder(records) {
		target, key, normalized := classifyRecord(record)
		if target == bucketNone {
			continue
		}

		if previous, ok := owner[key]; ok && previous != target {
			switch previous {
			case bucketExamenes:
				delete(set.Examenes, key)
			case bucketScreening:
				delete(set.Screening, key)
			case bucketTratamientos:
				delete(set.Tratamientos, key)
			case bucketCardiovascular:
				delete(set.Cardiovascular, key)
			case bucketPodologia:
				if podologiaKey == key {
					set.Podologia = nil
					podologiaKey = ""
				}
			}
		}

		switch target {
		case bucketExamenes:
			set.Examenes[key] = normalized
		case bucketScreening:
			set.Screening[key] = normalized
		case bucketTratamientos:
			set.Tratamientos[key] = normalized
		case bucketCardiovascular:
			set.Cardiovascular[key] = normalized
		case bucketPodologia:
			// Singular slot, last one wins
			if podologiaKey != "" && podologiaKey != key {
				delete(owner, podologiaKey)
			}
			record := normalized
			set.Podologia = &record
			podologiaKey = key
		}
		owner[key] = target
	}

	return set
}

// classifyRecord applies the category rules top to bottom, first match wins.
func classifyRecord(record RawAlertRecord) (bucket, string, NormalizedRecord) {
	category := foldText(record.Category)
	code := foldText(record.Code)
	description := strings.TrimSpace(record.Descripcion)

	normalized := NormalizedRecord{
		Label:          cleanLabel(description),
		Vigente:        record.Vigente,
		Estado:         record.Estado,
		Fecha:          extractDate(record.Detalle, record.Descripcion),
		RawDescription: description,
	}

	// Foot care overrides every other category
	if footCareDescriptionRegex.MatchString(description) || footCareCodeRegex.MatchString(code) {
		if racWordRegex.MatchString(description) {
			return bucketNone, "", NormalizedRecord{}
		}
		return bucketCardiovascular, footCareKey, normalized
	}

	if record.Code == "" {
		return bucketNone, "", NormalizedRecord{}
	}

	isDiabetes := strings.Contains(category, "diabetes")

	switch {
	case isDiabetes && containsAny(code, diabetesExamCodes):
		return bucketExamenes, record.Code, normalized

	case strings.Contains(category, "screening") || strings.Contains(category, "vacunas") || strings.Contains(code, "vacuna"):
		return bucketScreening, trimSuffixFold(record.Code, "_VIGENTE"), normalized

	case strings.Contains(code, "podologia"):
		return bucketPodologia, record.Code, normalized

	case strings.Contains(category, "trat") || strings.HasPrefix(code, "trat_") ||
		(isDiabetes && containsAny(code, diabetesTreatmentCodes)):
		return bucketTratamientos, record.Code, normalized

	case strings.Contains(category, "hipertensi") || strings.Contains(category, "cardiovascular") ||
		strings.Contains(category, "actividad"):
		// Upstream files some RAC results under hypertension
		if racWordRegex.MatchString(description) {
			return bucketNone, "", NormalizedRecord{}
		}
		return bucketCardiovascular, record.Code, normalized
	}

	return bucketExamenes, record.Code, normalized
}

func canonicalOrder(records []RawAlertRecord) []RawAlertRecord {
	sorted := make([]RawAlertRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		switch {
		case a.Code != b.Code:
			return a.Code < b.Code
		case a.Category != b.Category:
			return a.Category < b.Category
		case a.Descripcion != b.Descripcion:
			return a.Descripcion < b.Descripcion
		case a.Detalle != b.Detalle:
			return a.Detalle < b.Detalle
		case a.Estado != b.Estado:
			return a.Estado < b.Estado
		}
		return !a.Vigente && b.Vigente
	})
	return sorted
}

// foldText lower-cases and strips diacritics ("Hipertensión" -> "hipertension")
func foldText(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		return strings.ToLower(s)
	}
	return strings.ToLower(folded)
}

func containsAny(s string, substrs []string) bool {
	for _, substr := range substrs {
		if strings.Contains(s, substr) {
			return true
		}
	}
	return false
}

func trimSuffixFold(s, suffix string) string {
	if len(s) >= len(suffix) && strings.EqualFold(s[len(s)-len(suffix):], suffix) {
		return s[:len(s)-len(suffix)]
	}
	return s
}

// cleanLabel strips trailing qualifier phrases from a description
func cleanLabel(description string) string {
	label := strings.TrimSpace(description)
	for trimmed := true; trimmed; {
		trimmed = false
		for _, qualifier := range labelQualifiers {
			if stripped := trimSuffixFold(label, qualifier); stripped != label {
				label = strings.TrimSpace(stripped)
				trimmed = true
			}
		}
	}
	return label
}
