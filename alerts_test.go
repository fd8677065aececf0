package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	rules := defaultCatalog.Rules()
	require.Equal(t, 16, defaultCatalog.Len())

	seen := map[string]bool{}
	for _, rule := range rules {
		assert.False(t, seen[rule.Key], "duplicate rule %s", rule.Key)
		seen[rule.Key] = true
		assert.Positive(t, rule.VigencyDays, rule.Key)
		assert.NotNil(t, rule.Lookup, rule.Key)
	}

	// Mutating the copy leaves the catalog alone
	rules[0].Key = "changed"
	assert.Equal(t, "HbA1c", defaultCatalog.Rules()[0].Key)
}

func TestBuild_CurrentHbA1c(t *testing.T) {
	pinToday(t, testToday)

	set := classifyRecords([]RawAlertRecord{
		{Code: "HBA1C", Category: "Diabetes", Descripcion: "HbA1c", Detalle: "2025-01-10"},
	})
	pc := NewPatientContext(SexMale, 55, []string{"DM"})

	groups := testBuilder().Build(context.Background(), pc, set, AuxData{})

	hba1c, ok := groups.ByKey(CategoryExamenes)["HbA1c"]
	require.True(t, ok)
	assert.Equal(t, StatusCurrent, hba1c.Status)
	assert.Equal(t, "Vigente ✅", hba1c.Message)
	assert.Equal(t, "2025-01-10", hba1c.Date.String())
	assert.Equal(t, "🩸", hba1c.Icon)
}

func TestBuild_ExpiredAndMissing(t *testing.T) {
	pinToday(t, testToday)

	set := classifyRecords([]RawAlertRecord{
		{Code: "LDL", Category: "Diabetes", Descripcion: "LDL", Detalle: daysAgo(366).String()},
		{Code: "VFG", Category: "Diabetes", Descripcion: "VFG", Detalle: daysAgo(365).String()},
		{Code: "EKG", Category: "Diabetes", Descripcion: "EKG sin fecha"},
	})
	groups := testBuilder().Build(context.Background(), NewPatientContext(SexUnknown, 40, nil), set, AuxData{})
	examenes := groups.ByKey(CategoryExamenes)

	assert.Equal(t, StatusExpired, examenes["LDL"].Status)
	assert.Equal(t, "Vencido ⚠️", examenes["LDL"].Message)
	assert.Equal(t, StatusCurrent, examenes["VFG"].Status)
	assert.Equal(t, StatusExpired, examenes["EKG"].Status, "a record without a date is never current")
	assert.Equal(t, StatusNoRecord, examenes["RAC"].Status)
	assert.Equal(t, "Sin registro", examenes["RAC"].Message)
	assert.True(t, examenes["RAC"].Date.IsZero())
}

func TestBuild_IgnoresUpstreamVigenteFlag(t *testing.T) {
	pinToday(t, testToday)

	set := classifyRecords([]RawAlertRecord{
		{Code: "LDL", Category: "Diabetes", Vigente: true, Descripcion: "LDL vigente", Detalle: daysAgo(500).String()},
	})
	groups := testBuilder().Build(context.Background(), NewPatientContext(SexUnknown, 40, nil), set, AuxData{})

	assert.Equal(t, StatusExpired, groups.ByKey(CategoryExamenes)["LDL"].Status)
}

func TestBuild_Eligibility(t *testing.T) {
	pinToday(t, testToday)

	empty := newClassifiedAlertSet()

	t.Run("no pathologies", func(t *testing.T) {
		groups := testBuilder().Build(context.Background(), NewPatientContext(SexMale, 30, nil), empty, AuxData{})

		examenes := groups.ByKey(CategoryExamenes)
		assert.Contains(t, examenes, "HbA1c", "diabetes exams are always shown")
		assert.Contains(t, examenes, "FondoDeOjos")
		assert.Contains(t, examenes, "EvaluacionPieDiabetico")
		assert.Empty(t, groups.Procedimientos)
		assert.Empty(t, groups.Tratamientos)
		assert.Empty(t, groups.Screening)
	})

	t.Run("woman of screening age", func(t *testing.T) {
		groups := testBuilder().Build(context.Background(), NewPatientContext(SexFemale, 55, nil), empty, AuxData{})

		screening := groups.ByKey(CategoryScreening)
		assert.Contains(t, screening, "PAP")
		assert.Contains(t, screening, "MAMO")
		assert.NotContains(t, screening, "PSA")
	})

	t.Run("diabetic man", func(t *testing.T) {
		groups := testBuilder().Build(context.Background(), NewPatientContext(SexMale, 60, []string{"DM"}), empty, AuxData{})

		assert.Len(t, groups.Procedimientos, 3)
		assert.Len(t, groups.Tratamientos, 2)
		assert.Equal(t, []string{"PSA"}, alertKeys(groups.Screening))
	})
}

func TestBuild_CatalogOrder(t *testing.T) {
	groups := testBuilder().Build(context.Background(), NewPatientContext(SexUnknown, 0, nil), newClassifiedAlertSet(), AuxData{})

	assert.Equal(t,
		[]string{"HbA1c", "VFG", "LDL", "RAC", "Creatininemia", "EKG", "FondoDeOjos", "EvaluacionPieDiabetico"},
		alertKeys(groups.Examenes))
}

func TestBuild_AuxFacts(t *testing.T) {
	pinToday(t, testToday)

	set := classifyRecords([]RawAlertRecord{
		{Code: "INSULINA", Category: "Diabetes", Descripcion: "Insulina", Detalle: daysAgo(10).String()},
	})
	aux := AuxData{
		DiabetesControls: map[string]string{"ultima_hipoglicemia": daysAgo(45).String()},
		Procedures:       map[string]string{"curaciones_piedm": daysAgo(20).String(), "amputacion_piedm": ""},
	}
	pc := NewPatientContext(SexUnknown, 60, []string{"DM"})

	groups := testBuilder().Build(context.Background(), pc, set, aux)
	tratamientos := groups.ByKey(CategoryTratamientos)
	procedimientos := groups.ByKey(CategoryProcedimientos)

	assert.Equal(t, StatusCurrent, tratamientos["ultima_insulina"].Status, "falls back to the treatments bucket")
	assert.Equal(t, StatusExpired, tratamientos["ultima_hipoglicemia"].Status, "30 day window")
	assert.Equal(t, StatusCurrent, procedimientos["curaciones_piedm"].Status)
	assert.Equal(t, StatusNoRecord, procedimientos["amputacion_piedm"].Status, "blank facts count as absent")
	assert.Equal(t, StatusNoRecord, procedimientos["podologia"].Status)
}

func TestBuild_FootEvaluationSources(t *testing.T) {
	pinToday(t, testToday)

	pc := NewPatientContext(SexUnknown, 60, []string{"DM"})

	fromFootCare := classifyRecords([]RawAlertRecord{
		{Code: "PIE_DM", Category: "Diabetes", Descripcion: "Evaluación pie diabético", Detalle: daysAgo(100).String()},
	})
	groups := testBuilder().Build(context.Background(), pc, fromFootCare, AuxData{})
	assert.Equal(t, StatusCurrent, groups.ByKey(CategoryExamenes)["EvaluacionPieDiabetico"].Status)

	fromPodology := classifyRecords([]RawAlertRecord{
		{Code: "PODOLOGIA", Category: "Diabetes", Descripcion: "Podología", Detalle: daysAgo(400).String()},
	})
	groups = testBuilder().Build(context.Background(), pc, fromPodology, AuxData{})
	assert.Equal(t, StatusExpired, groups.ByKey(CategoryExamenes)["EvaluacionPieDiabetico"].Status)
	assert.Equal(t, StatusExpired, groups.ByKey(CategoryProcedimientos)["podologia"].Status)
}

func TestBuild_RemoteWindowOverride(t *testing.T) {
	pinToday(t, testToday)

	windows := NewVigencyConfigProvider(&stubWindowSource{windows: map[string]int{"pap": 100}}, nil, testLogger())
	builder := NewAlertBuilder(defaultCatalog, windows, testLogger())

	set := classifyRecords([]RawAlertRecord{
		{Code: "PAP", Category: "Screening", Descripcion: "PAP", Detalle: daysAgo(200).String()},
	})
	groups := builder.Build(context.Background(), NewPatientContext(SexFemale, 30, nil), set, AuxData{})

	assert.Equal(t, StatusExpired, groups.ByKey(CategoryScreening)["PAP"].Status)

	// Without the override the 1080 day rule window applies
	groups = testBuilder().Build(context.Background(), NewPatientContext(SexFemale, 30, nil), set, AuxData{})
	assert.Equal(t, StatusCurrent, groups.ByKey(CategoryScreening)["PAP"].Status)
}

func TestRuleWindow(t *testing.T) {
	ctx := context.Background()
	pap := Rule{Key: "PAP", VigencyDays: 1080, WindowKey: "pap"}
	psa := Rule{Key: "PSA", VigencyDays: 360, WindowKey: "psa"}

	// Remote load fails, so the configured defaults are the table
	windows := NewVigencyConfigProvider(&stubWindowSource{err: ErrNetwork}, map[string]int{"pap": 1095, "psa": 0}, testLogger())

	assert.Equal(t, 1080, ruleWindow(ctx, nil, pap))
	assert.Equal(t, 1095, ruleWindow(ctx, windows, pap))
	assert.Equal(t, 360, ruleWindow(ctx, windows, psa), "non positive windows are ignored")
	assert.Equal(t, 365, ruleWindow(ctx, windows, Rule{VigencyDays: 365}))
	assert.Equal(t, 30, ruleWindow(ctx, windows, Rule{VigencyDays: 30, WindowKey: "unknown"}))
}

func alertKeys(alerts []AlertViewModel) []string {
	keys := make([]string, 0, len(alerts))
	for _, alert := range alerts {
		keys = append(keys, alert.Key)
	}
	return keys
}

func TestRule_RecordHelpers(t *testing.T) {
	pinToday(t, testToday)

	set := classifyRecords([]RawAlertRecord{
		{Code: "PSA_TOTAL", Category: "Screening", Descripcion: "PSA", Detalle: "2025-02-02"},
		{Code: "PAPILOMA", Category: "Screening", Descripcion: "Virus papiloma"},
	})

	rules := map[string]Rule{}
	for _, rule := range defaultCatalog.Rules() {
		rules[rule.Key] = rule
	}

	found, date := rules["PSA"].Lookup(set, AuxData{})
	assert.True(t, found)
	assert.Equal(t, "2025-02-02", date.String())

	found, _ = rules["PAP"].Lookup(set, AuxData{})
	assert.False(t, found, "papiloma is not a pap record")
}
