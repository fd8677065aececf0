package main

import (
	"encoding/json"
	"strings"
	"time"
)

/********************************
 ********** App Config **********
 ********************************/

type Config struct {
	AlertsEndpoint    string         `json:"alertsEndpoint"`
	VigenciasEndpoint string         `json:"vigenciasEndpoint"`
	Pipeline          PipelineConfig `json:"pipeline"`
	DefaultVigencias  map[string]int `json:"defaultVigencias"`

	// Minutes a presenter session may stay idle before its pipeline is dropped
	SessionIdleMinutes int `json:"sessionIdleMinutes"`
}

func (c *Config) sessionIdle() time.Duration {
	return time.Duration(c.SessionIdleMinutes) * time.Minute
}

// Pipeline tuning as stored in the config file. Zero values fall back to the
// defaults in pipelineDefaults.
type PipelineConfig struct {
	DebounceMs       int `json:"debounceMs"`
	CacheTTLSeconds  int `json:"cacheTTLSeconds"`
	Retries          int `json:"retries"`
	BaseDelayMs      int `json:"baseDelayMs"`
	JitterMs         int `json:"jitterMs"`
	AttemptTimeoutMs int `json:"attemptTimeoutMs"`
}

func (pc PipelineConfig) options() PipelineOptions {
	opts := PipelineOptions{
		Debounce:       time.Duration(pc.DebounceMs) * time.Millisecond,
		CacheTTL:       time.Duration(pc.CacheTTLSeconds) * time.Second,
		Retries:        pc.Retries,
		BaseDelay:      time.Duration(pc.BaseDelayMs) * time.Millisecond,
		MaxJitter:      time.Duration(pc.JitterMs) * time.Millisecond,
		AttemptTimeout: time.Duration(pc.AttemptTimeoutMs) * time.Millisecond,
	}
	return opts
}

/*******************************
 ****** Patient Context ********
 *******************************/

type Sex string

const (
	SexMale    Sex = "male"
	SexFemale  Sex = "female"
	SexUnknown Sex = "unknown"
)

func parseSex(s string) Sex {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "m", "male", "masculino", "hombre", "varon", "varón":
		return SexMale
	case "f", "female", "femenino", "mujer":
		return SexFemale
	}
	return SexUnknown
}

// PatientContext is built once per evaluation and never mutated afterwards.
type PatientContext struct {
	Sex         Sex
	Age         int
	pathologies map[string]bool
}

func NewPatientContext(sex Sex, age int, pathologies []string) PatientContext {
	if age < 0 {
		age = 0
	}
	set := make(map[string]bool, len(pathologies))
	for _, p := range pathologies {
		if p = strings.TrimSpace(p); p != "" {
			set[p] = true
		}
	}
	return PatientContext{Sex: sex, Age: age, pathologies: set}
}

// HasAny reports whether the patient carries at least one of the given pathology codes.
func (pc PatientContext) HasAny(codes ...string) bool {
	for _, c := range codes {
		if pc.pathologies[c] {
			return true
		}
	}
	return false
}

// Wire form of the patient context sent by the presenter
type PatientRequest struct {
	Sex         string   `json:"sex"`
	Age         *int     `json:"age"`
	BirthDate   Date     `json:"birthDate"`
	Pathologies []string `json:"pathologies"`
}

func (pr PatientRequest) context() PatientContext {
	age := 0
	if pr.Age != nil {
		age = *pr.Age
	} else if !pr.BirthDate.IsZero() {
		age = ageFromBirthdate(pr.BirthDate)
	}
	return NewPatientContext(parseSex(pr.Sex), age, pr.Pathologies)
}

/*******************************
 ****** Upstream Records *******
 *******************************/

type RawAlertRecord struct {
	Code        string `json:"codigo"`
	Category    string `json:"categoria"`
	Vigente     bool   `json:"vigente"`
	Estado      string `json:"estado"`
	Descripcion string `json:"descripcion"`
	Detalle     string `json:"detalle"`
}

type AlertsResponse struct {
	Success bool             `json:"success"`
	Alertas []RawAlertRecord `json:"alertas"`
	Error   string           `json:"error"`
}

type VigenciasResponse struct {
	Success   bool           `json:"success"`
	Vigencias map[string]int `json:"vigencias"`
}

// Custom UnmarshalJSON for RawAlertRecord. The upstream sends several aliased
// field names and loosely typed flags; they are collapsed here so nothing
// downstream branches on alternate shapes.
func (r *RawAlertRecord) UnmarshalJSON(data []byte) error {

	// Unmarshal into a raw map to inspect aliases
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	r.Code = firstString(raw, "codigo", "code")
	r.Category = firstString(raw, "categoria", "category")
	r.Estado = firstString(raw, "estado", "status")
	r.Descripcion = firstString(raw, "descripcion", "description")
	r.Detalle = firstString(raw, "detalle", "detail")
	r.Vigente = flexibleBool(raw["vigente"])

	return nil
}

func firstString(raw map[string]json.RawMessage, keys ...string) string {
	for _, key := range keys {
		value, ok := raw[key]
		if !ok || string(value) == "null" {
			continue
		}
		var s string
		if err := json.Unmarshal(value, &s); err == nil {
			return s
		}
		// Numbers and other scalars are kept in their literal form
		if literal := strings.Trim(string(value), `"`); literal != "null" {
			return literal
		}
	}
	return ""
}

func flexibleBool(value json.RawMessage) bool {
	if value == nil {
		return false
	}
	var b bool
	if err := json.Unmarshal(value, &b); err == nil {
		return b
	}
	switch strings.ToLower(strings.Trim(string(value), `" `)) {
	case "true", "si", "sí", "1", "vigente":
		return true
	}
	return false
}

/*******************************
 ***** Classified Records ******
 *******************************/

type NormalizedRecord struct {
	Label          string `json:"label"`
	Vigente        bool   `json:"vigente"`
	Estado         string `json:"estado"`
	Fecha          Date   `json:"fecha"`
	RawDescription string `json:"rawDescription"`
}

type ClassifiedAlertSet struct {
	Examenes       map[string]NormalizedRecord `json:"examenes"`
	Screening      map[string]NormalizedRecord `json:"screening"`
	Tratamientos   map[string]NormalizedRecord `json:"tratamientos"`
	Cardiovascular map[string]NormalizedRecord `json:"cardiovascular"`
	Podologia      *NormalizedRecord           `json:"podologia"`
}

func newClassifiedAlertSet() ClassifiedAlertSet {
	return ClassifiedAlertSet{
		Examenes:       map[string]NormalizedRecord{},
		Screening:      map[string]NormalizedRecord{},
		Tratamientos:   map[string]NormalizedRecord{},
		Cardiovascular: map[string]NormalizedRecord{},
	}
}

func (s ClassifiedAlertSet) isEmpty() bool {
	return len(s.Examenes) == 0 && len(s.Screening) == 0 && len(s.Tratamientos) == 0 &&
		len(s.Cardiovascular) == 0 && s.Podologia == nil
}

// Facts the alert stream does not carry, supplied by the presenter
type AuxData struct {
	DiabetesControls map[string]string `json:"diabetesControls"`
	Procedures       map[string]string `json:"procedures"`
}

/*******************************
 ******** View Models **********
 *******************************/

type Category string

const (
	CategoryExamenes       Category = "examenes"
	CategoryScreening      Category = "screening"
	CategoryTratamientos   Category = "tratamientos"
	CategoryProcedimientos Category = "procedimientos"
	CategoryCardiovascular Category = "cardiovascular"
)

type AlertStatus string

const (
	StatusNoRecord AlertStatus = "no-record"
	StatusCurrent  AlertStatus = "current"
	StatusExpired  AlertStatus = "expired"
)

type AlertViewModel struct {
	Key      string      `json:"key"`
	Name     string      `json:"name"`
	Icon     string      `json:"icon"`
	Status   AlertStatus `json:"status"`
	Message  string      `json:"message"`
	Category Category    `json:"category"`
	Date     Date        `json:"date"`
}

// Alerts grouped by category. Each group keeps rule catalog order.
type AlertGroups struct {
	Examenes       []AlertViewModel `json:"examenes"`
	Screening      []AlertViewModel `json:"screening"`
	Tratamientos   []AlertViewModel `json:"tratamientos"`
	Procedimientos []AlertViewModel `json:"procedimientos"`
	Cardiovascular []AlertViewModel `json:"cardiovascular"`
}

func newAlertGroups() AlertGroups {
	return AlertGroups{
		Examenes:       []AlertViewModel{},
		Screening:      []AlertViewModel{},
		Tratamientos:   []AlertViewModel{},
		Procedimientos: []AlertViewModel{},
		Cardiovascular: []AlertViewModel{},
	}
}

func (g *AlertGroups) add(alert AlertViewModel) {
	switch alert.Category {
	case CategoryExamenes:
		g.Examenes = append(g.Examenes, alert)
	case CategoryScreening:
		g.Screening = append(g.Screening, alert)
	case CategoryTratamientos:
		g.Tratamientos = append(g.Tratamientos, alert)
	case CategoryProcedimientos:
		g.Procedimientos = append(g.Procedimientos, alert)
	case CategoryCardiovascular:
		g.Cardiovascular = append(g.Cardiovascular, alert)
	}
}

func (g AlertGroups) Group(c Category) []AlertViewModel {
	switch c {
	case CategoryExamenes:
		return g.Examenes
	case CategoryScreening:
		return g.Screening
	case CategoryTratamientos:
		return g.Tratamientos
	case CategoryProcedimientos:
		return g.Procedimientos
	case CategoryCardiovascular:
		return g.Cardiovascular
	}
	return nil
}

// ByKey indexes one group by rule key, the shape the presenter renders from.
func (g AlertGroups) ByKey(c Category) map[string]AlertViewModel {
	group := g.Group(c)
	indexed := make(map[string]AlertViewModel, len(group))
	for _, alert := range group {
		indexed[alert.Key] = alert
	}
	return indexed
}

type EvaluationSource string

const (
	SourceNetwork EvaluationSource = "network"
	SourceCache   EvaluationSource = "cache"
	SourceLocal   EvaluationSource = "local"
	SourceEmpty   EvaluationSource = "empty"
)

type Evaluation struct {
	ID          string             `json:"id"`
	PatientID   string             `json:"patientId"`
	Source      EvaluationSource   `json:"source"`
	Degraded    bool               `json:"degraded"`
	Records     ClassifiedAlertSet `json:"records"`
	Alerts      AlertGroups        `json:"alerts"`
	EvaluatedAt time.Time          `json:"evaluatedAt"`
}

/*********************************
 ********* Custom Types **********
 *********************************/

// Calendar date. The zero value stands for "no date".
type Date struct {
	time.Time
}

// Custom UnmarshalJSON for Date type. Malformed dates decode to the zero value
// rather than failing the whole payload.
func (d *Date) UnmarshalJSON(data []byte) error {
	var dateStr string
	if err := json.Unmarshal(data, &dateStr); err != nil {
		d.Time = time.Time{}
		return nil
	}
	*d = parseFlexibleDate(dateStr)
	return nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.Format(isoLayout) + `"`), nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(isoLayout)
}
