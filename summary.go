package main

import (
	"bytes"
	"text/template"
)

const summaryTemplate = `Evaluation {{.ID}} patient={{.PatientID}} source={{.Source}}{{if .Degraded}} degraded{{end}}
{{range .Groups}}[{{.Name}}]
{{range .Alerts}}  {{.Key}}: {{.Status}}{{if not .Date.IsZero}} ({{.Date}}){{end}}
{{else}}  none
{{end}}{{end}}`

var summaryTmpl = template.Must(template.New("summary").Parse(summaryTemplate))

type summaryGroup struct {
	Name   Category
	Alerts []AlertViewModel
}

// renderSummary builds the plain text detail shipped with the web log.
func renderSummary(ev *Evaluation) (string, error) {
	data := struct {
		ID        string
		PatientID string
		Source    EvaluationSource
		Degraded  bool
		Groups    []summaryGroup
	}{
		ID:        ev.ID,
		PatientID: ev.PatientID,
		Source:    ev.Source,
		Degraded:  ev.Degraded,
	}

	for _, category := range []Category{
		CategoryExamenes,
		CategoryScreening,
		CategoryTratamientos,
		CategoryProcedimientos,
		CategoryCardiovascular,
	} {
		data.Groups = append(data.Groups, summaryGroup{Name: category, Alerts: ev.Alerts.Group(category)})
	}

	var buf bytes.Buffer
	if err := summaryTmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
