package main

import (
	"context"

	"go.uber.org/zap"
)

var statusMessages = map[AlertStatus]string{
	StatusNoRecord: "Sin registro",
	StatusCurrent:  "Vigente ✅",
	StatusExpired:  "Vencido ⚠️",
}

// AlertBuilder turns classified records into per category view models.
type AlertBuilder struct {
	catalog RuleCatalog
	windows *VigencyConfigProvider
	log     *zap.Logger
}

func NewAlertBuilder(catalog RuleCatalog, windows *VigencyConfigProvider, log *zap.Logger) *AlertBuilder {
	return &AlertBuilder{
		catalog: catalog,
		windows: windows,
		log:     log,
	}
}

// Build evaluates every rule in catalog order. Groups keep that order; nothing
// is sorted afterwards.
func (b *AlertBuilder) Build(ctx context.Context, pc PatientContext, set ClassifiedAlertSet, aux AuxData) AlertGroups {
	groups := newAlertGroups()

	for _, rule := range b.catalog.rules {
		eligibility := evaluateEligibility(rule, pc)
		if !eligibility.Eligible {
			continue
		}
		if eligibility.Overridden {
			b.log.Debug("Rule shown regardless of eligibility", zap.String("rule", rule.Key))
		}

		groups.add(buildAlert(rule, ruleWindow(ctx, b.windows, rule), set, aux))
	}

	return groups
}

// ruleWindow uses the configured window for the rule's key when positive,
// else the rule's own length.
func ruleWindow(ctx context.Context, windows *VigencyConfigProvider, rule Rule) int {
	if windows != nil && rule.WindowKey != "" {
		if days, ok := windows.Window(ctx, rule.WindowKey); ok && days > 0 {
			return days
		}
	}
	return rule.VigencyDays
}

// buildAlert derives the status from the rule's own window only. The upstream
// vigente flag of the record is never consulted here.
func buildAlert(rule Rule, windowDays int, set ClassifiedAlertSet, aux AuxData) AlertViewModel {
	hasRecord, date := rule.Lookup(set, aux)
	vigente := hasRecord && isCurrent(date, windowDays)

	var status AlertStatus
	switch {
	case !hasRecord:
		status = StatusNoRecord
	case vigente:
		status = StatusCurrent
	default:
		status = StatusExpired
	}

	return AlertViewModel{
		Key:      rule.Key,
		Name:     rule.Label,
		Icon:     rule.Icon,
		Status:   status,
		Message:  statusMessages[status],
		Category: rule.Category,
		Date:     date,
	}
}
