package assembler

import "github.com/ShayCichocki/weave/pkg/models"

// roleDefaults maps a step role to the injection rules applied when the
// step declares none of its own.
var roleDefaults = map[string][]models.InjectionRule{
	"analyzer": {
		{Source: models.SourceTask, Priority: models.PriorityCritical, Mode: models.IncludeFull, Section: "task"},
		{Source: models.SourceFile, Priority: models.PriorityMedium, Mode: models.IncludeFull, Section: "reference"},
	},
	"implementer": {
		{Source: models.SourceTask, Priority: models.PriorityCritical, Mode: models.IncludeFull, Section: "task"},
		{Source: models.SourceSteps, Priority: models.PriorityHigh, Mode: models.IncludeFull, Section: "prior-work"},
		{Source: models.SourceFile, Priority: models.PriorityMedium, Mode: models.IncludeSummary, Section: "reference"},
	},
	"reviewer": {
		{Source: models.SourceSteps, Priority: models.PriorityCritical, Mode: models.IncludeFull, Section: "work-under-review"},
		{Source: models.SourceTask, Priority: models.PriorityHigh, Mode: models.IncludeFull, Section: "task"},
	},
}

// defaultRules applies when a step has neither explicit rules nor a
// recognized role: the task itself is critical, prior work is low priority.
var defaultRules = []models.InjectionRule{
	{Source: models.SourceTask, Priority: models.PriorityCritical, Mode: models.IncludeFull, Section: "task"},
	{Source: models.SourceSteps, Priority: models.PriorityMedium, Mode: models.IncludeFull, Section: "prior-work"},
}

// RulesForStep returns the injection rules for a step: its explicit rules
// when present, otherwise its role's defaults, otherwise the generic set.
func RulesForStep(step models.Step) []models.InjectionRule {
	if len(step.InjectionRules) > 0 {
		return step.InjectionRules
	}
	if rules, ok := roleDefaults[step.Role]; ok {
		return rules
	}
	return defaultRules
}
