package insight

import "fmt"

// Insight copy is assembled from fixed lookup tables keyed on category and
// severity. Same group in, same words out.

type template struct {
	title  string
	action string
}

var insightTemplates = map[string]map[Severity]template{
	"analytics": {
		SeverityCritical: {
			title:  "Critical analytics anomaly: %s",
			action: "Verify tracking is intact, confirm the movement against the source platform, and brief the account lead today.",
		},
		SeverityHigh: {
			title:  "Significant analytics shift: %s",
			action: "Review the affected metric, identify the driving channel, and prepare a client-facing note.",
		},
		SeverityMedium: {
			title:  "Notable analytics movement: %s",
			action: "Watch the metric over the next sync and annotate the monthly report if it holds.",
		},
		SeverityLow: {
			title:  "Minor analytics variation: %s",
			action: "No immediate action; fold into the weekly performance summary.",
		},
	},
	"crm": {
		SeverityCritical: {
			title:  "Critical pipeline event: %s",
			action: "Contact the deal owner now and confirm the account plan still stands.",
		},
		SeverityHigh: {
			title:  "Pipeline movement needs attention: %s",
			action: "Review the stage change with the deal owner and refresh the forecast.",
		},
		SeverityMedium: {
			title:  "Pipeline update: %s",
			action: "Confirm next steps with the account owner at the next check-in.",
		},
		SeverityLow: {
			title:  "Routine CRM activity: %s",
			action: "No action needed beyond the normal cadence.",
		},
	},
	"social": {
		SeverityCritical: {
			title:  "Critical social exposure: %s",
			action: "Activate the response playbook and notify the client before the story spreads.",
		},
		SeverityHigh: {
			title:  "High-reach social activity: %s",
			action: "Draft a response and flag the mention to the client same-day.",
		},
		SeverityMedium: {
			title:  "Social activity worth a look: %s",
			action: "Review the mention during the next community pass.",
		},
		SeverityLow: {
			title:  "Low-impact social activity: %s",
			action: "Archive after review.",
		},
	},
	"operations": {
		SeverityCritical: {
			title:  "Critical internal fault: %s",
			action: "Page the on-call engineer and halt dependent jobs until resolved.",
		},
		SeverityHigh: {
			title:  "Internal issue needs attention: %s",
			action: "Triage the underlying job or rule before its next scheduled run.",
		},
		SeverityMedium: {
			title:  "Internal event: %s",
			action: "Check the run logs and settings behind this event.",
		},
		SeverityLow: {
			title:  "Routine internal event: %s",
			action: "No action required.",
		},
	},
	"integration": {
		SeverityCritical: {
			title:  "Critical integration failure: %s",
			action: "Check connector credentials and replay the failed deliveries.",
		},
		SeverityHigh: {
			title:  "Integration needs attention: %s",
			action: "Inspect the webhook payloads and confirm the connector is healthy.",
		},
		SeverityMedium: {
			title:  "Integration activity: %s",
			action: "Review the delivery log if the pattern repeats.",
		},
		SeverityLow: {
			title:  "Routine integration activity: %s",
			action: "No action required.",
		},
	},
}

var fallbackTemplates = map[Severity]template{
	SeverityCritical: {
		title:  "Critical signal cluster: %s",
		action: "Investigate the underlying events immediately.",
	},
	SeverityHigh: {
		title:  "Signal cluster needs attention: %s",
		action: "Review the grouped events and decide on a follow-up.",
	},
	SeverityMedium: {
		title:  "Signal cluster: %s",
		action: "Review when convenient.",
	},
	SeverityLow: {
		title:  "Low-priority signal cluster: %s",
		action: "No action required.",
	},
}

var summaryFrames = map[Severity]string{
	SeverityCritical: "%d %s signal(s) of type %s indicate a substantial change that needs immediate review.",
	SeverityHigh:     "%d %s signal(s) of type %s point to a meaningful change in account performance.",
	SeverityMedium:   "%d %s signal(s) of type %s suggest a trend worth tracking.",
	SeverityLow:      "%d %s signal(s) of type %s recorded for reference.",
}

func renderTemplate(category string, severity Severity, group *SignalGroup) (title, summary, action string) {
	tpl, ok := insightTemplates[category][severity]
	if !ok {
		tpl = fallbackTemplates[severity]
	}

	title = fmt.Sprintf(tpl.title, group.Type)
	summary = fmt.Sprintf(summaryFrames[severity], len(group.Signals), category, group.Type)
	action = tpl.action
	return title, summary, action
}
