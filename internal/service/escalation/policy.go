// Package escalation wraps replies with safety resources according to the
// crisis verdict.
package escalation

import (
	"strings"

	"github.com/zhouzirui/sahayak/backend/internal/model/chat"
)

// Resource is one helpline entry shown to the user.
type Resource struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Hours string `json:"hours"`
}

// Line renders the resource as a bullet line.
func (r Resource) Line() string {
	return "• " + r.Name + ": " + r.Phone + " (" + r.Hours + ")"
}

var crisisResources = []Resource{
	{Name: "Vandrevala Foundation", Phone: "1860-2662-345 or 1800-2333-330", Hours: "24/7, free from all phones"},
	{Name: "iCall", Phone: "+91-9152987821", Hours: "Mon-Sat, 10am-8pm, WhatsApp available"},
	{Name: "AASRA", Phone: "+91-9820466726", Hours: "24/7, English/Hindi"},
}

var mediumResources = []Resource{
	{Name: "Vandrevala", Phone: "1860-2662-345", Hours: "24/7"},
	{Name: "iCall", Phone: "9152987821", Hours: "Mon-Sat, 10am-8pm"},
}

const (
	crisisPreamble = "🚨 [URGENT] 🚨\n" +
		"I'm really concerned about what you're sharing. Your safety is the most important thing right now.\n\n" +
		"Please reach out to these 24/7 helplines immediately:\n"
	crisisClosing  = "\nYou don't have to go through this alone. These trained counselors can help.\n\n"
	mediumPreamble = "🤗 I hear how much you're struggling right now, and I want you to know I'm here for you.\n\n" +
		"Sometimes talking to someone can help. These free, confidential services are available:\n"
	mediumClosing = "\n"
)

// Outcome is the escalated reply plus the record mutation it implies.
type Outcome struct {
	Text        string
	Level       chat.RiskLevel
	SetFollowUp bool
}

// Policy decides escalation purely from the risk level; the reply text never
// influences which branch applies.
type Policy struct{}

// NewPolicy returns the fixed escalation policy.
func NewPolicy() Policy {
	return Policy{}
}

// Apply wraps text for the given level.
func (Policy) Apply(level chat.RiskLevel, text string) Outcome {
	switch level {
	case chat.RiskCrisis:
		return Outcome{
			Text:        crisisPreamble + block(crisisResources) + crisisClosing + text,
			Level:       chat.RiskCrisis,
			SetFollowUp: true,
		}
	case chat.RiskMedium:
		return Outcome{
			Text:  mediumPreamble + block(mediumResources) + mediumClosing + text,
			Level: chat.RiskMedium,
		}
	default:
		return Outcome{Text: text, Level: chat.RiskNone}
	}
}

// Resources returns the helplines attached for level, or nil.
func Resources(level chat.RiskLevel) []Resource {
	switch level {
	case chat.RiskCrisis:
		return append([]Resource(nil), crisisResources...)
	case chat.RiskMedium:
		return append([]Resource(nil), mediumResources...)
	default:
		return nil
	}
}

// UrgentPreamble is the first line of every crisis reply.
func UrgentPreamble() string {
	return strings.SplitN(crisisPreamble, "\n", 2)[0]
}

func block(resources []Resource) string {
	lines := make([]string, len(resources))
	for i, r := range resources {
		lines[i] = r.Line()
	}
	return strings.Join(lines, "\n") + "\n"
}
