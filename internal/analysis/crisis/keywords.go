// Package crisis holds the keyword heuristics used to flag self-harm risk
// without a model.
package crisis

import (
	"strings"

	"github.com/zhouzirui/sahayak/backend/internal/model/chat"
)

var crisisTerms = []string{
	"suicide", "suicidal", "end my life", "kill myself", "want to die", "no reason to live",
	"self harm", "self-harm", "hurting myself", "hurt myself", "end it all", "want to end it",
	"better off dead",
}

var mediumTerms = []string{
	"can't take it", "cannot take it", "giving up", "give up on everything", "hopeless", "helpless",
	"can't cope", "cannot cope", "worthless", "no way out", "breaking down",
}

// Assess scans text for crisis and medium-risk phrases. Crisis phrases take
// precedence; matched terms are reported in list order.
func Assess(text string) chat.CrisisInfo {
	normalized := strings.ToLower(strings.Join(strings.Fields(text), " "))
	normalized = strings.ReplaceAll(normalized, "’", "'")

	if matched := match(normalized, crisisTerms); len(matched) > 0 {
		return chat.CrisisInfo{IsCrisis: true, RiskLevel: chat.RiskCrisis, MatchedTerms: matched}
	}
	if matched := match(normalized, mediumTerms); len(matched) > 0 {
		return chat.CrisisInfo{RiskLevel: chat.RiskMedium, MatchedTerms: matched}
	}
	return chat.CrisisInfo{RiskLevel: chat.RiskNone}
}

func match(text string, terms []string) []string {
	var matched []string
	for _, term := range terms {
		if strings.Contains(text, term) {
			matched = append(matched, term)
		}
	}
	return matched
}
