package crisis

import (
	"testing"

	"github.com/zhouzirui/sahayak/backend/internal/model/chat"
)

func TestAssessCrisisPhrase(t *testing.T) {
	info := Assess("I feel hopeless and want to end it")
	if !info.IsCrisis || info.RiskLevel != chat.RiskCrisis {
		t.Fatalf("expected crisis, got %+v", info)
	}
	if len(info.MatchedTerms) != 1 || info.MatchedTerms[0] != "want to end it" {
		t.Fatalf("unexpected terms %v", info.MatchedTerms)
	}
}

func TestAssessMediumPhrase(t *testing.T) {
	info := Assess("Honestly I CAN’T   TAKE IT anymore")
	if info.IsCrisis || info.RiskLevel != chat.RiskMedium {
		t.Fatalf("expected medium, got %+v", info)
	}
}

func TestAssessNone(t *testing.T) {
	info := Assess("my exam went fine")
	if info.IsCrisis || info.RiskLevel != chat.RiskNone || len(info.MatchedTerms) != 0 {
		t.Fatalf("expected none, got %+v", info)
	}
}
