package emotion

import (
	"strings"

	"github.com/zhouzirui/sahayak/backend/internal/model/chat"
)

// Label is one emotion in the fixed vocabulary.
type Label string

const (
	Anger    Label = "anger"
	Disgust  Label = "disgust"
	Fear     Label = "fear"
	Joy      Label = "joy"
	Neutral  Label = "neutral"
	Sadness  Label = "sadness"
	Surprise Label = "surprise"
)

// Vocabulary lists the labels in canonical order. Distributions are always
// emitted in this order so ties resolve the same way every time.
var Vocabulary = []Label{Anger, Disgust, Fear, Joy, Neutral, Sadness, Surprise}

// Decision is the heuristic result for one utterance.
type Decision struct {
	Scores   chat.EmotionScores
	Dominant Label
	Hits     int
}

var keywordBuckets = map[Label][]string{
	Anger: {
		"angry", "furious", "rage", "mad at", "annoyed", "irritated", "frustrated", "pissed",
		"hate", "fed up", "unfair", "gussa",
	},
	Disgust: {
		"disgusted", "disgusting", "gross", "sick of", "revolting", "ashamed of myself", "cringe",
	},
	Fear: {
		"scared", "afraid", "fear", "anxious", "anxiety", "panic", "nervous", "worried", "terrified",
		"overwhelmed", "dread", "what if",
	},
	Joy: {
		"happy", "glad", "great", "awesome", "excited", "relieved", "proud", "thank", "love it",
		"better today", "good news", "yay", "khush",
	},
	Sadness: {
		"sad", "down", "depressed", "lonely", "alone", "cry", "crying", "hopeless", "empty",
		"miss", "hurt", "worthless", "tired of", "heartbroken", "dukhi", "udaas",
	},
	Surprise: {
		"surprised", "shocked", "unexpected", "can't believe", "cannot believe", "suddenly", "wow",
	},
}

// Analyze scores text against the keyword buckets and returns a normalized
// distribution over Vocabulary.
func Analyze(text string) Decision {
	normalized := strings.TrimSpace(strings.ToLower(text))

	raw := make(map[Label]int, len(Vocabulary))
	hits := 0
	if normalized != "" {
		for label, keywords := range keywordBuckets {
			for _, word := range keywords {
				if strings.Contains(normalized, word) {
					raw[label] += 3
					hits++
				}
			}
		}
	}

	if exclamations := strings.Count(text, "!"); exclamations > 0 && hits > 0 {
		// exclamations intensify whatever was already detected
		for label := range raw {
			raw[label] += exclamations
		}
	}

	if hits == 0 {
		raw[Neutral] = 1
	}

	return Decision{
		Scores:   Normalize(raw),
		Dominant: dominantOf(raw),
		Hits:     hits,
	}
}

// Normalize converts raw weights into scores in Vocabulary order summing to 1.
func Normalize(raw map[Label]int) chat.EmotionScores {
	total := 0
	for _, v := range raw {
		if v > 0 {
			total += v
		}
	}

	scores := make(chat.EmotionScores, 0, len(Vocabulary))
	for _, label := range Vocabulary {
		score := 0.0
		if total > 0 && raw[label] > 0 {
			score = float64(raw[label]) / float64(total)
		}
		scores = append(scores, chat.EmotionScore{Label: string(label), Score: score})
	}
	return scores
}

// Parse maps a free-form label onto the vocabulary.
func Parse(raw string) (Label, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "anger", "angry":
		return Anger, true
	case "disgust", "disgusted":
		return Disgust, true
	case "fear", "afraid", "anxious", "anxiety":
		return Fear, true
	case "joy", "happy", "happiness":
		return Joy, true
	case "neutral":
		return Neutral, true
	case "sadness", "sad":
		return Sadness, true
	case "surprise", "surprised":
		return Surprise, true
	default:
		return "", false
	}
}

func dominantOf(raw map[Label]int) Label {
	best := Neutral
	bestScore := 0
	for _, label := range Vocabulary {
		if raw[label] > bestScore {
			bestScore = raw[label]
			best = label
		}
	}
	return best
}
