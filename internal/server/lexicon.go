package server

import "strings"

var negativeSentimentWords = map[string]struct{}{
	"sad": {}, "anxious": {}, "depressed": {}, "down": {}, "bad": {},
	"terrible": {}, "awful": {}, "cry": {}, "hopeless": {}, "tired": {},
	"angry": {}, "worried": {}, "scared": {}, "panic": {}, "overwhelmed": {},
	"helpless": {}, "worthless": {}, "lonely": {}, "guilty": {},
}

var positiveSentimentWords = map[string]struct{}{
	"happy": {}, "good": {}, "great": {}, "relieved": {}, "calm": {},
	"hopeful": {}, "okay": {}, "fine": {}, "better": {}, "improving": {},
	"proud": {}, "grateful": {}, "supported": {}, "encouraged": {},
	"strong": {}, "confident": {}, "peaceful": {}, "loved": {},
}

// scoreMessageSentiment is a rough keyword-balance analyzer for free-text
// messages: (pos-neg)/(pos+neg) clamped to [-1,1], zero when no keyword hits.
func scoreMessageSentiment(text string) (float64, string) {
	score := 0.0
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9') && r != '\''
	})

	pos := 0
	neg := 0
	for _, word := range fields {
		if _, ok := positiveSentimentWords[word]; ok {
			pos++
		}
		if _, ok := negativeSentimentWords[word]; ok {
			neg++
		}
	}
	if pos+neg > 0 {
		score = float64(pos-neg) / float64(pos+neg)
	}
	if score > 1 {
		score = 1
	}
	if score < -1 {
		score = -1
	}

	return score, sentimentLabel(score)
}

func sentimentLabel(score float64) string {
	switch {
	case score >= 0.05:
		return "positive"
	case score <= -0.05:
		return "negative"
	default:
		return "neutral"
	}
}
