package server

import (
	"math"
	"testing"
	"time"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestBuildSentimentContextBlending(t *testing.T) {
	trend := -0.5
	latest := -0.1

	both := buildSentimentContext(&trend, &latest, sentimentSourceCheckIns)
	if both == nil {
		t.Fatalf("expected context when both components exist")
	}
	if !almostEqual(both.Blended, -0.34) {
		t.Fatalf("expected blended -0.34, got %v", both.Blended)
	}
	if both.Source != sentimentSourceCheckIns {
		t.Fatalf("unexpected source %q", both.Source)
	}

	trendOnly := buildSentimentContext(&trend, nil, sentimentSourceChat)
	if trendOnly == nil || trendOnly.Blended != trend {
		t.Fatalf("expected blended to equal the surviving trend, got %+v", trendOnly)
	}
	if trendOnly.Latest != nil {
		t.Fatalf("expected nil latest when only trend survives")
	}

	latestOnly := buildSentimentContext(nil, &latest, sentimentSourceCheckIns)
	if latestOnly == nil || latestOnly.Blended != latest {
		t.Fatalf("expected blended to equal the surviving latest, got %+v", latestOnly)
	}

	if got := buildSentimentContext(nil, nil, sentimentSourceCheckIns); got != nil {
		t.Fatalf("expected nil context when no component exists, got %+v", got)
	}
}

func TestSummarizeMoodEntriesDecay(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	entries := []moodEntry{
		{Mood: 1, At: now.Add(-3 * 24 * time.Hour)},
		{Mood: 5, At: now},
	}

	trend, latest := summarizeMoodEntries(entries, now, 3.0)
	if trend == nil || latest == nil {
		t.Fatalf("expected both trend and latest, got trend=%v latest=%v", trend, latest)
	}
	// weight(3 days ago, half-life 3) = 0.5, so (-0.8*0.5 + 0.6*1) / 1.5
	if !almostEqual(*trend, 0.2/1.5) {
		t.Fatalf("expected decayed trend %v, got %v", 0.2/1.5, *trend)
	}
	if *latest != 0.6 {
		t.Fatalf("expected latest to track the newest entry, got %v", *latest)
	}
}

func TestSummarizeMoodEntriesSkipsFutureAndEmpty(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	trend, latest := summarizeMoodEntries(nil, now, 3.0)
	if trend != nil || latest != nil {
		t.Fatalf("expected no signal for no entries, got trend=%v latest=%v", trend, latest)
	}

	future := []moodEntry{{Mood: 5, At: now.Add(time.Hour)}}
	trend, latest = summarizeMoodEntries(future, now, 3.0)
	if trend != nil || latest != nil {
		t.Fatalf("expected future entries to be ignored, got trend=%v latest=%v", trend, latest)
	}

	mixed := []moodEntry{
		{Mood: 5, At: now.Add(time.Hour)},
		{Mood: 2, At: now.Add(-time.Hour)},
	}
	trend, latest = summarizeMoodEntries(mixed, now, 3.0)
	if trend == nil || latest == nil {
		t.Fatalf("expected the in-window entry to count")
	}
	if *latest != -0.4 {
		t.Fatalf("expected latest -0.4 from the in-window entry, got %v", *latest)
	}
}

func TestScoreMessageSentiment(t *testing.T) {
	score, label := scoreMessageSentiment("I feel sad and anxious today")
	if score != -1 || label != "negative" {
		t.Fatalf("expected fully negative score, got %v %q", score, label)
	}

	score, label = scoreMessageSentiment("Feeling happy and grateful!")
	if score != 1 || label != "positive" {
		t.Fatalf("expected fully positive score, got %v %q", score, label)
	}

	score, label = scoreMessageSentiment("happy but so tired")
	if score != 0 || label != "neutral" {
		t.Fatalf("expected balanced score to be neutral, got %v %q", score, label)
	}

	score, label = scoreMessageSentiment("the baby slept through the night")
	if score != 0 || label != "neutral" {
		t.Fatalf("expected no-keyword text to be neutral, got %v %q", score, label)
	}
}

func TestSentimentLabelCutoffs(t *testing.T) {
	if got := sentimentLabel(0.05); got != "positive" {
		t.Fatalf("expected positive at the cutoff, got %q", got)
	}
	if got := sentimentLabel(-0.05); got != "negative" {
		t.Fatalf("expected negative at the cutoff, got %q", got)
	}
	if got := sentimentLabel(0.049); got != "neutral" {
		t.Fatalf("expected neutral inside the band, got %q", got)
	}
}
