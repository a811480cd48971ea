package server

import (
	"context"
	"log"
	"math"
	"time"
)

const (
	sentimentSourceCheckIns = "daily_checkins"
	sentimentSourceChat     = "chat_messages"
)

// Discrete 1-5 mood values map onto a monotonic sentiment scale that
// deliberately over-weights low moods.
var moodToSentiment = map[int]float64{
	1: -0.8,
	2: -0.4,
	3: 0.0,
	4: 0.3,
	5: 0.6,
}

// SentimentContext carries the blended emotional signal attached to a
// profile before generation. A nil context means "no signal", which is
// distinct from a neutral zero reading.
type SentimentContext struct {
	RecentTrend *float64 `json:"recent_trend,omitempty"`
	Latest      *float64 `json:"latest,omitempty"`
	Blended     float64  `json:"blended"`
	Source      string   `json:"source"`
}

type moodEntry struct {
	Mood int
	At   time.Time
}

// aggregateSentiment reduces the user's recent behavioral history to a single
// blended signal. Check-ins are the primary stream; sentiment-scored chat
// messages are the fallback. Storage failures degrade to no signal.
func (a *App) aggregateSentiment(ctx context.Context, userID string, now time.Time) *SentimentContext {
	windowStart := now.Add(-time.Duration(a.cfg.SentimentWindowDays) * 24 * time.Hour)

	entries, err := a.loadMoodEntries(ctx, userID, windowStart)
	if err != nil {
		log.Printf("sentiment aggregation degraded to no signal for user %s: %v", userID, err)
		return nil
	}

	trend, latest := summarizeMoodEntries(entries, now, a.cfg.SentimentHalfLifeDays)
	source := sentimentSourceCheckIns

	if trend == nil && latest == nil {
		chatTrend, err := a.loadChatSentimentAverage(ctx, userID, windowStart)
		if err != nil {
			log.Printf("chat sentiment fallback degraded to no signal for user %s: %v", userID, err)
			return nil
		}
		trend = chatTrend
		source = sentimentSourceChat
	}

	return buildSentimentContext(trend, latest, source)
}

func (a *App) loadMoodEntries(ctx context.Context, userID string, windowStart time.Time) ([]moodEntry, error) {
	rows, err := a.db.Query(
		ctx,
		`SELECT mood, "recordedAt" FROM "CheckIn"
		 WHERE "userId" = $1 AND "recordedAt" >= $2
		 ORDER BY "recordedAt" ASC`,
		userID,
		windowStart.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]moodEntry, 0)
	for rows.Next() {
		var entry moodEntry
		if err := rows.Scan(&entry.Mood, &entry.At); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (a *App) loadChatSentimentAverage(ctx context.Context, userID string, windowStart time.Time) (*float64, error) {
	var avg *float64
	var count int
	err := a.db.QueryRow(
		ctx,
		`SELECT AVG("sentimentScore"), COUNT(*) FROM "ChatMessage"
		 WHERE "userId" = $1 AND sender = 'user'
		   AND "createdAt" >= $2 AND "sentimentScore" IS NOT NULL`,
		userID,
		windowStart.UTC(),
	).Scan(&avg, &count)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	return avg, nil
}

// summarizeMoodEntries computes the recency-decayed trend and the latest
// in-window reading. The latest entry counts even when it sits exactly on
// the window boundary, and it is tracked independently of the decay weights.
func summarizeMoodEntries(entries []moodEntry, now time.Time, halfLifeDays float64) (trend, latest *float64) {
	weightedSum := 0.0
	weightTotal := 0.0
	var latestAt time.Time

	for _, entry := range entries {
		scalar := moodToSentiment[entry.Mood]
		daysAgo := now.Sub(entry.At).Hours() / 24
		if daysAgo < 0 {
			continue
		}
		weight := math.Pow(2, -daysAgo/halfLifeDays)
		weightedSum += scalar * weight
		weightTotal += weight

		if latestAt.IsZero() || entry.At.After(latestAt) {
			latestAt = entry.At
			value := scalar
			latest = &value
		}
	}

	if weightTotal > 0 {
		value := weightedSum / weightTotal
		trend = &value
	}
	return trend, latest
}

// buildSentimentContext blends trend and latest: 60/40 when both exist, the
// surviving component alone otherwise, nil when neither exists.
func buildSentimentContext(trend, latest *float64, source string) *SentimentContext {
	switch {
	case trend != nil && latest != nil:
		return &SentimentContext{
			RecentTrend: trend,
			Latest:      latest,
			Blended:     0.6**trend + 0.4**latest,
			Source:      source,
		}
	case trend != nil:
		return &SentimentContext{RecentTrend: trend, Blended: *trend, Source: source}
	case latest != nil:
		return &SentimentContext{Latest: latest, Blended: *latest, Source: source}
	default:
		return nil
	}
}
