package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func (a *App) createCheckIn(c *gin.Context) {
	user, ok := authUserFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var payload createCheckInRequest
	if !mustJSON(c, &payload) {
		return
	}
	if payload.Mood == nil || *payload.Mood < 1 || *payload.Mood > 5 {
		writeError(c, http.StatusBadRequest, "mood must be between 1 and 5")
		return
	}

	var pain, energy any
	if payload.PainLevel != nil {
		pain = clampInt(*payload.PainLevel, 1, 10)
	}
	if payload.EnergyLevel != nil {
		energy = clampInt(*payload.EnergyLevel, 1, 10)
	}
	var sleep any
	if payload.SleepHours != nil {
		sleep = clampFloat(*payload.SleepHours, 0, 24)
	}

	recordedAt := parseTimestamp(payload.RecordedAt, time.Now().UTC())

	checkInID := uuid.NewString()
	_, err := a.db.Exec(
		c.Request.Context(),
		`INSERT INTO "CheckIn" (id, "userId", mood, "painLevel", "energyLevel", "sleepHours", note, "recordedAt", "createdAt")
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())`,
		checkInID,
		user.ID,
		*payload.Mood,
		pain,
		energy,
		sleep,
		strings.TrimSpace(payload.Note),
		recordedAt,
	)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "Failed to save check-in")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"checkin_id":  checkInID,
		"mood":        *payload.Mood,
		"recorded_at": recordedAt,
	})
}

func (a *App) getRecentCheckIns(c *gin.Context) {
	user, ok := authUserFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "Unauthorized")
		return
	}

	days := a.cfg.SentimentWindowDays
	if raw := strings.TrimSpace(c.Query("days")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 90 {
			writeError(c, http.StatusBadRequest, "days must be between 1 and 90")
			return
		}
		days = parsed
	}
	windowStart := time.Now().UTC().Add(-time.Duration(days) * 24 * time.Hour)

	rows, err := a.db.Query(
		c.Request.Context(),
		`SELECT id, mood, "painLevel", "energyLevel", "sleepHours", note, "recordedAt"
		 FROM "CheckIn"
		 WHERE "userId" = $1 AND "recordedAt" >= $2
		 ORDER BY "recordedAt" DESC`,
		user.ID,
		windowStart,
	)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "Failed to load check-ins")
		return
	}
	defer rows.Close()

	checkins := make([]gin.H, 0)
	for rows.Next() {
		var id, note string
		var mood int
		var pain, energy *int
		var sleep *float64
		var recordedAt time.Time
		if err := rows.Scan(&id, &mood, &pain, &energy, &sleep, &note, &recordedAt); err != nil {
			writeError(c, http.StatusInternalServerError, "Failed to load check-ins")
			return
		}
		checkins = append(checkins, gin.H{
			"id":           id,
			"mood":         mood,
			"pain_level":   pain,
			"energy_level": energy,
			"sleep_hours":  sleep,
			"note":         note,
			"recorded_at":  recordedAt.UTC(),
		})
	}
	if rows.Err() != nil {
		writeError(c, http.StatusInternalServerError, "Failed to load check-ins")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"window_days": days,
		"checkins":    checkins,
	})
}

func (a *App) createChatMessage(c *gin.Context) {
	user, ok := authUserFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var payload createChatMessageRequest
	if !mustJSON(c, &payload) {
		return
	}
	content := strings.TrimSpace(payload.Content)
	if content == "" {
		writeError(c, http.StatusBadRequest, "content is required")
		return
	}

	score, label := scoreMessageSentiment(content)

	messageID := uuid.NewString()
	_, err := a.db.Exec(
		c.Request.Context(),
		`INSERT INTO "ChatMessage" (id, "userId", sender, content, "sentimentScore", "sentimentLabel", "createdAt")
		 VALUES ($1, $2, 'user', $3, $4, $5, NOW())`,
		messageID,
		user.ID,
		content,
		score,
		label,
	)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "Failed to save message")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message_id": messageID,
		"sentiment": gin.H{
			"score": score,
			"label": label,
		},
	})
}
