package server

import (
	"encoding/json"
	"time"
)

type completeTaskRequest struct {
	CarePlanID string `json:"care_plan_id"`
	TaskID     string `json:"task_id"`
	Completed  *bool  `json:"completed"`
}

type createCheckInRequest struct {
	Mood        *int     `json:"mood"`
	PainLevel   *int     `json:"pain_level"`
	EnergyLevel *int     `json:"energy_level"`
	SleepHours  *float64 `json:"sleep_hours"`
	Note        string   `json:"note"`
	RecordedAt  string   `json:"recorded_at"`
}

type createChatMessageRequest struct {
	Content string `json:"content"`
}

func mustMarshalJSON(input any) string {
	encoded, err := json.Marshal(input)
	if err != nil {
		return "{}"
	}
	return string(encoded)
}

func parseTimestamp(value string, fallback time.Time) time.Time {
	if value == "" {
		return fallback
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return fallback
	}
	return parsed.UTC()
}
