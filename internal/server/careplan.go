package server

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// createCarePlan runs the full personalization pipeline and persists the
// resulting plan. Any prior plans for the user are removed first, so at most
// one active plan exists per user. Deliberately not idempotent: each call
// replaces the previous plan.
func (a *App) createCarePlan(ctx context.Context, userID string, profile RecoveryProfile, now time.Time) (string, error) {
	profile.Sentiment = a.aggregateSentiment(ctx, userID, now)

	clusterID := a.clusters.assign(profile)
	clusterInfo := a.clusters.profileFor(clusterID)
	artifacts := generatePlanArtifacts(profile, clusterID)

	tx, err := a.db.Begin(ctx)
	if err != nil {
		return "", err
	}
	defer tx.Rollback(ctx)

	planID, err := insertCarePlan(ctx, tx, userID, profile, clusterID, clusterInfo, artifacts, now)
	if err != nil {
		return "", err
	}
	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	return planID, nil
}

// insertCarePlan replaces the user's plans inside the caller's transaction so
// the at-most-one-active invariant holds even under concurrent generation.
func insertCarePlan(
	ctx context.Context,
	q dbQuerier,
	userID string,
	profile RecoveryProfile,
	clusterID int,
	clusterInfo ClusterProfile,
	artifacts planArtifacts,
	now time.Time,
) (string, error) {
	if _, err := q.Exec(ctx, `DELETE FROM "CarePlan" WHERE "userId" = $1`, userID); err != nil {
		return "", err
	}

	var sentimentJSON any
	if profile.Sentiment != nil {
		sentimentJSON = mustMarshalJSON(profile.Sentiment)
	}

	planID := uuid.NewString()
	_, err := q.Exec(
		ctx,
		`INSERT INTO "CarePlan" (
			id, "userId", "clusterId", "profileJson", "clusterInfoJson",
			"prioritiesJson", "tasksJson", "resourcesJson", "monitoringJson",
			"personalizationJson", "sentimentJson", "dailyTimeBudgetMinutes",
			"totalTasks", "completedTasks", "completionPercentage",
			version, "isActive", "weekStart", "createdAt", "updatedAt"
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, 0, 0, 1, TRUE, $14, NOW(), NOW())`,
		planID,
		userID,
		clusterID,
		profile.marshal(),
		mustMarshalJSON(clusterInfo),
		mustMarshalJSON(artifacts.Priorities),
		mustMarshalJSON(artifacts.Tasks),
		mustMarshalJSON(artifacts.Resources),
		mustMarshalJSON(artifacts.Monitoring),
		mustMarshalJSON(artifacts.Personalization),
		sentimentJSON,
		artifacts.DailyTimeBudgetMinutes,
		len(artifacts.Tasks),
		now.UTC(),
	)
	if err != nil {
		return "", err
	}
	return planID, nil
}

type planRow struct {
	ID                   string
	UserID               string
	ClusterID            int
	ProfileRaw           []byte
	ClusterInfoRaw       []byte
	PrioritiesRaw        []byte
	TasksRaw             []byte
	ResourcesRaw         []byte
	MonitoringRaw        []byte
	PersonalizationRaw   []byte
	SentimentRaw         []byte
	DailyTimeBudget      int
	TotalTasks           int
	CompletedTasks       int
	CompletionPercentage float64
	Version              int
	IsActive             bool
	WeekStart            time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// loadActivePlan returns nil without error when the user has no active plan.
func (a *App) loadActivePlan(ctx context.Context, userID string) (*planRow, error) {
	row := planRow{}
	err := a.db.QueryRow(
		ctx,
		`SELECT id, "userId", "clusterId", "profileJson", "clusterInfoJson",
		        "prioritiesJson", "tasksJson", "resourcesJson", "monitoringJson",
		        "personalizationJson", "sentimentJson", "dailyTimeBudgetMinutes",
		        "totalTasks", "completedTasks", "completionPercentage",
		        version, "isActive", "weekStart", "createdAt", "updatedAt"
		 FROM "CarePlan"
		 WHERE "userId" = $1 AND "isActive" = TRUE
		 LIMIT 1`,
		userID,
	).Scan(
		&row.ID, &row.UserID, &row.ClusterID, &row.ProfileRaw, &row.ClusterInfoRaw,
		&row.PrioritiesRaw, &row.TasksRaw, &row.ResourcesRaw, &row.MonitoringRaw,
		&row.PersonalizationRaw, &row.SentimentRaw, &row.DailyTimeBudget,
		&row.TotalTasks, &row.CompletedTasks, &row.CompletionPercentage,
		&row.Version, &row.IsActive, &row.WeekStart, &row.CreatedAt, &row.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func planResponse(row *planRow) gin.H {
	profile := parseJSONStringMap(row.ProfileRaw)

	var sentiment any
	if len(row.SentimentRaw) > 0 {
		sentiment = parseJSONStringMap(row.SentimentRaw)
	}

	return gin.H{
		"id":                        row.ID,
		"cluster_id":                row.ClusterID,
		"postpartum_week":           profile["postpartum_week"],
		"user_profile":              profile,
		"cluster_info":              parseJSONStringMap(row.ClusterInfoRaw),
		"weekly_priorities":         parseJSONStringList(row.PrioritiesRaw),
		"daily_tasks":               parseJSONStringList(row.TasksRaw),
		"resources":                 parseJSONStringList(row.ResourcesRaw),
		"health_monitoring":         parseJSONStringMap(row.MonitoringRaw),
		"personalization_context":   parseJSONStringMap(row.PersonalizationRaw),
		"sentiment_context":         sentiment,
		"daily_time_budget_minutes": row.DailyTimeBudget,
		"progress_tracking": gin.H{
			"total_tasks":           row.TotalTasks,
			"completed_tasks":       row.CompletedTasks,
			"completion_percentage": row.CompletionPercentage,
		},
		"is_active":  row.IsActive,
		"week_start": row.WeekStart.UTC(),
		"created_at": row.CreatedAt.UTC(),
		"updated_at": row.UpdatedAt.UTC(),
	}
}

// updateTaskCompletion flips one task's completed flag and recomputes the
// progress counters. Unknown plan or task ids report false without mutating
// anything. Concurrent mutations are detected through the plan's version
// column; the update retries once on a version conflict.
func (a *App) updateTaskCompletion(ctx context.Context, planID, taskID string, completed bool) (bool, error) {
	for attempt := 0; attempt < 2; attempt++ {
		var tasksRaw []byte
		var version int
		err := a.db.QueryRow(
			ctx,
			`SELECT "tasksJson", version FROM "CarePlan" WHERE id = $1`,
			planID,
		).Scan(&tasksRaw, &version)
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		if err != nil {
			return false, err
		}

		var tasks []PlanTask
		if err := json.Unmarshal(tasksRaw, &tasks); err != nil {
			return false, err
		}

		found := false
		completedCount := 0
		for i := range tasks {
			if tasks[i].ID == taskID {
				tasks[i].Completed = completed
				found = true
			}
			if tasks[i].Completed {
				completedCount++
			}
		}
		if !found {
			return false, nil
		}

		percentage := 0.0
		if len(tasks) > 0 {
			percentage = float64(completedCount) / float64(len(tasks)) * 100
		}

		tag, err := a.db.Exec(
			ctx,
			`UPDATE "CarePlan"
			 SET "tasksJson" = $1,
			     "completedTasks" = $2,
			     "completionPercentage" = $3,
			     version = version + 1,
			     "updatedAt" = NOW()
			 WHERE id = $4 AND version = $5`,
			mustMarshalJSON(tasks),
			completedCount,
			percentage,
			planID,
			version,
		)
		if err != nil {
			return false, err
		}
		if tag.RowsAffected() > 0 {
			return true, nil
		}
		// Version moved underneath us; re-read and retry once.
	}
	return false, nil
}

// regenerateCarePlanForUser advances the embedded profile by one week,
// deactivates the current plan, and reruns the whole pipeline. Returns
// found=false when there is nothing to regenerate.
func (a *App) regenerateCarePlanForUser(ctx context.Context, userID string, now time.Time) (string, bool, error) {
	current, err := a.loadActivePlan(ctx, userID)
	if err != nil {
		return "", false, err
	}
	if current == nil {
		return "", false, nil
	}

	profile, err := unmarshalRecoveryProfile(current.ProfileRaw)
	if err != nil {
		return "", false, err
	}
	profile.PostpartumWeek++
	// Sentiment is recomputed inside create; the stale snapshot must not
	// carry over.
	profile.Sentiment = nil

	if _, err := a.db.Exec(
		ctx,
		`UPDATE "CarePlan"
		 SET "isActive" = FALSE, version = version + 1, "updatedAt" = NOW()
		 WHERE id = $1`,
		current.ID,
	); err != nil {
		return "", false, err
	}

	planID, err := a.createCarePlan(ctx, userID, profile, now)
	if err != nil {
		return "", false, err
	}
	return planID, true, nil
}
