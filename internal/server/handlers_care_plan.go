package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

func (a *App) generateCarePlan(c *gin.Context) {
	user, ok := authUserFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var payload profilePayload
	if !mustJSON(c, &payload) {
		return
	}

	profile, err := newRecoveryProfile(payload)
	if err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}

	planID, err := a.createCarePlan(c.Request.Context(), user.ID, profile, time.Now().UTC())
	if err != nil {
		writeError(c, http.StatusInternalServerError, "Failed to generate care plan")
		return
	}

	plan, err := a.loadActivePlan(c.Request.Context(), user.ID)
	if err != nil || plan == nil {
		writeError(c, http.StatusInternalServerError, "Failed to load generated care plan")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"care_plan_id": planID,
		"care_plan":    planResponse(plan),
	})
}

func (a *App) getMyCarePlan(c *gin.Context) {
	user, ok := authUserFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "Unauthorized")
		return
	}

	plan, err := a.loadActivePlan(c.Request.Context(), user.ID)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "Failed to load care plan")
		return
	}
	if plan == nil {
		writeError(c, http.StatusNotFound, "No active care plan found")
		return
	}

	c.JSON(http.StatusOK, gin.H{"care_plan": planResponse(plan)})
}

func (a *App) completeCarePlanTask(c *gin.Context) {
	if _, ok := authUserFromContext(c); !ok {
		writeError(c, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var payload completeTaskRequest
	if !mustJSON(c, &payload) {
		return
	}
	if payload.CarePlanID == "" || payload.TaskID == "" || payload.Completed == nil {
		writeError(c, http.StatusBadRequest, "care_plan_id, task_id, and completed are required")
		return
	}

	updated, err := a.updateTaskCompletion(c.Request.Context(), payload.CarePlanID, payload.TaskID, *payload.Completed)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "Failed to update task completion")
		return
	}
	if !updated {
		writeError(c, http.StatusBadRequest, "Task not found in care plan")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Task completion updated"})
}

func (a *App) regenerateCarePlan(c *gin.Context) {
	user, ok := authUserFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "Unauthorized")
		return
	}

	planID, found, err := a.regenerateCarePlanForUser(c.Request.Context(), user.ID, time.Now().UTC())
	if err != nil {
		writeError(c, http.StatusInternalServerError, "Failed to regenerate care plan")
		return
	}
	if !found {
		writeError(c, http.StatusNotFound, "No active care plan to regenerate")
		return
	}

	plan, err := a.loadActivePlan(c.Request.Context(), user.ID)
	if err != nil || plan == nil {
		writeError(c, http.StatusInternalServerError, "Failed to load regenerated care plan")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"care_plan_id": planID,
		"care_plan":    planResponse(plan),
	})
}

func (a *App) getClusterInsights(c *gin.Context) {
	if _, ok := authUserFromContext(c); !ok {
		writeError(c, http.StatusUnauthorized, "Unauthorized")
		return
	}

	profiles := gin.H{}
	for id, profile := range a.clusters.profiles {
		profiles[strconv.Itoa(id)] = profile
	}

	c.JSON(http.StatusOK, gin.H{
		"total_clusters":   len(a.clusters.profiles),
		"model_loaded":     a.clusters.bundle != nil,
		"cluster_profiles": profiles,
	})
}

func (a *App) predictUserCluster(c *gin.Context) {
	if _, ok := authUserFromContext(c); !ok {
		writeError(c, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var payload profilePayload
	if !mustJSON(c, &payload) {
		return
	}

	profile, err := newRecoveryProfile(payload)
	if err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}

	clusterID := a.clusters.assign(profile)
	c.JSON(http.StatusOK, gin.H{
		"predicted_cluster": clusterID,
		"cluster_profile":   a.clusters.profileFor(clusterID),
	})
}
