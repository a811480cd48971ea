package server

import (
	"fmt"
	"log"
	"strings"
)

const (
	categoryMentalHealth     = "mental_health"
	categoryPhysicalRecovery = "physical_recovery"
	categoryFeeding          = "feeding"
	categorySleep            = "sleep"
	categoryWellness         = "wellness"
	categoryFamilySupport    = "family_support"
)

const (
	priorityHigh   = "high"
	priorityMedium = "medium"
	priorityLow    = "low"
)

// Sentiment bands for plan modulation.
const (
	sentimentLowCut      = -0.3
	sentimentMildLowCut  = 0.1
	sentimentPositiveCut = 0.4
)

type PlanTask struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Description     string `json:"description"`
	Category        string `json:"category"`
	Priority        string `json:"priority"`
	DurationMinutes int    `json:"duration_minutes"`
	Completed       bool   `json:"completed"`
}

type PriorityCard struct {
	Icon        string `json:"icon"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

type PlanResource struct {
	Title string `json:"title"`
	URL   string `json:"url,omitempty"`
	Type  string `json:"type,omitempty"`
}

type MetricSpec struct {
	Metric    string `json:"metric"`
	Scale     string `json:"scale"`
	Frequency string `json:"frequency"`
}

type AssessmentSpec struct {
	Assessment string `json:"assessment"`
	Frequency  string `json:"frequency"`
}

type HealthAlert struct {
	Type      string `json:"type"`
	Condition string `json:"condition"`
	Message   string `json:"message"`
}

type HealthMonitoring struct {
	DailyMetrics      []MetricSpec     `json:"daily_metrics"`
	WeeklyAssessments []AssessmentSpec `json:"weekly_assessments"`
	Alerts            []HealthAlert    `json:"alerts"`
	IntegrationReady  map[string]bool  `json:"integration_ready"`
}

type PreviousExperience struct {
	Pregnancies   int  `json:"pregnancies"`
	Complications bool `json:"complications"`
}

type PersonalizationContext struct {
	RiskFactors            []string           `json:"risk_factors"`
	SupportLevel           int                `json:"support_level"`
	CulturalConsiderations map[string]any     `json:"cultural_considerations"`
	PreviousExperience     PreviousExperience `json:"previous_experience"`
	CurrentChallenges      []string           `json:"current_challenges"`
}

type planArtifacts struct {
	Tasks                  []PlanTask
	Priorities             []PriorityCard
	Resources              []PlanResource
	Monitoring             HealthMonitoring
	Personalization        PersonalizationContext
	DailyTimeBudgetMinutes int
}

// generatePlanArtifacts is the pure rule engine: condition blocks accumulate
// tasks and resources, sentiment modulation adjusts intensity, and the
// result is fully deterministic for identical inputs. It never fails: any
// internal panic degrades to the minimal generic plan.
func generatePlanArtifacts(profile RecoveryProfile, clusterID int) (artifacts planArtifacts) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("plan generation failed (%v), serving minimal generic plan", r)
			artifacts = minimalGenericPlan(profile)
		}
	}()

	artifacts = planArtifacts{
		Tasks:                  generateDailyTasks(profile),
		Priorities:             generateWeeklyPriorities(profile),
		Resources:              generateResources(profile),
		Monitoring:             generateHealthMonitoring(profile),
		Personalization:        buildPersonalizationContext(profile),
		DailyTimeBudgetMinutes: dailyTimeBudget(profile.Sentiment),
	}
	return artifacts
}

func generateDailyTasks(profile RecoveryProfile) []PlanTask {
	tasks := make([]PlanTask, 0, 12)
	epds := profile.epdsEquivalent()

	// Mental health block, with an escalated branch for severe risk.
	if epds >= elevatedEPDSCut || profile.MoodScore <= 4 {
		if epds >= severeEPDSCut {
			tasks = append(tasks,
				PlanTask{
					Title:           "Complete mood check-in questionnaire",
					Description:     "Track your emotional state to identify patterns",
					Category:        categoryMentalHealth,
					Priority:        priorityHigh,
					DurationMinutes: 5,
				},
				PlanTask{
					Title:           "Practice guided breathing exercise",
					Description:     "Use deep breathing to manage anxiety and stress",
					Category:        categoryMentalHealth,
					Priority:        priorityHigh,
					DurationMinutes: 10,
				},
			)
		} else {
			tasks = append(tasks, PlanTask{
				Title:           "Journal three positive moments from today",
				Description:     "Focus on gratitude and positive experiences",
				Category:        categoryMentalHealth,
				Priority:        priorityMedium,
				DurationMinutes: 10,
			})
		}
	}

	// Physical recovery block; the surgical branch is additionally week-gated.
	if profile.DeliveryType == deliveryCSection || profile.PainLevel >= 5 {
		if profile.DeliveryType == deliveryCSection && profile.PostpartumWeek <= 2 {
			tasks = append(tasks,
				PlanTask{
					Title:           "Monitor incision site for healing",
					Description:     "Check for redness, swelling, or unusual discharge",
					Category:        categoryPhysicalRecovery,
					Priority:        priorityHigh,
					DurationMinutes: 5,
				},
				PlanTask{
					Title:           "Practice gentle abdominal breathing",
					Description:     "Support core recovery with breathing exercises",
					Category:        categoryPhysicalRecovery,
					Priority:        priorityMedium,
					DurationMinutes: 10,
				},
			)
		} else if profile.PostpartumWeek > 2 {
			tasks = append(tasks, PlanTask{
				Title:           "Take a 10-15 minute gentle walk",
				Description:     "Gradually increase activity as cleared by doctor",
				Category:        categoryPhysicalRecovery,
				Priority:        priorityMedium,
				DurationMinutes: 15,
			})
		}
	}

	// Feeding support block.
	if feedingSupportTriggered(profile) {
		tasks = append(tasks,
			PlanTask{
				Title:           "Log feeding session details",
				Description:     "Track duration, frequency, and baby satisfaction",
				Category:        categoryFeeding,
				Priority:        priorityHigh,
				DurationMinutes: 3,
			},
			PlanTask{
				Title:           "Perform breast care routine",
				Description:     "Apply nipple cream and check for issues",
				Category:        categoryFeeding,
				Priority:        priorityMedium,
				DurationMinutes: 5,
			},
		)
	}

	// Sleep and energy block.
	if profile.SleepHours < 6 || profile.EnergyLevel <= 4 {
		if profile.SleepHours < 5 {
			tasks = append(tasks, PlanTask{
				Title:           "Plan strategic nap opportunity",
				Description:     "Identify 20-30 minute nap window when baby sleeps",
				Category:        categorySleep,
				Priority:        priorityHigh,
				DurationMinutes: 30,
			})
		}
		if profile.EnergyLevel <= 3 {
			tasks = append(tasks, PlanTask{
				Title:           "Practice energy-boosting stretches",
				Description:     "Gentle movements to improve circulation and energy",
				Category:        categoryWellness,
				Priority:        priorityMedium,
				DurationMinutes: 10,
			})
		}
	}

	// Wellness baseline, always included.
	tasks = append(tasks,
		PlanTask{
			Title:           "Hydration check and water intake",
			Description:     "Aim for 8-10 glasses, more if breastfeeding",
			Category:        categoryWellness,
			Priority:        priorityHigh,
			DurationMinutes: 2,
		},
		PlanTask{
			Title:           "Take prescribed vitamins/supplements",
			Description:     "Continue prenatal vitamins as recommended",
			Category:        categoryWellness,
			Priority:        priorityHigh,
			DurationMinutes: 1,
		},
	)

	tasks = applySentimentModulation(tasks, profile)
	return assignTaskIDs(tasks)
}

func feedingSupportTriggered(profile RecoveryProfile) bool {
	if profile.Feeding == feedingBreast || profile.Feeding == feedingMixed {
		return true
	}
	concerns := strings.ToLower(profile.SpecificConcerns)
	return strings.Contains(concerns, "milk") || strings.Contains(concerns, "feeding")
}

// applySentimentModulation softens or progresses physical-recovery intensity
// based on the blended signal. No sentiment context means no modulation.
func applySentimentModulation(tasks []PlanTask, profile RecoveryProfile) []PlanTask {
	sctx := profile.Sentiment
	if sctx == nil {
		return tasks
	}

	switch {
	case sctx.Blended <= sentimentLowCut:
		tasks = append(tasks, PlanTask{
			Title:           "10-minute mindful self-care break",
			Description:     "Quiet time, breathing, or short compassion meditation",
			Category:        categoryMentalHealth,
			Priority:        priorityHigh,
			DurationMinutes: 10,
		})
		if profile.SleepHours < 6 {
			tasks = append(tasks, PlanTask{
				Title:           "Bedtime wind-down routine",
				Description:     "Dim lights, no screens 30 min before bed, warm shower",
				Category:        categorySleep,
				Priority:        priorityHigh,
				DurationMinutes: 15,
			})
		}
		for i := range tasks {
			if tasks[i].Category == categoryPhysicalRecovery && tasks[i].DurationMinutes >= 10 {
				shrunk := int(float64(tasks[i].DurationMinutes) * 0.7)
				if shrunk < 5 {
					shrunk = 5
				}
				tasks[i].DurationMinutes = shrunk
				if tasks[i].Priority == priorityMedium {
					tasks[i].Priority = priorityLow
				}
			}
		}
	case sctx.Blended < sentimentMildLowCut:
		for i := range tasks {
			if tasks[i].Category == categoryPhysicalRecovery && tasks[i].DurationMinutes >= 15 {
				tasks[i].DurationMinutes = int(float64(tasks[i].DurationMinutes) * 0.85)
			}
		}
	case sctx.Blended >= sentimentPositiveCut && profile.EnergyLevel >= 4 && profile.PainLevel <= 4:
		for i := range tasks {
			if tasks[i].Category == categoryPhysicalRecovery && tasks[i].DurationMinutes >= 10 {
				grown := int(float64(tasks[i].DurationMinutes) * 1.2)
				if grown > 25 {
					grown = 25
				}
				tasks[i].DurationMinutes = grown
				if tasks[i].Priority == priorityMedium {
					tasks[i].Priority = priorityHigh
				}
			}
		}
	}
	return tasks
}

// assignTaskIDs gives every task a stable "{category}_{position}" id, where
// position counts within the category, and marks it incomplete.
func assignTaskIDs(tasks []PlanTask) []PlanTask {
	perCategory := map[string]int{}
	for i := range tasks {
		perCategory[tasks[i].Category]++
		tasks[i].ID = fmt.Sprintf("%s_%d", tasks[i].Category, perCategory[tasks[i].Category])
		tasks[i].Completed = false
	}
	return tasks
}

func generateWeeklyPriorities(profile RecoveryProfile) []PriorityCard {
	priorities := make([]PriorityCard, 0, 4)

	if profile.epdsEquivalent() >= elevatedEPDSCut {
		priorities = append(priorities, PriorityCard{
			Icon:        "🧠",
			Title:       "Mental Health & Emotional Wellbeing",
			Description: "Focus on mood monitoring and stress management techniques",
		})
	}
	if profile.DeliveryType == deliveryCSection || profile.PainLevel >= 5 {
		priorities = append(priorities, PriorityCard{
			Icon:        "💪",
			Title:       "Physical Recovery & Healing",
			Description: "Support your body's healing process with targeted activities",
		})
	}
	if profile.Feeding == feedingBreast || profile.Feeding == feedingMixed {
		priorities = append(priorities, PriorityCard{
			Icon:        "🍼",
			Title:       "Feeding Success & Nutrition",
			Description: "Optimize feeding experience and nutritional intake",
		})
	}
	if len(priorities) == 0 {
		priorities = defaultPriorityCards()
	}
	if len(priorities) > 3 {
		priorities = priorities[:3]
	}

	// Persistently low trailing sentiment earns its own card, outside the
	// 3-item cap.
	if sctx := profile.Sentiment; sctx != nil && sctx.RecentTrend != nil && *sctx.RecentTrend <= sentimentLowCut {
		priorities = append(priorities, PriorityCard{
			Icon:        "😔",
			Title:       "Gentle Self-Care Focus",
			Description: "Prioritize low-effort self-care and rest this week",
		})
	}

	return priorities
}

func defaultPriorityCards() []PriorityCard {
	return []PriorityCard{
		{
			Icon:        "💪",
			Title:       "Physical Recovery",
			Description: "Focus on gentle recovery and healing",
		},
		{
			Icon:        "😌",
			Title:       "Mental Wellbeing",
			Description: "Maintain emotional balance and self-care",
		},
		{
			Icon:        "🤱",
			Title:       "Baby Care & Bonding",
			Description: "Build confidence in caring for your baby",
		},
	}
}

func generateResources(profile RecoveryProfile) []PlanResource {
	resources := []PlanResource{
		{
			Title: "Emergency: When to Call Your Doctor - Personalized Warning Signs",
			URL:   "https://www.acog.org/womens-health/faqs/postpartum-warning-signs",
			Type:  "emergency",
		},
		{
			Title: "Guide: Week-by-Week Recovery Expectations",
			URL:   "https://www.nhs.uk/conditions/baby/support-and-services/your-postnatal-check/",
			Type:  "guide",
		},
	}

	if profile.epdsEquivalent() >= elevatedEPDSCut {
		resources = append(resources,
			PlanResource{
				Title: "App: Mood tracking and mental health support",
				URL:   "https://www.7cups.com/",
				Type:  "app",
			},
			PlanResource{
				Title: "Hotline: 24/7 Postpartum Support International",
				URL:   "https://www.postpartum.net/get-help/help-for-moms/",
				Type:  "hotline",
			},
			PlanResource{
				Title: "Article: Understanding Your PPD Risk Factors",
				URL:   "https://www.who.int/news-room/fact-sheets/detail/depression",
				Type:  "article",
			},
		)
	}

	if profile.DeliveryType == deliveryCSection {
		resources = append(resources,
			PlanResource{
				Title: "Video: C-Section Recovery Exercise Progression",
				URL:   "https://www.youtube.com/watch?v=xqR1zQbN0tM",
				Type:  "video",
			},
			PlanResource{
				Title: "Guide: Scar Care and Healing Timeline",
				URL:   "https://www.healthline.com/health/pregnancy/c-section-recovery",
				Type:  "guide",
			},
		)
	}

	if profile.Feeding == feedingBreast {
		resources = append(resources,
			PlanResource{
				Title: "Contact: Local Lactation Consultant Directory",
				URL:   "https://www.ilca.org/why-ibclc/falc",
				Type:  "contact",
			},
			PlanResource{
				Title: "App: Breastfeeding tracker with AI insights",
				URL:   "https://www.huckleberrycare.com/",
				Type:  "app",
			},
		)
	}

	return resources
}

func generateHealthMonitoring(profile RecoveryProfile) HealthMonitoring {
	return HealthMonitoring{
		DailyMetrics: []MetricSpec{
			{Metric: "mood_score", Scale: "1-10", Frequency: "daily"},
			{Metric: "pain_level", Scale: "1-10", Frequency: "daily"},
			{Metric: "energy_level", Scale: "1-10", Frequency: "daily"},
			{Metric: "sleep_hours", Scale: "hours", Frequency: "daily"},
		},
		WeeklyAssessments: []AssessmentSpec{
			{Assessment: "epds_screening", Frequency: "weekly"},
			{Assessment: "physical_recovery_check", Frequency: "weekly"},
		},
		Alerts: generateHealthAlerts(profile),
		IntegrationReady: map[string]bool{
			"wearables":        true,
			"symptom_tracking": true,
			"mood_tracking":    true,
		},
	}
}

func generateHealthAlerts(profile RecoveryProfile) []HealthAlert {
	alerts := make([]HealthAlert, 0, 3)

	if profile.epdsEquivalent() >= severeEPDSCut {
		alerts = append(alerts, HealthAlert{
			Type:      "high_priority",
			Condition: "epds_equivalent >= 15",
			Message:   "High PPD risk detected - consider immediate professional consultation",
		})
	}
	if profile.PainLevel >= 8 {
		alerts = append(alerts, HealthAlert{
			Type:      "medical_attention",
			Condition: "pain_level >= 8",
			Message:   "Severe pain reported - contact healthcare provider",
		})
	}
	if sctx := profile.Sentiment; sctx != nil && sctx.RecentTrend != nil && *sctx.RecentTrend <= sentimentLowCut {
		alerts = append(alerts, HealthAlert{
			Type:      "monitoring",
			Condition: "recent_trend <= -0.3 over sentiment window",
			Message:   "Recent mood indicates low emotional wellbeing - increase support and consider a check-in",
		})
	}

	return alerts
}

func buildPersonalizationContext(profile RecoveryProfile) PersonalizationContext {
	return PersonalizationContext{
		RiskFactors:            identifyRiskFactors(profile),
		SupportLevel:           profile.SupportLevel,
		CulturalConsiderations: profile.CulturalPreferences,
		PreviousExperience: PreviousExperience{
			Pregnancies:   profile.PreviousPregnancies,
			Complications: profile.HasComplications,
		},
		CurrentChallenges: identifyCurrentChallenges(profile),
	}
}

func identifyRiskFactors(profile RecoveryProfile) []string {
	factors := make([]string, 0, 4)
	if profile.epdsEquivalent() >= elevatedEPDSCut {
		factors = append(factors, "high_ppd_risk")
	}
	if profile.SupportLevel <= 2 {
		factors = append(factors, "low_support")
	}
	if profile.SleepHours < 4 {
		factors = append(factors, "severe_sleep_deprivation")
	}
	if profile.PainLevel >= 7 {
		factors = append(factors, "high_pain")
	}
	return factors
}

func identifyCurrentChallenges(profile RecoveryProfile) []string {
	challenges := make([]string, 0, 3)
	if profile.MoodScore <= 3 {
		challenges = append(challenges, "mood_regulation")
	}
	if profile.EnergyLevel <= 3 {
		challenges = append(challenges, "low_energy")
	}
	if profile.PainLevel >= 6 {
		challenges = append(challenges, "pain_management")
	}
	return challenges
}

// dailyTimeBudget suggests a total daily minute budget adapted to the
// blended sentiment; absent sentiment keeps the neutral default.
func dailyTimeBudget(sctx *SentimentContext) int {
	if sctx == nil {
		return 60
	}
	switch {
	case sctx.Blended <= sentimentLowCut:
		return 40
	case sctx.Blended <= 0:
		return 50
	case sctx.Blended >= sentimentPositiveCut:
		return 75
	default:
		return 60
	}
}

// minimalGenericPlan is the always-valid degraded output: no cluster detail,
// just the baseline wellbeing, recovery, and bonding scaffold.
func minimalGenericPlan(profile RecoveryProfile) planArtifacts {
	tasks := assignTaskIDs([]PlanTask{
		{
			Title:           "Check in with how you are feeling",
			Description:     "Take a quiet moment to notice your mood and energy",
			Category:        categoryMentalHealth,
			Priority:        priorityMedium,
			DurationMinutes: 5,
		},
		{
			Title:           "Gentle rest and recovery time",
			Description:     "Rest when the baby rests and avoid strenuous activity",
			Category:        categoryPhysicalRecovery,
			Priority:        priorityMedium,
			DurationMinutes: 15,
		},
		{
			Title:           "Spend focused bonding time with your baby",
			Description:     "Skin-to-skin contact, talking, or quiet play",
			Category:        categoryFamilySupport,
			Priority:        priorityMedium,
			DurationMinutes: 10,
		},
	})

	return planArtifacts{
		Tasks:      tasks,
		Priorities: defaultPriorityCards(),
		Resources: []PlanResource{
			{
				Title: "Guide: Week-by-Week Recovery Expectations",
				URL:   "https://www.nhs.uk/conditions/baby/support-and-services/your-postnatal-check/",
				Type:  "guide",
			},
		},
		Monitoring: HealthMonitoring{
			DailyMetrics: []MetricSpec{
				{Metric: "mood_score", Scale: "1-10", Frequency: "daily"},
				{Metric: "sleep_hours", Scale: "hours", Frequency: "daily"},
			},
			WeeklyAssessments: []AssessmentSpec{
				{Assessment: "physical_recovery_check", Frequency: "weekly"},
			},
			Alerts: []HealthAlert{},
			IntegrationReady: map[string]bool{
				"wearables":        false,
				"symptom_tracking": true,
				"mood_tracking":    true,
			},
		},
		Personalization: PersonalizationContext{
			RiskFactors:            []string{},
			SupportLevel:           profile.SupportLevel,
			CulturalConsiderations: profile.CulturalPreferences,
			PreviousExperience: PreviousExperience{
				Pregnancies:   profile.PreviousPregnancies,
				Complications: profile.HasComplications,
			},
			CurrentChallenges: []string{},
		},
		DailyTimeBudgetMinutes: 60,
	}
}
