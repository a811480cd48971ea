package server

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	deliveryVaginal  = "vaginal"
	deliveryCSection = "c_section"
	deliveryAssisted = "assisted"

	feedingBreast  = "breastfeeding"
	feedingFormula = "formula"
	feedingMixed   = "mixed"
)

// Risk inputs arrive on one of two scales and thresholds differ per scale;
// the tag travels with the profile so nothing downstream has to re-guess.
const (
	riskScalePercent = "percent"
	riskScaleOrdinal = "epds"
)

const (
	defaultEPDSScore    = 10.0
	defaultPostpartumWk = 4
	defaultPainLevel    = 3
	defaultMoodScore    = 5
	defaultEnergyLevel  = 4
	defaultSleepHours   = 5.0
	defaultSupportLevel = 3
	defaultAge          = 28
	defaultConcernsText = "General recovery"
)

// RecoveryProfile is the validated snapshot of a user's postpartum state.
// It is constructed once at the API boundary with every field defaulted, so
// the rule engine never does ad-hoc lookups against loose maps.
type RecoveryProfile struct {
	EPDSScore           float64           `json:"epds_score"`
	PPDRiskPercentage   *float64          `json:"ppd_risk_percentage,omitempty"`
	PostpartumWeek      int               `json:"postpartum_week"`
	DeliveryType        string            `json:"delivery_type"`
	Feeding             string            `json:"feeding"`
	SpecificConcerns    string            `json:"specific_concerns"`
	PainLevel           int               `json:"pain_level"`
	MoodScore           int               `json:"mood_score"`
	EnergyLevel         int               `json:"energy_level"`
	SleepHours          float64           `json:"sleep_hours"`
	SupportLevel        int               `json:"support_level"`
	Age                 int               `json:"age"`
	PreviousPregnancies int               `json:"previous_pregnancies"`
	HasComplications    bool              `json:"has_complications"`
	CulturalPreferences map[string]any    `json:"cultural_preferences"`
	Sentiment           *SentimentContext `json:"sentiment_context,omitempty"`
}

type profilePayload struct {
	EPDSScore           *float64       `json:"epds_score"`
	PPDRiskPercentage   *float64       `json:"ppd_risk_percentage"`
	PostpartumWeek      *int           `json:"postpartum_week"`
	DeliveryType        string         `json:"delivery_type"`
	Feeding             string         `json:"feeding"`
	SpecificConcerns    string         `json:"specific_concerns"`
	PainLevel           *int           `json:"pain_level"`
	MoodScore           *int           `json:"mood_score"`
	EnergyLevel         *int           `json:"energy_level"`
	SleepHours          *float64       `json:"sleep_hours"`
	SupportLevel        *int           `json:"support_level"`
	Age                 *int           `json:"age"`
	PreviousPregnancies *int           `json:"previous_pregnancies"`
	HasComplications    *bool          `json:"has_complications"`
	CulturalPreferences map[string]any `json:"cultural_preferences"`
}

func newRecoveryProfile(payload profilePayload) (RecoveryProfile, error) {
	profile := RecoveryProfile{
		EPDSScore:           defaultEPDSScore,
		PostpartumWeek:      defaultPostpartumWk,
		DeliveryType:        deliveryVaginal,
		Feeding:             feedingBreast,
		SpecificConcerns:    defaultConcernsText,
		PainLevel:           defaultPainLevel,
		MoodScore:           defaultMoodScore,
		EnergyLevel:         defaultEnergyLevel,
		SleepHours:          defaultSleepHours,
		SupportLevel:        defaultSupportLevel,
		Age:                 defaultAge,
		CulturalPreferences: map[string]any{},
	}

	if payload.EPDSScore != nil {
		profile.EPDSScore = clampFloat(*payload.EPDSScore, 0, 30)
	}
	if payload.PPDRiskPercentage != nil {
		pct := clampFloat(*payload.PPDRiskPercentage, 0, 100)
		profile.PPDRiskPercentage = &pct
	}
	if payload.PostpartumWeek != nil {
		if *payload.PostpartumWeek < 0 {
			return RecoveryProfile{}, fmt.Errorf("postpartum_week must be >= 0")
		}
		profile.PostpartumWeek = *payload.PostpartumWeek
	}
	if strings.TrimSpace(payload.DeliveryType) != "" {
		delivery, ok := normalizeDeliveryType(payload.DeliveryType)
		if !ok {
			return RecoveryProfile{}, fmt.Errorf("delivery_type must be one of: vaginal, c_section, assisted")
		}
		profile.DeliveryType = delivery
	}
	if strings.TrimSpace(payload.Feeding) != "" {
		feeding, ok := normalizeFeeding(payload.Feeding)
		if !ok {
			return RecoveryProfile{}, fmt.Errorf("feeding must be one of: breastfeeding, formula, mixed")
		}
		profile.Feeding = feeding
	}
	if strings.TrimSpace(payload.SpecificConcerns) != "" {
		profile.SpecificConcerns = strings.TrimSpace(payload.SpecificConcerns)
	}
	if payload.PainLevel != nil {
		profile.PainLevel = clampInt(*payload.PainLevel, 1, 10)
	}
	if payload.MoodScore != nil {
		profile.MoodScore = clampInt(*payload.MoodScore, 1, 10)
	}
	if payload.EnergyLevel != nil {
		profile.EnergyLevel = clampInt(*payload.EnergyLevel, 1, 10)
	}
	if payload.SleepHours != nil {
		profile.SleepHours = clampFloat(*payload.SleepHours, 0, 24)
	}
	if payload.SupportLevel != nil {
		profile.SupportLevel = clampInt(*payload.SupportLevel, 1, 5)
	}
	if payload.Age != nil && *payload.Age > 0 {
		profile.Age = *payload.Age
	}
	if payload.PreviousPregnancies != nil && *payload.PreviousPregnancies >= 0 {
		profile.PreviousPregnancies = *payload.PreviousPregnancies
	}
	if payload.HasComplications != nil {
		profile.HasComplications = *payload.HasComplications
	}
	if payload.CulturalPreferences != nil {
		profile.CulturalPreferences = payload.CulturalPreferences
	}

	return profile, nil
}

// riskScore reports the comparable risk value and the scale it lives on.
// The percentage field wins when both inputs are present; ordinal EPDS is
// converted to the percent range only inside the rule cascade.
func (p RecoveryProfile) riskScore() (float64, string) {
	if p.PPDRiskPercentage != nil {
		return *p.PPDRiskPercentage, riskScalePercent
	}
	return p.EPDSScore, riskScaleOrdinal
}

func (p RecoveryProfile) marshal() string {
	encoded, err := json.Marshal(p)
	if err != nil {
		return "{}"
	}
	return string(encoded)
}

func unmarshalRecoveryProfile(raw []byte) (RecoveryProfile, error) {
	profile := RecoveryProfile{
		EPDSScore:        defaultEPDSScore,
		PostpartumWeek:   defaultPostpartumWk,
		DeliveryType:     deliveryVaginal,
		Feeding:          feedingBreast,
		SpecificConcerns: defaultConcernsText,
		PainLevel:        defaultPainLevel,
		MoodScore:        defaultMoodScore,
		EnergyLevel:      defaultEnergyLevel,
		SleepHours:       defaultSleepHours,
		SupportLevel:     defaultSupportLevel,
		Age:              defaultAge,
	}
	if err := json.Unmarshal(raw, &profile); err != nil {
		return RecoveryProfile{}, err
	}
	if profile.CulturalPreferences == nil {
		profile.CulturalPreferences = map[string]any{}
	}
	return profile, nil
}

func normalizeDeliveryType(input string) (string, bool) {
	value := strings.ToLower(strings.TrimSpace(input))
	value = strings.ReplaceAll(value, "-", "_")
	switch value {
	case deliveryVaginal, deliveryCSection, deliveryAssisted:
		return value, true
	case "csection", "cesarean":
		return deliveryCSection, true
	default:
		return "", false
	}
}

func normalizeFeeding(input string) (string, bool) {
	value := strings.ToLower(strings.TrimSpace(input))
	switch value {
	case feedingBreast, feedingFormula, feedingMixed:
		return value, true
	default:
		return "", false
	}
}

func clampInt(value, low, high int) int {
	if value < low {
		return low
	}
	if value > high {
		return high
	}
	return value
}

func clampFloat(value, low, high float64) float64 {
	if value < low {
		return low
	}
	if value > high {
		return high
	}
	return value
}
