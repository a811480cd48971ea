package server

import "log"

// Risk thresholds are defined per input scale and shared between the feature
// builder and the rule cascade. The percentage scale runs higher numbers than
// the EPDS-derived scale on purpose; do not collapse them.
const (
	percentHighRiskCut = 70.0
	percentModerateCut = 40.0
	ordinalHighRiskCut = 55.0
	ordinalModerateCut = 30.0

	// Conversion factors between the percent scale and the 0-30 EPDS scale,
	// fixed at model training time.
	percentToEPDSFactor = 0.27
	epdsToPercentFactor = 3.7

	// Binary high-risk flags used by the feature vector.
	percentHighRiskFlag = 50.0
	epdsHighRiskFlag    = 13.0

	earlyPostpartumWeekCut = 2

	severeEPDSCut   = 15.0
	elevatedEPDSCut = 12.0
)

// featureNames is the versioned contract the clustering model was trained
// with: names, order, and count must match the artifact exactly.
var featureNames = []string{
	"epds_equivalent",
	"postpartum_week",
	"days_since_delivery",
	"delivery_type_encoded",
	"feeding_encoded",
	"is_high_risk_ppd",
	"is_early_postpartum",
}

// Default encoding tables, matching the binary encodings the model was fit
// with. Bundle-provided tables override these.
var defaultCategoryEncoders = map[string]map[string]float64{
	"delivery_type_encoded": {
		deliveryCSection: 1,
		deliveryVaginal:  0,
		deliveryAssisted: 0,
	},
	"feeding_encoded": {
		feedingBreast:  1,
		feedingFormula: 0,
		feedingMixed:   0,
	},
}

// epdsEquivalent projects whichever risk input is present onto the EPDS
// scale; the percentage field takes precedence when both exist.
func (p RecoveryProfile) epdsEquivalent() float64 {
	if p.PPDRiskPercentage != nil {
		return *p.PPDRiskPercentage * percentToEPDSFactor
	}
	return p.EPDSScore
}

func (p RecoveryProfile) isHighRisk() bool {
	if p.PPDRiskPercentage != nil {
		return *p.PPDRiskPercentage >= percentHighRiskFlag
	}
	return p.EPDSScore >= epdsHighRiskFlag
}

func (p RecoveryProfile) isEarlyPostpartum() bool {
	return p.PostpartumWeek <= earlyPostpartumWeekCut
}

// buildFeatureVector maps a profile into the fixed-order numeric vector the
// model expects. Unseen categorical values never raise: they encode to 0
// with a logged warning.
func buildFeatureVector(profile RecoveryProfile, encoders map[string]map[string]float64) []float64 {
	return []float64{
		profile.epdsEquivalent(),
		float64(profile.PostpartumWeek),
		float64(profile.PostpartumWeek * 7),
		encodeCategory(encoders, "delivery_type_encoded", profile.DeliveryType),
		encodeCategory(encoders, "feeding_encoded", profile.Feeding),
		boolFeature(profile.isHighRisk()),
		boolFeature(profile.isEarlyPostpartum()),
	}
}

func encodeCategory(encoders map[string]map[string]float64, feature, value string) float64 {
	table := encoders[feature]
	if table == nil {
		table = defaultCategoryEncoders[feature]
	}
	code, ok := table[value]
	if !ok {
		log.Printf("unseen categorical value %q for feature %s, encoding as 0", value, feature)
		return 0
	}
	return code
}

func boolFeature(value bool) float64 {
	if value {
		return 1
	}
	return 0
}
