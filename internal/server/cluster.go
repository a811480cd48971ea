package server

import (
	"encoding/json"
	"errors"
	"log"
	"math"
	"os"
	"strconv"
	"strings"
)

// Rule-cascade cluster ids. The moderate-risk default shares the
// feeding-issues bucket, mirroring the trained model's cluster layout.
const (
	clusterHighRiskEarly    = 0
	clusterFeedingIssues    = 1
	clusterLateLowRisk      = 2
	clusterSurgicalRecovery = 3
	clusterSupportNeeded    = 4
)

// ClusterProfile describes one recovery archetype: the per-cluster
// statistics used for explanation and fallback defaults.
type ClusterProfile struct {
	Name               string   `json:"name"`
	AvgEPDSScore       float64  `json:"avg_epds_score"`
	AvgPostpartumWeek  float64  `json:"avg_postpartum_week"`
	MostCommonDelivery string   `json:"most_common_delivery"`
	MostCommonFeeding  string   `json:"most_common_feeding"`
	MostCommonConcern  string   `json:"most_common_concern"`
	HighRiskPercentage float64  `json:"high_risk_ppd_percentage"`
	CareFocus          []string `json:"care_focus"`
}

type scalerParams struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// modelBundle is the JSON export of the trained K-means artifact: the
// feature contract, fitted scaler, centroids, categorical encoding tables,
// and per-cluster descriptive profiles.
type modelBundle struct {
	FeatureNames    []string                      `json:"feature_names"`
	Scaler          scalerParams                  `json:"scaler"`
	Centroids       [][]float64                   `json:"centroids"`
	Encoders        map[string]map[string]float64 `json:"encoders"`
	ClusterProfiles map[string]ClusterProfile     `json:"cluster_profiles"`
}

// clusterStore holds the model bundle (when loadable) and the immutable
// per-cluster profile table. Loaded once at startup, read-only afterwards.
type clusterStore struct {
	bundle    *modelBundle
	profiles  map[int]ClusterProfile
	defaultID int
}

func loadClusterStore(path string) *clusterStore {
	store := &clusterStore{
		profiles:  fallbackClusterProfiles(),
		defaultID: clusterHighRiskEarly,
	}

	bundle, err := readModelBundle(path)
	if err != nil {
		log.Printf("clustering model unavailable (%v), using rule-based fallback", err)
		return store
	}

	store.bundle = bundle
	for key, profile := range bundle.ClusterProfiles {
		id, err := strconv.Atoi(key)
		if err != nil {
			continue
		}
		store.profiles[id] = profile
	}
	log.Printf("clustering model loaded from %s (%d clusters)", path, len(bundle.Centroids))
	return store
}

func readModelBundle(path string) (*modelBundle, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var bundle modelBundle
	if err := json.Unmarshal(raw, &bundle); err != nil {
		return nil, err
	}
	if len(bundle.Centroids) == 0 {
		return nil, errors.New("bundle has no centroids")
	}
	width := len(bundle.FeatureNames)
	if width == 0 {
		return nil, errors.New("bundle has no feature names")
	}
	if len(bundle.Scaler.Mean) != width || len(bundle.Scaler.Scale) != width {
		return nil, errors.New("scaler dimensions do not match feature contract")
	}
	for _, centroid := range bundle.Centroids {
		if len(centroid) != width {
			return nil, errors.New("centroid dimensions do not match feature contract")
		}
	}
	return &bundle, nil
}

// assign picks a cluster for the profile: model inference when the artifact
// is loaded and compatible, the rule cascade otherwise. Model failures fall
// through silently; the returned id is always present in the store.
func (s *clusterStore) assign(profile RecoveryProfile) int {
	if s.bundle != nil {
		if id, err := s.predict(profile); err == nil {
			return s.resolve(id)
		} else {
			log.Printf("model inference failed (%v), falling back to rule cascade", err)
		}
	}
	return s.resolve(ruleClusterAssignment(profile))
}

func (s *clusterStore) predict(profile RecoveryProfile) (int, error) {
	if len(s.bundle.FeatureNames) != len(featureNames) {
		return 0, errors.New("feature count mismatch with trained contract")
	}

	vector := buildFeatureVector(profile, s.bundle.Encoders)
	scaled := make([]float64, len(vector))
	for i, value := range vector {
		scale := s.bundle.Scaler.Scale[i]
		if scale == 0 {
			scale = 1
		}
		scaled[i] = (value - s.bundle.Scaler.Mean[i]) / scale
	}

	best := 0
	bestDist := math.Inf(1)
	for id, centroid := range s.bundle.Centroids {
		dist := 0.0
		for i, value := range scaled {
			diff := value - centroid[i]
			dist += diff * diff
		}
		if dist < bestDist {
			bestDist = dist
			best = id
		}
	}
	return best, nil
}

// resolve substitutes the designated default cluster when an id has no
// profile entry (e.g. a model from a different training run).
func (s *clusterStore) resolve(id int) int {
	if _, ok := s.profiles[id]; !ok {
		return s.defaultID
	}
	return id
}

func (s *clusterStore) profileFor(id int) ClusterProfile {
	if profile, ok := s.profiles[id]; ok {
		return profile
	}
	return s.profiles[s.defaultID]
}

// ruleClusterAssignment is the deterministic first-match cascade over the
// raw profile, used when no model is loadable or inference fails.
func ruleClusterAssignment(profile RecoveryProfile) int {
	risk, scale := profile.riskScore()
	highCut, moderateCut := percentHighRiskCut, percentModerateCut
	if scale == riskScaleOrdinal {
		risk = risk * epdsToPercentFactor
		highCut, moderateCut = ordinalHighRiskCut, ordinalModerateCut
	}

	concerns := strings.ToLower(profile.SpecificConcerns)

	switch {
	case risk >= highCut && profile.PostpartumWeek <= 3:
		return clusterHighRiskEarly
	case strings.Contains(concerns, "milk") || strings.Contains(concerns, "feeding"):
		return clusterFeedingIssues
	case profile.PostpartumWeek >= 10 && risk < moderateCut:
		return clusterLateLowRisk
	case profile.DeliveryType == deliveryCSection && profile.PostpartumWeek <= 6:
		return clusterSurgicalRecovery
	case strings.Contains(concerns, "support") || risk >= moderateCut:
		return clusterSupportNeeded
	default:
		return clusterFeedingIssues
	}
}

// fallbackClusterProfiles is the hard-coded archetype set used whenever the
// model artifact is absent; there are never zero clusters.
func fallbackClusterProfiles() map[int]ClusterProfile {
	return map[int]ClusterProfile{
		clusterHighRiskEarly: {
			Name:               "high-risk-early",
			AvgEPDSScore:       16.5,
			AvgPostpartumWeek:  2.1,
			MostCommonDelivery: deliveryCSection,
			MostCommonFeeding:  feedingBreast,
			MostCommonConcern:  "Severe fatigue",
			HighRiskPercentage: 85.0,
			CareFocus:          []string{"mental_health", "physical_recovery"},
		},
		clusterFeedingIssues: {
			Name:               "feeding-issues",
			AvgEPDSScore:       8.2,
			AvgPostpartumWeek:  4.5,
			MostCommonDelivery: deliveryVaginal,
			MostCommonFeeding:  feedingMixed,
			MostCommonConcern:  "Low milk supply",
			HighRiskPercentage: 25.0,
			CareFocus:          []string{"feeding_support", "physical_recovery"},
		},
		clusterLateLowRisk: {
			Name:               "late-low-risk",
			AvgEPDSScore:       4.1,
			AvgPostpartumWeek:  10.2,
			MostCommonDelivery: deliveryVaginal,
			MostCommonFeeding:  feedingFormula,
			MostCommonConcern:  "Sleep deprivation",
			HighRiskPercentage: 5.0,
			CareFocus:          []string{"family_support", "self_care"},
		},
		clusterSurgicalRecovery: {
			Name:               "surgical-recovery",
			AvgEPDSScore:       7.8,
			AvgPostpartumWeek:  3.2,
			MostCommonDelivery: deliveryCSection,
			MostCommonFeeding:  feedingBreast,
			MostCommonConcern:  "Incision pain",
			HighRiskPercentage: 35.0,
			CareFocus:          []string{"physical_recovery", "pain_management"},
		},
		clusterSupportNeeded: {
			Name:               "support-needed",
			AvgEPDSScore:       12.1,
			AvgPostpartumWeek:  6.8,
			MostCommonDelivery: deliveryAssisted,
			MostCommonFeeding:  feedingMixed,
			MostCommonConcern:  "No family support",
			HighRiskPercentage: 60.0,
			CareFocus:          []string{"family_support", "mental_health"},
		},
	}
}
