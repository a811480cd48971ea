package server

import (
	"testing"
)

func intPtr(value int) *int {
	return &value
}

func TestNewRecoveryProfileDefaults(t *testing.T) {
	profile, err := newRecoveryProfile(profilePayload{})
	if err != nil {
		t.Fatalf("empty payload must succeed: %v", err)
	}
	if profile.EPDSScore != defaultEPDSScore {
		t.Fatalf("expected default EPDS %v, got %v", defaultEPDSScore, profile.EPDSScore)
	}
	if profile.PostpartumWeek != defaultPostpartumWk {
		t.Fatalf("expected default week %d, got %d", defaultPostpartumWk, profile.PostpartumWeek)
	}
	if profile.DeliveryType != deliveryVaginal || profile.Feeding != feedingBreast {
		t.Fatalf("unexpected default categories: %q %q", profile.DeliveryType, profile.Feeding)
	}
	if profile.SpecificConcerns != defaultConcernsText {
		t.Fatalf("unexpected default concerns %q", profile.SpecificConcerns)
	}
	if profile.PPDRiskPercentage != nil {
		t.Fatalf("risk percentage must stay unset when absent")
	}
	if profile.CulturalPreferences == nil {
		t.Fatalf("cultural preferences must never be nil")
	}
}

func TestNewRecoveryProfileClamps(t *testing.T) {
	epds := 45.0
	pct := 130.0
	sleep := -2.0
	payload := profilePayload{
		EPDSScore:         &epds,
		PPDRiskPercentage: &pct,
		PainLevel:         intPtr(15),
		MoodScore:         intPtr(0),
		SupportLevel:      intPtr(9),
		SleepHours:        &sleep,
	}
	profile, err := newRecoveryProfile(payload)
	if err != nil {
		t.Fatalf("clampable payload must succeed: %v", err)
	}
	if profile.EPDSScore != 30 {
		t.Fatalf("expected EPDS clamped to 30, got %v", profile.EPDSScore)
	}
	if profile.PPDRiskPercentage == nil || *profile.PPDRiskPercentage != 100 {
		t.Fatalf("expected percentage clamped to 100, got %v", profile.PPDRiskPercentage)
	}
	if profile.PainLevel != 10 || profile.MoodScore != 1 || profile.SupportLevel != 5 {
		t.Fatalf("unexpected clamped ordinals: %d %d %d", profile.PainLevel, profile.MoodScore, profile.SupportLevel)
	}
	if profile.SleepHours != 0 {
		t.Fatalf("expected sleep clamped to 0, got %v", profile.SleepHours)
	}
}

func TestNewRecoveryProfileValidation(t *testing.T) {
	if _, err := newRecoveryProfile(profilePayload{PostpartumWeek: intPtr(-1)}); err == nil {
		t.Fatalf("expected negative week to fail")
	}
	if _, err := newRecoveryProfile(profilePayload{DeliveryType: "teleport"}); err == nil {
		t.Fatalf("expected unknown delivery type to fail")
	}
	if _, err := newRecoveryProfile(profilePayload{Feeding: "intravenous"}); err == nil {
		t.Fatalf("expected unknown feeding method to fail")
	}
}

func TestNormalizeDeliveryType(t *testing.T) {
	cases := map[string]string{
		"  Vaginal ": deliveryVaginal,
		"C-Section":  deliveryCSection,
		"csection":   deliveryCSection,
		"CESAREAN":   deliveryCSection,
		"assisted":   deliveryAssisted,
	}
	for input, want := range cases {
		got, ok := normalizeDeliveryType(input)
		if !ok || got != want {
			t.Fatalf("normalizeDeliveryType(%q) = %q/%v, want %q", input, got, ok, want)
		}
	}
	if _, ok := normalizeDeliveryType("home"); ok {
		t.Fatalf("expected unknown delivery type to be rejected")
	}
}

func TestRiskScorePrecedence(t *testing.T) {
	pct := 65.0
	both := RecoveryProfile{EPDSScore: 20, PPDRiskPercentage: &pct}
	risk, scale := both.riskScore()
	if risk != 65 || scale != riskScalePercent {
		t.Fatalf("expected the percentage to win: %v %q", risk, scale)
	}

	ordinalOnly := RecoveryProfile{EPDSScore: 20}
	risk, scale = ordinalOnly.riskScore()
	if risk != 20 || scale != riskScaleOrdinal {
		t.Fatalf("expected the ordinal scale: %v %q", risk, scale)
	}
}

func TestEPDSEquivalentAndFlags(t *testing.T) {
	pct := 50.0
	percent := RecoveryProfile{EPDSScore: 2, PPDRiskPercentage: &pct}
	if !almostEqual(percent.epdsEquivalent(), 13.5) {
		t.Fatalf("expected 50%% to project to 13.5, got %v", percent.epdsEquivalent())
	}
	if !percent.isHighRisk() {
		t.Fatalf("expected 50%% to flag high risk")
	}

	ordinal := RecoveryProfile{EPDSScore: 13}
	if !ordinal.isHighRisk() {
		t.Fatalf("expected EPDS 13 to flag high risk")
	}
	ordinal.EPDSScore = 12.9
	if ordinal.isHighRisk() {
		t.Fatalf("expected EPDS 12.9 not to flag high risk")
	}

	early := RecoveryProfile{PostpartumWeek: 2}
	if !early.isEarlyPostpartum() {
		t.Fatalf("expected week 2 to count as early postpartum")
	}
	early.PostpartumWeek = 3
	if early.isEarlyPostpartum() {
		t.Fatalf("expected week 3 not to count as early postpartum")
	}
}

func TestRecoveryProfileRoundTrip(t *testing.T) {
	pct := 40.0
	trend := -0.2
	original := RecoveryProfile{
		EPDSScore:           12,
		PPDRiskPercentage:   &pct,
		PostpartumWeek:      3,
		DeliveryType:        deliveryCSection,
		Feeding:             feedingMixed,
		SpecificConcerns:    "incision pain",
		PainLevel:           6,
		MoodScore:           4,
		EnergyLevel:         3,
		SleepHours:          4.5,
		SupportLevel:        2,
		Age:                 33,
		PreviousPregnancies: 1,
		HasComplications:    true,
		CulturalPreferences: map[string]any{"diet": "vegetarian"},
		Sentiment:           &SentimentContext{RecentTrend: &trend, Blended: -0.2, Source: sentimentSourceCheckIns},
	}

	decoded, err := unmarshalRecoveryProfile([]byte(original.marshal()))
	if err != nil {
		t.Fatalf("round trip failed: %v", err)
	}
	if decoded.DeliveryType != deliveryCSection || decoded.Feeding != feedingMixed {
		t.Fatalf("categories lost in round trip: %+v", decoded)
	}
	if decoded.PPDRiskPercentage == nil || *decoded.PPDRiskPercentage != 40 {
		t.Fatalf("risk percentage lost in round trip")
	}
	if decoded.Sentiment == nil || decoded.Sentiment.RecentTrend == nil || *decoded.Sentiment.RecentTrend != -0.2 {
		t.Fatalf("sentiment context lost in round trip")
	}
}

func TestUnmarshalRecoveryProfilePartialKeepsDefaults(t *testing.T) {
	profile, err := unmarshalRecoveryProfile([]byte(`{"postpartum_week": 9}`))
	if err != nil {
		t.Fatalf("partial document must unmarshal: %v", err)
	}
	if profile.PostpartumWeek != 9 {
		t.Fatalf("expected stored week to win, got %d", profile.PostpartumWeek)
	}
	if profile.EPDSScore != defaultEPDSScore || profile.DeliveryType != deliveryVaginal {
		t.Fatalf("expected missing fields to keep defaults: %+v", profile)
	}
	if profile.CulturalPreferences == nil {
		t.Fatalf("cultural preferences must never be nil after unmarshal")
	}

	if _, err := unmarshalRecoveryProfile([]byte("not json")); err == nil {
		t.Fatalf("expected invalid document to fail")
	}
}
