package bridge

// RiskAttributes are the normalized transaction attributes scored by
// [ComputeRiskScore]. Adapters populate them from the wire payload; the
// engine never sees protocol-specific shapes.
type RiskAttributes struct {
	TotalCents    int
	Country       string
	ShippingSpeed string
}

// Amount tier boundaries in minor currency units. The comparisons are strict,
// so the boundary values themselves belong to the lower tier, and only the
// highest applicable tier contributes to the score.
const (
	riskTierHigh      = 100_000
	riskTierUpper     = 50_000
	riskTierMid       = 10_000
	riskTierLow       = 5_000
	riskScoreHigh     = 50
	riskScoreUpper    = 35
	riskScoreMid      = 20
	riskScoreLow      = 10
	riskNonUSWeight   = 20
	riskExpressWeight = 10
)

// Decision thresholds. These are policy constants, not a derived model.
const (
	challengeThreshold = 30
	blockThreshold     = 60
)

// ComputeRiskScore is a pure, deterministic scoring function. It is evaluated
// once per session, at creation, from the request snapshot.
func ComputeRiskScore(attrs RiskAttributes) RiskResult {
	score := 0
	factors := make([]string, 0, 3)

	switch {
	case attrs.TotalCents > riskTierHigh:
		score += riskScoreHigh
		factors = append(factors, "amount_very_high")
	case attrs.TotalCents > riskTierUpper:
		score += riskScoreUpper
		factors = append(factors, "amount_high")
	case attrs.TotalCents > riskTierMid:
		score += riskScoreMid
		factors = append(factors, "amount_elevated")
	case attrs.TotalCents > riskTierLow:
		score += riskScoreLow
		factors = append(factors, "amount_moderate")
	}

	if attrs.Country != "US" {
		score += riskNonUSWeight
		factors = append(factors, "non_us_country")
	}
	if attrs.ShippingSpeed == "express" {
		score += riskExpressWeight
		factors = append(factors, "express_shipping")
	}

	return RiskResult{
		Score:    score,
		Decision: decisionForScore(score),
		Factors:  factors,
	}
}

func decisionForScore(score int) RiskDecision {
	switch {
	case score >= blockThreshold:
		return RiskDecisionBlock
	case score >= challengeThreshold:
		return RiskDecisionChallenge
	default:
		return RiskDecisionApprove
	}
}
