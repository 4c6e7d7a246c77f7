package loan

// Eligibility is the estimated qualification criteria for a loan offer.
type Eligibility struct {
	MinIncomeMonthly int `json:"min_income_monthly"`
	CreditScore      int `json:"credit_score"`
}

// Rate band thresholds; a rate equal to a threshold falls into the higher-rate band.
const (
	primeRateCeiling    = 11.0
	standardRateCeiling = 14.0
)

var (
	unknownBand  = Eligibility{MinIncomeMonthly: 25000, CreditScore: 700}
	primeBand    = Eligibility{MinIncomeMonthly: 40000, CreditScore: 750}
	standardBand = Eligibility{MinIncomeMonthly: 30000, CreditScore: 700}
	subprimeBand = Eligibility{MinIncomeMonthly: 20000, CreditScore: 650}
)

// EstimateEligibility maps a minimum interest rate to fixed income and credit score
// thresholds. A nil rate means none could be parsed.
func EstimateEligibility(minRate *float64) Eligibility {
	switch {
	case minRate == nil:
		return unknownBand
	case *minRate < primeRateCeiling:
		return primeBand
	case *minRate < standardRateCeiling:
		return standardBand
	default:
		return subprimeBand
	}
}
