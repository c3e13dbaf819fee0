package bridge

// Payment method identifiers shared by agents and sellers. The namespaced
// values ("wallet.apple_pay", "crypto.usdc") match what adapters emit.
const (
	PaymentMethodCard        = "card"
	PaymentMethodApplePay    = "wallet.apple_pay"
	PaymentMethodGooglePay   = "wallet.google_pay"
	PaymentMethodKlarna      = "bnpl.klarna"
	PaymentMethodCryptoUSDC  = "crypto.usdc"
	PaymentMethodCryptoECash = "crypto.bitcoin"
)

// Intervention identifiers for step-up authentication.
const (
	InterventionThreeDS   = "3ds"
	InterventionBiometric = "biometric"
	InterventionOTP       = "otp"
)

// InterventionPolicy controls when a seller's required interventions are
// enforced.
type InterventionPolicy string

const (
	// InterventionPolicyAlways forces step-up on every transaction.
	InterventionPolicyAlways InterventionPolicy = "always"
	// InterventionPolicyRiskBased defers step-up to the risk decision.
	InterventionPolicyRiskBased InterventionPolicy = "risk_based"
)

// AgentFeatures are optional agent-side capabilities. Pure flags, no behavior.
type AgentFeatures struct {
	AsyncCompletion bool `json:"async_completion,omitempty"`
	Tokenization    bool `json:"tokenization,omitempty"`
}

// AgentCapabilities declares what the purchasing agent can do.
type AgentCapabilities struct {
	PaymentMethods []string      `json:"payment_methods"`
	Interventions  []string      `json:"interventions,omitempty"`
	Features       AgentFeatures `json:"features,omitempty"`
}

// SupportsIntervention reports whether the agent can perform the step-up.
func (c AgentCapabilities) SupportsIntervention(name string) bool {
	for _, i := range c.Interventions {
		if i == name {
			return true
		}
	}
	return false
}

// SellerFeatures are optional seller-side capabilities surfaced to clients as
// informational messages only.
type SellerFeatures struct {
	Tokenization bool `json:"tokenization,omitempty"`
	SavedMethods bool `json:"saved_methods,omitempty"`
}

// SellerCapabilities declares what the merchant side accepts and requires.
type SellerCapabilities struct {
	PaymentMethods        []string           `json:"payment_methods"`
	RequiredInterventions []string           `json:"required_interventions,omitempty"`
	InterventionPolicy    InterventionPolicy `json:"intervention_policy,omitempty"`
	Features              SellerFeatures     `json:"features,omitempty"`
}

// AcceptsPaymentMethod reports whether the seller takes the given method.
func (c SellerCapabilities) AcceptsPaymentMethod(name string) bool {
	for _, m := range c.PaymentMethods {
		if m == name {
			return true
		}
	}
	return false
}
