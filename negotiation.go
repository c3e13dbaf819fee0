package bridge

import (
	"fmt"
	"strings"
)

// Negotiation message codes.
const (
	CodePaymentMethodUnsupported = "payment_method_unsupported"
	CodeInterventionUnsupported  = "intervention_unsupported"
	CodeInterventionRequired     = "intervention_required"
	CodeTokenizationAvailable    = "tokenization_available"
	CodeSavedMethodsAvailable    = "saved_methods_available"
)

// NegotiationResult is the outcome of matching agent capabilities against
// seller capabilities.
type NegotiationResult struct {
	Compatible            bool          `json:"compatible"`
	Status                SessionStatus `json:"status"`
	Messages              []Message     `json:"messages"`
	MatchedPaymentMethods []string      `json:"matched_payment_methods"`
	RequiredInterventions []string      `json:"required_interventions"`
}

// Negotiate matches agent-declared capabilities against seller-declared
// capabilities. Pure and deterministic: no I/O, same result for same inputs.
func Negotiate(agent AgentCapabilities, seller SellerCapabilities) NegotiationResult {
	result := NegotiationResult{
		MatchedPaymentMethods: make([]string, 0, len(agent.PaymentMethods)),
		RequiredInterventions: make([]string, 0, len(seller.RequiredInterventions)),
		Messages:              []Message{},
	}

	for _, method := range agent.PaymentMethods {
		if seller.AcceptsPaymentMethod(method) {
			result.MatchedPaymentMethods = append(result.MatchedPaymentMethods, method)
		}
	}
	if len(result.MatchedPaymentMethods) == 0 {
		result.Compatible = false
		result.Status = SessionStatusNotReadyForPayment
		result.Messages = append(result.Messages, NewErrorMessage(
			CodePaymentMethodUnsupported,
			"none of the agent's payment methods are accepted by the seller",
		))
		return result
	}

	var unmet []string
	for _, required := range seller.RequiredInterventions {
		if !agent.SupportsIntervention(required) {
			unmet = append(unmet, required)
		}
	}
	if len(unmet) > 0 {
		result.Compatible = false
		result.Status = SessionStatusNotReadyForPayment
		result.Messages = append(result.Messages, NewErrorMessage(
			CodeInterventionUnsupported,
			fmt.Sprintf("agent does not support required interventions: %s", strings.Join(unmet, ", ")),
		))
		return result
	}

	result.Compatible = true
	result.RequiredInterventions = append(result.RequiredInterventions, seller.RequiredInterventions...)

	if seller.InterventionPolicy == InterventionPolicyAlways && len(seller.RequiredInterventions) > 0 {
		result.Status = SessionStatusAuthenticationRequired
		result.Messages = append(result.Messages, NewInfoMessage(
			CodeInterventionRequired,
			fmt.Sprintf("step-up authentication required: %s", strings.Join(seller.RequiredInterventions, ", ")),
		))
	} else {
		result.Status = SessionStatusReadyForPayment
	}

	// Optional seller features are surfaced for client display only.
	if seller.Features.Tokenization {
		result.Messages = append(result.Messages, NewInfoMessage(
			CodeTokenizationAvailable, "seller supports payment method tokenization",
		))
	}
	if seller.Features.SavedMethods {
		result.Messages = append(result.Messages, NewInfoMessage(
			CodeSavedMethodsAvailable, "seller supports saved payment methods",
		))
	}
	return result
}
