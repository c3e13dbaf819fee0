package bridge

import (
	"reflect"
	"testing"
)

func TestNegotiate(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		agent          AgentCapabilities
		seller         SellerCapabilities
		wantCompatible bool
		wantStatus     SessionStatus
		wantMatched    []string
		wantMsgCodes   []string
	}{
		"single shared method": {
			agent:          AgentCapabilities{PaymentMethods: []string{PaymentMethodCard}},
			seller:         SellerCapabilities{PaymentMethods: []string{PaymentMethodCard, PaymentMethodApplePay}},
			wantCompatible: true,
			wantStatus:     SessionStatusReadyForPayment,
			wantMatched:    []string{PaymentMethodCard},
			wantMsgCodes:   []string{},
		},
		"no overlap is incompatible": {
			agent:          AgentCapabilities{PaymentMethods: []string{PaymentMethodCryptoECash}},
			seller:         SellerCapabilities{PaymentMethods: []string{PaymentMethodCard}},
			wantCompatible: false,
			wantStatus:     SessionStatusNotReadyForPayment,
			wantMatched:    []string{},
			wantMsgCodes:   []string{CodePaymentMethodUnsupported},
		},
		"partial overlap keeps only the intersection": {
			agent:          AgentCapabilities{PaymentMethods: []string{PaymentMethodCard, PaymentMethodCryptoECash}},
			seller:         SellerCapabilities{PaymentMethods: []string{PaymentMethodCard}},
			wantCompatible: true,
			wantStatus:     SessionStatusReadyForPayment,
			wantMatched:    []string{PaymentMethodCard},
			wantMsgCodes:   []string{},
		},
		"unsupported required intervention": {
			agent: AgentCapabilities{PaymentMethods: []string{PaymentMethodCard}},
			seller: SellerCapabilities{
				PaymentMethods:        []string{PaymentMethodCard},
				RequiredInterventions: []string{InterventionThreeDS},
			},
			wantCompatible: false,
			wantStatus:     SessionStatusNotReadyForPayment,
			wantMatched:    []string{PaymentMethodCard},
			wantMsgCodes:   []string{CodeInterventionUnsupported},
		},
		"intervention policy always forces step up": {
			agent: AgentCapabilities{
				PaymentMethods: []string{PaymentMethodCard},
				Interventions:  []string{InterventionThreeDS},
			},
			seller: SellerCapabilities{
				PaymentMethods:        []string{PaymentMethodCard},
				RequiredInterventions: []string{InterventionThreeDS},
				InterventionPolicy:    InterventionPolicyAlways,
			},
			wantCompatible: true,
			wantStatus:     SessionStatusAuthenticationRequired,
			wantMatched:    []string{PaymentMethodCard},
			wantMsgCodes:   []string{CodeInterventionRequired},
		},
		"risk based policy defers step up": {
			agent: AgentCapabilities{
				PaymentMethods: []string{PaymentMethodCard},
				Interventions:  []string{InterventionOTP},
			},
			seller: SellerCapabilities{
				PaymentMethods:        []string{PaymentMethodCard},
				RequiredInterventions: []string{InterventionOTP},
				InterventionPolicy:    InterventionPolicyRiskBased,
			},
			wantCompatible: true,
			wantStatus:     SessionStatusReadyForPayment,
			wantMatched:    []string{PaymentMethodCard},
			wantMsgCodes:   []string{},
		},
		"seller features surface as info messages": {
			agent: AgentCapabilities{PaymentMethods: []string{PaymentMethodCard}},
			seller: SellerCapabilities{
				PaymentMethods: []string{PaymentMethodCard},
				Features:       SellerFeatures{Tokenization: true, SavedMethods: true},
			},
			wantCompatible: true,
			wantStatus:     SessionStatusReadyForPayment,
			wantMatched:    []string{PaymentMethodCard},
			wantMsgCodes:   []string{CodeTokenizationAvailable, CodeSavedMethodsAvailable},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got := Negotiate(tc.agent, tc.seller)
			if got.Compatible != tc.wantCompatible {
				t.Fatalf("compatible: expected %v got %v", tc.wantCompatible, got.Compatible)
			}
			if got.Status != tc.wantStatus {
				t.Fatalf("status: expected %s got %s", tc.wantStatus, got.Status)
			}
			if !reflect.DeepEqual(got.MatchedPaymentMethods, tc.wantMatched) {
				t.Fatalf("matched: expected %v got %v", tc.wantMatched, got.MatchedPaymentMethods)
			}
			codes := make([]string, 0, len(got.Messages))
			for _, msg := range got.Messages {
				codes = append(codes, msg.Code())
			}
			if !reflect.DeepEqual(codes, tc.wantMsgCodes) {
				t.Fatalf("message codes: expected %v got %v", tc.wantMsgCodes, codes)
			}
		})
	}
}

func TestNegotiateIncompatibilityMessageIsError(t *testing.T) {
	t.Parallel()

	got := Negotiate(
		AgentCapabilities{PaymentMethods: []string{PaymentMethodCryptoECash}},
		SellerCapabilities{PaymentMethods: []string{PaymentMethodCard}},
	)
	if len(got.Messages) != 1 {
		t.Fatalf("expected exactly one message, got %d", len(got.Messages))
	}
	if !got.Messages[0].IsError() {
		t.Fatal("expected the incompatibility message to be an error message")
	}
}
