package bridge

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestRegistryGetResolvesAliases(t *testing.T) {
	t.Parallel()

	r := NewDefaultRegistry()
	tests := map[string]string{
		"acp":        "acp",
		"openai":     "acp",
		"stripe-acp": "acp",
		"ucp":        "ucp",
		"universal":  "ucp",
		"intent":     "ucp",
		"x402":       "x402",
		"http-402":   "x402",
		"crypto":     "x402",
		" ACP ":      "acp", // names are trimmed and lowercased
	}
	for name, wantProtocol := range tests {
		adapter, ok := r.Get(name)
		if !ok {
			t.Fatalf("expected %q to resolve", name)
		}
		if adapter.ProtocolName() != wantProtocol {
			t.Fatalf("expected %q to resolve to %s, got %s", name, wantProtocol, adapter.ProtocolName())
		}
	}
	if _, ok := r.Get("soap"); ok {
		t.Fatal("unknown protocol must not resolve")
	}
}

func TestRegistryDetectFollowsRegistrationOrder(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		payload string
		want    string
	}{
		"acp checkout":  {string(acpCheckoutPayload()), "acp"},
		"ucp intent":    {string(ucpCheckoutPayload()), "ucp"},
		"x402 resource": {string(x402Payload("1000000", 6)), "x402"},
	}
	r := NewDefaultRegistry()
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			adapter, ok := r.Detect(json.RawMessage(tc.payload))
			if !ok {
				t.Fatal("expected detection to succeed")
			}
			if adapter.ProtocolName() != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, adapter.ProtocolName())
			}
		})
	}

	if _, ok := r.Detect(json.RawMessage(`{"hello":"world"}`)); ok {
		t.Fatal("an unrecognizable payload must not detect")
	}
}

func TestRegistryReRegisterKeepsDetectionPosition(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Register(NewACPAdapter())
	r.Register(NewUCPAdapter())
	// Replacing acp must not move it behind ucp in detection order.
	r.Register(NewACPAdapter())

	adapter, ok := r.Detect(acpCheckoutPayload())
	if !ok || adapter.ProtocolName() != "acp" {
		t.Fatalf("expected acp to keep its detection slot, got %v %v", adapter, ok)
	}
	if got := r.Protocols(); !reflect.DeepEqual(got, []string{"acp", "ucp"}) {
		t.Fatalf("unexpected protocol list: %v", got)
	}
}

func TestRegistryListingsAreSorted(t *testing.T) {
	t.Parallel()

	r := NewDefaultRegistry()
	if got := r.Protocols(); !reflect.DeepEqual(got, []string{"acp", "ucp", "x402"}) {
		t.Fatalf("unexpected protocols: %v", got)
	}
	want := []string{"acp", "crypto", "http-402", "intent", "openai", "stripe-acp", "ucp", "universal", "x402"}
	if got := r.Aliases(); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected aliases: %v", got)
	}
}
