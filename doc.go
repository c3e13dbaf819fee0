// Package bridge translates agentic commerce traffic between three wire
// protocols and adjudicates every checkout through a shared risk engine.
// Capability-negotiated checkouts (acp), intent-based checkouts (ucp), and
// resource-payment exchanges (x402) are all parsed into one canonical form,
// processed by a single session state machine, and rendered back in whichever
// protocol the merchant side speaks.
//
// # Orchestration
//
// Build a [Registry] (usually [NewDefaultRegistry]), a [SessionService], and a
// [Router], then call [Router.Orchestrate] with the raw agent payload and the
// merchant-side [OrchestrateOptions]. The router detects the inbound protocol,
// validates the payload against that protocol's schema, runs negotiation and
// risk scoring, and emits the merchant-protocol response.
//
// # HTTP surface
//
// [NewBridgeHandler] exposes orchestration over `net/http`. Handler options
// such as [WithSignatureVerifier] and [WithRequireSignedRequests] enforce
// canonical JSON request signatures and timestamp skew; [WithAuthenticator]
// guards the endpoints with bearer tokens; [WithWebhookOptions] delivers
// HMAC-signed order lifecycle events to the merchant.
//
// ## How a checkout flows
//
//   - An agent posts a checkout in its native protocol; the matching adapter
//     parses it into the canonical request form.
//   - Negotiation intersects agent and seller payment capabilities, and the
//     risk engine scores the attempt exactly once at session creation.
//   - Completion is gated on the stored risk decision: approve proceeds,
//     challenge demands a verified step-up, block is terminal.
//   - Successful payment produces an order whose fulfillment state machine
//     and adjustment ledger live in [OrderService].
package bridge
