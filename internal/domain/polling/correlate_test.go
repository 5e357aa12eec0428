package polling

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ehr/hie/internal/domain/authorization"
	"github.com/ehr/hie/internal/domain/claims"
)

func newCorrelatorFixture() (*Correlator, *fakeAuthRepo, *fakeClaimRepo) {
	auths := newFakeAuthRepo()
	claimRepo := newFakeClaimRepo()
	return NewCorrelator(auths, claimRepo, zerolog.Nop()), auths, claimRepo
}

func TestCorrelate_AuthorizationWinsOverClaim(t *testing.T) {
	c, auths, claimRepo := newCorrelatorFixture()
	auth := auths.add(&authorization.PriorAuthorization{OutboundBundleID: strPtr("bundle-1")})
	claimRepo.add(&claims.ClaimSubmission{OutboundBundleID: strPtr("bundle-1")})

	r, err := c.CorrelateToOutboundRequest(context.Background(), "bundle-1", &ClaimResponsePayload{})
	if err != nil {
		t.Fatalf("correlate: %v", err)
	}
	if !r.Matched || r.Table != TablePriorAuthorizations || r.RecordID != auth.ID.String() {
		t.Errorf("result = %+v, want prior authorization %s", r, auth.ID)
	}
	if r.Strategy != StrategyAuthBundleID {
		t.Errorf("strategy = %q", r.Strategy)
	}
}

func TestCorrelate_FallsBackToClaims(t *testing.T) {
	c, _, claimRepo := newCorrelatorFixture()
	claim := claimRepo.add(&claims.ClaimSubmission{OutboundBundleID: strPtr("bundle-2")})

	r, err := c.CorrelateToOutboundRequest(context.Background(), "bundle-2", &ClaimResponsePayload{})
	if err != nil {
		t.Fatalf("correlate: %v", err)
	}
	if !r.Matched || r.Table != TableClaimSubmissions || r.RecordID != claim.ID.String() {
		t.Errorf("result = %+v, want claim submission %s", r, claim.ID)
	}
}

func TestCorrelate_RequestReferenceFallback(t *testing.T) {
	c, auths, _ := newCorrelatorFixture()
	auth := auths.add(&authorization.PriorAuthorization{RequestFHIRID: strPtr("claim-55")})

	r, err := c.CorrelateToOutboundRequest(context.Background(), "unknown-bundle", &ClaimResponsePayload{ClaimRef: "claim-55"})
	if err != nil {
		t.Fatalf("correlate: %v", err)
	}
	if !r.Matched || r.RecordID != auth.ID.String() || r.Strategy != StrategyAuthRequestRef {
		t.Errorf("result = %+v", r)
	}
}

func TestCorrelate_FailsClosedOnAmbiguity(t *testing.T) {
	c, auths, _ := newCorrelatorFixture()
	auths.add(&authorization.PriorAuthorization{OutboundBundleID: strPtr("dup")})
	auths.add(&authorization.PriorAuthorization{OutboundBundleID: strPtr("dup")})

	r, err := c.CorrelateToOutboundRequest(context.Background(), "dup", &ClaimResponsePayload{})
	if err != nil {
		t.Fatalf("correlate: %v", err)
	}
	if r.Matched {
		t.Fatalf("two candidates must fail closed, got %+v", r)
	}
	if r.Reason == "" {
		t.Errorf("ambiguity reason not recorded")
	}
}

func TestCorrelate_NoMatch(t *testing.T) {
	c, _, _ := newCorrelatorFixture()

	r, err := c.CorrelateToOutboundRequest(context.Background(), "never-sent", &ClaimResponsePayload{})
	if err != nil {
		t.Fatalf("correlate: %v", err)
	}
	if r.Matched {
		t.Errorf("phantom identifier matched: %+v", r)
	}
}

func TestHandleNewInboundEvent_MatchesByPayloadIdentifier(t *testing.T) {
	c, auths, _ := newCorrelatorFixture()
	auth := auths.add(&authorization.PriorAuthorization{OutboundBundleID: strPtr("resp-123")})

	cls := Classify(messageEnvelope("", claimResponseResource(nil)))
	r, err := c.HandleNewInboundEvent(context.Background(), cls)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !r.Matched || r.RecordID != auth.ID.String() {
		t.Errorf("result = %+v, want %s", r, auth.ID)
	}
	if r.IsNew {
		t.Errorf("matched existing record must not be IsNew")
	}
}

func TestHandleNewInboundEvent_AdvancedAuthorization(t *testing.T) {
	c, _, _ := newCorrelatorFixture()

	cls := Classify(messageEnvelope("", claimResponseResource(func(res map[string]interface{}) {
		res["identifier"] = []interface{}{map[string]interface{}{"value": "ADV-1"}}
		delete(res, "request")
		res["extension"] = []interface{}{
			map[string]interface{}{"url": extAdvancedAuth, "valueCode": "advanced"},
		}
	})))

	r, err := c.HandleNewInboundEvent(context.Background(), cls)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !r.Matched || r.Table != TableAdvancedAuthorizations || !r.IsNew {
		t.Errorf("result = %+v, want new advanced authorization", r)
	}
}

func TestHandleNewInboundEvent_Unmatched(t *testing.T) {
	c, _, _ := newCorrelatorFixture()

	cls := Classify(messageEnvelope("", claimResponseResource(func(res map[string]interface{}) {
		delete(res, "request")
	})))

	r, err := c.HandleNewInboundEvent(context.Background(), cls)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if r.Matched {
		t.Errorf("plain unsolicited claim response must be unmatched, got %+v", r)
	}
	if r.Reason == "" {
		t.Errorf("unmatched reason not recorded")
	}
}

func TestHandleNewInboundEvent_CommunicationsAlwaysStorable(t *testing.T) {
	c, _, _ := newCorrelatorFixture()

	cls := Classify(SynthesizeEnvelope(map[string]interface{}{
		"resourceType": "CommunicationRequest",
		"identifier":   []interface{}{map[string]interface{}{"value": "CQ-77"}},
	}))

	r, err := c.HandleNewInboundEvent(context.Background(), cls)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !r.Matched || r.Table != TableCommunicationRequests || r.Strategy != StrategyOwnIdentifier {
		t.Errorf("result = %+v", r)
	}
}
