package polling

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ehr/hie/internal/domain/authorization"
	"github.com/ehr/hie/internal/domain/claims"
)

// Target tables a message can correlate to.
const (
	TablePriorAuthorizations    = "prior_authorizations"
	TableClaimSubmissions       = "claim_submissions"
	TableAdvancedAuthorizations = "advanced_authorizations"
	TableCommunicationRequests  = "communication_requests"
	TableCommunications         = "communications"
)

// Match strategies, in decreasing confidence order.
const (
	StrategyAuthBundleID    = "auth_outbound_bundle_id"
	StrategyClaimBundleID   = "claim_outbound_bundle_id"
	StrategyAuthRequestRef  = "auth_request_fhir_id"
	StrategyClaimRequestRef = "claim_request_fhir_id"
	StrategyAdvancedUpsert  = "advanced_auth_upsert"
	StrategyOwnIdentifier   = "own_identifier"
)

// Correlator resolves a message to zero-or-one local record. Every strategy
// fails closed: two candidates means no match, never a guess — a wrong
// match corrupts authorization or financial state, so ambiguity is reported
// as unmatched instead.
type Correlator struct {
	auths  authorization.Repository
	claims claims.Repository
	logger zerolog.Logger
}

func NewCorrelator(auths authorization.Repository, claims claims.Repository, logger zerolog.Logger) *Correlator {
	return &Correlator{auths: auths, claims: claims, logger: logger}
}

// CorrelateToOutboundRequest matches a solicited message's response
// identifier against stored outbound request identifiers, with a payload
// reference fallback for claim responses. First strategy to produce exactly
// one candidate wins; a strategy producing several stops the search and
// reports ambiguity.
func (c *Correlator) CorrelateToOutboundRequest(ctx context.Context, responseID string, payload PayloadResource) (*CorrelationResult, error) {
	if responseID != "" {
		if r, err := c.matchAuths(ctx, StrategyAuthBundleID, func() ([]*authorization.PriorAuthorization, error) {
			return c.auths.FindByOutboundBundleID(ctx, responseID)
		}); r != nil || err != nil {
			return r, err
		}
		if r, err := c.matchClaims(ctx, StrategyClaimBundleID, func() ([]*claims.ClaimSubmission, error) {
			return c.claims.FindByOutboundBundleID(ctx, responseID)
		}); r != nil || err != nil {
			return r, err
		}
	}

	// Fallback: the request reference embedded in a claim response points
	// at the FHIR id of the originally submitted request resource.
	if crp, ok := payload.(*ClaimResponsePayload); ok && crp.ClaimRef != "" {
		if r, err := c.matchAuths(ctx, StrategyAuthRequestRef, func() ([]*authorization.PriorAuthorization, error) {
			return c.auths.FindByRequestFHIRID(ctx, crp.ClaimRef)
		}); r != nil || err != nil {
			return r, err
		}
		if r, err := c.matchClaims(ctx, StrategyClaimRequestRef, func() ([]*claims.ClaimSubmission, error) {
			return c.claims.FindByRequestFHIRID(ctx, crp.ClaimRef)
		}); r != nil || err != nil {
			return r, err
		}
	}

	// Communications carry their own identity and are stored insert-once,
	// so they never dead-end on a missed outbound match.
	if t, ok := commTable(payload); ok {
		return &CorrelationResult{Matched: true, Table: t, Strategy: StrategyOwnIdentifier}, nil
	}

	return &CorrelationResult{Matched: false, Reason: "no outbound request matched"}, nil
}

// HandleNewInboundEvent correlates an unsolicited message. Identifier-based
// matching runs first (a payer may push an update referencing a claim
// without the response header field); a claim response carrying the
// advanced-authorization marker becomes a new payer-initiated record, with
// the insert deferred to the updater's atomic upsert. Anything else is
// unmatched — an expected outcome for noise and duplicates, not an error.
func (c *Correlator) HandleNewInboundEvent(ctx context.Context, cls Classified) (*CorrelationResult, error) {
	if id := cls.Payload.Identifier(); id != "" || hasClaimRef(cls.Payload) {
		r, err := c.CorrelateToOutboundRequest(ctx, id, cls.Payload)
		if err != nil {
			return nil, err
		}
		if r.Matched {
			return r, nil
		}
	}

	if crp, ok := cls.Payload.(*ClaimResponsePayload); ok && crp.Advanced {
		return &CorrelationResult{
			Matched:  true,
			Table:    TableAdvancedAuthorizations,
			Strategy: StrategyAdvancedUpsert,
			IsNew:    true,
		}, nil
	}

	if t, ok := commTable(cls.Payload); ok {
		return &CorrelationResult{Matched: true, Table: t, Strategy: StrategyOwnIdentifier}, nil
	}

	return &CorrelationResult{Matched: false, Reason: "unsolicited message matched no local record"}, nil
}

func (c *Correlator) matchAuths(ctx context.Context, strategy string, find func() ([]*authorization.PriorAuthorization, error)) (*CorrelationResult, error) {
	found, err := find()
	if err != nil {
		return nil, fmt.Errorf("correlate %s: %w", strategy, err)
	}
	switch len(found) {
	case 0:
		return nil, nil
	case 1:
		return &CorrelationResult{Matched: true, Table: TablePriorAuthorizations, RecordID: found[0].ID.String(), Strategy: strategy}, nil
	default:
		c.logger.Warn().Str("strategy", strategy).Int("candidates", len(found)).Msg("ambiguous correlation, failing closed")
		return &CorrelationResult{Matched: false, Reason: fmt.Sprintf("%s: %d candidates", strategy, len(found))}, nil
	}
}

func (c *Correlator) matchClaims(ctx context.Context, strategy string, find func() ([]*claims.ClaimSubmission, error)) (*CorrelationResult, error) {
	found, err := find()
	if err != nil {
		return nil, fmt.Errorf("correlate %s: %w", strategy, err)
	}
	switch len(found) {
	case 0:
		return nil, nil
	case 1:
		return &CorrelationResult{Matched: true, Table: TableClaimSubmissions, RecordID: found[0].ID.String(), Strategy: strategy}, nil
	default:
		c.logger.Warn().Str("strategy", strategy).Int("candidates", len(found)).Msg("ambiguous correlation, failing closed")
		return &CorrelationResult{Matched: false, Reason: fmt.Sprintf("%s: %d candidates", strategy, len(found))}, nil
	}
}

func hasClaimRef(p PayloadResource) bool {
	crp, ok := p.(*ClaimResponsePayload)
	return ok && crp.ClaimRef != ""
}

func commTable(p PayloadResource) (string, bool) {
	switch p.(type) {
	case *CommunicationRequestPayload:
		return TableCommunicationRequests, true
	case *CommunicationPayload:
		return TableCommunications, true
	default:
		return "", false
	}
}
