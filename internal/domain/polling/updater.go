package polling

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/hie/internal/domain/authorization"
	"github.com/ehr/hie/internal/domain/claims"
	"github.com/ehr/hie/internal/domain/comms"
)

// Total category codes carried on claim response totals.
const (
	totalSubmitted    = "submitted"
	totalBenefit      = "benefit"
	totalApproved     = "approved"
	totalPatientShare = "patient-share"
)

// Updater applies a classified payload to its correlated record. Every
// method is idempotent: re-applying the same payload reproduces the same
// record state, with only the append-only history growing.
type Updater struct {
	auths    authorization.Repository
	advanced authorization.AdvancedRepository
	claims   claims.Repository
	comms    comms.Repository
	logger   zerolog.Logger
}

func NewUpdater(auths authorization.Repository, advanced authorization.AdvancedRepository, claimRepo claims.Repository, commRepo comms.Repository, logger zerolog.Logger) *Updater {
	return &Updater{auths: auths, advanced: advanced, claims: claimRepo, comms: commRepo, logger: logger}
}

// Apply dispatches on the closed payload union and mutates the correlated
// record. It returns the processing status for the audit row and updates
// cor.RecordID / cor.IsNew when the updater itself created the record.
func (u *Updater) Apply(ctx context.Context, cls Classified, cor *CorrelationResult) (string, error) {
	switch p := cls.Payload.(type) {
	case *ClaimResponsePayload:
		return u.applyClaimResponse(ctx, p, cor)
	case *CommunicationRequestPayload:
		return u.applyCommunicationRequest(ctx, p, cor)
	case *CommunicationPayload:
		return u.applyCommunication(ctx, p, cor)
	default:
		return MsgError, fmt.Errorf("no updater for payload kind %q", cls.Kind)
	}
}

func (u *Updater) applyClaimResponse(ctx context.Context, p *ClaimResponsePayload, cor *CorrelationResult) (string, error) {
	switch cor.Table {
	case TableAdvancedAuthorizations:
		return u.upsertAdvanced(ctx, p, cor)
	case TablePriorAuthorizations:
		return u.updateAuthorization(ctx, p, cor)
	case TableClaimSubmissions:
		return u.updateClaim(ctx, p, cor)
	default:
		return MsgError, fmt.Errorf("claim response correlated to unexpected table %q", cor.Table)
	}
}

func (u *Updater) updateAuthorization(ctx context.Context, p *ClaimResponsePayload, cor *CorrelationResult) (string, error) {
	id, err := uuid.Parse(cor.RecordID)
	if err != nil {
		return MsgError, fmt.Errorf("parse correlated record id: %w", err)
	}
	auth, err := u.auths.GetByID(ctx, id)
	if err != nil {
		return MsgError, fmt.Errorf("load prior authorization: %w", err)
	}

	status, adjudication := deriveClaimStatus(p)
	now := time.Now().UTC()

	auth.Status = status
	auth.AdjudicationOutcome = strOrNil(adjudication)
	auth.Disposition = strOrNil(p.Disposition)
	auth.PreAuthRef = strOrNil(p.PreAuthRef)
	auth.Currency = strOrNil(p.Currency)
	auth.LastResponse = rawJSON(p.raw)
	auth.RespondedAt = &now
	if v, ok := p.Totals[totalApproved]; ok {
		auth.TotalApproved = &v
	} else if v, ok := p.Totals[totalBenefit]; ok {
		auth.TotalApproved = &v
	}
	if v, ok := p.Totals[totalSubmitted]; ok {
		auth.TotalSubmitted = &v
	}

	if err := u.auths.ApplyResponse(ctx, auth); err != nil {
		return MsgError, fmt.Errorf("apply authorization response: %w", err)
	}
	if items := authItems(auth.ID, p.Items); items != nil {
		if err := u.auths.ReplaceItems(ctx, auth.ID, items); err != nil {
			return MsgError, fmt.Errorf("replace authorization items: %w", err)
		}
	}
	if err := u.auths.AddResponseRecord(ctx, &authorization.ResponseRecord{
		AuthID:      auth.ID,
		Outcome:     strOrNil(p.Outcome),
		Disposition: strOrNil(p.Disposition),
		Payload:     rawJSON(p.raw),
	}); err != nil {
		return MsgError, fmt.Errorf("append authorization history: %w", err)
	}

	u.logger.Info().Str("auth_id", auth.ID.String()).Str("status", status).Msg("prior authorization updated from payer response")
	return MsgProcessed, nil
}

func (u *Updater) updateClaim(ctx context.Context, p *ClaimResponsePayload, cor *CorrelationResult) (string, error) {
	id, err := uuid.Parse(cor.RecordID)
	if err != nil {
		return MsgError, fmt.Errorf("parse correlated record id: %w", err)
	}
	claim, err := u.claims.GetByID(ctx, id)
	if err != nil {
		return MsgError, fmt.Errorf("load claim submission: %w", err)
	}

	status, adjudication := deriveClaimStatus(p)
	now := time.Now().UTC()

	claim.Status = status
	claim.AdjudicationOutcome = strOrNil(adjudication)
	claim.Disposition = strOrNil(p.Disposition)
	claim.Currency = strOrNil(p.Currency)
	claim.LastResponse = rawJSON(p.raw)
	claim.RespondedAt = &now
	if v, ok := p.Totals[totalBenefit]; ok {
		claim.TotalBenefit = &v
	} else if v, ok := p.Totals[totalApproved]; ok {
		claim.TotalBenefit = &v
	}
	if v, ok := p.Totals[totalPatientShare]; ok {
		claim.TotalPatientShare = &v
	}

	if err := u.claims.ApplyResponse(ctx, claim); err != nil {
		return MsgError, fmt.Errorf("apply claim response: %w", err)
	}
	if items := claimItems(claim.ID, p.Items); items != nil {
		if err := u.claims.ReplaceItems(ctx, claim.ID, items); err != nil {
			return MsgError, fmt.Errorf("replace claim items: %w", err)
		}
	}
	if err := u.claims.AddResponseRecord(ctx, &claims.ResponseRecord{
		ClaimID:     claim.ID,
		Outcome:     strOrNil(p.Outcome),
		Disposition: strOrNil(p.Disposition),
		Payload:     rawJSON(p.raw),
	}); err != nil {
		return MsgError, fmt.Errorf("append claim history: %w", err)
	}

	u.logger.Info().Str("claim_id", claim.ID.String()).Str("status", status).Msg("claim submission updated from payer response")
	return MsgProcessed, nil
}

// upsertAdvanced is a full-replace keyed by the payload's own identifier in
// one atomic statement, so two concurrent polls discovering the same
// payer-initiated authorization cannot race into a duplicate.
func (u *Updater) upsertAdvanced(ctx context.Context, p *ClaimResponsePayload, cor *CorrelationResult) (string, error) {
	if p.IdentValue == "" {
		return MsgError, fmt.Errorf("advanced authorization payload has no identifier")
	}

	status, adjudication := deriveClaimStatus(p)
	now := time.Now().UTC()
	rec := &authorization.AdvancedAuthorization{
		Identifier:          p.IdentValue,
		Status:              status,
		AdjudicationOutcome: strOrNil(adjudication),
		Disposition:         strOrNil(p.Disposition),
		PreAuthRef:          strOrNil(p.PreAuthRef),
		Currency:            strOrNil(p.Currency),
		Payload:             rawJSON(p.raw),
		RespondedAt:         &now,
	}
	if v, ok := p.Totals[totalApproved]; ok {
		rec.TotalApproved = &v
	} else if v, ok := p.Totals[totalBenefit]; ok {
		rec.TotalApproved = &v
	}

	inserted, err := u.advanced.Upsert(ctx, rec)
	if err != nil {
		return MsgError, fmt.Errorf("upsert advanced authorization: %w", err)
	}

	cor.RecordID = rec.ID.String()
	cor.IsNew = inserted
	if inserted {
		u.logger.Info().Str("identifier", p.IdentValue).Msg("advanced authorization created")
		return MsgNewRecord, nil
	}
	u.logger.Info().Str("identifier", p.IdentValue).Msg("advanced authorization replaced")
	return MsgProcessed, nil
}

func (u *Updater) applyCommunicationRequest(ctx context.Context, p *CommunicationRequestPayload, cor *CorrelationResult) (string, error) {
	if p.IdentValue == "" {
		return MsgError, fmt.Errorf("communication request payload has no identifier")
	}
	cr := &comms.CommunicationRequest{
		Identifier: p.IdentValue,
		AboutRef:   strOrNil(p.AboutRef),
		Status:     p.Status,
		Payload:    rawJSON(p.raw),
	}
	alreadyStored, err := u.comms.InsertRequestOnce(ctx, cr)
	if err != nil {
		return MsgError, fmt.Errorf("store communication request: %w", err)
	}
	if alreadyStored {
		// The audit row still references the stored record.
		existing, err := u.comms.GetRequestByIdentifier(ctx, p.IdentValue)
		if err != nil {
			return MsgError, fmt.Errorf("load stored communication request: %w", err)
		}
		cor.RecordID = existing.ID.String()
		return MsgProcessed, nil
	}
	cor.RecordID = cr.ID.String()
	cor.IsNew = true
	return MsgNewRecord, nil
}

func (u *Updater) applyCommunication(ctx context.Context, p *CommunicationPayload, cor *CorrelationResult) (string, error) {
	if p.IdentValue == "" {
		return MsgError, fmt.Errorf("communication payload has no identifier")
	}
	c := &comms.Communication{
		Identifier: p.IdentValue,
		BasedOnRef: strOrNil(p.BasedOnRef),
		Status:     p.Status,
		Payload:    rawJSON(p.raw),
	}
	alreadyStored, err := u.comms.InsertCommunicationOnce(ctx, c)
	if err != nil {
		return MsgError, fmt.Errorf("store communication: %w", err)
	}

	// A communication answering a stored request acknowledges it. The flag
	// is one-way, so re-applying is harmless.
	if ref := refIdentifier(p.BasedOnRef); ref != "" {
		if err := u.comms.MarkAcknowledged(ctx, ref); err != nil {
			return MsgError, fmt.Errorf("acknowledge communication request: %w", err)
		}
	}

	if alreadyStored {
		existing, err := u.comms.GetCommunicationByIdentifier(ctx, p.IdentValue)
		if err != nil {
			return MsgError, fmt.Errorf("load stored communication: %w", err)
		}
		cor.RecordID = existing.ID.String()
		return MsgProcessed, nil
	}
	cor.RecordID = c.ID.String()
	cor.IsNew = true
	return MsgNewRecord, nil
}

// deriveClaimStatus maps a payload to the record status and adjudication
// outcome. An explicit adjudication-outcome extension always wins; the
// free-text disposition scan is a last-resort heuristic, and a complete
// outcome with no recognizable signal defaults to approved.
func deriveClaimStatus(p *ClaimResponsePayload) (status, adjudication string) {
	switch p.Adjudication {
	case authorization.AdjudicationApproved:
		return authorization.StatusApproved, authorization.AdjudicationApproved
	case authorization.AdjudicationRejected:
		return authorization.StatusDenied, authorization.AdjudicationRejected
	case authorization.AdjudicationPartial:
		return authorization.StatusPartial, authorization.AdjudicationPartial
	case authorization.AdjudicationPending:
		return authorization.StatusQueued, authorization.AdjudicationPending
	}

	switch p.Outcome {
	case "complete":
		d := strings.ToLower(p.Disposition)
		switch {
		case strings.Contains(d, "deny") || strings.Contains(d, "denied") || strings.Contains(d, "reject"):
			return authorization.StatusDenied, authorization.AdjudicationRejected
		default:
			// Covers both an approve/accept disposition and the
			// no-signal case; complete with nothing recognizable is
			// treated as approved.
			return authorization.StatusApproved, authorization.AdjudicationApproved
		}
	case "partial":
		return authorization.StatusPartial, authorization.AdjudicationPartial
	case "queued":
		return authorization.StatusQueued, authorization.AdjudicationPending
	case "error":
		return authorization.StatusError, ""
	default:
		return authorization.StatusQueued, ""
	}
}

// mapAdjudication normalizes an item-level adjudication code onto the
// record-level enumeration.
func mapAdjudication(code string) string {
	switch strings.ToLower(code) {
	case "approved", "approve", "eligible", "accept", "accepted":
		return authorization.AdjudicationApproved
	case "rejected", "reject", "denied", "deny", "not-eligible":
		return authorization.AdjudicationRejected
	case "partial":
		return authorization.AdjudicationPartial
	default:
		return authorization.AdjudicationPending
	}
}

func authItems(authID uuid.UUID, items []ItemAdjudication) []*authorization.Item {
	if len(items) == 0 {
		return nil
	}
	out := make([]*authorization.Item, 0, len(items))
	for _, ia := range items {
		out = append(out, &authorization.Item{
			AuthID:         authID,
			Sequence:       ia.Sequence,
			Adjudication:   mapAdjudication(ia.Adjudication),
			Reason:         strOrNil(ia.Reason),
			ApprovedAmount: ia.Amount,
		})
	}
	return out
}

func claimItems(claimID uuid.UUID, items []ItemAdjudication) []*claims.Item {
	if len(items) == 0 {
		return nil
	}
	out := make([]*claims.Item, 0, len(items))
	for _, ia := range items {
		out = append(out, &claims.Item{
			ClaimID:        claimID,
			Sequence:       ia.Sequence,
			Adjudication:   mapAdjudication(ia.Adjudication),
			Reason:         strOrNil(ia.Reason),
			ApprovedAmount: ia.Amount,
		})
	}
	return out
}

func strOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func rawJSON(res map[string]interface{}) json.RawMessage {
	raw, err := json.Marshal(res)
	if err != nil {
		return nil
	}
	return raw
}

// refIdentifier extracts the request identifier a communication points at
// through its basedOn reference.
func refIdentifier(ref string) string {
	if ref == "" {
		return ""
	}
	if i := strings.LastIndex(ref, "/"); i >= 0 {
		return ref[i+1:]
	}
	return ref
}
