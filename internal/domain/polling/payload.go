package polling

import (
	"github.com/ehr/hie/internal/platform/fhir"
)

// PayloadKind identifies a recognized inbound payload resource kind.
type PayloadKind string

const (
	KindClaimResponse        PayloadKind = "claim_response"
	KindCommunicationRequest PayloadKind = "communication_request"
	KindCommunication        PayloadKind = "communication"
	KindUnknown              PayloadKind = "unknown"
)

// Extension URLs carried on exchange payloads.
const (
	extAdjudicationOutcome = "http://exchange.hie/fhir/StructureDefinition/extension-adjudication-outcome"
	extAdvancedAuth        = "http://exchange.hie/fhir/StructureDefinition/extension-advanced-authorization"
)

// PayloadResource is the closed set of payload kinds the updater can apply.
// The unexported method seals the interface: adding a kind means adding a
// variant here and the compiler flags every dispatch site that misses it.
type PayloadResource interface {
	Kind() PayloadKind
	Identifier() string
	Raw() map[string]interface{}

	payloadVariant()
}

// ItemAdjudication is one line item's decision inside a claim response.
type ItemAdjudication struct {
	Sequence     int
	Adjudication string
	Reason       string
	Amount       *float64
}

// ClaimResponsePayload is a parsed claim-response-like resource: the payer's
// adjudication of a prior authorization, a claim, or a payer-initiated
// advanced authorization.
type ClaimResponsePayload struct {
	FHIRID       string
	IdentValue   string
	Outcome      string
	Disposition  string
	Adjudication string // explicit adjudication-outcome extension, "" if absent
	PreAuthRef   string
	ClaimRef     string // bare id of the request reference
	Advanced     bool
	Totals       map[string]float64 // keyed by total category code
	Currency     string
	Items        []ItemAdjudication
	raw          map[string]interface{}
}

func (p *ClaimResponsePayload) Kind() PayloadKind           { return KindClaimResponse }
func (p *ClaimResponsePayload) Identifier() string          { return p.IdentValue }
func (p *ClaimResponsePayload) Raw() map[string]interface{} { return p.raw }
func (p *ClaimResponsePayload) payloadVariant()             {}

// CommunicationRequestPayload is a payer request for additional information.
type CommunicationRequestPayload struct {
	FHIRID     string
	IdentValue string
	AboutRef   string
	Status     string
	raw        map[string]interface{}
}

func (p *CommunicationRequestPayload) Kind() PayloadKind           { return KindCommunicationRequest }
func (p *CommunicationRequestPayload) Identifier() string          { return p.IdentValue }
func (p *CommunicationRequestPayload) Raw() map[string]interface{} { return p.raw }
func (p *CommunicationRequestPayload) payloadVariant()             {}

// CommunicationPayload is a payer-sent communication, typically a reply to
// a communication request.
type CommunicationPayload struct {
	FHIRID     string
	IdentValue string
	BasedOnRef string
	Status     string
	raw        map[string]interface{}
}

func (p *CommunicationPayload) Kind() PayloadKind           { return KindCommunication }
func (p *CommunicationPayload) Identifier() string          { return p.IdentValue }
func (p *CommunicationPayload) Raw() map[string]interface{} { return p.raw }
func (p *CommunicationPayload) payloadVariant()             {}

// ParsePayload turns a decoded resource tree into its payload variant, or
// nil when the resource kind is not recognized. Parsing is lenient: absent
// fields come back as zero values, never errors — the envelope is consumed
// verbatim and validation is not this pipeline's job.
func ParsePayload(res map[string]interface{}) PayloadResource {
	switch fhir.ResourceType(res) {
	case kindClaimResponse:
		return parseClaimResponse(res)
	case kindCommunicationRequest:
		return &CommunicationRequestPayload{
			FHIRID:     fhir.GetString(res, "id"),
			IdentValue: fhir.IdentifierValue(res, ""),
			AboutRef:   firstReference(res, "about"),
			Status:     fhir.GetString(res, "status"),
			raw:        res,
		}
	case kindCommunication:
		return &CommunicationPayload{
			FHIRID:     fhir.GetString(res, "id"),
			IdentValue: fhir.IdentifierValue(res, ""),
			BasedOnRef: firstReference(res, "basedOn"),
			Status:     fhir.GetString(res, "status"),
			raw:        res,
		}
	default:
		return nil
	}
}

func parseClaimResponse(res map[string]interface{}) *ClaimResponsePayload {
	p := &ClaimResponsePayload{
		FHIRID:       fhir.GetString(res, "id"),
		IdentValue:   fhir.IdentifierValue(res, ""),
		Outcome:      fhir.GetString(res, "outcome"),
		Disposition:  fhir.GetString(res, "disposition"),
		Adjudication: fhir.ExtensionCode(res, extAdjudicationOutcome),
		PreAuthRef:   fhir.GetString(res, "preAuthRef"),
		ClaimRef:     fhir.ReferenceID(fhir.GetString(fhir.GetMap(res, "request"), "reference")),
		Advanced:     fhir.ExtensionCode(res, extAdvancedAuth) != "",
		Totals:       map[string]float64{},
		raw:          res,
	}

	for _, t := range fhir.GetSlice(res, "total") {
		total, ok := t.(map[string]interface{})
		if !ok {
			continue
		}
		code := fhir.FirstCodingCode(fhir.GetMap(total, "category"))
		amount := fhir.GetMap(total, "amount")
		if code == "" || amount == nil {
			continue
		}
		p.Totals[code] = fhir.GetFloat(amount, "value")
		if p.Currency == "" {
			p.Currency = fhir.GetString(amount, "currency")
		}
	}

	for _, i := range fhir.GetSlice(res, "item") {
		item, ok := i.(map[string]interface{})
		if !ok {
			continue
		}
		ia := ItemAdjudication{Sequence: int(fhir.GetFloat(item, "itemSequence"))}
		for _, a := range fhir.GetSlice(item, "adjudication") {
			adj, ok := a.(map[string]interface{})
			if !ok {
				continue
			}
			if code := fhir.FirstCodingCode(fhir.GetMap(adj, "category")); code != "" && ia.Adjudication == "" {
				ia.Adjudication = code
			}
			if reason := fhir.FirstCodingCode(fhir.GetMap(adj, "reason")); reason != "" && ia.Reason == "" {
				ia.Reason = reason
			}
			if amount := fhir.GetMap(adj, "amount"); amount != nil && ia.Amount == nil {
				v := fhir.GetFloat(amount, "value")
				ia.Amount = &v
			}
		}
		p.Items = append(p.Items, ia)
	}

	return p
}

func firstReference(res map[string]interface{}, key string) string {
	for _, r := range fhir.GetSlice(res, key) {
		ref, ok := r.(map[string]interface{})
		if !ok {
			continue
		}
		if v := fhir.GetString(ref, "reference"); v != "" {
			return v
		}
	}
	return ""
}
