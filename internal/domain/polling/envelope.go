package polling

import (
	"time"

	"github.com/google/uuid"

	"github.com/ehr/hie/internal/domain/provider"
	"github.com/ehr/hie/internal/platform/fhir"
)

const (
	eventPollRequest = "poll-request"

	// Message kinds requested from the exchange on every poll.
	kindClaimResponse        = "ClaimResponse"
	kindCommunicationRequest = "CommunicationRequest"
	kindCommunication        = "Communication"
)

// BuildPollEnvelope constructs the outbound poll envelope: a message-type
// bundle whose header declares the poll-request event and whose Parameters
// resource carries the requesting provider license, the bounded page size
// and the message kinds of interest. Deterministic apart from the embedded
// identifiers and timestamp; performs no I/O.
func BuildPollEnvelope(p *provider.Identity, pageSize int) (*fhir.Bundle, error) {
	if pageSize < 1 {
		pageSize = 1
	} else if pageSize > 100 {
		pageSize = 100
	}

	headerID := uuid.New().String()
	header := map[string]interface{}{
		"resourceType": "MessageHeader",
		"id":           headerID,
		"eventCoding": map[string]interface{}{
			"system": "http://exchange.hie/fhir/message-events",
			"code":   eventPollRequest,
		},
		"source": map[string]interface{}{
			"name": p.Name,
		},
		"sender": map[string]interface{}{
			"type":       "Organization",
			"identifier": map[string]interface{}{"system": "http://exchange.hie/license", "value": p.License},
		},
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	params := map[string]interface{}{
		"resourceType": "Parameters",
		"id":           uuid.New().String(),
		"parameter": []interface{}{
			map[string]interface{}{"name": "count", "valueInteger": pageSize},
			map[string]interface{}{"name": "message-kind", "valueCode": kindClaimResponse},
			map[string]interface{}{"name": "message-kind", "valueCode": kindCommunicationRequest},
			map[string]interface{}{"name": "message-kind", "valueCode": kindCommunication},
		},
	}

	return fhir.NewMessageBundle(uuid.New().String(), header, params)
}
