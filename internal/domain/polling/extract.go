package polling

import (
	"github.com/google/uuid"

	"github.com/ehr/hie/internal/platform/fhir"
)

// recognizedKinds are the payload resource kinds the pipeline dispatches on.
var recognizedKinds = map[string]bool{
	kindClaimResponse:        true,
	kindCommunicationRequest: true,
	kindCommunication:        true,
}

// ExtractMessages walks the top-level entries of a response envelope and
// returns every entry resource that is itself a message-typed bundle. The
// exchange nests one message envelope per polled message.
func ExtractMessages(response map[string]interface{}) []map[string]interface{} {
	var out []map[string]interface{}
	for _, res := range fhir.EntryResources(response) {
		if fhir.ResourceType(res) == "Bundle" && fhir.GetString(res, "type") == "message" {
			out = append(out, res)
		}
	}
	return out
}

// ExtractDirectResources returns top-level entry resources of recognized
// payload kinds that are not wrapped in a nested message bundle. The
// exchange is observed to use both shapes; direct resources are wrapped in
// a pseudo-envelope by the caller so both flow through one pipeline.
func ExtractDirectResources(response map[string]interface{}) []map[string]interface{} {
	var out []map[string]interface{}
	for _, res := range fhir.EntryResources(response) {
		if recognizedKinds[fhir.ResourceType(res)] {
			out = append(out, res)
		}
	}
	return out
}

// SynthesizeEnvelope wraps one direct payload resource in a single-entry
// message bundle with a bare header. The header carries no response
// identifier, so synthesized messages classify as unsolicited.
func SynthesizeEnvelope(res map[string]interface{}) map[string]interface{} {
	header := map[string]interface{}{
		"resourceType": "MessageHeader",
		"id":           uuid.New().String(),
	}
	return map[string]interface{}{
		"resourceType": "Bundle",
		"type":         "message",
		"entry": []interface{}{
			map[string]interface{}{"resource": header},
			map[string]interface{}{"resource": res},
		},
	}
}
