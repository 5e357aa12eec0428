package polling

import (
	"github.com/ehr/hie/internal/platform/fhir"
)

// Classified is the outcome of inspecting one message envelope: its header,
// the single payload resource of interest, and whether the message answers
// a previously sent request.
type Classified struct {
	Envelope       map[string]interface{}
	Header         map[string]interface{}
	HeaderID       string
	ResponseID     string
	EventCode      string
	Payload        PayloadResource
	Kind           PayloadKind
	Classification string
}

// Classify inspects a message envelope. The header is the first
// MessageHeader entry; the payload is the first entry of a recognized kind.
// A message is solicited iff the header carries a non-empty
// response.identifier — the sole signal, with no payload heuristics. A
// response identifier pointing at a request this system never sent still
// classifies solicited; correlation simply fails to match it.
func Classify(envelope map[string]interface{}) Classified {
	cls := Classified{
		Envelope:       envelope,
		Kind:           KindUnknown,
		Classification: ClassUnknown,
	}

	for _, res := range fhir.EntryResources(envelope) {
		if cls.Header == nil && fhir.ResourceType(res) == "MessageHeader" {
			cls.Header = res
			continue
		}
		if cls.Payload == nil {
			if p := ParsePayload(res); p != nil {
				cls.Payload = p
				cls.Kind = p.Kind()
			}
		}
	}

	if cls.Header != nil {
		cls.HeaderID = fhir.GetString(cls.Header, "id")
		cls.ResponseID = fhir.ResponseIdentifier(cls.Header)
		cls.EventCode = fhir.EventCode(cls.Header)
		if cls.ResponseID != "" {
			cls.Classification = ClassSolicited
		} else {
			cls.Classification = ClassUnsolicited
		}
	}

	return cls
}
