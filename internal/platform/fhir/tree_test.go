package fhir

import (
	"encoding/json"
	"testing"
)

func decode(t *testing.T, s string) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return m
}

func TestResourceType(t *testing.T) {
	res := decode(t, `{"resourceType":"ClaimResponse"}`)
	if got := ResourceType(res); got != "ClaimResponse" {
		t.Errorf("got %q", got)
	}
	if got := ResourceType(map[string]interface{}{}); got != "" {
		t.Errorf("expected empty, got %q", got)
	}
}

func TestEntryResources(t *testing.T) {
	bundle := decode(t, `{
		"resourceType":"Bundle",
		"entry":[
			{"resource":{"resourceType":"MessageHeader"}},
			{"fullUrl":"urn:uuid:x"},
			{"resource":{"resourceType":"ClaimResponse"}}
		]}`)
	res := EntryResources(bundle)
	if len(res) != 2 {
		t.Fatalf("expected 2 resources, got %d", len(res))
	}
	if ResourceType(res[1]) != "ClaimResponse" {
		t.Errorf("unexpected second resource: %v", res[1])
	}
}

func TestEntryResources_NoEntries(t *testing.T) {
	if res := EntryResources(map[string]interface{}{}); res != nil {
		t.Errorf("expected nil, got %v", res)
	}
}

func TestIdentifierValue(t *testing.T) {
	res := decode(t, `{"identifier":[
		{"system":"http://payer.example/auth","value":"ADV-1"},
		{"system":"http://other","value":"X-9"}
	]}`)
	if got := IdentifierValue(res, "http://other"); got != "X-9" {
		t.Errorf("got %q", got)
	}
	if got := IdentifierValue(res, ""); got != "ADV-1" {
		t.Errorf("any-system lookup got %q", got)
	}
	if got := IdentifierValue(res, "http://missing"); got != "" {
		t.Errorf("expected empty for unknown system, got %q", got)
	}
}

func TestExtensionCode(t *testing.T) {
	res := decode(t, `{"extension":[
		{"url":"http://exchange.example/adjudication-outcome","valueCode":"approved"},
		{"url":"http://exchange.example/auth-type",
		 "valueCodeableConcept":{"coding":[{"code":"advanced-authorization"}]}}
	]}`)
	if got := ExtensionCode(res, "http://exchange.example/adjudication-outcome"); got != "approved" {
		t.Errorf("valueCode form: got %q", got)
	}
	if got := ExtensionCode(res, "http://exchange.example/auth-type"); got != "advanced-authorization" {
		t.Errorf("codeableConcept form: got %q", got)
	}
	if got := ExtensionCode(res, "http://nope"); got != "" {
		t.Errorf("expected empty, got %q", got)
	}
}

func TestReferenceID(t *testing.T) {
	tests := []struct {
		ref  string
		want string
	}{
		{"Claim/abc-123", "abc-123"},
		{"urn:uuid:0d1c3e", "0d1c3e"},
		{"plain-id", "plain-id"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := ReferenceID(tt.ref); got != tt.want {
			t.Errorf("ReferenceID(%q) = %q, want %q", tt.ref, got, tt.want)
		}
	}
}

func TestResponseIdentifier(t *testing.T) {
	header := decode(t, `{"resourceType":"MessageHeader","response":{"identifier":"req-42"}}`)
	if got := ResponseIdentifier(header); got != "req-42" {
		t.Errorf("got %q", got)
	}
	if got := ResponseIdentifier(map[string]interface{}{}); got != "" {
		t.Errorf("expected empty, got %q", got)
	}
}

func TestEventCode(t *testing.T) {
	header := decode(t, `{"eventCoding":{"code":"claim-response"}}`)
	if got := EventCode(header); got != "claim-response" {
		t.Errorf("got %q", got)
	}
	header = decode(t, `{"eventUri":"http://exchange.example/events/poll"}`)
	if got := EventCode(header); got != "http://exchange.example/events/poll" {
		t.Errorf("got %q", got)
	}
}

func TestNewMessageBundle(t *testing.T) {
	header := map[string]interface{}{"resourceType": "MessageHeader", "id": "h1"}
	b, err := NewMessageBundle("bundle-1", header)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Type != "message" || b.ID != "bundle-1" {
		t.Errorf("unexpected bundle: %+v", b)
	}
	if len(b.Entry) != 1 || b.Entry[0].FullURL != "urn:uuid:h1" {
		t.Errorf("unexpected entries: %+v", b.Entry)
	}
}
