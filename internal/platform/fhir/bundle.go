package fhir

import (
	"encoding/json"
	"time"
)

// Bundle represents a FHIR Bundle resource.
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	ID           string        `json:"id,omitempty"`
	Type         string        `json:"type"`
	Total        *int          `json:"total,omitempty"`
	Entry        []BundleEntry `json:"entry,omitempty"`
	Timestamp    *time.Time    `json:"timestamp,omitempty"`
}

type BundleEntry struct {
	FullURL  string          `json:"fullUrl,omitempty"`
	Resource json.RawMessage `json:"resource,omitempty"`
}

// NewMessageBundle creates a message-type Bundle whose first entry is the
// given MessageHeader resource, followed by the remaining resources.
func NewMessageBundle(id string, resources ...interface{}) (*Bundle, error) {
	now := time.Now().UTC()
	b := &Bundle{
		ResourceType: "Bundle",
		ID:           id,
		Type:         "message",
		Timestamp:    &now,
	}
	for _, r := range resources {
		raw, err := json.Marshal(r)
		if err != nil {
			return nil, err
		}
		b.Entry = append(b.Entry, BundleEntry{
			FullURL:  "urn:uuid:" + resourceID(r),
			Resource: raw,
		})
	}
	return b, nil
}

func resourceID(r interface{}) string {
	if m, ok := r.(map[string]interface{}); ok {
		if id, ok := m["id"].(string); ok {
			return id
		}
	}
	raw, err := json.Marshal(r)
	if err != nil {
		return ""
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return ""
	}
	id, _ := m["id"].(string)
	return id
}
