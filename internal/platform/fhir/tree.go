package fhir

import "strings"

// Helpers for walking FHIR resources decoded as generic JSON trees. The
// exchange envelope is consumed verbatim; nothing here validates structure,
// it only locates fields and returns zero values when they are absent.

// ResourceType returns the resourceType of a decoded resource, or "".
func ResourceType(res map[string]interface{}) string {
	rt, _ := res["resourceType"].(string)
	return rt
}

// EntryResources returns the decoded resource of every entry in a bundle
// tree, skipping entries that carry no resource.
func EntryResources(bundle map[string]interface{}) []map[string]interface{} {
	entries, ok := bundle["entry"].([]interface{})
	if !ok {
		return nil
	}
	var out []map[string]interface{}
	for _, e := range entries {
		entry, ok := e.(map[string]interface{})
		if !ok {
			continue
		}
		if res, ok := entry["resource"].(map[string]interface{}); ok {
			out = append(out, res)
		}
	}
	return out
}

// GetString returns the string value at key, or "".
func GetString(res map[string]interface{}, key string) string {
	s, _ := res[key].(string)
	return s
}

// GetMap returns the object value at key, or nil.
func GetMap(res map[string]interface{}, key string) map[string]interface{} {
	m, _ := res[key].(map[string]interface{})
	return m
}

// GetSlice returns the array value at key, or nil.
func GetSlice(res map[string]interface{}, key string) []interface{} {
	s, _ := res[key].([]interface{})
	return s
}

// GetFloat returns the numeric value at key, or 0.
func GetFloat(res map[string]interface{}, key string) float64 {
	f, _ := res[key].(float64)
	return f
}

// IdentifierValue returns the value of the first identifier whose system
// matches, or the first identifier of any system when system is empty.
func IdentifierValue(res map[string]interface{}, system string) string {
	for _, i := range GetSlice(res, "identifier") {
		ident, ok := i.(map[string]interface{})
		if !ok {
			continue
		}
		if system != "" && GetString(ident, "system") != system {
			continue
		}
		if v := GetString(ident, "value"); v != "" {
			return v
		}
	}
	return ""
}

// ExtensionCode returns the coded value of the extension with the given URL.
// Both valueCode and valueCodeableConcept.coding[0].code shapes are handled.
func ExtensionCode(res map[string]interface{}, url string) string {
	for _, e := range GetSlice(res, "extension") {
		ext, ok := e.(map[string]interface{})
		if !ok || GetString(ext, "url") != url {
			continue
		}
		if code := GetString(ext, "valueCode"); code != "" {
			return code
		}
		if cc := GetMap(ext, "valueCodeableConcept"); cc != nil {
			if code := FirstCodingCode(cc); code != "" {
				return code
			}
		}
	}
	return ""
}

// FirstCodingCode returns coding[0].code of a CodeableConcept tree, or "".
func FirstCodingCode(concept map[string]interface{}) string {
	for _, c := range GetSlice(concept, "coding") {
		coding, ok := c.(map[string]interface{})
		if !ok {
			continue
		}
		if code := GetString(coding, "code"); code != "" {
			return code
		}
	}
	return ""
}

// ReferenceID extracts the bare id from a reference string, stripping a
// "ResourceType/" prefix or a "urn:uuid:" scheme.
func ReferenceID(ref string) string {
	if ref == "" {
		return ""
	}
	if strings.HasPrefix(ref, "urn:uuid:") {
		return strings.TrimPrefix(ref, "urn:uuid:")
	}
	if i := strings.LastIndex(ref, "/"); i >= 0 {
		return ref[i+1:]
	}
	return ref
}

// ResponseIdentifier returns the identifier a MessageHeader claims to
// answer, or "" for an unsolicited message. This is the sole solicited /
// unsolicited signal.
func ResponseIdentifier(header map[string]interface{}) string {
	resp := GetMap(header, "response")
	if resp == nil {
		return ""
	}
	return GetString(resp, "identifier")
}

// EventCode obtains the event code from a MessageHeader. It checks
// eventCoding.code first, then falls back to eventUri.
func EventCode(header map[string]interface{}) string {
	if ec := GetMap(header, "eventCoding"); ec != nil {
		if code := GetString(ec, "code"); code != "" {
			return code
		}
	}
	return GetString(header, "eventUri")
}
