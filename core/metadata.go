package core

import (
	"encoding/json"
	"math"
)

// Well-known metadata kinds on message parts. Unknown kinds are ignored by the
// client engine so new kinds can be introduced server side.
const (
	MetadataKindCitation   = "citation"
	MetadataKindTrajectory = "trajectory"
)

// Citation is the decoded payload of citation metadata. StartIndex/EndIndex
// are byte offsets into the open message's raw content; nil when unknown.
type Citation struct {
	URL         string `json:"url"`
	StartIndex  *int   `json:"start_index,omitempty"`
	EndIndex    *int   `json:"end_index,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
}

// Metadata encodes the citation as part metadata.
func (c Citation) Metadata() map[string]any {
	md := map[string]any{"kind": MetadataKindCitation, "url": c.URL}
	if c.StartIndex != nil {
		md["start_index"] = *c.StartIndex
	}
	if c.EndIndex != nil {
		md["end_index"] = *c.EndIndex
	}
	if c.Title != "" {
		md["title"] = c.Title
	}
	if c.Description != "" {
		md["description"] = c.Description
	}
	return md
}

// SourceReference is a numbered citation attached to an agent message.
type SourceReference struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	Number      int    `json:"number"`
	StartIndex  *int   `json:"start_index,omitempty"`
	EndIndex    *int   `json:"end_index,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
}

// TrajectoryEntry is an opaque record of one reasoning or tool step. Fields
// holds everything except the identity (ID) and discriminator (Kind).
type TrajectoryEntry struct {
	ID     string         `json:"id"`
	Kind   string         `json:"kind"`
	Fields map[string]any `json:"fields,omitempty"`
}

// ParseCitation decodes citation metadata permissively. Malformed index
// fields are dropped (left nil); ok is false only when the URL is missing.
func ParseCitation(md map[string]any) (Citation, bool) {
	url := getString(md, "url")
	if url == "" {
		return Citation{}, false
	}
	return Citation{
		URL:         url,
		StartIndex:  getIndex(md, "start_index"),
		EndIndex:    getIndex(md, "end_index"),
		Title:       getString(md, "title"),
		Description: getString(md, "description"),
	}, true
}

// getString extracts a string value, returning "" for absent or non-string.
func getString(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

// getIndex extracts a non-negative integral offset. JSON numbers decode as
// float64; json.Number and native ints are accepted too.
func getIndex(m map[string]any, key string) *int {
	if m == nil {
		return nil
	}
	var f float64
	switch v := m[key].(type) {
	case float64:
		f = v
	case int:
		f = float64(v)
	case int32:
		f = float64(v)
	case int64:
		f = float64(v)
	case json.Number:
		n, err := v.Float64()
		if err != nil {
			return nil
		}
		f = n
	default:
		return nil
	}
	if f < 0 || f != math.Trunc(f) || f > math.MaxInt32 {
		return nil
	}
	i := int(f)
	return &i
}

// IntPtr returns a pointer to i.
func IntPtr(i int) *int { return &i }
