package core

import (
	"encoding/json"
	"fmt"
)

// Part represents a polymorphic segment of user input. Concrete part types
// implement the unexported isPart marker enabling a closed set.
type Part interface{ isPart() }

// TextPart is a plain text content segment.
type TextPart struct {
	Text     string         // Plain UTF-8 text
	Metadata map[string]any // Optional producer-provided metadata
}

// isPart implements the Part interface for TextPart.
func (TextPart) isPart() {}

// DataPart is a structured data segment (e.g., JSON object map).
type DataPart struct {
	Data     map[string]any // Structured key/value payload
	Metadata map[string]any
}

// isPart implements the Part interface for DataPart.
func (DataPart) isPart() {}

// FilePart is a file attachment segment referencing stored bytes.
type FilePart struct {
	File     FilePartFile
	Metadata map[string]any
}

// isPart implements the Part interface for FilePart.
func (FilePart) isPart() {}

// FilePartFile describes an attached file.
type FilePartFile struct {
	Name     string // Original filename hint
	MimeType string // Optional MIME type
	URI      string // Retrieval URI
}

// Content holds role + ordered parts.
type Content struct {
	Role  string `json:"role,omitempty"` // Conversation role (user, assistant, system)
	Parts []Part `json:"-"`              // Ordered heterogeneous parts
}

// Text concatenates all text parts.
func (c Content) Text() string {
	var s string
	for _, p := range c.Parts {
		if tp, ok := p.(TextPart); ok {
			s += tp.Text
		}
	}
	return s
}

// wirePart is the JSON form of a Part inside a run request.
type wirePart struct {
	Kind        string         `json:"kind"`
	Content     string         `json:"content,omitempty"`
	ContentType string         `json:"content_type,omitempty"`
	ContentURL  string         `json:"content_url,omitempty"`
	Name        string         `json:"name,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Parts is an ordered list of input parts with a JSON codec.
type Parts []Part

// MarshalJSON implements json.Marshaler.
func (ps Parts) MarshalJSON() ([]byte, error) {
	out := make([]wirePart, 0, len(ps))
	for _, p := range ps {
		switch pt := p.(type) {
		case TextPart:
			out = append(out, wirePart{Kind: "text", Content: pt.Text, ContentType: "text/plain", Metadata: pt.Metadata})
		case FilePart:
			out = append(out, wirePart{Kind: "file", ContentURL: pt.File.URI, ContentType: pt.File.MimeType, Name: pt.File.Name, Metadata: pt.Metadata})
		case DataPart:
			out = append(out, wirePart{Kind: "data", Data: pt.Data, Metadata: pt.Metadata})
		default:
			return nil, fmt.Errorf("unsupported part type %T", p)
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler. Unknown kinds are rejected.
func (ps *Parts) UnmarshalJSON(b []byte) error {
	var in []wirePart
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	out := make(Parts, 0, len(in))
	for _, w := range in {
		switch w.Kind {
		case "text", "":
			out = append(out, TextPart{Text: w.Content, Metadata: w.Metadata})
		case "file":
			out = append(out, FilePart{File: FilePartFile{Name: w.Name, MimeType: w.ContentType, URI: w.ContentURL}, Metadata: w.Metadata})
		case "data":
			out = append(out, DataPart{Data: w.Data, Metadata: w.Metadata})
		default:
			return fmt.Errorf("unknown part kind %q", w.Kind)
		}
	}
	*ps = out
	return nil
}

// RunRequest is the client → server run submission.
type RunRequest struct {
	AgentName string `json:"agent_name"`
	Input     Parts  `json:"input"`
	SessionID string `json:"session_id,omitempty"`
}
