// Package message reconstructs agent messages from streamed parts.
//
// A Message is a value. Every function in this package returns an updated
// copy and leaves its argument untouched, so a renderer can hold on to older
// snapshots while the stream keeps arriving.
package message

import (
	"errors"
	"strings"
	"time"

	"github.com/hupe1980/agentdeck/core"
	"github.com/hupe1980/agentdeck/source"
	"github.com/hupe1980/agentdeck/trajectory"
	"github.com/hupe1980/agentdeck/transform"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// Status is the lifecycle state of a message.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// File is an artifact attached to or produced by a message.
type File struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	ContentType string `json:"content_type,omitempty"`
}

// Message is one conversation turn. For agent messages Content is derived:
// it always equals transform.Apply(RawContent, Transforms).
type Message struct {
	ID         string
	Role       Role
	Parts      core.Parts
	RawContent string
	Transforms []transform.Transform
	Content    string
	Status     Status
	Sources    []core.SourceReference
	Trajectory []core.TrajectoryEntry
	Files      []File
	Error      error
	CreatedAt  time.Time

	// unanchored holds citations that arrived without a start index. They
	// are numbered after every anchored source and render no marker.
	unanchored []core.SourceReference
}

// NewUser creates a completed user message from the submitted parts.
func NewUser(parts ...core.Part) Message {
	m := Message{
		ID:        core.NewID(),
		Role:      RoleUser,
		Parts:     append(core.Parts(nil), parts...),
		Status:    StatusCompleted,
		CreatedAt: time.Now().UTC(),
	}
	for _, p := range parts {
		switch pt := p.(type) {
		case core.TextPart:
			m.RawContent += pt.Text
		case core.FilePart:
			m.Files = append(m.Files, File{Name: pt.File.Name, URL: pt.File.URI, ContentType: pt.File.MimeType})
		}
	}
	m.Content = m.RawContent
	return m
}

// NewAgent opens an empty in-progress agent message.
func NewAgent() Message {
	return Message{
		ID:        core.NewID(),
		Role:      RoleAgent,
		Status:    StatusInProgress,
		CreatedAt: time.Now().UTC(),
	}
}

// IsFinal reports whether the message no longer accepts content.
func (m Message) IsFinal() bool { return m.Status != StatusInProgress }

// AppendText appends a plain text delta to the raw content.
func AppendText(m Message, text string) Message {
	if text == "" {
		return m
	}
	m.RawContent += text
	return render(m)
}

// ApplyPart folds one streamed part into the message. Citation and
// trajectory metadata trigger their own processing; unknown or malformed
// metadata is ignored while any text is still appended.
func ApplyPart(m Message, p core.MessagePart) Message {
	switch p.MetadataKind() {
	case core.MetadataKindTrajectory:
		raw := make(map[string]any, len(p.Metadata)+1)
		for k, v := range p.Metadata {
			raw[k] = v
		}
		if _, ok := raw["content"]; !ok && p.Content != "" {
			raw["content"] = p.Content
		}
		m, _ = AddTrajectory(m, raw)
		return m
	case core.MetadataKindCitation:
		m = AppendText(m, p.Content)
		if c, ok := core.ParseCitation(p.Metadata); ok {
			m, _ = AddCitation(m, c)
		}
		return m
	}

	if p.IsFile() {
		return AddFile(m, fileFromPart(p))
	}
	return AppendText(m, p.Content)
}

// AddCitation registers a citation. A citation anchored at the start index of
// an existing citation transform joins that transform's source group.
// Sources are renumbered in reading order and the returned reference carries
// its final number.
func AddCitation(m Message, c core.Citation) (Message, core.SourceReference) {
	ref := source.NewReference(c)

	ts := cloneTransforms(m.Transforms)
	loose := m.unanchored

	if c.StartIndex == nil {
		loose = make([]core.SourceReference, len(m.unanchored), len(m.unanchored)+1)
		copy(loose, m.unanchored)
		loose = append(loose, ref)
	} else {
		merged := false
		for i, t := range ts {
			ct, ok := t.(*transform.Citation)
			if ok && ct.Start == *c.StartIndex {
				ts[i] = ct.Merge(ref)
				merged = true
				break
			}
		}
		if !merged {
			ts = append(ts, transform.NewCitation(ref))
		}
	}

	m.Sources, m.Transforms = source.Collect(ts, loose)
	m.unanchored = numbered(loose, m.Sources)
	m = render(m)

	for _, s := range m.Sources {
		if s.ID == ref.ID {
			return m, s
		}
	}
	return m, ref
}

// AddFile records a file artifact. Images are additionally rendered inline at
// the current end of the raw content.
func AddFile(m Message, f File) Message {
	files := make([]File, len(m.Files), len(m.Files)+1)
	copy(files, m.Files)
	m.Files = append(files, f)

	if isImage(f.ContentType) {
		m, _ = AddImage(m, f.URL, f.Name)
	}
	return m
}

// AddImage anchors an inline image at len(RawContent). Images never merge.
func AddImage(m Message, url, name string) (Message, *transform.Image) {
	img := transform.NewImage(len(m.RawContent), url, name)
	ts := cloneTransforms(m.Transforms)
	m.Transforms = append(ts, img)
	return render(m), img
}

// AddTrajectory appends a reasoning or tool record.
func AddTrajectory(m Message, raw map[string]any) (Message, core.TrajectoryEntry) {
	var e core.TrajectoryEntry
	m.Trajectory, e = trajectory.Append(m.Trajectory, raw)
	return m, e
}

// Complete marks the message finished. Final messages are left unchanged.
func Complete(m Message) Message {
	if m.IsFinal() {
		return m
	}
	m.Status = StatusCompleted
	return m
}

// Fail marks the message failed. Partial content is kept.
func Fail(m Message, err error) Message {
	if m.Status == StatusFailed || m.Status == StatusCancelled {
		return m
	}
	m.Status = StatusFailed
	m.Error = err
	return m
}

// FailRun marks the message failed by a run error. A server-reported
// *core.RunError is also recorded as an "error" trajectory entry so it shows
// up in the reasoning log.
func FailRun(m Message, err error) Message {
	if m.Status == StatusFailed || m.Status == StatusCancelled {
		return m
	}
	var re *core.RunError
	if errors.As(err, &re) {
		m, _ = AddTrajectory(m, map[string]any{
			"kind":    "error",
			"code":    re.Code,
			"message": re.Message,
		})
	}
	return Fail(m, err)
}

// Cancel marks the message cancelled without surfacing an error. Partial
// content is kept.
func Cancel(m Message) Message {
	if m.Status == StatusFailed || m.Status == StatusCancelled {
		return m
	}
	m.Status = StatusCancelled
	m.Error = nil
	return m
}

// UnanchoredSources returns citations that arrived without a position.
func (m Message) UnanchoredSources() []core.SourceReference {
	return m.unanchored
}

func render(m Message) Message {
	m.Content = transform.Apply(m.RawContent, m.Transforms)
	return m
}

func cloneTransforms(ts []transform.Transform) []transform.Transform {
	out := make([]transform.Transform, len(ts), len(ts)+1)
	copy(out, ts)
	return out
}

// numbered returns loose with the numbers assigned in all.
func numbered(loose, all []core.SourceReference) []core.SourceReference {
	if len(loose) == 0 {
		return loose
	}
	byID := make(map[string]int, len(all))
	for _, s := range all {
		byID[s.ID] = s.Number
	}
	out := make([]core.SourceReference, len(loose))
	for i, s := range loose {
		s.Number = byID[s.ID]
		out[i] = s
	}
	return out
}

func fileFromPart(p core.MessagePart) File {
	name, _ := p.Metadata["name"].(string)
	if name == "" {
		name = p.ContentURL
		if i := strings.LastIndexByte(name, '/'); i >= 0 && i < len(name)-1 {
			name = name[i+1:]
		}
		if i := strings.IndexAny(name, "?#"); i >= 0 {
			name = name[:i]
		}
	}
	return File{Name: name, URL: p.ContentURL, ContentType: p.ContentType}
}

func isImage(contentType string) bool {
	return strings.HasPrefix(contentType, "image/")
}
