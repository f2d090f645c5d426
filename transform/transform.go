// Package transform splices display markup (citation markers, inline images)
// into streamed raw text.
//
// Transforms are anchored at byte offsets of the original raw content. Apply
// folds them in ascending start order; each transform receives the running
// offset, the total length delta introduced by every transform applied
// before it, so its anchor still lands on the intended raw position.
package transform

import (
	"sort"
	"strconv"
	"strings"

	"github.com/hupe1980/agentdeck/core"
)

// Kind discriminates transform implementations.
type Kind string

const (
	KindCitation Kind = "citation"
	KindImage    Kind = "image"
)

// Transform is a text-splicing operation anchored at a raw content offset.
type Transform interface {
	Kind() Kind
	// StartIndex is the raw content offset at creation time.
	StartIndex() int
	// Apply inserts markup into content, shifting the anchor by offset.
	Apply(content string, offset int) string
}

// Apply renders raw through the transforms sorted by start index (stable for
// ties, so creation order breaks them). The transforms slice is not modified.
func Apply(raw string, transforms []Transform) string {
	if len(transforms) == 0 {
		return raw
	}
	sorted := Sorted(transforms)

	content := raw
	offset := 0
	for _, t := range sorted {
		next := t.Apply(content, offset)
		offset += len(next) - len(content)
		content = next
	}
	return content
}

// Sorted returns a copy of transforms in application order.
func Sorted(transforms []Transform) []Transform {
	sorted := make([]Transform, len(transforms))
	copy(sorted, transforms)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StartIndex() < sorted[j].StartIndex()
	})
	return sorted
}

// Citation wraps the cited span [Start, End) in brackets followed by the
// display numbers of every source anchored at Start, e.g. "[blue]^1,2".
// A zero-width span renders the numbers only.
type Citation struct {
	Start   int
	End     int
	Sources []core.SourceReference
}

// NewCitation anchors a citation transform for ref. A missing end index
// yields a zero-width span.
func NewCitation(ref core.SourceReference) *Citation {
	start := *ref.StartIndex
	end := start
	if ref.EndIndex != nil && *ref.EndIndex > start {
		end = *ref.EndIndex
	}
	return &Citation{Start: start, End: end, Sources: []core.SourceReference{ref}}
}

// Kind implements Transform.
func (c *Citation) Kind() Kind { return KindCitation }

// StartIndex implements Transform.
func (c *Citation) StartIndex() int { return c.Start }

// Merge returns a copy with ref added to the source group. The cited span
// grows to cover the longest merged span.
func (c *Citation) Merge(ref core.SourceReference) *Citation {
	out := c.Clone()
	out.Sources = append(out.Sources, ref)
	if ref.EndIndex != nil && *ref.EndIndex > out.End {
		out.End = *ref.EndIndex
	}
	return out
}

// Clone returns a deep copy.
func (c *Citation) Clone() *Citation {
	out := &Citation{Start: c.Start, End: c.End, Sources: make([]core.SourceReference, len(c.Sources))}
	copy(out.Sources, c.Sources)
	return out
}

// Marker returns the superscript marker, e.g. "^1,2".
func (c *Citation) Marker() string {
	nums := make([]int, 0, len(c.Sources))
	for _, s := range c.Sources {
		nums = append(nums, s.Number)
	}
	sort.Ints(nums)

	var b strings.Builder
	b.WriteByte('^')
	for i, n := range nums {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(n))
	}
	return b.String()
}

// Apply implements Transform. The span is clamped to the content so a
// citation that arrives before its text renders at the end.
func (c *Citation) Apply(content string, offset int) string {
	s := clamp(c.Start+offset, len(content))
	e := clamp(c.End+offset, len(content))
	if e <= s {
		return content[:s] + c.Marker() + content[s:]
	}
	return content[:s] + "[" + content[s:e] + "]" + c.Marker() + content[e:]
}

// Image inserts a markdown image reference at Start.
type Image struct {
	Start int
	URL   string
	Name  string
}

// NewImage anchors an image at the given raw offset.
func NewImage(start int, url, name string) *Image {
	return &Image{Start: start, URL: url, Name: name}
}

// Kind implements Transform.
func (i *Image) Kind() Kind { return KindImage }

// StartIndex implements Transform.
func (i *Image) StartIndex() int { return i.Start }

// Markup returns the markdown inserted by the transform.
func (i *Image) Markup() string { return "![" + i.Name + "](" + i.URL + ")" }

// Apply implements Transform.
func (i *Image) Apply(content string, offset int) string {
	s := clamp(i.Start+offset, len(content))
	return content[:s] + i.Markup() + content[s:]
}

func clamp(i, n int) int {
	if i < 0 {
		return 0
	}
	if i > n {
		return n
	}
	return i
}
