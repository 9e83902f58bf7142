// Package render converts raw message text into typed display segments.
//
// Two syntaxes are recognised: bare http(s) URLs and **bold** spans.
// URLs are split out first so a bold marker can never straddle a link.
// Everything else is plain text; no HTML is ever produced here.
package render

import (
	"regexp"
	"strings"

	"github.com/xiaot623/gogo/widget/internal/domain"
)

// A URL runs until any Unicode space, not just ASCII whitespace. Bold
// content stops at line terminators, including CR and U+2028/U+2029.
var (
	urlPattern  = regexp.MustCompile(`https?://[^\s\v\p{Z}\x{FEFF}]+`)
	boldPattern = regexp.MustCompile(`\*\*([^\n\r\x{2028}\x{2029}]+?)\*\*`)
)

const boldMarker = "**"

// Segments is an ordered rendering of one message.
type Segments []domain.DisplaySegment

// Render splits text into display segments. It never returns an empty slice.
func Render(text string) Segments {
	if text == "" {
		return Segments{domain.Text("")}
	}

	var out Segments
	last := 0
	for _, loc := range urlPattern.FindAllStringIndex(text, -1) {
		out = appendBold(out, text[last:loc[0]])
		out = append(out, domain.Link(text[loc[0]:loc[1]]))
		last = loc[1]
	}
	out = appendBold(out, text[last:])

	if len(out) == 0 {
		return Segments{domain.Text(text)}
	}
	return out
}

// appendBold matches bold pairs left to right inside a fragment that contains no URL.
func appendBold(out Segments, fragment string) Segments {
	if fragment == "" {
		return out
	}
	last := 0
	for _, m := range boldPattern.FindAllStringSubmatchIndex(fragment, -1) {
		if m[0] > last {
			out = append(out, domain.Text(fragment[last:m[0]]))
		}
		out = append(out, domain.Bold(fragment[m[2]:m[3]]))
		last = m[1]
	}
	if last < len(fragment) {
		out = append(out, domain.Text(fragment[last:]))
	}
	return out
}

// PlainText joins the visible text of every segment, dropping styling.
func (s Segments) PlainText() string {
	var b strings.Builder
	for _, seg := range s {
		b.WriteString(seg.Text)
	}
	return b.String()
}

// Source rebuilds the raw text the segments were rendered from.
func (s Segments) Source() string {
	var b strings.Builder
	for _, seg := range s {
		if seg.Kind == domain.SegmentBold {
			b.WriteString(boldMarker)
			b.WriteString(seg.Text)
			b.WriteString(boldMarker)
			continue
		}
		b.WriteString(seg.Text)
	}
	return b.String()
}

// Count returns how many segments of the given kind are present.
func (s Segments) Count(kind domain.SegmentKind) int {
	n := 0
	for _, seg := range s {
		if seg.Kind == kind {
			n++
		}
	}
	return n
}
