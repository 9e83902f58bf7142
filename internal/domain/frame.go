package domain

// Viewport is the visible area of a browsing context, in CSS pixels.
type Viewport struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// SizeReport is the footprint the embedded widget asks its host for.
type SizeReport struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	IsOpen bool    `json:"isOpen"`
}

// DisplaySegment is one styled run of rendered message content.
type DisplaySegment struct {
	Kind SegmentKind `json:"kind"`
	Text string      `json:"text"`
}

// Text builds a plain text segment.
func Text(s string) DisplaySegment { return DisplaySegment{Kind: SegmentText, Text: s} }

// Bold builds a bold segment.
func Bold(s string) DisplaySegment { return DisplaySegment{Kind: SegmentBold, Text: s} }

// Link builds a link segment. The URL is kept exactly as matched.
func Link(url string) DisplaySegment { return DisplaySegment{Kind: SegmentLink, Text: url} }
