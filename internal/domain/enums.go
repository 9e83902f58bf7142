// Package domain defines the core domain models for the chat widget.
package domain

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// SendState is the lifecycle state of one outgoing message.
type SendState string

const (
	SendStateIdle    SendState = "idle"
	SendStateSending SendState = "sending"
	SendStateSuccess SendState = "success"
	SendStateFailure SendState = "failure"
)

// SegmentKind tags a DisplaySegment variant.
type SegmentKind string

const (
	SegmentText SegmentKind = "text"
	SegmentBold SegmentKind = "bold"
	SegmentLink SegmentKind = "link"
)

// Default theme colors.
const (
	DefaultPrimaryColor = "#0F1B3A"
	DefaultAccentColor  = "#2EC5FF"
	DefaultBackground   = "#FFFFFF"
)

// ModeBare suppresses chrome and background for transparent-host embedding.
const ModeBare = "bare"
