package storage

import "time"

// EventWriter is the interface for exporting visibility events.
// Write() must NEVER block the caller.
type EventWriter interface {
	Write(event *VisibilityEvent)
	Close()
}

// VisibilityEvent records one answered visibility query.
type VisibilityEvent struct {
	EventID       string
	Timestamp     time.Time
	CallerUID     int
	CallerPackage string
	TargetUID     int
	TargetPackage string
	UserID        int
	Filtered      bool
	Verdict       string // "BLOCKED" or "VISIBLE"
	Source        string // "api" or "internal"
	LatencyMs     float32
}
