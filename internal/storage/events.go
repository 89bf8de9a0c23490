// Package storage persists guard evaluation events for audit.
package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// EventWriter is the interface for writing guard events.
// Write() must NEVER block the caller.
type EventWriter interface {
	Write(event *GuardEvent)
	Close()
}

// GuardEvent represents a single pipeline evaluation to be persisted.
type GuardEvent struct {
	RequestID      string
	Timestamp      time.Time
	Route          string
	Phase          string
	ScopeKey       string
	Target         string
	ToolName       string
	PayloadPreview string // First 500 chars
	PayloadHash    string // SHA256 of full payload
	PayloadSize    uint32
	Decision       string
	IsShadow       bool
	GuardID        string // guard that decided, empty on plain allow
	GuardType      string
	Reason         string
	GuardIDs       []string
	GuardDecisions []string
	GuardLatencies []float32
	GuardTimedOut  []bool
	LatencyMs      float32
}

// PayloadPreviewLength is the max chars stored in payload_preview.
const PayloadPreviewLength = 500

// TruncatePayload returns the first N characters (runes) of a payload for
// preview storage. It never splits a multi-byte UTF-8 character.
func TruncatePayload(payload string, maxLen int) string {
	runes := []rune(payload)
	if len(runes) <= maxLen {
		return payload
	}
	return string(runes[:maxLen])
}

// HashPayload returns the hex-encoded SHA256 of the full payload.
func HashPayload(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
