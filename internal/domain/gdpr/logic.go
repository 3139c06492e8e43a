package gdpr

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"time"
)

var erasureTransitions = map[string][]string{
	ErasureStatusPending:    {ErasureStatusInProgress, ErasureStatusRejected, ErasureStatusCancelled, ErasureStatusFailed},
	ErasureStatusInProgress: {ErasureStatusCompleted, ErasureStatusFailed, ErasureStatusInProgress},
	ErasureStatusFailed:     {ErasureStatusInProgress},
}

var exportTransitions = map[string][]string{
	ExportStatusPending:    {ExportStatusInProgress, ExportStatusCancelled, ExportStatusFailed, ExportStatusExpired},
	ExportStatusInProgress: {ExportStatusCompleted, ExportStatusFailed},
	ExportStatusCompleted:  {ExportStatusExpired},
	ExportStatusFailed:     {ExportStatusExpired},
}

var jobTransitions = map[string][]string{
	JobStatusPending: {JobStatusRunning, JobStatusCancelled, JobStatusFailed},
	JobStatusRunning: {JobStatusCompleted, JobStatusFailed},
}

// CanTransitionErasure allows failed → in_progress only through the resume path.
func CanTransitionErasure(from, to string) bool {
	return slices.Contains(erasureTransitions[from], to)
}

func CanTransitionExport(from, to string) bool {
	return slices.Contains(exportTransitions[from], to)
}

func CanTransitionJob(from, to string) bool {
	return slices.Contains(jobTransitions[from], to)
}

// IsTerminalErasure reports states a plain execute call treats as done.
func IsTerminalErasure(status string) bool {
	switch status {
	case ErasureStatusCompleted, ErasureStatusRejected, ErasureStatusCancelled, ErasureStatusFailed:
		return true
	}
	return false
}

func IsTerminalExport(status string) bool {
	switch status {
	case ExportStatusCompleted, ExportStatusFailed, ExportStatusCancelled, ExportStatusExpired:
		return true
	}
	return false
}

func IsTerminalJob(status string) bool {
	switch status {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// MethodBlockedByHolds reports whether an active legal hold in scope rejects
// a request using method. Archival keeps content intact and is not blocked.
func MethodBlockedByHolds(method string) bool {
	return method != MethodArchival
}

// VerificationHash fingerprints a completed erasure. Field order is fixed by
// the struct so the digest is reproducible from the same inputs.
func VerificationHash(requestID, subjectID, method string, processed int, at time.Time) string {
	payload, _ := json.Marshal(struct {
		RequestID        string `json:"requestId"`
		SubjectID        string `json:"subjectId"`
		Method           string `json:"method"`
		ProcessedRecords int    `json:"processedRecords"`
		Timestamp        string `json:"timestamp"`
	}{requestID, subjectID, method, processed, at.UTC().Format(time.RFC3339Nano)})
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// NewPseudonym returns PSEUDO-<unix millis>-<8 hex chars>.
func NewPseudonym(now time.Time, random io.Reader) (string, error) {
	if random == nil {
		random = rand.Reader
	}
	suffix := make([]byte, 4)
	if _, err := io.ReadFull(random, suffix); err != nil {
		return "", fmt.Errorf("pseudonym entropy: %w", err)
	}
	return fmt.Sprintf("PSEUDO-%d-%s", now.UnixMilli(), hex.EncodeToString(suffix)), nil
}

// RetentionCutoff is now minus months, on the calendar.
func RetentionCutoff(now time.Time, months int) time.Time {
	return now.AddDate(0, -months, 0)
}

func normalizeTables(tables []string) []string {
	if tables == nil {
		return []string{}
	}
	return tables
}
