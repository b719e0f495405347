package model

import "time"

// Source identifies the kind of raw input an action was extracted from.
type Source string

// Recognized input sources.
const (
	SourceText           Source = "text"
	SourceImage          Source = "image"
	SourceSpreadsheetRow Source = "spreadsheet_row"
)

// Valid reports whether s is a recognized source.
func (s Source) Valid() bool {
	switch s {
	case SourceText, SourceImage, SourceSpreadsheetRow:
		return true
	}
	return false
}

// PendingStatus is the review state of a staged action.
type PendingStatus string

// Status values. Pending is the only non-terminal state; the review gate is
// the sole writer of the transition.
const (
	StatusPending  PendingStatus = "pending"
	StatusApproved PendingStatus = "approved"
	StatusRejected PendingStatus = "rejected"
)

// Terminal reports whether the status can no longer change.
func (s PendingStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// PendingAction is a staged, not-yet-committed candidate ledger mutation.
// Action is nil when extraction failed and only the raw text is retained for
// manual completion; such a record can never be approved.
type PendingAction struct {
	CreatedAt  time.Time
	Action     *Action
	Meta       map[string]string
	ID         string
	BatchID    string
	RawText    string
	Signature  string
	Source     Source
	Status     PendingStatus
	Confidence float64
}
