package model

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a record does not exist
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when an insert hits a uniqueness constraint
	ErrConflict = errors.New("already exists")

	// ErrNoLinkAvailable is returned when a claim finds nothing in the expected state
	ErrNoLinkAvailable = errors.New("no link available to claim")

	// ErrInvalidTransition is returned when a status change is not allowed from the current status
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrInvalidAction is returned for an unknown bulk action
	ErrInvalidAction = errors.New("invalid action")

	// ErrMergeInProgress is returned when another merge run holds the job lock
	ErrMergeInProgress = errors.New("merge already in progress")
)

// FetchError is a network, timeout or non-2xx failure for one link
type FetchError struct {
	LinkID string
	URL    string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Rejection reasons stamped into link metadata
const (
	ReasonContentTooShort  = "content_too_short"
	ReasonBlockedDomain    = "blocked_domain"
	ReasonRobotsDisallowed = "robots_disallowed"
)

// QualityRejection means the page was reachable but not worth extracting
type QualityRejection struct {
	LinkID    string
	Reason    string
	WordCount int
	Length    int
}

func (e *QualityRejection) Error() string {
	if e.Reason == ReasonContentTooShort {
		return fmt.Sprintf("rejected: %s (%d characters, %d words)", e.Reason, e.Length, e.WordCount)
	}
	return "rejected: " + e.Reason
}

// MergeCommitError means the keeper update failed and the group's deletes were skipped
type MergeCommitError struct {
	KeeperID string
	Err      error
}

func (e *MergeCommitError) Error() string {
	return fmt.Sprintf("merge commit for keeper %s: %v", e.KeeperID, e.Err)
}

func (e *MergeCommitError) Unwrap() error { return e.Err }

// MergeDeleteError means one duplicate could not be removed
type MergeDeleteError struct {
	KeeperID    string
	DuplicateID string
	Err         error
}

func (e *MergeDeleteError) Error() string {
	return fmt.Sprintf("delete duplicate %s (keeper %s): %v", e.DuplicateID, e.KeeperID, e.Err)
}

func (e *MergeDeleteError) Unwrap() error { return e.Err }
