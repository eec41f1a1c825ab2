package track

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidAssociation is returned by Start when the session is not tied
	// to exactly one park or trail reference.
	ErrInvalidAssociation = errors.New("track: exactly one association reference required")

	// ErrSessionAlreadyActive is returned by Start and Recover while another
	// session is non-terminal.
	ErrSessionAlreadyActive = errors.New("track: a session is already active")

	// ErrNoActiveSession is returned by control calls when nothing is recording.
	ErrNoActiveSession = errors.New("track: no active session")

	// ErrSampleRejected is the base class for ingestion rejections. Rejections
	// are advisory: the sample is dropped and the session continues.
	ErrSampleRejected = errors.New("track: sample rejected")

	ErrSampleOutOfOrder = fmt.Errorf("%w: captured_at not after last accepted point", ErrSampleRejected)
	ErrSampleInvalid    = fmt.Errorf("%w: coordinates out of range", ErrSampleRejected)
	ErrNotRecording     = fmt.Errorf("%w: session not recording", ErrSampleRejected)

	// ErrUploadFailed wraps transient remote failures. Points stay pending and
	// are retried; this never means data loss.
	ErrUploadFailed = errors.New("track: upload failed")

	// ErrRecoveryCorrupt marks a backup record that failed structural
	// validation. Recovery treats it as if no backup existed.
	ErrRecoveryCorrupt = errors.New("track: backup record corrupt")

	// ErrNoBackup is returned by Recover and Dismiss for an unknown session id.
	ErrNoBackup = errors.New("track: no backup record")
)

// TransitionError reports a state-machine misuse by the caller.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("track: invalid transition %s -> %s", e.From, e.To)
}

// ErrInvalidTransition matches any TransitionError via errors.Is.
var ErrInvalidTransition = errors.New("track: invalid transition")

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}
