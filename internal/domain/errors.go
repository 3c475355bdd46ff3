package domain

import (
	"errors"
	"fmt"
)

// Kind classifies an error so the transport can map it to a stable status.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindConflict
	KindExpired
	KindInvalidInput
	KindUnavailable
	KindInternal
)

// Error carries a kind alongside the message. Comparisons with errors.Is
// work for the exported sentinels below, and wrapped causes stay reachable
// through Unwrap.
type Error struct {
	kind Kind
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.err }

func (e *Error) Kind() Kind { return e.kind }

// E builds a classified error.
func E(kind Kind, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

// Wrap attaches a cause to a classified error.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{kind: kind, msg: msg, err: err}
}

// Internalf wraps an infrastructure failure as KindInternal.
func Internalf(format string, args ...any) *Error {
	return &Error{kind: KindInternal, msg: fmt.Sprintf(format, args...)}
}

// KindOf extracts the kind from any error in the chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return KindUnknown
}

var (
	// ErrQuizNotFound indicates the quiz id does not exist.
	ErrQuizNotFound = E(KindNotFound, "quiz not found")
	// ErrTalkNotFound indicates the referenced talk is absent from the schedule.
	ErrTalkNotFound = E(KindNotFound, "talk not found")
	// ErrGroupNotFound indicates the group id does not exist.
	ErrGroupNotFound = E(KindNotFound, "group not found")
	// ErrUserNotFound indicates the user record is absent.
	ErrUserNotFound = E(KindNotFound, "user not found")
	// ErrStartTimeNotFound is returned on submission without a prior read.
	ErrStartTimeNotFound = E(KindNotFound, "quiz start time not found")
	// ErrAlreadySubmitted guards the write-once quiz result.
	ErrAlreadySubmitted = E(KindConflict, "quiz already submitted")
	// ErrAlreadyCheckedIn guards the one-time group assignment.
	ErrAlreadyCheckedIn = E(KindConflict, "user already checked in")
	// ErrQuizTimeExpired is returned when the timer ran out (grace included on submit).
	ErrQuizTimeExpired = E(KindExpired, "quiz time expired")
	// ErrInvalidAnswerList is returned when the answer count does not match the question count.
	ErrInvalidAnswerList = E(KindInvalidInput, "invalid answer list")
	// ErrQuizClosed is returned when attendees touch a quiz that is not open.
	ErrQuizClosed = E(KindUnavailable, "quiz is not open")
	// ErrNoGroups is returned when check-in finds no group to assign.
	ErrNoGroups = E(KindUnavailable, "no groups available")
	// ErrScheduleUnavailable is returned when the schedule provider fetch fails.
	ErrScheduleUnavailable = E(KindUnavailable, "schedule unavailable")
)
