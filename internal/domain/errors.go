package domain

import "errors"

var (
	// ErrSessionNotFound is returned when no live quiz session exists for a user and subject.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrSubjectNotFound indicates the subject is unknown to the question source.
	ErrSubjectNotFound = errors.New("subject not found")
	// ErrEmptyQuestionSet is returned when a subject has no questions.
	ErrEmptyQuestionSet = errors.New("subject has no questions")
	// ErrQuestionNotFound indicates a question ID is not part of the attempt.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrOptionNotFound indicates a submitted option ID is invalid.
	ErrOptionNotFound = errors.New("option not found")
	// ErrInvalidTransition is returned when an operation is not allowed in the current state.
	ErrInvalidTransition = errors.New("invalid session transition")
	// ErrAlreadyAnswered is returned when a question already has a recorded answer.
	ErrAlreadyAnswered = errors.New("question already answered")
	// ErrCheckpointNotFound is returned when there is nothing to restore.
	ErrCheckpointNotFound = errors.New("checkpoint not found")
	// ErrCorruptAttempt means the attempt state broke its invariants and was discarded.
	ErrCorruptAttempt = errors.New("attempt state corrupted")
	// ErrDeliveryUnreachable means the attempt sink could not be reached.
	ErrDeliveryUnreachable = errors.New("attempt sink unreachable")
	// ErrDeliveryRejected means the attempt sink refused the payload.
	ErrDeliveryRejected = errors.New("attempt rejected")
)
