package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrRoomNotFound is returned when a room code does not resolve.
	ErrRoomNotFound = errors.New("room not found")
	// ErrInvalidQuestionSet indicates an upload produced zero valid questions.
	ErrInvalidQuestionSet = errors.New("no valid questions")
	// ErrUnauthorizedAction is returned when a non-host invokes a host-only transition.
	ErrUnauthorizedAction = errors.New("only the host can do that")
	// ErrInvalidTransition is returned when an action does not fit the room status.
	ErrInvalidTransition = errors.New("invalid room transition")

	// ErrParticipantNotFound is returned when a user tries to act before joining.
	ErrParticipantNotFound = errors.New("participant not found in room")
	// ErrRoomExists is returned when a generated room code is already taken.
	ErrRoomExists = errors.New("room already exists")
	// ErrQuestionSetNotFound indicates a stored question set could not be loaded.
	ErrQuestionSetNotFound = errors.New("question set not found")

	// ErrAlreadyAnswered rejects a second submission for the same question.
	ErrAlreadyAnswered = fmt.Errorf("%w: question already answered", ErrInvalidTransition)
	// ErrQuestionMismatch rejects answers that do not target the current question.
	ErrQuestionMismatch = fmt.Errorf("%w: answer is not for the current question", ErrInvalidTransition)
	// ErrNotEnoughParticipants rejects starting a quiz nobody can play against.
	ErrNotEnoughParticipants = fmt.Errorf("%w: not enough participants", ErrInvalidTransition)
)
