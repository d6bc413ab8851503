// Package services defines the business logic for rooms, turns, characters,
// and operator settings. This file centralizes common service-level error
// values so that they can be consistently returned by service methods and
// checked by callers.
//
// These errors are intended for internal use by the service layer and translation
// into user-facing messages or HTTP status codes should be performed at the
// handler/controller layer.
package services

import "errors"

// Room- and turn-related errors.
var (
	// ErrRoomNotFound indicates that the requested room does not exist, has
	// been deleted, or is not accessible to the current user.
	ErrRoomNotFound = errors.New("room not found")

	// ErrEmptyContent is returned when a turn request contains an empty message.
	ErrEmptyContent = errors.New("message is empty")

	// ErrTooLong is returned when a turn request exceeds the maximum
	// configured length limit.
	ErrTooLong = errors.New("message too long")

	// ErrStateConflict is returned when a concurrent turn advanced the room
	// between this turn's read and its final write. The losing turn is
	// discarded rather than clobbering the winner.
	ErrStateConflict = errors.New("room state changed concurrently")

	// ErrEmptyName is returned when a room is created without a character name.
	ErrEmptyName = errors.New("character name is empty")

	// ErrInvalidGender is returned when a gender outside the supported set
	// is supplied.
	ErrInvalidGender = errors.New("gender must be male or female")

	// ErrInvalidCharacterConfig is returned when an operator submits a
	// character config that fails validation.
	ErrInvalidCharacterConfig = errors.New("invalid character config")

	// ErrCharacterNotFound indicates that no character config exists for the
	// requested type.
	ErrCharacterNotFound = errors.New("character not found")

	// ErrInvalidBonusConfig is returned when the operator settings fail
	// validation (empty model name, or a coefficient outside [0,10]).
	ErrInvalidBonusConfig = errors.New("invalid bonus config")
)
