package domain

import "errors"

var (
	// ErrNotFound is returned when a target, rule or instance does not exist.
	ErrNotFound = errors.New("not found")

	// ErrCheckInFlight is returned by manual triggers while a probe for the
	// same target is already running.
	ErrCheckInFlight = errors.New("a check for this target is already in flight")

	// ErrTargetDisabled is returned by manual triggers against disabled targets.
	ErrTargetDisabled = errors.New("target is disabled")

	// ErrUnknownTargetKind is returned when no probe strategy exists for a
	// target's kind.
	ErrUnknownTargetKind = errors.New("unknown target kind")

	// ErrInstanceNotOpen is returned when acknowledging a rule with no open
	// alert instance.
	ErrInstanceNotOpen = errors.New("no open alert instance for rule")
)
