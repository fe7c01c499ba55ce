package box

import (
	"errors"
	"fmt"
)

var (
	ErrMissingBox    = errors.New("missing box")
	ErrBadBoxExtra   = errors.New("bad box extra")
	ErrFlagsNotZero  = errors.New("flags not zero")
	ErrBadBoxContent = errors.New("bad box content")
)

type MissingBoxError struct {
	Type   BoxType
	Parent BoxType
}

func (e *MissingBoxError) Error() string {
	if e.Parent != (BoxType{}) {
		return fmt.Sprintf("missing box %s in %s", e.Type, e.Parent)
	}
	return fmt.Sprintf("missing box %s", e.Type)
}

func (e *MissingBoxError) Is(target error) bool {
	return target == ErrMissingBox
}

// BadBoxExtraError is returned when a full box is too short to hold its version and flags.
type BadBoxExtraError struct {
	Type BoxType
}

func (e *BadBoxExtraError) Error() string {
	return fmt.Sprintf("box %s: truncated version/flags", e.Type)
}

func (e *BadBoxExtraError) Is(target error) bool {
	return target == ErrBadBoxExtra
}

type FlagsNotZeroError struct {
	Type  BoxType
	Flags uint32
}

func (e *FlagsNotZeroError) Error() string {
	return fmt.Sprintf("box %s: flags %#06x not zero", e.Type, e.Flags)
}

func (e *FlagsNotZeroError) Is(target error) bool {
	return target == ErrFlagsNotZero
}

// BadBoxContentError covers truncated payloads, inconsistent counts and unsupported values.
type BadBoxContentError struct {
	Type   BoxType
	Reason string
	Err    error
}

func (e *BadBoxContentError) Error() string {
	msg := "bad box content"
	if e.Type != (BoxType{}) {
		msg += " " + e.Type.String()
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *BadBoxContentError) Is(target error) bool {
	return target == ErrBadBoxContent
}

func (e *BadBoxContentError) Unwrap() error {
	return e.Err
}

func truncated(t BoxType) error {
	return &BadBoxContentError{Type: t, Reason: "truncated"}
}
