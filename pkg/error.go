package pkg

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrNotFile      = errors.New("not a regular file")
	ErrOutsideRoot  = errors.New("path outside root")
	ErrDisabled     = errors.New("disabled")
	ErrTrackMissing = errors.New("track not found")
	ErrBadQuery     = errors.New("bad query")
	ErrStopFromAPI  = errors.New("stop from api")
)
