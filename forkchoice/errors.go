package forkchoice

import "errors"

var (
	ErrUnknownBlock     = errors.New("block not in store")
	ErrUnknownJustified = errors.New("justified block not in store")
)
