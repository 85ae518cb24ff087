package timing

import "errors"

var (
	ErrInvalidRequest     = errors.New("invalid request")
	ErrNotFound           = errors.New("not found")
	ErrBibNotFound        = errors.New("not found in this race")
	ErrAlreadyFinished    = errors.New("has already finished")
	ErrRaceNotStarted     = errors.New("race has not been started yet")
	ErrRaceAlreadyStarted = errors.New("race has already been started")
	ErrBibTaken           = errors.New("bib number is already assigned")
	ErrAlreadyRegistered  = errors.New("participant is already in this race")
)
