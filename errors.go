package main

import (
	"errors"
	"fmt"
)

var (
	ErrMalformed    = errors.New("malformed message body")
	ErrMissingField = errors.New("missing required field")
)

// returned by DecodeContact, Kind is one of ErrMalformed or ErrMissingField
type DecodeError struct {
	Kind  error
	Field string
	Err   error
}

func (e *DecodeError) Error() string {
	switch {
	case e.Field != "":
		return fmt.Sprintf("%v: %s", e.Kind, e.Field)
	case e.Err != nil:
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	default:
		return e.Kind.Error()
	}
}

func (e *DecodeError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// wraps a failure from one of the capability calls with the stage it happened in
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// stage reported for err, StageNone when err carries no stage
func stageOf(err error) Stage {
	var de *DecodeError
	if errors.As(err, &de) {
		return StageDecode
	}
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return StageNone
}
