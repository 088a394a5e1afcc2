package types

import (
	"errors"
	"fmt"
)

// Failure taxonomy of a crop request. Every stage failure is terminal.
var (
	ErrImageLoad            = errors.New("image could not be decoded")
	ErrNoFaceFound          = errors.New("no face found")
	ErrInvalidDetection     = errors.New("invalid detection result")
	ErrRenderTarget         = errors.New("render target unavailable")
	ErrBackgroundRemoval    = errors.New("background removal failed")
	ErrInvalidConfiguration = errors.New("invalid composition config")
)

// Pipeline stage names used in StageError.
const (
	StageLoad       = "load"
	StageAnalyze    = "analyze"
	StageDetect     = "detect"
	StageCompose    = "compose"
	StageCrop       = "crop"
	StageBackground = "background"
	StageResize     = "resize"
	StageEncode     = "encode"
)

// StageError carries the stage that aborted a crop request along with its cause.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// StageOf returns the failing stage of err, or "" when err carries none.
func StageOf(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
