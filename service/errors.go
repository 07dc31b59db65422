package service

import (
	"errors"
	"fmt"
)

var (
	ErrOpenFailure     = errors.New("video could not be opened")
	ErrAnalysisFailure = errors.New("video analysis failed")
	ErrStoreUpload     = errors.New("upload could not be stored")
)

type FailureKind int

const (
	// OpenFailure means the input could not be opened or decoded as a video.
	OpenFailure FailureKind = iota + 1
	// AnalysisFailure covers everything that fails once the video is open:
	// inference, annotation, encoding and disk writes.
	AnalysisFailure
)

func (k FailureKind) sentinel() error {
	if k == OpenFailure {
		return ErrOpenFailure
	}
	return ErrAnalysisFailure
}

func (k FailureKind) String() string {
	switch k {
	case OpenFailure:
		return "open_failure"
	case AnalysisFailure:
		return "analysis_failure"
	default:
		return "unknown"
	}
}

// AnalysisError is returned by Analyzer.Analyze. The cause is kept for
// server-side logging and must not be sent to clients.
type AnalysisError struct {
	Kind FailureKind
	Path string
	Err  error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Kind.sentinel(), e.Path, e.Err)
}

func (e *AnalysisError) Unwrap() error {
	return e.Err
}

func (e *AnalysisError) Is(target error) bool {
	return target == e.Kind.sentinel()
}

func openFailure(path string, err error) error {
	return &AnalysisError{Kind: OpenFailure, Path: path, Err: err}
}

func analysisFailure(path string, err error) error {
	return &AnalysisError{Kind: AnalysisFailure, Path: path, Err: err}
}

// KindOf returns the failure kind carried by err, or 0 if err is not an
// analysis error.
func KindOf(err error) FailureKind {
	var aerr *AnalysisError
	if errors.As(err, &aerr) {
		return aerr.Kind
	}
	return 0
}
