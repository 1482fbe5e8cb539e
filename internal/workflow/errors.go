package workflow

import (
	"errors"
	"fmt"
)

var (
	ErrNoLocationAvailable = errors.New("no location fix available")
	ErrEmptyResult         = errors.New("lookup returned no result")
	ErrAlreadyInFlight     = errors.New("submission already in flight")
	ErrSessionInvalidated  = errors.New("session invalidated")
	ErrUnknownField        = errors.New("unknown form field")
	ErrNotReady            = errors.New("required fields are missing")
	ErrWrongState          = errors.New("not permitted in the current workflow state")
	ErrTornDown            = errors.New("workflow torn down")
	ErrAlreadyStarted      = errors.New("workflow already started")
)

type Lookup string

const (
	LookupRegion  Lookup = "region"
	LookupAddress Lookup = "address"
)

// LookupError reports that one of the two resolution lookups failed.
type LookupError struct {
	Which Lookup
	Err   error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("%s lookup failed: %v", e.Which, e.Err)
}

func (e *LookupError) Unwrap() error { return e.Err }

// ResolutionError reports that both lookups failed.
type ResolutionError struct {
	Region  error
	Address error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolution failed: %v; %v", e.Region, e.Address)
}

func (e *ResolutionError) Unwrap() []error { return []error{e.Region, e.Address} }

// SubmissionError carries the creation service's failure reason untouched.
type SubmissionError struct {
	Err error
}

func (e *SubmissionError) Error() string { return e.Err.Error() }

func (e *SubmissionError) Unwrap() error { return e.Err }
