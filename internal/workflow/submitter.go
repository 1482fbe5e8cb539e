package workflow

import (
	"context"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// RecordCreator is the remote record creation service.
type RecordCreator interface {
	CreateRecord(ctx context.Context, record Record) (string, error)
}

// Submitter posts finished records, one at a time. A call made while another
// is outstanding fails with ErrAlreadyInFlight instead of queueing.
type Submitter struct {
	creator  RecordCreator
	busy     func(bool)
	inFlight atomic.Bool
}

// NewSubmitter returns a Submitter that toggles busy around each remote call.
// busy may be nil.
func NewSubmitter(creator RecordCreator, busy func(bool)) *Submitter {
	return &Submitter{creator: creator, busy: busy}
}

// Submit creates the record and returns its remote id. Failures come back as a
// *SubmissionError wrapping the service's error unchanged.
func (s *Submitter) Submit(ctx context.Context, record Record) (string, error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		count(ctx, submissionCounter, attribute.String("outcome", "rejected"))
		return "", ErrAlreadyInFlight
	}
	defer s.inFlight.Store(false)

	s.setBusy(true)
	defer s.setBusy(false)

	ctx, span := tracer.Start(ctx, "workflow.Submit")
	defer span.End()

	id, err := s.creator.CreateRecord(ctx, record)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		count(ctx, submissionCounter, attribute.String("outcome", "failed"))
		return "", &SubmissionError{Err: err}
	}

	span.SetAttributes(attribute.String("record.id", id))
	count(ctx, submissionCounter, attribute.String("outcome", "created"))
	return id, nil
}

// InFlight reports whether a submission is outstanding.
func (s *Submitter) InFlight() bool {
	return s.inFlight.Load()
}

func (s *Submitter) setBusy(busy bool) {
	if s.busy != nil {
		s.busy(busy)
	}
}
