package predict

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// State is the lifecycle position of one submission.
type State string

const (
	StateIdle       State = "idle"
	StateSubmitting State = "submitting"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
)

// ErrAlreadyRun is returned when Run is called on a finished submission.
var ErrAlreadyRun = errors.New("submission already run")

// Submission drives Idle -> Submitting -> {Succeeded, Failed} for a single
// user-triggered submit. It is not reusable: a new submit is a new Submission.
type Submission struct {
	ID string

	file     UploadedFile
	filename string
	size     int
	state    State
	result   *Result
	err      error
	observer func(*Submission)
}

// NewSubmission creates an idle submission that owns file.
func NewSubmission(file UploadedFile) *Submission {
	return &Submission{
		ID:       uuid.NewString(),
		file:     file,
		filename: file.Name,
		size:     file.Size(),
		state:    StateIdle,
	}
}

// OnTransition registers fn to be called synchronously after every state change.
func (s *Submission) OnTransition(fn func(*Submission)) { s.observer = fn }

func (s *Submission) State() State     { return s.state }
func (s *Submission) Result() *Result  { return s.result }
func (s *Submission) Err() error       { return s.err }
func (s *Submission) Filename() string { return s.filename }
func (s *Submission) Size() int        { return s.size }

// Run sends the file through sub exactly once. The file buffer is released
// when the call returns, whatever the outcome.
func (s *Submission) Run(ctx context.Context, sub Submitter) (*Result, error) {
	if s.state != StateIdle {
		return nil, fmt.Errorf("%w: state %s", ErrAlreadyRun, s.state)
	}
	s.transition(StateSubmitting)

	res, err := sub.Submit(ctx, s.file)
	s.file = UploadedFile{Name: s.filename}

	if err != nil {
		s.err = err
		s.transition(StateFailed)
		return nil, err
	}
	s.result = res
	s.transition(StateSucceeded)
	return res, nil
}

func (s *Submission) transition(to State) {
	s.state = to
	if s.observer != nil {
		s.observer(s)
	}
}
