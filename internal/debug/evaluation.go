package debug

import (
	"context"
	"sync"
)

// Evaluation is a pending expression evaluation.
type Evaluation struct {
	requestID  string
	expression string

	done  chan struct{}
	once  sync.Once
	value string
	err   error
}

func newEvaluation(requestID, expression string) *Evaluation {
	return &Evaluation{
		requestID:  requestID,
		expression: expression,
		done:       make(chan struct{}),
	}
}

// RequestID returns the backend request id.
func (e *Evaluation) RequestID() string { return e.requestID }

// Expression returns the evaluated expression.
func (e *Evaluation) Expression() string { return e.expression }

// Done is closed when the evaluation completes.
func (e *Evaluation) Done() <-chan struct{} { return e.done }

// Wait blocks until the evaluation completes or ctx is done. Giving up on
// the wait does not cancel the evaluation.
func (e *Evaluation) Wait(ctx context.Context) (string, error) {
	select {
	case <-e.done:
		return e.value, e.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// complete records the outcome once; later calls are ignored.
func (e *Evaluation) complete(value string, err error) {
	e.once.Do(func() {
		e.value = value
		e.err = err
		close(e.done)
	})
}
