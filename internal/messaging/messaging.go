// Package messaging holds the handler contract shared by the broker consumers.
package messaging

import (
	"context"

	"github.com/pkg/errors"
)

// ErrPermanentFailure marks a message that can never succeed, such as an
// undecodable payload. Consumers acknowledge it after logging instead of
// redelivering it.
var ErrPermanentFailure = errors.New("permanent failure processing message")

// MessageHandler processes one inbound message. A nil error acknowledges it;
// any other error except ErrPermanentFailure leaves it for redelivery.
type MessageHandler func(ctx context.Context, key, value []byte) error

// Permanent wraps err so that errors.Is(err, ErrPermanentFailure) holds.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{cause: err}
}

func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanentFailure)
}

type permanentError struct {
	cause error
}

func (e *permanentError) Error() string {
	return ErrPermanentFailure.Error() + ": " + e.cause.Error()
}

func (e *permanentError) Unwrap() error {
	return e.cause
}

func (e *permanentError) Is(target error) bool {
	return target == ErrPermanentFailure
}
