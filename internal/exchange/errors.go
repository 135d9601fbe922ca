package exchange

import (
	"context"
	"errors"
	"strings"

	"bp-hedge-bot/internal/bpx/rest"
)

type ErrorKind string

const (
	KindNetwork   ErrorKind = "network"
	KindRejected  ErrorKind = "rejected"
	KindNotFound  ErrorKind = "not_found"
	KindMalformed ErrorKind = "malformed"
)

// Error is the normalized failure every adapter operation reports.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	return string(e.Kind) + ": " + e.Message
}

func normalizeError(err error) error {
	if err == nil {
		return nil
	}
	var exErr *Error
	if errors.As(err, &exErr) {
		return exErr
	}
	var apiErr *rest.APIError
	if errors.As(err, &apiErr) {
		kind := KindRejected
		if apiErr.Status == 404 || strings.Contains(apiErr.Code, "NOT_FOUND") {
			kind = KindNotFound
		}
		return &Error{Kind: kind, Message: apiErr.Error()}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &Error{Kind: KindNetwork, Message: err.Error()}
}

func IsNotFound(err error) bool {
	var exErr *Error
	return errors.As(err, &exErr) && exErr.Kind == KindNotFound
}
