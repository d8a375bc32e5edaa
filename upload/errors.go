package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"syscall"

	"google.golang.org/api/googleapi"
)

// Sentinel errors for upload operations.
var (
	// ErrCredentials indicates client secrets or the stored token are missing
	// or could not be refreshed.
	ErrCredentials = errors.New("invalid upload credentials")
	// ErrUnexpectedResponse indicates the service answered without a video id.
	ErrUnexpectedResponse = errors.New("unexpected upload response")
	// ErrRetryExhausted is matched by every *RetryExhaustedError.
	ErrRetryExhausted = errors.New("upload retries exhausted")
)

// Class is the outcome of classifying a transfer error.
type Class int

const (
	// Fatal errors end the upload immediately.
	Fatal Class = iota
	// Retriable errors are retried with backoff.
	Retriable
)

func (c Class) String() string {
	if c == Retriable {
		return "retriable"
	}
	return "fatal"
}

// retriableStatus are the HTTP statuses retried by the client.
var retriableStatus = map[int]bool{
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// Classify maps a transfer error to Retriable or Fatal. Transport and I/O
// failures and 500/502/503/504 responses are retriable; cancellation and
// every other HTTP status are fatal.
func Classify(err error) Class {
	if err == nil {
		return Fatal
	}

	var rt *RetriableTransferError
	if errors.As(err, &rt) {
		return Retriable
	}
	var ft *FatalTransferError
	if errors.As(err, &ft) {
		return Fatal
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		if retriableStatus[gerr.Code] {
			return Retriable
		}
		return Fatal
	}

	if errors.Is(err, context.Canceled) {
		return Fatal
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return Retriable
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ETIMEDOUT) {
		return Retriable
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return Retriable
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return Retriable
	}
	return Fatal
}

// statusOf returns the HTTP status carried by err, or 0.
func statusOf(err error) int {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code
	}
	return 0
}

// RetriableTransferError is a transfer failure that will be retried.
type RetriableTransferError struct {
	Status int
	Err    error
}

func (e *RetriableTransferError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("retriable HTTP error %d: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("retriable error: %v", e.Err)
}

func (e *RetriableTransferError) Unwrap() error { return e.Err }

// FatalTransferError ends the upload without retry.
type FatalTransferError struct {
	Status int
	Err    error
}

func (e *FatalTransferError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("upload failed with HTTP error %d: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("upload failed: %v", e.Err)
}

func (e *FatalTransferError) Unwrap() error { return e.Err }

// RetryExhaustedError is returned once retriable errors outlast the retry cap.
type RetryExhaustedError struct {
	Retries int
	Last    error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("no longer attempting to retry after %d retries: %v", e.Retries, e.Last)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Last }

func (e *RetryExhaustedError) Is(target error) bool { return target == ErrRetryExhausted }
