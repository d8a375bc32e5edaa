package shortmaker

import (
	"shortmaker/retry"
	"shortmaker/storage"
	"shortmaker/upload"
	"shortmaker/video"
)

// Type aliases for convenient error handling.
type (
	// MissingSourceError names an absent input file.
	MissingSourceError = video.MissingSourceError
	// PreconditionError reports inputs that cannot be composed.
	PreconditionError = video.PreconditionError
	// EncodingError carries the encoder's diagnostic output.
	EncodingError = video.EncodingError
	// RetriableTransferError is an upload failure worth retrying.
	RetriableTransferError = upload.RetriableTransferError
	// FatalTransferError is an upload failure that ends the upload.
	FatalTransferError = upload.FatalTransferError
	// RetryExhaustedError is returned once upload retries run out.
	RetryExhaustedError = upload.RetryExhaustedError
	// ExhaustedError is the generic retry helper's exhaustion error.
	ExhaustedError = retry.ExhaustedError
	// StorageError wraps errors during ledger operations.
	StorageError = storage.StorageError
)

// Sentinel errors exported from sub-packages.
var (
	ErrMissingSource = video.ErrMissingSource
	ErrPrecondition  = video.ErrPrecondition
	ErrEncoding      = video.ErrEncoding

	ErrCredentials        = upload.ErrCredentials
	ErrUnexpectedResponse = upload.ErrUnexpectedResponse
	ErrRetryExhausted     = upload.ErrRetryExhausted

	// Storage errors
	ErrNotFound       = storage.ErrNotFound
	ErrAlreadyExists  = storage.ErrAlreadyExists
	ErrInvalidInput   = storage.ErrInvalidInput
	ErrStorageCorrupt = storage.ErrStorageCorrupt
	ErrLockTimeout    = storage.ErrLockTimeout
)

// IsRetriable reports whether an upload error would be retried.
func IsRetriable(err error) bool {
	return upload.Classify(err) == upload.Retriable
}
