// errors.go: structured error handling for SKMV operations
//
// This file provides structured error types using the go-errors library,
// enabling rich error context, categorization, and standardized error
// codes for construction, observability and trace-loading failures.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0
package skmv

import (
	goerrors "errors"

	"github.com/agilira/go-errors"
)

// Error codes for SKMV operations
const (
	// Configuration errors (1xxx)
	ErrCodeInvalidConfig       errors.ErrorCode = "SKMV_INVALID_CONFIG"
	ErrCodeInvalidWindowSize   errors.ErrorCode = "SKMV_INVALID_WINDOW_SIZE"
	ErrCodeInvalidK            errors.ErrorCode = "SKMV_INVALID_K"
	ErrCodeInvalidM            errors.ErrorCode = "SKMV_INVALID_M"
	ErrCodeInvalidDelta1       errors.ErrorCode = "SKMV_INVALID_DELTA1"
	ErrCodeInvalidDelta2       errors.ErrorCode = "SKMV_INVALID_DELTA2"
	ErrCodeWindowTooLarge      errors.ErrorCode = "SKMV_WINDOW_TOO_LARGE"
	ErrCodeInvalidCleanEvery   errors.ErrorCode = "SKMV_INVALID_CLEAN_EVERY"

	// Operation errors (2xxx)
	ErrCodeBucketOutOfRange errors.ErrorCode = "SKMV_BUCKET_OUT_OF_RANGE"

	// Trace errors (3xxx)
	ErrCodeTraceParse errors.ErrorCode = "SKMV_TRACE_PARSE"
	ErrCodeTraceRead  errors.ErrorCode = "SKMV_TRACE_READ"
)

// Common error messages
const (
	msgInvalidWindowSize = "invalid window size: must be greater than 0"
	msgInvalidK          = "invalid k: must be at least 1 slot per bucket"
	msgInvalidM          = "invalid m: must be at least 1 bucket"
	msgInvalidDelta1     = "invalid delta1: hash width must be between 1 and 64 bits"
	msgInvalidDelta2     = "invalid delta2: timestamp width must be between 1 and 63 bits"
	msgWindowTooLarge    = "window does not fit the timestamp range"
	msgInvalidCleanEvery = "invalid cleaning interval: must not exceed the window size"
	msgBucketOutOfRange  = "bucket index out of range"
	msgTraceParse        = "malformed trace record"
	msgTraceRead         = "failed to read trace"
)

// =============================================================================
// CONFIGURATION ERRORS
// =============================================================================

// NewErrInvalidWindowSize creates an error for an invalid window size
func NewErrInvalidWindowSize(size uint64) error {
	return errors.NewWithContext(ErrCodeInvalidWindowSize, msgInvalidWindowSize, map[string]interface{}{
		"provided_window_size": size,
		"minimum_required":     1,
	})
}

// NewErrInvalidK creates an error for an invalid slot count
func NewErrInvalidK(k int) error {
	return errors.NewWithContext(ErrCodeInvalidK, msgInvalidK, map[string]interface{}{
		"provided_k":       k,
		"minimum_required": 1,
	})
}

// NewErrInvalidM creates an error for an invalid bucket count
func NewErrInvalidM(m int) error {
	return errors.NewWithContext(ErrCodeInvalidM, msgInvalidM, map[string]interface{}{
		"provided_m":       m,
		"minimum_required": 1,
	})
}

// NewErrInvalidDelta1 creates an error for an invalid hash width
func NewErrInvalidDelta1(bits int) error {
	return errors.NewWithContext(ErrCodeInvalidDelta1, msgInvalidDelta1, map[string]interface{}{
		"provided_bits": bits,
		"valid_range":   "1-64",
	})
}

// NewErrInvalidDelta2 creates an error for an invalid timestamp width
func NewErrInvalidDelta2(bits int) error {
	return errors.NewWithContext(ErrCodeInvalidDelta2, msgInvalidDelta2, map[string]interface{}{
		"provided_bits": bits,
		"valid_range":   "1-63",
	})
}

// NewErrWindowTooLarge creates an error when the window exceeds half the
// timestamp range: the adjusted timestamp needs 2N values plus a sentinel
func NewErrWindowTooLarge(size uint64, delta2 int) error {
	return errors.NewWithContext(ErrCodeWindowTooLarge, msgWindowTooLarge, map[string]interface{}{
		"provided_window_size": size,
		"delta2":               delta2,
		"max_window_size":      ((uint64(1) << uint(delta2)) - 1) / 2,
	})
}

// NewErrInvalidCleanEvery creates an error for a cleaning interval that
// would let slots alias before they are swept
func NewErrInvalidCleanEvery(interval, window uint64) error {
	return errors.NewWithContext(ErrCodeInvalidCleanEvery, msgInvalidCleanEvery, map[string]interface{}{
		"provided_interval": interval,
		"window_size":       window,
	})
}

// =============================================================================
// OPERATION ERRORS
// =============================================================================

// NewErrBucketOutOfRange creates an error for an invalid bucket index
func NewErrBucketOutOfRange(index, m int) error {
	return errors.NewWithContext(ErrCodeBucketOutOfRange, msgBucketOutOfRange, map[string]interface{}{
		"provided_index": index,
		"valid_range":    m - 1,
	})
}

// =============================================================================
// TRACE ERRORS
// =============================================================================

// NewErrTraceParse creates an error for a malformed trace line
func NewErrTraceParse(line int, field string, cause error) error {
	return errors.Wrap(cause, ErrCodeTraceParse, msgTraceParse).
		WithContext("line", line).
		WithContext("field", field)
}

// NewErrTraceRead creates an error when reading the trace stream fails
func NewErrTraceRead(cause error) error {
	return errors.Wrap(cause, ErrCodeTraceRead, msgTraceRead).AsRetryable()
}

// =============================================================================
// ERROR CHECKING HELPERS
// =============================================================================

// IsConfigError checks if error is a configuration error
func IsConfigError(err error) bool {
	if err == nil {
		return false
	}
	var coder errors.ErrorCoder
	if goerrors.As(err, &coder) {
		switch coder.ErrorCode() {
		case ErrCodeInvalidConfig, ErrCodeInvalidWindowSize, ErrCodeInvalidK,
			ErrCodeInvalidM, ErrCodeInvalidDelta1, ErrCodeInvalidDelta2,
			ErrCodeWindowTooLarge, ErrCodeInvalidCleanEvery:
			return true
		}
	}
	return false
}

// IsOutOfRange checks if error is a bucket index error
func IsOutOfRange(err error) bool {
	return errors.HasCode(err, ErrCodeBucketOutOfRange)
}

// IsTraceError checks if error arose from trace loading
func IsTraceError(err error) bool {
	return errors.HasCode(err, ErrCodeTraceParse) || errors.HasCode(err, ErrCodeTraceRead)
}

// IsRetryable checks if the error can be retried
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var retryable errors.Retryable
	if goerrors.As(err, &retryable) {
		return retryable.IsRetryable()
	}
	return false
}

// GetErrorCode extracts the error code from an error
func GetErrorCode(err error) errors.ErrorCode {
	if err == nil {
		return ""
	}
	var coder errors.ErrorCoder
	if goerrors.As(err, &coder) {
		return coder.ErrorCode()
	}
	return ""
}

// GetErrorContext extracts context from an error
func GetErrorContext(err error) map[string]interface{} {
	if err == nil {
		return nil
	}
	var skmvErr *errors.Error
	if goerrors.As(err, &skmvErr) {
		return skmvErr.Context
	}
	return nil
}
