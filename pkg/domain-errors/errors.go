// Package domainerrors carries the error taxonomy shared by services, stores and
// transports. Every error crossing a package boundary should either be an *Error
// or wrap one, so handlers can translate it into an HTTP status and a
// user-readable message without string matching.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a failure class.
type Code string

const (
	CodeBadRequest          Code = "bad_request"
	CodeValidation          Code = "validation_error"
	CodeInvalidAddress      Code = "invalid_address"
	CodeNotFound            Code = "not_found"
	CodeConflict            Code = "conflict"
	CodeUnauthorized        Code = "unauthorized"
	CodeNotConnected        Code = "not_connected"
	CodeFeeUnavailable      Code = "fee_unavailable"
	CodeUserRejected        Code = "user_rejected"
	CodeTransactionFailed   Code = "transaction_failed"
	CodeVerificationFailed  Code = "verification_failed"
	CodeOperationInProgress Code = "operation_in_progress"
	CodeTimeout             Code = "timeout"
	CodeInternal            Code = "internal_error"
)

// Error is a coded domain error. Message is safe to show to API clients except
// for CodeInternal.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a coded error.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// CodeOf returns the code of the outermost *Error in the chain, or CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// HasCode reports whether the outermost *Error in the chain carries code.
func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

// Is is an alias of HasCode kept for call sites that read better as a predicate.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// MessageOf returns the client-safe message of the outermost *Error.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return "internal error"
}

var userMessages = map[Code]string{
	CodeValidation:          "Please fill in all required fields.",
	CodeInvalidAddress:      "Please enter a valid Ethereum address.",
	CodeNotConnected:        "Wallet not connected.",
	CodeFeeUnavailable:      "Could not get fee data from the network.",
	CodeUserRejected:        "Transaction was rejected by user.",
	CodeTransactionFailed:   "The transaction failed.",
	CodeVerificationFailed:  "Identity not found after the transaction was confirmed.",
	CodeOperationInProgress: "Another transaction for this address is still in progress.",
	CodeNotFound:            "Identity not found.",
	CodeConflict:            "Identity already exists.",
	CodeTimeout:             "The request timed out.",
}

// UserMessage renders err for end-user notifications.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	code := CodeOf(err)
	base, ok := userMessages[code]
	if !ok {
		return "Something went wrong. Please try again."
	}
	switch code {
	case CodeValidation:
		return MessageOf(err)
	case CodeTransactionFailed:
		return base + " " + MessageOf(err)
	}
	return base
}

// ToHTTPStatus maps a code onto an HTTP status.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeBadRequest, CodeValidation, CodeInvalidAddress:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeOperationInProgress:
		return http.StatusConflict
	case CodeUserRejected:
		return http.StatusUnprocessableEntity
	case CodeVerificationFailed, CodeTransactionFailed, CodeFeeUnavailable:
		return http.StatusBadGateway
	case CodeNotConnected:
		return http.StatusServiceUnavailable
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
