package client

import (
	"errors"
	"fmt"
)

// ErrRequestBlocked is returned when the rate limit gate refuses a request.
var ErrRequestBlocked = errors.New("request blocked: rate limit exhausted")

// ErrorClass represents a classification of fetch failures.
type ErrorClass string

const (
	// ErrorClassDecode is a malformed or non-JSON response body.
	ErrorClassDecode ErrorClass = "decode"

	// ErrorClassEndOfRange is HTTP 400, which the API returns when paging
	// past the range it is willing to serve. It ends pagination normally.
	ErrorClassEndOfRange ErrorClass = "end_of_range"

	// ErrorClassRateLimit is HTTP 429 or a request blocked locally.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassClient represents the remaining 4xx errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// FetchError describes why a page could not be fetched.
type FetchError struct {
	StatusCode int
	Class      ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("DPE %s error (status %d): %s: %v",
			e.Class, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("DPE %s error (status %d): %s",
		e.Class, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Expected reports whether the error is the API's normal end-of-pagination
// signal rather than a failure.
func (e *FetchError) Expected() bool {
	return e.Class == ErrorClassEndOfRange
}

// ClassOf returns the ErrorClass of err, or "" when err is not a FetchError.
func ClassOf(err error) ErrorClass {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Class
	}
	return ""
}

// IsExpectedEnd reports whether err is an expected end-of-pagination signal.
func IsExpectedEnd(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Expected()
}
