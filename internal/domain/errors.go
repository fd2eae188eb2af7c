package domain

import "errors"

var (
	// ErrTestNotFound indicates the requested test does not exist.
	ErrTestNotFound = errors.New("test not found")
	// ErrAttemptNotFound indicates the attempt id is unknown.
	ErrAttemptNotFound = errors.New("attempt not found")
	// ErrForbidden is returned when an attempt belongs to a different student.
	ErrForbidden = errors.New("attempt belongs to another student")
	// ErrAttemptExpired means the exam deadline passed; the client must submit
	// to close the attempt, answers are not discarded.
	ErrAttemptExpired = errors.New("exam time is over, submit the attempt")
	// ErrAttemptLimit means no unused entitlement exists and the attempt quota
	// for the test is exhausted; a new purchase is required.
	ErrAttemptLimit = errors.New("attempt limit reached, purchase the test again")
	// ErrAlreadySubmitted rejects re-submission of a completed attempt.
	ErrAlreadySubmitted = errors.New("attempt already submitted")
	// ErrAttemptInProgress is returned by stores when a second in-progress
	// attempt would be created for the same student and test.
	ErrAttemptInProgress = errors.New("attempt already in progress")
	// ErrEntitlementUsed is returned when a consume races and loses.
	ErrEntitlementUsed = errors.New("entitlement already consumed")
	// ErrValidation covers malformed or missing request fields.
	ErrValidation = errors.New("invalid request")
)
