package gemini

import "errors"

var (
	// ErrEmptyText indicates the user supplied no text to interpret.
	ErrEmptyText = errors.New("text cannot be empty")

	// ErrInvalidResponse indicates the model returned output that could not
	// be parsed into a command. Permanent for the given input.
	ErrInvalidResponse = errors.New("invalid model response")

	// ErrContentBlocked indicates the model refused the input on safety
	// grounds. Permanent for the given input.
	ErrContentBlocked = errors.New("content blocked by safety filters")

	// ErrTransientFailure indicates the API was unreachable or rate-limited
	// past the retry budget. The caller may retry later.
	ErrTransientFailure = errors.New("transient interpreter failure")
)
