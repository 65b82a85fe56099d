package llm

import "errors"

var (
	// ErrRateLimited is returned when the API kept answering 429 for every
	// attempt of the retry loop.
	ErrRateLimited = errors.New("llm: rate limited")

	// ErrEmptyResponse is returned when the API answered 200 with no choices.
	ErrEmptyResponse = errors.New("llm: empty response")

	// ErrBadOutput is returned when the model reply carries no parseable
	// JSON object.
	ErrBadOutput = errors.New("llm: unparseable model output")
)
