package poll

import "errors"

// Error kinds returned by the engine. Call sites wrap them with the poll id or
// option so callers should compare using errors.Is.
var (
	ErrPollNotActive          = errors.New("poll not active")
	ErrAlreadyVoted           = errors.New("already voted")
	ErrInvalidOption          = errors.New("invalid option")
	ErrNotAuthorized          = errors.New("not authorized")
	ErrInvalidTimeRange       = errors.New("invalid time range")
	ErrNotFound               = errors.New("poll not found")
	ErrCryptoValidationFailed = errors.New("ballot failed cryptographic validation")
	ErrInvalidPoll            = errors.New("invalid poll")
	ErrInvalidIdentity        = errors.New("invalid identity")
)
