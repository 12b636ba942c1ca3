package speech

import "errors"

// Recognition failures. ErrNoSpeech and ErrUnintelligible are retryable within
// one capture call; ErrServiceUnavailable aborts it.
var (
	ErrNoSpeech           = errors.New("no speech before listen timeout")
	ErrUnintelligible     = errors.New("speech was unintelligible")
	ErrServiceUnavailable = errors.New("speech recognition service unavailable")
)
