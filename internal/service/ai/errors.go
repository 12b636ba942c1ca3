package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Backend failure kinds. Generate wraps every backend error in one of these.
var (
	ErrBackendTimeout   = errors.New("language model timed out")
	ErrBackendTransport = errors.New("language model request failed")
	ErrBackendMalformed = errors.New("language model returned a malformed reply")
)

// classifyBackendError 将底层错误归类为三种后端错误之一。
func classifyBackendError(err error) error {
	switch {
	case errors.Is(err, ErrBackendTimeout), errors.Is(err, ErrBackendTransport), errors.Is(err, ErrBackendMalformed):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrBackendTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrBackendTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrBackendTransport, err)
}
