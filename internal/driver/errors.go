package driver

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/observastack/loadpanel/internal/metrics"
)

var (
	// ErrRunActive is returned when a run is started or results are cleared
	// while another run is active.
	ErrRunActive = errors.New("a run is already active")
	// ErrInvalidConfig wraps RunConfig problems that cannot be clamped.
	ErrInvalidConfig = errors.New("invalid run config")
	// ErrResourceExhausted lets issuers report a local resource limit
	// explicitly. Wrap it to attach detail.
	ErrResourceExhausted = errors.New("resource limit reached")
)

var resourceErrnos = []error{
	syscall.EMFILE,
	syscall.ENFILE,
	syscall.ENOBUFS,
	syscall.EADDRNOTAVAIL,
}

// ClassifyError maps an issuer error to the kind of failure it represents.
func ClassifyError(err error) metrics.ErrorKind {
	if err == nil {
		return metrics.ErrorNone
	}
	if isResourceError(err) {
		return metrics.ErrorResourceExhaustion
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return metrics.ErrorTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return metrics.ErrorTimeout
	}
	return metrics.ErrorNetwork
}

func isResourceError(err error) bool {
	if errors.Is(err, ErrResourceExhausted) {
		return true
	}
	for _, errno := range resourceErrnos {
		if errors.Is(err, errno) {
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "too many open files") ||
		strings.Contains(msg, "cannot assign requested address")
}
