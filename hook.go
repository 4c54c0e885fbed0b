package concurrent

import (
	"sync/atomic"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
)

// hook is a set-once callback cell. Loads are lock-free so callers can
// read it after releasing their own mutex.
type hook struct {
	fn atomic.Pointer[func()]
}

// set stores fn, panicking with a [ContractError] if a callback is
// already present.
func (h *hook) set(logger *zap.Logger, op string, fn func()) {
	if fn == nil {
		violate(logger, codes.InvalidArgument, op, "hook must not be nil")
	}
	if !h.fn.CompareAndSwap(nil, &fn) {
		violate(logger, codes.FailedPrecondition, op, "once assigned, the hook is immutable")
	}
}

func (h *hook) isSet() bool {
	return h.fn.Load() != nil
}

func (h *hook) call() {
	if fn := h.fn.Load(); fn != nil {
		(*fn)()
	}
}
