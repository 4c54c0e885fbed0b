package concurrent

import (
	"fmt"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
)

// ContractError is the panic value raised when the API is misused in a
// way no caller can recover from: assigning a set-once hook twice,
// bulk-sending into a bounded or hooked channel, or subscribing a nil
// channel.
//
// Err carries the stack of the offending call.
type ContractError struct {
	Code codes.Code
	Op   string
	Err  error
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("concurrent: %s: %s: %v", e.Op, e.Code, e.Err)
}

func (e *ContractError) Unwrap() error { return e.Err }

// violate reports the violation to the logger and panics.
func violate(logger *zap.Logger, code codes.Code, op, msg string) {
	ce := &ContractError{
		Code: code,
		Op:   op,
		Err:  errors.New(msg),
	}
	logger.Error("contract violation",
		zap.String("op", op),
		zap.Stringer("code", code),
		zap.Error(ce.Err),
	)
	panic(ce)
}
