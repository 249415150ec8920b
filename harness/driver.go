package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/filecoin-project/go-state-types/exitcode"
	"github.com/weiihann/actorbench/sandbox"
	"github.com/weiihann/actorbench/token"
	"github.com/weiihann/actorbench/workload"
)

// RawLength is the message size charged as inclusion gas for every call.
const RawLength = 100

// Driver submits calls to one executor, in order, one at a time.
type Driver struct {
	Executor Executor
	Policy   ExitCodePolicy
	Variant  string
	Logger   *slog.Logger
}

// Run executes calls as explicit messages and returns one receipt per
// call. An executor fault stops the run with a KindEngine error; a
// non-success exit code is handled according to d.Policy.
func (d *Driver) Run(ctx context.Context, calls []workload.Call) ([]Receipt, error) {
	logger := d.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	receipts := make([]Receipt, 0, len(calls))

	for _, call := range calls {
		op := fmt.Sprintf("call %d (%s)", call.Index, call.Label)

		if err := ctx.Err(); err != nil {
			return receipts, newError(KindEngine, d.Variant, op, err)
		}

		ret, err := d.Executor.ExecuteMessage(ctx, call.Message(), sandbox.Explicit, RawLength)
		if err != nil {
			return receipts, newError(KindEngine, d.Variant, op, err)
		}

		if ret == nil {
			return receipts, newError(KindEngine, d.Variant, op, errors.New("no receipt"))
		}

		rcpt := Receipt{
			Label:       call.Label,
			Method:      uint64(call.Method),
			Nonce:       call.Nonce,
			ExitCode:    int64(ret.Receipt.ExitCode),
			GasUsed:     ret.Receipt.GasUsed,
			Return:      ret.Receipt.Return,
			FailureInfo: ret.FailureInfo,
		}

		logger.DebugContext(ctx, "call applied",
			slog.String("label", call.Label),
			slog.String("method", token.MethodName(call.Method)),
			slog.Uint64("nonce", call.Nonce),
			slog.Int64("exit_code", rcpt.ExitCode),
			slog.Int64("gas_used", rcpt.GasUsed),
		)

		if ret.Receipt.ExitCode != exitcode.Ok {
			switch d.Policy {
			case ExitCodesAbort:
				return receipts, newError(KindLogical, d.Variant, op,
					fmt.Errorf("exit code %d: %s", rcpt.ExitCode, rcpt.FailureInfo))
			case ExitCodesExclude:
				rcpt.Excluded = true
			}

			logger.WarnContext(ctx, "call failed",
				slog.String("label", call.Label),
				slog.Int64("exit_code", rcpt.ExitCode),
				slog.String("info", rcpt.FailureInfo),
				slog.Bool("excluded", rcpt.Excluded),
			)
		}

		receipts = append(receipts, rcpt)
	}

	return receipts, nil
}
