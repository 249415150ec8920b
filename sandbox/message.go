package sandbox

import (
	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/exitcode"
)

// Message is a call submitted to the executor.
type Message struct {
	From     address.Address
	To       address.Address
	Sequence uint64
	// Value is transferred from sender to receiver before invocation. A
	// nil amount means zero.
	Value    abi.TokenAmount
	Method   abi.MethodNum
	Params   []byte
	GasLimit int64
}

// ApplyKind distinguishes user messages from system messages.
type ApplyKind int

const (
	// Explicit messages are validated, pay inclusion gas and bump the
	// sender's sequence.
	Explicit ApplyKind = iota
	// Implicit messages skip sender validation and inclusion gas.
	Implicit
)

func (k ApplyKind) String() string {
	switch k {
	case Explicit:
		return "explicit"
	case Implicit:
		return "implicit"
	default:
		return "unknown"
	}
}

// Receipt is the on-chain outcome of a message.
type Receipt struct {
	ExitCode exitcode.ExitCode
	Return   []byte
	GasUsed  int64
}

// ApplyRet is the result of ExecuteMessage.
type ApplyRet struct {
	Receipt Receipt
	// FailureInfo describes why a non-success receipt was produced.
	FailureInfo string
	// Logs holds the messages the actor wrote with debug.log.
	Logs []string
}

// Exit codes the sandbox raises that go-state-types does not name.
const (
	sysErrIllegalInstruction = exitcode.ExitCode(4)
	sysErrIllegalActor       = exitcode.ExitCode(9)
	sysErrIllegalArgument    = exitcode.ExitCode(10)
)
