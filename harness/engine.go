package harness

//go:generate mockgen -source engine.go -destination engine_mock.go -package harness

import (
	"context"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/network"
	"github.com/ipfs/go-cid"
	"github.com/weiihann/actorbench/sandbox"
)

// Executor applies messages to an instantiated machine.
type Executor interface {
	ExecuteMessage(ctx context.Context, msg *sandbox.Message, kind sandbox.ApplyKind, rawLength int) (*sandbox.ApplyRet, error)
	StateHead(addr address.Address) (cid.Cid, error)
	Close(ctx context.Context) error
}

// Environment is a chain state being prepared for one variant.
type Environment interface {
	CreateAccounts(n int) ([]sandbox.Account, error)
	SetState(obj any) (cid.Cid, error)
	SetActorFromBin(bin []byte, head cid.Cid, addr address.Address, balance abi.TokenAmount) error
	InstantiateMachine(ctx context.Context) (Executor, error)
	ReadObject(c cid.Cid) ([]byte, error)
}

// EnvironmentFactory returns a fresh, unshared Environment.
type EnvironmentFactory func() (Environment, error)

// Environment parameters of the sandbox the benchmark runs on.
const (
	NetworkVersion   = network.Version16
	StateTreeVersion = sandbox.StateTreeVersion4
)

// NewSandboxEnvironment creates a sandbox tester over an empty in-memory
// blockstore.
func NewSandboxEnvironment() (Environment, error) {
	return SandboxFactory()()
}

// SandboxFactory returns a factory of sandbox environments configured
// with opts.
func SandboxFactory(opts ...sandbox.Option) EnvironmentFactory {
	return func() (Environment, error) {
		tester, err := sandbox.NewTester(NetworkVersion, StateTreeVersion, sandbox.NewMemoryBlockstore(), opts...)
		if err != nil {
			return nil, err
		}

		return &sandboxEnvironment{Tester: tester}, nil
	}
}

type sandboxEnvironment struct {
	*sandbox.Tester
}

func (s *sandboxEnvironment) InstantiateMachine(ctx context.Context) (Executor, error) {
	exec, err := s.Tester.InstantiateMachine(ctx)
	if err != nil {
		return nil, err
	}

	return exec, nil
}

func (s *sandboxEnvironment) ReadObject(c cid.Cid) ([]byte, error) {
	return sandbox.ReadStoredObject(s.Blockstore(), c)
}
