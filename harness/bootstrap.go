package harness

import (
	"context"
	"fmt"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/ipfs/go-cid"
	"github.com/weiihann/actorbench/sandbox"
	"github.com/weiihann/actorbench/token"
	"github.com/weiihann/actorbench/workload"
)

// ActorID is the ID address every variant is deployed at.
const ActorID = 10000

// Deployment is a variant installed in a finalized environment.
type Deployment struct {
	Env      Environment
	Executor Executor
	Accounts []sandbox.Account
	Actor    address.Address
	StateCID cid.Cid
}

// InitialState builds the token state of plan. Balances are keyed by the
// robust address string of the funded account; funding the same account
// twice adds up.
func InitialState(plan workload.Plan, accounts []sandbox.Account) (*token.State, error) {
	st := token.NewState(plan.Token.Name, plan.Token.Symbol, plan.Token.Decimals, plan.Token.TotalSupply)

	for i, f := range plan.Funding {
		if f.Account < 0 || f.Account >= len(accounts) {
			return nil, fmt.Errorf("funding %d: account index %d out of range", i, f.Account)
		}

		st.Balances[accounts[f.Account].Address.String()] += f.Amount
	}

	return st, nil
}

// Bootstrap creates the plan's accounts in env, persists the initial
// token state, installs bin at ActorID and finalizes env into an
// executor. The caller owns the returned executor.
func Bootstrap(
	ctx context.Context,
	env Environment,
	variant string,
	bin []byte,
	plan workload.Plan,
) (*Deployment, error) {
	accounts, err := env.CreateAccounts(plan.Accounts)
	if err != nil {
		return nil, newError(KindEngine, variant, "create accounts", err)
	}

	st, err := InitialState(plan, accounts)
	if err != nil {
		return nil, newError(KindConfig, variant, "build state", err)
	}

	head, err := env.SetState(st)
	if err != nil {
		return nil, newError(KindSerialization, variant, "set state", err)
	}

	actor, err := address.NewIDAddress(ActorID)
	if err != nil {
		return nil, newError(KindEngine, variant, "actor address", err)
	}

	if err := env.SetActorFromBin(bin, head, actor, big.Zero()); err != nil {
		return nil, newError(KindEngine, variant, "install actor", err)
	}

	exec, err := env.InstantiateMachine(ctx)
	if err != nil {
		return nil, newError(KindEngine, variant, "instantiate machine", err)
	}

	return &Deployment{
		Env:      env,
		Executor: exec,
		Accounts: accounts,
		Actor:    actor,
		StateCID: head,
	}, nil
}
