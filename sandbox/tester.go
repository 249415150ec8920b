// Package sandbox is an in-process test harness for FVM actors: a
// content-addressed blockstore, a state tree of actors, deterministic
// test accounts and a metered executor built on wazero. WASM actors run
// against the FVM syscall interface (ipld, self, message, vm, actor,
// network, debug and gas modules) and are entered through invoke.
//
// A Tester is configured first (accounts, state objects, actors) and then
// finalized into an Executor with InstantiateMachine. Every Tester owns
// its blockstore contents and wazero runtime; nothing is shared between
// testers.
package sandbox

import (
	"context"
	"errors"
	"fmt"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/filecoin-project/go-state-types/network"
	"github.com/ipfs/go-cid"
	"golang.org/x/crypto/blake2b"
)

// FirstAccountID is the ID given to the first created account.
const FirstAccountID abi.ActorID = 100

// ErrMachineInstantiated is returned when a Tester is modified after
// InstantiateMachine.
var ErrMachineInstantiated = errors.New("machine already instantiated")

var accountCode = builtinCode("fil/8/account")

// InitialAccountBalance is the native balance of every created account:
// 10_000 FIL in attoFIL.
func InitialAccountBalance() abi.TokenAmount {
	return big.Mul(big.NewInt(10_000), big.NewInt(1_000_000_000_000_000_000))
}

// BaseFee is the network base fee reported to actors, in attoFIL.
func BaseFee() abi.TokenAmount {
	return big.NewInt(100)
}

// Account is a funded test account.
type Account struct {
	Index int
	ID    abi.ActorID
	// Address is the robust (secp256k1) address of the account.
	Address   address.Address
	IDAddress address.Address
	Balance   abi.TokenAmount
}

// Tester prepares a sandboxed chain state.
type Tester struct {
	networkVersion network.Version
	store          Blockstore
	tree           *StateTree
	resolve        map[address.Address]address.Address
	accounts       []Account
	nextID         abi.ActorID
	prices         PriceList
	natives        map[cid.Cid]NativeActor
	instantiated   bool
}

// Option configures a Tester.
type Option func(*Tester)

// WithNativeActor runs actor in place of the WASM binary bin whenever bin
// is installed with SetActorFromBin.
func WithNativeActor(bin []byte, actor NativeActor) Option {
	return func(t *Tester) {
		c, err := rawPrefix.Sum(bin)
		if err != nil {
			panic(fmt.Sprintf("sandbox: native actor code: %v", err))
		}

		t.natives[c] = actor
	}
}

// NewTester returns a Tester over store.
func NewTester(
	nv network.Version,
	stv StateTreeVersion,
	store Blockstore,
	opts ...Option,
) (*Tester, error) {
	if nv < network.Version16 {
		return nil, fmt.Errorf("network version %d predates wasm actors", nv)
	}

	if store == nil {
		return nil, errors.New("nil blockstore")
	}

	tree, err := NewStateTree(store, stv)
	if err != nil {
		return nil, err
	}

	t := &Tester{
		networkVersion: nv,
		store:          store,
		tree:           tree,
		resolve:        make(map[address.Address]address.Address),
		nextID:         FirstAccountID,
		prices:         DefaultPriceList(),
		natives:        make(map[cid.Cid]NativeActor),
	}

	for _, opt := range opts {
		opt(t)
	}

	return t, nil
}

// Blockstore returns the store the tester writes into.
func (t *Tester) Blockstore() Blockstore {
	return t.store
}

// NetworkVersion returns the version the tester was created with.
func (t *Tester) NetworkVersion() network.Version {
	return t.networkVersion
}

// SetPriceList replaces the gas prices used by the executor.
func (t *Tester) SetPriceList(p PriceList) error {
	if t.instantiated {
		return ErrMachineInstantiated
	}

	t.prices = p

	return nil
}

// CreateAccounts creates n funded accounts. Account keys derive from the
// account index, so testers that create the same number of accounts get
// the same addresses.
func (t *Tester) CreateAccounts(n int) ([]Account, error) {
	if t.instantiated {
		return nil, ErrMachineInstantiated
	}

	if n < 0 {
		return nil, fmt.Errorf("negative account count %d", n)
	}

	created := make([]Account, 0, n)

	for i := 0; i < n; i++ {
		index := len(t.accounts)

		robust, err := address.NewSecp256k1Address(accountKey(index))
		if err != nil {
			return nil, fmt.Errorf("account %d address: %w", index, err)
		}

		id := t.nextID

		idAddr, err := address.NewIDAddress(uint64(id))
		if err != nil {
			return nil, fmt.Errorf("account %d id address: %w", index, err)
		}

		head, err := PutObject(t.store, []any{robust.Bytes()})
		if err != nil {
			return nil, fmt.Errorf("account %d state: %w", index, err)
		}

		balance := InitialAccountBalance()
		if err := t.tree.SetActor(idAddr, &Actor{
			Code:    accountCode,
			Head:    head,
			Balance: balance,
		}); err != nil {
			return nil, err
		}

		t.resolve[robust] = idAddr
		t.nextID++

		acc := Account{
			Index:     index,
			ID:        id,
			Address:   robust,
			IDAddress: idAddr,
			Balance:   balance,
		}
		t.accounts = append(t.accounts, acc)
		created = append(created, acc)
	}

	return created, nil
}

// accountKey returns a 65 byte uncompressed-key shaped public key for the
// account at index.
func accountKey(index int) []byte {
	sum := blake2b.Sum512([]byte(fmt.Sprintf("actorbench/account/%d", index)))

	return append([]byte{0x04}, sum[:]...)
}

// SetState persists obj and returns its CID.
func (t *Tester) SetState(obj any) (cid.Cid, error) {
	if t.instantiated {
		return cid.Undef, ErrMachineInstantiated
	}

	return PutObject(t.store, obj)
}

// SetActorFromBin installs the WASM binary bin as an actor at the ID
// address addr with state head and native balance.
func (t *Tester) SetActorFromBin(
	bin []byte,
	head cid.Cid,
	addr address.Address,
	balance abi.TokenAmount,
) error {
	if t.instantiated {
		return ErrMachineInstantiated
	}

	if len(bin) == 0 {
		return errors.New("set actor: empty binary")
	}

	if !t.store.Has(head) {
		return fmt.Errorf("set actor: state %s: %w", head, ErrNotFound)
	}

	code, err := putBlock(t.store, rawPrefix, bin)
	if err != nil {
		return fmt.Errorf("set actor: store code: %w", err)
	}

	if balance.Int == nil {
		balance = big.Zero()
	}

	return t.tree.SetActor(addr, &Actor{
		Code:    code,
		Head:    head,
		Balance: balance,
	})
}

// GetActor returns the actor at addr, resolving robust addresses.
func (t *Tester) GetActor(addr address.Address) (*Actor, error) {
	id, ok := t.lookupID(addr)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrActorNotFound, addr)
	}

	return t.tree.GetActor(id)
}

func (t *Tester) lookupID(addr address.Address) (address.Address, bool) {
	if addr.Protocol() == address.ID {
		return addr, true
	}

	id, ok := t.resolve[addr]

	return id, ok
}

// InstantiateMachine flushes the state tree and finalizes the tester into
// an Executor. Every installed WASM actor is compiled and checked against
// the syscalls the sandbox provides; code that cannot run fails with
// ErrIllegalActor. The tester cannot be modified afterwards.
func (t *Tester) InstantiateMachine(ctx context.Context) (*Executor, error) {
	if t.instantiated {
		return nil, ErrMachineInstantiated
	}

	root, err := t.tree.Flush()
	if err != nil {
		return nil, err
	}

	exec, err := newExecutor(ctx, t, root)
	if err != nil {
		return nil, fmt.Errorf("instantiate machine: %w", err)
	}

	t.instantiated = true

	return exec, nil
}
