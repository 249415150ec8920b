package sandbox

import (
	"errors"
	"fmt"
	"sort"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/ipfs/go-cid"
)

// StateTreeVersion identifies the layout of the flushed state tree.
type StateTreeVersion uint64

// Supported state tree versions.
const (
	StateTreeVersion3 StateTreeVersion = 3
	StateTreeVersion4 StateTreeVersion = 4
	StateTreeVersion5 StateTreeVersion = 5
)

// ErrActorNotFound is returned for addresses with no actor.
var ErrActorNotFound = errors.New("actor not found")

// Actor is an entry of the state tree.
type Actor struct {
	// Code is the CID of the actor's code, WASM or builtin.
	Code cid.Cid
	// Head is the CID of the actor's current state object.
	Head cid.Cid
	// Sequence is the nonce expected on the next message from this actor.
	Sequence uint64
	Balance  abi.TokenAmount
}

func (a *Actor) clone() *Actor {
	cp := *a
	if a.Balance.Int == nil {
		cp.Balance = big.Zero()
	} else {
		cp.Balance = big.Add(a.Balance, big.Zero())
	}

	return &cp
}

// StateTree maps ID addresses to actors. Not safe for concurrent access.
type StateTree struct {
	version StateTreeVersion
	store   Blockstore
	actors  map[address.Address]*Actor
}

// NewStateTree returns an empty tree that flushes into store.
func NewStateTree(store Blockstore, version StateTreeVersion) (*StateTree, error) {
	switch version {
	case StateTreeVersion3, StateTreeVersion4, StateTreeVersion5:
	default:
		return nil, fmt.Errorf("unsupported state tree version %d", version)
	}

	return &StateTree{
		version: version,
		store:   store,
		actors:  make(map[address.Address]*Actor),
	}, nil
}

// Version returns the tree's layout version.
func (t *StateTree) Version() StateTreeVersion {
	return t.version
}

// GetActor returns a copy of the actor at the ID address addr.
func (t *StateTree) GetActor(addr address.Address) (*Actor, error) {
	a, ok := t.actors[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrActorNotFound, addr)
	}

	return a.clone(), nil
}

// SetActor stores a copy of act at the ID address addr.
func (t *StateTree) SetActor(addr address.Address, act *Actor) error {
	if addr.Protocol() != address.ID {
		return fmt.Errorf("set actor: %s is not an ID address", addr)
	}

	t.actors[addr] = act.clone()

	return nil
}

// ForEach calls fn for every actor in ascending ID order, stopping at the
// first error.
func (t *StateTree) ForEach(fn func(addr address.Address, act *Actor) error) error {
	addrs := make([]address.Address, 0, len(t.actors))
	for addr := range t.actors {
		addrs = append(addrs, addr)
	}

	sort.Slice(addrs, func(i, j int) bool {
		a, _ := address.IDFromAddress(addrs[i])
		b, _ := address.IDFromAddress(addrs[j])

		return a < b
	})

	for _, addr := range addrs {
		if err := fn(addr, t.actors[addr].clone()); err != nil {
			return err
		}
	}

	return nil
}

type actorNode struct {
	_        struct{} `cbor:",toarray"`
	ID       uint64
	Code     []byte
	Head     []byte
	Sequence uint64
	Balance  string
}

type stateRoot struct {
	_       struct{} `cbor:",toarray"`
	Version uint64
	Actors  []actorNode
}

// Flush persists the tree and returns the root CID. Actors are written
// in ascending ID order so equal trees yield equal roots.
func (t *StateTree) Flush() (cid.Cid, error) {
	nodes := make([]actorNode, 0, len(t.actors))

	for addr, a := range t.actors {
		id, err := address.IDFromAddress(addr)
		if err != nil {
			return cid.Undef, fmt.Errorf("flush %s: %w", addr, err)
		}

		node := actorNode{ID: id, Sequence: a.Sequence, Balance: "0"}
		if a.Code.Defined() {
			node.Code = a.Code.Bytes()
		}
		if a.Head.Defined() {
			node.Head = a.Head.Bytes()
		}
		if a.Balance.Int != nil {
			node.Balance = a.Balance.String()
		}

		nodes = append(nodes, node)
	}

	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })

	root, err := PutObject(t.store, stateRoot{
		Version: uint64(t.version),
		Actors:  nodes,
	})
	if err != nil {
		return cid.Undef, fmt.Errorf("flush state tree: %w", err)
	}

	return root, nil
}
