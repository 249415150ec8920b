package sandbox

import (
	"errors"
	"fmt"
	"sync"

	cbor "github.com/Salvionied/cbor/v2"
	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
)

// ErrNotFound is returned when a block is not in the store.
var ErrNotFound = errors.New("block not found")

var (
	cborPrefix = cid.Prefix{
		Version:  1,
		Codec:    cid.DagCBOR,
		MhType:   mh.BLAKE2B_MIN + 31,
		MhLength: 32,
	}
	rawPrefix = cid.Prefix{
		Version:  1,
		Codec:    cid.Raw,
		MhType:   mh.BLAKE2B_MIN + 31,
		MhLength: 32,
	}
	// Builtin code is addressed by an identity hash of its name.
	builtinPrefix = cid.Prefix{
		Version:  1,
		Codec:    cid.Raw,
		MhType:   mh.IDENTITY,
		MhLength: -1,
	}
)

// Blockstore is a content-addressed block store.
type Blockstore interface {
	Get(c cid.Cid) ([]byte, error)
	Put(c cid.Cid, data []byte) error
	Has(c cid.Cid) bool
}

// MemoryBlockstore keeps blocks in memory. Safe for concurrent use.
type MemoryBlockstore struct {
	mu     sync.RWMutex
	blocks map[cid.Cid][]byte
}

// NewMemoryBlockstore returns an empty in-memory store.
func NewMemoryBlockstore() *MemoryBlockstore {
	return &MemoryBlockstore{blocks: make(map[cid.Cid][]byte)}
}

// Get returns a copy of the block stored under c.
func (m *MemoryBlockstore) Get(c cid.Cid) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.blocks[c]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, c)
	}

	out := make([]byte, len(data))
	copy(out, data)

	return out, nil
}

// Put stores data under c. The caller is responsible for c matching data.
func (m *MemoryBlockstore) Put(c cid.Cid, data []byte) error {
	if !c.Defined() {
		return errors.New("put block: undefined cid")
	}

	buf := make([]byte, len(data))
	copy(buf, data)

	m.mu.Lock()
	m.blocks[c] = buf
	m.mu.Unlock()

	return nil
}

// Has reports whether c is in the store.
func (m *MemoryBlockstore) Has(c cid.Cid) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.blocks[c]

	return ok
}

// Len returns the number of stored blocks.
func (m *MemoryBlockstore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.blocks)
}

var encMode = mustEncMode()

func mustEncMode() cbor.EncMode {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("sandbox: cbor enc mode: %v", err))
	}

	return em
}

func putBlock(bs Blockstore, prefix cid.Prefix, data []byte) (cid.Cid, error) {
	c, err := prefix.Sum(data)
	if err != nil {
		return cid.Undef, fmt.Errorf("compute cid: %w", err)
	}

	if err := bs.Put(c, data); err != nil {
		return cid.Undef, err
	}

	return c, nil
}

// PutObject encodes v as canonical CBOR, stores it and returns its CID.
func PutObject(bs Blockstore, v any) (cid.Cid, error) {
	data, err := encMode.Marshal(v)
	if err != nil {
		return cid.Undef, fmt.Errorf("encode object: %w", err)
	}

	return putBlock(bs, cborPrefix, data)
}

// GetObject loads the block under c and decodes it into v.
func GetObject(bs Blockstore, c cid.Cid, v any) error {
	data, err := bs.Get(c)
	if err != nil {
		return err
	}

	if err := cbor.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode object %s: %w", c, err)
	}

	return nil
}

// ReadStoredObject returns the raw bytes of the block under c.
func ReadStoredObject(bs Blockstore, c cid.Cid) ([]byte, error) {
	if !c.Defined() {
		return nil, errors.New("read object: undefined cid")
	}

	return bs.Get(c)
}

func builtinCode(name string) cid.Cid {
	c, err := builtinPrefix.Sum([]byte(name))
	if err != nil {
		panic(fmt.Sprintf("sandbox: builtin code %q: %v", name, err))
	}

	return c
}
