// Package token describes the token actor's persisted state and call
// parameters in the CBOR layout the compiled actors expect.
package token

import (
	"fmt"

	cbor "github.com/Salvionied/cbor/v2"
	"github.com/filecoin-project/go-state-types/abi"
)

// Methods exported by every token actor variant.
const (
	MethodGetName        abi.MethodNum = 2
	MethodGetSymbol      abi.MethodNum = 3
	MethodGetDecimal     abi.MethodNum = 4
	MethodGetTotalSupply abi.MethodNum = 5
	MethodGetBalanceOf   abi.MethodNum = 6
	MethodTransfer       abi.MethodNum = 7
	MethodAllowance      abi.MethodNum = 8
	MethodTransferFrom   abi.MethodNum = 9
	MethodApproval       abi.MethodNum = 10
)

var methodNames = map[abi.MethodNum]string{
	MethodGetName:        "GetName",
	MethodGetSymbol:      "GetSymbol",
	MethodGetDecimal:     "GetDecimal",
	MethodGetTotalSupply: "GetTotalSupply",
	MethodGetBalanceOf:   "GetBalanceOf",
	MethodTransfer:       "Transfer",
	MethodAllowance:      "Allowance",
	MethodTransferFrom:   "TransferFrom",
	MethodApproval:       "Approval",
}

// MethodName returns the exported name of m, or "Method<m>" for numbers
// the token interface does not define.
func MethodName(m abi.MethodNum) string {
	if name, ok := methodNames[m]; ok {
		return name
	}

	return fmt.Sprintf("Method%d", m)
}

// State is the token actor state. It is encoded as a CBOR tuple:
// [name, symbol, decimals, total_supply, balances, allowed].
type State struct {
	_           struct{} `cbor:",toarray"`
	Name        string
	Symbol      string
	Decimals    uint8
	TotalSupply uint64
	Balances    map[string]uint64
	Allowed     map[string]uint64
}

// NewState returns a State with empty, non-nil balance and allowance
// maps. Actors decode a nil map as a CBOR null and reject it.
func NewState(name, symbol string, decimals uint8, totalSupply uint64) *State {
	return &State{
		Name:        name,
		Symbol:      symbol,
		Decimals:    decimals,
		TotalSupply: totalSupply,
		Balances:    make(map[string]uint64),
		Allowed:     make(map[string]uint64),
	}
}

// DecodeState parses a persisted state object.
func DecodeState(data []byte) (*State, error) {
	var s State
	if err := cbor.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode token state: %w", err)
	}

	return &s, nil
}

// EncodeState serializes s in canonical CBOR, the same bytes the sandbox
// persists for it.
func EncodeState(s *State) ([]byte, error) {
	data, err := encMode.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode token state: %w", err)
	}

	return data, nil
}

var encMode = mustEncMode()

func mustEncMode() cbor.EncMode {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("token: cbor enc mode: %v", err))
	}

	return em
}

// EncodeParams encodes args as a CBOR array in the given order. An empty
// argument list yields empty params.
func EncodeParams(args ...any) ([]byte, error) {
	if len(args) == 0 {
		return nil, nil
	}

	data, err := encMode.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encode params: %w", err)
	}

	return data, nil
}
