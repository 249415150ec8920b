package sandbox

// PriceList holds the gas charged for each metered operation.
type PriceList struct {
	OnChainMessageComputeBase    int64
	OnChainMessageStorageBase    int64
	OnChainMessageStoragePerByte int64
	OnChainReturnValuePerByte    int64

	SendBase               int64
	InstantiatePerCodeByte int64
	FunctionCall           int64
	Syscall                int64

	BlockOpenBase      int64
	BlockOpenPerByte   int64
	BlockReadPerByte   int64
	BlockCreateBase    int64
	BlockCreatePerByte int64
	BlockLinkBase      int64
	BlockLinkPerByte   int64
}

// DefaultPriceList returns the prices used by NewTester.
func DefaultPriceList() PriceList {
	return PriceList{
		OnChainMessageComputeBase:    38863,
		OnChainMessageStorageBase:    36,
		OnChainMessageStoragePerByte: 1300,
		OnChainReturnValuePerByte:    1300,

		SendBase:               29233,
		InstantiatePerCodeByte: 2,
		FunctionCall:           200,
		Syscall:                1400,

		BlockOpenBase:      114617,
		BlockOpenPerByte:   10,
		BlockReadPerByte:   10,
		BlockCreateBase:    0,
		BlockCreatePerByte: 10,
		BlockLinkBase:      353640,
		BlockLinkPerByte:   1300,
	}
}

// OnChainMessage is the inclusion cost of a message of rawLength bytes.
func (p PriceList) OnChainMessage(rawLength int) int64 {
	return p.OnChainMessageComputeBase +
		(p.OnChainMessageStorageBase+int64(rawLength))*p.OnChainMessageStoragePerByte
}

type gasTracker struct {
	limit     int64
	used      int64
	exhausted bool
}

// charge adds amount to the used gas. It reports false, and pins usage
// to the limit, once the limit is exceeded.
func (g *gasTracker) charge(amount int64) bool {
	if g.exhausted {
		return false
	}

	g.used += amount
	if g.used > g.limit {
		g.used = g.limit
		g.exhausted = true

		return false
	}

	return true
}
