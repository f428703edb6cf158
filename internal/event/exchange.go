package event

import "github.com/ethereum/go-ethereum/common"

// Exchange names the two concrete strategies this indexer supports:
// Pangolin (AVAX) and Pegasys (SYS).
// Each supplies its own factory address and, for the bundle processor
// stage, its tracked native-price pairs and migration-block set.
type Exchange string

const (
	ExchangePangolin Exchange = "pangolin"
	ExchangePegasys  Exchange = "pegasys"
)

// ExchangeConfig carries the per-exchange wiring a filter/indexer/
// processor constructor needs. Factory and pair addresses are supplied
// via configuration rather than compiled in, since the concrete
// deployment addresses are an operational detail, not part of the
// pipeline's architecture.
type ExchangeConfig struct {
	Name            Exchange
	FactoryAddress  common.Address
	RouterAddress   common.Address
	NativePairs     []NativePricePair
	MigrationBlocks []uint64
}

// NativePricePair names a tracked pair and which side of it denominates
// the native asset, matching the Bundle stage's per-pair configuration.
type NativePricePair struct {
	PairAddress     common.Address
	DenominatorIdx  int // 0 or 1
}

// PangolinMigrationBlocks are the chain-specific boundaries the
// Pangolin bundle stage splits its interval at (processor_exchange_
// bundle.py), restored verbatim from original_source.
var PangolinMigrationBlocks = []uint64{60337, 60355, 3117207}
