package processor

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/jinzhu/gorm"
	"github.com/shopspring/decimal"

	"github.com/rikublock/xquery2/internal/event"
	"github.com/rikublock/xquery2/internal/xtypes"
)

// toPairWeights converts the filter-level pair configuration into the
// bundle stage's price-ordering representation: DenominatorIdx 0 means
// reserve0 is the denominator, price = reserve1/reserve0 (weight
// reserve0); DenominatorIdx 1 means price = reserve0/reserve1 (weight
// reserve1), matching calc_price's order flag.
func toPairWeights(pairs []event.NativePricePair) []PairWeight {
	out := make([]PairWeight, len(pairs))
	for i, p := range pairs {
		out[i] = PairWeight{Address: p.PairAddress, Invert: p.DenominatorIdx == 0}
	}
	return out
}

// pangolinBundleStage splits the requested interval at Pangolin's
// historical pair-migration boundaries, reprocessing each sub-interval
// against the pair set active at that point, matching
// EventProcessorStageExchangePangolin_Bundle.process.
type pangolinBundleStage struct {
	inner *BundleStage
	tiers []pangolinTier
}

type pangolinTier struct {
	afterBlock uint64 // active when a > afterBlock
	pairs      []PairWeight
}

func newPangolinBundleStage(db *gorm.DB, pairs []event.NativePricePair, defaultPrice decimal.Decimal) *pangolinBundleStage {
	// pairs is expected in the fixed order:
	// [AEB_USDT_WAVAX, AEB_DAI_WAVAX, AB_DAI_WAVAX, AB_USDT_WAVAX]
	var aebUSDT, aebDAI, abDAI, abUSDT []event.NativePricePair
	if len(pairs) >= 4 {
		aebUSDT = pairs[0:1]
		aebDAI = pairs[1:2]
		abDAI = pairs[2:3]
		abUSDT = pairs[3:4]
	}

	tiers := []pangolinTier{
		{afterBlock: event.PangolinMigrationBlocks[2], pairs: toPairWeights(append(abDAI, abUSDT...))},
		{afterBlock: event.PangolinMigrationBlocks[1], pairs: toPairWeights(append(aebUSDT, aebDAI...))},
		{afterBlock: event.PangolinMigrationBlocks[0], pairs: toPairWeights(aebUSDT)},
		{afterBlock: 0, pairs: nil},
	}

	return &pangolinBundleStage{
		inner: NewBundleStage(db, nil, defaultPrice),
		tiers: tiers,
	}
}

func (s *pangolinBundleStage) Name() string { return "bundle" }

func (s *pangolinBundleStage) Setup(startBlock uint64) error { return s.inner.Setup(startBlock) }

func (s *pangolinBundleStage) BatchSize() uint64 { return BundleBatchSize }

func (s *pangolinBundleStage) tierFor(blockNumber uint64) []PairWeight {
	for _, t := range s.tiers {
		if blockNumber > t.afterBlock {
			return t.pairs
		}
	}
	return nil
}

func (s *pangolinBundleStage) Process(startBlock, endBlock uint64) ([]interface{}, error) {
	intervals := xtypes.SplitInterval(startBlock, endBlock, event.PangolinMigrationBlocks)

	var objects []interface{}
	for _, iv := range intervals {
		weights := s.tierFor(iv.Start)
		byAddr := make(map[common.Address]bool, len(weights))
		for _, w := range weights {
			byAddr[w.Address] = w.Invert
		}
		s.inner.pairWeights = byAddr

		out, err := s.inner.Process(iv.Start, iv.End)
		if err != nil {
			return nil, err
		}
		objects = append(objects, out...)
	}
	return objects, nil
}

// NewStages builds the ordered stage list for one exchange: Bundle,
// Count, then the hour/day rollups, matching
// EventProcessorExchangePangolin/Pegasys's stage ordering.
func NewStages(db *gorm.DB, exchange event.Exchange, cfg event.ExchangeConfig, defaultPrice decimal.Decimal) []Stage {
	var bundle Stage
	if exchange == event.ExchangePangolin {
		bundle = newPangolinBundleStage(db, cfg.NativePairs, defaultPrice)
	} else {
		bundle = NewBundleStage(db, toPairWeights(cfg.NativePairs), defaultPrice)
	}

	return []Stage{
		bundle,
		NewCountStage(db, cfg.FactoryAddress.Hex()),
		NewPairHourStage(db),
		NewPairDayStage(db),
		NewTokenDayStage(db),
		NewExchangeDayStage(db, cfg.FactoryAddress.Hex()),
	}
}
