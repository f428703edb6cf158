package processor

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/jinzhu/gorm"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/rikublock/xquery2/internal/store"
	"github.com/rikublock/xquery2/internal/xdecimal"
)

// transitionLogIndex is the synthetic logIndex used for the bundle row
// that marks the price in effect immediately before a tracked interval,
// allowing lookups to use <= rather than a special-cased <.
const transitionLogIndex = 1<<31 - 1

// PairWeight configures one tracked pair for price averaging: Invert
// selects which reserve is the price numerator (true uses reserve1 as
// the price of reserve0 in terms of it, matching calc_price's order
// flag).
type PairWeight struct {
	Address common.Address
	Invert  bool
}

type priceInfo struct {
	price  decimal.Decimal
	weight decimal.Decimal
}

func calcPrice(reserve0, reserve1 decimal.Decimal, invert bool) (priceInfo, error) {
	if invert {
		v, err := xdecimal.Div(reserve1, reserve0)
		if err != nil {
			return priceInfo{}, errors.Wrap(err, "processor: calc price failed")
		}
		return priceInfo{price: v, weight: reserve0}, nil
	}
	v, err := xdecimal.Div(reserve0, reserve1)
	if err != nil {
		return priceInfo{}, errors.Wrap(err, "processor: calc price failed")
	}
	return priceInfo{price: v, weight: reserve1}, nil
}

func calcWeightedAverage(infos map[common.Address]priceInfo) decimal.Decimal {
	if len(infos) == 0 {
		return decimal.Zero
	}
	prices := make([]decimal.Decimal, 0, len(infos))
	weights := make([]decimal.Decimal, 0, len(infos))
	totalWeight := decimal.Zero
	for _, pi := range infos {
		prices = append(prices, pi.price)
		weights = append(weights, pi.weight)
		totalWeight = totalWeight.Add(pi.weight)
	}
	if totalWeight.IsZero() {
		return decimal.Zero
	}
	avg, err := xdecimal.WeightedAverage(prices, weights)
	if err != nil {
		return decimal.Zero
	}
	return avg
}

// BundleStage computes the USD/native price of the chain's native
// asset from a basket of tracked stablecoin pairs, recording one
// Bundle row for every Sync of a tracked pair (whether or not the
// weighted price changed).
// Grounded on EventProcessorStageExchange_Bundle.
type BundleStage struct {
	db           *gorm.DB
	pairWeights  map[common.Address]bool // address -> invert
	defaultPrice decimal.Decimal

	prices map[common.Address]priceInfo
}

func NewBundleStage(db *gorm.DB, pairs []PairWeight, defaultPrice decimal.Decimal) *BundleStage {
	weights := make(map[common.Address]bool, len(pairs))
	for _, p := range pairs {
		weights[p.Address] = p.Invert
	}
	return &BundleStage{db: db, pairWeights: weights, defaultPrice: defaultPrice}
}

func (s *BundleStage) Name() string { return "bundle" }

func (s *BundleStage) BatchSize() uint64 { return BundleBatchSize }

func (s *BundleStage) Setup(startBlock uint64) error {
	return nil
}

// findInitialPrice locates the most recent Sync strictly before
// startBlock for one pair, matching _find_initial_price.
func (s *BundleStage) findInitialPrice(startBlock uint64, addr common.Address, invert bool) (priceInfo, error) {
	var sync store.Sync
	err := s.db.
		Joins("JOIN transactions ON transactions.id = syncs.transaction_id").
		Joins("JOIN blocks ON blocks.id = transactions.block_id").
		Where("blocks.number < ? AND syncs.pair_address = ?", startBlock, addr.Hex()).
		Order("blocks.number desc, syncs.log_index desc").
		Limit(1).
		First(&sync).Error

	if gorm.IsRecordNotFoundError(err) {
		return priceInfo{price: decimal.Zero, weight: decimal.Zero}, nil
	}
	if err != nil {
		return priceInfo{}, errors.Wrap(err, "processor: find initial price failed")
	}
	return calcPrice(sync.Reserve0, sync.Reserve1, invert)
}

// initPrices seeds the price cache and emits the "transition" bundle
// row for the block immediately preceding startBlock, matching
// _init_prices. Idempotent: if a transition bundle already exists for
// that block it is skipped, but its stored price must match the
// freshly computed one (_init_prices' assert bundle.nativePrice == price).
func (s *BundleStage) initPrices(startBlock uint64, addrs []common.Address) ([]*store.Bundle, error) {
	s.prices = make(map[common.Address]priceInfo, len(addrs))
	for _, addr := range addrs {
		pi, err := s.findInitialPrice(startBlock, addr, s.pairWeights[addr])
		if err != nil {
			return nil, err
		}
		s.prices[addr] = pi
	}

	totalWeight := decimal.Zero
	for _, pi := range s.prices {
		totalWeight = totalWeight.Add(pi.weight)
	}

	var price decimal.Decimal
	if totalWeight.GreaterThan(decimal.Zero) {
		price = calcWeightedAverage(s.prices)
	} else {
		price = s.defaultPrice.Round(xdecimal.AmountScale)
	}

	var block store.Block
	err := s.db.Where("number < ?", startBlock).Order("number desc").Limit(1).First(&block).Error
	hasBlock := err == nil
	if err != nil && !gorm.IsRecordNotFoundError(err) {
		return nil, errors.Wrap(err, "processor: find transition block failed")
	}

	if hasBlock {
		var existing store.Bundle
		err := s.db.Where("block_id = ? AND log_index = ?", block.ID, transitionLogIndex).First(&existing).Error
		if err == nil {
			if !existing.NativePrice.Equal(price) {
				return nil, errors.Errorf("processor: transition bundle price mismatch at block %d: stored %s, computed %s",
					block.Number, existing.NativePrice, price)
			}
			return nil, nil
		}
		if !gorm.IsRecordNotFoundError(err) {
			return nil, errors.Wrap(err, "processor: lookup transition bundle failed")
		}
	}

	b := &store.Bundle{NativePrice: price, LogIndex: transitionLogIndex}
	if hasBlock {
		b.BlockID = block.ID
	}
	return []*store.Bundle{b}, nil
}

// processRange emits one bundle row per Sync event in [startBlock,
// endBlock] whose pair is tracked, matching _process.
func (s *BundleStage) processRange(startBlock, endBlock uint64, addrs []common.Address) ([]*store.Bundle, error) {
	if len(addrs) == 0 {
		return nil, nil
	}
	hexAddrs := make([]string, len(addrs))
	for i, a := range addrs {
		hexAddrs[i] = a.Hex()
	}

	rows, err := s.db.
		Table("syncs").
		Select("syncs.*").
		Joins("JOIN transactions ON transactions.id = syncs.transaction_id").
		Joins("JOIN blocks ON blocks.id = transactions.block_id").
		Where("blocks.number BETWEEN ? AND ?", startBlock, endBlock).
		Where("syncs.pair_address IN (?)", hexAddrs).
		Order("blocks.number asc, syncs.log_index asc").
		Rows()
	if err != nil {
		return nil, errors.Wrap(err, "processor: query syncs in range failed")
	}
	defer rows.Close()

	var objects []*store.Bundle
	for rows.Next() {
		var sync store.Sync
		if err := s.db.ScanRows(rows, &sync); err != nil {
			return nil, errors.Wrap(err, "processor: scan sync row failed")
		}

		addr := common.HexToAddress(sync.PairAddress)
		invert := s.pairWeights[addr]
		pi, err := calcPrice(sync.Reserve0, sync.Reserve1, invert)
		if err != nil {
			return nil, err
		}
		s.prices[addr] = pi

		price := calcWeightedAverage(s.prices)

		var tx store.Transaction
		if err := s.db.First(&tx, sync.TransactionID).Error; err != nil {
			return nil, errors.Wrap(err, "processor: resolve sync transaction failed")
		}

		objects = append(objects, &store.Bundle{
			NativePrice: price,
			BlockID:     tx.BlockID,
			LogIndex:    int64(sync.LogIndex),
		})
	}
	return objects, nil
}

func (s *BundleStage) Process(startBlock, endBlock uint64) ([]interface{}, error) {
	if startBlock > endBlock {
		return nil, errors.New("processor: bundle stage requires start_block <= end_block")
	}

	addrs := make([]common.Address, 0, len(s.pairWeights))
	for addr := range s.pairWeights {
		addrs = append(addrs, addr)
	}

	transition, err := s.initPrices(startBlock, addrs)
	if err != nil {
		return nil, err
	}
	rows, err := s.processRange(startBlock, endBlock, addrs)
	if err != nil {
		return nil, err
	}

	out := make([]interface{}, 0, len(transition)+len(rows))
	for _, b := range transition {
		out = append(out, b)
	}
	for _, b := range rows {
		out = append(out, b)
	}
	return out, nil
}
