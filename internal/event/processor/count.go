package processor

import (
	"github.com/jinzhu/gorm"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/rikublock/xquery2/internal/store"
)

// CountStage aggregates transaction/pair counters and running supply
// and volume totals over committed Mint/Burn/Swap rows, grounded on
// EventProcessorStageExchange_Count.
type CountStage struct {
	db             *gorm.DB
	factoryAddress string
}

func NewCountStage(db *gorm.DB, factoryAddress string) *CountStage {
	return &CountStage{db: db, factoryAddress: factoryAddress}
}

func (s *CountStage) Name() string { return "count" }

func (s *CountStage) Setup(startBlock uint64) error { return nil }

func (s *CountStage) BatchSize() uint64 { return 0 }

func (s *CountStage) aggregateFactory(startBlock, endBlock uint64) (*store.Factory, error) {
	var factory store.Factory
	if err := s.db.Where(store.Factory{Address: s.factoryAddress}).First(&factory).Error; err != nil {
		return nil, errors.Wrap(err, "processor: factory lookup failed")
	}

	var pairCount uint64
	if err := s.db.Model(&store.Pair{}).
		Joins("JOIN blocks ON blocks.id = pairs.block_id").
		Where("blocks.number BETWEEN ? AND ?", startBlock, endBlock).
		Count(&pairCount).Error; err != nil {
		return nil, errors.Wrap(err, "processor: count pairs failed")
	}
	factory.PairCount += pairCount

	for _, table := range []string{"mints", "burns", "swaps"} {
		var n uint64
		if err := s.db.Table(table).
			Joins("JOIN transactions ON transactions.id = "+table+".transaction_id").
			Joins("JOIN blocks ON blocks.id = transactions.block_id").
			Where("blocks.number BETWEEN ? AND ?", startBlock, endBlock).
			Count(&n).Error; err != nil {
			return nil, errors.Wrapf(err, "processor: count %s failed", table)
		}
		factory.TxCount += n
	}

	return &factory, nil
}

func (s *CountStage) aggregatePairs(startBlock, endBlock uint64) ([]*store.Pair, error) {
	var pairs []store.Pair
	if err := s.db.Order("id").Find(&pairs).Error; err != nil {
		return nil, errors.Wrap(err, "processor: list pairs failed")
	}

	out := make([]*store.Pair, 0, len(pairs))
	for i := range pairs {
		pair := &pairs[i]

		var mintCount uint64
		var mintValue, mintFeeValue decimal.Decimal
		row := s.db.Table("mints").
			Select("COUNT(*), COALESCE(SUM(liquidity), 0), COALESCE(SUM(fee_liquidity), 0)").
			Joins("JOIN transactions ON transactions.id = mints.transaction_id").
			Joins("JOIN blocks ON blocks.id = transactions.block_id").
			Where("mints.pair_address = ? AND blocks.number BETWEEN ? AND ?", pair.Address, startBlock, endBlock).
			Row()
		if err := row.Scan(&mintCount, &mintValue, &mintFeeValue); err != nil {
			return nil, errors.Wrap(err, "processor: aggregate mints failed")
		}
		pair.TxCount += mintCount
		pair.TotalSupply = pair.TotalSupply.Add(mintValue).Add(mintFeeValue)

		var burnCount uint64
		var burnValue, burnFeeValue decimal.Decimal
		row = s.db.Table("burns").
			Select("COUNT(*), COALESCE(SUM(liquidity), 0), COALESCE(SUM(fee_liquidity), 0)").
			Joins("JOIN transactions ON transactions.id = burns.transaction_id").
			Joins("JOIN blocks ON blocks.id = transactions.block_id").
			Where("burns.pair_address = ? AND blocks.number BETWEEN ? AND ?", pair.Address, startBlock, endBlock).
			Row()
		if err := row.Scan(&burnCount, &burnValue, &burnFeeValue); err != nil {
			return nil, errors.Wrap(err, "processor: aggregate burns failed")
		}
		pair.TxCount += burnCount
		pair.TotalSupply = pair.TotalSupply.Sub(burnValue).Add(burnFeeValue)
		if pair.TotalSupply.IsNegative() {
			return nil, errors.Errorf("processor: pair %s totalSupply went negative", pair.Address)
		}

		var swapCount uint64
		var swapValue0, swapValue1 decimal.Decimal
		row = s.db.Table("swaps").
			Select("COUNT(*), COALESCE(SUM(amount0_out + amount0_in), 0), COALESCE(SUM(amount1_out + amount1_in), 0)").
			Joins("JOIN transactions ON transactions.id = swaps.transaction_id").
			Joins("JOIN blocks ON blocks.id = transactions.block_id").
			Where("swaps.pair_address = ? AND blocks.number BETWEEN ? AND ?", pair.Address, startBlock, endBlock).
			Row()
		if err := row.Scan(&swapCount, &swapValue0, &swapValue1); err != nil {
			return nil, errors.Wrap(err, "processor: aggregate swaps failed")
		}
		pair.TxCount += swapCount
		pair.VolumeToken0 = pair.VolumeToken0.Add(swapValue0)
		pair.VolumeToken1 = pair.VolumeToken1.Add(swapValue1)

		var lpCount uint64
		if err := s.db.Model(&store.LiquidityPosition{}).
			Where("pair_address = ? AND liquidity_token_balance > 0", pair.Address).
			Count(&lpCount).Error; err != nil {
			return nil, errors.Wrap(err, "processor: count liquidity positions failed")
		}
		pair.LiquidityProviderCount = lpCount

		out = append(out, pair)
	}
	return out, nil
}

func (s *CountStage) aggregateTokens(startBlock, endBlock uint64) ([]*store.Token, error) {
	var tokens []store.Token
	if err := s.db.Order("id").Find(&tokens).Error; err != nil {
		return nil, errors.Wrap(err, "processor: list tokens failed")
	}

	out := make([]*store.Token, 0, len(tokens))
	for i := range tokens {
		token := &tokens[i]

		for _, table := range []string{"mints", "burns"} {
			var n uint64
			if err := s.db.Table(table).
				Joins("JOIN pairs ON pairs.address = " + table + ".pair_address").
				Joins("JOIN transactions ON transactions.id = "+table+".transaction_id").
				Joins("JOIN blocks ON blocks.id = transactions.block_id").
				Where("(pairs.token0_address = ? OR pairs.token1_address = ?) AND blocks.number BETWEEN ? AND ?",
					token.Address, token.Address, startBlock, endBlock).
				Count(&n).Error; err != nil {
				return nil, errors.Wrapf(err, "processor: count token %s failed", table)
			}
			token.TxCount += n
		}

		var swap0Count, swap1Count uint64
		var swap0Value, swap1Value decimal.Decimal
		row := s.db.Table("swaps").
			Select("COUNT(*), COALESCE(SUM(amount0_out + amount0_in), 0)").
			Joins("JOIN pairs ON pairs.address = swaps.pair_address").
			Joins("JOIN transactions ON transactions.id = swaps.transaction_id").
			Joins("JOIN blocks ON blocks.id = transactions.block_id").
			Where("pairs.token0_address = ? AND blocks.number BETWEEN ? AND ?", token.Address, startBlock, endBlock).
			Row()
		if err := row.Scan(&swap0Count, &swap0Value); err != nil {
			return nil, errors.Wrap(err, "processor: aggregate token0 swaps failed")
		}
		token.TxCount += swap0Count
		token.TradeVolume = token.TradeVolume.Add(swap0Value)

		row = s.db.Table("swaps").
			Select("COUNT(*), COALESCE(SUM(amount1_out + amount1_in), 0)").
			Joins("JOIN pairs ON pairs.address = swaps.pair_address").
			Joins("JOIN transactions ON transactions.id = swaps.transaction_id").
			Joins("JOIN blocks ON blocks.id = transactions.block_id").
			Where("pairs.token1_address = ? AND blocks.number BETWEEN ? AND ?", token.Address, startBlock, endBlock).
			Row()
		if err := row.Scan(&swap1Count, &swap1Value); err != nil {
			return nil, errors.Wrap(err, "processor: aggregate token1 swaps failed")
		}
		token.TxCount += swap1Count
		token.TradeVolume = token.TradeVolume.Add(swap1Value)

		out = append(out, token)
	}
	return out, nil
}

func (s *CountStage) Process(startBlock, endBlock uint64) ([]interface{}, error) {
	factory, err := s.aggregateFactory(startBlock, endBlock)
	if err != nil {
		return nil, err
	}
	pairs, err := s.aggregatePairs(startBlock, endBlock)
	if err != nil {
		return nil, err
	}
	tokens, err := s.aggregateTokens(startBlock, endBlock)
	if err != nil {
		return nil, err
	}

	objects := make([]interface{}, 0, 1+len(pairs)+len(tokens))
	objects = append(objects, factory)
	for _, p := range pairs {
		objects = append(objects, p)
	}
	for _, t := range tokens {
		objects = append(objects, t)
	}
	return objects, nil
}
