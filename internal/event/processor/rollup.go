package processor

import (
	"github.com/jinzhu/gorm"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/rikublock/xquery2/internal/store"
)

const (
	secondsPerHour = 3600
	secondsPerDay  = 86400
)

// PairHourStage buckets Sync activity per pair into hourStartUnix =
// hourIndex*3600 rows, keeping the last reserves seen in each hour;
// Swap volumes are not aggregated. Supplements the reference design's "other stages exist,
// same shape" note.
type PairHourStage struct {
	db *gorm.DB
}

func NewPairHourStage(db *gorm.DB) *PairHourStage { return &PairHourStage{db: db} }

func (s *PairHourStage) Name() string               { return "pair_hour" }
func (s *PairHourStage) Setup(startBlock uint64) error { return nil }
func (s *PairHourStage) BatchSize() uint64               { return 0 }

func (s *PairHourStage) Process(startBlock, endBlock uint64) ([]interface{}, error) {
	var pairs []store.Pair
	if err := s.db.Find(&pairs).Error; err != nil {
		return nil, errors.Wrap(err, "processor: list pairs for hour rollup failed")
	}

	var objects []interface{}
	for _, pair := range pairs {
		rows, err := s.syncsInRange(pair.Address, startBlock, endBlock)
		if err != nil {
			return nil, err
		}
		buckets := bucketByWindow(rows, secondsPerHour)
		for hourStart, last := range buckets {
			var hd store.PairHourData
			err := s.db.Where(store.PairHourData{HourStartUnix: hourStart, PairAddress: pair.Address}).First(&hd).Error
			if err != nil && !gorm.IsRecordNotFoundError(err) {
				return nil, errors.Wrap(err, "processor: lookup pair hour data failed")
			}
			hd.HourStartUnix = hourStart
			hd.PairAddress = pair.Address
			hd.Reserve0 = last.Reserve0
			hd.Reserve1 = last.Reserve1
			objects = append(objects, &hd)
		}
	}
	return objects, nil
}

type syncSample struct {
	Timestamp uint64          `gorm:"column:block_timestamp"`
	Reserve0  decimal.Decimal `gorm:"column:reserve0"`
	Reserve1  decimal.Decimal `gorm:"column:reserve1"`
}

func (s *PairHourStage) syncsInRange(pairAddress string, startBlock, endBlock uint64) ([]syncSample, error) {
	var out []syncSample
	err := s.db.
		Table("syncs").
		Select("syncs.reserve0, syncs.reserve1, blocks.timestamp as block_timestamp").
		Joins("JOIN transactions ON transactions.id = syncs.transaction_id").
		Joins("JOIN blocks ON blocks.id = transactions.block_id").
		Where("syncs.pair_address = ? AND blocks.number BETWEEN ? AND ?", pairAddress, startBlock, endBlock).
		Order("blocks.number asc, syncs.log_index asc").
		Scan(&out).Error
	if err != nil {
		return nil, errors.Wrap(err, "processor: query syncs for rollup failed")
	}
	return out, nil
}

// bucketByWindow groups samples into window-aligned buckets, keeping
// the last sample observed per bucket (reserves are a running state,
// not a sum).
func bucketByWindow(samples []syncSample, windowSeconds uint64) map[uint64]syncSample {
	buckets := make(map[uint64]syncSample)
	for _, s := range samples {
		bucketStart := (s.Timestamp / windowSeconds) * windowSeconds
		buckets[bucketStart] = s
	}
	return buckets
}

// PairDayStage is the day-granularity twin of PairHourStage.
type PairDayStage struct {
	hour *PairHourStage
}

func NewPairDayStage(db *gorm.DB) *PairDayStage { return &PairDayStage{hour: NewPairHourStage(db)} }

func (s *PairDayStage) Name() string               { return "pair_day" }
func (s *PairDayStage) Setup(startBlock uint64) error { return nil }
func (s *PairDayStage) BatchSize() uint64               { return 0 }

func (s *PairDayStage) Process(startBlock, endBlock uint64) ([]interface{}, error) {
	var pairs []store.Pair
	if err := s.hour.db.Find(&pairs).Error; err != nil {
		return nil, errors.Wrap(err, "processor: list pairs for day rollup failed")
	}

	var objects []interface{}
	for _, pair := range pairs {
		rows, err := s.hour.syncsInRange(pair.Address, startBlock, endBlock)
		if err != nil {
			return nil, err
		}
		buckets := bucketByWindow(rows, secondsPerDay)
		for dayStart, last := range buckets {
			var dd store.PairDayData
			err := s.hour.db.Where(store.PairDayData{Date: dayStart, PairAddress: pair.Address}).First(&dd).Error
			if err != nil && !gorm.IsRecordNotFoundError(err) {
				return nil, errors.Wrap(err, "processor: lookup pair day data failed")
			}
			dd.Date = dayStart
			dd.PairAddress = pair.Address
			dd.Reserve0 = last.Reserve0
			dd.Reserve1 = last.Reserve1
			objects = append(objects, &dd)
		}
	}
	return objects, nil
}

// TokenDayStage writes one row per token for each day touched by the
// range, copying the token's current TotalLiquidity; no daily volume is
// computed.
type TokenDayStage struct {
	db *gorm.DB
}

func NewTokenDayStage(db *gorm.DB) *TokenDayStage { return &TokenDayStage{db: db} }

func (s *TokenDayStage) Name() string               { return "token_day" }
func (s *TokenDayStage) Setup(startBlock uint64) error { return nil }
func (s *TokenDayStage) BatchSize() uint64               { return 0 }

func (s *TokenDayStage) Process(startBlock, endBlock uint64) ([]interface{}, error) {
	var tokens []store.Token
	if err := s.db.Find(&tokens).Error; err != nil {
		return nil, errors.Wrap(err, "processor: list tokens for day rollup failed")
	}

	var blocks []store.Block
	if err := s.db.Where("number BETWEEN ? AND ?", startBlock, endBlock).Find(&blocks).Error; err != nil {
		return nil, errors.Wrap(err, "processor: list blocks for day rollup failed")
	}
	days := make(map[uint64]struct{})
	for _, b := range blocks {
		days[(b.Timestamp/secondsPerDay)*secondsPerDay] = struct{}{}
	}

	var objects []interface{}
	for _, token := range tokens {
		for day := range days {
			var td store.TokenDayData
			err := s.db.Where(store.TokenDayData{Date: day, TokenID: token.ID}).First(&td).Error
			if err != nil && !gorm.IsRecordNotFoundError(err) {
				return nil, errors.Wrap(err, "processor: lookup token day data failed")
			}
			td.Date = day
			td.TokenID = token.ID
			td.TotalLiquidityToken = token.TotalLiquidity
			objects = append(objects, &td)
		}
	}
	return objects, nil
}

// ExchangeDayStage aggregates exchange-wide daily stats, keyed by
// dayIndex = date/86400.
type ExchangeDayStage struct {
	db             *gorm.DB
	factoryAddress string
}

func NewExchangeDayStage(db *gorm.DB, factoryAddress string) *ExchangeDayStage {
	return &ExchangeDayStage{db: db, factoryAddress: factoryAddress}
}

func (s *ExchangeDayStage) Name() string               { return "exchange_day" }
func (s *ExchangeDayStage) Setup(startBlock uint64) error { return nil }
func (s *ExchangeDayStage) BatchSize() uint64               { return 0 }

func (s *ExchangeDayStage) Process(startBlock, endBlock uint64) ([]interface{}, error) {
	var factory store.Factory
	if err := s.db.Where(store.Factory{Address: s.factoryAddress}).First(&factory).Error; err != nil {
		return nil, errors.Wrap(err, "processor: exchange day factory lookup failed")
	}

	var blocks []store.Block
	if err := s.db.Where("number BETWEEN ? AND ?", startBlock, endBlock).Find(&blocks).Error; err != nil {
		return nil, errors.Wrap(err, "processor: list blocks for exchange day rollup failed")
	}

	days := make(map[uint64]struct{})
	for _, b := range blocks {
		days[(b.Timestamp / secondsPerDay)] = struct{}{}
	}

	var objects []interface{}
	for dayIndex := range days {
		var edd store.ExchangeDayData
		err := s.db.Where(store.ExchangeDayData{Identifier: dayIndex}).First(&edd).Error
		if err != nil && !gorm.IsRecordNotFoundError(err) {
			return nil, errors.Wrap(err, "processor: lookup exchange day data failed")
		}
		edd.Identifier = dayIndex
		edd.Date = dayIndex * secondsPerDay
		edd.TotalVolumeNative = factory.TotalVolumeNative
		edd.TotalLiquidityNative = factory.TotalLiquidityNative
		edd.TotalVolumeUSD = factory.TotalVolumeUSD
		edd.TotalLiquidityUSD = factory.TotalLiquidityUSD
		edd.TxCount = factory.TxCount
		objects = append(objects, &edd)
	}
	return objects, nil
}
