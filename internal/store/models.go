// Package store defines the durable entity schema (gorm models,
// matching xquery/db/orm/exchange.py's SQLAlchemy models) and the
// idempotent entity repository used by indexer workers.
package store

import (
	"time"

	"github.com/shopspring/decimal"
)

// BaseModel carries the surrogate key and timestamps every table uses,
// matching the reference's BaseModel mixin.
type BaseModel struct {
	ID        uint `gorm:"primary_key"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Block is immutable once observed.
type Block struct {
	BaseModel
	Hash      string `gorm:"type:varchar(66);unique_index"`
	Number    uint64 `gorm:"index"`
	Timestamp uint64
}

// Transaction is immutable once observed.
type Transaction struct {
	BaseModel
	Hash      string `gorm:"type:varchar(66);unique_index"`
	From      string `gorm:"type:varchar(42)"`
	BlockID   uint
	Block     Block `gorm:"foreignkey:BlockID"`
	Timestamp uint64
}

// Token mirrors RC20 contract metadata plus running aggregates mutated
// exclusively by processor stages.
type Token struct {
	BaseModel
	Address  string `gorm:"type:varchar(42);unique_index"`
	Symbol   string `gorm:"type:varchar(16)"`
	Name     string `gorm:"type:varchar(64)"`
	Decimals uint8

	TotalSupply decimal.Decimal `gorm:"type:numeric(78,0)"`

	TradeVolume         decimal.Decimal `gorm:"type:numeric(78,0)"`
	TradeVolumeUSD      decimal.Decimal `gorm:"type:numeric(78,0)"`
	UntrackedVolumeUSD  decimal.Decimal `gorm:"type:numeric(78,0)"`
	TxCount             uint64
	TotalLiquidity      decimal.Decimal `gorm:"type:numeric(78,0)"`
	DerivedNative       decimal.Decimal `gorm:"type:numeric(78,0)"`
}

// Factory is mutated by processor stages (pairCount, volumes).
type Factory struct {
	BaseModel
	Address string `gorm:"type:varchar(42);unique_index"`

	PairCount uint64

	TotalVolumeUSD     decimal.Decimal `gorm:"type:numeric(78,0)"`
	TotalVolumeNative  decimal.Decimal `gorm:"type:numeric(78,0)"`
	UntrackedVolumeUSD decimal.Decimal `gorm:"type:numeric(78,0)"`

	TotalLiquidityUSD    decimal.Decimal `gorm:"type:numeric(78,0)"`
	TotalLiquidityNative decimal.Decimal `gorm:"type:numeric(78,0)"`

	TxCount uint64
}

// Pair is created on PairCreated; token0 != token1 must always hold.
type Pair struct {
	BaseModel
	Address string `gorm:"type:varchar(42);unique_index"`

	Token0Address string `gorm:"type:varchar(42);index"`
	Token1Address string `gorm:"type:varchar(42);index"`

	Reserve0    decimal.Decimal `gorm:"type:numeric(78,0)"`
	Reserve1    decimal.Decimal `gorm:"type:numeric(78,0)"`
	TotalSupply decimal.Decimal `gorm:"type:numeric(78,0)"`

	ReserveNative        decimal.Decimal `gorm:"type:numeric(78,0)"`
	ReserveUSD           decimal.Decimal `gorm:"type:numeric(78,0)"`
	TrackedReserveNative decimal.Decimal `gorm:"type:numeric(78,0)"`

	Token0Price decimal.Decimal `gorm:"type:numeric(78,0)"`
	Token1Price decimal.Decimal `gorm:"type:numeric(78,0)"`

	VolumeToken0       decimal.Decimal `gorm:"type:numeric(78,0)"`
	VolumeToken1       decimal.Decimal `gorm:"type:numeric(78,0)"`
	VolumeUSD          decimal.Decimal `gorm:"type:numeric(78,0)"`
	UntrackedVolumeUSD decimal.Decimal `gorm:"type:numeric(78,0)"`
	TxCount            uint64

	CreatedAtTimestamp   uint64
	CreatedAtBlockNumber uint64

	BlockID uint

	LiquidityProviderCount uint64
}

// User is an exchange participant wallet.
type User struct {
	BaseModel
	Address    string          `gorm:"type:varchar(42);unique_index"`
	USDSwapped decimal.Decimal `gorm:"type:numeric(78,0)"`
}

// LiquidityPosition is the mutable (user, pair) LP-token balance.
type LiquidityPosition struct {
	BaseModel
	UserID                 uint
	PairAddress            string `gorm:"type:varchar(42);index"`
	LiquidityTokenBalance  decimal.Decimal `gorm:"type:numeric(78,0)"`
}

// LiquidityPositionSnapshot is immutable once created.
type LiquidityPositionSnapshot struct {
	BaseModel
	BlockID             uint
	Timestamp           uint64
	BlockHeight          uint64
	LiquidityPositionID uint
	UserID              uint
	PairAddress         string `gorm:"type:varchar(42);index"`

	Token0PriceUSD            decimal.Decimal `gorm:"type:numeric(78,0)"`
	Token1PriceUSD            decimal.Decimal `gorm:"type:numeric(78,0)"`
	Reserve0                  decimal.Decimal `gorm:"type:numeric(78,0)"`
	Reserve1                  decimal.Decimal `gorm:"type:numeric(78,0)"`
	ReserveUSD                decimal.Decimal `gorm:"type:numeric(78,0)"`
	LiquidityTokenTotalSupply decimal.Decimal `gorm:"type:numeric(78,0)"`
	LiquidityTokenBalance     decimal.Decimal `gorm:"type:numeric(78,0)"`
}

// Transfer is a temporary event record consumed by processor stages.
type Transfer struct {
	BaseModel
	TransactionID uint
	PairAddress   string          `gorm:"type:varchar(42);index"`
	From          string          `gorm:"type:varchar(42)"`
	To            string          `gorm:"type:varchar(42)"`
	Value         decimal.Decimal `gorm:"type:numeric(78,18)"`
	LogIndex      uint
}

// Mint is produced by the indexer, committed only by the coordinator.
type Mint struct {
	BaseModel
	TransactionID uint
	PairAddress   string `gorm:"type:varchar(42);index"`

	Liquidity decimal.Decimal `gorm:"type:numeric(78,18)"`

	Sender   string
	Amount0  decimal.Decimal `gorm:"type:numeric(78,18)"`
	Amount1  decimal.Decimal `gorm:"type:numeric(78,18)"`
	To       string          `gorm:"type:varchar(42)"`
	LogIndex uint
	AmountUSD decimal.Decimal `gorm:"type:numeric(78,18)"`

	FeeTo         string
	FeeLiquidity  decimal.Decimal `gorm:"type:numeric(78,18)"`
}

// Burn is produced by the indexer, committed only by the coordinator.
// NeedsComplete marks a Burn placeholder awaiting its Burn event.
type Burn struct {
	BaseModel
	TransactionID uint
	PairAddress   string `gorm:"type:varchar(42);index"`

	Liquidity decimal.Decimal `gorm:"type:numeric(78,18)"`

	Sender   string
	Amount0  decimal.Decimal `gorm:"type:numeric(78,18)"`
	Amount1  decimal.Decimal `gorm:"type:numeric(78,18)"`
	To       string          `gorm:"type:varchar(42)"`
	LogIndex uint
	AmountUSD decimal.Decimal `gorm:"type:numeric(78,18)"`

	NeedsComplete bool

	FeeTo        string
	FeeLiquidity decimal.Decimal `gorm:"type:numeric(78,18)"`
}

// Swap is produced by the indexer, committed only by the coordinator.
type Swap struct {
	BaseModel
	TransactionID uint
	PairAddress   string `gorm:"type:varchar(42);index"`

	Sender     string
	From       string
	Amount0In  decimal.Decimal `gorm:"type:numeric(78,18)"`
	Amount1In  decimal.Decimal `gorm:"type:numeric(78,18)"`
	Amount0Out decimal.Decimal `gorm:"type:numeric(78,18)"`
	Amount1Out decimal.Decimal `gorm:"type:numeric(78,18)"`
	To         string
	LogIndex   uint

	AmountUSD decimal.Decimal `gorm:"type:numeric(78,18)"`
}

// Sync is a temporary event record, the canonical source of instantaneous price.
type Sync struct {
	BaseModel
	TransactionID uint
	PairAddress   string          `gorm:"type:varchar(42);index"`
	Reserve0      decimal.Decimal `gorm:"type:numeric(78,18)"`
	Reserve1      decimal.Decimal `gorm:"type:numeric(78,18)"`
	LogIndex      uint
}

// Bundle records the aggregate native-asset price in USD at a specific
// (block, logIndex). No two Bundle rows may share the same (BlockID,
// LogIndex) pair, the key the coordinator's batched upsert conflicts on.
type Bundle struct {
	BaseModel
	NativePrice decimal.Decimal `gorm:"type:numeric(78,18)"`
	BlockID     uint            `gorm:"unique_index:idx_bundle_block_log"`
	LogIndex    int64           `gorm:"unique_index:idx_bundle_block_log"` // up to 2^31-1 for the synthetic transition bundle
}

// ExchangeDayData accumulates exchange-wide daily stats.
type ExchangeDayData struct {
	BaseModel
	Identifier uint64 `gorm:"unique_index"`
	Date       uint64

	DailyVolumeNative    decimal.Decimal `gorm:"type:numeric(78,0)"`
	DailyVolumeUSD       decimal.Decimal `gorm:"type:numeric(78,0)"`
	DailyVolumeUntracked decimal.Decimal `gorm:"type:numeric(78,0)"`

	TotalVolumeNative    decimal.Decimal `gorm:"type:numeric(78,0)"`
	TotalLiquidityNative decimal.Decimal `gorm:"type:numeric(78,0)"`
	TotalVolumeUSD       decimal.Decimal `gorm:"type:numeric(78,0)"`
	TotalLiquidityUSD    decimal.Decimal `gorm:"type:numeric(78,0)"`

	TxCount uint64
}

// PairHourData accumulates hourly stats per pair; hourStartUnix must
// equal hourIndex*3600.
type PairHourData struct {
	BaseModel
	HourStartUnix uint64 `gorm:"index"`
	PairAddress   string `gorm:"type:varchar(42);index"`

	Reserve0    decimal.Decimal `gorm:"type:numeric(78,0)"`
	Reserve1    decimal.Decimal `gorm:"type:numeric(78,0)"`
	TotalSupply decimal.Decimal `gorm:"type:numeric(78,0)"`
	ReserveUSD  decimal.Decimal `gorm:"type:numeric(78,0)"`

	HourlyVolumeToken0 decimal.Decimal `gorm:"type:numeric(78,0)"`
	HourlyVolumeToken1 decimal.Decimal `gorm:"type:numeric(78,0)"`
	HourlyVolumeUSD    decimal.Decimal `gorm:"type:numeric(78,0)"`
	HourlyTxns         uint64
}

// PairDayData accumulates daily stats per pair.
type PairDayData struct {
	BaseModel
	Date        uint64 `gorm:"index"`
	PairAddress string `gorm:"type:varchar(42);index"`

	Token0ID uint
	Token1ID uint

	Reserve0    decimal.Decimal `gorm:"type:numeric(78,0)"`
	Reserve1    decimal.Decimal `gorm:"type:numeric(78,0)"`
	TotalSupply decimal.Decimal `gorm:"type:numeric(78,0)"`
	ReserveUSD  decimal.Decimal `gorm:"type:numeric(78,0)"`

	DailyVolumeToken0 decimal.Decimal `gorm:"type:numeric(78,0)"`
	DailyVolumeToken1 decimal.Decimal `gorm:"type:numeric(78,0)"`
	DailyVolumeUSD    decimal.Decimal `gorm:"type:numeric(78,0)"`
	DailyTxns         uint64
}

// TokenDayData accumulates daily stats per token.
type TokenDayData struct {
	BaseModel
	Date    uint64 `gorm:"index"`
	TokenID uint

	DailyVolumeToken decimal.Decimal `gorm:"type:numeric(78,0)"`
	DailyVolumeNative decimal.Decimal `gorm:"type:numeric(78,0)"`
	DailyVolumeUSD   decimal.Decimal `gorm:"type:numeric(78,0)"`
	DailyTxns        uint64

	TotalLiquidityToken  decimal.Decimal `gorm:"type:numeric(78,0)"`
	TotalLiquidityNative decimal.Decimal `gorm:"type:numeric(78,0)"`
	TotalLiquidityUSD    decimal.Decimal `gorm:"type:numeric(78,0)"`

	PriceUSD decimal.Decimal `gorm:"type:numeric(78,0)"`
}

// State is a named, durable cursor: one row per logical pipeline stage
// ("indexer", "processor_bundle", "processor_count", ...).
type State struct {
	BaseModel
	Name        string `gorm:"type:varchar(64);unique_index"`
	BlockNumber *uint64
	BlockHash   *string
	Finalized   *uint64
	Discarded   bool
}

// AllModels lists every table for AutoMigrate-style schema setup.
func AllModels() []interface{} {
	return []interface{}{
		&Block{}, &Transaction{}, &Token{}, &Factory{}, &Pair{}, &User{},
		&LiquidityPosition{}, &LiquidityPositionSnapshot{},
		&Transfer{}, &Mint{}, &Burn{}, &Swap{}, &Sync{}, &Bundle{},
		&ExchangeDayData{}, &PairHourData{}, &PairDayData{}, &TokenDayData{},
		&State{},
	}
}
