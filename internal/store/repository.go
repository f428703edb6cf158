package store

import (
	"context"

	lru "github.com/hashicorp/golang-lru"
	"github.com/jinzhu/gorm"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// MaxTokenDecimals is the fatal-assertion threshold for Token.Decimals
// (the reference design: "Decimals > 38 is a fatal assertion").
const MaxTokenDecimals = 38

// MinimumLiquidity is the dust amount permanently locked on a pair's
// first mint, used by the indexer to drop the corresponding Transfer.
const MinimumLiquidity = 1000

// TokenMetadata is what the repository needs from the chain to
// materialize a never-before-seen Token row.
type TokenMetadata struct {
	Symbol      string
	Name        string
	Decimals    uint8
	TotalSupply decimal.Decimal
}

// TokenMetadataFetcher fetches RC20 metadata via eth_call. Implemented
// by the rpcclient package; kept as a narrow interface here to avoid a
// store -> rpcclient import cycle.
type TokenMetadataFetcher interface {
	FetchTokenMetadata(ctx context.Context, address string) (TokenMetadata, error)
}

// Repository provides idempotent get-or-create access to the entities
// indexer workers may create directly: Block, Transaction, Token, User,
// Factory. Ordering per the reference design: process-local cache -> SELECT ->
// INSERT -> on unique-constraint violation, rollback and re-SELECT (a
// sibling worker won the race).
type Repository struct {
	db      *gorm.DB
	fetcher TokenMetadataFetcher

	blocks  *lru.Cache
	txs     *lru.Cache
	tokens  *lru.Cache
	users   *lru.Cache
	factories *lru.Cache
}

// NewRepository builds a Repository with bounded per-worker memoization
// caches (hashicorp/golang-lru), matching the reference's
// process-local-cache-first lookup order.
func NewRepository(db *gorm.DB, fetcher TokenMetadataFetcher, cacheSize int) (*Repository, error) {
	r := &Repository{db: db, fetcher: fetcher}
	var err error
	if r.blocks, err = lru.New(cacheSize); err != nil {
		return nil, err
	}
	if r.txs, err = lru.New(cacheSize); err != nil {
		return nil, err
	}
	if r.tokens, err = lru.New(cacheSize); err != nil {
		return nil, err
	}
	if r.users, err = lru.New(cacheSize); err != nil {
		return nil, err
	}
	if r.factories, err = lru.New(cacheSize); err != nil {
		return nil, err
	}
	return r, nil
}

// GetOrCreateBlock fetches a Block by hash, inserting it if absent.
func (r *Repository) GetOrCreateBlock(hash string, number, timestamp uint64) (*Block, error) {
	if v, ok := r.blocks.Get(hash); ok {
		return v.(*Block), nil
	}

	var b Block
	err := r.db.Where(Block{Hash: hash}).First(&b).Error
	switch {
	case err == nil:
		r.blocks.Add(hash, &b)
		return &b, nil
	case gorm.IsRecordNotFoundError(err):
		b = Block{Hash: hash, Number: number, Timestamp: timestamp}
		if createErr := r.db.Create(&b).Error; createErr != nil {
			// a sibling worker may have inserted concurrently: re-select
			if reselectErr := r.db.Where(Block{Hash: hash}).First(&b).Error; reselectErr == nil {
				r.blocks.Add(hash, &b)
				return &b, nil
			}
			return nil, errors.Wrap(createErr, "store: create block failed")
		}
		r.blocks.Add(hash, &b)
		return &b, nil
	default:
		return nil, errors.Wrap(err, "store: lookup block failed")
	}
}

// GetOrCreateTransaction fetches a Transaction by hash, inserting it if absent.
func (r *Repository) GetOrCreateTransaction(hash, from string, blockID uint, timestamp uint64) (*Transaction, error) {
	if v, ok := r.txs.Get(hash); ok {
		return v.(*Transaction), nil
	}

	var tx Transaction
	err := r.db.Where(Transaction{Hash: hash}).First(&tx).Error
	switch {
	case err == nil:
		r.txs.Add(hash, &tx)
		return &tx, nil
	case gorm.IsRecordNotFoundError(err):
		tx = Transaction{Hash: hash, From: from, BlockID: blockID, Timestamp: timestamp}
		if createErr := r.db.Create(&tx).Error; createErr != nil {
			if reselectErr := r.db.Where(Transaction{Hash: hash}).First(&tx).Error; reselectErr == nil {
				r.txs.Add(hash, &tx)
				return &tx, nil
			}
			return nil, errors.Wrap(createErr, "store: create transaction failed")
		}
		r.txs.Add(hash, &tx)
		return &tx, nil
	default:
		return nil, errors.Wrap(err, "store: lookup transaction failed")
	}
}

// GetOrCreateUser fetches a User by address, inserting it if absent.
func (r *Repository) GetOrCreateUser(address string) (*User, error) {
	if v, ok := r.users.Get(address); ok {
		return v.(*User), nil
	}

	var u User
	err := r.db.Where(User{Address: address}).First(&u).Error
	switch {
	case err == nil:
		r.users.Add(address, &u)
		return &u, nil
	case gorm.IsRecordNotFoundError(err):
		u = User{Address: address, USDSwapped: decimal.Zero}
		if createErr := r.db.Create(&u).Error; createErr != nil {
			if reselectErr := r.db.Where(User{Address: address}).First(&u).Error; reselectErr == nil {
				r.users.Add(address, &u)
				return &u, nil
			}
			return nil, errors.Wrap(createErr, "store: create user failed")
		}
		r.users.Add(address, &u)
		return &u, nil
	default:
		return nil, errors.Wrap(err, "store: lookup user failed")
	}
}

// GetOrCreateFactory fetches a Factory by address, inserting it if absent.
func (r *Repository) GetOrCreateFactory(address string) (*Factory, error) {
	if v, ok := r.factories.Get(address); ok {
		return v.(*Factory), nil
	}

	var f Factory
	err := r.db.Where(Factory{Address: address}).First(&f).Error
	switch {
	case err == nil:
		r.factories.Add(address, &f)
		return &f, nil
	case gorm.IsRecordNotFoundError(err):
		f = Factory{
			Address:            address,
			TotalVolumeUSD:     decimal.Zero,
			TotalVolumeNative:  decimal.Zero,
			UntrackedVolumeUSD: decimal.Zero,
			TotalLiquidityUSD:  decimal.Zero,
			TotalLiquidityNative: decimal.Zero,
		}
		if createErr := r.db.Create(&f).Error; createErr != nil {
			if reselectErr := r.db.Where(Factory{Address: address}).First(&f).Error; reselectErr == nil {
				r.factories.Add(address, &f)
				return &f, nil
			}
			return nil, errors.Wrap(createErr, "store: create factory failed")
		}
		r.factories.Add(address, &f)
		return &f, nil
	default:
		return nil, errors.Wrap(err, "store: lookup factory failed")
	}
}

// GetOrCreateToken fetches a Token by address, fetching RC20 metadata
// via RPC on first sight. A metadata fetch failure downgrades the
// token to the "unknown" placeholder rather than failing the job.
func (r *Repository) GetOrCreateToken(ctx context.Context, address string) (*Token, error) {
	if v, ok := r.tokens.Get(address); ok {
		return v.(*Token), nil
	}

	var t Token
	err := r.db.Where(Token{Address: address}).First(&t).Error
	switch {
	case err == nil:
		r.tokens.Add(address, &t)
		return &t, nil
	case gorm.IsRecordNotFoundError(err):
		meta, metaErr := r.fetcher.FetchTokenMetadata(ctx, address)
		if metaErr != nil {
			meta = TokenMetadata{Symbol: "unknown", Name: "unknown", Decimals: 0, TotalSupply: decimal.Zero}
		}
		if meta.Decimals > MaxTokenDecimals {
			return nil, errors.Errorf("store: token %s reports %d decimals, exceeds maximum of %d", address, meta.Decimals, MaxTokenDecimals)
		}
		t = Token{
			Address:     address,
			Symbol:      meta.Symbol,
			Name:        meta.Name,
			Decimals:    meta.Decimals,
			TotalSupply: meta.TotalSupply,

			TradeVolume:        decimal.Zero,
			TradeVolumeUSD:     decimal.Zero,
			UntrackedVolumeUSD: decimal.Zero,
			TotalLiquidity:     decimal.Zero,
			DerivedNative:      decimal.Zero,
		}
		if createErr := r.db.Create(&t).Error; createErr != nil {
			if reselectErr := r.db.Where(Token{Address: address}).First(&t).Error; reselectErr == nil {
				r.tokens.Add(address, &t)
				return &t, nil
			}
			return nil, errors.Wrap(createErr, "store: create token failed")
		}
		r.tokens.Add(address, &t)
		return &t, nil
	default:
		return nil, errors.Wrap(err, "store: lookup token failed")
	}
}

// GetPairByAddress is a plain read used by load_pair's cross-worker
// polling loop in the event indexer; not memoized since visibility
// must always hit the database to observe a sibling worker's commit.
func (r *Repository) GetPairByAddress(address string) (*Pair, error) {
	var p Pair
	err := r.db.Where(Pair{Address: address}).First(&p).Error
	if gorm.IsRecordNotFoundError(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "store: lookup pair failed")
	}
	return &p, nil
}
