package rpcclient

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/rikublock/xquery2/internal/store"
	"github.com/shopspring/decimal"
)

// rc20ABI covers the handful of read methods the entity repository
// needs for Token materialization.
const rc20ABI = `[
{"constant":true,"inputs":[],"name":"name","outputs":[{"name":"","type":"string"}],"type":"function"},
{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"type":"function"},
{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"},
{"constant":true,"inputs":[],"name":"totalSupply","outputs":[{"name":"","type":"uint256"}],"type":"function"}
]`

// rc20ABIBytes32 is the legacy bytes32-typed variant some tokens (e.g.
// early MKR-style contracts) expose instead of the string-typed one.
const rc20ABIBytes32 = `[
{"constant":true,"inputs":[],"name":"name","outputs":[{"name":"","type":"bytes32"}],"type":"function"},
{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"bytes32"}],"type":"function"}
]`

// TokenFetcher implements store.TokenMetadataFetcher via eth_call.
type TokenFetcher struct {
	client      *Client
	abi         abi.ABI
	abiBytes32  abi.ABI
}

func NewTokenFetcher(client *Client) (*TokenFetcher, error) {
	parsed, err := abi.JSON(strings.NewReader(rc20ABI))
	if err != nil {
		return nil, errors.Wrap(err, "rpcclient: parse rc20 abi failed")
	}
	parsedBytes32, err := abi.JSON(strings.NewReader(rc20ABIBytes32))
	if err != nil {
		return nil, errors.Wrap(err, "rpcclient: parse rc20 bytes32 abi failed")
	}
	return &TokenFetcher{client: client, abi: parsed, abiBytes32: parsedBytes32}, nil
}

// FetchTokenMetadata implements store.TokenMetadataFetcher. If the
// standard string-typed symbol/name calls revert, the bytes32-typed ABI
// is attempted before giving up, matching the reference design.
func (f *TokenFetcher) FetchTokenMetadata(ctx context.Context, address string) (store.TokenMetadata, error) {
	addr := common.HexToAddress(address)

	name, err := f.callString(ctx, addr, "name")
	if err != nil {
		name, err = f.callBytes32(ctx, addr, "name")
		if err != nil {
			return store.TokenMetadata{}, errors.Wrap(err, "rpcclient: name call failed")
		}
	}

	symbol, err := f.callString(ctx, addr, "symbol")
	if err != nil {
		symbol, err = f.callBytes32(ctx, addr, "symbol")
		if err != nil {
			return store.TokenMetadata{}, errors.Wrap(err, "rpcclient: symbol call failed")
		}
	}

	decimals, err := f.callUint8(ctx, addr, "decimals")
	if err != nil {
		return store.TokenMetadata{}, errors.Wrap(err, "rpcclient: decimals call failed")
	}

	totalSupply, err := f.callUint256(ctx, addr, "totalSupply")
	if err != nil {
		return store.TokenMetadata{}, errors.Wrap(err, "rpcclient: totalSupply call failed")
	}

	return store.TokenMetadata{
		Symbol:      symbol,
		Name:        name,
		Decimals:    decimals,
		TotalSupply: decimal.NewFromBigInt(totalSupply, 0),
	}, nil
}

func (f *TokenFetcher) ethCall(ctx context.Context, addr common.Address, data []byte) ([]byte, error) {
	var result string
	callArgs := map[string]interface{}{
		"to":   addr.Hex(),
		"data": "0x" + common.Bytes2Hex(data),
	}
	if err := f.client.Call(ctx, &result, "eth_call", callArgs, "latest"); err != nil {
		return nil, err
	}
	return common.FromHex(result), nil
}

func (f *TokenFetcher) callString(ctx context.Context, addr common.Address, method string) (string, error) {
	data, err := f.abi.Pack(method)
	if err != nil {
		return "", err
	}
	out, err := f.ethCall(ctx, addr, data)
	if err != nil {
		return "", err
	}
	vals, err := f.abi.Unpack(method, out)
	if err != nil || len(vals) == 0 {
		return "", errors.New("rpcclient: empty string result")
	}
	return vals[0].(string), nil
}

func (f *TokenFetcher) callBytes32(ctx context.Context, addr common.Address, method string) (string, error) {
	data, err := f.abiBytes32.Pack(method)
	if err != nil {
		return "", err
	}
	out, err := f.ethCall(ctx, addr, data)
	if err != nil {
		return "", err
	}
	vals, err := f.abiBytes32.Unpack(method, out)
	if err != nil || len(vals) == 0 {
		return "", errors.New("rpcclient: empty bytes32 result")
	}
	b := vals[0].([32]byte)
	return strings.TrimRight(string(b[:]), "\x00"), nil
}

func (f *TokenFetcher) callUint8(ctx context.Context, addr common.Address, method string) (uint8, error) {
	data, err := f.abi.Pack(method)
	if err != nil {
		return 0, err
	}
	out, err := f.ethCall(ctx, addr, data)
	if err != nil {
		return 0, err
	}
	vals, err := f.abi.Unpack(method, out)
	if err != nil || len(vals) == 0 {
		return 0, errors.New("rpcclient: empty uint8 result")
	}
	return vals[0].(uint8), nil
}

func (f *TokenFetcher) callUint256(ctx context.Context, addr common.Address, method string) (*big.Int, error) {
	data, err := f.abi.Pack(method)
	if err != nil {
		return nil, err
	}
	out, err := f.ethCall(ctx, addr, data)
	if err != nil {
		return nil, err
	}
	vals, err := f.abi.Unpack(method, out)
	if err != nil || len(vals) == 0 {
		return nil, errors.New("rpcclient: empty uint256 result")
	}
	return vals[0].(*big.Int), nil
}
