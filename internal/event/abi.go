package event

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// factoryABIJSON and pairABIJSON cover the handful of event shapes used
// as worked examples (the reference design's "Out of scope" carve-out): the
// Uniswap-v2 Factory's PairCreated and a Pair's Transfer/Mint/Burn/
// Swap/Sync, matching the topic0 constants documented in
// filter_exchange_pangolin.py / filter_exchange_pegasys.py.
const factoryABIJSON = `[
{"anonymous":false,"inputs":[
  {"indexed":true,"name":"token0","type":"address"},
  {"indexed":true,"name":"token1","type":"address"},
  {"indexed":false,"name":"pair","type":"address"},
  {"indexed":false,"name":"","type":"uint256"}
],"name":"PairCreated","type":"event"}
]`

const pairABIJSON = `[
{"anonymous":false,"inputs":[
  {"indexed":true,"name":"from","type":"address"},
  {"indexed":true,"name":"to","type":"address"},
  {"indexed":false,"name":"value","type":"uint256"}
],"name":"Transfer","type":"event"},
{"anonymous":false,"inputs":[
  {"indexed":true,"name":"sender","type":"address"},
  {"indexed":false,"name":"amount0","type":"uint256"},
  {"indexed":false,"name":"amount1","type":"uint256"}
],"name":"Mint","type":"event"},
{"anonymous":false,"inputs":[
  {"indexed":true,"name":"sender","type":"address"},
  {"indexed":false,"name":"amount0","type":"uint256"},
  {"indexed":false,"name":"amount1","type":"uint256"},
  {"indexed":true,"name":"to","type":"address"}
],"name":"Burn","type":"event"},
{"anonymous":false,"inputs":[
  {"indexed":true,"name":"sender","type":"address"},
  {"indexed":false,"name":"amount0In","type":"uint256"},
  {"indexed":false,"name":"amount1In","type":"uint256"},
  {"indexed":false,"name":"amount0Out","type":"uint256"},
  {"indexed":false,"name":"amount1Out","type":"uint256"},
  {"indexed":true,"name":"to","type":"address"}
],"name":"Swap","type":"event"},
{"anonymous":false,"inputs":[
  {"indexed":false,"name":"reserve0","type":"uint112"},
  {"indexed":false,"name":"reserve1","type":"uint112"}
],"name":"Sync","type":"event"}
]`

func parseFactoryABI() (abi.ABI, error) {
	return abi.JSON(strings.NewReader(factoryABIJSON))
}

func parsePairABI() (abi.ABI, error) {
	return abi.JSON(strings.NewReader(pairABIJSON))
}
