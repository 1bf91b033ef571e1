// Package oracle reads spot exchange rates from on-chain price feeds and
// keeps the latest observation per pair.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// ErrNonPositiveAnswer is returned when a feed reports zero or a negative price.
var ErrNonPositiveAnswer = errors.New("oracle: non-positive answer")

// Feed produces a positive spot rate or an error.
type Feed interface {
	Rate(ctx context.Context) (decimal.Decimal, error)
}

// FeedFunc adapts a function to Feed.
type FeedFunc func(ctx context.Context) (decimal.Decimal, error)

func (f FeedFunc) Rate(ctx context.Context) (decimal.Decimal, error) { return f(ctx) }

// ContractCaller is the read-only subset of *ethclient.Client the feed needs.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// AggregatorV3ABI covers the two AggregatorV3Interface views we read.
const AggregatorV3ABI = `[
{"inputs":[],"name":"decimals","outputs":[{"internalType":"uint8","name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"latestRoundData","outputs":[
 {"internalType":"uint80","name":"roundId","type":"uint80"},
 {"internalType":"int256","name":"answer","type":"int256"},
 {"internalType":"uint256","name":"startedAt","type":"uint256"},
 {"internalType":"uint256","name":"updatedAt","type":"uint256"},
 {"internalType":"uint80","name":"answeredInRound","type":"uint80"}],"stateMutability":"view","type":"function"}
]`

var aggregatorABI = mustParseABI(AggregatorV3ABI)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic("oracle: invalid aggregator abi: " + err.Error())
	}
	return parsed
}

// ChainlinkFeed reads an AggregatorV3 contract: decimals() then latestRoundData().
// With Invert the rate is 10^decimals / answer, for feeds quoted as USD per
// local unit; otherwise it is answer / 10^decimals.
type ChainlinkFeed struct {
	caller  ContractCaller
	address common.Address
	invert  bool
}

// NewChainlinkFeed returns a feed for the aggregator at address (hex).
func NewChainlinkFeed(caller ContractCaller, address string, invert bool) (*ChainlinkFeed, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("oracle: invalid feed address %q", address)
	}
	return &ChainlinkFeed{caller: caller, address: common.HexToAddress(address), invert: invert}, nil
}

func (f *ChainlinkFeed) Address() string { return f.address.Hex() }

func (f *ChainlinkFeed) Rate(ctx context.Context) (decimal.Decimal, error) {
	out, err := f.call(ctx, "decimals")
	if err != nil {
		return decimal.Zero, err
	}
	scale, ok := out[0].(uint8)
	if !ok {
		return decimal.Zero, fmt.Errorf("oracle: unexpected decimals type %T", out[0])
	}

	out, err = f.call(ctx, "latestRoundData")
	if err != nil {
		return decimal.Zero, err
	}
	answer, ok := out[1].(*big.Int)
	if !ok || answer == nil {
		return decimal.Zero, fmt.Errorf("oracle: unexpected answer type %T", out[1])
	}
	if answer.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrNonPositiveAnswer, answer)
	}

	return ScaleAnswer(answer, scale, f.invert), nil
}

// ScaleAnswer converts a raw aggregator answer into a rate.
func ScaleAnswer(answer *big.Int, scale uint8, invert bool) decimal.Decimal {
	unit := decimal.New(1, int32(scale))
	raw := decimal.NewFromBigInt(answer, 0)
	if invert {
		return unit.Div(raw)
	}
	return raw.Div(unit)
}

func (f *ChainlinkFeed) call(ctx context.Context, method string) ([]interface{}, error) {
	data, err := aggregatorABI.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("oracle: pack %s: %w", method, err)
	}
	to := f.address
	res, err := f.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("oracle: call %s on %s: %w", method, f.address.Hex(), err)
	}
	out, err := aggregatorABI.Unpack(method, res)
	if err != nil {
		return nil, fmt.Errorf("oracle: unpack %s: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("oracle: empty %s result", method)
	}
	return out, nil
}
