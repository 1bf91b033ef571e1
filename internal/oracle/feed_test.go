package oracle

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Checker-Finance/fxo-desk/pkg/model"
)

const feedAddr = "0xbC22E1E4b4E4E1d4D1c4c0E1A2B3C4D5E6F70809"

// fakeAggregator answers AggregatorV3 calls with ABI-encoded results.
type fakeAggregator struct {
	decimals uint8
	answer   *big.Int
	err      error
	calls    []string
}

func (f *fakeAggregator) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	dec := aggregatorABI.Methods["decimals"]
	round := aggregatorABI.Methods["latestRoundData"]
	switch {
	case bytes.HasPrefix(msg.Data, dec.ID):
		f.calls = append(f.calls, "decimals")
		return dec.Outputs.Pack(f.decimals)
	case bytes.HasPrefix(msg.Data, round.ID):
		f.calls = append(f.calls, "latestRoundData")
		return round.Outputs.Pack(big.NewInt(7), f.answer, big.NewInt(1700000000), big.NewInt(1700000000), big.NewInt(7))
	}
	return nil, errors.New("unknown selector")
}

func TestChainlinkFeed_InvertedRate(t *testing.T) {
	agg := &fakeAggregator{decimals: 8, answer: big.NewInt(770000)}
	feed, err := NewChainlinkFeed(agg, feedAddr, true)
	require.NoError(t, err)

	rate, err := feed.Rate(context.Background())
	require.NoError(t, err)
	// 10^8 / 770000
	assert.Equal(t, "129.87", rate.StringFixed(2))
	assert.Equal(t, []string{"decimals", "latestRoundData"}, agg.calls, "decimals is read before the answer")
}

func TestChainlinkFeed_DirectRate(t *testing.T) {
	agg := &fakeAggregator{decimals: 8, answer: big.NewInt(150000000000)}
	feed, err := NewChainlinkFeed(agg, feedAddr, false)
	require.NoError(t, err)

	rate, err := feed.Rate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1500", rate.String())
}

func TestChainlinkFeed_NonPositiveAnswer(t *testing.T) {
	for _, answer := range []int64{0, -5} {
		agg := &fakeAggregator{decimals: 8, answer: big.NewInt(answer)}
		feed, err := NewChainlinkFeed(agg, feedAddr, true)
		require.NoError(t, err)

		_, err = feed.Rate(context.Background())
		assert.ErrorIs(t, err, ErrNonPositiveAnswer)
	}
}

func TestChainlinkFeed_CallError(t *testing.T) {
	agg := &fakeAggregator{err: errors.New("dial tcp: connection refused")}
	feed, err := NewChainlinkFeed(agg, feedAddr, true)
	require.NoError(t, err)

	_, err = feed.Rate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestNewChainlinkFeed_InvalidAddress(t *testing.T) {
	_, err := NewChainlinkFeed(&fakeAggregator{}, "not-an-address", false)
	assert.Error(t, err)
}

func TestBuildFeeds(t *testing.T) {
	feeds, err := BuildFeeds(&fakeAggregator{}, []FeedSpec{
		{Pair: model.PairUSDCKES, Address: feedAddr, Invert: true},
		{Pair: model.PairUSDCcNGN, Address: ""},
	})
	require.NoError(t, err)
	assert.Len(t, feeds, 1)
	assert.Contains(t, feeds, model.PairUSDCKES)

	_, err = BuildFeeds(&fakeAggregator{}, []FeedSpec{{Pair: "USDC/BRL", Address: feedAddr}})
	assert.Error(t, err)
}
