package chain

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
)

var (
	testContract = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	testCreator  = common.HexToAddress("0xAbCdEf0000000000000000000000000000000001")
	testSolver   = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	testTx       = common.HexToHash("0x0101")
	testBlock    = common.HexToHash("0x0b0b")
)

func mustABI(t *testing.T) abi.ABI {
	t.Helper()
	a, err := LoadABI("")
	require.NoError(t, err)
	return a
}

// wideSizeABI is the default interface with getLevel's size widened to uint16.
func wideSizeABI(t *testing.T) []byte {
	t.Helper()
	old := []byte(`{ "name": "size", "type": "uint8" },`)
	require.Equal(t, 1, bytes.Count(defaultABI, old))
	return bytes.Replace(defaultABI, old, []byte(`{ "name": "size", "type": "uint16" },`), 1)
}

func createdLog(t *testing.T, a abi.ABI, levelID int64, name string, size uint8, hints int64) types.Log {
	t.Helper()
	ev := a.Events["LevelCreated"]
	data, err := ev.Inputs.NonIndexed().Pack(name, size, big.NewInt(hints))
	require.NoError(t, err)
	return types.Log{
		Address:     testContract,
		Topics:      []common.Hash{ev.ID, common.BigToHash(big.NewInt(levelID)), common.BytesToHash(testCreator.Bytes())},
		Data:        data,
		BlockNumber: 105,
		TxHash:      testTx,
		BlockHash:   testBlock,
		Index:       3,
	}
}

func solvedLog(t *testing.T, a abi.ABI, levelID int64, pathLength int64, isFirst bool) types.Log {
	t.Helper()
	ev := a.Events["LevelSolved"]
	data, err := ev.Inputs.NonIndexed().Pack(big.NewInt(pathLength), isFirst)
	require.NoError(t, err)
	return types.Log{
		Address:     testContract,
		Topics:      []common.Hash{ev.ID, common.BigToHash(big.NewInt(levelID)), common.BytesToHash(testSolver.Bytes())},
		Data:        data,
		BlockNumber: 130,
		TxHash:      common.HexToHash("0x0202"),
		BlockHash:   testBlock,
	}
}

// fakeQuery is an in-memory QueryBackend.
type fakeQuery struct {
	height   uint64
	logs     []types.Log
	filters  []ethereum.FilterQuery
	headers  map[common.Hash]*types.Header
	receipts map[common.Hash]*types.Receipt
	byNumber map[uint64]*types.Header
	callOut  []byte
	callErr  error
	err      error
}

func (f *fakeQuery) BlockNumber(ctx context.Context) (uint64, error) {
	return f.height, f.err
}

func (f *fakeQuery) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	f.filters = append(f.filters, q)
	if f.err != nil {
		return nil, f.err
	}
	var out []types.Log
	for _, lg := range f.logs {
		if lg.Topics[0] != q.Topics[0][0] {
			continue
		}
		if lg.BlockNumber < q.FromBlock.Uint64() || lg.BlockNumber > q.ToBlock.Uint64() {
			continue
		}
		out = append(out, lg)
	}
	return out, nil
}

func (f *fakeQuery) HeaderByHash(ctx context.Context, hash common.Hash) (*types.Header, error) {
	h, ok := f.headers[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return h, nil
}

func (f *fakeQuery) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	h, ok := f.byNumber[number.Uint64()]
	if !ok {
		return nil, ethereum.NotFound
	}
	return h, nil
}

func (f *fakeQuery) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	r, ok := f.receipts[txHash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}

func (f *fakeQuery) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return f.callOut, f.callErr
}

// fakeSubscription is an ethereum.Subscription driven by the test.
type fakeSubscription struct {
	errc chan error
	once sync.Once
}

func newFakeSubscription() *fakeSubscription {
	return &fakeSubscription{errc: make(chan error, 1)}
}

func (s *fakeSubscription) Err() <-chan error { return s.errc }

func (s *fakeSubscription) Unsubscribe() {
	s.once.Do(func() {})
}

// fakeSubscriber records subscriptions and exposes their log channels.
type fakeSubscriber struct {
	mu    sync.Mutex
	subs  []*fakeSubscription
	chans []chan<- types.Log
	fail  int // fail the next n subscribe calls
}

func (f *fakeSubscriber) SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail > 0 {
		f.fail--
		return nil, errors.New("ws unavailable")
	}
	sub := newFakeSubscription()
	f.subs = append(f.subs, sub)
	f.chans = append(f.chans, ch)
	return sub, nil
}

func (f *fakeSubscriber) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *fakeSubscriber) last() (*fakeSubscription, chan<- types.Log) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs[len(f.subs)-1], f.chans[len(f.chans)-1]
}
