package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/yibigame/levelindexer/internal/domain"
)

// DefaultResubscribeDelay is the pause before re-arming a failed subscription.
const DefaultResubscribeDelay = 5 * time.Second

// QueryBackend is the subset of ethclient.Client used over the HTTP endpoint.
type QueryBackend interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	HeaderByHash(ctx context.Context, hash common.Hash) (*types.Header, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// SubscribeBackend is the subset of ethclient.Client used over the WS endpoint.
type SubscribeBackend interface {
	SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error)
}

// Config holds the endpoints and contract binding for Dial.
type Config struct {
	RPCURL   string
	WSURL    string
	Contract common.Address
	// ABIPath overrides the embedded contract interface description.
	ABIPath          string
	ResubscribeDelay time.Duration
	Logger           *slog.Logger
}

// Client implements Source over go-ethereum clients.
type Client struct {
	query    QueryBackend
	sub      SubscribeBackend
	contract common.Address
	abi      abi.ABI
	decoder  *Decoder
	log      *slog.Logger

	resubscribeDelay time.Duration

	// wanted counts requested subscriptions, live counts the ones currently
	// delivering.
	wanted atomic.Int32
	live   atomic.Int32

	closers []func()
}

var _ Source = (*Client)(nil)

// ErrNoSubscriber is returned by Subscribe on a client dialed without a
// WebSocket endpoint.
var ErrNoSubscriber = errors.New("no subscription endpoint configured")

// Dial connects both endpoints.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	parsed, err := LoadABI(cfg.ABIPath)
	if err != nil {
		return nil, err
	}

	httpClient, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	// Without a push endpoint the client is query-only and Subscribe fails.
	if cfg.WSURL == "" {
		c := NewClient(httpClient, nil, cfg.Contract, parsed, cfg.Logger)
		c.closers = []func(){httpClient.Close}
		return c, nil
	}

	wsClient, err := ethclient.DialContext(ctx, cfg.WSURL)
	if err != nil {
		httpClient.Close()
		return nil, fmt.Errorf("dial ws: %w", err)
	}

	c := NewClient(httpClient, wsClient, cfg.Contract, parsed, cfg.Logger)
	if cfg.ResubscribeDelay > 0 {
		c.resubscribeDelay = cfg.ResubscribeDelay
	}
	c.closers = []func(){httpClient.Close, wsClient.Close}
	return c, nil
}

// NewClient binds already-connected backends to the contract at address.
func NewClient(query QueryBackend, sub SubscribeBackend, address common.Address, a abi.ABI, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		query:            query,
		sub:              sub,
		contract:         address,
		abi:              a,
		decoder:          NewDecoder(a),
		log:              logger.With("component", "chain"),
		resubscribeDelay: DefaultResubscribeDelay,
	}
}

// Close releases both endpoint connections.
func (c *Client) Close() {
	for _, closeFn := range c.closers {
		closeFn()
	}
}

func (c *Client) filter(kind domain.Kind) (ethereum.FilterQuery, error) {
	topic, err := c.decoder.Topic(kind)
	if err != nil {
		return ethereum.FilterQuery{}, err
	}
	return ethereum.FilterQuery{
		Addresses: []common.Address{c.contract},
		Topics:    [][]common.Hash{{topic}},
	}, nil
}

func (c *Client) QueryRange(ctx context.Context, kind domain.Kind, from, to uint64) ([]domain.Event, error) {
	q, err := c.filter(kind)
	if err != nil {
		return nil, err
	}
	q.FromBlock = new(big.Int).SetUint64(from)
	q.ToBlock = new(big.Int).SetUint64(to)

	logs, err := c.query.FilterLogs(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("filter %s logs [%d,%d]: %w", kind, from, to, err)
	}

	events := make([]domain.Event, 0, len(logs))
	for _, lg := range logs {
		ev, err := c.decoder.Decode(lg)
		if err != nil {
			return nil, err
		}
		events = append(events, ev.WithOrigin(domain.OriginBackfill))
	}
	return events, nil
}

func (c *Client) CurrentHeight(ctx context.Context) (uint64, error) {
	n, err := c.query.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("block number: %w", err)
	}
	return n, nil
}

// BlockTime prefers the block hash carried by the log and falls back to a
// receipt lookup by transaction hash.
func (c *Client) BlockTime(ctx context.Context, meta domain.Meta) (time.Time, error) {
	var (
		header *types.Header
		err    error
	)
	switch {
	case meta.BlockHash != "":
		header, err = c.query.HeaderByHash(ctx, common.HexToHash(meta.BlockHash))
	case meta.TxRef != "":
		var receipt *types.Receipt
		receipt, err = c.query.TransactionReceipt(ctx, common.HexToHash(meta.TxRef))
		if err == nil {
			header, err = c.query.HeaderByNumber(ctx, receipt.BlockNumber)
		}
	default:
		return time.Time{}, errors.New("block time: no block or transaction reference")
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("block time: %w", err)
	}
	if header == nil {
		return time.Time{}, errors.New("block time: header not found")
	}
	return time.Unix(int64(header.Time), 0).UTC(), nil
}

// levelTuple mirrors the getLevel return tuple for abi.ConvertType.
type levelTuple struct {
	Id              *big.Int
	Name            string
	Size            uint8
	Creator         common.Address
	CreatedAt       *big.Int
	CompletionCount *big.Int
	Hints           []struct {
		Coord struct {
			X uint8
			Y uint8
		}
		Value uint16
	}
}

// convertLevel copies an unpacked getLevel value into levelTuple. ConvertType
// panics when the shapes differ.
func convertLevel(v any) (lv levelTuple, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unexpected getLevel output: %v", r)
		}
	}()
	return *abi.ConvertType(v, new(levelTuple)).(*levelTuple), nil
}

func (c *Client) ReadLevel(ctx context.Context, levelID uint64) (domain.LevelDetail, error) {
	input, err := c.abi.Pack(getLevelMethod, new(big.Int).SetUint64(levelID))
	if err != nil {
		return domain.LevelDetail{}, fmt.Errorf("pack getLevel: %w", err)
	}

	output, err := c.query.CallContract(ctx, ethereum.CallMsg{To: &c.contract, Data: input}, nil)
	if err != nil {
		return domain.LevelDetail{}, fmt.Errorf("call getLevel(%d): %w", levelID, err)
	}

	values, err := c.abi.Unpack(getLevelMethod, output)
	if err != nil {
		return domain.LevelDetail{}, fmt.Errorf("unpack getLevel(%d): %w", levelID, err)
	}
	if len(values) != 1 {
		return domain.LevelDetail{}, fmt.Errorf("unpack getLevel(%d): expected 1 value, got %d", levelID, len(values))
	}
	lv, err := convertLevel(values[0])
	if err != nil {
		return domain.LevelDetail{}, fmt.Errorf("unpack getLevel(%d): %w", levelID, err)
	}

	detail := domain.LevelDetail{
		LevelID: levelID,
		Name:    domain.NormalizeName(lv.Name),
		Size:    int(lv.Size),
		Creator: domain.NormalizeAddress(lv.Creator.Hex()),
		Hints:   make([]domain.Hint, len(lv.Hints)),
	}
	if lv.CreatedAt != nil && lv.CreatedAt.IsUint64() {
		detail.CreatedAt = lv.CreatedAt.Uint64()
	}
	if lv.CompletionCount != nil && lv.CompletionCount.IsUint64() {
		detail.CompletionCount = lv.CompletionCount.Uint64()
	}
	for i, h := range lv.Hints {
		detail.Hints[i] = domain.Hint{
			Coord: domain.Coord{X: int(h.Coord.X), Y: int(h.Coord.Y)},
			Value: int(h.Value),
		}
	}
	return detail, nil
}

func (c *Client) Connected() bool {
	wanted := c.wanted.Load()
	return wanted > 0 && c.live.Load() == wanted
}
