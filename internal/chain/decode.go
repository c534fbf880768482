package chain

import (
	"errors"
	"fmt"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/yibigame/levelindexer/internal/domain"
)

// ErrUnknownKind is returned for a log whose signature matches neither event.
var ErrUnknownKind = errors.New("unknown event kind")

// DecodeError reports a log that could not be normalized into a canonical
// event. It is a malformed response, not a retryable condition.
type DecodeError struct {
	Kind  domain.Kind
	TxRef string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s (tx=%s): %v", e.Kind, e.TxRef, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Decoder turns raw contract logs into canonical events.
//
// Fields are read by name from a single map built from both the indexed
// topics and the data section, so it does not matter which arguments the
// contract declares as indexed. This is the only place that knows about ABI
// encodings; everything downstream sees domain.Event.
type Decoder struct {
	abi    abi.ABI
	events map[common.Hash]abi.Event
}

// NewDecoder builds a decoder for the event kinds declared in a.
func NewDecoder(a abi.ABI) *Decoder {
	d := &Decoder{abi: a, events: make(map[common.Hash]abi.Event)}
	for _, kind := range domain.Kinds {
		if ev, ok := a.Events[string(kind)]; ok {
			d.events[ev.ID] = ev
		}
	}
	return d
}

// Topic returns the signature hash that identifies kind in log topics.
func (d *Decoder) Topic(kind domain.Kind) (common.Hash, error) {
	ev, ok := d.abi.Events[string(kind)]
	if !ok {
		return common.Hash{}, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	return ev.ID, nil
}

// Decode normalizes lg. A zero transaction hash yields an event with an empty
// TxRef; rejecting it is the projector's decision.
func (d *Decoder) Decode(lg types.Log) (domain.Event, error) {
	meta := domain.Meta{
		BlockNumber: lg.BlockNumber,
		LogIndex:    lg.Index,
	}
	if lg.TxHash != (common.Hash{}) {
		meta.TxRef = lg.TxHash.Hex()
	}
	if lg.BlockHash != (common.Hash{}) {
		meta.BlockHash = lg.BlockHash.Hex()
	}

	if len(lg.Topics) == 0 {
		return domain.Event{}, &DecodeError{TxRef: meta.TxRef, Err: errors.New("log has no topics")}
	}
	ev, ok := d.events[lg.Topics[0]]
	if !ok {
		return domain.Event{}, &DecodeError{TxRef: meta.TxRef, Err: fmt.Errorf("%w: topic %s", ErrUnknownKind, lg.Topics[0].Hex())}
	}
	kind := domain.Kind(ev.Name)

	fields, err := d.unpack(ev, lg)
	if err != nil {
		return domain.Event{}, &DecodeError{Kind: kind, TxRef: meta.TxRef, Err: err}
	}

	var out domain.Event
	switch kind {
	case domain.KindLevelCreated:
		out, err = decodeCreated(meta, fields)
	case domain.KindLevelSolved:
		out, err = decodeSolved(meta, fields)
	}
	if err != nil {
		return domain.Event{}, &DecodeError{Kind: kind, TxRef: meta.TxRef, Err: err}
	}
	return out, nil
}

func (d *Decoder) unpack(ev abi.Event, lg types.Log) (map[string]any, error) {
	fields := make(map[string]any, len(ev.Inputs))
	if len(lg.Data) > 0 {
		if err := ev.Inputs.UnpackIntoMap(fields, lg.Data); err != nil {
			return nil, fmt.Errorf("unpack data: %w", err)
		}
	}

	var indexed abi.Arguments
	for _, arg := range ev.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	if len(lg.Topics)-1 != len(indexed) {
		return nil, fmt.Errorf("expected %d indexed topics, got %d", len(indexed), len(lg.Topics)-1)
	}
	if err := abi.ParseTopicsIntoMap(fields, indexed, lg.Topics[1:]); err != nil {
		return nil, fmt.Errorf("parse topics: %w", err)
	}
	return fields, nil
}

func decodeCreated(meta domain.Meta, f map[string]any) (domain.Event, error) {
	levelID, err := levelIDField(f)
	if err != nil {
		return domain.Event{}, err
	}
	creator, err := addressField(f, "creator")
	if err != nil {
		return domain.Event{}, err
	}
	name, err := stringField(f, "name")
	if err != nil {
		return domain.Event{}, err
	}
	size, err := uintField(f, "size")
	if err != nil {
		return domain.Event{}, err
	}
	hintCount, err := uintField(f, "hintsCount", "hintCount")
	if err != nil {
		return domain.Event{}, err
	}
	return domain.NewCreated(meta, domain.Created{
		LevelID:   levelID,
		Creator:   creator,
		Name:      domain.NormalizeName(name),
		Size:      int(size),
		HintCount: int(hintCount),
	}), nil
}

func decodeSolved(meta domain.Meta, f map[string]any) (domain.Event, error) {
	levelID, err := levelIDField(f)
	if err != nil {
		return domain.Event{}, err
	}
	solver, err := addressField(f, "solver")
	if err != nil {
		return domain.Event{}, err
	}
	// pathLength and isFirst are informational; absent fields are tolerated.
	pathLength, _ := uintField(f, "pathLength")
	isFirst, _ := f["isFirst"].(bool)
	return domain.NewSolved(meta, domain.Solved{
		LevelID:    levelID,
		Solver:     solver,
		PathLength: pathLength,
		IsFirst:    isFirst,
	}), nil
}

func levelIDField(f map[string]any) (uint64, error) {
	id, err := uintField(f, "levelId")
	if err != nil {
		return 0, err
	}
	if id > math.MaxInt64 {
		return 0, fmt.Errorf("levelId %d out of range", id)
	}
	return id, nil
}

// uintField reads the first present name as an unsigned integer. ABI
// decoding yields *big.Int for wide types and native ints for narrow ones.
func uintField(f map[string]any, names ...string) (uint64, error) {
	for _, name := range names {
		v, ok := f[name]
		if !ok {
			continue
		}
		n, err := toUint64(v)
		if err != nil {
			return 0, fmt.Errorf("field %s: %w", name, err)
		}
		return n, nil
	}
	return 0, fmt.Errorf("missing field %s", names[0])
}

func toUint64(v any) (uint64, error) {
	switch n := v.(type) {
	case *big.Int:
		if n == nil || n.Sign() < 0 || !n.IsUint64() {
			return 0, fmt.Errorf("value %v out of range", n)
		}
		return n.Uint64(), nil
	case uint8:
		return uint64(n), nil
	case uint16:
		return uint64(n), nil
	case uint32:
		return uint64(n), nil
	case uint64:
		return n, nil
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}

func addressField(f map[string]any, name string) (string, error) {
	v, ok := f[name]
	if !ok {
		return "", fmt.Errorf("missing field %s", name)
	}
	addr, ok := v.(common.Address)
	if !ok {
		return "", fmt.Errorf("field %s: unexpected type %T", name, v)
	}
	return domain.NormalizeAddress(addr.Hex()), nil
}

func stringField(f map[string]any, name string) (string, error) {
	v, ok := f[name]
	if !ok {
		return "", fmt.Errorf("missing field %s", name)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("field %s: unexpected type %T", name, v)
	}
	return s, nil
}
