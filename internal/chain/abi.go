package chain

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/yibigame/levelindexer/internal/domain"
)

//go:embed levels.abi.json
var defaultABI []byte

// getLevelMethod is the view function that returns the full level structure.
const getLevelMethod = "getLevel"

// LoadABI parses the contract interface description at path, or the embedded
// default when path is empty. The result must declare both event kinds and
// the getLevel function, and getLevel must return the same types as the
// embedded default.
func LoadABI(path string) (abi.ABI, error) {
	def, err := parseABI(defaultABI)
	if err != nil {
		return abi.ABI{}, fmt.Errorf("embedded abi: %w", err)
	}
	if path == "" {
		return def, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return abi.ABI{}, fmt.Errorf("read abi: %w", err)
	}
	parsed, err := parseABI(raw)
	if err != nil {
		return abi.ABI{}, err
	}
	if got, want := levelOutputs(parsed), levelOutputs(def); got != want {
		return abi.ABI{}, fmt.Errorf("abi method %s returns %s, want %s", getLevelMethod, got, want)
	}
	return parsed, nil
}

func parseABI(data []byte) (abi.ABI, error) {
	parsed, err := abi.JSON(bytes.NewReader(data))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("parse abi: %w", err)
	}
	for _, kind := range domain.Kinds {
		if _, ok := parsed.Events[string(kind)]; !ok {
			return abi.ABI{}, fmt.Errorf("abi missing event %s", kind)
		}
	}
	if _, ok := parsed.Methods[getLevelMethod]; !ok {
		return abi.ABI{}, fmt.Errorf("abi missing method %s", getLevelMethod)
	}
	return parsed, nil
}

// levelOutputs renders the getLevel return types in canonical form.
func levelOutputs(a abi.ABI) string {
	outs := a.Methods[getLevelMethod].Outputs
	types := make([]string, len(outs))
	for i, out := range outs {
		types[i] = out.Type.String()
	}
	return "(" + strings.Join(types, ",") + ")"
}
