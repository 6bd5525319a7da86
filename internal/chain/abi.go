package chain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// LoadABI reads a contract interface from path. Both a bare ABI array and a
// build artifact of the form {"abi": [...]} are accepted.
func LoadABI(path string) (*abi.ABI, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read abi %s: %w", path, err)
	}
	a, err := ParseABI(data)
	if err != nil {
		return nil, fmt.Errorf("parse abi %s: %w", path, err)
	}
	return a, nil
}

// ParseABI decodes ABI JSON, unwrapping an artifact object when present.
func ParseABI(data []byte) (*abi.ABI, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var artifact struct {
			ABI json.RawMessage `json:"abi"`
		}
		if err := json.Unmarshal(data, &artifact); err != nil {
			return nil, err
		}
		if len(artifact.ABI) == 0 {
			return nil, fmt.Errorf("artifact has no abi field")
		}
		data = artifact.ABI
	}
	a, err := abi.JSON(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// RequireEvent fails when the interface lacks the named event.
func RequireEvent(a *abi.ABI, name string) error {
	if _, ok := a.Events[name]; !ok {
		return fmt.Errorf("abi has no event %q", name)
	}
	return nil
}

// RequireMethod fails when the interface lacks the named method.
func RequireMethod(a *abi.ABI, name string) error {
	if _, ok := a.Methods[name]; !ok {
		return fmt.Errorf("abi has no method %q", name)
	}
	return nil
}
