package guard

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// DefaultAdminRole is the OpenZeppelin AccessControl admin role name.
const DefaultAdminRole = "DEFAULT_ADMIN_ROLE"

// Caller performs read-only contract calls.
type Caller interface {
	Call(ctx context.Context, method string, args ...any) ([]any, error)
}

// RoleID resolves a role identifier. A 0x-prefixed 32-byte hex string is used
// verbatim, DEFAULT_ADMIN_ROLE is the zero hash and any other name is hashed
// with keccak256.
func RoleID(role string) ([32]byte, error) {
	role = strings.TrimSpace(role)
	if role == "" {
		return [32]byte{}, fmt.Errorf("empty role")
	}
	if role == DefaultAdminRole {
		return [32]byte{}, nil
	}
	if strings.HasPrefix(role, "0x") || strings.HasPrefix(role, "0X") {
		raw, err := hex.DecodeString(role[2:])
		if err != nil {
			return [32]byte{}, fmt.Errorf("role %q: %w", role, err)
		}
		if len(raw) != 32 {
			return [32]byte{}, fmt.Errorf("role %q: want 32 bytes, got %d", role, len(raw))
		}
		var id [32]byte
		copy(id[:], raw)
		return id, nil
	}
	return crypto.Keccak256Hash([]byte(role)), nil
}

// Authorize reports whether account holds role on the contract behind caller.
// Lacking the role is not an error.
func Authorize(ctx context.Context, caller Caller, role [32]byte, account common.Address) (bool, error) {
	out, err := caller.Call(ctx, "hasRole", role, account)
	if err != nil {
		return false, fmt.Errorf("hasRole %s: %w", account.Hex(), err)
	}
	if len(out) != 1 {
		return false, fmt.Errorf("hasRole returned %d values", len(out))
	}
	ok, isBool := out[0].(bool)
	if !isBool {
		return false, fmt.Errorf("hasRole returned %T", out[0])
	}
	return ok, nil
}
