package ledger

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Pebble key schema. Account state is keyed by hex address for direct
// lookup; the single market record sits under its own prefix. Hex keys
// sort lexicographically, which keeps the state digest deterministic.
const (
	prefixAccount = "acc:"
	keyMarket     = "mkt:state"
)

// accountKey returns the key for an account.
// Format: "acc:{address}"
func accountKey(addr common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s", prefixAccount, addr.Hex()))
}

// keyUpperBound returns the exclusive upper bound for a prefix scan.
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
