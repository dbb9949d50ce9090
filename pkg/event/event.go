// Package event defines Chronicle's normalized representation of an EVM log
// and the small set of pure helpers (name sanitization, hex encoding) shared
// by the storage engine, the chain provider, and the indexer worker.
package event

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Record is the normalized representation of a single on-chain log, ready to
// be persisted by the storage engine. Each field corresponds to one field of
// go-ethereum's types.Log (TxHash, TxIndex and Index become TransactionHash,
// TransactionIndex and LogIndex), so construction via chain.ToRecord is direct.
type Record struct {
	Address          common.Address
	BlockNumber      uint64
	BlockHash        common.Hash
	TransactionHash  common.Hash
	TransactionIndex uint32
	LogIndex         uint32
	Topics           []common.Hash
	Data             []byte
}

// DisplayRecord is the read-side projection returned by the storage engine's
// getters: every scalar rendered as a string, ready for JSON encoding.
type DisplayRecord struct {
	Address          string   `json:"address"`
	BlockNumber      string   `json:"block_number"`
	BlockHash        string   `json:"block_hash"`
	TransactionHash  string   `json:"transaction_hash"`
	TransactionIndex string   `json:"transaction_index"`
	LogIndex         string   `json:"log_index"`
	Topics           []string `json:"topics"`
	Data             string   `json:"data"`
}

// StateMachine identifies the chain-family variant an IndexerConfig drives.
// Only EVM is implemented; PARACHAIN is reserved.
type StateMachine string

const (
	// EVM drives the implemented backfill+tail state machine over an
	// Ethereum-compatible JSON-RPC/websocket endpoint.
	EVM StateMachine = "EVM"
	// Parachain is a reserved no-op variant.
	Parachain StateMachine = "PARACHAIN"
)

// Config is the per-(event_name, contract, topic) indexing configuration,
// the Go-side twin of a single `[[indexer]]` TOML table.
type Config struct {
	EventName      string       `toml:"event_name"`
	RPCURL         string       `toml:"rpc_url"`
	Address        string       `toml:"address"`
	EventSignature string       `toml:"event_signature"`
	BlockNumber    uint64       `toml:"block_number"`
	DBURL          string       `toml:"db_url"`
	StateMachine   StateMachine `toml:"state_machine"`
}

var nonAlnumUnderscore = regexp.MustCompile(`[^A-Za-z0-9_]`)

// SanitizeName replaces every character outside [A-Za-z0-9_] with '_' and
// lowercases the result. It is deterministic and collision-possible (e.g.
// "a-b" and "a_b" both sanitize to "a_b") — callers that allow arbitrary
// event names are responsible for uniqueness of the sanitized form.
func SanitizeName(name string) string {
	return strings.ToLower(nonAlnumUnderscore.ReplaceAllString(name, "_"))
}

// TableName returns the master partitioned table name for an event_name.
func TableName(eventName string) string {
	return "events_" + SanitizeName(eventName)
}

// EncodeTopics renders topics as 0x-prefixed lowercase hex strings, the
// exact form persisted into the `topics text[]` column.
func EncodeTopics(topics []common.Hash) []string {
	out := make([]string, len(topics))
	for i, t := range topics {
		out[i] = strings.ToLower(t.Hex())
	}
	return out
}

// ParseUint64 is a small helper used by the read API to validate path/query
// parameters before handing them to the storage engine.
func ParseUint64(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing uint64 %q: %s", s, err)
	}
	return v, nil
}
