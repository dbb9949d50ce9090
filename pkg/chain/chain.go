// Package chain provides Chronicle's chain provider abstraction: a small
// interface over a JSON-RPC/websocket endpoint for historical log queries
// and live log subscriptions, with a go-ethereum-backed EVM implementation.
package chain

import (
	"context"
	"fmt"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/chronicle-dev/chronicle/pkg/event"
)

// Provider queries and streams logs for a single (contract address, topic0)
// pair. QueryLogs serves the backfill phase, SubscribeLogs the tail phase.
type Provider interface {
	// QueryLogs returns every matching log in [fromBlock, toBlock].
	QueryLogs(ctx context.Context, fromBlock, toBlock uint64) ([]types.Log, error)
	// LatestBlock returns the chain's current head block number.
	LatestBlock(ctx context.Context) (uint64, error)
	// SubscribeLogs streams matching logs as they're mined, starting from
	// the provider's connection point onward. The subscription's error
	// channel surfaces transport failures to the caller.
	SubscribeLogs(ctx context.Context, ch chan<- types.Log) (ethereum.Subscription, error)
	// Close releases the underlying client connection.
	Close()
}

// EVMProvider implements Provider over an Ethereum-compatible JSON-RPC or
// websocket endpoint, filtering by contract address and a single topic0.
type EVMProvider struct {
	client  *ethclient.Client
	address common.Address
	topic   common.Hash
}

// Dial connects to rpcURL and returns a Provider filtering logs emitted by
// address matching topic0 (the event's 32-byte signature hash, as configured
// in event_signature — already hashed, never a textual signature).
func Dial(ctx context.Context, rpcURL string, address common.Address, topic0 common.Hash) (*EVMProvider, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dialing chain endpoint %s: %s", rpcURL, err)
	}
	return &EVMProvider{
		client:  client,
		address: address,
		topic:   topic0,
	}, nil
}

func (p *EVMProvider) query() ethereum.FilterQuery {
	return ethereum.FilterQuery{
		Addresses: []common.Address{p.address},
		Topics:    [][]common.Hash{{p.topic}},
	}
}

// QueryLogs implements Provider.
func (p *EVMProvider) QueryLogs(ctx context.Context, fromBlock, toBlock uint64) ([]types.Log, error) {
	q := p.query()
	q.FromBlock = new(big.Int).SetUint64(fromBlock)
	q.ToBlock = new(big.Int).SetUint64(toBlock)

	logs, err := p.client.FilterLogs(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("filtering logs [%d,%d]: %s", fromBlock, toBlock, err)
	}
	return logs, nil
}

// LatestBlock implements Provider.
func (p *EVMProvider) LatestBlock(ctx context.Context) (uint64, error) {
	header, err := p.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("fetching latest header: %s", err)
	}
	return header.Number.Uint64(), nil
}

// SubscribeLogs implements Provider.
func (p *EVMProvider) SubscribeLogs(ctx context.Context, ch chan<- types.Log) (ethereum.Subscription, error) {
	sub, err := p.client.SubscribeFilterLogs(ctx, p.query(), ch)
	if err != nil {
		return nil, fmt.Errorf("subscribing to logs: %s", err)
	}
	return sub, nil
}

// Close implements Provider.
func (p *EVMProvider) Close() {
	p.client.Close()
}

// ToRecord normalizes a go-ethereum log into Chronicle's storage record.
func ToRecord(l types.Log) event.Record {
	return event.Record{
		Address:          l.Address,
		BlockNumber:      l.BlockNumber,
		BlockHash:        l.BlockHash,
		TransactionHash:  l.TxHash,
		TransactionIndex: uint32(l.TxIndex),
		LogIndex:         uint32(l.Index),
		Topics:           l.Topics,
		Data:             l.Data,
	}
}

// ParachainProvider is a reserved no-op implementation for the PARACHAIN
// state machine variant named in configuration; it is not yet implemented.
type ParachainProvider struct{}

// DialParachain returns a ParachainProvider; every method returns an error
// until parachain support is implemented.
func DialParachain(_ context.Context, _ string) (*ParachainProvider, error) {
	return &ParachainProvider{}, nil
}

var errParachainUnsupported = fmt.Errorf("parachain state machine is not yet implemented")

// QueryLogs implements Provider.
func (p *ParachainProvider) QueryLogs(_ context.Context, _, _ uint64) ([]types.Log, error) {
	return nil, errParachainUnsupported
}

// LatestBlock implements Provider.
func (p *ParachainProvider) LatestBlock(_ context.Context) (uint64, error) {
	return 0, errParachainUnsupported
}

// SubscribeLogs implements Provider.
func (p *ParachainProvider) SubscribeLogs(_ context.Context, _ chan<- types.Log) (ethereum.Subscription, error) {
	return nil, errParachainUnsupported
}

// Close implements Provider.
func (p *ParachainProvider) Close() {}
