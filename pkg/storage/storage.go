// Package storage implements Chronicle's storage engine: a partitioned,
// per-event Postgres log table plus a metadata registry, with an
// at-most-once-insert invariant and a monotonically advancing per-event
// watermark.
package storage

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"
	logger "github.com/rs/zerolog/log"

	"github.com/chronicle-dev/chronicle/pkg/event"
	"github.com/chronicle-dev/chronicle/pkg/metrics"
)

// partitionYears is the hard-coded year-to-range mapping: year*1e7 blocks.
// This is a placeholder sizing (~10M blocks/partition); correctness only
// depends on every ingested block number falling inside some partition,
// which the "_future" partition guarantees.
var partitionYears = []int{2020, 2021, 2022, 2023, 2024}

const blocksPerYear = 10_000_000

// Engine is a connected, schema-bootstrapped storage engine.
type Engine struct {
	pool *pgxpool.Pool
	log  zerolog.Logger

	mOps *metrics.CallStats
}

// Open connects to the database named in connString. If that database
// doesn't exist, it transparently connects to the admin database
// (substituting the target name with "postgres"), issues CREATE DATABASE,
// then reconnects. Admin-connect failure is logged and swallowed — the
// only fatal connection failure is the final target connection, returned as
// *ConnectError. On success, schema bootstrap runs (idempotent); a bootstrap
// failure is returned as *QueryError.
func Open(ctx context.Context, connString string) (*Engine, error) {
	log := logger.With().Str("component", "storage").Logger()

	ensureDatabaseExists(ctx, connString, log)

	pool, err := pgxpool.Connect(ctx, connString)
	if err != nil {
		return nil, &ConnectError{Err: err}
	}

	ops, err := metrics.NewCallStats("chronicle.storage")
	if err != nil {
		return nil, fmt.Errorf("registering storage metrics: %s", err)
	}

	e := &Engine{pool: pool, log: log, mOps: ops}
	if err := e.bootstrapSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return e, nil
}

// Close releases the underlying connection pool.
func (e *Engine) Close() {
	e.pool.Close()
}

func ensureDatabaseExists(ctx context.Context, connString string, log zerolog.Logger) {
	dbName, ok := extractDBName(connString)
	if !ok {
		log.Warn().Msg("connection string has no dbname, skipping database creation check")
		return
	}

	adminConnString := replaceDBName(connString, "postgres")
	adminConn, err := pgx.Connect(ctx, adminConnString)
	if err != nil {
		log.Warn().Err(err).Str("db", dbName).Msg("could not connect to admin database to check/create it")
		return
	}
	defer func() { _ = adminConn.Close(ctx) }()

	var exists bool
	err = adminConn.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)", dbName).Scan(&exists)
	if err != nil {
		log.Warn().Err(err).Str("db", dbName).Msg("could not check for database existence")
		return
	}
	if exists {
		return
	}

	log.Info().Str("db", dbName).Msg("creating database")
	// CREATE DATABASE cannot run inside a transaction block or be parameterized.
	if _, err := adminConn.Exec(ctx, fmt.Sprintf("CREATE DATABASE %s", pq(dbName))); err != nil {
		log.Warn().Err(err).Str("db", dbName).Msg("could not create database")
	}
}

// extractDBName parses the whitespace-terminated "dbname=<x>" token from a
// libpq key/value connection string.
func extractDBName(connString string) (string, bool) {
	const key = "dbname="
	idx := strings.Index(connString, key)
	if idx < 0 {
		return "", false
	}
	rest := connString[idx+len(key):]
	if end := strings.IndexByte(rest, ' '); end >= 0 {
		return rest[:end], true
	}
	return rest, true
}

// replaceDBName rewrites the dbname= token to newName, preserving the rest
// of the string byte-for-byte. If dbname= is absent, it appends it.
func replaceDBName(connString, newName string) string {
	const key = "dbname="
	idx := strings.Index(connString, key)
	if idx < 0 {
		return connString + " dbname=" + newName
	}
	rest := connString[idx+len(key):]
	end := strings.IndexByte(rest, ' ')
	if end < 0 {
		return connString[:idx] + key + newName
	}
	return connString[:idx] + key + newName + rest[end:]
}

func (e *Engine) bootstrapSchema(ctx context.Context) error {
	_, err := e.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS chronicle_metadata (
			id SERIAL PRIMARY KEY,
			event_name VARCHAR(100) NOT NULL UNIQUE,
			contract_address VARCHAR(42) NOT NULL,
			event_signature VARCHAR(66) NOT NULL,
			start_block BIGINT NOT NULL,
			current_block BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			enabled BOOLEAN DEFAULT true
		);
		CREATE INDEX IF NOT EXISTS idx_metadata_event_name ON chronicle_metadata (event_name);
		CREATE INDEX IF NOT EXISTS idx_metadata_contract ON chronicle_metadata (contract_address);
	`)
	return queryErr("bootstrap schema", err)
}

// Register upserts the metadata row for event_name and creates its
// partitioned event table and partitions. Safe to call repeatedly: registering
// twice leaves a single metadata row with the latest address, signature and
// start block, and every DDL statement is IF NOT EXISTS. current_block is set
// to startBlock only when the row is first inserted; re-registering keeps the
// existing watermark.
func (e *Engine) Register(
	ctx context.Context,
	eventName, contractAddress, eventSignature string,
	startBlock uint64,
) error {
	record := e.call("Register")
	defer record()

	_, err := e.pool.Exec(ctx, `
		INSERT INTO chronicle_metadata (event_name, contract_address, event_signature, start_block, current_block)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (event_name) DO UPDATE SET
			contract_address = EXCLUDED.contract_address,
			event_signature = EXCLUDED.event_signature,
			start_block = EXCLUDED.start_block,
			updated_at = NOW()
	`, eventName, contractAddress, eventSignature, int64(startBlock))
	if err != nil {
		return queryErr("register metadata", err)
	}

	return e.createPartitionedTable(ctx, eventName)
}

func (e *Engine) createPartitionedTable(ctx context.Context, eventName string) error {
	table := event.TableName(eventName)

	_, err := e.pool.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			id BIGSERIAL,
			address VARCHAR(42) NOT NULL,
			block_number BIGINT NOT NULL,
			block_hash VARCHAR(66),
			transaction_hash VARCHAR(66) NOT NULL,
			transaction_index INTEGER,
			log_index INTEGER NOT NULL,
			topics TEXT[] NOT NULL,
			data TEXT NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			PRIMARY KEY (block_number, log_index, transaction_hash)
		) PARTITION BY RANGE (block_number)
	`, table))
	if err != nil {
		return queryErr("create master table", err)
	}

	for _, year := range partitionYears {
		start := int64(year) * blocksPerYear
		end := int64(year+1) * blocksPerYear
		partition := fmt.Sprintf("%s_%d", table, year)

		if _, err := e.pool.Exec(ctx, fmt.Sprintf(
			"CREATE TABLE IF NOT EXISTS %[1]s PARTITION OF %[2]s FOR VALUES FROM (%[3]d) TO (%[4]d)",
			partition, table, start, end,
		)); err != nil {
			return queryErr("create partition "+partition, err)
		}
		if err := e.createPartitionIndexes(ctx, partition); err != nil {
			return err
		}
	}

	future := table + "_future"
	if _, err := e.pool.Exec(ctx, fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %[1]s PARTITION OF %[2]s DEFAULT",
		future, table,
	)); err != nil {
		return queryErr("create future partition", err)
	}
	return queryErr("create future partition indexes", e.createPartitionIndexes(ctx, future))
}

func (e *Engine) createPartitionIndexes(ctx context.Context, partition string) error {
	_, err := e.pool.Exec(ctx, fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS idx_%[1]s_tx_hash ON %[1]s (transaction_hash);
		CREATE INDEX IF NOT EXISTS idx_%[1]s_address ON %[1]s (address);
		CREATE INDEX IF NOT EXISTS idx_%[1]s_topics ON %[1]s USING GIN (topics);
	`, partition))
	return err
}

// Store inserts rec into events_<sanitized(eventName)> (ON CONFLICT DO
// NOTHING on (block_number, log_index, transaction_hash)) and advances the
// event's watermark to GREATEST(current_block, rec.BlockNumber). Repeated
// inserts of the same record are silent no-ops and the watermark never
// decreases regardless of call order.
func (e *Engine) Store(ctx context.Context, eventName string, rec event.Record) error {
	record := e.call("Store")
	defer record()

	table := event.TableName(eventName)
	topics := event.EncodeTopics(rec.Topics)

	_, err := e.pool.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (address, block_number, block_hash, transaction_hash, transaction_index, log_index, topics, data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (block_number, log_index, transaction_hash) DO NOTHING
	`, table),
		strings.ToLower(rec.Address.Hex()),
		int64(rec.BlockNumber),
		strings.ToLower(rec.BlockHash.Hex()),
		strings.ToLower(rec.TransactionHash.Hex()),
		int32(rec.TransactionIndex),
		int32(rec.LogIndex),
		topics,
		hexData(rec.Data),
	)
	if err != nil {
		return queryErr("insert event", err)
	}

	_, err = e.pool.Exec(ctx, `
		UPDATE chronicle_metadata
		SET current_block = GREATEST(current_block, $2), updated_at = NOW()
		WHERE event_name = $1
	`, eventName, int64(rec.BlockNumber))
	return queryErr("advance watermark", err)
}

// GetAll returns every row of events_<sanitized(eventName)>, newest first.
func (e *Engine) GetAll(ctx context.Context, eventName string) ([]event.DisplayRecord, error) {
	table := event.TableName(eventName)
	rows, err := e.pool.Query(ctx, fmt.Sprintf(
		"SELECT address, block_number, block_hash, transaction_hash, transaction_index, log_index, topics, data "+
			"FROM %s ORDER BY block_number DESC, log_index DESC", table,
	))
	if err != nil {
		return nil, queryErr("get all", err)
	}
	defer rows.Close()
	return scanRows(rows)
}

// GetByTxHash returns every row matching transaction_hash.
func (e *Engine) GetByTxHash(ctx context.Context, eventName, txHash string) ([]event.DisplayRecord, error) {
	table := event.TableName(eventName)
	rows, err := e.pool.Query(ctx, fmt.Sprintf(
		"SELECT address, block_number, block_hash, transaction_hash, transaction_index, log_index, topics, data "+
			"FROM %s WHERE transaction_hash = $1", table,
	), strings.ToLower(txHash))
	if err != nil {
		return nil, queryErr("get by tx hash", err)
	}
	defer rows.Close()
	return scanRows(rows)
}

// GetByBlockNumber returns every row at block_number, compared as a string
// (matches the column via implicit cast, mirroring the source behavior).
func (e *Engine) GetByBlockNumber(ctx context.Context, eventName, blockNumber string) ([]event.DisplayRecord, error) {
	table := event.TableName(eventName)
	rows, err := e.pool.Query(ctx, fmt.Sprintf(
		"SELECT address, block_number, block_hash, transaction_hash, transaction_index, log_index, topics, data "+
			"FROM %s WHERE block_number = $1", table,
	), blockNumber)
	if err != nil {
		return nil, queryErr("get by block number", err)
	}
	defer rows.Close()
	return scanRows(rows)
}

const defaultRangeLimit = 1000

// GetByRange returns rows with block_number BETWEEN from and to, newest
// first, capped at limit (0 means defaultRangeLimit).
func (e *Engine) GetByRange(
	ctx context.Context,
	eventName string,
	from, to uint64,
	limit int64,
) ([]event.DisplayRecord, error) {
	if limit <= 0 {
		limit = defaultRangeLimit
	}
	table := event.TableName(eventName)
	rows, err := e.pool.Query(ctx, fmt.Sprintf(
		"SELECT address, block_number, block_hash, transaction_hash, transaction_index, log_index, topics, data "+
			"FROM %s WHERE block_number BETWEEN $1 AND $2 "+
			"ORDER BY block_number DESC, log_index DESC LIMIT $3", table,
	), int64(from), int64(to), limit)
	if err != nil {
		return nil, queryErr("get by range", err)
	}
	defer rows.Close()
	return scanRows(rows)
}

// GetLatestBlock returns current_block from the metadata registry.
func (e *Engine) GetLatestBlock(ctx context.Context, eventName string) (uint64, error) {
	var current int64
	err := e.pool.QueryRow(ctx,
		"SELECT current_block FROM chronicle_metadata WHERE event_name = $1", eventName,
	).Scan(&current)
	if err == pgx.ErrNoRows {
		return 0, queryErr("get latest block", fmt.Errorf("no metadata registered for event %q", eventName))
	}
	if err != nil {
		return 0, queryErr("get latest block", err)
	}
	return uint64(current), nil
}

func scanRows(rows pgx.Rows) ([]event.DisplayRecord, error) {
	var out []event.DisplayRecord
	for rows.Next() {
		var (
			address, blockHash, txHash, data string
			blockNumber                      int64
			txIndex, logIndex                int32
			topics                           []string
		)
		if err := rows.Scan(&address, &blockNumber, &blockHash, &txHash, &txIndex, &logIndex, &topics, &data); err != nil {
			return nil, queryErr("scan row", err)
		}
		out = append(out, event.DisplayRecord{
			Address:          address,
			BlockNumber:      strconv.FormatInt(blockNumber, 10),
			BlockHash:        blockHash,
			TransactionHash:  txHash,
			TransactionIndex: strconv.FormatInt(int64(txIndex), 10),
			LogIndex:         strconv.FormatInt(int64(logIndex), 10),
			Topics:           topics,
			Data:             data,
		})
	}
	return out, queryErr("iterate rows", rows.Err())
}

func (e *Engine) call(op string) func() {
	start := time.Now()
	return func() {
		e.mOps.Record(op, time.Since(start))
	}
}

// hexData renders opaque log data as a 0x-prefixed lowercase hex string.
func hexData(data []byte) string {
	return fmt.Sprintf("0x%x", data)
}

// pq guards an identifier that is about to be interpolated into DDL (the
// database name extracted from an operator-controlled connection string). An
// identifier made only of [A-Za-z0-9_] is returned as is; anything else is
// returned as a double-quoted identifier with embedded quotes doubled.
func pq(ident string) string {
	for _, r := range ident {
		if !(r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
		}
	}
	return ident
}
