package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// DefaultTable is the audit table created when none is configured.
const DefaultTable = "gateway_requests"

// ClickHouseOptions configure the analytics sink.
type ClickHouseOptions struct {
	Addr     []string
	Database string
	Username string
	Password string
	Table    string
}

// ClickHouseSink persists audit batches into a MergeTree table for
// analytics queries. One row per request.
type ClickHouseSink struct {
	conn  driver.Conn
	table string
}

// NewClickHouseSink connects, verifies the connection and creates the
// audit table when it does not exist yet.
func NewClickHouseSink(ctx context.Context, opts ClickHouseOptions) (*ClickHouseSink, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: opts.Addr,
		Auth: clickhouse.Auth{
			Database: opts.Database,
			Username: opts.Username,
			Password: opts.Password,
		},
		DialTimeout: 5 * time.Second,
		Compression: &clickhouse.Compression{Method: clickhouse.CompressionLZ4},
	})
	if err != nil {
		return nil, fmt.Errorf("audit: clickhouse open: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("audit: clickhouse ping: %w", err)
	}

	s := &ClickHouseSink{conn: conn, table: opts.Table}
	if s.table == "" {
		s.table = DefaultTable
	}
	if err := s.ensureSchema(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *ClickHouseSink) ensureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	ts            DateTime64(3),
	request_id    String,
	tenant        String,
	strategy      LowCardinality(String),
	complexity    Float64,
	provider      LowCardinality(String),
	model         LowCardinality(String),
	outcome       LowCardinality(String),
	cache_hit     Bool,
	latency_ms    Int64,
	input_tokens  UInt32,
	output_tokens UInt32,
	cost_usd      Float64,
	attempts      Array(String),
	warnings      Array(String)
) ENGINE = MergeTree
PARTITION BY toYYYYMMDD(ts)
ORDER BY (ts, provider, model)`, s.table)

	if err := s.conn.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("audit: ensure schema: %w", err)
	}
	return nil
}

func (s *ClickHouseSink) WriteBatch(ctx context.Context, entries []Entry) error {
	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO "+s.table)
	if err != nil {
		return fmt.Errorf("audit: prepare batch: %w", err)
	}

	for _, e := range entries {
		if err := batch.Append(
			normalizeTime(e.Time),
			e.RequestID,
			e.Tenant,
			e.Strategy,
			e.Complexity,
			e.Provider,
			e.Model,
			e.Outcome,
			e.CacheHit,
			e.LatencyMs,
			uint32(e.InputTokens),
			uint32(e.OutputTokens),
			e.CostUSD,
			e.Attempts,
			e.Warnings,
		); err != nil {
			return fmt.Errorf("audit: append row: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("audit: send batch: %w", err)
	}
	return nil
}

func (s *ClickHouseSink) Close() error {
	return s.conn.Close()
}
