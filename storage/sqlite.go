package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"conditional-orders-go/order"
)

// SQLiteStore 以订单 ID 为主键保存订单快照（JSON payload），每次状态变化覆盖写入。
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore 打开数据库并建表，启用 WAL。
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// 单连接：pragma 对连接生效，且避免并发写入 SQLITE_BUSY
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	schema := []string{
		`CREATE TABLE IF NOT EXISTS orders (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			asset TEXT NOT NULL,
			status TEXT NOT NULL,
			seq INTEGER NOT NULL,
			version INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			payload BLOB NOT NULL
		);`,
		"CREATE INDEX IF NOT EXISTS idx_orders_owner ON orders(owner_id, created_at, seq);",
		"CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);",
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create orders table: %w", err)
		}
	}
	// 早期建的表没有 version 列
	if err := ensureColumn(db, "orders", "version", "INTEGER NOT NULL DEFAULT 0"); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func ensureColumn(db *sql.DB, table, column, decl string) error {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return fmt.Errorf("failed to inspect %s: %w", table, err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			cid       int
			name, typ string
			notNull   int
			dflt      sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return fmt.Errorf("failed to inspect %s: %w", table, err)
		}
		if name == column {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rows.Close()
	if _, err := db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, decl)); err != nil {
		return fmt.Errorf("failed to add %s.%s: %w", table, column, err)
	}
	return nil
}

// Put 插入或覆盖订单。终态行不再被覆盖，版本更旧的快照被丢弃；
// 被丢弃的写入不是错误，内存仓储才是状态的权威来源。
func (s *SQLiteStore) Put(ctx context.Context, o order.Order) error {
	payload, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("failed to marshal order: %w", err)
	}
	updated := o.CreatedAt
	if !o.ClosedAt.IsZero() {
		updated = o.ClosedAt
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO orders (id, owner_id, asset, status, seq, version, created_at, updated_at, payload)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			status=excluded.status, version=excluded.version, updated_at=excluded.updated_at, payload=excluded.payload
		 WHERE orders.status = ? AND excluded.version >= orders.version`,
		o.ID, o.OwnerID, o.Asset, string(o.Status), int64(o.Seq), int64(o.Version),
		o.CreatedAt.UnixNano(), updated.UnixNano(), payload,
		string(order.StatusPending),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert order %s: %w", o.ID, err)
	}
	return nil
}

// Get 不存在时 ok=false
func (s *SQLiteStore) Get(ctx context.Context, id string) (order.Order, bool, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, "SELECT payload FROM orders WHERE id = ?", id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return order.Order{}, false, nil
	}
	if err != nil {
		return order.Order{}, false, fmt.Errorf("failed to get order %s: %w", id, err)
	}
	o, err := decode(payload)
	if err != nil {
		return order.Order{}, false, err
	}
	return o, true, nil
}

// ListByOwner 按创建顺序返回 owner 的全部订单
func (s *SQLiteStore) ListByOwner(ctx context.Context, ownerID string) ([]order.Order, error) {
	return s.query(ctx,
		"SELECT payload FROM orders WHERE owner_id = ? ORDER BY created_at ASC, seq ASC", ownerID)
}

// ListPending 返回所有 pending 订单，用于启动恢复
func (s *SQLiteStore) ListPending(ctx context.Context) ([]order.Order, error) {
	return s.query(ctx,
		"SELECT payload FROM orders WHERE status = ? ORDER BY created_at ASC, seq ASC", string(order.StatusPending))
}

// Close 关闭数据库
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping 健康检查
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) query(ctx context.Context, q string, args ...any) ([]order.Order, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var res []order.Order
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		o, err := decode(payload)
		if err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	return res, rows.Err()
}

func decode(payload []byte) (order.Order, error) {
	var o order.Order
	if err := json.Unmarshal(payload, &o); err != nil {
		return order.Order{}, fmt.Errorf("failed to unmarshal order: %w", err)
	}
	return o, nil
}
