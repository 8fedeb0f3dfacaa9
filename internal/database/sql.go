package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"

	"github.com/browsertest/dashboard/internal/agentapi"
)

type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
)

// SQLDatabase stores task history in PostgreSQL or MySQL.
type SQLDatabase struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

// Open picks the backend from DATABASE_URL: empty means in-memory,
// postgres:// or postgresql:// means PostgreSQL, mysql:// means MySQL.
func Open(databaseURL string) (Database, error) {
	if databaseURL == "" {
		return NewMemoryDatabase(), nil
	}
	dialect, dsn, err := parseDatabaseURL(databaseURL)
	if err != nil {
		return nil, err
	}
	return NewSQLDatabase(dialect, dsn)
}

func parseDatabaseURL(raw string) (Dialect, string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("invalid database url: %w", err)
	}
	switch u.Scheme {
	case "postgres", "postgresql":
		return DialectPostgres, raw, nil
	case "mysql":
		cfg := mysql.NewConfig()
		cfg.Net = "tcp"
		cfg.Addr = u.Host
		if u.Port() == "" {
			cfg.Addr = net.JoinHostPort(u.Hostname(), "3306")
		}
		if u.User != nil {
			cfg.User = u.User.Username()
			cfg.Passwd, _ = u.User.Password()
		}
		cfg.DBName = strings.TrimPrefix(u.Path, "/")
		cfg.ParseTime = true
		cfg.Loc = time.UTC
		return DialectMySQL, cfg.FormatDSN(), nil
	default:
		return "", "", fmt.Errorf("unsupported database scheme %q", u.Scheme)
	}
}

func NewSQLDatabase(dialect Dialect, dsn string) (*SQLDatabase, error) {
	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	d := &SQLDatabase{db: db, dialect: dialect, now: time.Now}
	if err := d.InitSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}
	return d, nil
}

func schema(dialect Dialect) []string {
	if dialect == DialectMySQL {
		return []string{
			`CREATE TABLE IF NOT EXISTS task_history (
				task_id VARCHAR(128) PRIMARY KEY,
				status VARCHAR(32) NOT NULL,
				description TEXT,
				created_at DATETIME(6) NOT NULL,
				started_at DATETIME(6) NULL,
				completed_at DATETIME(6) NULL,
				execution_time DOUBLE NULL,
				error_message TEXT,
				result LONGTEXT,
				INDEX idx_task_history_created (created_at)
			);`,
		}
	}
	return []string{
		`CREATE TABLE IF NOT EXISTS task_history (
			task_id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			description TEXT,
			created_at TIMESTAMP NOT NULL,
			started_at TIMESTAMP,
			completed_at TIMESTAMP,
			execution_time DOUBLE PRECISION,
			error_message TEXT,
			result TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_task_history_created ON task_history(created_at DESC);`,
	}
}

func (d *SQLDatabase) InitSchema() error {
	for _, query := range schema(d.dialect) {
		if _, err := d.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query %s: %w", query, err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders to $1, $2, ... for PostgreSQL.
func rebind(dialect Dialect, query string) string {
	if dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func upsertQuery(dialect Dialect) string {
	insert := `INSERT INTO task_history (task_id, status, description, created_at, started_at, completed_at, execution_time, error_message, result)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if dialect == DialectMySQL {
		return insert + `
		ON DUPLICATE KEY UPDATE
			status = VALUES(status),
			started_at = VALUES(started_at),
			completed_at = VALUES(completed_at),
			execution_time = VALUES(execution_time),
			error_message = VALUES(error_message),
			result = VALUES(result)`
	}
	return rebind(dialect, insert+`
		ON CONFLICT (task_id) DO UPDATE SET
			status = EXCLUDED.status,
			started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at,
			execution_time = EXCLUDED.execution_time,
			error_message = EXCLUDED.error_message,
			result = EXCLUDED.result`)
}

func nullTime(t *agentapi.Time) sql.NullTime {
	if t == nil || t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func (d *SQLDatabase) UpsertTask(task agentapi.TaskStatus) error {
	var result []byte
	if task.Result != nil {
		var err error
		if result, err = json.Marshal(task.Result); err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
	}
	var execTime sql.NullFloat64
	if task.ExecutionTime != nil {
		execTime = sql.NullFloat64{Float64: *task.ExecutionTime, Valid: true}
	}

	_, err := d.db.Exec(upsertQuery(d.dialect),
		task.TaskID, string(task.Status), task.Description(), task.CreatedAt.UTC(),
		nullTime(task.StartedAt), nullTime(task.CompletedAt), execTime, task.Error, string(result))
	return err
}

const selectTask = `SELECT task_id, status, created_at, started_at, completed_at, execution_time, error_message, result FROM task_history`

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(s scanner) (agentapi.TaskStatus, error) {
	var t agentapi.TaskStatus
	var status string
	var created time.Time
	var started, completed sql.NullTime
	var execTime sql.NullFloat64
	var errMsg, result sql.NullString

	if err := s.Scan(&t.TaskID, &status, &created, &started, &completed, &execTime, &errMsg, &result); err != nil {
		return t, err
	}
	t.Status = agentapi.TaskState(status)
	t.CreatedAt = agentapi.NewTime(created.UTC())
	if started.Valid {
		v := agentapi.NewTime(started.Time.UTC())
		t.StartedAt = &v
	}
	if completed.Valid {
		v := agentapi.NewTime(completed.Time.UTC())
		t.CompletedAt = &v
	}
	if execTime.Valid {
		v := execTime.Float64
		t.ExecutionTime = &v
	}
	t.Error = errMsg.String
	if result.String != "" {
		if err := json.Unmarshal([]byte(result.String), &t.Result); err != nil {
			return t, fmt.Errorf("decode result of %s: %w", t.TaskID, err)
		}
	}
	return t, nil
}

func (d *SQLDatabase) GetTask(taskID string) (*agentapi.TaskStatus, error) {
	row := d.db.QueryRow(rebind(d.dialect, selectTask+` WHERE task_id = ?`), taskID)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (d *SQLDatabase) ListTasks(limit int) ([]agentapi.TaskStatus, error) {
	query := selectTask + ` ORDER BY created_at DESC, task_id DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := d.db.Query(rebind(d.dialect, query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []agentapi.TaskStatus
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (d *SQLDatabase) records(since time.Time) ([]record, error) {
	rows, err := d.db.Query(rebind(d.dialect,
		`SELECT created_at, status, execution_time FROM task_history WHERE created_at >= ?`), since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []record
	for rows.Next() {
		var r record
		var status string
		var execTime sql.NullFloat64
		if err := rows.Scan(&r.createdAt, &status, &execTime); err != nil {
			return nil, err
		}
		r.status = agentapi.TaskState(status)
		if execTime.Valid {
			v := execTime.Float64
			r.executionTime = &v
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (d *SQLDatabase) GetTrends(days int) (*TrendData, error) {
	if days <= 0 {
		days = 7
	}
	now := d.now()
	records, err := d.records(now.AddDate(0, 0, -2*days))
	if err != nil {
		return nil, err
	}
	return computeTrends(records, now, days), nil
}

func (d *SQLDatabase) GetDailyMetrics(days int) ([]DataPoint, error) {
	if days <= 0 {
		days = 7
	}
	now := d.now()
	records, err := d.records(now.AddDate(0, 0, -days))
	if err != nil {
		return nil, err
	}
	return bucketDaily(records, now, days), nil
}

func (d *SQLDatabase) Close() error {
	return d.db.Close()
}
