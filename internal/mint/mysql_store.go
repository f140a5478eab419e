package mint

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"

	xerrors "VoiceMCP-Chain/internal/errors"
)

// MySQLStore 使用 MySQL 保存铸造记录。状态推进通过条件更新实现,
// 并发的工作协程不会把同一条记录推进两次。
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore 创建一个新的 MySQLStore。
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "MySQL DSN 不能为空")
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接 MySQL 失败")
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(10 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "无法连接到 MySQL")
	}

	store := &MySQLStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *MySQLStore) initSchema() error {
	const schema = `CREATE TABLE IF NOT EXISTS mint_records (
        id VARCHAR(64) PRIMARY KEY,
        requester VARCHAR(255) NOT NULL,
        metadata TEXT NOT NULL,
        idempotency_key VARCHAR(255) DEFAULT '',
        status VARCHAR(32) NOT NULL,
        content_uri VARCHAR(512) DEFAULT '',
        token_id VARCHAR(128) DEFAULT '',
        tx_hash VARCHAR(66) DEFAULT '',
        failure_reason TEXT,
        error_code VARCHAR(64) DEFAULT '',
        created_at BIGINT NOT NULL,
        updated_at BIGINT NOT NULL,
        INDEX idx_mint_status (status),
        INDEX idx_mint_token (token_id),
        INDEX idx_mint_updated (updated_at)
)`

	if _, err := s.db.Exec(schema); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "初始化 mint_records 表失败")
	}
	return nil
}

// Create 插入新的铸造记录。
func (s *MySQLStore) Create(ctx context.Context, record *Record) error {
	if record == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "record 不能为空")
	}
	if strings.TrimSpace(record.ID) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "铸造 ID 不能为空")
	}

	now := time.Now().Unix()
	record.CreatedAt = now
	record.UpdatedAt = now
	if record.Status == "" {
		record.Status = StatusPending
	}

	metadataValue, err := json.Marshal(record.Metadata)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "编码 metadata 失败")
	}

	const stmt = `INSERT INTO mint_records
        (id, requester, metadata, idempotency_key, status, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)`

	if _, err := s.db.ExecContext(ctx, stmt,
		record.ID,
		record.Requester,
		string(metadataValue),
		record.IdempotencyKey,
		record.Status,
		record.CreatedAt,
		record.UpdatedAt,
	); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入铸造记录失败")
	}
	return nil
}

// Get 返回铸造记录。
func (s *MySQLStore) Get(ctx context.Context, id string) (*Record, error) {
	const query = `SELECT id, requester, metadata, idempotency_key, status,
        content_uri, token_id, tx_hash, failure_reason, error_code, created_at, updated_at
        FROM mint_records WHERE id = ?`
	return s.scanOne(s.db.QueryRowContext(ctx, query, id))
}

// GetByToken 按链上 token ID 反查记录。
func (s *MySQLStore) GetByToken(ctx context.Context, tokenID string) (*Record, error) {
	const query = `SELECT id, requester, metadata, idempotency_key, status,
        content_uri, token_id, tx_hash, failure_reason, error_code, created_at, updated_at
        FROM mint_records WHERE token_id = ? LIMIT 1`
	return s.scanOne(s.db.QueryRowContext(ctx, query, tokenID))
}

func (s *MySQLStore) scanOne(row *sql.Row) (*Record, error) {
	var record Record
	var metadataRaw string
	var failureReason sql.NullString
	err := row.Scan(
		&record.ID,
		&record.Requester,
		&metadataRaw,
		&record.IdempotencyKey,
		&record.Status,
		&record.ContentURI,
		&record.TokenID,
		&record.TxHash,
		&failureReason,
		&record.ErrorCode,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrMintNotFound
	}
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取铸造记录失败")
	}
	if failureReason.Valid {
		record.FailureReason = failureReason.String
	}
	if err := json.Unmarshal([]byte(metadataRaw), &record.Metadata); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解码 metadata 失败")
	}
	return &record, nil
}

// Claim 以条件更新把记录从 pending 推进到 uploading。
func (s *MySQLStore) Claim(ctx context.Context, id string) (*Record, error) {
	const stmt = `UPDATE mint_records SET status = ?, updated_at = ?
        WHERE id = ? AND status = ?`
	result, err := s.db.ExecContext(ctx, stmt, StatusUploading, time.Now().Unix(), id, StatusPending)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "认领铸造记录失败")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "认领铸造记录失败")
	}
	record, getErr := s.Get(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	if affected == 0 {
		return record, ErrMintConflict
	}
	return record, nil
}

// MarkSubmitted 记录内容地址与交易哈希。
func (s *MySQLStore) MarkSubmitted(ctx context.Context, id, contentURI, txHash string) error {
	const stmt = `UPDATE mint_records SET status = ?, content_uri = ?, tx_hash = ?, updated_at = ?
        WHERE id = ? AND status = ?`
	return s.transition(ctx, id, stmt, StatusSubmitted, contentURI, txHash, time.Now().Unix(), id, StatusUploading)
}

// MarkConfirmed 记录链上确认结果。
func (s *MySQLStore) MarkConfirmed(ctx context.Context, id, tokenID string) error {
	const stmt = `UPDATE mint_records SET status = ?, token_id = ?, updated_at = ?
        WHERE id = ? AND status = ?`
	return s.transition(ctx, id, stmt, StatusConfirmed, tokenID, time.Now().Unix(), id, StatusSubmitted)
}

// MarkFailed 将记录置为终态失败。终态记录不再变化。
func (s *MySQLStore) MarkFailed(ctx context.Context, id string, code xerrors.Code, reason string) error {
	const stmt = `UPDATE mint_records SET status = ?, error_code = ?, failure_reason = ?, updated_at = ?
        WHERE id = ? AND status NOT IN (?, ?)`
	return s.transition(ctx, id, stmt, StatusFailed, string(code), reason, time.Now().Unix(), id, StatusConfirmed, StatusFailed)
}

func (s *MySQLStore) transition(ctx context.Context, id, stmt string, args ...any) error {
	result, err := s.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新铸造记录失败")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新铸造记录失败")
	}
	if affected == 0 {
		if _, getErr := s.Get(ctx, id); getErr != nil {
			return getErr
		}
		return ErrMintConflict
	}
	return nil
}

// List 返回最近的铸造记录。
func (s *MySQLStore) List(ctx context.Context, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 20
	}
	const query = `SELECT id, requester, metadata, idempotency_key, status,
        content_uri, token_id, tx_hash, failure_reason, error_code, created_at, updated_at
        FROM mint_records ORDER BY updated_at DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询铸造记录失败")
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		var record Record
		var metadataRaw string
		var failureReason sql.NullString
		if err := rows.Scan(
			&record.ID,
			&record.Requester,
			&metadataRaw,
			&record.IdempotencyKey,
			&record.Status,
			&record.ContentURI,
			&record.TokenID,
			&record.TxHash,
			&failureReason,
			&record.ErrorCode,
			&record.CreatedAt,
			&record.UpdatedAt,
		); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取铸造记录失败")
		}
		if failureReason.Valid {
			record.FailureReason = failureReason.String
		}
		if err := json.Unmarshal([]byte(metadataRaw), &record.Metadata); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解码 metadata 失败")
		}
		records = append(records, &record)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历铸造记录失败")
	}
	return records, nil
}

// Close 释放数据库连接。
func (s *MySQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
