package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aiwuxian/project-extraction/internal/models"
	_ "modernc.org/sqlite"
)

type Storage struct {
	db        *sql.DB
	backupDir string
	keep      int
}

func New(cfg models.DatabaseConfig) (*Storage, error) {
	// 确保目录存在
	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}

	keep := cfg.BackupKeep
	if keep <= 0 {
		keep = 5
	}

	s := &Storage{db: db, backupDir: cfg.BackupDir, keep: keep}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("初始化数据库结构失败: %w", err)
	}

	return s, nil
}

func (s *Storage) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS profiles (
		session_id TEXT PRIMARY KEY,
		primary_character TEXT NOT NULL, -- JSON object
		scavenger_character TEXT NOT NULL, -- JSON object
		info TEXT, -- JSON object
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS insurance_queue (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		trader_id TEXT NOT NULL,
		items TEXT, -- JSON array
		staged_at INTEGER NOT NULL,
		FOREIGN KEY (session_id) REFERENCES profiles(session_id)
	);

	CREATE TABLE IF NOT EXISTS mail_outbox (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		sender TEXT NOT NULL,
		message_type TEXT NOT NULL,
		text_key TEXT,
		items TEXT, -- JSON array
		expiry_seconds INTEGER DEFAULT 0,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (session_id) REFERENCES profiles(session_id)
	);

	CREATE INDEX IF NOT EXISTS idx_insurance_session ON insurance_queue(session_id);
	CREATE INDEX IF NOT EXISTS idx_mail_session ON mail_outbox(session_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *Storage) Close() error {
	return s.db.Close()
}

// Profile operations

// SaveProfile 保存玩家档案（整个文档覆盖写入）
func (s *Storage) SaveProfile(profile *models.Profile) error {
	primaryJSON, _ := json.Marshal(profile.Primary)
	scavJSON, _ := json.Marshal(profile.Scavenger)
	infoJSON, _ := json.Marshal(profile.Info)

	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO profiles (session_id, primary_character, scavenger_character, info, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, profile.SessionID, primaryJSON, scavJSON, infoJSON, time.Now())

	return err
}

// GetProfile 读取玩家档案
func (s *Storage) GetProfile(sessionID string) (*models.Profile, error) {
	var profile models.Profile
	var primaryJSON, scavJSON, infoJSON string

	err := s.db.QueryRow(`
		SELECT session_id, primary_character, scavenger_character, info
		FROM profiles WHERE session_id = ?
	`, sessionID).Scan(&profile.SessionID, &primaryJSON, &scavJSON, &infoJSON)

	if err != nil {
		return nil, err
	}

	json.Unmarshal([]byte(primaryJSON), &profile.Primary)
	json.Unmarshal([]byte(scavJSON), &profile.Scavenger)
	json.Unmarshal([]byte(infoJSON), &profile.Info)

	return &profile, nil
}

// Insurance operations

// StageInsurance 暂存一条投保损失记录，等待延迟投递
func (s *Storage) StageInsurance(rec *models.InsuranceRecord) error {
	itemsJSON, _ := json.Marshal(rec.Items)

	_, err := s.db.Exec(`
		INSERT INTO insurance_queue (id, session_id, trader_id, items, staged_at)
		VALUES (?, ?, ?, ?, ?)
	`, rec.ID, rec.SessionID, rec.TraderID, itemsJSON, rec.StagedAt)

	return err
}

// GetStagedInsurance 列出某会话暂存的全部投保记录
func (s *Storage) GetStagedInsurance(sessionID string) ([]models.InsuranceRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, session_id, trader_id, items, staged_at
		FROM insurance_queue WHERE session_id = ?
		ORDER BY staged_at ASC
	`, sessionID)

	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.InsuranceRecord
	for rows.Next() {
		var rec models.InsuranceRecord
		var itemsJSON string

		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.TraderID, &itemsJSON, &rec.StagedAt); err != nil {
			continue
		}

		json.Unmarshal([]byte(itemsJSON), &rec.Items)
		records = append(records, rec)
	}

	return records, nil
}

// DeleteStagedInsurance 删除一条投保记录（投递完成后调用）
func (s *Storage) DeleteStagedInsurance(id string) error {
	_, err := s.db.Exec(`DELETE FROM insurance_queue WHERE id = ?`, id)
	return err
}

// Mail operations

// CreateMail 写入一封待投递站内信
func (s *Storage) CreateMail(mail *models.MailMessage) error {
	itemsJSON, _ := json.Marshal(mail.Items)

	_, err := s.db.Exec(`
		INSERT INTO mail_outbox (id, session_id, sender, message_type, text_key, items, expiry_seconds, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, mail.ID, mail.SessionID, mail.Sender, mail.MessageType, mail.TextKey,
		itemsJSON, mail.ExpirySeconds, mail.CreatedAt)

	return err
}

// GetMailBySession 列出某会话的全部站内信
func (s *Storage) GetMailBySession(sessionID string) ([]models.MailMessage, error) {
	rows, err := s.db.Query(`
		SELECT id, session_id, sender, message_type, text_key, items, expiry_seconds, created_at
		FROM mail_outbox WHERE session_id = ?
		ORDER BY created_at DESC
	`, sessionID)

	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.MailMessage
	for rows.Next() {
		var mail models.MailMessage
		var itemsJSON string

		if err := rows.Scan(&mail.ID, &mail.SessionID, &mail.Sender, &mail.MessageType,
			&mail.TextKey, &itemsJSON, &mail.ExpirySeconds, &mail.CreatedAt); err != nil {
			continue
		}

		json.Unmarshal([]byte(itemsJSON), &mail.Items)
		messages = append(messages, mail)
	}

	return messages, nil
}
