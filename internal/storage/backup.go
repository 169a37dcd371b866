package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/aiwuxian/project-extraction/internal/models"
	"github.com/klauspost/compress/zstd"
)

// BackupProfile 战局开始前落盘一份可恢复的档案快照（zstd压缩JSON）。
// 每个会话只保留最近 keep 份，旧快照自动清理。
func (s *Storage) BackupProfile(profile *models.Profile) (string, error) {
	dir := filepath.Join(s.backupDir, profile.SessionID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("创建备份目录失败: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("%d.json.zst", time.Now().UnixNano()))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("创建备份文件失败: %w", err)
	}
	defer f.Close()

	zw, err := zstd.NewWriter(f)
	if err != nil {
		return "", fmt.Errorf("初始化压缩器失败: %w", err)
	}

	if err := json.NewEncoder(zw).Encode(profile); err != nil {
		zw.Close()
		return "", fmt.Errorf("写入备份失败: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("写入备份失败: %w", err)
	}

	s.pruneBackups(dir)
	return path, nil
}

// RestoreProfileBackup 从快照文件恢复档案
func (s *Storage) RestoreProfileBackup(path string) (*models.Profile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开备份文件失败: %w", err)
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("初始化解压器失败: %w", err)
	}
	defer zr.Close()

	var profile models.Profile
	if err := json.NewDecoder(zr).Decode(&profile); err != nil {
		return nil, fmt.Errorf("解析备份失败: %w", err)
	}

	return &profile, nil
}

// pruneBackups 清理多余的旧快照，失败只影响磁盘占用，不影响主流程
func (s *Storage) pruneBackups(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) <= s.keep {
		return
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names) // 文件名为纳秒时间戳，字典序即时间序

	for _, name := range names[:len(names)-s.keep] {
		os.Remove(filepath.Join(dir, name))
	}
}
