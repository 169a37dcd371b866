package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aiwuxian/project-extraction/internal/models"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	dir := t.TempDir()
	s, err := New(models.DatabaseConfig{
		Path:       filepath.Join(dir, "test.db"),
		BackupDir:  filepath.Join(dir, "backups"),
		BackupKeep: 2,
	})
	if err != nil {
		t.Fatalf("初始化存储失败: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleProfile() *models.Profile {
	return &models.Profile{
		SessionID: "session-1",
		Primary: models.CharacterProfile{
			ID: "pmc-1", Side: models.SidePrimary, Level: 12,
			Encyclopedia: map[string]bool{"tpl_a": true},
			Inventory: models.Inventory{
				StashID: "stash",
				Items:   []models.Item{{ID: "gun", TemplateID: "ak", ParentID: "stash"}},
			},
		},
		Scavenger: models.CharacterProfile{ID: "scav-1", Side: models.SideScavenger, Level: 3},
		Info:      models.ProfileInfo{Nickname: "tester", TotalRaids: 7},
	}
}

func TestProfileRoundTrip(t *testing.T) {
	s := newTestStorage(t)
	profile := sampleProfile()

	if err := s.SaveProfile(profile); err != nil {
		t.Fatalf("保存档案失败: %v", err)
	}

	loaded, err := s.GetProfile("session-1")
	if err != nil {
		t.Fatalf("读取档案失败: %v", err)
	}
	if loaded.Primary.Level != 12 || loaded.Scavenger.Level != 3 {
		t.Errorf("角色等级不符: %d/%d", loaded.Primary.Level, loaded.Scavenger.Level)
	}
	if !loaded.Primary.Encyclopedia["tpl_a"] {
		t.Error("图鉴未能往返")
	}
	if loaded.Info.TotalRaids != 7 {
		t.Errorf("战局计数 = %d, 期望 7", loaded.Info.TotalRaids)
	}

	// 覆盖写入
	profile.Primary.Level = 13
	if err := s.SaveProfile(profile); err != nil {
		t.Fatalf("覆盖保存失败: %v", err)
	}
	loaded, _ = s.GetProfile("session-1")
	if loaded.Primary.Level != 13 {
		t.Errorf("覆盖后等级 = %d, 期望 13", loaded.Primary.Level)
	}
}

func TestBackupRoundTripAndPrune(t *testing.T) {
	s := newTestStorage(t)
	profile := sampleProfile()

	var lastPath string
	for i := 0; i < 4; i++ {
		profile.Primary.Level = 20 + i
		path, err := s.BackupProfile(profile)
		if err != nil {
			t.Fatalf("备份失败: %v", err)
		}
		lastPath = path
	}

	restored, err := s.RestoreProfileBackup(lastPath)
	if err != nil {
		t.Fatalf("恢复备份失败: %v", err)
	}
	if restored.Primary.Level != 23 {
		t.Errorf("恢复的等级 = %d, 期望 23", restored.Primary.Level)
	}
	if restored.SessionID != "session-1" {
		t.Errorf("恢复的会话ID = %s", restored.SessionID)
	}

	// 只保留最近 keep 份
	entries, err := os.ReadDir(filepath.Dir(lastPath))
	if err != nil {
		t.Fatalf("读取备份目录失败: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("备份文件数 = %d, 期望保留 2", len(entries))
	}
}

func TestInsuranceQueue(t *testing.T) {
	s := newTestStorage(t)

	rec := &models.InsuranceRecord{
		ID:        "ins-1",
		SessionID: "session-1",
		TraderID:  "fence",
		Items:     []models.Item{{ID: "gun", TemplateID: "ak"}},
		StagedAt:  100,
	}
	if err := s.StageInsurance(rec); err != nil {
		t.Fatalf("暂存保险失败: %v", err)
	}

	records, err := s.GetStagedInsurance("session-1")
	if err != nil {
		t.Fatalf("读取保险队列失败: %v", err)
	}
	if len(records) != 1 || records[0].TraderID != "fence" || len(records[0].Items) != 1 {
		t.Errorf("保险记录不符: %+v", records)
	}

	if err := s.DeleteStagedInsurance("ins-1"); err != nil {
		t.Fatalf("删除保险记录失败: %v", err)
	}
	records, _ = s.GetStagedInsurance("session-1")
	if len(records) != 0 {
		t.Error("投递后保险记录应被清除")
	}
}

func TestMailOutbox(t *testing.T) {
	s := newTestStorage(t)

	mail := &models.MailMessage{
		ID:          "mail-1",
		SessionID:   "session-1",
		Sender:      "fence",
		MessageType: models.MessageTypeInsurance,
		TextKey:     "insurance_return",
		Items:       []models.Item{{ID: "gun", TemplateID: "ak"}},
		CreatedAt:   100,
	}
	if err := s.CreateMail(mail); err != nil {
		t.Fatalf("写入站内信失败: %v", err)
	}

	messages, err := s.GetMailBySession("session-1")
	if err != nil {
		t.Fatalf("读取站内信失败: %v", err)
	}
	if len(messages) != 1 || messages[0].Sender != "fence" {
		t.Errorf("站内信不符: %+v", messages)
	}
}
