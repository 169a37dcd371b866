package services

import (
	"path/filepath"
	"testing"

	"github.com/aiwuxian/project-extraction/internal/models"
	"github.com/aiwuxian/project-extraction/internal/storage"
)

// ---- 测试替身 ----

type fakeMail struct {
	sent []string // messageType:textKey
}

func (m *fakeMail) SendLocalisedMessage(sessionID, sender, messageType, textKey string, items []models.Item, expirySeconds int) error {
	m.sent = append(m.sent, messageType+":"+textKey)
	return nil
}

type countingRewards struct {
	applied []string // source:sourceID
}

func (r *countingRewards) ApplyRewards(rewards []models.Reward, source string, profile *models.Profile, char *models.CharacterProfile, sourceID string) []models.Item {
	r.applied = append(r.applied, source+":"+sourceID)
	return []models.Item{{ID: "granted_" + sourceID}}
}

type noopInsurance struct{}

func (noopInsurance) MapInsuredItemsToTrader(char *models.CharacterProfile, lost []models.Item) map[string][]models.Item {
	return nil
}
func (noopInsurance) StoreGearLostInRaidToSendLater(sessionID string, byTrader map[string][]models.Item) error {
	return nil
}
func (noopInsurance) StartPostRaidInsuranceLostProcess(sessionID string, char *models.CharacterProfile, lost []models.Item) error {
	return nil
}

type fakeLoadout struct {
	calls int
}

func (l *fakeLoadout) GenerateScavLoadout(char *models.CharacterProfile) {
	l.calls++
}

// ---- 夹具 ----

func testStorage(t *testing.T) *storage.Storage {
	t.Helper()
	dir := t.TempDir()
	st, err := storage.New(models.DatabaseConfig{
		Path:       filepath.Join(dir, "test.db"),
		BackupDir:  filepath.Join(dir, "backups"),
		BackupKeep: 2,
	})
	if err != nil {
		t.Fatalf("初始化测试数据库失败: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func metaFixture() *MetaService {
	return NewMetaService(&models.Config{
		Quests: []models.QuestDefinition{
			{
				ID: "quest_docs", TraderID: "mechanic", Restartable: true,
				Conditions: []models.QuestCondition{
					{ID: "cond_find_docs", Type: models.ConditionFindItem, TargetTemplates: []string{"folder_docs"}},
					{ID: "cond_handover_docs", Type: models.ConditionHandoverItem, TargetTemplates: []string{"folder_docs"}},
					{ID: "cond_kill_count", Type: models.ConditionCounter, Count: 5},
				},
				Rewards: []models.Reward{{Type: models.RewardExperience, Count: 3500}},
			},
			{
				ID: "quest_fence", TraderID: "fence", Restartable: false,
				Rewards: []models.Reward{{Type: models.RewardItem, TemplateID: "ammo_box", Count: 2}},
			},
		},
		Achievements: []models.AchievementDefinition{
			{ID: "ach_a", Rewards: []models.Reward{{Type: models.RewardExperience, Count: 1000}}},
			{ID: "ach_b", Rewards: []models.Reward{{Type: models.RewardItem, TemplateID: "secure_case"}}},
		},
		Traders: []models.TraderDefinition{
			{ID: "fence", ClientQuestRewards: false},
			{ID: "mechanic", ClientQuestRewards: true},
		},
	})
}

func reconcileFixture(t *testing.T) (*ReconcileService, *fakeMail, *countingRewards, *fakeLoadout) {
	t.Helper()
	mail := &fakeMail{}
	rewards := &countingRewards{}
	loadout := &fakeLoadout{}

	fence := models.FenceConfig{
		TraderID:           "fence",
		MinStanding:        -7,
		MaxStanding:        15,
		ExtractBonus:       0.01,
		CarExtractBaseGain: 0.5,
	}
	repair := models.TransitRepairConfig{RestorePercent: 60, RemoveEffects: []string{"Fracture"}}

	rc := NewReconcileService(testStorage(t), metaFixture(), fence, repair,
		rewards, noopInsurance{}, mail, loadout)
	return rc, mail, rewards, loadout
}

func testProfile() *models.Profile {
	return &models.Profile{
		SessionID: "session-1",
		Primary:   models.CharacterProfile{ID: "pmc-1", Side: models.SidePrimary},
		Scavenger: models.CharacterProfile{ID: "scav-1", Side: models.SideScavenger},
	}
}

func endReq(result string, post *models.CharacterProfile) *models.EndRaidRequest {
	return &models.EndRaidRequest{
		ServerID: models.ComposeServerID("harbor", models.SidePrimary, 1),
		Results:  models.RaidResults{Result: result, Profile: post},
	}
}

// ---- 商人声望 ----

func TestFenceStandingClampedAndSynced(t *testing.T) {
	rc, _, _, _ := reconcileFixture(t)
	profile := testProfile()

	post := &models.CharacterProfile{
		TraderStandings: map[string]models.TraderStanding{
			"fence": {Standing: 20}, // 超出上限
		},
	}

	if err := rc.ReconcilePrimary(profile, endReq(models.RaidResultSurvived, post), models.OutcomeSurvived, nil); err != nil {
		t.Fatalf("结算失败: %v", err)
	}

	got := profile.Primary.TraderStandings["fence"].Standing
	if got != 15 {
		t.Errorf("主战角色声望 = %v, 期望钳制到 15", got)
	}
	if scavGot := profile.Scavenger.TraderStandings["fence"].Standing; scavGot != got {
		t.Errorf("拾荒者声望 = %v, 应与主战角色一致", scavGot)
	}
}

func TestUnknownTraderReportIgnored(t *testing.T) {
	rc, _, _, _ := reconcileFixture(t)
	profile := testProfile()

	post := &models.CharacterProfile{
		TraderStandings: map[string]models.TraderStanding{
			"ghost_trader": {Standing: 99},
			"fence":        {Standing: 1},
		},
	}

	if err := rc.ReconcilePrimary(profile, endReq(models.RaidResultSurvived, post), models.OutcomeSurvived, nil); err != nil {
		t.Fatalf("结算失败: %v", err)
	}

	if _, ok := profile.Primary.TraderStandings["ghost_trader"]; ok {
		t.Error("未知商人的上报应被忽略")
	}
	if _, ok := profile.Primary.TraderStandings["fence"]; !ok {
		t.Error("合法商人的上报不应连坐")
	}
}

func TestCarExtractFenceGainDecays(t *testing.T) {
	rc, _, _, _ := reconcileFixture(t)
	profile := testProfile()
	carExit := &models.Exit{Name: "dock_car", Type: models.ExitTypeCar}

	post1 := &models.CharacterProfile{
		TraderStandings: map[string]models.TraderStanding{"fence": {Standing: 14.0}},
	}
	req := endReq(models.RaidResultSurvived, post1)
	req.ServerID = models.ComposeServerID("harbor", models.SideScavenger, 1)
	if err := rc.ReconcileScavenger(profile, req, models.OutcomeSurvived, carExit); err != nil {
		t.Fatalf("结算失败: %v", err)
	}

	// 首次车辆撤离：+0.5/1
	if got := profile.Scavenger.TraderStandings["fence"].Standing; got != 14.5 {
		t.Errorf("首次车辆撤离后声望 = %v, 期望 14.5", got)
	}

	// 第二次：客户端上报同步后的值与累计撤离次数，+0.5/2
	post2 := &models.CharacterProfile{
		TraderStandings: map[string]models.TraderStanding{"fence": {Standing: 14.5}},
		Stats: models.CharacterStats{
			CarExtractCounts: map[string]int{"dock_car": 1},
		},
	}
	if err := rc.ReconcileScavenger(profile, endReq(models.RaidResultSurvived, post2), models.OutcomeSurvived, carExit); err != nil {
		t.Fatalf("结算失败: %v", err)
	}
	if got := profile.Scavenger.TraderStandings["fence"].Standing; got != 14.75 {
		t.Errorf("第二次车辆撤离后声望 = %v, 期望 14.75", got)
	}
	if count := profile.Scavenger.Stats.CarExtractCounts["dock_car"]; count != 2 {
		t.Errorf("车辆撤离次数 = %d, 期望 2", count)
	}
}

func TestCarExtractGainClampedNearCeiling(t *testing.T) {
	rc, _, _, _ := reconcileFixture(t)
	profile := testProfile()
	carExit := &models.Exit{Name: "dock_car", Type: models.ExitTypeCar}

	// 14.99 + 0.5 越过上限，钳制到 15；第二次 +0.25 同样钳制
	post1 := &models.CharacterProfile{
		TraderStandings: map[string]models.TraderStanding{"fence": {Standing: 14.99}},
	}
	if err := rc.ReconcileScavenger(profile, endReq(models.RaidResultSurvived, post1), models.OutcomeSurvived, carExit); err != nil {
		t.Fatalf("结算失败: %v", err)
	}
	if got := profile.Scavenger.TraderStandings["fence"].Standing; got != 15 {
		t.Errorf("首次撤离后声望 = %v, 期望钳制到 15", got)
	}

	post2 := &models.CharacterProfile{
		TraderStandings: map[string]models.TraderStanding{"fence": {Standing: 15}},
		Stats:           models.CharacterStats{CarExtractCounts: map[string]int{"dock_car": 1}},
	}
	if err := rc.ReconcileScavenger(profile, endReq(models.RaidResultSurvived, post2), models.OutcomeSurvived, carExit); err != nil {
		t.Fatalf("结算失败: %v", err)
	}
	if got := profile.Scavenger.TraderStandings["fence"].Standing; got != 15 {
		t.Errorf("第二次撤离后声望 = %v, 期望仍为 15", got)
	}

	// 两个角色的声望保持一致
	if profile.Primary.TraderStandings["fence"] != profile.Scavenger.TraderStandings["fence"] {
		t.Error("结算后两个角色的共享商人声望应一致")
	}
}

func TestFenceSyncClearsStaleEntry(t *testing.T) {
	rc, _, _, _ := reconcileFixture(t)
	profile := testProfile()
	profile.Scavenger.TraderStandings = map[string]models.TraderStanding{
		"fence": {Standing: 3},
	}

	// 主战角色没有声望记录的战局结束后，对端的残留记录同样清除
	post := &models.CharacterProfile{}
	if err := rc.ReconcilePrimary(profile, endReq(models.RaidResultKilled, post), models.OutcomeDied, nil); err != nil {
		t.Fatalf("结算失败: %v", err)
	}

	if _, ok := profile.Scavenger.TraderStandings["fence"]; ok {
		t.Error("拾荒者的残留声望记录应被清除，两个角色保持一致")
	}
	if _, ok := profile.Primary.TraderStandings["fence"]; ok {
		t.Error("主战角色不应凭空出现声望记录")
	}
}

// ---- 成就 ----

func TestAchievementRewardsSettledExactlyOnce(t *testing.T) {
	rc, _, rewards, _ := reconcileFixture(t)
	profile := testProfile()
	profile.Primary.Achievements = map[string]int64{"ach_a": 100}

	post := &models.CharacterProfile{
		Achievements: map[string]int64{"ach_a": 100, "ach_b": 200},
	}

	if err := rc.ReconcilePrimary(profile, endReq(models.RaidResultSurvived, post), models.OutcomeSurvived, nil); err != nil {
		t.Fatalf("结算失败: %v", err)
	}

	if len(rewards.applied) != 1 || rewards.applied[0] != "achievement:ach_b" {
		t.Errorf("首次结算发放 = %v, 期望只有 achievement:ach_b", rewards.applied)
	}

	// 同样的快照再结算一次：成就已入档，不得重复发奖
	if err := rc.ReconcilePrimary(profile, endReq(models.RaidResultSurvived, post), models.OutcomeSurvived, nil); err != nil {
		t.Fatalf("结算失败: %v", err)
	}
	if len(rewards.applied) != 1 {
		t.Errorf("重复结算后发放 = %v, 不应新增", rewards.applied)
	}
}

// ---- 任务 ----

func TestReplayMissedQuestCompletions(t *testing.T) {
	rc, mail, rewards, _ := reconcileFixture(t)
	profile := testProfile()
	profile.Primary.Quests = []models.QuestStatus{
		{ID: "quest_fence", Status: models.QuestStatusStarted},
		{ID: "quest_docs", Status: models.QuestStatusStarted},
	}

	post := &models.CharacterProfile{
		Quests: []models.QuestStatus{
			{ID: "quest_fence", Status: models.QuestStatusSuccess},
			{ID: "quest_docs", Status: models.QuestStatusSuccess},
		},
	}

	if err := rc.ReconcilePrimary(profile, endReq(models.RaidResultSurvived, post), models.OutcomeSurvived, nil); err != nil {
		t.Fatalf("结算失败: %v", err)
	}

	// fence 商人不由客户端发奖，服务端补跑；mechanic 商人客户端已发，跳过
	if len(rewards.applied) != 1 || rewards.applied[0] != "quest:quest_fence" {
		t.Errorf("补发奖励 = %v, 期望只有 quest:quest_fence", rewards.applied)
	}

	found := false
	for _, s := range mail.sent {
		if s == models.MessageTypeReward+":quest_complete_quest_fence" {
			found = true
		}
	}
	if !found {
		t.Errorf("补发奖励应伴随奖励邮件, 实际邮件: %v", mail.sent)
	}
}

func TestFailedQuestNormalizedByDefinition(t *testing.T) {
	rc, _, _, _ := reconcileFixture(t)
	profile := testProfile()

	post := &models.CharacterProfile{
		Quests: []models.QuestStatus{
			{ID: "quest_docs", Status: models.QuestStatusFail},            // 可重开
			{ID: "quest_fence", Status: models.QuestStatusFailRestartable}, // 终局失败
		},
	}

	if err := rc.ReconcilePrimary(profile, endReq(models.RaidResultSurvived, post), models.OutcomeSurvived, nil); err != nil {
		t.Fatalf("结算失败: %v", err)
	}

	for _, q := range profile.Primary.Quests {
		switch q.ID {
		case "quest_docs":
			if q.Status != models.QuestStatusFailRestartable {
				t.Errorf("可重开任务状态 = %s, 期望 FailRestartable", q.Status)
			}
		case "quest_fence":
			if q.Status != models.QuestStatusFail {
				t.Errorf("终局失败任务状态 = %s, 期望 Fail", q.Status)
			}
		}
	}
}

func TestLostQuestItemConditionsUncompleted(t *testing.T) {
	rc, _, _, _ := reconcileFixture(t)
	profile := testProfile()
	profile.Primary.Inventory = models.Inventory{
		StashID: "stash",
		Items: []models.Item{
			{ID: "docs-1", TemplateID: "folder_docs", ParentID: "stash"},
		},
	}
	profile.Primary.Quests = []models.QuestStatus{
		{ID: "quest_docs", Status: models.QuestStatusStarted,
			CompletedConditions: []string{"cond_find_docs", "cond_kill_count"}},
	}

	post := &models.CharacterProfile{
		Inventory: models.Inventory{StashID: "stash"}, // 物品随死亡丢失
		Quests: []models.QuestStatus{
			{ID: "quest_docs", Status: models.QuestStatusStarted,
				CompletedConditions: []string{"cond_find_docs", "cond_kill_count"}},
		},
	}

	if err := rc.ReconcilePrimary(profile, endReq(models.RaidResultKilled, post), models.OutcomeDied, nil); err != nil {
		t.Fatalf("结算失败: %v", err)
	}

	conds := profile.Primary.Quests[0].CompletedConditions
	if len(conds) != 1 || conds[0] != "cond_kill_count" {
		t.Errorf("死亡后已完成条件 = %v, 期望仅剩 cond_kill_count", conds)
	}
}

func TestRetainedQuestItemConditionsKept(t *testing.T) {
	rc, _, _, _ := reconcileFixture(t)
	profile := testProfile()
	profile.Primary.Inventory = models.Inventory{
		StashID: "stash",
		Items: []models.Item{
			{ID: "docs-1", TemplateID: "folder_docs", ParentID: "stash", SlotID: models.SlotHideout},
		},
	}
	profile.Primary.Quests = []models.QuestStatus{
		{ID: "quest_docs", Status: models.QuestStatusStarted,
			CompletedConditions: []string{"cond_find_docs", "cond_kill_count"}},
	}

	// 任务物品留在仓库里，死亡后快照中仍然持有
	post := &models.CharacterProfile{
		Inventory: models.Inventory{
			StashID: "stash",
			Items: []models.Item{
				{ID: "docs-1", TemplateID: "folder_docs", ParentID: "stash", SlotID: models.SlotHideout},
			},
		},
		Quests: []models.QuestStatus{
			{ID: "quest_docs", Status: models.QuestStatusStarted,
				CompletedConditions: []string{"cond_find_docs", "cond_kill_count"}},
		},
	}

	if err := rc.ReconcilePrimary(profile, endReq(models.RaidResultKilled, post), models.OutcomeDied, nil); err != nil {
		t.Fatalf("结算失败: %v", err)
	}

	conds := profile.Primary.Quests[0].CompletedConditions
	if len(conds) != 2 {
		t.Errorf("仍持有的任务物品不算丢失, 已完成条件 = %v, 期望保持不变", conds)
	}
}

func TestScavQuestProgressMigratesToPrimary(t *testing.T) {
	rc, _, _, _ := reconcileFixture(t)
	profile := testProfile()
	profile.Primary.Quests = []models.QuestStatus{
		{ID: "quest_docs", Status: models.QuestStatusStarted},
	}

	post := &models.CharacterProfile{
		Quests: []models.QuestStatus{
			{ID: "quest_docs", Status: models.QuestStatusSuccess,
				CompletedConditions: []string{"cond_find_docs"}},
		},
		TaskConditionCounters: map[string]models.TaskConditionCounter{
			"c1":  {ID: "c1", SourceID: "quest_docs", Value: 3},
			"bad": {ID: "bad", SourceID: "ghost_quest", Value: 7}, // 来源不存在，应丢弃
		},
	}

	req := endReq(models.RaidResultSurvived, post)
	if err := rc.ReconcileScavenger(profile, req, models.OutcomeSurvived, nil); err != nil {
		t.Fatalf("结算失败: %v", err)
	}

	pq := profile.Primary.Quests[0]
	if pq.Status != models.QuestStatusSuccess {
		t.Errorf("迁移后主战角色任务状态 = %s, 期望 Success", pq.Status)
	}
	if len(pq.CompletedConditions) != 1 || pq.CompletedConditions[0] != "cond_find_docs" {
		t.Errorf("迁移后已完成条件 = %v", pq.CompletedConditions)
	}

	if _, ok := profile.Primary.TaskConditionCounters["c1"]; !ok {
		t.Error("合法来源的条件计数器应被迁移")
	}
	if _, ok := profile.Primary.TaskConditionCounters["bad"]; ok {
		t.Error("来源不存在的条件计数器应被丢弃")
	}
}

// ---- 图鉴 ----

func TestEncyclopediaMergeIsMonotonic(t *testing.T) {
	rc, _, _, _ := reconcileFixture(t)
	profile := testProfile()
	profile.Primary.Encyclopedia = map[string]bool{"tpl_a": true}
	profile.Scavenger.Encyclopedia = map[string]bool{"tpl_b": true}

	post := &models.CharacterProfile{
		Encyclopedia: map[string]bool{"tpl_c": true, "tpl_d": false},
	}

	if err := rc.ReconcilePrimary(profile, endReq(models.RaidResultSurvived, post), models.OutcomeSurvived, nil); err != nil {
		t.Fatalf("结算失败: %v", err)
	}

	for _, char := range []*models.CharacterProfile{&profile.Primary, &profile.Scavenger} {
		for _, tpl := range []string{"tpl_a", "tpl_b", "tpl_c"} {
			if !char.Encyclopedia[tpl] {
				t.Errorf("角色 %s 图鉴缺少 %s", char.ID, tpl)
			}
		}
		if _, ok := char.Encyclopedia["tpl_d"]; ok {
			t.Errorf("角色 %s 图鉴不应含未发现的 tpl_d", char.ID)
		}
	}
}

// ---- 拾荒者死亡 ----

func TestScavDeathRegeneratesLoadout(t *testing.T) {
	rc, _, _, loadout := reconcileFixture(t)
	profile := testProfile()
	profile.Scavenger.Inventory = models.Inventory{
		EquipmentID: "old_equip",
		Items:       []models.Item{{ID: "old_gun", ParentID: "old_equip"}},
	}

	post := &models.CharacterProfile{
		Inventory: models.Inventory{EquipmentID: "raid_equip"},
	}

	if err := rc.ReconcileScavenger(profile, endReq(models.RaidResultKilled, post), models.OutcomeDied, nil); err != nil {
		t.Fatalf("结算失败: %v", err)
	}

	if loadout.calls != 1 {
		t.Errorf("装备重生调用次数 = %d, 期望 1", loadout.calls)
	}
	// 死亡时不采纳战局内的物品栏快照
	if profile.Scavenger.Inventory.EquipmentID == "raid_equip" {
		t.Error("死亡结局不应采纳战局内物品栏")
	}
}

// ---- 死亡清理 ----

func TestDeathStripsSecureContainerFlagsAndInsurance(t *testing.T) {
	rc, mail, _, _ := reconcileFixture(t)
	profile := testProfile()

	post := &models.CharacterProfile{
		Inventory: models.Inventory{
			StashID:     "stash",
			EquipmentID: "equip",
			Items: []models.Item{
				{ID: "secure", ParentID: "equip", SlotID: models.SlotSecuredContainer},
				{ID: "keycard", ParentID: "secure", FoundInRaid: true},
				{ID: "stash_gun", ParentID: "stash", SlotID: models.SlotHideout, FoundInRaid: true},
			},
		},
		InsuredItems: []models.InsuredItem{{ItemID: "keycard", TraderID: "fence"}},
	}

	req := endReq(models.RaidResultKilled, post)
	req.Results.Aggressor = &models.Aggressor{Name: "killer_bob", Side: models.SideScavenger}

	if err := rc.ReconcilePrimary(profile, req, models.OutcomeDied, nil); err != nil {
		t.Fatalf("结算失败: %v", err)
	}

	for _, item := range profile.Primary.Inventory.Items {
		switch item.ID {
		case "keycard":
			if item.FoundInRaid {
				t.Error("安全箱内物品死亡后应剥除战局获取标记")
			}
		case "stash_gun":
			if !item.FoundInRaid {
				t.Error("仓库物品的战局获取标记不应被剥除")
			}
		}
	}

	if profile.Primary.InsuredItems != nil {
		t.Error("死亡后投保追踪应清空")
	}
	if profile.Primary.Stats.Aggressor == nil || profile.Primary.Stats.Aggressor.Name != "killer_bob" {
		t.Error("击杀者应被记录")
	}

	found := false
	for _, s := range mail.sent {
		if s == models.MessageTypeKiller+":killed_by" {
			found = true
		}
	}
	if !found {
		t.Errorf("应推送击杀通报, 实际邮件: %v", mail.sent)
	}
}

// ---- 中转修复 ----

func TestTransitRepairsDestroyedLimbs(t *testing.T) {
	rc, _, _, _ := reconcileFixture(t)
	profile := testProfile()

	post := &models.CharacterProfile{
		Health: models.HealthRecord{
			BodyParts: map[string]models.BodyPart{
				"LeftLeg": {Current: 0, Maximum: 65,
					Effects: map[string]models.Effect{"Fracture": {Time: -1}, "Pain": {Time: 30}}},
				"Chest": {Current: 80, Maximum: 85},
			},
		},
	}

	req := endReq(models.RaidResultTransit, post)
	req.LocationTransit = &models.TransitInfo{}
	if err := rc.ReconcilePrimary(profile, req, models.OutcomeTransferred, nil); err != nil {
		t.Fatalf("结算失败: %v", err)
	}

	leg := profile.Primary.Health.BodyParts["LeftLeg"]
	if leg.Current != 39 { // 65 * 60%
		t.Errorf("损毁部位修复后血量 = %v, 期望 39", leg.Current)
	}
	if _, ok := leg.Effects["Fracture"]; ok {
		t.Error("清单内的状态效果应被移除")
	}
	if _, ok := leg.Effects["Pain"]; !ok {
		t.Error("清单外的状态效果应保留")
	}

	chest := profile.Primary.Health.BodyParts["Chest"]
	if chest.Current != 80 {
		t.Errorf("未损毁部位血量 = %v, 不应改动", chest.Current)
	}
}
