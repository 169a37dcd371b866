package services

import (
	"fmt"
	"log"
	"time"

	"github.com/aiwuxian/project-extraction/internal/models"
	"github.com/aiwuxian/project-extraction/internal/storage"
)

// ReconcileService 战局结束后的档案合并。把客户端上报的战后角色快照
// 合并进服务端权威档案。合并偏向容错：单个字段缺失只降级该字段，
// 绝不让整场战局的结算半途而废。
type ReconcileService struct {
	storage     *storage.Storage
	meta        *MetaService
	fence       models.FenceConfig
	repair      models.TransitRepairConfig
	rewards     RewardApplier
	insurance   InsuranceService
	mail        MailService
	scavLoadout ScavLoadoutGenerator
}

func NewReconcileService(st *storage.Storage, meta *MetaService, fence models.FenceConfig,
	repair models.TransitRepairConfig, rewards RewardApplier, insurance InsuranceService,
	mail MailService, scavLoadout ScavLoadoutGenerator) *ReconcileService {
	return &ReconcileService{
		storage:     st,
		meta:        meta,
		fence:       fence,
		repair:      repair,
		rewards:     rewards,
		insurance:   insurance,
		mail:        mail,
		scavLoadout: scavLoadout,
	}
}

// ReconcileScavenger 拾荒者战局结算
func (rc *ReconcileService) ReconcileScavenger(profile *models.Profile, req *models.EndRaidRequest,
	outcome models.RaidOutcome, exit *models.Exit) error {

	scav := &profile.Scavenger
	post := req.Results.Profile

	if post != nil {
		// 健康状态只在中转或跑刀撤离时复制，其余结局下拾荒者档案即将重置
		if outcome == models.OutcomeTransferred || req.Results.Result == models.RaidResultRunner {
			scav.Health = post.Health
			if outcome == models.OutcomeTransferred {
				rc.repairLimbs(&scav.Health)
			}
		}

		scav.Level = post.Level
		scav.Skills = append([]models.Skill(nil), post.Skills...)
		scav.Stats = post.Stats
		scav.SurvivorClass = post.SurvivorClass
		scav.Experience = post.Experience
		scav.Achievements = copyAchievements(post.Achievements)
		scav.Quests = append([]models.QuestStatus(nil), post.Quests...)
		scav.TaskConditionCounters = copyCounters(post.TaskConditionCounters)
		mergeEncyclopediaInto(scav, post.Encyclopedia)
		if outcome != models.OutcomeDied {
			scav.Inventory = post.Inventory
		}

		// 本场经验已并入累计经验，计数器归零
		scav.Stats.SessionExperience = 0

		rc.mergeTraderStandings(scav, post.TraderStandings)
	} else {
		log.Printf("⚠️ [结算] 会话 %s 缺少战后角色快照，跳过字段复制", profile.SessionID)
	}

	rc.clampFenceStanding(scav)
	if outcome == models.OutcomeSurvived {
		rc.applyExtractFenceGain(scav, exit)
	}
	rc.syncFenceStanding(scav, &profile.Primary)

	rc.migrateScavQuestProgress(profile)
	rc.mergeEncyclopedias(profile)

	if outcome == models.OutcomeDied {
		rc.scavLoadout.GenerateScavLoadout(scav)
	}

	profile.Info.LastScavRaid = time.Now().Unix()

	if err := rc.storage.SaveProfile(profile); err != nil {
		return fmt.Errorf("保存档案失败: %w", err)
	}
	return nil
}

// ReconcilePrimary 主战角色战局结算
func (rc *ReconcileService) ReconcilePrimary(profile *models.Profile, req *models.EndRaidRequest,
	outcome models.RaidOutcome, exit *models.Exit) error {

	pmc := &profile.Primary
	post := req.Results.Profile

	// 战前快照：任务状态与成就集合，后面做差集
	preQuests := make(map[string]models.QuestStatus, len(pmc.Quests))
	for _, q := range pmc.Quests {
		preQuests[q.ID] = q
	}
	preAchievements := copyAchievements(pmc.Achievements)

	// 死亡时必须在覆盖物品栏之前记录丢失的任务物品。
	// 战后快照里仍然持有的（仓库、安全箱里保住的）不算丢失。
	var lostQuestItems []models.Item
	if outcome == models.OutcomeDied {
		lostQuestItems = rc.questItemsIn(&pmc.Inventory)
		if post != nil && len(lostQuestItems) > 0 {
			retained := make(map[string]bool, len(post.Inventory.Items))
			for _, item := range post.Inventory.Items {
				retained[item.ID] = true
			}
			var lost []models.Item
			for _, item := range lostQuestItems {
				if !retained[item.ID] {
					lost = append(lost, item)
				}
			}
			lostQuestItems = lost
		}
	}

	if post != nil {
		pmc.Inventory = post.Inventory
		pmc.Level = post.Level
		pmc.Skills = append([]models.Skill(nil), post.Skills...)
		pmc.Stats = post.Stats
		pmc.SurvivorClass = post.SurvivorClass
		pmc.TaskConditionCounters = copyCounters(post.TaskConditionCounters)
		mergeEncyclopediaInto(pmc, post.Encyclopedia)

		// 成就奖励必须在覆盖成就集合之前发放，否则差集就丢了
		rc.settleNewAchievements(profile, pmc, preAchievements, post.Achievements)
		pmc.Achievements = copyAchievements(post.Achievements)

		pmc.Quests = append([]models.QuestStatus(nil), post.Quests...)
		rc.normalizeQuestStatuses(pmc)
		rc.replayMissedQuestCompletions(profile, pmc, preQuests)

		pmc.WishList = post.WishList
		pmc.Variables = post.Variables
		pmc.Experience = post.Experience
		pmc.Stats.SessionExperience = 0

		rc.mergeTraderStandings(pmc, post.TraderStandings)

		pmc.Health = post.Health
		if outcome == models.OutcomeTransferred {
			rc.repairLimbs(&pmc.Health)
		}
	} else {
		log.Printf("⚠️ [结算] 会话 %s 缺少战后角色快照，跳过字段复制", profile.SessionID)
	}

	rc.clampFenceStanding(pmc)
	if outcome == models.OutcomeSurvived {
		rc.applyExtractFenceGain(pmc, exit)
	}
	rc.syncFenceStanding(pmc, &profile.Scavenger)
	rc.mergeEncyclopedias(profile)

	// 保险暂存必须先于死亡清理：死亡清理会清空投保追踪
	if err := rc.insurance.StartPostRaidInsuranceLostProcess(profile.SessionID, pmc, req.LostInsuredItems); err != nil {
		log.Printf("❌ [结算] 保险暂存失败: %v", err)
	}

	if outcome == models.OutcomeDied {
		rc.uncompleteLostQuestItemConditions(pmc, lostQuestItems)
		rc.recordKiller(profile, pmc, req.Results.Aggressor)
		rc.stripSecureContainerFoundInRaid(pmc)
		pmc.InsuredItems = nil
	}

	rc.notifyVictims(profile, req.Results.Victims)

	if err := rc.storage.SaveProfile(profile); err != nil {
		return fmt.Errorf("保存档案失败: %w", err)
	}
	return nil
}

// ---- 商人声望 ----

// mergeTraderStandings 差异合并：只在客户端值与服务端不同的时候覆盖，
// 避免冲掉战局期间其他系统对服务端声望的修改。
func (rc *ReconcileService) mergeTraderStandings(char *models.CharacterProfile, client map[string]models.TraderStanding) {
	if client == nil {
		return
	}
	if char.TraderStandings == nil {
		char.TraderStandings = make(map[string]models.TraderStanding, len(client))
	}

	for traderID, reported := range client {
		if _, ok := rc.meta.Trader(traderID); !ok {
			log.Printf("❌ [结算] 客户端上报了未知商人 %s，已忽略", traderID)
			continue
		}
		current, exists := char.TraderStandings[traderID]
		if !exists || current != reported {
			char.TraderStandings[traderID] = reported
		}
	}
}

// clampFenceStanding 把共享阵营商人的声望钳制到配置区间
func (rc *ReconcileService) clampFenceStanding(char *models.CharacterProfile) {
	if char.TraderStandings == nil {
		return
	}
	standing, ok := char.TraderStandings[rc.fence.TraderID]
	if !ok {
		return
	}
	standing.Standing = rc.clamp(standing.Standing)
	char.TraderStandings[rc.fence.TraderID] = standing
}

func (rc *ReconcileService) clamp(v float64) float64 {
	if v < rc.fence.MinStanding {
		return rc.fence.MinStanding
	}
	if v > rc.fence.MaxStanding {
		return rc.fence.MaxStanding
	}
	return v
}

// applyExtractFenceGain 成功撤离的声望加成。车辆撤离加成随累计次数衰减。
func (rc *ReconcileService) applyExtractFenceGain(char *models.CharacterProfile, exit *models.Exit) {
	if char.TraderStandings == nil {
		char.TraderStandings = make(map[string]models.TraderStanding)
	}
	standing := char.TraderStandings[rc.fence.TraderID]

	if exit != nil && exit.Type == models.ExitTypeCar {
		if char.Stats.CarExtractCounts == nil {
			char.Stats.CarExtractCounts = make(map[string]int)
		}
		char.Stats.CarExtractCounts[exit.Name]++
		count := char.Stats.CarExtractCounts[exit.Name]
		standing.Standing += rc.fence.CarExtractBaseGain / float64(count)
	} else {
		standing.Standing += rc.fence.ExtractBonus
	}

	standing.Standing = rc.clamp(standing.Standing)
	char.TraderStandings[rc.fence.TraderID] = standing
}

// syncFenceStanding 共享阵营商人在两个角色之间保持一致。
// 来源角色没有声望记录时，对端的残留记录一并清除，两边保持同样的"无记录"。
func (rc *ReconcileService) syncFenceStanding(from, to *models.CharacterProfile) {
	standing, ok := from.TraderStandings[rc.fence.TraderID]
	if !ok {
		delete(to.TraderStandings, rc.fence.TraderID)
		return
	}
	if to.TraderStandings == nil {
		to.TraderStandings = make(map[string]models.TraderStanding)
	}
	to.TraderStandings[rc.fence.TraderID] = standing
}

// ---- 任务 ----

// migrateScavQuestProgress 把拾荒者战局里推进的任务进度迁回主战角色。
// 按任务ID匹配：状态、状态计时器与条件进度一并迁移。
func (rc *ReconcileService) migrateScavQuestProgress(profile *models.Profile) {
	scav := &profile.Scavenger
	if len(scav.TaskConditionCounters) == 0 {
		return
	}

	pmcQuests := make(map[string]int, len(profile.Primary.Quests))
	for i, q := range profile.Primary.Quests {
		pmcQuests[q.ID] = i
	}

	for _, sq := range scav.Quests {
		idx, ok := pmcQuests[sq.ID]
		if !ok {
			log.Printf("⚠️ [结算] 主战角色缺少任务 %s 的进度记录，无法迁移", sq.ID)
			continue
		}
		pq := &profile.Primary.Quests[idx]
		pq.Status = sq.Status
		pq.StatusTimers = sq.StatusTimers
		pq.CompletedConditions = append([]string(nil), sq.CompletedConditions...)
	}

	if profile.Primary.TaskConditionCounters == nil {
		profile.Primary.TaskConditionCounters = make(map[string]models.TaskConditionCounter)
	}
	for key, counter := range scav.TaskConditionCounters {
		if _, ok := rc.meta.Quest(counter.SourceID); !ok {
			if _, ok := rc.meta.Achievement(counter.SourceID); !ok {
				log.Printf("❌ [结算] 条件计数器 %s 引用了不存在的来源 %s，已丢弃", key, counter.SourceID)
				continue
			}
		}
		profile.Primary.TaskConditionCounters[key] = counter
	}
}

// normalizeQuestStatuses 失败的任务按自身定义归为可重开失败或终局失败
func (rc *ReconcileService) normalizeQuestStatuses(pmc *models.CharacterProfile) {
	for i := range pmc.Quests {
		q := &pmc.Quests[i]
		if q.Status != models.QuestStatusFail && q.Status != models.QuestStatusFailRestartable {
			continue
		}
		def, ok := rc.meta.Quest(q.ID)
		if !ok {
			log.Printf("❌ [结算] 任务 %s 没有定义，状态保持原样", q.ID)
			continue
		}
		if def.Restartable {
			q.Status = models.QuestStatusFailRestartable
		} else {
			q.Status = models.QuestStatusFail
		}
	}
}

// replayMissedQuestCompletions 战局中完成的任务若属于客户端不发奖励的商人，
// 由服务端补跑完整的任务完成流程，保证奖励一致性。
func (rc *ReconcileService) replayMissedQuestCompletions(profile *models.Profile,
	pmc *models.CharacterProfile, preQuests map[string]models.QuestStatus) {

	for _, q := range pmc.Quests {
		if q.Status != models.QuestStatusSuccess {
			continue
		}
		if pre, ok := preQuests[q.ID]; ok && pre.Status == models.QuestStatusSuccess {
			continue // 战局之前就已完成
		}

		def, ok := rc.meta.Quest(q.ID)
		if !ok {
			log.Printf("❌ [结算] 完成的任务 %s 没有定义，无法补发奖励", q.ID)
			continue
		}
		trader, ok := rc.meta.Trader(def.TraderID)
		if !ok {
			log.Printf("❌ [结算] 任务 %s 引用了未知商人 %s", q.ID, def.TraderID)
			continue
		}
		if trader.ClientQuestRewards {
			continue // 该商人的奖励客户端已经发过
		}

		granted := rc.rewards.ApplyRewards(def.Rewards, "quest", profile, pmc, def.ID)
		log.Printf("🎁 [结算] 服务端补发任务 %s 的完成奖励 (%d 件物品)", def.ID, len(granted))
		if len(granted) > 0 {
			if err := rc.mail.SendLocalisedMessage(profile.SessionID, def.TraderID,
				models.MessageTypeReward, "quest_complete_"+def.ID, granted, 0); err != nil {
				log.Printf("❌ [结算] 任务奖励邮件发送失败: %v", err)
			}
		}
	}
}

// ---- 成就 ----

// settleNewAchievements 对战前/战后成就集合做差，给每个新解锁的成就
// 发放一次完整奖励。必须发生在成就集合被覆盖之前。
func (rc *ReconcileService) settleNewAchievements(profile *models.Profile,
	pmc *models.CharacterProfile, pre map[string]int64, post map[string]int64) {

	for id := range post {
		if _, ok := pre[id]; ok {
			continue
		}
		def, ok := rc.meta.Achievement(id)
		if !ok {
			log.Printf("❌ [结算] 客户端上报了未知成就 %s，已忽略", id)
			continue
		}
		granted := rc.rewards.ApplyRewards(def.Rewards, "achievement", profile, pmc, id)
		if len(granted) > 0 {
			if err := rc.mail.SendLocalisedMessage(profile.SessionID, "system",
				models.MessageTypeReward, "achievement_"+id, granted, 0); err != nil {
				log.Printf("❌ [结算] 成就奖励邮件发送失败: %v", err)
			}
		}
	}
}

// ---- 图鉴 ----

// mergeEncyclopediaInto 把快照的图鉴并入角色记录。合并是单调的：
// 已解锁的条目不可能被取消解锁。
func mergeEncyclopediaInto(char *models.CharacterProfile, reported map[string]bool) {
	if len(reported) == 0 {
		return
	}
	if char.Encyclopedia == nil {
		char.Encyclopedia = make(map[string]bool, len(reported))
	}
	for tpl, discovered := range reported {
		if discovered {
			char.Encyclopedia[tpl] = true
		}
	}
}

// mergeEncyclopedias 两个角色的图鉴按键做逻辑或，合并结果写回双方
func (rc *ReconcileService) mergeEncyclopedias(profile *models.Profile) {
	merged := make(map[string]bool)
	for tpl, v := range profile.Primary.Encyclopedia {
		if v {
			merged[tpl] = true
		}
	}
	for tpl, v := range profile.Scavenger.Encyclopedia {
		if v {
			merged[tpl] = true
		}
	}

	primary := make(map[string]bool, len(merged))
	scav := make(map[string]bool, len(merged))
	for tpl := range merged {
		primary[tpl] = true
		scav[tpl] = true
	}
	profile.Primary.Encyclopedia = primary
	profile.Scavenger.Encyclopedia = scav
}

// ---- 健康 ----

// repairLimbs 中转肢体修复：已损毁的部位恢复到最大值的配置百分比，
// 并移除清单上的状态效果。跨图中转不该永久带着无法处理的重伤。
func (rc *ReconcileService) repairLimbs(health *models.HealthRecord) {
	removable := make(map[string]bool, len(rc.repair.RemoveEffects))
	for _, id := range rc.repair.RemoveEffects {
		removable[id] = true
	}

	for part, bp := range health.BodyParts {
		if bp.Current <= 0 {
			bp.Current = bp.Maximum * rc.repair.RestorePercent / 100
		}
		for id := range bp.Effects {
			if removable[id] {
				delete(bp.Effects, id)
			}
		}
		health.BodyParts[part] = bp
	}
}

// ---- 死亡清理 ----

// questItemsIn 找出物品栏里被进行中任务的收集条件引用的物品
func (rc *ReconcileService) questItemsIn(inv *models.Inventory) []models.Item {
	questTemplates := rc.meta.QuestItemTemplates()
	var out []models.Item
	for _, item := range inv.Items {
		if questTemplates[item.TemplateID] {
			out = append(out, item)
		}
	}
	return out
}

// uncompleteLostQuestItemConditions 死亡丢失任务物品后，把对应收集条件的
// 完成标记从任务记录中移除，物品重新变为可收集，避免任务永久卡死。
// 同一任务上其他无关的已完成条件保持不动。
func (rc *ReconcileService) uncompleteLostQuestItemConditions(pmc *models.CharacterProfile, lost []models.Item) {
	for _, item := range lost {
		for _, cond := range rc.meta.FindItemConditions(item.TemplateID) {
			for i := range pmc.Quests {
				q := &pmc.Quests[i]
				if q.ID != cond.QuestID {
					continue
				}
				var kept []string
				for _, id := range q.CompletedConditions {
					if id != cond.ConditionID {
						kept = append(kept, id)
					}
				}
				q.CompletedConditions = kept
			}
		}
	}
}

// recordKiller 记录击杀者并向玩家推送通报
func (rc *ReconcileService) recordKiller(profile *models.Profile, pmc *models.CharacterProfile, aggressor *models.Aggressor) {
	if aggressor == nil {
		return
	}
	pmc.Stats.Aggressor = aggressor
	if err := rc.mail.SendLocalisedMessage(profile.SessionID, aggressor.Name,
		models.MessageTypeKiller, "killed_by", nil, 0); err != nil {
		log.Printf("❌ [结算] 击杀通报发送失败: %v", err)
	}
}

// stripSecureContainerFoundInRaid 死亡时仅剥除安全箱内物品的战局获取标记
func (rc *ReconcileService) stripSecureContainerFoundInRaid(pmc *models.CharacterProfile) {
	secure := make(map[string]bool)
	for _, item := range pmc.Inventory.SecureContainerItems() {
		secure[item.ID] = true
	}
	for i := range pmc.Inventory.Items {
		if secure[pmc.Inventory.Items[i].ID] {
			pmc.Inventory.Items[i].FoundInRaid = false
		}
	}
}

// notifyVictims 给被该玩家击杀的主战角色推送回应通报
func (rc *ReconcileService) notifyVictims(profile *models.Profile, victims []models.Victim) {
	for _, victim := range victims {
		if victim.Side != models.SidePrimary {
			continue
		}
		if err := rc.mail.SendLocalisedMessage(profile.SessionID, victim.Name,
			models.MessageTypeVictim, "victim_response", nil, 0); err != nil {
			log.Printf("❌ [结算] 受害者回应发送失败: %v", err)
		}
	}
}

// ---- 复制辅助 ----

func copyAchievements(src map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

func copyCounters(src map[string]models.TaskConditionCounter) map[string]models.TaskConditionCounter {
	out := make(map[string]models.TaskConditionCounter, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
