package services

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/aiwuxian/project-extraction/internal/models"
	"github.com/aiwuxian/project-extraction/internal/storage"
)

// RaidService 战局会话编排。负责战局的开始与结束：开始时备份档案、
// 生成压缩后的地点模板与战利品、处理中转延续；结束时归类结局并
// 分发到对应的结算路径。
type RaidService struct {
	storage   *storage.Storage
	locations *LocationService
	raidTime  *RaidTimeService
	scheduler *SchedulerService
	reconcile *ReconcileService
	loot      LootGenerator
	waves     WaveGenerator
	mail      MailService
	config    models.RaidConfig
	game      models.GameConfig

	mu              sync.Mutex
	sessions        map[string]*models.RaidSessionDescriptor
	pendingTransits map[string]*models.TransitInfo // 会话ID -> 上一场战局留下的中转延续
	raidRelease     map[string]func()              // 会话ID -> 战局模式释放函数
	botNameCache    map[string][]string            // 会话ID -> AI命名缓存
	botLootCache    map[string][]string            // 会话ID -> AI战利品缓存
}

func NewRaidService(st *storage.Storage, locations *LocationService, raidTime *RaidTimeService,
	scheduler *SchedulerService, reconcile *ReconcileService, loot LootGenerator,
	waves WaveGenerator, mail MailService, config models.RaidConfig, game models.GameConfig) *RaidService {
	return &RaidService{
		storage:         st,
		locations:       locations,
		raidTime:        raidTime,
		scheduler:       scheduler,
		reconcile:       reconcile,
		loot:            loot,
		waves:           waves,
		mail:            mail,
		config:          config,
		game:            game,
		sessions:        make(map[string]*models.RaidSessionDescriptor),
		pendingTransits: make(map[string]*models.TransitInfo),
		raidRelease:     make(map[string]func()),
		botNameCache:    make(map[string][]string),
		botLootCache:    make(map[string][]string),
	}
}

// StartRaid 开始一场本地战局
func (rs *RaidService) StartRaid(sessionID string, req *models.StartRaidRequest) (*models.StartRaidResponse, error) {
	profile, err := rs.storage.GetProfile(sessionID)
	if err != nil {
		return nil, fmt.Errorf("获取档案失败: %w", err)
	}

	if req.Side == models.SideScavenger && rs.game.ScavCooldownSeconds > 0 {
		elapsed := time.Now().Unix() - profile.Info.LastScavRaid
		if elapsed < int64(rs.game.ScavCooldownSeconds) {
			return nil, fmt.Errorf("拾荒者冷却中，还需 %d 秒", int64(rs.game.ScavCooldownSeconds)-elapsed)
		}
	}

	// 1. 落盘一份可恢复的档案快照
	if _, err := rs.storage.BackupProfile(profile); err != nil {
		log.Printf("⚠️ [战局] 会话 %s 档案备份失败: %v", sessionID, err)
	}

	// 2. 清零本场战局的技能点数计数器
	char := profile.Character(req.Side)
	for i := range char.Skills {
		char.Skills[i].PointsEarnedInSession = 0
	}

	// 3. 位标志在边界一次性解析为进入方式
	kind := models.ParseTransitionKind(req.TransitionTypeFlags)

	// 4. 进入战局模式，降低后台轮询频率
	release := rs.scheduler.EnterRaidMode()
	rs.mu.Lock()
	if old := rs.raidRelease[sessionID]; old != nil {
		old() // 上一场未正常结束时兜底释放
	}
	rs.raidRelease[sessionID] = release
	rs.mu.Unlock()

	// 5. 克隆地点模板并生成战利品
	tmpl, err := rs.locations.Clone(req.Location)
	if err != nil {
		rs.abortRaidMode(sessionID, release)
		return nil, fmt.Errorf("地点数据缺失: %w", err)
	}

	// 时间压缩只对拾荒者生效，主战角色开局时丢弃残留的暂存调整
	adj := rs.raidTime.ConsumePending(sessionID)
	if adj != nil && req.Side != models.SideScavenger {
		adj = nil
	}
	if adj != nil {
		rs.raidTime.ApplyToTemplate(adj, tmpl)
	}

	var loot *models.LocationLoot
	if !req.ShouldSkipLootGeneration && !tmpl.Base {
		originalLoot := tmpl.Loot
		if adj != nil {
			tmpl.Loot.DynamicPercent = adj.DynamicLootPercent
			tmpl.Loot.StaticPercent = adj.StaticLootPercent
		}
		loot, err = rs.loot.GenerateLocationLoot(tmpl)
		// 调整只消费这一次，倍率随即还原，不影响后续战局
		tmpl.Loot = originalLoot
		if err != nil {
			rs.abortRaidMode(sessionID, release)
			return nil, fmt.Errorf("战利品生成失败: %w", err)
		}
	}

	rs.waves.ApplyWaveChangesToMap(tmpl)

	// 6. 活动中转白名单：点名的中转点延迟激活，其余停用
	if ev, ok := rs.config.EventTransits[req.Location]; ok {
		rs.armEventTransits(tmpl, ev)
	}

	// 7. 组装响应
	startedAt := time.Now().Unix()
	serverID := models.ComposeServerID(req.Location, req.Side, startedAt)
	resp := &models.StartRaidResponse{
		ServerID:       serverID,
		ServerSettings: tmpl,
		InsuredItems:   append([]models.InsuredItem(nil), char.InsuredItems...),
		LocationLoot:   loot,
		TransitionType: kind.String(),
		Transition:     req.Transition,
		ExcludedBosses: []string{},
	}

	// 8. 合并上一场战局遗留的中转延续并清除
	rs.mu.Lock()
	if pending := rs.pendingTransits[sessionID]; pending != nil {
		if resp.Transition == nil {
			resp.Transition = &models.TransitInfo{}
		}
		resp.Transition.PreviousLocation = pending.PreviousLocation
		resp.Transition.LastExitName = pending.LastExitName
		resp.Transition.VisitedLocations = append(resp.Transition.VisitedLocations, pending.VisitedLocations...)
		resp.Transition.Count = pending.Count + 1
		delete(rs.pendingTransits, sessionID)
	}
	rs.mu.Unlock()

	// 9. 应用全局AI敌对关系覆盖
	rs.applyHostilityOverrides(tmpl)

	// 10. 拾荒者用专属撤离点并集替换常规撤离点
	if req.Side == models.SideScavenger {
		tmpl.Exits = unionExits(tmpl.Exits, tmpl.ScavExits)
	}

	// 11. 清掉上一场的AI命名缓存，为本场重新登记
	rs.mu.Lock()
	delete(rs.botNameCache, sessionID)
	names := make([]string, 0, len(tmpl.Waves))
	for _, wave := range tmpl.Waves {
		names = append(names, wave.Name)
	}
	rs.botNameCache[sessionID] = names
	rs.mu.Unlock()

	// 12. 防掉线保装备：主战角色开局即清空随身装备
	if req.Side == models.SidePrimary && rs.game.WipePrimaryEquipment {
		rs.wipeEquipment(char)
	}

	descriptor := &models.RaidSessionDescriptor{
		SessionID:  sessionID,
		LocationID: req.Location,
		Side:       req.Side,
		ServerID:   serverID,
		Transition: kind,
		StartedAt:  startedAt,
	}
	rs.mu.Lock()
	rs.sessions[sessionID] = descriptor
	rs.mu.Unlock()

	if err := rs.storage.SaveProfile(profile); err != nil {
		log.Printf("❌ [战局] 会话 %s 开局档案保存失败: %v", sessionID, err)
	}

	log.Printf("🚪 [战局] %s 进入 %s (%s, %s)", sessionID, req.Location, req.Side, kind)
	return resp, nil
}

// EndRaid 结束一场本地战局
func (rs *RaidService) EndRaid(sessionID string, req *models.EndRaidRequest) error {
	// 清掉本场的AI战利品缓存
	rs.mu.Lock()
	delete(rs.botLootCache, sessionID)
	rs.mu.Unlock()

	// 恢复后台轮询频率，所有退出路径都恰好释放一次
	rs.mu.Lock()
	release := rs.raidRelease[sessionID]
	delete(rs.raidRelease, sessionID)
	rs.mu.Unlock()
	if release != nil {
		release()
	}

	locationID, side, _, err := models.ParseServerID(req.ServerID)
	if err != nil {
		return err
	}

	profile, err := rs.storage.GetProfile(sessionID)
	if err != nil {
		return fmt.Errorf("获取档案失败: %w", err)
	}

	outcome := models.ClassifyOutcome(req.Results.Result)

	// 运载工具/中转邮箱投递的物品转交投递协作者
	for sender, items := range req.TransferItems {
		if err := rs.mail.SendLocalisedMessage(sessionID, sender,
			models.MessageTypeDelivery, "item_transfer", items, 0); err != nil {
			log.Printf("❌ [战局] 投递转交失败: %v", err)
		}
	}

	// 跨图中转：暂存延续状态供下一次开局消费
	if outcome == models.OutcomeTransferred && req.LocationTransit != nil {
		transit := *req.LocationTransit
		transit.PreviousLocation = locationID
		transit.LastExitName = req.Results.ExitName
		transit.VisitedLocations = appendUnique(transit.VisitedLocations, locationID)
		rs.mu.Lock()
		rs.pendingTransits[sessionID] = &transit
		rs.mu.Unlock()
	}

	profile.Info.TotalRaids++
	if outcome == models.OutcomeSurvived {
		profile.Info.SurvivedRaids++
	}

	exit := rs.resolveExit(locationID, req.Results.ExitName)

	if side == models.SideScavenger {
		err = rs.reconcile.ReconcileScavenger(profile, req, outcome, exit)
	} else {
		err = rs.reconcile.ReconcilePrimary(profile, req, outcome, exit)
	}
	if err != nil {
		return err
	}

	// 终局战局的会话描述符随即丢弃；中转场次保留到下一次开局
	if outcome != models.OutcomeTransferred {
		rs.mu.Lock()
		delete(rs.sessions, sessionID)
		delete(rs.botNameCache, sessionID)
		rs.mu.Unlock()
	}

	log.Printf("🏁 [战局] %s 在 %s 结束: %s", sessionID, locationID, req.Results.Result)
	return nil
}

// abortRaidMode 开局失败时释放战局模式并清掉登记的释放函数
func (rs *RaidService) abortRaidMode(sessionID string, release func()) {
	release()
	rs.mu.Lock()
	delete(rs.raidRelease, sessionID)
	rs.mu.Unlock()
}

// Session 查询某会话当前的战局描述符
func (rs *RaidService) Session(sessionID string) (*models.RaidSessionDescriptor, bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	desc, ok := rs.sessions[sessionID]
	return desc, ok
}

// armEventTransits 白名单内的中转点带激活延迟与活动标记，其余全部停用
func (rs *RaidService) armEventTransits(tmpl *models.LocationTemplate, ev models.EventTransitConfig) {
	whitelisted := make(map[string]bool, len(ev.Transits))
	for _, name := range ev.Transits {
		whitelisted[name] = true
	}

	for i := range tmpl.Transits {
		tp := &tmpl.Transits[i]
		if whitelisted[tp.Name] {
			tp.Active = true
			tp.Event = true
			tp.ActivateAfterSeconds = ev.ActivateAfterSeconds
		} else {
			tp.Active = false
		}
	}
}

// applyHostilityOverrides 把全局敌对关系覆盖合并进模板。
// 模板里找不到对应AI角色的配置时记警告并跳过该条，战局照常进行。
func (rs *RaidService) applyHostilityOverrides(tmpl *models.LocationTemplate) {
	for _, override := range rs.config.Hostility {
		var target *models.HostilitySetting
		for i := range tmpl.Hostility {
			if tmpl.Hostility[i].BotRole == override.BotRole {
				target = &tmpl.Hostility[i]
				break
			}
		}
		if target == nil {
			log.Printf("⚠️ [战局] 地点 %s 缺少AI角色 %s 的敌对配置，跳过覆盖", tmpl.ID, override.BotRole)
			continue
		}

		target.AlwaysEnemies = appendUnique(target.AlwaysEnemies, override.AlwaysEnemies...)
		target.AlwaysFriends = appendUnique(target.AlwaysFriends, override.AlwaysFriends...)

		for _, ce := range override.ChanceEnemies {
			found := false
			for i := range target.ChanceEnemies {
				if target.ChanceEnemies[i].Role == ce.Role {
					target.ChanceEnemies[i].ChancePercent = ce.ChancePercent
					found = true
					break
				}
			}
			if !found {
				target.ChanceEnemies = append(target.ChanceEnemies, ce)
			}
		}

		for faction, chance := range override.FactionChances {
			if target.FactionChances == nil {
				target.FactionChances = make(map[string]int)
			}
			target.FactionChances[faction] = chance
		}
	}
}

// wipeEquipment 清空随身装备（保留仓库），防止断线退出保装备
func (rs *RaidService) wipeEquipment(char *models.CharacterProfile) {
	equipped := make(map[string]bool)
	for _, item := range char.Inventory.EquippedItems() {
		equipped[item.ID] = true
	}
	if len(equipped) == 0 {
		return
	}

	var kept []models.Item
	for _, item := range char.Inventory.Items {
		if !equipped[item.ID] {
			kept = append(kept, item)
		}
	}
	char.Inventory.Items = kept
	log.Printf("🧹 [战局] 已清空角色 %s 的随身装备 (%d 件)", char.ID, len(equipped))
}

// resolveExit 根据地点与撤离点名称找回撤离点定义
func (rs *RaidService) resolveExit(locationID, exitName string) *models.Exit {
	if exitName == "" {
		return nil
	}
	tmpl, ok := rs.locations.Get(locationID)
	if !ok {
		return nil
	}
	for i := range tmpl.Exits {
		if tmpl.Exits[i].Name == exitName {
			exit := tmpl.Exits[i]
			return &exit
		}
	}
	for i := range tmpl.ScavExits {
		if tmpl.ScavExits[i].Name == exitName {
			exit := tmpl.ScavExits[i]
			return &exit
		}
	}
	return nil
}

// unionExits 常规撤离点与拾荒者专属撤离点取并集（按名称去重）
func unionExits(base, extra []models.Exit) []models.Exit {
	seen := make(map[string]bool, len(base))
	out := append([]models.Exit(nil), base...)
	for _, exit := range base {
		seen[exit.Name] = true
	}
	for _, exit := range extra {
		if !seen[exit.Name] {
			out = append(out, exit)
			seen[exit.Name] = true
		}
	}
	return out
}

func appendUnique(dst []string, values ...string) []string {
	seen := make(map[string]bool, len(dst))
	for _, v := range dst {
		seen[v] = true
	}
	for _, v := range values {
		if !seen[v] {
			dst = append(dst, v)
			seen[v] = true
		}
	}
	return dst
}
