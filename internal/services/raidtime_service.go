package services

import (
	"math/rand"
	"sync"
	"time"

	"github.com/aiwuxian/project-extraction/internal/models"
)

// RaidTimeService 战局时间压缩。仅对拾荒者生效：模拟"中途加入一场已经
// 进行了一段时间的战局"，压缩时长并同步调整战利品密度、存活门槛和撤离窗口。
// 主战角色始终进行完整时长的战局。
type RaidTimeService struct {
	config models.RaidConfig
	rng    *rand.Rand

	mu      sync.Mutex
	pending map[string]*models.RaidAdjustments // 会话ID -> 待消费的调整
}

func NewRaidTimeService(config models.RaidConfig) *RaidTimeService {
	return &RaidTimeService{
		config:  config,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		pending: make(map[string]*models.RaidAdjustments),
	}
}

// GetRaidAdjustments 计算某会话下一场战局的时间压缩调整，并暂存等待
// 战局开始时消费。未命中压缩概率时返回无效果调整。
func (rt *RaidTimeService) GetRaidAdjustments(sessionID string, loc *models.LocationTemplate, side string) *models.RaidAdjustments {
	if side != models.SideScavenger {
		return rt.noOp(loc)
	}

	cfg := rt.config.ScavCompression

	rt.mu.Lock()
	roll := rt.rng.Intn(100) + 1
	rt.mu.Unlock()
	if roll > cfg.ChancePercent {
		return rt.noOp(loc)
	}

	reduction := rt.drawReduction()
	if reduction <= 0 {
		return rt.noOp(loc)
	}

	adj := rt.adjustmentsFor(loc, reduction)

	rt.mu.Lock()
	rt.pending[sessionID] = adj
	rt.mu.Unlock()

	return adj
}

// ConsumePending 取出并清除某会话暂存的调整（只消费一次）
func (rt *RaidTimeService) ConsumePending(sessionID string) *models.RaidAdjustments {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	adj := rt.pending[sessionID]
	delete(rt.pending, sessionID)
	return adj
}

// noOp 无效果调整：完整时长、满额战利品、撤离点不变
func (rt *RaidTimeService) noOp(loc *models.LocationTemplate) *models.RaidAdjustments {
	return &models.RaidAdjustments{
		RaidTimeMinutes:       loc.EscapeTimeMinutes,
		SimulatedStartSeconds: 0,
		SurvivalTimeSeconds:   rt.config.SurvivalTimeSeconds,
		DynamicLootPercent:    loc.Loot.DynamicPercent,
		StaticLootPercent:     loc.Loot.StaticPercent,
	}
}

// drawReduction 按权重表抽取压缩百分比
func (rt *RaidTimeService) drawReduction() int {
	weights := rt.config.ScavCompression.ReductionWeights
	total := 0
	for _, w := range weights {
		total += w.Weight
	}
	if total <= 0 {
		return 0
	}

	rt.mu.Lock()
	n := rt.rng.Intn(total)
	rt.mu.Unlock()

	for _, w := range weights {
		n -= w.Weight
		if n < 0 {
			return w.ReductionPercent
		}
	}
	return 0
}

// adjustmentsFor 对给定压缩比例计算全部调整量
func (rt *RaidTimeService) adjustmentsFor(loc *models.LocationTemplate, reductionPercent int) *models.RaidAdjustments {
	base := loc.EscapeTimeMinutes
	// floor(base * (1 - p/100))，整数运算天然向下取整
	newMinutes := base * (100 - reductionPercent) / 100
	simulatedStart := (base - newMinutes) * 60

	survival := rt.config.SurvivalTimeSeconds - simulatedStart
	if survival < 0 {
		survival = 0
	}

	adj := &models.RaidAdjustments{
		RaidTimeMinutes:       newMinutes,
		SimulatedStartSeconds: simulatedStart,
		SurvivalTimeSeconds:   survival,
		DynamicLootPercent:    loc.Loot.DynamicPercent,
		StaticLootPercent:     loc.Loot.StaticPercent,
	}

	// 战利品密度按剩余时间比例缩放，不低于配置下限
	if loc.EnableLootScaling && base > 0 {
		remaining := float64(newMinutes) / float64(base) * 100
		floor := rt.config.ScavCompression.LootFloorPercent
		if remaining < floor {
			remaining = floor
		}
		adj.DynamicLootPercent = remaining
		adj.StaticLootPercent = remaining
	}

	// 列车撤离点：相对该玩家的模拟加入时刻，列车可能已经离站
	for _, exit := range loc.Exits {
		if exit.Type != models.ExitTypeTrain {
			continue
		}

		earliestDepartureMinute := (exit.MinTime + exit.Count + exit.ExfiltrationTime + rt.config.TrainArrivalDelaySeconds) / 60
		change := models.ExitChange{Name: exit.Name}

		if newMinutes < base-earliestDepartureMinute {
			// 列车在模拟加入时刻之前必然已经发车
			zero := 0
			change.Chance = &zero
		} else {
			minTime := exit.MinTime - simulatedStart
			if minTime < 0 {
				minTime = 0
			}
			maxTime := exit.MaxTime - simulatedStart
			if maxTime < 0 {
				maxTime = 0
			}
			change.MinTime = &minTime
			change.MaxTime = &maxTime
		}

		adj.ExitChanges = append(adj.ExitChanges, change)
	}

	return adj
}

// ApplyToTemplate 把调整写入战局作用域的模板克隆体。
// 全局模板不受影响，倍率等原值随克隆体一同丢弃，不会泄漏到后续战局。
func (rt *RaidTimeService) ApplyToTemplate(adj *models.RaidAdjustments, tmpl *models.LocationTemplate) {
	if adj == nil || adj.NoOp() {
		return
	}

	tmpl.EscapeTimeMinutes = adj.RaidTimeMinutes

	// 按名称覆盖撤离点，只改调整中明确给出的字段
	for _, change := range adj.ExitChanges {
		for i := range tmpl.Exits {
			if tmpl.Exits[i].Name != change.Name {
				continue
			}
			if change.Chance != nil {
				tmpl.Exits[i].Chance = *change.Chance
			}
			if change.MinTime != nil {
				tmpl.Exits[i].MinTime = *change.MinTime
			}
			if change.MaxTime != nil {
				tmpl.Exits[i].MaxTime = *change.MaxTime
			}
		}
	}

	simStart := adj.SimulatedStartSeconds

	// 丢弃窗口在模拟加入时刻前就已结束的波次，幸存波次整体前移
	var waves []models.Wave
	for _, wave := range tmpl.Waves {
		if wave.TimeMax < simStart {
			continue
		}
		wave.TimeMin = floorZero(wave.TimeMin - simStart)
		wave.TimeMax = floorZero(wave.TimeMax - simStart)
		waves = append(waves, wave)
	}
	tmpl.Waves = waves

	// Boss刷怪点同样过滤，但不受时钟门限的常驻Boss无条件保留
	var bosses []models.BossSpawn
	for _, spawn := range tmpl.BossSpawns {
		if !spawn.ClockGated() {
			bosses = append(bosses, spawn)
			continue
		}
		if spawn.TimeMax < simStart {
			continue
		}
		spawn.TimeMin = floorZero(spawn.TimeMin - simStart)
		spawn.TimeMax = floorZero(spawn.TimeMax - simStart)
		bosses = append(bosses, spawn)
	}
	tmpl.BossSpawns = bosses

	rt.rezeroHostileSpawns(tmpl)
}

// rezeroHostileSpawns 敌对阵营刷怪点的相对间距重新归零：
// 最早的一个从0秒开始，不必再等待一段已经流逝的窗口。
func (rt *RaidTimeService) rezeroHostileSpawns(tmpl *models.LocationTemplate) {
	hostile := make(map[string]bool, len(rt.config.HostileFactions))
	for _, f := range rt.config.HostileFactions {
		hostile[f] = true
	}
	if len(hostile) == 0 {
		return
	}

	earliest := -1
	for _, spawn := range tmpl.BossSpawns {
		if !hostile[spawn.Faction] || !spawn.ClockGated() {
			continue
		}
		if earliest < 0 || spawn.TimeMin < earliest {
			earliest = spawn.TimeMin
		}
	}
	if earliest <= 0 {
		return
	}

	for i := range tmpl.BossSpawns {
		spawn := &tmpl.BossSpawns[i]
		if !hostile[spawn.Faction] || !spawn.ClockGated() {
			continue
		}
		spawn.TimeMin = floorZero(spawn.TimeMin - earliest)
		spawn.TimeMax = floorZero(spawn.TimeMax - earliest)
	}
}

func floorZero(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
