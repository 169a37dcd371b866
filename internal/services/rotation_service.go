package services

import (
	"log"
	"math/rand"
	"time"

	"github.com/aiwuxian/project-extraction/internal/models"
)

// RotationService 定时轮换选择器。种子由墙上时钟字段推导，
// 所有服务器实例无需协调即可在同一时间桶内收敛到相同选择。
type RotationService struct {
	locations *LocationService
	config    models.RotationConfig

	weeklyBase map[string]int // 地点ID -> 周Boss刷新概率的原始值
}

func NewRotationService(locations *LocationService, config models.RotationConfig) *RotationService {
	rs := &RotationService{
		locations: locations,
		config:    config,
		weeklyBase: make(map[string]int),
	}

	// 记录各地图周Boss的原始概率，换届时用于还原落选地图
	locations.Apply(func(templates map[string]*models.LocationTemplate) {
		for id, tmpl := range templates {
			for _, spawn := range tmpl.BossSpawns {
				if spawn.BossName == config.WeeklyBoss.BossName {
					rs.weeklyBase[id] = spawn.Chance
					break
				}
			}
		}
	})

	return rs
}

// WeeklySeed 周轮换的时间桶种子。公式与历史存档保持一致，不得改动。
func WeeklySeed(t time.Time) int64 {
	return int64(t.Year()*1009 + t.YearDay())
}

// HourlySeed 小时轮换的时间桶种子
func HourlySeed(t time.Time) int64 {
	return int64(t.Year()*1009 + t.Hour())
}

// ChooseIndex 纯函数：用整数种子重新初始化伪随机数生成器，
// 首次抽取即为候选池下标。同一种子 + 同一池子必然得到同一结果。
func ChooseIndex(seed int64, poolSize int) int {
	return rand.New(rand.NewSource(seed)).Intn(poolSize)
}

// ApplyWeeklyBossRotation 选出本周保证刷新Boss的地图：
// 选中地图的Boss概率提到配置值（通常100）并打上地图界面标记，其余地图还原。
func (rs *RotationService) ApplyWeeklyBossRotation(now time.Time) {
	cfg := rs.config.WeeklyBoss
	if cfg.BossName == "" {
		return
	}

	rs.locations.Apply(func(templates map[string]*models.LocationTemplate) {
		pool := rs.eligible(templates, cfg.Maps, cfg.BossName)
		if len(pool) == 0 {
			// 非致命：没有可选地图时跳过本次轮换
			log.Printf("⚠️ [轮换] 周Boss %s 没有可用地图，跳过", cfg.BossName)
			return
		}

		rng := rand.New(rand.NewSource(WeeklySeed(now)))
		winner := pool[rng.Intn(len(pool))]
		// 第二次抽取决定是否进入加成战利品档位。
		// 沿用历史实现：1..100 的掷骰与 1 比较，概率为 1%。
		bonusTier := rng.Intn(100)+1 <= 1

		for _, id := range cfg.Maps {
			tmpl, ok := templates[id]
			if !ok {
				continue
			}
			tmpl.BossOfWeek = id == winner
			tmpl.BonusLootTier = id == winner && bonusTier
			for i := range tmpl.BossSpawns {
				if tmpl.BossSpawns[i].BossName != cfg.BossName {
					continue
				}
				if id == winner {
					tmpl.BossSpawns[i].Chance = cfg.Chance
				} else {
					tmpl.BossSpawns[i].Chance = rs.weeklyBase[id]
				}
			}
		}

		log.Printf("🗺️ [轮换] 本周Boss %s 地图: %s", cfg.BossName, winner)
	})
}

// ApplyHourlyBossRotation 选出本小时稀有Boss概率提升的地图。
// 先把所有候选地图的概率清零，再设置选中地图，两步不可与自身并发交错。
func (rs *RotationService) ApplyHourlyBossRotation(now time.Time) {
	cfg := rs.config.HourlyBoss
	if cfg.BossName == "" {
		return
	}

	rs.locations.Apply(func(templates map[string]*models.LocationTemplate) {
		pool := rs.eligible(templates, cfg.Maps, cfg.BossName)
		if len(pool) == 0 {
			log.Printf("⚠️ [轮换] 小时Boss %s 没有可用地图，跳过", cfg.BossName)
			return
		}

		// 先全部清零
		for _, id := range cfg.Maps {
			tmpl, ok := templates[id]
			if !ok {
				continue
			}
			for i := range tmpl.BossSpawns {
				if tmpl.BossSpawns[i].BossName == cfg.BossName {
					tmpl.BossSpawns[i].Chance = 0
				}
			}
		}

		winner := pool[ChooseIndex(HourlySeed(now), len(pool))]
		tmpl := templates[winner]
		for i := range tmpl.BossSpawns {
			if tmpl.BossSpawns[i].BossName == cfg.BossName {
				tmpl.BossSpawns[i].Chance = cfg.ElevatedChance
			}
		}

		log.Printf("🕐 [轮换] 本小时Boss %s 地图: %s", cfg.BossName, winner)
	})
}

// eligible 过滤出配置列表中真实存在且带有该Boss刷怪点的地图
func (rs *RotationService) eligible(templates map[string]*models.LocationTemplate, ids []string, bossName string) []string {
	var pool []string
	for _, id := range ids {
		tmpl, ok := templates[id]
		if !ok {
			continue
		}
		for _, spawn := range tmpl.BossSpawns {
			if spawn.BossName == bossName {
				pool = append(pool, id)
				break
			}
		}
	}
	return pool
}
