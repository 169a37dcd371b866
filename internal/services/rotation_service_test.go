package services

import (
	"testing"
	"time"

	"github.com/aiwuxian/project-extraction/internal/models"
)

func rotationFixture() (*LocationService, models.RotationConfig) {
	templates := []models.LocationTemplate{
		{
			ID: "harbor",
			BossSpawns: []models.BossSpawn{
				{BossName: "warlord", Faction: "raiders", Chance: 20, TimeMin: 600, TimeMax: 1800},
				{BossName: "collector", Faction: "neutral", Chance: 0, TimeMin: -1, TimeMax: -1},
			},
		},
		{
			ID: "quarry",
			BossSpawns: []models.BossSpawn{
				{BossName: "warlord", Faction: "raiders", Chance: 35, TimeMin: 300, TimeMax: 1500},
				{BossName: "collector", Faction: "neutral", Chance: 0, TimeMin: -1, TimeMax: -1},
			},
		},
		{
			ID: "mill",
			BossSpawns: []models.BossSpawn{
				{BossName: "warlord", Faction: "raiders", Chance: 15, TimeMin: 0, TimeMax: 1200},
			},
		},
	}

	config := models.RotationConfig{
		WeeklyBoss: models.WeeklyBossConfig{
			BossName: "warlord",
			Chance:   100,
			Maps:     []string{"harbor", "quarry", "mill"},
		},
		HourlyBoss: models.HourlyBossConfig{
			BossName:       "collector",
			ElevatedChance: 30,
			Maps:           []string{"harbor", "quarry"},
		},
	}

	return NewLocationService(templates), config
}

func bossChance(t *testing.T, ls *LocationService, locID, bossName string) int {
	t.Helper()
	tmpl, ok := ls.Get(locID)
	if !ok {
		t.Fatalf("地点 %s 不存在", locID)
	}
	for _, spawn := range tmpl.BossSpawns {
		if spawn.BossName == bossName {
			return spawn.Chance
		}
	}
	t.Fatalf("地点 %s 没有Boss %s", locID, bossName)
	return 0
}

func TestChooseIndexDeterministic(t *testing.T) {
	for seed := int64(0); seed < 50; seed++ {
		a := ChooseIndex(seed, 7)
		b := ChooseIndex(seed, 7)
		if a != b {
			t.Fatalf("种子 %d 两次选择不一致: %d != %d", seed, a, b)
		}
		if a < 0 || a >= 7 {
			t.Fatalf("种子 %d 选择越界: %d", seed, a)
		}
	}
}

func TestSeedsStableWithinBucket(t *testing.T) {
	morning := time.Date(2026, 3, 14, 9, 5, 0, 0, time.UTC)
	evening := time.Date(2026, 3, 14, 21, 30, 0, 0, time.UTC)
	if WeeklySeed(morning) != WeeklySeed(evening) {
		t.Error("同一天的周种子应当相同")
	}

	h1 := time.Date(2026, 3, 14, 9, 1, 0, 0, time.UTC)
	h2 := time.Date(2026, 3, 14, 9, 59, 0, 0, time.UTC)
	if HourlySeed(h1) != HourlySeed(h2) {
		t.Error("同一小时的小时种子应当相同")
	}
}

func TestWeeklyRotationIdempotent(t *testing.T) {
	ls, config := rotationFixture()
	rs := NewRotationService(ls, config)
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	rs.ApplyWeeklyBossRotation(now)

	var winner string
	for _, id := range config.WeeklyBoss.Maps {
		tmpl, _ := ls.Get(id)
		if tmpl.BossOfWeek {
			if winner != "" {
				t.Fatal("本周Boss地图不应多于一张")
			}
			winner = id
		}
	}
	if winner == "" {
		t.Fatal("没有选出本周Boss地图")
	}
	if got := bossChance(t, ls, winner, "warlord"); got != 100 {
		t.Errorf("选中地图的Boss概率 = %d, 期望 100", got)
	}

	// 同一时间桶内重复执行收敛到同一结果
	rs.ApplyWeeklyBossRotation(now.Add(5 * time.Hour))
	tmpl, _ := ls.Get(winner)
	if !tmpl.BossOfWeek {
		t.Error("同一天重复执行换掉了本周Boss地图")
	}
}

func TestWeeklyRotationRestoresLosers(t *testing.T) {
	ls, config := rotationFixture()
	rs := NewRotationService(ls, config)

	base := map[string]int{"harbor": 20, "quarry": 35, "mill": 15}

	// 跑两个不同的日期，无论谁当选，落选地图都必须回到原始概率
	for day := 1; day <= 2; day++ {
		rs.ApplyWeeklyBossRotation(time.Date(2026, 3, day, 0, 0, 0, 0, time.UTC))
		for _, id := range config.WeeklyBoss.Maps {
			tmpl, _ := ls.Get(id)
			if tmpl.BossOfWeek {
				continue
			}
			if got := bossChance(t, ls, id, "warlord"); got != base[id] {
				t.Errorf("落选地图 %s 的Boss概率 = %d, 期望还原为 %d", id, got, base[id])
			}
		}
	}
}

func TestHourlyRotationSingleElevatedMap(t *testing.T) {
	ls, config := rotationFixture()
	rs := NewRotationService(ls, config)
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	rs.ApplyHourlyBossRotation(now)

	elevated := 0
	for _, id := range config.HourlyBoss.Maps {
		switch got := bossChance(t, ls, id, "collector"); got {
		case config.HourlyBoss.ElevatedChance:
			elevated++
		case 0:
		default:
			t.Errorf("地点 %s 的稀有Boss概率 = %d, 既非0也非提升值", id, got)
		}
	}
	if elevated != 1 {
		t.Errorf("提升概率的地图数 = %d, 期望恰好 1", elevated)
	}
}

func TestRotationSkipsEmptyPool(t *testing.T) {
	ls, config := rotationFixture()
	config.WeeklyBoss.Maps = []string{"nowhere"}
	config.HourlyBoss.Maps = []string{"nowhere"}
	rs := NewRotationService(ls, config)

	now := time.Now()
	rs.ApplyWeeklyBossRotation(now)
	rs.ApplyHourlyBossRotation(now)

	// 空候选池只跳过，不得污染任何模板
	for _, id := range []string{"harbor", "quarry", "mill"} {
		tmpl, _ := ls.Get(id)
		if tmpl.BossOfWeek || tmpl.BonusLootTier {
			t.Errorf("空候选池下地点 %s 不应带轮换标记", id)
		}
	}
}
