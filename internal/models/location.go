package models

// LocationTemplate 地点模板。注册表中保存全局模板，战局开始时深拷贝一份，
// 克隆体随战局丢弃；除轮换选择器的全局开关外不得原地修改全局模板。
type LocationTemplate struct {
	ID                string             `json:"id" yaml:"id"`
	Name              string             `json:"name" yaml:"name"`
	Base              bool               `json:"base,omitempty" yaml:"base"` // 基地伪地点，不生成战利品
	EscapeTimeMinutes int                `json:"escape_time_minutes" yaml:"escape_time_minutes"`
	EnableLootScaling bool               `json:"enable_loot_scaling" yaml:"enable_loot_scaling"`
	BossOfWeek        bool               `json:"boss_of_week" yaml:"-"` // 本周Boss地图标记（地图界面展示用）
	BonusLootTier     bool               `json:"bonus_loot_tier" yaml:"-"`
	Loot              LootMultipliers    `json:"loot" yaml:"loot"`
	Exits             []Exit             `json:"exits" yaml:"exits"`
	ScavExits         []Exit             `json:"scav_exits,omitempty" yaml:"scav_exits"`
	Waves             []Wave             `json:"waves,omitempty" yaml:"waves"`
	BossSpawns        []BossSpawn        `json:"boss_spawns,omitempty" yaml:"boss_spawns"`
	Transits          []TransitPoint     `json:"transits,omitempty" yaml:"transits"`
	Hostility         []HostilitySetting `json:"hostility,omitempty" yaml:"hostility"`
}

// Clone 深拷贝地点模板（战局作用域的副本）
func (lt *LocationTemplate) Clone() *LocationTemplate {
	c := *lt
	c.Exits = append([]Exit(nil), lt.Exits...)
	c.ScavExits = append([]Exit(nil), lt.ScavExits...)
	c.Waves = append([]Wave(nil), lt.Waves...)
	c.BossSpawns = append([]BossSpawn(nil), lt.BossSpawns...)
	c.Transits = append([]TransitPoint(nil), lt.Transits...)
	c.Hostility = make([]HostilitySetting, len(lt.Hostility))
	for i, h := range lt.Hostility {
		c.Hostility[i] = h.clone()
	}
	return &c
}

// LootMultipliers 战利品密度倍率（百分比，100为基准）
type LootMultipliers struct {
	DynamicPercent float64 `json:"dynamic_percent" yaml:"dynamic_percent"`
	StaticPercent  float64 `json:"static_percent" yaml:"static_percent"`
}

// Exit 撤离点。时间字段均为秒。
type Exit struct {
	Name             string `json:"name" yaml:"name"`
	Type             string `json:"type" yaml:"type"` // shared / car / train
	Chance           int    `json:"chance" yaml:"chance"`
	MinTime          int    `json:"min_time" yaml:"min_time"`
	MaxTime          int    `json:"max_time" yaml:"max_time"`
	Count            int    `json:"count,omitempty" yaml:"count"`                       // 列车停靠时长
	ExfiltrationTime int    `json:"exfiltration_time,omitempty" yaml:"exfiltration_time"` // 登车后撤离耗时
}

// 撤离点类型
const (
	ExitTypeShared = "shared"
	ExitTypeCar    = "car"
	ExitTypeTrain  = "train"
)

// Wave 普通刷怪波次，TimeMin/TimeMax 为战局内时间窗口（秒）
type Wave struct {
	Name    string `json:"name" yaml:"name"`
	Faction string `json:"faction" yaml:"faction"`
	TimeMin int    `json:"time_min" yaml:"time_min"`
	TimeMax int    `json:"time_max" yaml:"time_max"`
	Chance  int    `json:"chance" yaml:"chance"`
}

// BossSpawn Boss/护卫刷怪点。TimeMin 为负表示不受战局时钟门限，任何时刻都可能出现。
type BossSpawn struct {
	BossName string `json:"boss_name" yaml:"boss_name"`
	Faction  string `json:"faction" yaml:"faction"`
	Chance   int    `json:"chance" yaml:"chance"`
	TimeMin  int    `json:"time_min" yaml:"time_min"`
	TimeMax  int    `json:"time_max" yaml:"time_max"`
	Escorts  int    `json:"escorts,omitempty" yaml:"escorts"`
}

// ClockGated Boss是否受战局时钟门限
func (bs *BossSpawn) ClockGated() bool {
	return bs.TimeMin >= 0
}

// TransitPoint 跨地图中转点
type TransitPoint struct {
	Name                 string `json:"name" yaml:"name"`
	Target               string `json:"target" yaml:"target"` // 目标地点ID
	Active               bool   `json:"active" yaml:"active"`
	ActivateAfterSeconds int    `json:"activate_after_seconds,omitempty" yaml:"activate_after_seconds"`
	Event                bool   `json:"event,omitempty" yaml:"-"` // 活动专属中转标记
}

// HostilitySetting 某一类AI的敌对关系配置
type HostilitySetting struct {
	BotRole        string            `json:"bot_role" yaml:"bot_role"`
	AlwaysEnemies  []string          `json:"always_enemies,omitempty" yaml:"always_enemies"`
	AlwaysFriends  []string          `json:"always_friends,omitempty" yaml:"always_friends"`
	ChanceEnemies  []ChanceEnemy     `json:"chance_enemies,omitempty" yaml:"chance_enemies"`
	FactionChances map[string]int    `json:"faction_chances,omitempty" yaml:"faction_chances"` // 阵营 -> 敌对概率百分比
}

func (h HostilitySetting) clone() HostilitySetting {
	c := h
	c.AlwaysEnemies = append([]string(nil), h.AlwaysEnemies...)
	c.AlwaysFriends = append([]string(nil), h.AlwaysFriends...)
	c.ChanceEnemies = append([]ChanceEnemy(nil), h.ChanceEnemies...)
	if h.FactionChances != nil {
		c.FactionChances = make(map[string]int, len(h.FactionChances))
		for k, v := range h.FactionChances {
			c.FactionChances[k] = v
		}
	}
	return c
}

// ChanceEnemy 概率敌对关系
type ChanceEnemy struct {
	Role          string `json:"role" yaml:"role"`
	ChancePercent int    `json:"chance_percent" yaml:"chance_percent"`
}

// LocationLoot 战利品生成结果（生成细节由外部协作者负责，本核心只透传）
type LocationLoot struct {
	Spawns []LootSpawn `json:"spawns"`
}

// LootSpawn 单个战利品点
type LootSpawn struct {
	ID         string `json:"id"`
	TemplateID string `json:"tpl"`
	Static     bool   `json:"static,omitempty"`
}
