package models

// Config 配置
type Config struct {
	Server       ServerConfig            `yaml:"server"`
	Database     DatabaseConfig          `yaml:"database"`
	Game         GameConfig              `yaml:"game"`
	Raid         RaidConfig              `yaml:"raid"`
	Fence        FenceConfig             `yaml:"fence"`
	Rotation     RotationConfig          `yaml:"rotation"`
	Locations    []LocationTemplate      `yaml:"locations"`
	Quests       []QuestDefinition       `yaml:"quests"`
	Achievements []AchievementDefinition `yaml:"achievements"`
	Traders      []TraderDefinition      `yaml:"traders"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
	Host string `yaml:"host"`
}

type DatabaseConfig struct {
	Path       string `yaml:"path"`
	BackupDir  string `yaml:"backup_dir"`
	BackupKeep int    `yaml:"backup_keep"` // 每个会话保留的档案备份数量
}

type GameConfig struct {
	ScavCooldownSeconds  int      `yaml:"scav_cooldown_seconds"`
	WipePrimaryEquipment bool     `yaml:"wipe_primary_equipment"` // 主战角色开局清空随身装备（防掉线保装备）
	ScavLoadoutTemplates []string `yaml:"scav_loadout_templates"` // 拾荒者死亡后重新生成装备用的模板池
}

// RaidConfig 战局相关配置
type RaidConfig struct {
	SurvivalTimeSeconds      int                           `yaml:"survival_time_seconds"` // 判定"存活"所需的最短战局时间
	TrainArrivalDelaySeconds int                           `yaml:"train_arrival_delay_seconds"`
	ScavCompression          ScavCompressionConfig         `yaml:"scav_compression"`
	TransitRepair            TransitRepairConfig           `yaml:"transit_repair"`
	EconomyTickSeconds       int                           `yaml:"economy_tick_seconds"`
	HideoutTickSeconds       int                           `yaml:"hideout_tick_seconds"`
	RaidEconomyTickSeconds   int                           `yaml:"raid_economy_tick_seconds"` // 战局期间降频后的间隔
	RaidHideoutTickSeconds   int                           `yaml:"raid_hideout_tick_seconds"`
	HostileFactions          []string                      `yaml:"hostile_factions"` // 时间压缩时需要重排间距的敌对阵营
	EventTransits            map[string]EventTransitConfig `yaml:"event_transits"`   // 地点ID -> 活动中转白名单
	Hostility                []HostilitySetting            `yaml:"hostility"`        // 全局AI敌对关系覆盖
}

// ScavCompressionConfig 拾荒者战局时间压缩配置
type ScavCompressionConfig struct {
	ChancePercent    int               `yaml:"chance_percent"`
	ReductionWeights []ReductionWeight `yaml:"reduction_weights"`
	LootFloorPercent float64           `yaml:"loot_floor_percent"` // 战利品密度下限
}

// ReductionWeight 压缩比例的加权抽取表条目
type ReductionWeight struct {
	ReductionPercent int `yaml:"reduction_percent"`
	Weight           int `yaml:"weight"`
}

// TransitRepairConfig 中转时的肢体修复配置
type TransitRepairConfig struct {
	RestorePercent float64  `yaml:"restore_percent"` // 已损毁部位恢复到最大值的百分比
	RemoveEffects  []string `yaml:"remove_effects"`  // 中转时移除的状态效果
}

// EventTransitConfig 活动中转白名单
type EventTransitConfig struct {
	Transits             []string `yaml:"transits"`
	ActivateAfterSeconds int      `yaml:"activate_after_seconds"`
}

// FenceConfig 共享阵营商人（两个角色声望保持一致的商人）配置
type FenceConfig struct {
	TraderID           string  `yaml:"trader_id"`
	MinStanding        float64 `yaml:"min_standing"`
	MaxStanding        float64 `yaml:"max_standing"`
	ExtractBonus       float64 `yaml:"extract_bonus"`        // 拾荒者成功撤离的固定声望加成
	CarExtractBaseGain float64 `yaml:"car_extract_base_gain"` // 车辆撤离基础加成，随次数衰减
}

// RotationConfig 定时轮换配置
type RotationConfig struct {
	WeeklyBoss WeeklyBossConfig `yaml:"weekly_boss"`
	HourlyBoss HourlyBossConfig `yaml:"hourly_boss"`
}

// WeeklyBossConfig 每周Boss地图轮换
type WeeklyBossConfig struct {
	BossName string   `yaml:"boss_name"`
	Maps     []string `yaml:"maps"`
	Chance   int      `yaml:"chance"` // 选中地图上的刷新概率，通常为100
}

// HourlyBossConfig 每小时稀有Boss轮换
type HourlyBossConfig struct {
	BossName       string   `yaml:"boss_name"`
	Maps           []string `yaml:"maps"`
	ElevatedChance int      `yaml:"elevated_chance"`
}
