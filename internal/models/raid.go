package models

import (
	"fmt"
	"strconv"
	"strings"
)

// TransitionKind 战局进入方式（在API边界一次性解析，内部不再传递位标志）
type TransitionKind int

const (
	TransitionNone   TransitionKind = iota // 常规进入
	TransitionCommon                       // 普通中转
	TransitionEvent                        // 活动中转
)

// ParseTransitionKind 把客户端上报的位标志解析为具体类别
func ParseTransitionKind(flags int) TransitionKind {
	switch {
	case flags&2 != 0:
		return TransitionEvent
	case flags&1 != 0:
		return TransitionCommon
	default:
		return TransitionNone
	}
}

func (tk TransitionKind) String() string {
	switch tk {
	case TransitionCommon:
		return "common"
	case TransitionEvent:
		return "event"
	default:
		return "none"
	}
}

// RaidSessionDescriptor 战局会话描述符。战局开始时创建；若产生中转则由
// 下一次战局开始消费，否则在战局结束时丢弃。
type RaidSessionDescriptor struct {
	SessionID  string         `json:"session_id"`
	LocationID string         `json:"location_id"`
	Side       string         `json:"side"`
	ServerID   string         `json:"server_id"` // 地点.阵营.开始时间戳
	Transition TransitionKind `json:"transition"`
	StartedAt  int64          `json:"started_at"`
}

// ComposeServerID 组合服务端战局ID
func ComposeServerID(locationID, side string, startedAt int64) string {
	return fmt.Sprintf("%s.%s.%d", locationID, side, startedAt)
}

// ParseServerID 解析服务端战局ID，恢复地点与阵营
func ParseServerID(serverID string) (locationID, side string, startedAt int64, err error) {
	parts := strings.Split(serverID, ".")
	if len(parts) != 3 {
		return "", "", 0, fmt.Errorf("非法的战局ID: %s", serverID)
	}
	ts, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return "", "", 0, fmt.Errorf("非法的战局时间戳: %s", serverID)
	}
	return parts[0], parts[1], ts, nil
}

// TransitInfo 跨地图中转的延续状态
type TransitInfo struct {
	PreviousLocation string   `json:"previous_location"`
	LastExitName     string   `json:"last_exit_name"`
	Count            int      `json:"count"`
	VisitedLocations []string `json:"visited_locations,omitempty"`
}

// RaidAdjustments 战局时间压缩结果。附着在会话上，由随后的战利品生成消费一次后丢弃。
type RaidAdjustments struct {
	RaidTimeMinutes       int          `json:"raid_time_minutes"`
	SimulatedStartSeconds int          `json:"simulated_start_seconds"` // 相对原时间线的模拟加入时刻
	SurvivalTimeSeconds   int          `json:"survival_time_seconds"`
	DynamicLootPercent    float64      `json:"dynamic_loot_percent"`
	StaticLootPercent     float64      `json:"static_loot_percent"`
	ExitChanges           []ExitChange `json:"exit_changes,omitempty"`
}

// NoOp 是否为无效果调整（完整时长、满战利品、撤离点不变）
func (ra *RaidAdjustments) NoOp() bool {
	return ra.SimulatedStartSeconds == 0
}

// ExitChange 对指定撤离点的覆盖，nil字段表示不修改
type ExitChange struct {
	Name    string `json:"name"`
	Chance  *int   `json:"chance,omitempty"`
	MinTime *int   `json:"min_time,omitempty"`
	MaxTime *int   `json:"max_time,omitempty"`
}

// 战局结果上报值
const (
	RaidResultSurvived = "Survived"
	RaidResultRunner   = "Runner" // 提前跑刀撤离
	RaidResultKilled   = "Killed"
	RaidResultLeft     = "Left"
	RaidResultMissing  = "MissingInAction"
	RaidResultTransit  = "Transit"
)

// RaidOutcome 战局结局分类
type RaidOutcome int

const (
	OutcomeDied RaidOutcome = iota
	OutcomeSurvived
	OutcomeTransferred
)

// ClassifyOutcome 从客户端上报的结果字符串归类结局
func ClassifyOutcome(result string) RaidOutcome {
	switch result {
	case RaidResultTransit:
		return OutcomeTransferred
	case RaidResultSurvived, RaidResultRunner:
		return OutcomeSurvived
	default:
		return OutcomeDied
	}
}

// StartRaidRequest 开始战局请求
type StartRaidRequest struct {
	Location                 string       `json:"location" binding:"required"`
	Side                     string       `json:"side" binding:"required"`
	TransitionTypeFlags      int          `json:"transition_type_flags"`
	ShouldSkipLootGeneration bool         `json:"should_skip_loot_generation"`
	Transition               *TransitInfo `json:"transition,omitempty"`
}

// StartRaidResponse 开始战局响应
type StartRaidResponse struct {
	ServerID       string            `json:"server_id"`
	ServerSettings *LocationTemplate `json:"server_settings"`
	InsuredItems   []InsuredItem     `json:"insured_items"`
	LocationLoot   *LocationLoot     `json:"location_loot,omitempty"`
	TransitionType string            `json:"transition_type"`
	Transition     *TransitInfo      `json:"transition,omitempty"`
	ExcludedBosses []string          `json:"excluded_bosses"`
}

// EndRaidRequest 结束战局请求
type EndRaidRequest struct {
	ServerID         string            `json:"server_id" binding:"required"`
	Results          RaidResults       `json:"results"`
	LocationTransit  *TransitInfo      `json:"location_transit,omitempty"`
	LostInsuredItems []Item            `json:"lost_insured_items,omitempty"`
	TransferItems    map[string][]Item `json:"transfer_items,omitempty"` // 运载工具/中转邮箱投递
}

// RaidResults 客户端上报的战局结果
type RaidResults struct {
	Result    string            `json:"result"`
	ExitName  string            `json:"exit_name"`
	PlayTime  int               `json:"play_time"`
	Profile   *CharacterProfile `json:"profile"`
	Victims   []Victim          `json:"victims,omitempty"`
	Aggressor *Aggressor        `json:"aggressor,omitempty"`
}

// QuestDefinition 任务定义（静态游戏数据）
type QuestDefinition struct {
	ID          string           `json:"id" yaml:"id"`
	Name        string           `json:"name" yaml:"name"`
	TraderID    string           `json:"trader_id" yaml:"trader_id"`
	Restartable bool             `json:"restartable" yaml:"restartable"` // 失败后能否重开
	Conditions  []QuestCondition `json:"conditions,omitempty" yaml:"conditions"`
	Rewards     []Reward         `json:"rewards,omitempty" yaml:"rewards"`
}

// QuestCondition 任务完成条件
type QuestCondition struct {
	ID              string   `json:"id" yaml:"id"`
	Type            string   `json:"type" yaml:"type"` // FindItem / HandoverItem / Counter
	TargetTemplates []string `json:"target_templates,omitempty" yaml:"target_templates"`
	Count           int      `json:"count,omitempty" yaml:"count"`
}

// 任务条件类型
const (
	ConditionFindItem     = "FindItem"
	ConditionHandoverItem = "HandoverItem"
	ConditionCounter      = "Counter"
)

// Reward 奖励条目（任务完成/成就解锁共用）
type Reward struct {
	Type       string  `json:"type" yaml:"type"` // Item / Production / Experience / TraderStanding
	TemplateID string  `json:"tpl,omitempty" yaml:"tpl"`
	Count      int     `json:"count,omitempty" yaml:"count"`
	Target     string  `json:"target,omitempty" yaml:"target"` // TraderStanding 奖励的商人ID
	Value      float64 `json:"value,omitempty" yaml:"value"`
}

// 奖励类型
const (
	RewardItem           = "Item"
	RewardProduction     = "Production"
	RewardExperience     = "Experience"
	RewardTraderStanding = "TraderStanding"
)

// AchievementDefinition 成就定义
type AchievementDefinition struct {
	ID      string   `json:"id" yaml:"id"`
	Name    string   `json:"name" yaml:"name"`
	Rewards []Reward `json:"rewards,omitempty" yaml:"rewards"`
}

// TraderDefinition 商人定义
type TraderDefinition struct {
	ID                 string `json:"id" yaml:"id"`
	Name               string `json:"name" yaml:"name"`
	ClientQuestRewards bool   `json:"client_quest_rewards" yaml:"client_quest_rewards"` // 该商人任务的完成奖励是否由客户端发放
}
