package models

// Profile 玩家档案（主战角色 + 拾荒者角色 + 共享元数据，持久化为单个文档）
type Profile struct {
	SessionID string           `json:"session_id"`
	Primary   CharacterProfile `json:"primary"`   // 主战角色
	Scavenger CharacterProfile `json:"scavenger"` // 拾荒者角色
	Info      ProfileInfo      `json:"info"`
}

// ProfileInfo 跨角色的共享元数据
type ProfileInfo struct {
	Nickname      string `json:"nickname"`
	LastScavRaid  int64  `json:"last_scav_raid"` // 上次以拾荒者身份进入战局的时间戳
	TotalRaids    int    `json:"total_raids"`
	SurvivedRaids int    `json:"survived_raids"`
}

// 角色阵营标识
const (
	SidePrimary   = "pmc"  // 主战角色
	SideScavenger = "scav" // 拾荒者角色
)

// Character 按阵营取对应的角色记录
func (p *Profile) Character(side string) *CharacterProfile {
	if side == SideScavenger {
		return &p.Scavenger
	}
	return &p.Primary
}

// CharacterProfile 单个角色的完整档案
type CharacterProfile struct {
	ID                    string                          `json:"id"`
	Side                  string                          `json:"side"`
	Level                 int                             `json:"level"`
	Experience            int                             `json:"experience"`
	Inventory             Inventory                       `json:"inventory"`
	Skills                []Skill                         `json:"skills"`
	Quests                []QuestStatus                   `json:"quests"`
	TaskConditionCounters map[string]TaskConditionCounter `json:"task_condition_counters"`
	TraderStandings       map[string]TraderStanding       `json:"trader_standings"`
	Encyclopedia          map[string]bool                 `json:"encyclopedia"`          // 物品图鉴：物品模板ID -> 是否已发现
	Achievements          map[string]int64                `json:"achievements"`          // 成就ID -> 解锁时间戳
	Health                HealthRecord                    `json:"health"`
	SurvivorClass         string                          `json:"survivor_class"`
	Stats                 CharacterStats                  `json:"stats"`
	WishList              map[string]int                  `json:"wish_list,omitempty"`
	Variables             map[string]string               `json:"variables,omitempty"`
	InsuredItems          []InsuredItem                   `json:"insured_items,omitempty"`
}

// Inventory 角色物品栏（物品树，根节点为仓库）
type Inventory struct {
	Items       []Item `json:"items"`
	StashID     string `json:"stash_id"`     // 物品树根节点
	EquipmentID string `json:"equipment_id"` // 随身装备根节点
}

// EquippedItems 返回装备树下的所有物品（不含仓库）
func (inv *Inventory) EquippedItems() []Item {
	under := map[string]bool{inv.EquipmentID: true}
	var out []Item
	// 物品树按父子顺序存储，单次遍历即可收集整棵子树
	for _, item := range inv.Items {
		if under[item.ParentID] {
			under[item.ID] = true
			out = append(out, item)
		}
	}
	return out
}

// SecureContainerItems 返回安全箱内的所有物品
func (inv *Inventory) SecureContainerItems() []Item {
	var rootID string
	for _, item := range inv.Items {
		if item.ParentID == inv.EquipmentID && item.SlotID == SlotSecuredContainer {
			rootID = item.ID
			break
		}
	}
	if rootID == "" {
		return nil
	}
	under := map[string]bool{rootID: true}
	var out []Item
	for _, item := range inv.Items {
		if under[item.ParentID] {
			under[item.ID] = true
			out = append(out, item)
		}
	}
	return out
}

// Skill 技能（含累计进度与本场战局获得的点数）
type Skill struct {
	ID                    string  `json:"id"`
	Progress              float64 `json:"progress"`
	PointsEarnedInSession float64 `json:"points_earned_in_session"`
}

// 任务状态
const (
	QuestStatusStarted         = "Started"
	QuestStatusSuccess         = "Success"
	QuestStatusFail            = "Fail"
	QuestStatusFailRestartable = "FailRestartable"
)

// QuestStatus 任务进度记录
type QuestStatus struct {
	ID                  string           `json:"id"`
	Status              string           `json:"status"`
	StatusTimers        map[string]int64 `json:"status_timers,omitempty"`
	CompletedConditions []string         `json:"completed_conditions,omitempty"`
}

// TaskConditionCounter 任务条件计数器（按来源任务/成就ID索引）
type TaskConditionCounter struct {
	ID       string `json:"id"`
	SourceID string `json:"source_id"` // 来源任务或成就ID
	Type     string `json:"type"`
	Value    int    `json:"value"`
}

// TraderStanding 商人声望
type TraderStanding struct {
	Standing     float64 `json:"standing"`
	LoyaltyLevel int     `json:"loyalty_level"`
	SalesSum     int     `json:"sales_sum"`
}

// HealthRecord 健康状态（按身体部位）
type HealthRecord struct {
	BodyParts map[string]BodyPart `json:"body_parts"`
	Energy    CurrentMax          `json:"energy"`
	Hydration CurrentMax          `json:"hydration"`
}

// BodyPart 单个身体部位的血量与生效中的状态效果
type BodyPart struct {
	Current float64           `json:"current"`
	Maximum float64           `json:"maximum"`
	Effects map[string]Effect `json:"effects,omitempty"`
}

// Effect 定时状态效果（骨折、流血等）
type Effect struct {
	Time float64 `json:"time"` // 剩余秒数，-1为永久
}

type CurrentMax struct {
	Current float64 `json:"current"`
	Maximum float64 `json:"maximum"`
}

// CharacterStats 战局相关统计
type CharacterStats struct {
	SessionExperience int            `json:"session_experience"` // 本场战局经验，结算后归零
	TotalInGameTime   int64          `json:"total_in_game_time"`
	CarExtractCounts  map[string]int `json:"car_extract_counts,omitempty"` // 撤离点名称 -> 累计车辆撤离次数
	Aggressor         *Aggressor     `json:"aggressor,omitempty"`          // 最近一次击杀该角色的敌人
}

// Aggressor 击杀者信息
type Aggressor struct {
	Name      string `json:"name"`
	Side      string `json:"side"`
	ProfileID string `json:"profile_id,omitempty"`
}

// Victim 战局中被该玩家击杀的角色
type Victim struct {
	Name      string `json:"name"`
	Side      string `json:"side"`
	ProfileID string `json:"profile_id,omitempty"`
	Weapon    string `json:"weapon,omitempty"`
}

// InsuredItem 已投保物品（物品ID + 承保商人）
type InsuredItem struct {
	ItemID   string `json:"item_id"`
	TraderID string `json:"trader_id"`
}

// Item 物品树节点
type Item struct {
	ID          string `json:"id"`
	TemplateID  string `json:"tpl"`
	ParentID    string `json:"parent_id,omitempty"`
	SlotID      string `json:"slot_id,omitempty"`
	StackCount  int    `json:"stack_count,omitempty"`
	FoundInRaid bool   `json:"found_in_raid,omitempty"` // 战局中获取标记
}

// 约定的物品槽位
const (
	SlotSecuredContainer = "SecuredContainer"
	SlotHideout          = "hideout"
)
