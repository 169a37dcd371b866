package services

import (
	"github.com/aiwuxian/project-extraction/internal/models"
)

// MetaService 静态游戏数据注册表（任务、成就、商人定义）
type MetaService struct {
	quests       map[string]models.QuestDefinition
	achievements map[string]models.AchievementDefinition
	traders      map[string]models.TraderDefinition
}

func NewMetaService(config *models.Config) *MetaService {
	ms := &MetaService{
		quests:       make(map[string]models.QuestDefinition, len(config.Quests)),
		achievements: make(map[string]models.AchievementDefinition, len(config.Achievements)),
		traders:      make(map[string]models.TraderDefinition, len(config.Traders)),
	}
	for _, q := range config.Quests {
		ms.quests[q.ID] = q
	}
	for _, a := range config.Achievements {
		ms.achievements[a.ID] = a
	}
	for _, t := range config.Traders {
		ms.traders[t.ID] = t
	}
	return ms
}

// Quest 查询任务定义
func (ms *MetaService) Quest(id string) (models.QuestDefinition, bool) {
	q, ok := ms.quests[id]
	return q, ok
}

// Achievement 查询成就定义
func (ms *MetaService) Achievement(id string) (models.AchievementDefinition, bool) {
	a, ok := ms.achievements[id]
	return a, ok
}

// Trader 查询商人定义
func (ms *MetaService) Trader(id string) (models.TraderDefinition, bool) {
	t, ok := ms.traders[id]
	return t, ok
}

// ItemCondition 收集类任务条件的定位（任务ID + 条件ID）
type ItemCondition struct {
	QuestID     string
	ConditionID string
}

// FindItemConditions 找出所有引用了指定物品模板的"收集物品"类任务条件
func (ms *MetaService) FindItemConditions(templateID string) []ItemCondition {
	var out []ItemCondition
	for _, q := range ms.quests {
		for _, cond := range q.Conditions {
			if cond.Type != models.ConditionFindItem && cond.Type != models.ConditionHandoverItem {
				continue
			}
			for _, tpl := range cond.TargetTemplates {
				if tpl == templateID {
					out = append(out, ItemCondition{QuestID: q.ID, ConditionID: cond.ID})
					break
				}
			}
		}
	}
	return out
}

// QuestItemTemplates 返回所有被收集类条件引用的物品模板集合
func (ms *MetaService) QuestItemTemplates() map[string]bool {
	set := make(map[string]bool)
	for _, q := range ms.quests {
		for _, cond := range q.Conditions {
			if cond.Type != models.ConditionFindItem && cond.Type != models.ConditionHandoverItem {
				continue
			}
			for _, tpl := range cond.TargetTemplates {
				set[tpl] = true
			}
		}
	}
	return set
}
