package services

import (
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/aiwuxian/project-extraction/internal/models"
	"github.com/aiwuxian/project-extraction/internal/storage"
	"github.com/google/uuid"
)

// 本文件定义战局核心依赖的外部协作者契约。战利品生成、AI波次、奖励发放、
// 保险与站内信的具体规则都在核心之外，这里只约定输入输出，并提供可直接
// 运行的默认实现。

// LootGenerator 战利品生成
type LootGenerator interface {
	GenerateLocationLoot(tmpl *models.LocationTemplate) (*models.LocationLoot, error)
}

// WaveGenerator AI波次调整
type WaveGenerator interface {
	ApplyWaveChangesToMap(tmpl *models.LocationTemplate)
}

// RewardApplier 奖励发放（任务完成/成就解锁共用），返回实际发放的物品
type RewardApplier interface {
	ApplyRewards(rewards []models.Reward, source string, profile *models.Profile, char *models.CharacterProfile, sourceID string) []models.Item
}

// InsuranceService 投保损失的暂存与延迟投递
type InsuranceService interface {
	MapInsuredItemsToTrader(char *models.CharacterProfile, lost []models.Item) map[string][]models.Item
	StoreGearLostInRaidToSendLater(sessionID string, byTrader map[string][]models.Item) error
	StartPostRaidInsuranceLostProcess(sessionID string, char *models.CharacterProfile, lost []models.Item) error
}

// MailService 站内信投递
type MailService interface {
	SendLocalisedMessage(sessionID, sender, messageType, textKey string, items []models.Item, expirySeconds int) error
}

// ScavLoadoutGenerator 拾荒者死亡后重新生成装备
type ScavLoadoutGenerator interface {
	GenerateScavLoadout(char *models.CharacterProfile)
}

// ---- 默认实现 ----

// DefaultLootGenerator 按地点的密度倍率生成占位战利品点
type DefaultLootGenerator struct {
	rng *rand.Rand
}

func NewDefaultLootGenerator() *DefaultLootGenerator {
	return &DefaultLootGenerator{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (lg *DefaultLootGenerator) GenerateLocationLoot(tmpl *models.LocationTemplate) (*models.LocationLoot, error) {
	if tmpl == nil {
		return nil, fmt.Errorf("地点模板为空")
	}

	loot := &models.LocationLoot{}

	dynamicCount := int(float64(tmpl.EscapeTimeMinutes) * tmpl.Loot.DynamicPercent / 100)
	for i := 0; i < dynamicCount; i++ {
		loot.Spawns = append(loot.Spawns, models.LootSpawn{
			ID:         uuid.New().String(),
			TemplateID: fmt.Sprintf("loose_loot_%d", lg.rng.Intn(64)),
		})
	}

	staticCount := int(float64(tmpl.EscapeTimeMinutes) * tmpl.Loot.StaticPercent / 200)
	for i := 0; i < staticCount; i++ {
		loot.Spawns = append(loot.Spawns, models.LootSpawn{
			ID:         uuid.New().String(),
			TemplateID: fmt.Sprintf("container_%d", lg.rng.Intn(16)),
			Static:     true,
		})
	}

	return loot, nil
}

// DefaultWaveGenerator 对克隆模板做基础波次清理
type DefaultWaveGenerator struct{}

func (wg *DefaultWaveGenerator) ApplyWaveChangesToMap(tmpl *models.LocationTemplate) {
	var waves []models.Wave
	for _, wave := range tmpl.Waves {
		if wave.Chance <= 0 {
			continue
		}
		if wave.Chance > 100 {
			wave.Chance = 100
		}
		waves = append(waves, wave)
	}
	tmpl.Waves = waves
}

// DefaultRewardApplier 把奖励写入档案：物品进仓库、经验直接累加、商人声望调整
type DefaultRewardApplier struct{}

func (ra *DefaultRewardApplier) ApplyRewards(rewards []models.Reward, source string, profile *models.Profile, char *models.CharacterProfile, sourceID string) []models.Item {
	var granted []models.Item

	for _, reward := range rewards {
		switch reward.Type {
		case models.RewardItem:
			count := reward.Count
			if count <= 0 {
				count = 1
			}
			item := models.Item{
				ID:          uuid.New().String(),
				TemplateID:  reward.TemplateID,
				ParentID:    char.Inventory.StashID,
				SlotID:      models.SlotHideout,
				StackCount:  count,
				FoundInRaid: true,
			}
			char.Inventory.Items = append(char.Inventory.Items, item)
			granted = append(granted, item)

		case models.RewardExperience:
			char.Experience += reward.Count

		case models.RewardTraderStanding:
			standing := char.TraderStandings[reward.Target]
			standing.Standing += reward.Value
			if char.TraderStandings == nil {
				char.TraderStandings = make(map[string]models.TraderStanding)
			}
			char.TraderStandings[reward.Target] = standing

		case models.RewardProduction:
			// 藏身处生产规则在核心之外，这里只记录解锁
			if char.Variables == nil {
				char.Variables = make(map[string]string)
			}
			char.Variables["production_"+reward.TemplateID] = sourceID

		default:
			log.Printf("⚠️ [奖励] 未知奖励类型 %s (来源 %s/%s)，已忽略", reward.Type, source, sourceID)
		}
	}

	return granted
}

// DefaultInsuranceService 把投保损失写入数据库的延迟投递队列
type DefaultInsuranceService struct {
	storage *storage.Storage
}

func NewDefaultInsuranceService(st *storage.Storage) *DefaultInsuranceService {
	return &DefaultInsuranceService{storage: st}
}

// MapInsuredItemsToTrader 把损失物品按承保商人分组，未投保的物品被丢弃
func (is *DefaultInsuranceService) MapInsuredItemsToTrader(char *models.CharacterProfile, lost []models.Item) map[string][]models.Item {
	insured := make(map[string]string, len(char.InsuredItems))
	for _, rec := range char.InsuredItems {
		insured[rec.ItemID] = rec.TraderID
	}

	byTrader := make(map[string][]models.Item)
	for _, item := range lost {
		traderID, ok := insured[item.ID]
		if !ok {
			continue
		}
		byTrader[traderID] = append(byTrader[traderID], item)
	}
	return byTrader
}

// StoreGearLostInRaidToSendLater 暂存分组后的损失，等待延迟投递
func (is *DefaultInsuranceService) StoreGearLostInRaidToSendLater(sessionID string, byTrader map[string][]models.Item) error {
	now := time.Now().Unix()
	for traderID, items := range byTrader {
		rec := &models.InsuranceRecord{
			ID:        uuid.New().String(),
			SessionID: sessionID,
			TraderID:  traderID,
			Items:     items,
			StagedAt:  now,
		}
		if err := is.storage.StageInsurance(rec); err != nil {
			return fmt.Errorf("暂存保险记录失败: %w", err)
		}
	}
	return nil
}

// StartPostRaidInsuranceLostProcess 战局结束后的完整保险处理流程
func (is *DefaultInsuranceService) StartPostRaidInsuranceLostProcess(sessionID string, char *models.CharacterProfile, lost []models.Item) error {
	if len(lost) == 0 {
		return nil
	}
	byTrader := is.MapInsuredItemsToTrader(char, lost)
	if len(byTrader) == 0 {
		return nil
	}
	return is.StoreGearLostInRaidToSendLater(sessionID, byTrader)
}

// DefaultMailService 站内信写入发件箱，真正的投递由邮件子系统完成
type DefaultMailService struct {
	storage *storage.Storage
}

func NewDefaultMailService(st *storage.Storage) *DefaultMailService {
	return &DefaultMailService{storage: st}
}

func (ms *DefaultMailService) SendLocalisedMessage(sessionID, sender, messageType, textKey string, items []models.Item, expirySeconds int) error {
	mail := &models.MailMessage{
		ID:            uuid.New().String(),
		SessionID:     sessionID,
		Sender:        sender,
		MessageType:   messageType,
		TextKey:       textKey,
		Items:         items,
		ExpirySeconds: expirySeconds,
		CreatedAt:     time.Now().Unix(),
	}
	return ms.storage.CreateMail(mail)
}

// DefaultScavLoadoutGenerator 从配置的模板池为拾荒者生成一套新装备并重置健康
type DefaultScavLoadoutGenerator struct {
	config models.GameConfig
	rng    *rand.Rand
}

func NewDefaultScavLoadoutGenerator(config models.GameConfig) *DefaultScavLoadoutGenerator {
	return &DefaultScavLoadoutGenerator{
		config: config,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (sg *DefaultScavLoadoutGenerator) GenerateScavLoadout(char *models.CharacterProfile) {
	equipmentID := uuid.New().String()
	items := []models.Item{{ID: equipmentID, TemplateID: "equipment_root"}}

	for _, tpl := range sg.config.ScavLoadoutTemplates {
		items = append(items, models.Item{
			ID:         uuid.New().String(),
			TemplateID: tpl,
			ParentID:   equipmentID,
			SlotID:     fmt.Sprintf("slot_%d", sg.rng.Intn(8)),
			StackCount: 1,
		})
	}

	char.Inventory.EquipmentID = equipmentID
	char.Inventory.Items = items
	char.InsuredItems = nil

	for part, bp := range char.Health.BodyParts {
		bp.Current = bp.Maximum
		bp.Effects = nil
		char.Health.BodyParts[part] = bp
	}
	char.Health.Energy.Current = char.Health.Energy.Maximum
	char.Health.Hydration.Current = char.Health.Hydration.Maximum
}
