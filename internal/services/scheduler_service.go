package services

import (
	"log"
	"sync"
	"time"

	"github.com/aiwuxian/project-extraction/internal/models"
)

// SchedulerService 后台服务节拍管理。战局期间降低跳蚤市场/藏身处的轮询频率，
// 战局结束后恢复。降频是全局状态而非会话状态，必须保证每场战局恰好恢复一次。
type SchedulerService struct {
	mu          sync.Mutex
	activeRaids int

	economyTick     time.Duration
	hideoutTick     time.Duration
	raidEconomyTick time.Duration
	raidHideoutTick time.Duration
}

func NewSchedulerService(config models.RaidConfig) *SchedulerService {
	return &SchedulerService{
		economyTick:     time.Duration(config.EconomyTickSeconds) * time.Second,
		hideoutTick:     time.Duration(config.HideoutTickSeconds) * time.Second,
		raidEconomyTick: time.Duration(config.RaidEconomyTickSeconds) * time.Second,
		raidHideoutTick: time.Duration(config.RaidHideoutTickSeconds) * time.Second,
	}
}

// EnterRaidMode 进入战局模式，返回的释放函数在任何退出路径上调用都只生效一次
func (sc *SchedulerService) EnterRaidMode() func() {
	sc.mu.Lock()
	sc.activeRaids++
	sc.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			sc.mu.Lock()
			if sc.activeRaids > 0 {
				sc.activeRaids--
			}
			sc.mu.Unlock()
		})
	}
}

// RaidMode 当前是否处于战局模式
func (sc *SchedulerService) RaidMode() bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.activeRaids > 0
}

// Intervals 返回当前生效的经济/藏身处轮询间隔
func (sc *SchedulerService) Intervals() (economy, hideout time.Duration) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.activeRaids > 0 {
		return sc.raidEconomyTick, sc.raidHideoutTick
	}
	return sc.economyTick, sc.hideoutTick
}

// ResetStranded 进程启动时调用。上次运行若在战局中崩溃，计数会残留，
// 这里强制清零，避免服务器永远停在战局模式。
func (sc *SchedulerService) ResetStranded() {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.activeRaids > 0 {
		log.Printf("⚠️ 检测到残留的战局模式计数(%d)，已重置", sc.activeRaids)
		sc.activeRaids = 0
	}
}
