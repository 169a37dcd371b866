package services

import (
	"log"
	"time"

	rcron "github.com/robfig/cron/v3"
)

// RotationScheduler 定时驱动轮换选择器。选择器本身是时间桶的纯函数，
// 同一桶内重复执行是幂等的，错过触发点也会在下个整点自动收敛。
type RotationScheduler struct {
	rotation *RotationService
	cron     *rcron.Cron
}

func NewRotationScheduler(rotation *RotationService) *RotationScheduler {
	return &RotationScheduler{rotation: rotation}
}

func (rs *RotationScheduler) Start() error {
	// 启动时先应用一次，保证重启后立即回到当前时间桶的选择
	now := time.Now()
	rs.rotation.ApplyWeeklyBossRotation(now)
	rs.rotation.ApplyHourlyBossRotation(now)

	rs.cron = rcron.New()

	if _, err := rs.cron.AddFunc("0 * * * *", func() {
		rs.rotation.ApplyHourlyBossRotation(time.Now())
	}); err != nil {
		return err
	}

	if _, err := rs.cron.AddFunc("0 0 * * *", func() {
		rs.rotation.ApplyWeeklyBossRotation(time.Now())
	}); err != nil {
		return err
	}

	rs.cron.Start()
	log.Println("⏱️ 轮换调度器已启动")
	return nil
}

func (rs *RotationScheduler) Stop() {
	if rs.cron != nil {
		rs.cron.Stop()
	}
}
