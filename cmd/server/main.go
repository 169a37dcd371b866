package main

import (
	"fmt"
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"gopkg.in/yaml.v3"

	"github.com/aiwuxian/project-extraction/internal/api"
	"github.com/aiwuxian/project-extraction/internal/models"
	"github.com/aiwuxian/project-extraction/internal/services"
	"github.com/aiwuxian/project-extraction/internal/storage"
)

func main() {
	// 加载配置
	config, err := loadConfig("config.yml")
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	// 初始化数据库
	store, err := storage.New(config.Database)
	if err != nil {
		log.Fatalf("初始化数据库失败: %v", err)
	}
	defer store.Close()

	// 初始化服务
	locationService := services.NewLocationService(config.Locations)
	metaService := services.NewMetaService(config)
	schedulerService := services.NewSchedulerService(config.Raid)
	raidTimeService := services.NewRaidTimeService(config.Raid)

	rewardApplier := &services.DefaultRewardApplier{}
	insuranceService := services.NewDefaultInsuranceService(store)
	mailService := services.NewDefaultMailService(store)
	scavLoadout := services.NewDefaultScavLoadoutGenerator(config.Game)

	reconcileService := services.NewReconcileService(store, metaService, config.Fence,
		config.Raid.TransitRepair, rewardApplier, insuranceService, mailService, scavLoadout)

	raidService := services.NewRaidService(store, locationService, raidTimeService,
		schedulerService, reconcileService, services.NewDefaultLootGenerator(),
		&services.DefaultWaveGenerator{}, mailService, config.Raid, config.Game)

	// 上次运行若在战局中崩溃，强制退出战局模式
	schedulerService.ResetStranded()

	// 启动定时轮换
	rotationService := services.NewRotationService(locationService, config.Rotation)
	rotationScheduler := services.NewRotationScheduler(rotationService)
	if err := rotationScheduler.Start(); err != nil {
		log.Fatalf("启动轮换调度器失败: %v", err)
	}
	defer rotationScheduler.Stop()

	// 初始化API处理器
	handler := api.NewHandler(raidService, raidTimeService, locationService, store)

	// 设置Gin路由
	r := gin.Default()

	apiGroup := r.Group("/api")
	{
		// 战局相关
		apiGroup.POST("/match/local/start", handler.StartLocalRaid)
		apiGroup.POST("/match/local/end", handler.EndLocalRaid)
		apiGroup.GET("/raid/adjustments", handler.GetRaidAdjustments)

		// 档案相关
		apiGroup.GET("/profile/:sessionId", handler.GetProfile)
	}

	// 启动服务器
	addr := fmt.Sprintf("%s:%s", config.Server.Host, config.Server.Port)
	log.Printf("🎮 Project Extraction 启动成功！监听 %s", addr)
	log.Printf("🗺️ 已加载 %d 张地图", len(config.Locations))

	if err := r.Run(addr); err != nil {
		log.Fatalf("启动服务器失败: %v", err)
	}
}

func loadConfig(path string) (*models.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config models.Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, err
	}

	return &config, nil
}
