// Package main 是应用程序的入口点。
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"archive-depot-go/internal/config"
	"archive-depot-go/internal/handler"
	"archive-depot-go/internal/middleware"
	"archive-depot-go/internal/pipeline"
	"archive-depot-go/internal/repository"
	"archive-depot-go/internal/service"
	"archive-depot-go/pkg/database"
	"archive-depot-go/pkg/fetch"
	"archive-depot-go/pkg/kafka"
	"archive-depot-go/pkg/log"
	"archive-depot-go/pkg/storage"
	"archive-depot-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	configPath := flag.String("config", "./configs/config.yaml", "配置文件路径")
	flag.Parse()

	// 1. 初始化配置
	config.Init(*configPath)
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库、Redis 和归档存储
	database.InitMySQL(cfg.Database.MySQL.DSN)
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	bgCtx, cancelBg := context.WithCancel(context.Background())
	defer cancelBg()
	store, err := storage.New(bgCtx, cfg.Storage, cfg.MinIO)
	if err != nil {
		log.Fatal("归档存储初始化失败", err)
	}

	// 4. 初始化 Repository
	archiveRepo := repository.NewArchiveRepository(database.DB)
	configRepo := repository.NewSystemConfigRepository(database.DB)
	progressRepo := repository.NewDownloadProgressRepository(database.RDB)

	// 5. 初始化 Service (依赖注入)
	jwtManager := token.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.TokenExpireHours)
	authService := service.NewAuthService(cfg.Auth.SharedSecretHash, jwtManager)
	archiveService := service.NewArchiveService(archiveRepo, store)
	downloadService := service.NewDownloadService(
		service.NewJobRegistry(),
		fetch.NewClient(time.Duration(cfg.Download.TimeoutSeconds)*time.Second),
		store,
		archiveService,
		service.DownloadOptions{
			BufferSize:     cfg.Download.BufferSize,
			MirrorInterval: time.Duration(cfg.Download.MirrorIntervalMs) * time.Millisecond,
			Mirror:         progressRepo,
		},
	)

	// 6. 初始化装配流水线
	assembler := pipeline.NewAssembler(archiveRepo, configRepo, store, cfg.Storage.InstallRoot)

	// 7. Kafka 是可选的：未配置 brokers 时异步装配接口返回 503
	var publisher service.AssemblyPublisher
	consumerDone := make(chan struct{})
	if strings.TrimSpace(cfg.Kafka.Brokers) != "" {
		producer := kafka.NewProducer(cfg.Kafka)
		defer producer.Close()
		publisher = producer
		go func() {
			defer close(consumerDone)
			kafka.StartConsumer(bgCtx, cfg.Kafka, assembler, kafka.NewRedisCounter(database.RDB))
		}()
	} else {
		close(consumerDone)
		log.Info("未配置 Kafka，异步装配不可用")
	}
	configService := service.NewSystemConfigService(configRepo, archiveRepo, publisher)

	// 7.1 导入种子目录中的归档，已导入则跳过
	if cfg.Storage.SeedDir != "" {
		go func() {
			n, err := service.ImportSeedArchives(bgCtx, cfg.Storage.SeedDir, archiveService)
			if err != nil {
				log.Warnf("导入种子归档中断: %v", err)
			}
			log.Infof("种子归档导入完成，新导入 %d 个", n)
		}()
	}

	// 8. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.RequestLogger(), gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "ok", "data": nil})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	archiveHandler := handler.NewArchiveHandler(archiveService, cfg.Server.MaxUploadMB)
	downloadHandler := handler.NewDownloadHandler(downloadService, time.Duration(cfg.Download.MirrorIntervalMs)*time.Millisecond)
	configHandler := handler.NewSystemConfigHandler(assembler, configService)

	// 9. 注册路由
	apiV1 := r.Group("/api/v1")
	{
		apiV1.POST("/auth/token", handler.NewAuthHandler(authService).IssueToken)

		archives := apiV1.Group("/archives")
		archives.Use(middleware.AuthMiddleware(jwtManager))
		{
			archives.GET("", archiveHandler.List)
			archives.GET("/:id", archiveHandler.Get)
			archives.POST("", archiveHandler.Upload)
			archives.PUT("/:id", archiveHandler.Update)
			archives.DELETE("/:id", archiveHandler.Delete)
		}

		downloads := apiV1.Group("/downloads")
		downloads.Use(middleware.AuthMiddleware(jwtManager))
		{
			downloads.POST("", downloadHandler.Start)
			downloads.GET("", downloadHandler.List)
			downloads.GET("/:key", downloadHandler.Status)
			downloads.GET("/:key/ws", downloadHandler.Stream)
		}

		configs := apiV1.Group("/system-configs")
		configs.Use(middleware.AuthMiddleware(jwtManager))
		{
			configs.POST("", configHandler.Assemble)
			configs.POST("/async", configHandler.AssembleAsync)
			configs.GET("", configHandler.List)
			configs.GET("/:id", configHandler.Get)
		}
	}

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}

	// 取消进行中的下载与 Kafka 消费者，并等待它们退出
	downloadService.Close()
	cancelBg()
	<-consumerDone
	log.Info("服务已优雅关闭")
}
