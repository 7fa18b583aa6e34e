package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/redis/go-redis/v9"

	"memories-social/internal/auth"
	"memories-social/internal/bootstrap"
	"memories-social/internal/config"
	"memories-social/internal/handlers/apiserver"
	appKafka "memories-social/internal/kafka"
	appRedis "memories-social/internal/redis"
	"memories-social/internal/services"
	"memories-social/internal/session"
	"memories-social/internal/storage"
)

func main() {
	// 1. 加载配置
	cfg, err := config.LoadConfig(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("无法加载配置: %v", err)
	}
	log.Println("API 服务器配置加载成功。")

	// 2. 初始化数据库连接
	db, err := storage.InitDB(cfg.Database, cfg.LogLevel)
	if err != nil {
		log.Fatalf("无法初始化数据库: %v", err)
	}
	log.Println("API 服务器数据库连接成功。")

	if err := storage.AutoMigrateTables(db); err != nil {
		log.Printf("警告：API 服务器数据库表迁移可能失败: %v", err)
	}

	// 3. 初始化 Redis Client 与 Token 黑名单
	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	// REDIS.ADDR 为空时使用进程内黑名单（单机部署）
	var redisClient *redis.Client
	tokenBlacklist := auth.NewMemoryTokenBlacklist()
	if cfg.Redis.Addr != "" {
		redisClient, err = appRedis.NewClient(rootCtx, cfg.Redis)
		if err != nil {
			log.Fatalf("无法连接到 Redis: %v", err)
		}
		defer redisClient.Close()
		tokenBlacklist = appRedis.NewRedisTokenBlacklist(redisClient)
	}

	// 4. 初始化 Kafka Producer
	kfkProducer, err := appKafka.NewConfluentKafkaProducer(cfg.Kafka)
	if err != nil {
		log.Fatalf("无法创建 Kafka 生产者: %v", err)
	}
	defer kfkProducer.Close()
	log.Println("Kafka 生产者初始化成功 (API Server)。")

	// 5. 实时变更流：REST 发送的消息也要推送给聊天连接
	rt, err := bootstrap.NewRealtime(rootCtx, cfg, redisClient, kfkProducer, bootstrap.PublishOnly())
	if err != nil {
		log.Fatalf("无法初始化实时变更流: %v", err)
	}

	// 6. 初始化 Repositories
	userRepo := storage.NewGormUserRepository(db)
	convoRepo := storage.NewGormConversationRepository(db)
	friendReqRepo := storage.NewGormFriendRequestRepository(db)
	msgRepo := storage.NewPublishingMessageRepository(storage.NewGormMessageRepository(db), rt.Publisher)

	// 7. 初始化 Services
	resolver := session.NewIdentityResolver(userRepo)
	authService := services.NewAuthService(userRepo, tokenBlacklist, cfg.Auth)
	userService := services.NewUserService(userRepo)
	friendService := services.NewFriendGraphService(friendReqRepo, userRepo, resolver,
		appKafka.NewFriendRequestNotifier(kfkProducer, cfg.Kafka.FriendRequestTopic))
	registry := services.NewConversationRegistry(convoRepo, userRepo)
	// 每个请求使用独立的时间线，请求结束即释放
	newTimeline := func() services.MessageTimeline {
		return services.NewMessageTimeline(msgRepo, services.WithParticipantChecker(registry))
	}

	// 8. 初始化 Handlers 与路由
	r := apiserver.NewRouter(apiserver.Handlers{
		Auth:          apiserver.NewAuthHandler(authService),
		Users:         apiserver.NewUserHandler(userService),
		FriendRequest: apiserver.NewFriendRequestHandler(friendService),
		Conversation:  apiserver.NewConversationHandler(registry, newTimeline, resolver),
	}, cfg.Auth.JWTSecretKey, tokenBlacklist)

	// 9. 启动 HTTP 服务器并实现优雅关闭
	serverAddr := fmt.Sprintf("%s:%s", cfg.APIServer.Host, cfg.APIServer.Port)

	corsOptions := []handlers.CORSOption{
		handlers.AllowedOrigins(cfg.APIServer.CORS.AllowedOrigins),
		handlers.AllowedMethods(cfg.APIServer.CORS.AllowedMethods),
		handlers.AllowedHeaders(cfg.APIServer.CORS.AllowedHeaders),
		handlers.ExposedHeaders(cfg.APIServer.CORS.ExposedHeaders),
		handlers.MaxAge(cfg.APIServer.CORS.MaxAge),
	}
	if cfg.APIServer.CORS.AllowCredentials {
		corsOptions = append(corsOptions, handlers.AllowCredentials())
	}

	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      handlers.CORS(corsOptions...)(handlers.CombinedLoggingHandler(os.Stdout, r)),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  time.Second * 60,
	}

	go func() {
		log.Printf("API 服务器启动于 %s", serverAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("API 服务器启动失败: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("收到关闭信号，正在关闭 API 服务器...")

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(ctxShutdown); err != nil {
		log.Printf("API 服务器强制关闭: %v", err)
	}

	cancelRoot()
	rt.Close()
	log.Println("API 服务器已成功关闭")
}
