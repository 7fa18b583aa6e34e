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

	"github.com/redis/go-redis/v9"

	"memories-social/internal/auth"
	"memories-social/internal/bootstrap"
	"memories-social/internal/config"
	"memories-social/internal/handlers/chatserver"
	appKafka "memories-social/internal/kafka"
	kafkahandlers "memories-social/internal/kafka/handlers"
	appRedis "memories-social/internal/redis"
	"memories-social/internal/services"
	"memories-social/internal/storage"
	"memories-social/internal/websocket"
)

func main() {
	// 1. 加载配置
	cfg, err := config.LoadConfig(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("无法加载配置: %v", err)
	}
	log.Println("Chat 服务器配置加载成功。")

	// 2. 初始化数据库连接
	db, err := storage.InitDB(cfg.Database, cfg.LogLevel)
	if err != nil {
		log.Fatalf("无法初始化数据库: %v", err)
	}
	log.Println("Chat 服务器数据库连接成功。")

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	// 3. Redis (令牌黑名单与 redis 实时驱动)
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

	// 5. 实时变更流
	rt, err := bootstrap.NewRealtime(rootCtx, cfg, redisClient, kfkProducer)
	if err != nil {
		log.Fatalf("无法初始化实时变更流: %v", err)
	}

	// 6. Repositories 与 Services
	userRepo := storage.NewGormUserRepository(db)
	convoRepo := storage.NewGormConversationRepository(db)
	msgRepo := storage.NewPublishingMessageRepository(storage.NewGormMessageRepository(db), rt.Publisher)
	registry := services.NewConversationRegistry(convoRepo, userRepo)

	// 7. 初始化 WebSocket Hub
	hub := websocket.NewHub()
	go hub.Run(rootCtx)
	log.Println("WebSocket Hub 已启动。")

	// 8. 好友请求通知：每个节点都要把事件推给自己的连接
	friendConsumer, err := appKafka.NewConfluentKafkaConsumer(cfg.Kafka)
	if err != nil {
		log.Fatalf("无法创建好友请求 Kafka 消费者: %v", err)
	}
	friendHandler := kafkahandlers.NewFriendRequestHandler(hub)
	rt.Consume(rootCtx, friendConsumer, cfg.Kafka.FriendRequestTopic,
		bootstrap.InstanceGroup(cfg.Kafka.ConsumerGroup), friendHandler.HandleFriendRequest)

	// 9. HTTP 路由
	wsHandler := chatserver.NewWebSocketHandler(hub, registry, msgRepo, rt.Feed, tokenBlacklist, cfg)
	mux := http.NewServeMux()
	mux.HandleFunc(cfg.Server.WebSocketPath, wsHandler.ServeWS)

	serverAddr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:           serverAddr,
		Handler:        mux,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	go func() {
		log.Printf("Chat HTTP 服务器启动于 %s, WebSocket 路径: %s", serverAddr, cfg.Server.WebSocketPath)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Chat 服务器启动失败: %v", err)
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Chat 服务器准备关闭...")

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := httpServer.Shutdown(ctxShutdown); err != nil {
		log.Printf("Chat 服务器关闭失败: %v", err)
	}

	// 停止 Hub 与 Kafka 消费者
	cancelRoot()
	rt.Close()
	log.Println("Chat 服务器已优雅关闭。")
}
