package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"coffee_pos/internal/config"
	"coffee_pos/internal/events"
	"coffee_pos/internal/model"
	"coffee_pos/internal/queue"
	"coffee_pos/internal/router"
	"coffee_pos/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	rd "github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// 1. 连接 SQLite，自动建表
	db, err := gorm.Open(sqlite.Open(cfg.DBPath), &gorm.Config{})
	if err != nil {
		log.Fatalf("db open: %v", err)
	}
	if err := db.AutoMigrate(
		&model.Category{},
		&model.Product{},
		&model.Customer{},
		&model.Order{},
		&model.OrderItem{},
		&model.OrderCounter{},
	); err != nil {
		log.Fatalf("db migrate: %v", err)
	}

	// 2. Redis（可选，仅限流用）
	var rdb *rd.Client
	if cfg.RedisAddr != "" {
		rdb = rd.NewClient(&rd.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		defer rdb.Close()
	}

	// 3. 事件总线 + 可选 Kafka 转发
	bus := events.NewBus(cfg.EventBufferSize)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var producer *queue.Producer
	if len(cfg.KafkaBrokers) > 0 {
		producer = queue.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		relay := events.NewRelay(bus, producer)
		go relay.Run(ctx)
		log.Printf("event relay started: topic=%s", cfg.KafkaTopic)
	}

	// 4. HTTP
	orders := service.NewOrderService(db, bus)
	r := gin.Default()
	router.Setup(r, db, rdb, orders, bus, cfg)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	go func() {
		log.Printf("HTTP listening at %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down...")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutCancel()
	_ = srv.Shutdown(shutCtx)

	cancel()
	if producer != nil {
		_ = producer.Close()
	}
}
