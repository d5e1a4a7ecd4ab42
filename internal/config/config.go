package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// AppConfig 聚合运行时配置，尽量通过环境变量注入，避免硬编码。
type AppConfig struct {
	HTTPAddr string
	DBPath   string

	// Redis 仅用于下单限流；地址为空时不启用限流。
	RedisAddr string
	RedisDB   int

	// Kafka 事件转发（可选）：brokers 为空时不启动 relay。
	KafkaBrokers []string
	KafkaTopic   string

	// 下单接口限流与事件通道缓冲
	OrderRateLimit  int
	OrderRateWindow time.Duration
	EventBufferSize int
}

// Load 读取并校验配置，缺失时使用默认值。
func Load() (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		DBPath:          getEnv("DB_PATH", "coffee_pos.db"),
		RedisAddr:       getEnv("REDIS_ADDR", ""),
		RedisDB:         0,
		KafkaBrokers:    splitCSV(getEnv("KAFKA_BROKERS", "")),
		KafkaTopic:      getEnv("KAFKA_TOPIC", "pos-order-events"),
		OrderRateLimit:  100,
		OrderRateWindow: time.Second,
		EventBufferSize: 16,
	}

	redisDB, err := getEnvInt("REDIS_DB", cfg.RedisDB)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	cfg.RedisDB = redisDB

	rateLimit, err := getEnvInt("ORDER_RATE_LIMIT", cfg.OrderRateLimit)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid ORDER_RATE_LIMIT: %w", err)
	}
	if rateLimit <= 0 {
		return AppConfig{}, fmt.Errorf("ORDER_RATE_LIMIT must be > 0")
	}
	cfg.OrderRateLimit = rateLimit

	rateWindowSec, err := getEnvInt("ORDER_RATE_WINDOW_SEC", int(cfg.OrderRateWindow.Seconds()))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid ORDER_RATE_WINDOW_SEC: %w", err)
	}
	if rateWindowSec <= 0 {
		return AppConfig{}, fmt.Errorf("ORDER_RATE_WINDOW_SEC must be > 0")
	}
	cfg.OrderRateWindow = time.Duration(rateWindowSec) * time.Second

	bufSize, err := getEnvInt("EVENT_BUFFER_SIZE", cfg.EventBufferSize)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid EVENT_BUFFER_SIZE: %w", err)
	}
	if bufSize <= 0 {
		return AppConfig{}, fmt.Errorf("EVENT_BUFFER_SIZE must be > 0")
	}
	cfg.EventBufferSize = bufSize

	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaTopic == "" {
		return AppConfig{}, fmt.Errorf("KAFKA_TOPIC must not be empty when KAFKA_BROKERS is set")
	}

	return cfg, nil
}

// getEnv 读取字符串环境变量，若为空则返回默认值。
func getEnv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

// getEnvInt 读取整数环境变量，若为空则返回默认值。
func getEnvInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

// splitCSV 将逗号分隔字符串解析为字符串切片。
func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
