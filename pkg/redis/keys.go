package redis

import "fmt"

// RateLimitKey 统一约定下单限流键名，按客户端 IP 维度。
func RateLimitKey(ip string) string {
	return fmt.Sprintf("pos:rate_limit:orders:%s", ip)
}
