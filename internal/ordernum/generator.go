package ordernum

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Next 在事务内领取当天下一个序号并生成单号（ORD-YYYYMMDD-NNNN）。
// 日期按 UTC 固定口径；序号每天从 0001 开始。
// UPSERT 自增 + RETURNING 保证同一天并发取号互不重复，且随事务一起提交/回滚。
func Next(tx *gorm.DB, now time.Time) (string, error) {
	day := now.UTC().Format("20060102")
	var seq int64
	err := tx.Raw(`
		INSERT INTO order_counters (day, seq) VALUES (?, 1)
		ON CONFLICT(day) DO UPDATE SET seq = seq + 1
		RETURNING seq`, day).Scan(&seq).Error
	if err != nil {
		return "", fmt.Errorf("allocate order number: %w", err)
	}
	return Format(day, seq), nil
}

// Format 拼出 ORD-{YYYYMMDD}-{NNNN}，序号零填充到 4 位。
func Format(day string, seq int64) string {
	return fmt.Sprintf("ORD-%s-%04d", day, seq)
}
