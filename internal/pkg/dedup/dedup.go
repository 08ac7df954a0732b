package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "verifai:dedup:upload:"

// Deduplicator 在一个时间窗口内拦截重复的 CSV 上传。
//
// 指纹由文件内容和所选日期共同决定：同一份名单换一个活动日期
// 重新上传不算重复。
type Deduplicator struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewDeduplicator(rdb *redis.Client, ttl time.Duration) *Deduplicator {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Deduplicator{
		rdb: rdb,
		ttl: ttl,
	}
}

// Fingerprint 计算一次上传的指纹。
func Fingerprint(payload []byte, selectedDate string) string {
	h := sha256.New()
	h.Write(payload)
	h.Write([]byte{0})
	h.Write([]byte(selectedDate))
	return hex.EncodeToString(h.Sum(nil))
}

// IsDuplicate 以 SetNX 语义声明指纹；返回 true 表示窗口内已出现过。
func (d *Deduplicator) IsDuplicate(ctx context.Context, fingerprint string) (bool, error) {
	if d == nil || d.rdb == nil || fingerprint == "" {
		return false, nil
	}
	key := keyPrefix + fingerprint
	ok, err := d.rdb.SetNX(ctx, key, "1", d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup setnx: %w", err)
	}
	return !ok, nil
}

// Release 撤销指纹声明，入库失败后调用，保证重试不被误拦。
func (d *Deduplicator) Release(ctx context.Context, fingerprint string) error {
	if d == nil || d.rdb == nil || fingerprint == "" {
		return nil
	}
	key := keyPrefix + fingerprint
	if err := d.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("dedup del: %w", err)
	}
	return nil
}
