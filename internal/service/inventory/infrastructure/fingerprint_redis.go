// internal/service/inventory/infrastructure/fingerprint_redis.go
package infrastructure

import (
	"context"
	"fmt"
	"time"

	"github.com/wangke168/saas-sub000/internal/pkg/logger"
	"github.com/wangke168/saas-sub000/internal/pkg/redis"
)

const checkAndSetScriptName = "fingerprint_check_and_set"

// scriptRunner 抽出 redis.Client 中本适配器用到的那一小块，方便测试注入故障。
type scriptRunner interface {
	RunScript(ctx context.Context, name string, keys []string, args ...interface{}) (interface{}, error)
}

// RedisFingerprintCache 是 port.FingerprintCache 的 Redis 实现。
// 比对+写入用一段 Lua 原子完成，避免两条推送交错时双双判为 Changed 之外的情况。
// 缓存只是旁路加速，任何异常都按 Changed 处理（fail-open）。
type RedisFingerprintCache struct {
	runner scriptRunner
	ttl    time.Duration
}

func NewRedisFingerprintCache(client *redis.Client, ttl time.Duration) (*RedisFingerprintCache, error) {
	if err := client.LoadScriptFromContent(checkAndSetScriptName, checkAndSetScript); err != nil {
		return nil, fmt.Errorf("failed to load fingerprint script: %w", err)
	}
	return &RedisFingerprintCache{runner: client, ttl: ttl}, nil
}

// newFingerprintCacheWithRunner 供测试注入自定义 runner。
func newFingerprintCacheWithRunner(runner scriptRunner, ttl time.Duration) *RedisFingerprintCache {
	return &RedisFingerprintCache{runner: runner, ttl: ttl}
}

func (c *RedisFingerprintCache) CheckAndUpdate(ctx context.Context, unitID, date, value string) bool {
	key := fmt.Sprintf("fp:capacity:{%s}:%s", unitID, date)

	result, err := c.runner.RunScript(ctx, checkAndSetScriptName, []string{key}, value, int(c.ttl.Seconds()))
	if err != nil {
		// 后端不可用时宁可把重复推送放下去，也不能吞掉真实变更
		logger.Ctx(ctx).Warn().Err(err).Str("key", key).
			Msg("fingerprint cache unavailable, treating as changed")
		return true
	}

	code, ok := result.(int64)
	if !ok {
		logger.Ctx(ctx).Warn().Str("key", key).
			Msgf("unexpected result type from fingerprint script: %T", result)
		return true
	}
	return code == 1
}

var checkAndSetScript = `
-- KEYS[1]: 指纹 key, 例如 fp:capacity:{ROOM101}:2026-10-01
-- ARGV[1]: 本次观察到的值
-- ARGV[2]: TTL (秒)

-- 1. 取上次观察值；key 不存在或已过期时 current 为 false
local current = redis.call('get', KEYS[1])

-- 2. 与本次值相同则判定为无变化
if current == ARGV[1] then
    return 0
end

-- 3. 否则记录新值并刷新 TTL
redis.call('set', KEYS[1], ARGV[1], 'EX', tonumber(ARGV[2]))
return 1
`
