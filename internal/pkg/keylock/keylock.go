// internal/pkg/keylock/keylock.go
package keylock

import (
	"context"
	"sync"
)

// Locker 为任意字符串 key 提供互斥临界区。
// 库存台账依赖它保证同一 (资源单元, 日期) 上的增减是线性化的。
// 单实例部署用进程内互斥锁即可；多实例部署可切换为 ZooKeeper 实现。
type Locker interface {
	// Acquire 阻塞直到拿到 key 对应的锁，返回释放函数。
	// ctx 取消时返回错误，调用方不得再进入临界区。
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// KeyedMutex 是进程内实现：每个 key 一把互斥锁，互不相关的 key 全并行。
// 锁对象一经创建不回收——key 空间是 资源单元×日期，量级可控。
type KeyedMutex struct {
	locks sync.Map // key -> *sync.Mutex
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{}
}

func (m *KeyedMutex) Acquire(ctx context.Context, key string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, _ := m.locks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock, nil
}
