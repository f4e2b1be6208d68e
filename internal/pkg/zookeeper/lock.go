// internal/pkg/zookeeper/lock.go
package zookeeper

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-zookeeper/zk"
)

const (
	lockRoot = "/capacity_locks" // 库存键锁的根节点
)

// DistributedLock 基于临时顺序节点的分布式互斥锁。
// 多实例部署时用它保证跨进程的 (资源单元, 日期) 写互斥。
type DistributedLock struct {
	conn     *Conn
	path     string // 锁的父路径，例如 /capacity_locks/ROOM101|2026-10-01
	lockNode string // 成功抢到锁后自己创建的节点
}

func NewDistributedLock(conn *Conn, resourceID string) *DistributedLock {
	// 确保根节点与锁路径存在。生产环境通常由初始化脚本创建。
	ensureNode(conn, lockRoot)
	lockPath := lockRoot + "/" + resourceID
	ensureNode(conn, lockPath)

	return &DistributedLock{
		conn: conn,
		path: lockPath,
	}
}

func ensureNode(conn *Conn, path string) {
	if exists, _, err := conn.Exists(path); err == nil && exists {
		return
	}
	_, createErr := conn.Create(path, []byte(""), 0, zk.WorldACL(zk.PermAll))
	if createErr != nil && createErr != zk.ErrNodeExists {
		panic(fmt.Sprintf("Failed to create lock node %s: %v", path, createErr))
	}
}

// Lock 尝试获取锁，获取不到则阻塞等待，直到超时。
func (l *DistributedLock) Lock() error {
	// 1. 在锁路径下创建临时顺序节点
	nodePath, err := l.conn.CreateProtectedEphemeralSequential(l.path+"/lock-", []byte(""), zk.WorldACL(zk.PermAll))
	if err != nil {
		return fmt.Errorf("failed to create sequential node: %w", err)
	}
	l.lockNode = nodePath

	for {
		// 2. 取出所有竞争者并排序
		children, _, err := l.conn.Children(l.path)
		if err != nil {
			return fmt.Errorf("failed to get children nodes: %w", err)
		}
		sort.Strings(children)

		// 3. 自己是最小节点则获得锁
		myNodeName := strings.TrimPrefix(l.lockNode, l.path+"/")
		if myNodeName == children[0] {
			return nil
		}

		// 4. 否则监听前一个节点的删除事件
		prevNodeIndex := -1
		for i, child := range children {
			if child == myNodeName {
				prevNodeIndex = i - 1
				break
			}
		}
		if prevNodeIndex < 0 {
			return errors.New("cannot find previous node, something is wrong")
		}
		prevNodePath := l.path + "/" + children[prevNodeIndex]

		_, _, eventChan, err := l.conn.ExistsW(prevNodePath)
		if err != nil {
			// 前一个节点在检查瞬间刚好被删除，直接重试
			if err == zk.ErrNoNode {
				continue
			}
			return fmt.Errorf("failed to watch previous node: %w", err)
		}

		select {
		case event := <-eventChan:
			if event.Type == zk.EventNodeDeleted {
				continue
			}
		case <-time.After(30 * time.Second): // 防止死等
			return errors.New("timeout waiting for lock")
		}
	}
}

// Unlock 释放锁。
func (l *DistributedLock) Unlock() error {
	if l.lockNode == "" {
		return errors.New("no lock to unlock")
	}
	err := l.conn.Delete(l.lockNode, -1)
	if err != nil && err != zk.ErrNoNode {
		return fmt.Errorf("failed to delete lock node: %w", err)
	}
	l.lockNode = ""
	return nil
}

// KeyLocker 把 DistributedLock 适配成 keylock.Locker 的形状，
// 供库存台账在多实例部署时注入。
type KeyLocker struct {
	conn *Conn
}

func NewKeyLocker(conn *Conn) *KeyLocker {
	return &KeyLocker{conn: conn}
}

func (k *KeyLocker) Acquire(ctx context.Context, key string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	lock := NewDistributedLock(k.conn, sanitizeKey(key))
	if err := lock.Lock(); err != nil {
		return nil, err
	}
	return func() {
		if err := lock.Unlock(); err != nil {
			// 会话丢失时临时节点会被 ZooKeeper 自动清理，这里只能记录
			fmt.Printf("WARN: failed to unlock %s: %v\n", key, err)
		}
	}, nil
}

// sanitizeKey 把业务 key 转成合法的 znode 名（不允许出现 '/'）。
func sanitizeKey(key string) string {
	return strings.ReplaceAll(key, "/", "_")
}
