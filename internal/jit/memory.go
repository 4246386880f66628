// memory.go - 可执行内存与代码缓存
//
// 生成的代码先写入可读写页面，再改为只读可执行（W^X）。
// 每个方法占用独立的页面区间，Close 时统一释放。
//
// CodeCache 以代码内容指纹去重，并按入口地址建立有序索引，
// 出错时可以由指令地址反查所属方法。

package jit

import (
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"github.com/google/btree"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"golang.org/x/crypto/blake2b"
)

// ErrClosed 页面管理器已关闭
var ErrClosed = errors.New("jit: page manager closed")

// Fingerprint 代码内容指纹
type Fingerprint [32]byte

// FingerprintOf 计算机器码指纹
func FingerprintOf(code []byte) Fingerprint {
	return blake2b.Sum256(code)
}

func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:8])
}

// NativeCode 已安装的本地代码
type NativeCode struct {
	ID          uuid.UUID
	Method      string
	Entry       uintptr
	Size        int
	Fingerprint Fingerprint

	mem []byte
}

// Contains 地址是否落在这段代码内
func (n *NativeCode) Contains(pc uintptr) bool {
	return pc >= n.Entry && pc < n.Entry+uintptr(n.Size)
}

// Bytes 安装后的代码（只读）
func (n *NativeCode) Bytes() []byte {
	return n.mem[:n.Size]
}

// ============================================================================
// 页面管理
// ============================================================================

// PageManager 可执行页面分配器
type PageManager struct {
	mu     sync.Mutex
	spans  [][]byte
	bytes  int
	closed bool
}

// NewPageManager 创建页面管理器
func NewPageManager() *PageManager {
	return &PageManager{}
}

// Install 把机器码复制到新页面并设为可执行
func (pm *PageManager) Install(code []byte) ([]byte, error) {
	if len(code) == 0 {
		return nil, fmt.Errorf("jit: empty code")
	}
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if pm.closed {
		return nil, ErrClosed
	}

	size := alignPage(len(code))
	mem, err := allocWritable(size)
	if err != nil {
		return nil, fmt.Errorf("jit: allocate %d bytes: %w", size, err)
	}
	copy(mem, code)
	if err := protectExecutable(mem); err != nil {
		_ = freePages(mem)
		return nil, fmt.Errorf("jit: protect: %w", err)
	}
	pm.spans = append(pm.spans, mem)
	pm.bytes += size
	return mem, nil
}

// Bytes 已映射的字节数
func (pm *PageManager) Bytes() int {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return pm.bytes
}

// Close 释放全部页面
func (pm *PageManager) Close() error {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if pm.closed {
		return nil
	}
	pm.closed = true
	var err error
	for _, mem := range pm.spans {
		err = multierr.Append(err, freePages(mem))
	}
	pm.spans = nil
	pm.bytes = 0
	return err
}

func alignPage(n int) int {
	ps := pageSize()
	return (n + ps - 1) &^ (ps - 1)
}

func entryOf(mem []byte) uintptr {
	return uintptr(unsafe.Pointer(&mem[0]))
}

// ============================================================================
// 代码缓存
// ============================================================================

// CodeCache 已安装代码的索引
type CodeCache struct {
	mu      sync.RWMutex
	byAddr  *btree.BTreeG[*NativeCode]
	byPrint map[Fingerprint]*NativeCode
	byName  map[string]*NativeCode
}

// NewCodeCache 创建代码缓存
func NewCodeCache() *CodeCache {
	return &CodeCache{
		byAddr: btree.NewG(16, func(a, b *NativeCode) bool {
			return a.Entry < b.Entry
		}),
		byPrint: make(map[Fingerprint]*NativeCode),
		byName:  make(map[string]*NativeCode),
	}
}

// Add 登记代码
func (c *CodeCache) Add(n *NativeCode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byAddr.ReplaceOrInsert(n)
	c.byPrint[n.Fingerprint] = n
	c.byName[n.Method] = n
}

// Alias 让另一个方法名指向已有代码
func (c *CodeCache) Alias(method string, n *NativeCode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byName[method] = n
}

// ByFingerprint 按内容查找
func (c *CodeCache) ByFingerprint(f Fingerprint) (*NativeCode, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n, ok := c.byPrint[f]
	return n, ok
}

// ByName 按方法全名查找
func (c *CodeCache) ByName(method string) (*NativeCode, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n, ok := c.byName[method]
	return n, ok
}

// Lookup 查找包含 pc 的代码
func (c *CodeCache) Lookup(pc uintptr) (*NativeCode, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var found *NativeCode
	c.byAddr.DescendLessOrEqual(&NativeCode{Entry: pc}, func(n *NativeCode) bool {
		found = n
		return false
	})
	if found == nil || !found.Contains(pc) {
		return nil, false
	}
	return found, true
}

// Len 不同代码段的数量
func (c *CodeCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.byAddr.Len()
}

// Ascend 按地址顺序遍历
func (c *CodeCache) Ascend(fn func(*NativeCode) bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	c.byAddr.Ascend(func(n *NativeCode) bool { return fn(n) })
}
