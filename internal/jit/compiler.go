// compiler.go - JIT 编译器
//
// Compiler 把 Generator、页面管理与代码缓存组合在一起。
// 每次编译使用新的 Generator，因此可以被多个 goroutine 同时调用；
// 统计量用原子计数器维护。

package jit

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/tangzhangming/objeck/internal/bytecode"
	jerrors "github.com/tangzhangming/objeck/internal/errors"
)

// ============================================================================
// 编译器
// ============================================================================

// Compiler JIT 编译器
type Compiler struct {
	program *bytecode.Program
	cfg     Config
	logger  *zap.Logger

	pages *PageManager
	cache *CodeCache

	// 编译统计
	compiled  atomic.Int64
	fallbacks atomic.Int64
	fatals    atomic.Int64
	codeBytes atomic.Int64
	callouts  atomic.Int64
	cacheHits atomic.Int64
	compileNs atomic.Int64
	installed atomic.Int64
}

// CompilerStats 编译器统计
type CompilerStats struct {
	Compiled    int64 `json:"compiled"`     // 成功编译数
	Fallbacks   int64 `json:"fallbacks"`    // 回退到解释器的方法数
	Fatals      int64 `json:"fatals"`       // 内部错误数
	CodeBytes   int64 `json:"code_bytes"`   // 机器码总字节数
	Callouts    int64 `json:"callouts"`     // 外部调用点总数
	CacheHits   int64 `json:"cache_hits"`   // 按指纹复用的安装数
	Installed   int64 `json:"installed"`    // 安装到可执行内存的代码段数
	CompileTime int64 `json:"compile_time"` // 总编译时间 (ns)
}

// NewCompiler 创建 JIT 编译器
func NewCompiler(program *bytecode.Program, cfg Config) *Compiler {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Compiler{
		program: program,
		cfg:     cfg,
		logger:  cfg.Logger,
		pages:   NewPageManager(),
		cache:   NewCodeCache(),
	}
}

// Compile 编译方法，不安装
func (c *Compiler) Compile(m *bytecode.Method) Result {
	id := uuid.New()
	start := time.Now()
	res := NewGenerator(c.program, c.cfg).Compile(m)
	elapsed := time.Since(start)
	c.compileNs.Add(int64(elapsed))

	fields := []zap.Field{
		zap.String("id", id.String()),
		zap.String("method", m.FullName()),
		zap.Stringer("status", res.Status),
		zap.Duration("elapsed", elapsed),
	}
	switch res.Status {
	case StatusSuccess:
		c.compiled.Inc()
		c.codeBytes.Add(int64(len(res.Code)))
		c.callouts.Add(int64(res.Callouts))
		c.logger.Debug("jit compiled", append(fields,
			zap.Int("size", len(res.Code)),
			zap.Int("callouts", res.Callouts))...)
	case StatusFallback:
		c.fallbacks.Inc()
		c.logger.Info("jit fallback", append(fields, zap.Error(res.Err))...)
	default:
		c.fatals.Inc()
		c.logger.Error("jit failure", append(fields, zap.Error(res.Err))...)
	}
	return res
}

// CompileProgram 编译程序中的每个方法
func (c *Compiler) CompileProgram() []Result {
	var results []Result
	for _, m := range c.program.Methods() {
		results = append(results, c.Compile(m))
	}
	return results
}

// Install 编译并安装到可执行内存；内容相同的代码只安装一次
//
// 含外部调用的方法需要 Config.Callback，否则不安装，交给解释器。
func (c *Compiler) Install(m *bytecode.Method) (*NativeCode, Result) {
	res := c.Compile(m)
	if !res.OK() {
		return nil, res
	}
	if res.Callouts > 0 && c.cfg.Callback == 0 {
		res.Status = StatusFallback
		res.Err = jerrors.New(jerrors.J0007, m.FullName(), -1,
			"%d call-outs but no call-out entry is configured", res.Callouts)
		c.fallbacks.Inc()
		c.logger.Info("jit not installed", zap.String("method", m.FullName()), zap.Error(res.Err))
		return nil, res
	}
	native, err := c.InstallResult(res)
	if err != nil {
		res.Status = StatusFallback
		res.Err = jerrors.Wrap(jerrors.J0006, m.FullName(), -1, err)
		c.fallbacks.Inc()
		return nil, res
	}
	return native, res
}

// InstallResult 安装一个成功的编译结果
func (c *Compiler) InstallResult(res Result) (*NativeCode, error) {
	name := res.Method.FullName()
	fp := FingerprintOf(res.Code)
	if n, ok := c.cache.ByFingerprint(fp); ok {
		c.cacheHits.Inc()
		c.cache.Alias(name, n)
		return n, nil
	}

	mem, err := c.pages.Install(res.Code)
	if err != nil {
		return nil, err
	}
	n := &NativeCode{
		ID:          uuid.New(),
		Method:      name,
		Entry:       entryOf(mem),
		Size:        len(res.Code),
		Fingerprint: fp,
		mem:         mem,
	}
	c.cache.Add(n)
	c.installed.Inc()
	c.logger.Debug("jit installed",
		zap.String("method", name),
		zap.String("fingerprint", fp.String()),
		zap.Uintptr("entry", n.Entry))
	return n, nil
}

// Lookup 由指令地址查找所属代码
func (c *Compiler) Lookup(pc uintptr) (*NativeCode, bool) {
	return c.cache.Lookup(pc)
}

// Cache 代码缓存
func (c *Compiler) Cache() *CodeCache {
	return c.cache
}

// Stats 获取编译统计
func (c *Compiler) Stats() CompilerStats {
	return CompilerStats{
		Compiled:    c.compiled.Load(),
		Fallbacks:   c.fallbacks.Load(),
		Fatals:      c.fatals.Load(),
		CodeBytes:   c.codeBytes.Load(),
		Callouts:    c.callouts.Load(),
		CacheHits:   c.cacheHits.Load(),
		Installed:   c.installed.Load(),
		CompileTime: c.compileNs.Load(),
	}
}

// Close 释放可执行内存
func (c *Compiler) Close() error {
	return c.pages.Close()
}
