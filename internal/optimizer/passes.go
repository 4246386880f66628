package optimizer

import (
	"slices"

	"go.uber.org/zap"

	"github.com/tangzhangming/objeck/internal/bytecode"
)

// ============================================================================
// 优化上下文
// ============================================================================

// Context 单个方法的优化上下文
//
// 每次优化一个方法时创建，替代全局的 program / 当前方法状态，
// 所有遍通过参数拿到它。
type Context struct {
	Program *bytecode.Program
	Method  *bytecode.Method
	Labels  *LabelAllocator
	Stats   *Stats
	Logger  *zap.Logger

	maxInlineSpace int
}

// ============================================================================
// 优化 Pass 接口
// ============================================================================

// Pass 基本块级别的优化 Pass
//
// Run 读取输入块并返回新块，不修改输入。
type Pass interface {
	Name() string
	Level() int // 启用该 Pass 的最低优化级别
	Run(ctx *Context, in bytecode.Block) bytecode.Block
}

// passFunc 用函数实现 Pass
type passFunc struct {
	name  string
	level int
	run   func(ctx *Context, in bytecode.Block) bytecode.Block
}

func (p passFunc) Name() string { return p.name }
func (p passFunc) Level() int   { return p.level }
func (p passFunc) Run(ctx *Context, in bytecode.Block) bytecode.Block {
	return p.run(ctx, in)
}

// NewPass 用函数创建 Pass
func NewPass(name string, level int, run func(ctx *Context, in bytecode.Block) bytecode.Block) Pass {
	return passFunc{name: name, level: level, run: run}
}

// ============================================================================
// Pass 管理器
// ============================================================================

// PassManager Pass 管理器
type PassManager struct {
	passes []Pass
	stats  PassStats
}

// PassStats Pass 统计信息
type PassStats struct {
	PassesRun      int
	TotalChanges   int
	PerPassChanges map[string]int
}

// NewPassManager 创建 Pass 管理器
func NewPassManager() *PassManager {
	return &PassManager{
		stats: PassStats{PerPassChanges: make(map[string]int)},
	}
}

// AddPass 添加 Pass
func (pm *PassManager) AddPass(p Pass) {
	pm.passes = append(pm.passes, p)
}

// Passes 已注册的 Pass
func (pm *PassManager) Passes() []Pass {
	return pm.passes
}

// Run 依次运行级别允许的 Pass；每个 Pass 处理完全部块后下一个才开始
func (pm *PassManager) Run(ctx *Context, blocks []bytecode.Block, level int) []bytecode.Block {
	for _, p := range pm.passes {
		if p.Level() > level {
			continue
		}
		pm.stats.PassesRun++

		outputs := make([]bytecode.Block, len(blocks))
		changed := false
		for i, b := range blocks {
			outputs[i] = p.Run(ctx, b)
			if !slices.Equal(outputs[i].Instrs, b.Instrs) {
				changed = true
			}
		}
		if changed {
			pm.stats.TotalChanges++
			pm.stats.PerPassChanges[p.Name()]++
		}
		if ctx.Logger != nil {
			ctx.Logger.Debug("pass",
				zap.String("method", ctx.Method.FullName()),
				zap.String("pass", p.Name()),
				zap.Bool("changed", changed))
		}
		// 旧块在此被丢弃
		blocks = outputs
	}
	return blocks
}

// Stats 获取统计信息
func (pm *PassManager) Stats() PassStats {
	return pm.stats
}

// ============================================================================
// 预置 Pipeline
// ============================================================================

// 各 Pass 的启用级别
const (
	LevelNone     = 0
	LevelFold     = 1
	LevelStrength = 2
	LevelReplace  = 3
	LevelInline   = 4
	MaxLevel      = LevelInline
)

// CreateStandardPipeline 创建标准优化 Pipeline
func CreateStandardPipeline() *PassManager {
	pm := NewPassManager()
	pm.AddPass(NewPass("clean-jumps", LevelNone, CleanJumps))
	pm.AddPass(NewPass("remove-useless", LevelNone, RemoveUselessInstructions))
	pm.AddPass(NewPass("inline-getters-setters", LevelInline, InlineSettersGetters))
	pm.AddPass(NewPass("fold-int", LevelFold, FoldIntConstants))
	pm.AddPass(NewPass("fold-float", LevelFold, FoldFloatConstants))
	pm.AddPass(NewPass("strength-reduction", LevelStrength, StrengthReduction))
	pm.AddPass(NewPass("instruction-replacement", LevelReplace, InstructionReplacement))
	return pm
}

// ============================================================================
// 统计
// ============================================================================

// Stats 优化统计
type Stats struct {
	MethodsOptimized int `json:"methods_optimized"`
	JumpsRemoved     int `json:"jumps_removed"`
	UselessRemoved   int `json:"useless_removed"`
	IntFolds         int `json:"int_folds"`
	FloatFolds       int `json:"float_folds"`
	FoldsDeferred    int `json:"folds_deferred"`
	Reductions       int `json:"reductions"`
	Copies           int `json:"copies"`
	PatternsInlined  int `json:"patterns_inlined"`
	MethodsInlined   int `json:"methods_inlined"`
}
