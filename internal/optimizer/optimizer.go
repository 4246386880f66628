// optimizer.go - 中间代码优化器
//
// 按方法运行基本块级 Pipeline，再按类运行叶子方法内联。
// 每个方法的优化状态保存在独立的 Context 中，优化器本身只持有配置与统计。
//
// 优化级别：
//   - 0: 清理跳转、删除无用指令
//   - 1: + 整数/浮点常量折叠
//   - 2: + 强度削减
//   - 3: + 存储回读替换为复制
//   - 4: + 存取器模式内联、叶子方法内联

package optimizer

import (
	"go.uber.org/zap"

	"github.com/tangzhangming/objeck/internal/bytecode"
)

// Config 优化器配置
type Config struct {
	// Level 优化级别，超出范围时截断到 [0, MaxLevel]
	Level int
	// MaxInlineSpace 叶子内联后调用者局部空间上限
	MaxInlineSpace int
	// Logger 调试日志，可为空
	Logger *zap.Logger
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Level:          LevelReplace,
		MaxInlineSpace: DefaultMaxInlineSpace,
	}
}

// Optimizer 中间代码优化器
type Optimizer struct {
	program  *bytecode.Program
	config   *Config
	pipeline *PassManager
	stats    Stats
}

// New 创建优化器
func New(program *bytecode.Program, config *Config) *Optimizer {
	if config == nil {
		config = DefaultConfig()
	}
	c := *config
	if c.Level < LevelNone {
		c.Level = LevelNone
	}
	if c.Level > MaxLevel {
		c.Level = MaxLevel
	}
	if c.MaxInlineSpace <= 0 {
		c.MaxInlineSpace = DefaultMaxInlineSpace
	}
	return &Optimizer{
		program:  program,
		config:   &c,
		pipeline: CreateStandardPipeline(),
	}
}

// Level 实际使用的优化级别
func (o *Optimizer) Level() int {
	return o.config.Level
}

// NewContext 为方法创建优化上下文
func (o *Optimizer) NewContext(m *bytecode.Method) *Context {
	return &Context{
		Program:        o.program,
		Method:         m,
		Labels:         NewLabelAllocator(),
		Stats:          &o.stats,
		Logger:         o.config.Logger,
		maxInlineSpace: o.config.MaxInlineSpace,
	}
}

// Optimize 对单个方法运行 Pipeline，整体替换其块列表
func (o *Optimizer) Optimize(m *bytecode.Method) {
	ctx := o.NewContext(m)
	m.SetBlocks(o.pipeline.Run(ctx, m.Blocks, o.config.Level))
	o.stats.MethodsOptimized++
}

// OptimizeProgram 优化程序中的全部方法
//
// 每个类先对全部方法运行 Pipeline，级别 4 时再做一遍叶子内联。
func (o *Optimizer) OptimizeProgram() {
	for _, c := range o.program.Classes {
		for _, m := range c.Methods {
			o.Optimize(m)
		}
		if o.config.Level < LevelInline {
			continue
		}
		for _, m := range c.Methods {
			ctx := o.NewContext(m)
			if n := InlineMethods(ctx); n > 0 && ctx.Logger != nil {
				ctx.Logger.Debug("inlined", zap.String("method", m.FullName()), zap.Int("sites", n))
			}
		}
	}
}

// Stats 优化统计
func (o *Optimizer) Stats() Stats {
	return o.stats
}

// PassStats Pipeline 统计
func (o *Optimizer) PassStats() PassStats {
	return o.pipeline.Stats()
}

// OptimizeProgram 以给定级别优化程序
func OptimizeProgram(p *bytecode.Program, level int) Stats {
	cfg := DefaultConfig()
	cfg.Level = level
	o := New(p, cfg)
	o.OptimizeProgram()
	return o.Stats()
}
