// Package config 读写 objeck.toml
package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"go.uber.org/multierr"
)

// 常量定义
const (
	FileName = "objeck.toml" // 默认配置文件名

	maxLevel    = 4
	maxGP       = 4
	maxAux      = 6
	maxXmm      = 6
	maxInlineSz = 256
)

// Config 完整配置
type Config struct {
	Optimizer OptimizerConfig `toml:"optimizer"`
	JIT       JITConfig       `toml:"jit"`
	VM        VMConfig        `toml:"vm"`
	Log       LogConfig       `toml:"log"`
}

// OptimizerConfig 优化器配置
type OptimizerConfig struct {
	// Level 优化级别 0..4
	Level int `toml:"level"`

	// MaxInlineSpace 内联后调用者局部空间上限
	MaxInlineSpace int `toml:"max_inline_space"`
}

// JITConfig 代码生成配置
type JITConfig struct {
	Enabled      bool `toml:"enabled"`
	GPRegisters  int  `toml:"gp_registers"`
	AuxRegisters int  `toml:"aux_registers"`
	XmmRegisters int  `toml:"xmm_registers"`
	FloatPool    int  `toml:"float_pool"`
	BufferSize   int  `toml:"buffer_size"`
}

// VMConfig 解释器配置
type VMConfig struct {
	// StepLimit 单次调用最多执行的指令数，0 表示不限制
	StepLimit uint64 `toml:"step_limit"`
}

// LogConfig 日志配置
type LogConfig struct {
	Debug bool   `toml:"debug"`
	Level string `toml:"level"` // debug, info, warn, error
}

// Default 默认配置
func Default() *Config {
	return &Config{
		Optimizer: OptimizerConfig{Level: 3, MaxInlineSpace: 32},
		JIT: JITConfig{
			Enabled:      true,
			GPRegisters:  maxGP,
			AuxRegisters: maxAux,
			XmmRegisters: maxXmm,
			FloatPool:    64,
			BufferSize:   512,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load 从文件加载配置；文件中没有的键保持默认值
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse 解析 TOML 文本
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 检查取值范围，报告全部问题
func (c *Config) Validate() error {
	var err error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			err = multierr.Append(err, fmt.Errorf(format, args...))
		}
	}

	check(c.Optimizer.Level >= 0 && c.Optimizer.Level <= maxLevel,
		"optimizer.level %d out of range 0..%d", c.Optimizer.Level, maxLevel)
	check(c.Optimizer.MaxInlineSpace > 0 && c.Optimizer.MaxInlineSpace <= maxInlineSz,
		"optimizer.max_inline_space %d out of range 1..%d", c.Optimizer.MaxInlineSpace, maxInlineSz)

	check(c.JIT.GPRegisters >= 2 && c.JIT.GPRegisters <= maxGP,
		"jit.gp_registers %d out of range 2..%d", c.JIT.GPRegisters, maxGP)
	check(c.JIT.AuxRegisters >= 0 && c.JIT.AuxRegisters <= maxAux,
		"jit.aux_registers %d out of range 0..%d", c.JIT.AuxRegisters, maxAux)
	check(c.JIT.XmmRegisters >= 1 && c.JIT.XmmRegisters <= maxXmm,
		"jit.xmm_registers %d out of range 1..%d", c.JIT.XmmRegisters, maxXmm)
	check(c.JIT.FloatPool > 0, "jit.float_pool must be positive")
	check(c.JIT.BufferSize > 0, "jit.buffer_size must be positive")

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		check(false, "log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	return err
}

// Save 保存配置到文件
func (c *Config) Save(path string) error {
	// 生成带注释的配置文件内容
	content := generateConfigWithComments(c)

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// generateConfigWithComments 生成带注释的配置文件内容
func generateConfigWithComments(c *Config) string {
	var sb strings.Builder

	sb.WriteString("[optimizer]\n")
	sb.WriteString("# 优化级别：0 关闭，1 折叠，2 强度削减，3 指令替换，4 内联\n")
	fmt.Fprintf(&sb, "level = %d\n", c.Optimizer.Level)
	sb.WriteString("# 内联后调用者局部空间上限\n")
	fmt.Fprintf(&sb, "max_inline_space = %d\n\n", c.Optimizer.MaxInlineSpace)

	sb.WriteString("[jit]\n")
	fmt.Fprintf(&sb, "enabled = %t\n", c.JIT.Enabled)
	sb.WriteString("# RDX RCX RBX RAX\n")
	fmt.Fprintf(&sb, "gp_registers = %d\n", c.JIT.GPRegisters)
	sb.WriteString("# R15 R14 R13 R11 R10 R8\n")
	fmt.Fprintf(&sb, "aux_registers = %d\n", c.JIT.AuxRegisters)
	sb.WriteString("# XMM15..XMM10\n")
	fmt.Fprintf(&sb, "xmm_registers = %d\n", c.JIT.XmmRegisters)
	sb.WriteString("# 每个方法的浮点常量上限\n")
	fmt.Fprintf(&sb, "float_pool = %d\n", c.JIT.FloatPool)
	fmt.Fprintf(&sb, "buffer_size = %d\n\n", c.JIT.BufferSize)

	sb.WriteString("[vm]\n")
	sb.WriteString("# 0 表示不限制\n")
	fmt.Fprintf(&sb, "step_limit = %d\n\n", c.VM.StepLimit)

	sb.WriteString("[log]\n")
	fmt.Fprintf(&sb, "debug = %t\n", c.Log.Debug)
	fmt.Fprintf(&sb, "level = %q\n", c.Log.Level)

	return sb.String()
}
