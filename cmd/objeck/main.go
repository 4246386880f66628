package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"strconv"

	"github.com/segmentio/encoding/json"
	"go.uber.org/zap"

	"github.com/tangzhangming/objeck/internal/bytecode"
	"github.com/tangzhangming/objeck/internal/config"
	objerr "github.com/tangzhangming/objeck/internal/errors"
	"github.com/tangzhangming/objeck/internal/jit"
	"github.com/tangzhangming/objeck/internal/logging"
	"github.com/tangzhangming/objeck/internal/optimizer"
	"github.com/tangzhangming/objeck/internal/vm"
)

var (
	optLevel   = flag.Int("O", -1, "Optimization level 0..4 (overrides the config file)")
	configFile = flag.String("config", "", "Configuration file (default: ./"+config.FileName+" if present)")
	initConfig = flag.Bool("init", false, "Write a default "+config.FileName+" and exit")
	dumpIR     = flag.Bool("dump", false, "Print the optimized intermediate code")
	disasm     = flag.Bool("disasm", false, "Print the generated machine code")
	noJIT      = flag.Bool("nojit", false, "Skip native code generation")
	runMethod  = flag.String("run", "", "Run Class:method in the interpreter; trailing arguments are passed to it")
	showStats  = flag.Bool("stats", false, "Print optimizer, JIT and interpreter statistics as JSON")
	outFile    = flag.String("o", "", "Write the optimized program image to this file")
)

// stats -stats 输出
type stats struct {
	Optimizer optimizer.Stats   `json:"optimizer"`
	JIT       *jit.CompilerStats `json:"jit,omitempty"`
	VM        *vm.Stats          `json:"vm,omitempty"`
}

func main() {
	flag.Parse()

	if *initConfig {
		if err := config.Default().Save(config.FileName); err != nil {
			fatal(err)
		}
		fmt.Printf("Created %s\n", config.FileName)
		return
	}

	if flag.NArg() < 1 {
		fmt.Println("Objeck optimizer and JIT v0.1.0")
		fmt.Println()
		fmt.Println("Usage: objeck [options] <program.obc> [args...]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, err := loadConfig()
	if err != nil {
		fatal(err)
	}
	if *optLevel >= 0 {
		cfg.Optimizer.Level = *optLevel
	}
	if err := cfg.Validate(); err != nil {
		fatal(err)
	}

	logger := logging.Must(cfg.Log)
	defer logger.Sync()

	program, err := loadProgram(flag.Arg(0))
	if err != nil {
		fatal(err)
	}

	// 优化
	o := optimizer.New(program, &optimizer.Config{
		Level:          cfg.Optimizer.Level,
		MaxInlineSpace: cfg.Optimizer.MaxInlineSpace,
		Logger:         logger,
	})
	o.OptimizeProgram()
	out := stats{Optimizer: o.Stats()}
	logger.Info("optimized",
		zap.Int("level", o.Level()),
		zap.Int("methods", out.Optimizer.MethodsOptimized))

	if *outFile != "" {
		data, err := bytecode.Encode(program)
		if err != nil {
			fatal(err)
		}
		if err := os.WriteFile(*outFile, data, 0644); err != nil {
			fatal(err)
		}
	}

	if *dumpIR {
		fmt.Println("=== Intermediate code ===")
		fmt.Print(bytecode.FormatProgram(program))
	}

	// 本地代码
	if cfg.JIT.Enabled && !*noJIT {
		s := compileProgram(program, cfg, logger)
		out.JIT = &s
	}

	// 解释执行
	if *runMethod != "" {
		s, err := run(program, cfg, logger, *runMethod, flag.Args()[1:])
		if err != nil {
			fatal(err)
		}
		out.VM = &s
	}

	if *showStats {
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			fatal(err)
		}
		fmt.Println(string(data))
	}
}

func loadConfig() (*config.Config, error) {
	path := *configFile
	if path == "" {
		if _, err := os.Stat(config.FileName); err != nil {
			return config.Default(), nil
		}
		path = config.FileName
	}
	return config.Load(path)
}

func loadProgram(path string) (*bytecode.Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading file: %w", err)
	}
	program, err := bytecode.Decode(data)
	if err != nil {
		return nil, err
	}
	if err := bytecode.Verify(program); err != nil {
		return nil, err
	}
	return program, nil
}

// compileProgram 编译并安装每个方法，报告回退
func compileProgram(program *bytecode.Program, cfg *config.Config, logger *zap.Logger) jit.CompilerStats {
	c := jit.NewCompiler(program, jit.Config{
		GPRegisters:  cfg.JIT.GPRegisters,
		AuxRegisters: cfg.JIT.AuxRegisters,
		XmmRegisters: cfg.JIT.XmmRegisters,
		FloatPool:    cfg.JIT.FloatPool,
		BufferSize:   cfg.JIT.BufferSize,
		Logger:       logger,
	})
	defer func() {
		if err := c.Close(); err != nil {
			logger.Warn("release executable memory", zap.Error(err))
		}
	}()

	f := objerr.NewFormatter()
	for _, m := range program.Methods() {
		native, res := c.Install(m)
		if !res.OK() {
			fmt.Fprint(os.Stderr, f.FormatError(res.Err))
			continue
		}
		if *disasm {
			fmt.Print(res.Listing())
			fmt.Printf("; installed at %#x (%s)\n\n", native.Entry, native.Fingerprint)
		}
	}
	return c.Stats()
}

func run(program *bytecode.Program, cfg *config.Config, logger *zap.Logger, name string, rawArgs []string) (vm.Stats, error) {
	m, err := program.Lookup(name)
	if err != nil {
		return vm.Stats{}, err
	}
	args := make([]uint64, len(rawArgs))
	for i, a := range rawArgs {
		if args[i], err = parseArg(a); err != nil {
			return vm.Stats{}, err
		}
	}

	machine := vm.New(program,
		vm.WithLogger(logger),
		vm.WithStepLimit(cfg.VM.StepLimit))
	v, err := machine.Invoke(m.Class.ID, m.ID, 0, args...)
	if err != nil {
		return machine.Stats(), err
	}

	switch m.Return {
	case bytecode.TypeInt:
		fmt.Println(int64(v))
	case bytecode.TypeFloat:
		fmt.Println(math.Float64frombits(v))
	}
	return machine.Stats(), nil
}

// parseArg 整数原样传递，其余按浮点位模式传递
func parseArg(s string) (uint64, error) {
	if n, err := strconv.ParseInt(s, 0, 64); err == nil {
		return uint64(n), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("argument %q is neither an integer nor a float", s)
	}
	return math.Float64bits(f), nil
}

func fatal(err error) {
	fmt.Fprint(os.Stderr, objerr.NewFormatter().FormatError(err))
	os.Exit(1)
}
