// generator.go - 方法级代码生成器
//
// Generator 是一次编译的全部状态：模拟求值栈、寄存器池、跳转表、
// 常量池。一个 Generator 可以顺序编译多个方法，每次 Compile 前重置；
// 不同 goroutine 必须使用各自的 Generator。
//
// 生成策略是单遍线性扫描：
//   - 字面量与局部变量只压入模拟栈，真正使用时才加载（延迟加载）
//   - 运算从模拟栈弹出操作数，按操作数种类组合选择最短编码
//   - 控制流汇合点（标签、跳转、返回、外部调用）之前把模拟栈写回操作数栈
//   - 模拟栈为空时再弹出，则从操作数栈内存中取值

package jit

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/tangzhangming/objeck/internal/bytecode"
	jerrors "github.com/tangzhangming/objeck/internal/errors"
)

// Config 生成器配置
type Config struct {
	GPRegisters  int     // 主通用寄存器数（最多 4）
	AuxRegisters int     // 辅助通用寄存器数（最多 6）
	XmmRegisters int     // XMM 寄存器数（最多 6）
	FloatPool    int     // 每个方法的浮点常量上限
	BufferSize   int     // 代码缓冲初始容量
	Callback     uintptr // 外部调用入口地址
	Logger       *zap.Logger
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		GPRegisters:  len(defaultGP),
		AuxRegisters: len(defaultAux),
		XmmRegisters: len(defaultXmm),
		FloatPool:    64,
		BufferSize:   512,
	}
}

// jumpEntry 待回填的跳转
type jumpEntry struct {
	site   int // 位移字段偏移
	target int // 目标 LBL 的指令下标
	offset int // 解析后的代码偏移，-1 表示未解析
}

// Generator 代码生成器
type Generator struct {
	program *bytecode.Program
	cfg     Config
	logger  *zap.Logger

	method *bytecode.StackMethod
	asm    *X64Assembler
	frame  *Frame
	gp     *RegisterPool
	xmm    *XmmPool
	stack  []RegInstr
	index  int

	floats     []float64
	floatIndex map[uint64]int

	labels     map[int]int // LBL 指令下标 -> 代码偏移
	jumps      []jumpEntry
	returns    []int         // 跳到正常出口的位置
	errorSites map[int][]int // 错误返回码 -> 跳转位置
	callouts   int
}

// NewGenerator 创建生成器；program 用于查询被调方法的返回类型
func NewGenerator(program *bytecode.Program, cfg Config) *Generator {
	if cfg.FloatPool <= 0 {
		cfg.FloatPool = 64
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{program: program, cfg: cfg, logger: logger}
}

func (g *Generator) reset(sm *bytecode.StackMethod) {
	g.method = sm
	g.asm = NewX64Assembler(g.cfg.BufferSize)
	g.frame = assignFrameSlots(sm.Instrs)
	g.gp = NewRegisterPool(g.cfg.GPRegisters, g.cfg.AuxRegisters)
	g.xmm = NewXmmPool(g.cfg.XmmRegisters)
	g.stack = g.stack[:0]
	g.index = -1
	g.floats = nil
	g.floatIndex = make(map[uint64]int)
	g.labels = make(map[int]int)
	g.jumps = nil
	g.returns = nil
	g.errorSites = make(map[int][]int)
	g.callouts = 0
}

// Compile 编译一个方法
func (g *Generator) Compile(m *bytecode.Method) (res Result) {
	res.Method = m
	sm, err := bytecode.Link(m)
	if err != nil {
		code := jerrors.L0001
		if errors.Is(err, bytecode.ErrDuplicateLabel) {
			code = jerrors.L0002
		}
		res.Status = StatusFatal
		res.Err = jerrors.Wrap(code, m.FullName(), -1, err)
		return res
	}
	g.reset(sm)

	defer func() {
		r := recover()
		if r == nil {
			return
		}
		b, ok := r.(bailout)
		if !ok {
			b = bailout{status: StatusFatal, code: jerrors.J0003, msg: fmt.Sprint(r)}
		}
		d := jerrors.New(b.code, sm.Name(), g.index, "%s", b.msg)
		if g.index >= 0 && g.index < sm.Len() {
			d.AtLine(sm.Instrs[g.index].Line)
		}
		g.logger.Debug("jit bailout",
			zap.String("method", sm.Name()),
			zap.Stringer("status", b.status),
			zap.Error(d))
		res = Result{Status: b.status, Method: m, Err: d}
	}()

	g.prolog()
	start := g.processParameters()
	for g.index = start; g.index < sm.Len(); g.index++ {
		g.processInstr(sm.Instrs[g.index])
	}
	g.index = -1
	g.flushStack()
	g.epilog()
	g.fixupJumps()

	if n, x := g.gp.Outstanding(), g.xmm.Outstanding(); n != 0 || x != 0 {
		fail(StatusFatal, jerrors.J0003, "%d general purpose and %d xmm registers leaked", n, x)
	}

	codeSize := g.asm.Len()
	g.asm.Align(8)
	poolStart := g.asm.Len()
	for _, f := range g.floats {
		g.asm.Data64(math.Float64bits(f))
	}
	g.asm.ResolvePool(poolStart)

	return Result{
		Status:     StatusSuccess,
		Method:     m,
		Code:       append([]byte(nil), g.asm.Code()...),
		CodeSize:   codeSize,
		PoolOffset: poolStart,
		FloatConst: len(g.floats),
		FrameSize:  g.frame.Space,
		Jumps:      len(g.jumps),
		Callouts:   g.callouts,
		PeakGP:     g.gp.Peak(),
		PeakXmm:    g.xmm.Peak(),
	}
}

// Registers 最近一次编译结束时的寄存器池（测试用）
func (g *Generator) Registers() (*RegisterPool, *XmmPool) {
	return g.gp, g.xmm
}

// ============================================================================
// 指令分派
// ============================================================================

func (g *Generator) processInstr(in bytecode.Instr) {
	op := in.Op
	switch {
	case !op.Valid():
		fail(StatusFallback, jerrors.J0001, "invalid opcode %d", int(op))

	case op == bytecode.OpNop:

	case op == bytecode.OpLoadIntLit || op == bytecode.OpLoadCharLit:
		g.push(immInt(in.Operand))
	case op == bytecode.OpLoadFloatLit:
		g.push(immFloat(g.floatConst(in.FloatOperand)))
	case op == bytecode.OpLoadInstMem:
		g.push(memInt(INSTANCE_MEM))
	case op == bytecode.OpLoadClsMem:
		g.push(memInt(CLASS_MEM))

	case op == bytecode.OpLoadIntVar || op == bytecode.OpLoadFloatVar || op == bytecode.OpLoadFuncVar:
		g.loadVar(in)
	case op.IsVariable():
		g.storeVar(in)

	case op >= bytecode.OpLoadByteAryElm && op <= bytecode.OpLoadFloatAryElm:
		g.loadArrayElement(in)
	case op >= bytecode.OpStorByteAryElm && op <= bytecode.OpStorFloatAryElm:
		g.storeArrayElement(in)
	case op == bytecode.OpLoadArySize:
		g.arraySize()

	case op == bytecode.OpBitNotInt:
		g.bitNot()
	case op.IsIntCompare():
		g.intCompare(in)
	case op.IsIntCalc():
		g.intCalc(in)

	case op.IsFloatCalc():
		g.floatCalc(in)
	case op.IsFloatCompare():
		g.floatCompare(in)
	case op == bytecode.OpSqrtFloat || op == bytecode.OpCeilFloat || op == bytecode.OpFlorFloat:
		g.floatUnary(in)
	case op == bytecode.OpF2I:
		g.floatToInt()
	case op == bytecode.OpI2F:
		g.intToFloat()

	case op == bytecode.OpPopInt || op == bytecode.OpPopFloat:
		g.discard()
	case op == bytecode.OpSwapInt:
		a := g.popAny()
		b := g.popAny()
		g.push(a)
		g.push(b)

	case op == bytecode.OpJmp:
		g.jump(in)
	case op == bytecode.OpLbl:
		g.label()
	case op == bytecode.OpRtrn:
		g.flushStack()
		g.returns = append(g.returns, g.asm.Jmp())

	case op == bytecode.OpAsyncMthdCall,
		op == bytecode.OpLibNewObjInst, op == bytecode.OpLibMthdCall, op == bytecode.OpLibObjInstCast,
		op == bytecode.OpDllLoad, op == bytecode.OpDllUnload, op == bytecode.OpDllFuncCall:
		fail(StatusFallback, jerrors.J0001, "%s requires the interpreter", op)

	default:
		g.callout(in)
	}
}

// ============================================================================
// 模拟栈
// ============================================================================

func (g *Generator) push(ri RegInstr) {
	g.stack = append(g.stack, ri)
}

// pop 弹出一项；模拟栈为空时从操作数栈内存中取
func (g *Generator) pop(float bool) RegInstr {
	if n := len(g.stack); n > 0 {
		ri := g.stack[n-1]
		g.stack = g.stack[:n-1]
		if ri.IsFloat() != float {
			fail(StatusFatal, jerrors.J0003, "operand %s where %s expected", ri, kindName(float))
		}
		return ri
	}
	return g.popOperandStack(float)
}

// popAny 弹出一项，不检查种类
func (g *Generator) popAny() RegInstr {
	if n := len(g.stack); n > 0 {
		ri := g.stack[n-1]
		g.stack = g.stack[:n-1]
		return ri
	}
	return g.popOperandStack(false)
}

func kindName(float bool) string {
	if float {
		return "float"
	}
	return "int"
}

// release 归还操作数持有的寄存器
func (g *Generator) release(ri RegInstr) {
	switch ri.Kind {
	case RegInt:
		g.gp.Release(ri.Reg)
	case RegFloat:
		g.xmm.Release(ri.Xmm)
	}
}

// discard 丢弃栈顶
func (g *Generator) discard() {
	if len(g.stack) > 0 {
		g.release(g.popAny())
		return
	}
	r := g.gp.Get()
	g.asm.MovRegMem(r, At(RBP, STACK_POS))
	g.asm.DecMem(At(r, 0))
	g.gp.Release(r)
}

// popOperandStack 生成从操作数栈弹出一个值的代码
func (g *Generator) popOperandStack(float bool) RegInstr {
	pos := g.gp.Get()
	g.asm.MovRegMem(pos, At(RBP, STACK_POS))
	g.asm.DecMem(At(pos, 0))
	g.asm.MovRegMem(pos, At(pos, 0))
	base := g.gp.Get()
	g.asm.MovRegMem(base, At(RBP, OP_STACK))
	slot := Mem{Base: base, Index: pos, Scale: 8}

	if float {
		x := g.xmm.Get()
		g.asm.MovsdRegMem(x, slot)
		g.gp.Release(pos)
		g.gp.Release(base)
		return regFloat(x)
	}
	g.asm.MovRegMem(pos, slot)
	g.gp.Release(base)
	return regInt(pos)
}

// flushStack 把整个模拟栈写回操作数栈（栈底先写）
func (g *Generator) flushStack() {
	n := len(g.stack)
	if n == 0 {
		return
	}
	pos := g.gp.Get()
	g.asm.MovRegMem(pos, At(RBP, STACK_POS))
	g.asm.MovRegMem(pos, At(pos, 0))
	base := g.gp.Get()
	g.asm.MovRegMem(base, At(RBP, OP_STACK))

	for i, ri := range g.stack {
		slot := Mem{Base: base, Index: pos, Scale: 8, Disp: int32(i * 8)}
		if ri.IsFloat() {
			g.storeFloat(slot, ri)
		} else {
			g.storeInt(slot, ri)
		}
		g.release(ri)
	}
	g.stack = g.stack[:0]

	g.asm.MovRegMem(pos, At(RBP, STACK_POS))
	g.asm.AluMemImm(AluAdd, At(pos, 0), int32(n))
	g.gp.Release(pos)
	g.gp.Release(base)
}

// guardAlias 写局部槽位前，把模拟栈中仍引用旧值的延迟加载落实到寄存器
func (g *Generator) guardAlias(offsets ...int32) {
	for i, ri := range g.stack {
		if !ri.IsMem() {
			continue
		}
		for _, off := range offsets {
			if ri.Value != int64(off) {
				continue
			}
			if ri.Kind == MemInt {
				g.stack[i] = regInt(g.toReg(ri))
			} else {
				g.stack[i] = regFloat(g.toXmm(ri))
			}
		}
	}
}

// ============================================================================
// 操作数物化
// ============================================================================

// toReg 把整数操作数放进通用寄存器；寄存器操作数原样返回
func (g *Generator) toReg(ri RegInstr) X64Reg {
	return g.toRegExcept(ri, RegNone)
}

// toRegExcept 同 toReg，但结果不会是 avoid
func (g *Generator) toRegExcept(ri RegInstr, avoid X64Reg) X64Reg {
	switch ri.Kind {
	case RegInt:
		if ri.Reg != avoid {
			return ri.Reg
		}
		r := g.gp.GetExcept(avoid)
		g.asm.MovRegReg(r, ri.Reg)
		g.gp.Release(ri.Reg)
		return r
	case ImmInt:
		r := g.gp.GetExcept(avoid)
		g.asm.MovRegImm(r, ri.Value)
		return r
	case MemInt:
		r := g.gp.GetExcept(avoid)
		g.asm.MovRegMem(r, ri.mem())
		return r
	}
	fail(StatusFatal, jerrors.J0003, "operand %s where int expected", ri)
	return RegNone
}

// toXmm 把浮点操作数放进 XMM 寄存器
func (g *Generator) toXmm(ri RegInstr) XmmReg {
	switch ri.Kind {
	case RegFloat:
		return ri.Xmm
	case ImmFloat, MemFloat:
		x := g.xmm.Get()
		g.asm.MovsdRegMem(x, ri.mem())
		return x
	}
	fail(StatusFatal, jerrors.J0003, "operand %s where float expected", ri)
	return XMM0
}

// storeInt 把整数操作数写入内存（不归还操作数寄存器）
func (g *Generator) storeInt(m Mem, ri RegInstr) {
	switch {
	case ri.Kind == ImmInt && fits32(ri.Value):
		g.asm.MovMemImm32(m, int32(ri.Value))
	case ri.Kind == RegInt:
		g.asm.MovMemReg(m, ri.Reg)
	default:
		t := g.toReg(ri)
		g.asm.MovMemReg(m, t)
		g.gp.Release(t)
	}
}

// storeFloat 把浮点操作数写入内存（不归还操作数寄存器）
func (g *Generator) storeFloat(m Mem, ri RegInstr) {
	if ri.Kind == RegFloat {
		g.asm.MovsdMemReg(m, ri.Xmm)
		return
	}
	x := g.toXmm(ri)
	g.asm.MovsdMemReg(m, x)
	g.xmm.Release(x)
}

func fits32(v int64) bool {
	return v == int64(int32(v))
}

// floatConst 登记浮点常量，返回常量池下标
func (g *Generator) floatConst(v float64) int {
	bits := math.Float64bits(v)
	if i, ok := g.floatIndex[bits]; ok {
		return i
	}
	if len(g.floats) >= g.cfg.FloatPool {
		fail(StatusFallback, jerrors.J0005, "more than %d float constants", g.cfg.FloatPool)
	}
	g.floats = append(g.floats, v)
	g.floatIndex[bits] = len(g.floats) - 1
	return len(g.floats) - 1
}

// errorJump 条件成立时跳到错误出口
func (g *Generator) errorJump(cc Cond, code int) {
	g.errorSites[code] = append(g.errorSites[code], g.asm.Jcc(cc))
}

// nilCheck 指针为 0 时跳到空引用出口
func (g *Generator) nilCheck(r X64Reg) {
	g.asm.TestRegReg(r, r)
	g.errorJump(CondE, exitNil)
}
