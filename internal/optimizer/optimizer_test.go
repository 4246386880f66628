package optimizer

import (
	"math"
	"slices"
	"testing"

	"github.com/tangzhangming/objeck/internal/bytecode"
	"github.com/tangzhangming/objeck/internal/vm"
)

// ============================================================================
// 辅助函数
// ============================================================================

var (
	lit  = func(v int64) bytecode.Instr { return bytecode.NewInt(1, bytecode.OpLoadIntLit, v) }
	flit = func(v float64) bytecode.Instr { return bytecode.NewFloat(1, v) }
	op   = func(o bytecode.Opcode) bytecode.Instr { return bytecode.New(1, o) }
	ld   = func(id int64) bytecode.Instr { return bytecode.NewVar(1, bytecode.OpLoadIntVar, id, bytecode.CtxLocal) }
	st   = func(id int64) bytecode.Instr { return bytecode.NewVar(1, bytecode.OpStorIntVar, id, bytecode.CtxLocal) }
	ldf  = func(id int64) bytecode.Instr { return bytecode.NewVar(1, bytecode.OpLoadFloatVar, id, bytecode.CtxLocal) }
	stf  = func(id int64) bytecode.Instr { return bytecode.NewVar(1, bytecode.OpStorFloatVar, id, bytecode.CtxLocal) }
	rtrn = bytecode.New(1, bytecode.OpRtrn)
)

func newMethod(id int, name string, params, space int, ret bytecode.MemoryType, instrs ...bytecode.Instr) *bytecode.Method {
	m := &bytecode.Method{
		ID:     id,
		Name:   name,
		Space:  space,
		Return: ret,
		Blocks: []bytecode.Block{bytecode.NewBlock(instrs...)},
	}
	for i := 0; i < params; i++ {
		m.Params = append(m.Params, bytecode.ParamInt)
	}
	return m
}

func newProgram(methods ...*bytecode.Method) *bytecode.Program {
	return bytecode.NewProgram(&bytecode.Class{ID: 0, Name: "Test", Methods: methods, InstanceSpace: 2})
}

func testContext(p *bytecode.Program, m *bytecode.Method) *Context {
	cfg := DefaultConfig()
	cfg.Level = MaxLevel
	return New(p, cfg).NewContext(m)
}

func runPass(pass func(*Context, bytecode.Block) bytecode.Block, instrs ...bytecode.Instr) ([]bytecode.Instr, *Context) {
	m := newMethod(0, "M", 0, 4, bytecode.TypeInt, instrs...)
	ctx := testContext(newProgram(m), m)
	out := pass(ctx, m.Blocks[0])
	return out.Instrs, ctx
}

func ops(instrs []bytecode.Instr) []bytecode.Opcode {
	out := make([]bytecode.Opcode, len(instrs))
	for i, in := range instrs {
		out[i] = in.Op
	}
	return out
}

// invoke 在解释器中执行程序中的方法
func invoke(t *testing.T, p *bytecode.Program, cls, mthd int, args ...uint64) uint64 {
	t.Helper()
	v, err := vm.New(p).Invoke(cls, mthd, 0, args...)
	if err != nil {
		t.Fatalf("invoke %d:%d: %v", cls, mthd, err)
	}
	return v
}

// ============================================================================
// 跳转清理与无用指令
// ============================================================================

func TestCleanJumps(t *testing.T) {
	out, ctx := runPass(CleanJumps,
		bytecode.NewJump(1, 1, bytecode.JumpAlways),
		bytecode.NewLabel(1, 1),
		lit(1),
		bytecode.NewJump(1, 2, bytecode.JumpIfTrue),
		bytecode.NewLabel(1, 2),
		bytecode.NewJump(1, 4, bytecode.JumpAlways),
		bytecode.NewLabel(1, 3),
		bytecode.NewLabel(1, 4),
		rtrn,
	)
	want := []bytecode.Opcode{
		bytecode.OpLbl, bytecode.OpLoadIntLit, bytecode.OpJmp, bytecode.OpLbl,
		bytecode.OpJmp, bytecode.OpLbl, bytecode.OpLbl, bytecode.OpRtrn,
	}
	if !slices.Equal(ops(out), want) {
		t.Fatalf("got %v, want %v", ops(out), want)
	}
	if ctx.Stats.JumpsRemoved != 1 {
		t.Errorf("JumpsRemoved = %d", ctx.Stats.JumpsRemoved)
	}

	// 幂等
	again := CleanJumps(ctx, bytecode.NewBlock(out...))
	if !slices.Equal(again.Instrs, out) {
		t.Error("second run changed the block")
	}
}

func TestRemoveUseless(t *testing.T) {
	out, ctx := runPass(RemoveUselessInstructions,
		ld(1), st(1),
		ld(1), st(2),
		ld(2), rtrn,
	)
	want := []bytecode.Opcode{bytecode.OpLoadIntVar, bytecode.OpStorIntVar, bytecode.OpLoadIntVar, bytecode.OpRtrn}
	if !slices.Equal(ops(out), want) {
		t.Fatalf("got %v", ops(out))
	}
	if ctx.Stats.UselessRemoved != 1 {
		t.Errorf("UselessRemoved = %d", ctx.Stats.UselessRemoved)
	}
}

// ============================================================================
// 常量折叠
// ============================================================================

func TestFoldInt(t *testing.T) {
	tests := []struct {
		op          bytecode.Opcode
		left, right int64
		want        int64
		ok          bool
	}{
		{bytecode.OpAddInt, 3, 4, 7, true},
		{bytecode.OpSubInt, 10, 3, 7, true},
		{bytecode.OpMulInt, -6, 7, -42, true},
		{bytecode.OpDivInt, 7, 2, 3, true},
		{bytecode.OpDivInt, -7, 2, -3, true},
		{bytecode.OpModInt, -7, 2, -1, true},
		{bytecode.OpBitAndInt, 12, 10, 8, true},
		{bytecode.OpBitOrInt, 12, 10, 14, true},
		{bytecode.OpBitXorInt, 12, 10, 6, true},
		{bytecode.OpAddInt, math.MaxInt64, 1, math.MinInt64, true},
		{bytecode.OpDivInt, math.MinInt64, -1, math.MinInt64, true},
		{bytecode.OpModInt, math.MinInt64, -1, 0, true},
		{bytecode.OpDivInt, 5, 0, 0, false},
		{bytecode.OpModInt, 5, 0, 0, false},
		{bytecode.OpShlInt, 1, 2, 0, false},
	}
	for _, tt := range tests {
		got, ok := FoldInt(tt.op, tt.left, tt.right)
		if ok != tt.ok || (ok && got != tt.want) {
			t.Errorf("FoldInt(%s, %d, %d) = %d, %v; want %d, %v", tt.op, tt.left, tt.right, got, ok, tt.want, tt.ok)
		}
	}
}

func TestFoldIntConstants(t *testing.T) {
	// (2 + 3) * 4，栈顶为左操作数
	out, ctx := runPass(FoldIntConstants,
		lit(4), lit(3), lit(2), op(bytecode.OpAddInt), op(bytecode.OpMulInt), rtrn)
	if len(out) != 2 || out[0].Op != bytecode.OpLoadIntLit || out[0].Operand != 20 {
		t.Fatalf("got %v", out)
	}
	if ctx.Stats.IntFolds != 2 {
		t.Errorf("IntFolds = %d", ctx.Stats.IntFolds)
	}

	// 10 - 3：左操作数在栈顶
	out, _ = runPass(FoldIntConstants, lit(3), lit(10), op(bytecode.OpSubInt), rtrn)
	if out[0].Operand != 7 {
		t.Errorf("10 - 3 folded to %d", out[0].Operand)
	}
}

func TestFoldDivideByZeroDeferred(t *testing.T) {
	out, ctx := runPass(FoldIntConstants, lit(0), lit(5), op(bytecode.OpDivInt), rtrn)
	want := []bytecode.Opcode{bytecode.OpLoadIntLit, bytecode.OpLoadIntLit, bytecode.OpDivInt, bytecode.OpRtrn}
	if !slices.Equal(ops(out), want) {
		t.Fatalf("got %v", ops(out))
	}
	if out[0].Operand != 0 || out[1].Operand != 5 {
		t.Errorf("operand order changed: %v", out)
	}
	if ctx.Stats.FoldsDeferred != 1 || ctx.Stats.IntFolds != 0 {
		t.Errorf("stats = %+v", *ctx.Stats)
	}
}

func TestFoldFloatConstants(t *testing.T) {
	out, ctx := runPass(FoldFloatConstants,
		flit(2), flit(7), op(bytecode.OpDivFloat), rtrn)
	if out[0].Op != bytecode.OpLoadFloatLit || out[0].FloatOperand != 3.5 {
		t.Fatalf("got %v", out)
	}
	if ctx.Stats.FloatFolds != 1 {
		t.Errorf("FloatFolds = %d", ctx.Stats.FloatFolds)
	}

	out, _ = runPass(FoldFloatConstants, flit(0), flit(1), op(bytecode.OpDivFloat), rtrn)
	if !math.IsInf(out[0].FloatOperand, 1) {
		t.Errorf("1.0 / 0.0 folded to %v", out[0].FloatOperand)
	}
}

// ============================================================================
// 强度削减
// ============================================================================

func TestStrengthReductionShape(t *testing.T) {
	out, ctx := runPass(StrengthReduction, lit(8), ld(0), op(bytecode.OpMulInt), rtrn)
	want := []bytecode.Opcode{bytecode.OpLoadIntLit, bytecode.OpLoadIntVar, bytecode.OpShlInt, bytecode.OpRtrn}
	if !slices.Equal(ops(out), want) || out[0].Operand != 3 {
		t.Fatalf("got %v", out)
	}
	if ctx.Stats.Reductions != 1 {
		t.Errorf("Reductions = %d", ctx.Stats.Reductions)
	}

	// 字面量作为左操作数同样可交换
	out, _ = runPass(StrengthReduction, ld(0), lit(4), op(bytecode.OpMulInt), rtrn)
	if out[2].Op != bytecode.OpShlInt || out[0].Operand != 2 {
		t.Errorf("literal-left multiply: %v", out)
	}

	// 字面量作被除数不改写
	out, _ = runPass(StrengthReduction, ld(0), lit(8), op(bytecode.OpDivInt), rtrn)
	if out[2].Op != bytecode.OpDivInt {
		t.Errorf("8 / x must not be reduced: %v", out)
	}

	// 非 2 的幂与超出 256 的值
	for _, v := range []int64{3, 512, 1, 0, -2} {
		out, _ = runPass(StrengthReduction, lit(v), ld(0), op(bytecode.OpMulInt), rtrn)
		if out[2].Op != bytecode.OpMulInt {
			t.Errorf("x * %d must not be reduced", v)
		}
	}
}

// TestStrengthReductionEquivalence 改写前后在边界值上结果一致
func TestStrengthReductionEquivalence(t *testing.T) {
	inputs := []int64{0, 1, -1, 7, -7, 9, -9, 255, -255, math.MaxInt64, math.MinInt64, math.MinInt64 + 1}
	for _, p := range []int64{2, 4, 8, 16, 32, 64, 128, 256} {
		for _, calc := range []bytecode.Opcode{bytecode.OpMulInt, bytecode.OpDivInt} {
			build := func() *bytecode.Program {
				return newProgram(newMethod(0, "F:i,", 1, 1, bytecode.TypeInt,
					st(0), lit(p), ld(0), op(calc), rtrn))
			}
			plain := build()
			reduced := build()
			m := reduced.Classes[0].Methods[0]
			ctx := testContext(reduced, m)
			m.SetBlocks([]bytecode.Block{StrengthReduction(ctx, m.Blocks[0])})
			if ctx.Stats.Reductions != 1 {
				t.Fatalf("%s by %d not reduced", calc, p)
			}

			for _, x := range inputs {
				a := int64(invoke(t, plain, 0, 0, uint64(x)))
				b := int64(invoke(t, reduced, 0, 0, uint64(x)))
				if a != b {
					t.Errorf("%d %s %d: plain %d, reduced %d", x, calc, p, a, b)
				}
			}
		}
	}
}

// ============================================================================
// 复制替换
// ============================================================================

func TestInstructionReplacement(t *testing.T) {
	out, ctx := runPass(InstructionReplacement,
		st(0), st(1), // 参数出栈
		lit(5), st(2), ld(2),
		stf(3), ldf(3),
		rtrn)
	want := []bytecode.Opcode{
		bytecode.OpStorIntVar, bytecode.OpStorIntVar,
		bytecode.OpLoadIntLit, bytecode.OpCopyIntVar,
		bytecode.OpCopyFloatVar,
		bytecode.OpRtrn,
	}
	if !slices.Equal(ops(out), want) {
		t.Fatalf("got %v", ops(out))
	}
	if out[3].Operand != 2 || out[4].Operand != 3 {
		t.Errorf("copy targets: %v", out)
	}
	if ctx.Stats.Copies != 2 {
		t.Errorf("Copies = %d", ctx.Stats.Copies)
	}
}

func TestInstructionReplacementGuards(t *testing.T) {
	inst := bytecode.NewVar(1, bytecode.OpStorIntVar, 0, bytecode.CtxInstance)
	instLd := bytecode.NewVar(1, bytecode.OpLoadIntVar, 0, bytecode.CtxInstance)
	tests := []struct {
		name   string
		instrs []bytecode.Instr
	}{
		{"different slot", []bytecode.Instr{lit(1), st(1), ld(2), rtrn}},
		{"different type", []bytecode.Instr{lit(1), st(1), ldf(1), rtrn}},
		{"instance field", []bytecode.Instr{lit(1), inst, instLd, rtrn}},
	}
	for _, tt := range tests {
		out, ctx := runPass(InstructionReplacement, tt.instrs...)
		if ctx.Stats.Copies != 0 || !slices.Equal(out, tt.instrs) {
			t.Errorf("%s: block changed to %v", tt.name, out)
		}
	}

	// 两条存储相邻：第一条按原位置写回
	out, _ := runPass(InstructionReplacement, lit(1), lit(2), st(1), st(2), ld(2), rtrn)
	want := []bytecode.Opcode{bytecode.OpLoadIntLit, bytecode.OpLoadIntLit, bytecode.OpStorIntVar, bytecode.OpCopyIntVar, bytecode.OpRtrn}
	if !slices.Equal(ops(out), want) || out[2].Operand != 1 {
		t.Errorf("adjacent stores: %v", out)
	}
}

// TestReplacementEquivalence 复制替换前后结果一致
func TestReplacementEquivalence(t *testing.T) {
	build := func() *bytecode.Program {
		return newProgram(newMethod(0, "F:i,", 1, 3, bytecode.TypeInt,
			st(0),
			ld(0), lit(3), op(bytecode.OpAddInt), st(1), ld(1), // copy
			ld(1), op(bytecode.OpMulInt), st(2), ld(2),
			ld(0), op(bytecode.OpSubInt),
			rtrn))
	}
	plain, opt := build(), build()
	OptimizeProgram(opt, LevelReplace)
	for _, x := range []int64{0, 5, -4, 1000} {
		if a, b := invoke(t, plain, 0, 0, uint64(x)), invoke(t, opt, 0, 0, uint64(x)); a != b {
			t.Errorf("x=%d: plain %d, optimized %d", x, int64(a), int64(b))
		}
	}
}
