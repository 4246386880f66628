package optimizer

import (
	"bytes"
	"slices"
	"testing"

	"github.com/tangzhangming/objeck/internal/bytecode"
	"github.com/tangzhangming/objeck/internal/vm"
)

func instVar(o bytecode.Opcode, id int64) bytecode.Instr {
	return bytecode.NewVar(1, o, id, bytecode.CtxInstance)
}

// accessorClass 一个带存取器的类：
//
//	0 GetX       getter-instance
//	1 Answer     getter-literal
//	2 SetX:i,    setter
//	3 Put:c,     char-print
//	4 Run        调用以上全部
func accessorClass() *bytecode.Program {
	getX := newMethod(0, "GetX", 0, 0, bytecode.TypeInt,
		bytecode.New(1, bytecode.OpLoadInstMem), instVar(bytecode.OpLoadIntVar, 1), rtrn)
	answer := newMethod(1, "Answer", 0, 0, bytecode.TypeInt, lit(42), rtrn)
	setX := newMethod(2, "SetX:i,", 1, 1, bytecode.TypeNil,
		st(0), ld(0), bytecode.New(1, bytecode.OpLoadInstMem), instVar(bytecode.OpStorIntVar, 1), rtrn)
	put := newMethod(3, "Put:c,", 1, 1, bytecode.TypeNil,
		st(0), ld(0), lit(-3984), bytecode.NewInt(1, bytecode.OpTrap, 2), rtrn)

	// self = new; self.SetX(7); Put('A'); return self.GetX() + self.Answer() + v9
	run := newMethod(4, "Run", 0, 2, bytecode.TypeInt,
		bytecode.NewInt(1, bytecode.OpNewObjInst, 0), st(0),
		lit(99), st(1),
		lit(7), ld(0), bytecode.NewCall(2, 0, 2),
		lit('A'), ld(0), bytecode.NewCall(3, 0, 3),
		ld(0), bytecode.NewCall(4, 0, 1),
		ld(0), bytecode.NewCall(4, 0, 0),
		op(bytecode.OpAddInt),
		ld(1), op(bytecode.OpAddInt),
		rtrn)
	return newProgram(getX, answer, setX, put, run)
}

func TestMatchPattern(t *testing.T) {
	p := accessorClass()
	run := p.Classes[0].Methods[4]
	want := []string{"getter-instance", "getter-literal", "setter", "char-print"}
	for i, name := range want {
		pat := MatchPattern(run, p.Classes[0].Methods[i])
		if pat == nil || pat.Name != name {
			t.Errorf("method %d: got %v, want %s", i, pat, name)
		}
	}
	if MatchPattern(run, run) != nil {
		t.Error("caller must not match itself")
	}

	virt := p.Classes[0].Methods[0].Clone()
	virt.Virtual = true
	if MatchPattern(run, virt) != nil {
		t.Error("virtual methods are not inlined")
	}

	// 赋值类型不一致
	mixed := newMethod(9, "Mixed:i,", 1, 1, bytecode.TypeNil,
		st(0), ld(0), bytecode.New(1, bytecode.OpLoadInstMem), instVar(bytecode.OpStorFloatVar, 1), rtrn)
	if MatchPattern(run, mixed) != nil {
		t.Error("setter with mismatched kinds must not match")
	}
}

func TestPatternsTable(t *testing.T) {
	for _, p := range Patterns() {
		if p.Name == "" || len(p.Shape) == 0 || p.Emit == nil {
			t.Errorf("incomplete pattern %+v", p)
		}
	}
}

// TestInlineSettersGettersSafety 内联前后输出、返回值与栈深度一致
func TestInlineSettersGettersSafety(t *testing.T) {
	plain := accessorClass()
	inlined := accessorClass()

	run := inlined.Classes[0].Methods[4]
	ctx := testContext(inlined, run)
	run.SetBlocks([]bytecode.Block{InlineSettersGetters(ctx, run.Blocks[0])})

	if ctx.Stats.PatternsInlined != 4 {
		t.Fatalf("PatternsInlined = %d, want 4", ctx.Stats.PatternsInlined)
	}
	for _, in := range run.Blocks[0].Instrs {
		if in.Op == bytecode.OpMthdCall {
			t.Errorf("call left after inlining: %s", in)
		}
	}

	exec := func(p *bytecode.Program) (uint64, string, vm.Stats) {
		var out bytes.Buffer
		machine := vm.New(p, vm.WithOutput(&out))
		v, err := machine.Invoke(0, 4, 0)
		if err != nil {
			t.Fatalf("Invoke: %v", err)
		}
		if machine.StackDepth() != 0 {
			t.Errorf("stack depth %d", machine.StackDepth())
		}
		return v, out.String(), machine.Stats()
	}

	v1, out1, s1 := exec(plain)
	v2, out2, s2 := exec(inlined)
	if v1 != v2 || v1 != 7+42+99 {
		t.Errorf("results: plain %d, inlined %d", v1, v2)
	}
	if out1 != out2 || out1 != "A" {
		t.Errorf("output: plain %q, inlined %q", out1, out2)
	}
	if s2.MethodCalls != 1 || s1.MethodCalls != 5 {
		t.Errorf("calls: plain %d, inlined %d", s1.MethodCalls, s2.MethodCalls)
	}
}

// ============================================================================
// 叶子方法内联
// ============================================================================

// leafProgram Abs 带内部跳转，被 Run 调用两次
func leafProgram() *bytecode.Program {
	abs := newMethod(0, "Abs:i,", 1, 1, bytecode.TypeInt,
		st(0),
		lit(0), ld(0), op(bytecode.OpLesInt), // x < 0
		bytecode.NewJump(1, 1, bytecode.JumpIfFalse),
		ld(0), lit(0), op(bytecode.OpSubInt), st(0),
		bytecode.NewLabel(1, 1),
		ld(0),
		rtrn)
	run := newMethod(1, "Run:i,", 1, 1, bytecode.TypeInt,
		st(0),
		ld(0), bytecode.New(1, bytecode.OpLoadInstMem), bytecode.NewCall(1, 0, 0),
		lit(-5), bytecode.New(1, bytecode.OpLoadInstMem), bytecode.NewCall(1, 0, 0),
		op(bytecode.OpAddInt),
		bytecode.NewLabel(1, 1),
		rtrn)
	return newProgram(abs, run)
}

func TestInlineMethods(t *testing.T) {
	plain := leafProgram()
	inlined := leafProgram()
	run := inlined.Classes[0].Methods[1]

	ctx := testContext(inlined, run)
	if n := InlineMethods(ctx); n != 2 {
		t.Fatalf("InlineMethods = %d, want 2", n)
	}
	if run.Space != 1+2*2 {
		t.Errorf("Space = %d, want 5", run.Space)
	}
	if ctx.Labels.Issued() != 2 {
		t.Errorf("labels issued = %d", ctx.Labels.Issued())
	}

	if _, err := bytecode.Link(run); err != nil {
		t.Fatalf("inlined method does not link: %v", err)
	}
	if err := bytecode.Verify(inlined); err != nil {
		t.Fatalf("inlined program does not verify: %v", err)
	}

	for _, x := range []int64{3, -3, 0} {
		a := int64(invoke(t, plain, 0, 1, uint64(x)))
		b := int64(invoke(t, inlined, 0, 1, uint64(x)))
		if a != b {
			t.Errorf("x=%d: plain %d, inlined %d", x, a, b)
		}
	}
}

// tickProgram Tick 在写入局部 0 之前读取它，Run 在循环里调用 3 次
func tickProgram() *bytecode.Program {
	tick := newMethod(0, "Tick", 0, 1, bytecode.TypeInt,
		lit(1), ld(0), op(bytecode.OpAddInt), st(0),
		ld(0),
		rtrn)
	run := newMethod(1, "Run", 0, 2, bytecode.TypeInt,
		lit(0), st(0),
		lit(0), st(1),
		bytecode.NewLabel(1, 1),
		lit(3), ld(1), op(bytecode.OpLesInt), // i < 3
		bytecode.NewJump(1, 2, bytecode.JumpIfFalse),
		bytecode.New(1, bytecode.OpLoadInstMem), bytecode.NewCall(1, 0, 0),
		ld(0), op(bytecode.OpAddInt), st(0),
		lit(1), ld(1), op(bytecode.OpAddInt), st(1),
		bytecode.NewJump(1, 1, bytecode.JumpAlways),
		bytecode.NewLabel(1, 2),
		ld(0),
		rtrn)
	return newProgram(tick, run)
}

func TestInlineResetsLocals(t *testing.T) {
	plain := tickProgram()
	inlined := tickProgram()
	run := inlined.Classes[0].Methods[1]

	if n := InlineMethods(testContext(inlined, run)); n != 1 {
		t.Fatalf("InlineMethods = %d, want 1", n)
	}
	if got := int64(invoke(t, plain, 0, 1)); got != 3 {
		t.Fatalf("plain = %d, want 3", got)
	}
	if got := int64(invoke(t, inlined, 0, 1)); got != 3 {
		t.Errorf("inlined = %d, want 3", got)
	}

	// 接收者存入槽位 2，随后 Tick 的局部 0（槽位 3）清零
	body := run.Blocks[0].Instrs
	for i, in := range body {
		if in.Op != bytecode.OpStorIntVar || in.Operand != 2 {
			continue
		}
		if i+2 >= len(body) || body[i+1].Op != bytecode.OpLoadIntLit || body[i+1].Operand != 0 ||
			body[i+2].Op != bytecode.OpStorIntVar || body[i+2].Operand != 3 {
			t.Errorf("no reset after receiver store: %v", body[i:])
		}
		return
	}
	t.Error("receiver store not found")
}

func TestStaleReads(t *testing.T) {
	abs := leafProgram().Classes[0].Methods[0]
	if got := staleReads(abs.Blocks[0].Instrs); len(got) != 0 {
		t.Errorf("Abs writes its parameter first, got %v", got)
	}

	tick := tickProgram().Classes[0].Methods[0]
	got := staleReads(tick.Blocks[0].Instrs)
	if len(got) != 1 || got[0].Operand != 0 {
		t.Errorf("Tick: got %v, want local 0", got)
	}

	// 标签之后的写入可能被跳过
	loop := []bytecode.Instr{
		bytecode.NewLabel(1, 1),
		lit(1), st(0),
		bytecode.NewJump(1, 1, bytecode.JumpAlways),
		ld(0), ldf(1),
		rtrn,
	}
	got = staleReads(loop)
	if len(got) != 2 || got[0].Operand != 0 || got[1].Op != bytecode.OpLoadFloatVar {
		t.Errorf("loop: got %v", got)
	}
}

func TestDecideInlining(t *testing.T) {
	p := leafProgram()
	abs, run := p.Classes[0].Methods[0], p.Classes[0].Methods[1]

	if d := DecideInlining(run, abs, DefaultMaxInlineSpace); !d.ShouldInline {
		t.Fatalf("Abs should inline: %s", d.Reason)
	}

	tests := []struct {
		name   string
		callee *bytecode.Method
		caller *bytecode.Method
		space  int
	}{
		{"recursive", run, run, 32},
		{"space", abs, run, 2},
		{"constructor", func() *bytecode.Method { m := abs.Clone(); m.Name = "New:i,"; return m }(), run, 32},
		{"field", newMethod(5, "F", 0, 0, bytecode.TypeInt,
			bytecode.New(1, bytecode.OpLoadInstMem), instVar(bytecode.OpLoadIntVar, 0), rtrn), run, 32},
		{"trap", newMethod(5, "T", 0, 0, bytecode.TypeNil,
			lit(1), bytecode.NewInt(1, bytecode.OpTrap, 1), rtrn), run, 32},
		{"early return", newMethod(5, "E", 0, 0, bytecode.TypeInt, lit(1), rtrn, lit(2), rtrn), run, 32},
		{"too short", newMethod(5, "S", 0, 0, bytecode.TypeNil, rtrn), run, 32},
	}
	for _, tt := range tests {
		if d := DecideInlining(tt.caller, tt.callee, tt.space); d.ShouldInline {
			t.Errorf("%s: should not inline", tt.name)
		}
	}
}

func TestLabelAllocator(t *testing.T) {
	a := NewLabelAllocator()
	a.Below(-10)

	s1 := a.Scope()
	x, y := s1.Map(1), s1.Map(2)
	if s1.Map(1) != x {
		t.Error("Map must be stable within a scope")
	}
	s2 := a.Scope()
	z := s2.Map(1)

	ids := []int64{x, y, z}
	for i, id := range ids {
		if id >= -10 {
			t.Errorf("id %d not below floor", id)
		}
		if i > 0 && id >= ids[i-1] {
			t.Errorf("ids not strictly decreasing: %v", ids)
		}
	}
	if a.Issued() != 3 {
		t.Errorf("Issued = %d", a.Issued())
	}
}

// ============================================================================
// 端到端
// ============================================================================

// scenario v1 := 7; v2 := 14 + v1; v3 := v2 * k; return v3
func scenario(k int64) *bytecode.Program {
	return newProgram(newMethod(0, "Calc", 0, 4, bytecode.TypeInt,
		lit(7), st(1),
		ld(1), lit(14), op(bytecode.OpAddInt), st(2),
		lit(k), ld(2), op(bytecode.OpMulInt), st(3),
		ld(3),
		rtrn))
}

func TestScenarioLevels(t *testing.T) {
	base := ops(scenario(3).Classes[0].Methods[0].Blocks[0].Instrs)

	for level := LevelNone; level <= MaxLevel; level++ {
		p := scenario(3)
		OptimizeProgram(p, level)
		got := p.Classes[0].Methods[0].Blocks[0].Instrs

		switch {
		case level < LevelReplace:
			// 没有相邻的字面量对，*3 也不是 2 的幂
			if !slices.Equal(ops(got), base) {
				t.Errorf("level %d changed the method: %v", level, got)
			}
		default:
			if got[len(got)-2].Op != bytecode.OpCopyIntVar {
				t.Errorf("level %d: store/load of v3 not replaced: %v", level, got)
			}
		}
		if v := int64(invoke(t, p, 0, 0)); v != 63 {
			t.Errorf("level %d: result %d, want 63", level, v)
		}
	}

	p := scenario(8)
	OptimizeProgram(p, LevelStrength)
	got := p.Classes[0].Methods[0].Blocks[0].Instrs
	if !slices.Contains(ops(got), bytecode.OpShlInt) || slices.Contains(ops(got), bytecode.OpMulInt) {
		t.Errorf("*8 not reduced: %v", got)
	}
	if v := int64(invoke(t, p, 0, 0)); v != 168 {
		t.Errorf("result %d, want 168", v)
	}
}

func TestOptimizerConfig(t *testing.T) {
	o := New(scenario(3), &Config{Level: 99})
	if o.Level() != MaxLevel {
		t.Errorf("level not clamped: %d", o.Level())
	}
	o = New(scenario(3), &Config{Level: -1})
	if o.Level() != LevelNone {
		t.Errorf("level not clamped: %d", o.Level())
	}
	o.OptimizeProgram()
	if s := o.Stats(); s.MethodsOptimized != 1 {
		t.Errorf("MethodsOptimized = %d", s.MethodsOptimized)
	}
	if ps := o.PassStats(); ps.PassesRun != 2 {
		t.Errorf("PassesRun = %d, want 2 at level 0", ps.PassesRun)
	}
}
