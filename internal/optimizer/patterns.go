// patterns.go - 存取器内联模式
//
// 小方法（取值、赋值、打印字符）的调用直接替换为方法体中的关键指令。
// 每种形状在 patterns 表中声明：参数个数、逐条指令的谓词、展开函数。

package optimizer

import "github.com/tangzhangming/objeck/internal/bytecode"

// charPrintTrap 打印字符的陷阱号
const charPrintTrap = -3984

// ============================================================================
// 指令谓词
// ============================================================================

// instrPred 单条指令谓词
type instrPred func(in bytecode.Instr) bool

// anyOf 操作码属于 ops 之一
func anyOf(ops ...bytecode.Opcode) instrPred {
	return func(in bytecode.Instr) bool {
		for _, op := range ops {
			if in.Op == op {
				return true
			}
		}
		return false
	}
}

// inCtx 操作码匹配且位于给定上下文
func inCtx(ctx bytecode.Context, ops ...bytecode.Opcode) instrPred {
	match := anyOf(ops...)
	return func(in bytecode.Instr) bool {
		return match(in) && in.Ctx() == ctx
	}
}

// localSlot 访问局部变量 id 的指令
func localSlot(id int64, ops ...bytecode.Opcode) instrPred {
	match := inCtx(bytecode.CtxLocal, ops...)
	return func(in bytecode.Instr) bool {
		return match(in) && in.Operand == id
	}
}

// intLit 值为 v 的整数字面量
func intLit(v int64) instrPred {
	return func(in bytecode.Instr) bool {
		return in.Op == bytecode.OpLoadIntLit && in.Operand == v
	}
}

// ============================================================================
// 模式表
// ============================================================================

// Pattern 可内联的方法形状
type Pattern struct {
	Name   string
	Params int         // 被调方法的参数个数
	Shape  []instrPred // 方法体逐条指令谓词
	// Check 形状之外的一致性约束，可为空
	Check func(body []bytecode.Instr) bool
	// Emit 生成替换调用点的指令；调用时实例位于栈顶
	Emit func(body []bytecode.Instr) []bytecode.Instr
}

// 单类型赋值：参数读写与字段写入类型一致
func sameKind(body []bytecode.Instr) bool {
	if body[0].Op == bytecode.OpStorIntVar {
		return body[1].Op == bytecode.OpLoadIntVar && body[3].Op == bytecode.OpStorIntVar
	}
	return body[1].Op == bytecode.OpLoadFloatVar && body[3].Op == bytecode.OpStorFloatVar
}

var patterns = []Pattern{
	{
		// LOAD_INST_MEM; LOAD_*_VAR f, INST; RTRN
		Name: "getter-instance",
		Shape: []instrPred{
			anyOf(bytecode.OpLoadInstMem),
			inCtx(bytecode.CtxInstance, bytecode.OpLoadIntVar, bytecode.OpLoadFloatVar),
			anyOf(bytecode.OpRtrn),
		},
		Emit: func(body []bytecode.Instr) []bytecode.Instr {
			return []bytecode.Instr{body[1]}
		},
	},
	{
		// LOAD_*_LIT v; RTRN
		Name: "getter-literal",
		Shape: []instrPred{
			anyOf(bytecode.OpLoadIntLit, bytecode.OpLoadFloatLit),
			anyOf(bytecode.OpRtrn),
		},
		Emit: func(body []bytecode.Instr) []bytecode.Instr {
			return []bytecode.Instr{bytecode.New(0, bytecode.OpPopInt), body[0]}
		},
	},
	{
		// STOR_INT_VAR 0; LOAD_INT_VAR 0; LOAD_INT_LIT -3984; TRAP 2; RTRN
		Name:   "char-print",
		Params: 1,
		Shape: []instrPred{
			localSlot(0, bytecode.OpStorIntVar),
			localSlot(0, bytecode.OpLoadIntVar),
			intLit(charPrintTrap),
			func(in bytecode.Instr) bool { return in.Op == bytecode.OpTrap && in.Operand == 2 },
			anyOf(bytecode.OpRtrn),
		},
		Emit: func(body []bytecode.Instr) []bytecode.Instr {
			return []bytecode.Instr{bytecode.New(0, bytecode.OpPopInt), body[2], body[3]}
		},
	},
	{
		// STOR_*_VAR 0; LOAD_*_VAR 0; LOAD_INST_MEM; STOR_*_VAR f, INST; RTRN
		Name:   "setter",
		Params: 1,
		Shape: []instrPred{
			localSlot(0, bytecode.OpStorIntVar, bytecode.OpStorFloatVar),
			localSlot(0, bytecode.OpLoadIntVar, bytecode.OpLoadFloatVar),
			anyOf(bytecode.OpLoadInstMem),
			inCtx(bytecode.CtxInstance, bytecode.OpStorIntVar, bytecode.OpStorFloatVar),
			anyOf(bytecode.OpRtrn),
		},
		Check: sameKind,
		Emit: func(body []bytecode.Instr) []bytecode.Instr {
			return []bytecode.Instr{body[3]}
		},
	},
}

// Patterns 已声明的模式（只读）
func Patterns() []Pattern {
	return patterns
}

// Matches 方法体是否符合模式
func (p *Pattern) Matches(m *bytecode.Method) bool {
	if m.ParamCount() != p.Params || len(m.Blocks) != 1 {
		return false
	}
	body := m.Blocks[0].Instrs
	if len(body) != len(p.Shape) {
		return false
	}
	for i, pred := range p.Shape {
		if !pred(body[i]) {
			return false
		}
	}
	return p.Check == nil || p.Check(body)
}

// MatchPattern 返回 callee 匹配的模式；不可内联时返回 nil
//
// 虚方法与调用者自身不参与匹配。
func MatchPattern(caller, callee *bytecode.Method) *Pattern {
	if callee == nil || callee == caller || callee.Virtual {
		return nil
	}
	for i := range patterns {
		if patterns[i].Matches(callee) {
			return &patterns[i]
		}
	}
	return nil
}

// InlineSettersGetters 把匹配模式的方法调用替换为展开指令
func InlineSettersGetters(ctx *Context, in bytecode.Block) bytecode.Block {
	var out bytecode.Block
	for _, instr := range in.Instrs {
		if instr.Op != bytecode.OpMthdCall || ctx.Program == nil {
			out.Add(instr)
			continue
		}
		callee := ctx.Program.Method(int(instr.Operand), int(instr.Operand2))
		p := MatchPattern(ctx.Method, callee)
		if p == nil {
			out.Add(instr)
			continue
		}
		for _, e := range p.Emit(callee.Blocks[0].Instrs) {
			out.Add(e.WithLine(instr.Line))
		}
		ctx.Stats.PatternsInlined++
	}
	return out
}
