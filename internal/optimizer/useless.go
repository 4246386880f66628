package optimizer

import "github.com/tangzhangming/objeck/internal/bytecode"

// RemoveUselessInstructions 删除局部变量的自赋值
//
// LOAD_INT_VAR v, LOCL 紧跟 STOR_INT_VAR v, LOCL 不改变任何状态，两条一起删除。
func RemoveUselessInstructions(ctx *Context, in bytecode.Block) bytecode.Block {
	var out bytecode.Block
	var stack workStack

	for _, instr := range in.Instrs {
		switch {
		case instr.Op == bytecode.OpLoadIntVar && instr.IsLocal():
			stack.push(instr)

		case instr.Op == bytecode.OpStorIntVar && instr.IsLocal() &&
			!stack.empty() && stack.top().Op == bytecode.OpLoadIntVar &&
			stack.top().Operand == instr.Operand:
			stack.pop()
			ctx.Stats.UselessRemoved++

		default:
			stack.flush(&out)
			out.Add(instr)
		}
	}
	stack.flush(&out)
	return out
}
