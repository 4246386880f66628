package optimizer

import "github.com/tangzhangming/objeck/internal/bytecode"

// CleanJumps 删除紧跟其目标标签的无条件跳转
//
// 跳转先进入暂存栈；遇到标签时若栈顶是指向它的无条件跳转则丢弃，
// 其余暂存指令按原顺序写回。条件跳转会消费栈上的条件值，不能删除。
func CleanJumps(ctx *Context, in bytecode.Block) bytecode.Block {
	var out bytecode.Block
	var stack workStack

	for _, instr := range in.Instrs {
		switch instr.Op {
		case bytecode.OpJmp:
			stack.push(instr)

		case bytecode.OpLbl:
			if !stack.empty() {
				top := stack.top()
				if top.Op == bytecode.OpJmp && !top.IsConditional() && top.Operand == instr.Operand {
					stack.pop()
					ctx.Stats.JumpsRemoved++
				}
			}
			stack.flush(&out)
			out.Add(instr)

		default:
			stack.flush(&out)
			out.Add(instr)
		}
	}
	stack.flush(&out)
	return out
}
