package optimizer

import "github.com/tangzhangming/objeck/internal/bytecode"

// copyFor 存储指令与其回读指令对应的复制指令
func copyFor(stor, load bytecode.Instr) (bytecode.Opcode, bool) {
	if !stor.IsLocal() || !load.IsLocal() || stor.Operand != load.Operand {
		return bytecode.OpNop, false
	}
	switch {
	case stor.Op == bytecode.OpStorIntVar && load.Op == bytecode.OpLoadIntVar:
		return bytecode.OpCopyIntVar, true
	case stor.Op == bytecode.OpStorFloatVar && load.Op == bytecode.OpLoadFloatVar:
		return bytecode.OpCopyFloatVar, true
	}
	return bytecode.OpNop, false
}

func isStore(op bytecode.Opcode) bool {
	return op == bytecode.OpStorIntVar || op == bytecode.OpStorFloatVar
}

// InstructionReplacement 把 "存储后立即回读同一局部变量" 替换为复制指令
//
// 块开头连续的存储是参数出栈序列，原样保留。
func InstructionReplacement(ctx *Context, in bytecode.Block) bytecode.Block {
	var out bytecode.Block
	var stack workStack

	i := 0
	for i < len(in.Instrs) && isStore(in.Instrs[i].Op) {
		out.Add(in.Instrs[i])
		i++
	}

	for ; i < len(in.Instrs); i++ {
		instr := in.Instrs[i]
		switch instr.Op {
		case bytecode.OpLoadIntVar, bytecode.OpLoadFloatVar:
			if !stack.empty() {
				if op, ok := copyFor(stack.top(), instr); ok {
					stor := stack.pop()
					stack.flush(&out)
					out.Add(bytecode.NewVar(instr.Line, op, stor.Operand, stor.Ctx()))
					ctx.Stats.Copies++
					continue
				}
			}
			stack.flush(&out)
			out.Add(instr)

		case bytecode.OpStorIntVar, bytecode.OpStorFloatVar:
			// 同时只暂存一条存储，保证改写不会越过另一条存储
			stack.flush(&out)
			stack.push(instr)

		default:
			stack.flush(&out)
			out.Add(instr)
		}
	}
	stack.flush(&out)
	return out
}
