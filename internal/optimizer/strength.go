package optimizer

import "github.com/tangzhangming/objeck/internal/bytecode"

// shiftFor 2..256 的 2 的幂对应的移位数，其它值返回 0
func shiftFor(v int64) int64 {
	switch v {
	case 2:
		return 1
	case 4:
		return 2
	case 8:
		return 3
	case 16:
		return 4
	case 32:
		return 5
	case 64:
		return 6
	case 128:
		return 7
	case 256:
		return 8
	}
	return 0
}

// StrengthReduction 把乘除 2 的幂改写为移位
//
// 只处理一个操作数是局部整型变量、另一个是字面量的情况：
//
//	x * 2^k 或 2^k * x  =>  LOAD_INT_LIT k, LOAD_INT_VAR x, SHL_INT
//	x / 2^k             =>  LOAD_INT_LIT k, LOAD_INT_VAR x, DIV_POW2_INT
//
// 算术右移对负数向负无穷取整，因此除法改写为 DIV_POW2_INT（向零取整），
// 而且只在字面量是除数时改写。
func StrengthReduction(ctx *Context, in bytecode.Block) bytecode.Block {
	var out bytecode.Block
	var stack workStack

	for _, instr := range in.Instrs {
		switch instr.Op {
		case bytecode.OpLoadIntLit, bytecode.OpLoadIntVar:
			stack.push(instr)

		case bytecode.OpMulInt, bytecode.OpDivInt:
			if rewrite, ok := reduce(instr, &stack); ok {
				stack.flush(&out)
				for _, r := range rewrite {
					out.Add(r)
				}
				ctx.Stats.Reductions++
				continue
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

// reduce 尝试改写栈顶两条指令与运算；成功时弹出它们并返回新序列
func reduce(instr bytecode.Instr, stack *workStack) ([]bytecode.Instr, bool) {
	if stack.len() < 2 {
		return nil, false
	}
	left := stack.items[stack.len()-1]
	right := stack.items[stack.len()-2]

	isVar := func(in bytecode.Instr) bool {
		return in.Op == bytecode.OpLoadIntVar && in.IsLocal()
	}
	isPow := func(in bytecode.Instr) bool {
		return in.Op == bytecode.OpLoadIntLit && shiftFor(in.Operand) != 0
	}

	var v, lit bytecode.Instr
	var op bytecode.Opcode
	switch {
	case instr.Op == bytecode.OpMulInt && isVar(left) && isPow(right):
		v, lit, op = left, right, bytecode.OpShlInt
	case instr.Op == bytecode.OpMulInt && isPow(left) && isVar(right):
		v, lit, op = right, left, bytecode.OpShlInt
	case instr.Op == bytecode.OpDivInt && isVar(left) && isPow(right):
		v, lit, op = left, right, bytecode.OpDivPow2Int
	default:
		return nil, false
	}

	stack.pop()
	stack.pop()
	return []bytecode.Instr{
		bytecode.NewInt(instr.Line, bytecode.OpLoadIntLit, shiftFor(lit.Operand)),
		v,
		bytecode.New(instr.Line, op),
	}, true
}
