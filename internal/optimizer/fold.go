package optimizer

import "github.com/tangzhangming/objeck/internal/bytecode"

// ============================================================================
// 常量折叠
// ============================================================================

// FoldInt 计算 left op right，按 64 位补码回绕
//
// 除数为 0 的除法与取模不折叠，留给运行时报告除零错误。
func FoldInt(op bytecode.Opcode, left, right int64) (int64, bool) {
	switch op {
	case bytecode.OpAddInt:
		return left + right, true
	case bytecode.OpSubInt:
		return left - right, true
	case bytecode.OpMulInt:
		return left * right, true
	case bytecode.OpDivInt:
		if right == 0 {
			return 0, false
		}
		// MinInt64 / -1 在 Go 中回绕为 MinInt64
		return left / right, true
	case bytecode.OpModInt:
		if right == 0 {
			return 0, false
		}
		return left % right, true
	case bytecode.OpBitAndInt:
		return left & right, true
	case bytecode.OpBitOrInt:
		return left | right, true
	case bytecode.OpBitXorInt:
		return left ^ right, true
	}
	return 0, false
}

// FoldFloat 计算 left op right，遵循 IEEE 754（除零得到 ±Inf 或 NaN）
func FoldFloat(op bytecode.Opcode, left, right float64) (float64, bool) {
	switch op {
	case bytecode.OpAddFloat:
		return left + right, true
	case bytecode.OpSubFloat:
		return left - right, true
	case bytecode.OpMulFloat:
		return left * right, true
	case bytecode.OpDivFloat:
		return left / right, true
	}
	return 0, false
}

func isIntFoldable(op bytecode.Opcode) bool {
	switch op {
	case bytecode.OpAddInt, bytecode.OpSubInt, bytecode.OpMulInt, bytecode.OpDivInt,
		bytecode.OpModInt, bytecode.OpBitAndInt, bytecode.OpBitOrInt, bytecode.OpBitXorInt:
		return true
	}
	return false
}

// FoldIntConstants 折叠 "字面量 op 字面量" 形式的整数运算
func FoldIntConstants(ctx *Context, in bytecode.Block) bytecode.Block {
	var out bytecode.Block
	var stack workStack

	for _, instr := range in.Instrs {
		switch {
		case instr.Op == bytecode.OpLoadIntLit:
			stack.push(instr)

		case isIntFoldable(instr.Op) && stack.len() > 1:
			left := stack.pop()
			right := stack.pop()
			if v, ok := FoldInt(instr.Op, left.Operand, right.Operand); ok {
				stack.push(bytecode.NewInt(instr.Line, bytecode.OpLoadIntLit, v))
				ctx.Stats.IntFolds++
				continue
			}
			ctx.Stats.FoldsDeferred++
			stack.push(right)
			stack.push(left)
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

// FoldFloatConstants 折叠 "字面量 op 字面量" 形式的浮点运算
func FoldFloatConstants(ctx *Context, in bytecode.Block) bytecode.Block {
	var out bytecode.Block
	var stack workStack

	for _, instr := range in.Instrs {
		switch {
		case instr.Op == bytecode.OpLoadFloatLit:
			stack.push(instr)

		case instr.Op.IsFloatCalc() && stack.len() > 1:
			left := stack.pop()
			right := stack.pop()
			v, _ := FoldFloat(instr.Op, left.FloatOperand, right.FloatOperand)
			stack.push(bytecode.NewFloat(instr.Line, v))
			ctx.Stats.FloatFolds++

		default:
			stack.flush(&out)
			out.Add(instr)
		}
	}
	stack.flush(&out)
	return out
}
