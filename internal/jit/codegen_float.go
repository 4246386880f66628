// codegen_float.go - 浮点运算、比较与转换

package jit

import (
	"github.com/tangzhangming/objeck/internal/bytecode"
	"github.com/tangzhangming/objeck/internal/optimizer"
)

var sseOps = map[bytecode.Opcode]SseOp{
	bytecode.OpAddFloat: SseAdd,
	bytecode.OpSubFloat: SseSub,
	bytecode.OpMulFloat: SseMul,
	bytecode.OpDivFloat: SseDiv,
}

func (g *Generator) floatCalc(in bytecode.Instr) {
	left := g.pop(true)
	right := g.pop(true)

	if left.Kind == ImmFloat && right.Kind == ImmFloat {
		if v, ok := optimizer.FoldFloat(in.Op, g.floats[left.Value], g.floats[right.Value]); ok {
			g.push(immFloat(g.floatConst(v)))
			return
		}
	}

	dst := g.toXmm(left)
	op := sseOps[in.Op]
	if right.Kind == RegFloat {
		g.asm.SseRegReg(op, dst, right.Xmm)
		g.xmm.Release(right.Xmm)
	} else {
		g.asm.SseRegMem(op, dst, right.mem())
	}
	g.push(regFloat(dst))
}

func (g *Generator) floatUnary(in bytecode.Instr) {
	x := g.toXmm(g.pop(true))
	switch in.Op {
	case bytecode.OpSqrtFloat:
		g.asm.SseRegReg(SseSqrt, x, x)
	case bytecode.OpCeilFloat:
		g.asm.RoundsdRegReg(x, x, RoundCeil)
	case bytecode.OpFlorFloat:
		g.asm.RoundsdRegReg(x, x, RoundFloor)
	}
	g.push(regFloat(x))
}

// floatCompare 比较结果经 ucomisd 的无符号条件得出
//
// 小于与小于等于交换操作数后用 "大于" 条件，无序时 CF=1，结果为假。
// 无序时 ZF 也置位，相等与不等还要看 PF：NaN 相等为假，不等为真。
func (g *Generator) floatCompare(in bytecode.Instr) {
	left := g.pop(true)
	right := g.pop(true)

	var cc Cond
	swap := false
	switch in.Op {
	case bytecode.OpGtrFloat:
		cc = CondA
	case bytecode.OpGtrEqlFloat:
		cc = CondAE
	case bytecode.OpLesFloat:
		cc, swap = CondA, true
	case bytecode.OpLesEqlFloat:
		cc, swap = CondAE, true
	case bytecode.OpEqlFloat:
		cc = CondE
	case bytecode.OpNeqlFloat:
		cc = CondNE
	}
	if swap {
		left, right = right, left
	}

	// 右操作数若仍在内存或常量池中，直接作为 ucomisd 的内存操作数
	l := g.toXmm(left)

	compare := func() {
		if right.Kind == RegFloat {
			g.asm.UcomisdRegReg(l, right.Xmm)
		} else {
			g.asm.UcomisdRegMem(l, right.mem())
		}
		g.xmm.Release(l)
		g.release(right)
	}

	if jmp, ok := g.fusedJump(); ok {
		g.flushStack()
		compare()
		g.index++
		if cc == CondE || cc == CondNE {
			g.floatEqualJump(jmp, cc)
		} else {
			g.condJump(jmp, cc)
		}
		return
	}

	dst := g.gp.Get()
	compare()
	if cc == CondE || cc == CondNE {
		g.setFloatEqual(cc, dst)
	} else {
		g.setCond(cc, dst)
	}
	g.push(regInt(dst))
}

// setFloatEqual 相等/不等的布尔值，PF=1（无序）时分别强制为 0 / 1
func (g *Generator) setFloatEqual(cc Cond, dst X64Reg) {
	one := g.gp.Get()
	g.asm.MovRegImm32(one, 1)
	g.asm.MovRegImm32(dst, 0)
	g.asm.Cmov(cc, dst, one)
	if cc == CondE {
		g.asm.MovRegImm32(one, 0)
	}
	g.asm.Cmov(CondP, dst, one)
	g.gp.Release(one)
}

// floatEqualJump 相等/不等后的条件跳转
//
// 无序时跳转条件为真则先 jp 到目标，否则 jp 越过 je。
func (g *Generator) floatEqualJump(in bytecode.Instr, cc Cond) {
	if in.Operand2 == bytecode.JumpIfFalse {
		cc = cc.Negate()
	}
	if cc == CondNE {
		g.addJump(g.asm.Jcc(CondP))
		g.addJump(g.asm.Jcc(CondNE))
		return
	}
	skip := g.asm.Jcc(CondP)
	g.addJump(g.asm.Jcc(CondE))
	g.asm.PatchHere(skip)
}

// floatToInt 截断转换；NaN 与越界得到 MinInt64
func (g *Generator) floatToInt() {
	v := g.pop(true)
	r := g.gp.Get()
	if v.Kind == RegFloat {
		g.asm.Cvttsd2siRegReg(r, v.Xmm)
		g.xmm.Release(v.Xmm)
	} else {
		g.asm.Cvttsd2siRegMem(r, v.mem())
	}
	g.push(regInt(r))
}

func (g *Generator) intToFloat() {
	v := g.pop(false)
	switch v.Kind {
	case ImmInt:
		g.push(immFloat(g.floatConst(float64(v.Value))))
	case MemInt:
		x := g.xmm.Get()
		g.asm.Cvtsi2sdRegMem(x, v.mem())
		g.push(regFloat(x))
	default:
		x := g.xmm.Get()
		g.asm.Cvtsi2sdRegReg(x, v.Reg)
		g.gp.Release(v.Reg)
		g.push(regFloat(x))
	}
}
