// codegen_int.go - 整数运算与比较
//
// 二元运算按 (左, 右) 操作数种类选择编码：左操作数总是进入寄存器并作为结果，
// 右操作数能用立即数或内存形式时不占寄存器。

package jit

import (
	"math/bits"

	"github.com/tangzhangming/objeck/internal/bytecode"
	jerrors "github.com/tangzhangming/objeck/internal/errors"
	"github.com/tangzhangming/objeck/internal/optimizer"
)

var aluOps = map[bytecode.Opcode]AluOp{
	bytecode.OpAddInt:    AluAdd,
	bytecode.OpSubInt:    AluSub,
	bytecode.OpBitAndInt: AluAnd,
	bytecode.OpBitOrInt:  AluOr,
	bytecode.OpBitXorInt: AluXor,
}

var intConds = map[bytecode.Opcode]Cond{
	bytecode.OpLesInt:    CondL,
	bytecode.OpGtrInt:    CondG,
	bytecode.OpLesEqlInt: CondLE,
	bytecode.OpGtrEqlInt: CondGE,
	bytecode.OpEqlInt:    CondE,
	bytecode.OpNeqlInt:   CondNE,
}

func commutative(op bytecode.Opcode) bool {
	switch op {
	case bytecode.OpAddInt, bytecode.OpMulInt, bytecode.OpBitAndInt, bytecode.OpBitOrInt, bytecode.OpBitXorInt:
		return true
	}
	return false
}

func (g *Generator) intCalc(in bytecode.Instr) {
	left := g.pop(false)
	right := g.pop(false)

	if left.Kind == ImmInt && right.Kind == ImmInt {
		if v, ok := optimizer.FoldInt(in.Op, left.Value, right.Value); ok {
			g.push(immInt(v))
			return
		}
	}

	switch in.Op {
	case bytecode.OpDivInt, bytecode.OpModInt:
		g.divide(in.Op, left, right)
	case bytecode.OpShlInt, bytecode.OpShrInt:
		g.shift(in.Op, left, right)
	case bytecode.OpDivPow2Int:
		g.divPow2(left, right)
	case bytecode.OpAndInt, bytecode.OpOrInt:
		g.logical(in.Op, left, right)
	default:
		g.arith(in.Op, left, right)
	}
}

// arith ADD/SUB/MUL 与位运算
func (g *Generator) arith(op bytecode.Opcode, left, right RegInstr) {
	if commutative(op) && left.Kind == ImmInt && right.Kind != ImmInt {
		left, right = right, left
	}
	dst := g.toReg(left)

	if op == bytecode.OpMulInt {
		g.multiply(dst, right)
		g.push(regInt(dst))
		return
	}

	alu := aluOps[op]
	switch {
	case right.Kind == ImmInt && fits32(right.Value):
		g.asm.AluRegImm(alu, dst, int32(right.Value))
	case right.Kind == MemInt:
		g.asm.AluRegMem(alu, dst, right.mem())
	default:
		r := g.toReg(right)
		g.asm.AluRegReg(alu, dst, r)
		g.gp.Release(r)
	}
	g.push(regInt(dst))
}

// multiply 2 的幂用左移，其余用 imul
func (g *Generator) multiply(dst X64Reg, right RegInstr) {
	switch {
	case right.Kind == ImmInt && right.Value > 1 && bits.OnesCount64(uint64(right.Value)) == 1:
		g.asm.ShiftRegImm(ShiftShl, dst, byte(bits.TrailingZeros64(uint64(right.Value))))
	case right.Kind == ImmInt && fits32(right.Value):
		g.asm.IMulRegImm32(dst, dst, int32(right.Value))
	case right.Kind == MemInt:
		g.asm.IMulRegMem(dst, right.mem())
	default:
		r := g.toReg(right)
		g.asm.IMulRegReg(dst, r)
		g.gp.Release(r)
	}
}

// divide DIV/MOD 经由 rax/rdx
//
// 除数先写入临时槽，rax、rdx 原值保存后恢复。
// 除数为 0 跳到除零出口；除数为 -1 时不执行 idiv（MinInt64 / -1 会触发 #DE），
// 商取负、余数为 0。
func (g *Generator) divide(op bytecode.Opcode, left, right RegInstr) {
	dst := g.toReg(left)
	divisor := At(RBP, TMP_REG_2)
	g.storeInt(divisor, right)
	g.release(right)

	g.asm.MovMemReg(At(RBP, TMP_REG_0), RAX)
	g.asm.MovMemReg(At(RBP, TMP_REG_1), RDX)
	if dst != RAX {
		g.asm.MovRegReg(RAX, dst)
	}

	g.asm.AluMemImm(AluCmp, divisor, 0)
	g.errorJump(CondE, exitDivZero)
	g.asm.AluMemImm(AluCmp, divisor, -1)
	regular := g.asm.Jcc(CondNE)
	if op == bytecode.OpDivInt {
		g.asm.Neg(RAX)
	} else {
		g.asm.XorRegReg(RDX, RDX)
	}
	done := g.asm.Jmp()

	g.asm.PatchHere(regular)
	g.asm.CQO()
	g.asm.IDivMem(divisor)
	g.asm.PatchHere(done)

	result := RAX
	if op == bytecode.OpModInt {
		result = RDX
	}
	if dst != result {
		g.asm.MovRegReg(dst, result)
	}
	if dst != RAX {
		g.asm.MovRegMem(RAX, At(RBP, TMP_REG_0))
	}
	if dst != RDX {
		g.asm.MovRegMem(RDX, At(RBP, TMP_REG_1))
	}
	g.push(regInt(dst))
}

// shift SHL/SHR；可变移位量经由 cl
func (g *Generator) shift(op bytecode.Opcode, left, right RegInstr) {
	kind := ShiftShl
	if op == bytecode.OpShrInt {
		kind = ShiftSar
	}
	if right.Kind == ImmInt {
		dst := g.toReg(left)
		if n := byte(right.Value & 63); n != 0 {
			g.asm.ShiftRegImm(kind, dst, n)
		}
		g.push(regInt(dst))
		return
	}

	dst := g.toRegExcept(left, RCX)
	g.asm.MovMemReg(At(RBP, TMP_REG_3), RCX)
	switch right.Kind {
	case MemInt:
		g.asm.MovRegMem(RCX, right.mem())
	case RegInt:
		if right.Reg != RCX {
			g.asm.MovRegReg(RCX, right.Reg)
		}
	}
	g.asm.ShiftRegCL(kind, dst)
	g.asm.MovRegMem(RCX, At(RBP, TMP_REG_3))
	g.release(right)
	g.push(regInt(dst))
}

// divPow2 有符号除以 2^k，向零取整
//
//	t = x >> 63        (负数时全 1)
//	t = t >>> (64 - k) (负数时为 2^k - 1)
//	x = (x + t) >> k
func (g *Generator) divPow2(left, right RegInstr) {
	if right.Kind != ImmInt || right.Value < 1 || right.Value > 62 {
		fail(StatusFallback, jerrors.J0001, "DIV_POW2_INT needs a constant shift, got %s", right)
	}
	k := byte(right.Value)
	dst := g.toReg(left)
	t := g.gp.Get()
	g.asm.MovRegReg(t, dst)
	g.asm.ShiftRegImm(ShiftSar, t, 63)
	g.asm.ShiftRegImm(ShiftShr, t, 64-k)
	g.asm.AddRegReg(dst, t)
	g.asm.ShiftRegImm(ShiftSar, dst, k)
	g.gp.Release(t)
	g.push(regInt(dst))
}

// logical AND_INT/OR_INT：两侧先归一成 0/1
func (g *Generator) logical(op bytecode.Opcode, left, right RegInstr) {
	if left.Kind == ImmInt && right.Kind == ImmInt {
		l, r := left.Value != 0, right.Value != 0
		v := l && r
		if op == bytecode.OpOrInt {
			v = l || r
		}
		g.push(immInt(boolInt(v)))
		return
	}
	l := g.toReg(left)
	g.normalize(l)
	r := g.toReg(right)
	g.normalize(r)
	if op == bytecode.OpAndInt {
		g.asm.AluRegReg(AluAnd, l, r)
	} else {
		g.asm.AluRegReg(AluOr, l, r)
	}
	g.gp.Release(r)
	g.push(regInt(l))
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// normalize r = (r != 0)
func (g *Generator) normalize(r X64Reg) {
	g.asm.TestRegReg(r, r)
	g.setCond(CondNE, r)
}

// setCond 按标志位把 dst 置为 0/1；mov 不改写标志位
func (g *Generator) setCond(cc Cond, dst X64Reg) {
	one := g.gp.Get()
	g.asm.MovRegImm32(one, 1)
	g.asm.MovRegImm32(dst, 0)
	g.asm.Cmov(cc, dst, one)
	g.gp.Release(one)
}

func (g *Generator) bitNot() {
	v := g.pop(false)
	if v.Kind == ImmInt {
		g.push(immInt(^v.Value))
		return
	}
	r := g.toReg(v)
	g.asm.NotReg(r)
	g.push(regInt(r))
}

// ============================================================================
// 比较
// ============================================================================

// fusedJump 下一条是否为可与比较融合的条件跳转
func (g *Generator) fusedJump() (bytecode.Instr, bool) {
	next := g.index + 1
	if next >= g.method.Len() {
		return bytecode.Instr{}, false
	}
	in := g.method.Instrs[next]
	return in, in.IsConditional()
}

func (g *Generator) intCompare(in bytecode.Instr) {
	left := g.pop(false)
	right := g.pop(false)
	cc := intConds[in.Op]

	dst := g.toReg(left)
	if right.Kind == ImmInt && !fits32(right.Value) {
		right = regInt(g.toReg(right))
	}

	if jmp, ok := g.fusedJump(); ok {
		g.flushStack()
		g.cmpInt(dst, right)
		g.release(right)
		g.gp.Release(dst)
		g.index++
		g.condJump(jmp, cc)
		return
	}

	g.cmpInt(dst, right)
	g.release(right)
	g.setCond(cc, dst)
	g.push(regInt(dst))
}

func (g *Generator) cmpInt(dst X64Reg, right RegInstr) {
	switch right.Kind {
	case ImmInt:
		g.asm.CmpRegImm32(dst, int32(right.Value))
	case MemInt:
		g.asm.AluRegMem(AluCmp, dst, right.mem())
	default:
		g.asm.CmpRegReg(dst, right.Reg)
	}
}
