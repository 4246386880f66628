// codegen_memory.go - 变量读写、参数与数组访问

package jit

import (
	"github.com/tangzhangming/objeck/internal/bytecode"
	jerrors "github.com/tangzhangming/objeck/internal/errors"
)

// ============================================================================
// 参数
// ============================================================================

// processParameters 方法开头的参数存储直接从操作数栈弹出
//
// 返回已处理的指令数，主循环从这里继续。
func (g *Generator) processParameters() int {
	n := g.method.Method.ParamCount()
	i := 0
	for ; i < n && i < g.method.Len(); i++ {
		in := g.method.Instrs[i]
		if !in.IsLocal() {
			break
		}
		switch in.Op {
		case bytecode.OpStorIntVar, bytecode.OpStorFloatVar, bytecode.OpStorFuncVar:
		default:
			return i
		}
		g.index = i
		g.storeVar(in)
	}
	return i
}

// ============================================================================
// 变量
// ============================================================================

func (g *Generator) localSlot(in bytecode.Instr) int32 {
	off, ok := g.frame.Offset(in.Operand)
	if !ok {
		fail(StatusFatal, jerrors.J0003, "local %d has no frame slot", in.Operand)
	}
	return off
}

// fieldBase 弹出实例或类内存指针并放进寄存器
func (g *Generator) fieldBase(in bytecode.Instr) X64Reg {
	r := g.toReg(g.pop(false))
	if in.Ctx() == bytecode.CtxInstance {
		g.nilCheck(r)
	}
	return r
}

func fieldOffset(id int64) int32 {
	return int32(id * 8)
}

func (g *Generator) loadVar(in bytecode.Instr) {
	if in.Ctx() == bytecode.CtxLocal {
		off := int64(g.localSlot(in))
		switch in.Op {
		case bytecode.OpLoadIntVar:
			g.push(memInt(off))
		case bytecode.OpLoadFloatVar:
			g.push(memFloat(off))
		case bytecode.OpLoadFuncVar:
			g.push(memInt(off + 8))
			g.push(memInt(off))
		}
		return
	}

	base := g.fieldBase(in)
	off := fieldOffset(in.Operand)
	switch in.Op {
	case bytecode.OpLoadIntVar:
		g.asm.MovRegMem(base, At(base, off))
		g.push(regInt(base))
	case bytecode.OpLoadFloatVar:
		x := g.xmm.Get()
		g.asm.MovsdRegMem(x, At(base, off))
		g.gp.Release(base)
		g.push(regFloat(x))
	case bytecode.OpLoadFuncVar:
		hi := g.gp.Get()
		g.asm.MovRegMem(hi, At(base, off+8))
		g.asm.MovRegMem(base, At(base, off))
		g.push(regInt(hi))
		g.push(regInt(base))
	}
}

func (g *Generator) storeVar(in bytecode.Instr) {
	if in.Ctx() == bytecode.CtxLocal {
		off := g.localSlot(in)
		g.storeTo(in.Op, At(RBP, off), func() { g.guardAlias(off, off+8) })
		return
	}
	base := g.fieldBase(in)
	g.storeTo(in.Op, At(base, fieldOffset(in.Operand)), nil)
	g.gp.Release(base)
}

// storeTo 把栈顶写入 m；COPY 类指令把值留在栈上
func (g *Generator) storeTo(op bytecode.Opcode, m Mem, guard func()) {
	switch op {
	case bytecode.OpStorIntVar:
		v := g.pop(false)
		if guard != nil {
			guard()
		}
		g.storeInt(m, v)
		g.release(v)

	case bytecode.OpCopyIntVar:
		v := g.pop(false)
		if guard != nil {
			guard()
		}
		if v.Kind == MemInt || (v.Kind == ImmInt && !fits32(v.Value)) {
			v = regInt(g.toReg(v))
		}
		g.storeInt(m, v)
		g.push(v)

	case bytecode.OpStorFloatVar:
		v := g.pop(true)
		if guard != nil {
			guard()
		}
		g.storeFloat(m, v)
		g.release(v)

	case bytecode.OpCopyFloatVar:
		v := regFloat(g.toXmm(g.pop(true)))
		if guard != nil {
			guard()
		}
		g.storeFloat(m, v)
		g.push(v)

	case bytecode.OpStorFuncVar:
		lo := g.pop(false)
		hi := g.pop(false)
		if guard != nil {
			guard()
		}
		g.storeInt(m, lo)
		m.Disp += 8
		g.storeInt(m, hi)
		g.release(lo)
		g.release(hi)
	}
}

// ============================================================================
// 数组
// ============================================================================
//
// 数组内存布局：
//
//	[0]   元素总数
//	[8]   维数
//	[16]  各维长度
//	[(维数+2)*8]  元素

// elementShift 元素大小的 log2
func elementShift(op bytecode.Opcode) byte {
	switch op {
	case bytecode.OpLoadByteAryElm, bytecode.OpStorByteAryElm:
		return 0
	case bytecode.OpLoadCharAryElm, bytecode.OpStorCharAryElm:
		return 2
	}
	return 3
}

// arrayAddress 弹出数组与各维下标，检查边界，返回元素地址寄存器
func (g *Generator) arrayAddress(in bytecode.Instr) X64Reg {
	dims := in.Operand
	if dims < 1 {
		fail(StatusFatal, jerrors.J0003, "array access with %d dimensions", dims)
	}
	array := g.toReg(g.pop(false))
	g.nilCheck(array)
	index := g.toReg(g.pop(false))

	for i := int64(1); i < dims; i++ {
		g.asm.IMulRegMem(index, At(array, int32((2+i)*8)))
		next := g.pop(false)
		switch next.Kind {
		case ImmInt:
			if fits32(next.Value) {
				g.asm.AluRegImm(AluAdd, index, int32(next.Value))
				continue
			}
			t := g.toReg(next)
			g.asm.AluRegReg(AluAdd, index, t)
			g.gp.Release(t)
		case MemInt:
			g.asm.AluRegMem(AluAdd, index, next.mem())
		default:
			g.asm.AluRegReg(AluAdd, index, next.Reg)
			g.release(next)
		}
	}

	g.asm.CmpRegImm32(index, 0)
	g.errorJump(CondL, exitUnderBounds)
	g.asm.AluRegMem(AluCmp, index, At(array, 0))
	g.errorJump(CondGE, exitOverBounds)

	if shift := elementShift(in.Op); shift > 0 {
		g.asm.ShiftRegImm(ShiftShl, index, shift)
	}
	g.asm.AddRegImm32(index, int32((dims+2)*8))
	g.asm.AddRegReg(array, index)
	g.gp.Release(index)
	return array
}

func (g *Generator) loadArrayElement(in bytecode.Instr) {
	addr := g.arrayAddress(in)
	elem := At(addr, 0)
	switch in.Op {
	case bytecode.OpLoadByteAryElm:
		g.asm.MovsxByte(addr, elem)
	case bytecode.OpLoadCharAryElm:
		g.asm.MovsxDword(addr, elem)
	case bytecode.OpLoadIntAryElm:
		g.asm.MovRegMem(addr, elem)
	case bytecode.OpLoadFloatAryElm:
		x := g.xmm.Get()
		g.asm.MovsdRegMem(x, elem)
		g.gp.Release(addr)
		g.push(regFloat(x))
		return
	}
	g.push(regInt(addr))
}

func (g *Generator) storeArrayElement(in bytecode.Instr) {
	addr := g.arrayAddress(in)
	elem := At(addr, 0)
	switch in.Op {
	case bytecode.OpStorFloatAryElm:
		v := g.pop(true)
		g.storeFloat(elem, v)
		g.release(v)
	case bytecode.OpStorIntAryElm:
		v := g.pop(false)
		g.storeInt(elem, v)
		g.release(v)
	default:
		r := g.toReg(g.pop(false))
		if in.Op == bytecode.OpStorByteAryElm {
			g.asm.MovByteMemReg(elem, r)
		} else {
			g.asm.MovDwordMemReg(elem, r)
		}
		g.gp.Release(r)
	}
	g.gp.Release(addr)
}

// arraySize 第一维长度
func (g *Generator) arraySize() {
	r := g.toReg(g.pop(false))
	g.nilCheck(r)
	g.asm.MovRegMem(r, At(r, 16))
	g.push(regInt(r))
}
