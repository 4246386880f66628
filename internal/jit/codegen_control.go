// codegen_control.go - 跳转、外部调用、序言与尾声

package jit

import (
	"github.com/tangzhangming/objeck/internal/bytecode"
	jerrors "github.com/tangzhangming/objeck/internal/errors"
)

// ============================================================================
// 跳转
// ============================================================================

func (g *Generator) addJump(site int) {
	target := g.method.Target(g.index)
	if target < 0 {
		fail(StatusFatal, jerrors.L0001, "jump without resolved target")
	}
	g.jumps = append(g.jumps, jumpEntry{site: site, target: target, offset: -1})
}

// jump 无条件跳转或按栈顶值跳转
func (g *Generator) jump(in bytecode.Instr) {
	if !in.IsConditional() {
		g.flushStack()
		g.addJump(g.asm.Jmp())
		return
	}
	r := g.toReg(g.pop(false))
	g.flushStack()
	g.asm.CmpRegImm32(r, int32(in.Operand2))
	g.gp.Release(r)
	g.addJump(g.asm.Jcc(CondE))
}

// condJump 比较已设置标志位；栈顶为真时跳转的取 cc，否则取反
func (g *Generator) condJump(in bytecode.Instr, cc Cond) {
	if in.Operand2 == bytecode.JumpIfFalse {
		cc = cc.Negate()
	}
	g.addJump(g.asm.Jcc(cc))
}

func (g *Generator) label() {
	g.flushStack()
	g.labels[g.index] = g.asm.Len()
}

// fixupJumps 回填全部跳转位移
func (g *Generator) fixupJumps() {
	for i := range g.jumps {
		j := &g.jumps[i]
		if j.offset < 0 {
			off, ok := g.labels[j.target]
			if !ok {
				fail(StatusFatal, jerrors.L0001, "label at %d was never emitted", j.target)
			}
			j.offset = off
		}
		g.asm.Patch(j.site, j.offset)
	}
}

// ============================================================================
// 外部调用
// ============================================================================
//
// 回调签名（System V）：
//
//	callback(instr_id rdi, instr_index rsi, cls_id rdx, mthd_id rcx,
//	         instance r8, op_stack r9,
//	         stack_pos [rsp], call_stack [rsp+8], call_stack_pos [rsp+16],
//	         resume [rsp+24])
//
// 调用前模拟栈整体写回操作数栈，回调按操作码弹出参数并压入结果，
// 返回后从操作数栈取回结果。

// calloutResults 外部调用留在操作数栈上的结果种类，自底向上
func (g *Generator) calloutResults(in bytecode.Instr) []bool {
	var ret bytecode.MemoryType
	switch in.Op {
	case bytecode.OpMthdCall:
		callee := g.calleeOf(in)
		ret = callee.Return
	case bytecode.OpDynMthdCall:
		ret = bytecode.MemoryType(in.Operand2)

	case bytecode.OpNewObjInst, bytecode.OpObjTypeOf, bytecode.OpObjInstCast,
		bytecode.OpNewByteAry, bytecode.OpNewCharAry, bytecode.OpNewIntAry, bytecode.OpNewFloatAry,
		bytecode.OpCpyByteAry, bytecode.OpCpyCharAry, bytecode.OpCpyIntAry, bytecode.OpCpyFloatAry,
		bytecode.OpTrapRtrn, bytecode.OpS2I:
		ret = bytecode.TypeInt

	case bytecode.OpS2F, bytecode.OpRandFloat, bytecode.OpRoundFloat,
		bytecode.OpModFloat, bytecode.OpPowFloat, bytecode.OpAtan2Float,
		bytecode.OpSinFloat, bytecode.OpCosFloat, bytecode.OpTanFloat,
		bytecode.OpLogFloat, bytecode.OpExpFloat:
		ret = bytecode.TypeFloat
	}

	switch ret {
	case bytecode.TypeInt:
		return []bool{false}
	case bytecode.TypeFloat:
		return []bool{true}
	case bytecode.TypeFunc:
		return []bool{false, false}
	}
	return nil
}

func (g *Generator) calleeOf(in bytecode.Instr) *bytecode.Method {
	if g.program == nil {
		fail(StatusFallback, jerrors.J0001, "no program to resolve %d:%d", in.Operand, in.Operand2)
	}
	m := g.program.Method(int(in.Operand), int(in.Operand2))
	if m == nil {
		fail(StatusFallback, jerrors.J0001, "unknown callee %d:%d", in.Operand, in.Operand2)
	}
	return m
}

// callout 生成一次外部调用
func (g *Generator) callout(in bytecode.Instr) {
	results := g.calloutResults(in)
	g.flushStack()
	if n, x := g.gp.Outstanding(), g.xmm.Outstanding(); n != 0 || x != 0 {
		fail(StatusFatal, jerrors.J0004, "%d general purpose and %d xmm registers live at %s", n, x, in.Op)
	}

	a := g.asm
	a.MovRegImm(RDI, int64(in.Op))
	a.MovRegImm(RSI, int64(g.index))
	a.MovRegMem(RDX, At(RBP, CLS_ID))
	a.MovRegMem(RCX, At(RBP, MTHD_ID))
	a.MovRegMem(R8, At(RBP, INSTANCE_MEM))
	a.MovRegMem(R9, At(RBP, OP_STACK))

	// 4 个 8 字节参数，调用点 rsp 保持 16 字节对齐
	a.PushImm32(int32(g.index + 1))
	a.PushMem(At(RBP, CALL_STACK_POS))
	a.PushMem(At(RBP, CALL_STACK))
	a.PushMem(At(RBP, STACK_POS))
	a.MovRegImm64(R15, uint64(g.cfg.Callback))
	a.Call(R15)
	a.AddRegImm32(RSP, 32)
	g.callouts++

	// 操作数栈顶是最后一个结果
	got := make([]RegInstr, len(results))
	for i := len(results) - 1; i >= 0; i-- {
		got[i] = g.popOperandStack(results[i])
	}
	for _, ri := range got {
		g.push(ri)
	}
}

// ============================================================================
// 序言与尾声
// ============================================================================

func (g *Generator) prolog() {
	a := g.asm
	a.Push(RBP)
	a.MovRegReg(RBP, RSP)
	a.SubRegImm32(RSP, int32(g.frame.Space))
	for _, r := range savedRegs {
		a.Push(r)
	}
	a.MovMemReg(At(RBP, CLS_ID), RDI)
	a.MovMemReg(At(RBP, MTHD_ID), RSI)
	a.MovMemReg(At(RBP, CLASS_MEM), RDX)
	a.MovMemReg(At(RBP, INSTANCE_MEM), RCX)
	a.MovMemReg(At(RBP, OP_STACK), R8)
	a.MovMemReg(At(RBP, STACK_POS), R9)
}

// epilog 正常出口、错误出口与寄存器恢复
//
//	nominal: mov rax, 0;  jmp restore
//	nil:     mov rax, -1; jmp restore
//	under:   mov rax, -2; jmp restore
//	over:    mov rax, -3; jmp restore
//	div0:    mov rax, -4
//	restore: pop ...; mov rsp, rbp; pop rbp; ret
func (g *Generator) epilog() {
	a := g.asm
	var toRestore []int

	for _, site := range g.returns {
		a.PatchHere(site)
	}
	a.MovRegImm32(RAX, exitNominal)
	toRestore = append(toRestore, a.Jmp())

	for _, code := range []int{exitNil, exitUnderBounds, exitOverBounds, exitDivZero} {
		for _, site := range g.errorSites[code] {
			a.PatchHere(site)
		}
		a.MovRegImm32(RAX, int32(code))
		if code != exitDivZero {
			toRestore = append(toRestore, a.Jmp())
		}
	}

	for _, site := range toRestore {
		a.PatchHere(site)
	}
	for i := len(savedRegs) - 1; i >= 0; i-- {
		a.Pop(savedRegs[i])
	}
	a.MovRegReg(RSP, RBP)
	a.Pop(RBP)
	a.Ret()
}
