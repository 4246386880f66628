package jit

import (
	"testing"

	"golang.org/x/arch/x86/x86asm"
)

// sameArg 比较解码出的操作数；内存位移按 32 位比较
func sameArg(got, want x86asm.Arg) bool {
	gm, ok1 := got.(x86asm.Mem)
	wm, ok2 := want.(x86asm.Mem)
	if ok1 && ok2 {
		if gm.Base != wm.Base || gm.Index != wm.Index || int32(gm.Disp) != int32(wm.Disp) {
			return false
		}
		return wm.Index == 0 || gm.Scale == wm.Scale
	}
	return got == want
}

func memArg(base x86asm.Reg, disp int64) x86asm.Mem {
	return x86asm.Mem{Base: base, Disp: disp}
}

// TestAssemblerEncodings 每条编码都用 x86asm 解码核对
func TestAssemblerEncodings(t *testing.T) {
	tests := []struct {
		name string
		emit func(a *X64Assembler)
		op   x86asm.Op
		args []x86asm.Arg
	}{
		{"mov reg reg", func(a *X64Assembler) { a.MovRegReg(RAX, R15) }, x86asm.MOV, []x86asm.Arg{x86asm.RAX, x86asm.R15}},
		{"mov imm32", func(a *X64Assembler) { a.MovRegImm(RBX, 7) }, x86asm.MOV, []x86asm.Arg{x86asm.RBX, x86asm.Imm(7)}},
		{"movabs", func(a *X64Assembler) { a.MovRegImm(R10, 1<<40) }, x86asm.MOV, []x86asm.Arg{x86asm.R10, x86asm.Imm(1 << 40)}},
		{"zero", func(a *X64Assembler) { a.MovRegImm(RCX, 0) }, x86asm.XOR, []x86asm.Arg{x86asm.RCX, x86asm.RCX}},
		{"load rbp", func(a *X64Assembler) { a.MovRegMem(RDX, At(RBP, -8)) }, x86asm.MOV, []x86asm.Arg{x86asm.RDX, memArg(x86asm.RBP, -8)}},
		{"load r13", func(a *X64Assembler) { a.MovRegMem(RAX, At(R13, 0)) }, x86asm.MOV, []x86asm.Arg{x86asm.RAX, memArg(x86asm.R13, 0)}},
		{"load rsp", func(a *X64Assembler) { a.MovRegMem(RAX, At(RSP, 16)) }, x86asm.MOV, []x86asm.Arg{x86asm.RAX, memArg(x86asm.RSP, 16)}},
		{"store disp32", func(a *X64Assembler) { a.MovMemReg(At(RBP, -200), R8) }, x86asm.MOV, []x86asm.Arg{memArg(x86asm.RBP, -200), x86asm.R8}},
		{"indexed", func(a *X64Assembler) { a.MovRegMem(RAX, Mem{Base: R13, Index: R12, Scale: 8, Disp: 8}) },
			x86asm.MOV, []x86asm.Arg{x86asm.RAX, x86asm.Mem{Base: x86asm.R13, Index: x86asm.R12, Scale: 8, Disp: 8}}},
		{"store imm", func(a *X64Assembler) { a.MovMemImm32(At(RBX, 0), -1) }, x86asm.MOV, []x86asm.Arg{memArg(x86asm.RBX, 0), x86asm.Imm(-1)}},
		{"add imm8", func(a *X64Assembler) { a.AluRegImm(AluAdd, R11, 5) }, x86asm.ADD, []x86asm.Arg{x86asm.R11, x86asm.Imm(5)}},
		{"sub imm32", func(a *X64Assembler) { a.SubRegImm32(RSP, 4096) }, x86asm.SUB, []x86asm.Arg{x86asm.RSP, x86asm.Imm(4096)}},
		{"or mem", func(a *X64Assembler) { a.AluRegMem(AluOr, RBX, At(RBP, -136)) }, x86asm.OR, []x86asm.Arg{x86asm.RBX, memArg(x86asm.RBP, -136)}},
		{"cmp mem imm", func(a *X64Assembler) { a.AluMemImm(AluCmp, At(RBP, TMP_REG_2), -1) }, x86asm.CMP, []x86asm.Arg{memArg(x86asm.RBP, TMP_REG_2), x86asm.Imm(-1)}},
		{"test", func(a *X64Assembler) { a.TestRegReg(R14, R14) }, x86asm.TEST, []x86asm.Arg{x86asm.R14, x86asm.R14}},
		{"imul", func(a *X64Assembler) { a.IMulRegReg(RCX, R14) }, x86asm.IMUL, []x86asm.Arg{x86asm.RCX, x86asm.R14}},
		{"imul imm", func(a *X64Assembler) { a.IMulRegImm32(RDX, RDX, 1000) }, x86asm.IMUL, []x86asm.Arg{x86asm.RDX, x86asm.RDX, x86asm.Imm(1000)}},
		{"cqo", func(a *X64Assembler) { a.CQO() }, x86asm.CQO, nil},
		{"idiv mem", func(a *X64Assembler) { a.IDivMem(At(RBP, TMP_REG_2)) }, x86asm.IDIV, []x86asm.Arg{memArg(x86asm.RBP, TMP_REG_2)}},
		{"neg", func(a *X64Assembler) { a.Neg(RAX) }, x86asm.NEG, []x86asm.Arg{x86asm.RAX}},
		{"not", func(a *X64Assembler) { a.NotReg(R10) }, x86asm.NOT, []x86asm.Arg{x86asm.R10}},
		{"shl", func(a *X64Assembler) { a.ShiftRegImm(ShiftShl, RDX, 3) }, x86asm.SHL, []x86asm.Arg{x86asm.RDX, x86asm.Imm(3)}},
		{"shr", func(a *X64Assembler) { a.ShiftRegImm(ShiftShr, RBX, 61) }, x86asm.SHR, []x86asm.Arg{x86asm.RBX, x86asm.Imm(61)}},
		{"sar cl", func(a *X64Assembler) { a.ShiftRegCL(ShiftSar, RBX) }, x86asm.SAR, []x86asm.Arg{x86asm.RBX, x86asm.CL}},
		{"cmovg", func(a *X64Assembler) { a.Cmov(CondG, RDX, RCX) }, x86asm.CMOVG, []x86asm.Arg{x86asm.RDX, x86asm.RCX}},
		{"cmova", func(a *X64Assembler) { a.Cmov(CondA, R8, R15) }, x86asm.CMOVA, []x86asm.Arg{x86asm.R8, x86asm.R15}},
		{"movsx", func(a *X64Assembler) { a.MovsxByte(RAX, At(RCX, 0)) }, x86asm.MOVSX, []x86asm.Arg{x86asm.RAX, memArg(x86asm.RCX, 0)}},
		{"movsxd", func(a *X64Assembler) { a.MovsxDword(R8, At(RAX, 0)) }, x86asm.MOVSXD, []x86asm.Arg{x86asm.R8, memArg(x86asm.RAX, 0)}},
		{"inc", func(a *X64Assembler) { a.IncMem(At(RAX, 0)) }, x86asm.INC, []x86asm.Arg{memArg(x86asm.RAX, 0)}},
		{"dec", func(a *X64Assembler) { a.DecMem(At(R11, 0)) }, x86asm.DEC, []x86asm.Arg{memArg(x86asm.R11, 0)}},
		{"movsd load", func(a *X64Assembler) { a.MovsdRegMem(XMM15, At(RBP, TMP_XMM_0)) }, x86asm.MOVSD_XMM, []x86asm.Arg{x86asm.X15, memArg(x86asm.RBP, TMP_XMM_0)}},
		{"movsd store", func(a *X64Assembler) { a.MovsdMemReg(At(RAX, 8), XMM3) }, x86asm.MOVSD_XMM, []x86asm.Arg{memArg(x86asm.RAX, 8), x86asm.X3}},
		{"addsd", func(a *X64Assembler) { a.SseRegReg(SseAdd, XMM10, XMM11) }, x86asm.ADDSD, []x86asm.Arg{x86asm.X10, x86asm.X11}},
		{"divsd mem", func(a *X64Assembler) { a.SseRegMem(SseDiv, XMM12, At(RBP, -144)) }, x86asm.DIVSD, []x86asm.Arg{x86asm.X12, memArg(x86asm.RBP, -144)}},
		{"sqrtsd", func(a *X64Assembler) { a.SseRegReg(SseSqrt, XMM12, XMM12) }, x86asm.SQRTSD, []x86asm.Arg{x86asm.X12, x86asm.X12}},
		{"ucomisd", func(a *X64Assembler) { a.UcomisdRegReg(XMM13, XMM14) }, x86asm.UCOMISD, []x86asm.Arg{x86asm.X13, x86asm.X14}},
		{"cvttsd2si", func(a *X64Assembler) { a.Cvttsd2siRegReg(RAX, XMM15) }, x86asm.CVTTSD2SI, []x86asm.Arg{x86asm.RAX, x86asm.X15}},
		{"cvtsi2sd", func(a *X64Assembler) { a.Cvtsi2sdRegReg(XMM10, R8) }, x86asm.CVTSI2SD, []x86asm.Arg{x86asm.X10, x86asm.R8}},
		{"roundsd", func(a *X64Assembler) { a.RoundsdRegReg(XMM11, XMM11, RoundCeil) }, x86asm.ROUNDSD, []x86asm.Arg{x86asm.X11, x86asm.X11, x86asm.Imm(2)}},
		{"push", func(a *X64Assembler) { a.Push(R15) }, x86asm.PUSH, []x86asm.Arg{x86asm.R15}},
		{"push imm", func(a *X64Assembler) { a.PushImm32(3) }, x86asm.PUSH, []x86asm.Arg{x86asm.Imm(3)}},
		{"push mem", func(a *X64Assembler) { a.PushMem(At(RBP, CALL_STACK_POS)) }, x86asm.PUSH, []x86asm.Arg{memArg(x86asm.RBP, CALL_STACK_POS)}},
		{"pop", func(a *X64Assembler) { a.Pop(R12) }, x86asm.POP, []x86asm.Arg{x86asm.R12}},
		{"call", func(a *X64Assembler) { a.Call(R15) }, x86asm.CALL, []x86asm.Arg{x86asm.R15}},
		{"ret", func(a *X64Assembler) { a.Ret() }, x86asm.RET, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewX64Assembler(0)
			tt.emit(a)
			inst, err := x86asm.Decode(a.Code(), 64)
			if err != nil {
				t.Fatalf("decode % x: %v", a.Code(), err)
			}
			if inst.Len != a.Len() {
				t.Errorf("decoded %d of %d bytes (% x)", inst.Len, a.Len(), a.Code())
			}
			if inst.Op != tt.op {
				t.Fatalf("op = %v, want %v (% x)", inst.Op, tt.op, a.Code())
			}
			for i, want := range tt.args {
				if !sameArg(inst.Args[i], want) {
					t.Errorf("arg %d = %v, want %v (% x)", i, inst.Args[i], want, a.Code())
				}
			}
			if n := len(tt.args); n < len(inst.Args) && inst.Args[n] != nil {
				t.Errorf("unexpected extra operand %v", inst.Args[n])
			}
		})
	}
}

// TestJumpPatch 前向、后向与自跳转的位移
func TestJumpPatch(t *testing.T) {
	a := NewX64Assembler(0)
	fwd := a.Jcc(CondE) // 0..6
	a.Push(RAX)         // 6
	back := a.Jmp()     // 7..12
	self := a.Len()
	loop := a.Jmp() // 12..17

	a.Patch(back, 0)
	a.PatchHere(fwd)
	a.Patch(loop, self)

	want := []x86asm.Rel{6 + 1 + 5 - 6, -12, -5}
	var got []x86asm.Rel
	for off := 0; off < a.Len(); {
		inst, err := x86asm.Decode(a.Code()[off:], 64)
		if err != nil {
			t.Fatalf("decode at %d: %v", off, err)
		}
		if rel, ok := inst.Args[0].(x86asm.Rel); ok {
			got = append(got, rel)
		}
		off += inst.Len
	}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("jump %d: rel %d, want %d", i, got[i], want[i])
		}
	}
}

// TestRIPRelative 常量池引用在回填后指向正确的项
func TestRIPRelative(t *testing.T) {
	a := NewX64Assembler(0)
	a.MovsdRegMem(XMM10, Pool(1)) // 9 字节
	a.Align(8)
	start := a.Len()
	a.Data64(0)
	a.Data64(0)
	a.ResolvePool(start)

	if start != 16 {
		t.Fatalf("pool at %d, want 16", start)
	}
	inst, err := x86asm.Decode(a.Code(), 64)
	if err != nil {
		t.Fatal(err)
	}
	m, ok := inst.Args[1].(x86asm.Mem)
	if !ok || m.Base != x86asm.RIP {
		t.Fatalf("operand %v is not rip relative", inst.Args[1])
	}
	if target := inst.Len + int(int32(m.Disp)); target != start+8 {
		t.Errorf("rip target %d, want %d", target, start+8)
	}
}
