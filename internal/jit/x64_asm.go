// x64_asm.go - x86-64 汇编器
//
// 本文件实现了 x86-64 机器码生成的底层汇编器。
// 提供代码生成器用到的整数、SSE2/SSE4.1、跳转与栈指令的编码。
//
// x86-64 指令编码格式：
// [前缀] [REX] [操作码] [ModR/M] [SIB] [位移] [立即数]
//
// REX 前缀：用于扩展寄存器和操作数大小
// - REX.W: 64 位操作数
// - REX.R: 扩展 ModR/M.reg 字段
// - REX.X: 扩展 SIB.index 字段
// - REX.B: 扩展 ModR/M.r/m 或 SIB.base 字段

package jit

import (
	"encoding/binary"
)

// ============================================================================
// x86-64 寄存器定义
// ============================================================================

// X64Reg x86-64 通用寄存器
type X64Reg int

const (
	// 通用寄存器（64 位）
	RAX X64Reg = iota
	RCX
	RDX
	RBX
	RSP
	RBP
	RSI
	RDI
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15

	// 特殊标记
	RegNone X64Reg = -1 // 无寄存器
)

var x64RegNames = [...]string{
	"rax", "rcx", "rdx", "rbx", "rsp", "rbp", "rsi", "rdi",
	"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15",
}

// String 返回寄存器名称
func (r X64Reg) String() string {
	if r >= 0 && int(r) < len(x64RegNames) {
		return x64RegNames[r]
	}
	return "???"
}

// IsExtended 检查是否是扩展寄存器（需要 REX 前缀）
func (r X64Reg) IsExtended() bool {
	return r >= R8 && r <= R15
}

// LowBits 获取寄存器编码的低 3 位
func (r X64Reg) LowBits() byte {
	return byte(r) & 0x7
}

// XmmReg SSE 寄存器
type XmmReg int

const (
	XMM0 XmmReg = iota
	XMM1
	XMM2
	XMM3
	XMM4
	XMM5
	XMM6
	XMM7
	XMM8
	XMM9
	XMM10
	XMM11
	XMM12
	XMM13
	XMM14
	XMM15
)

func (x XmmReg) String() string {
	if x < XMM0 || x > XMM15 {
		return "xmm?"
	}
	return "xmm" + itoa(int(x))
}

// IsExtended 是否需要 REX 扩展位
func (x XmmReg) IsExtended() bool {
	return x >= XMM8
}

// LowBits 编码的低 3 位
func (x XmmReg) LowBits() byte {
	return byte(x) & 0x7
}

func itoa(n int) string {
	if n < 10 {
		return string(rune('0' + n))
	}
	return string(rune('0'+n/10)) + string(rune('0'+n%10))
}

// Cond 条件码（Jcc / CMOVcc 的低 4 位）
type Cond byte

const (
	CondB  Cond = 0x2 // 无符号小于
	CondAE Cond = 0x3 // 无符号大于等于
	CondE  Cond = 0x4
	CondNE Cond = 0x5
	CondBE Cond = 0x6 // 无符号小于等于
	CondA  Cond = 0x7 // 无符号大于
	CondP  Cond = 0xA // 奇偶位置位（ucomisd 无序）
	CondNP Cond = 0xB
	CondL  Cond = 0xC
	CondGE Cond = 0xD
	CondLE Cond = 0xE
	CondG  Cond = 0xF
)

// Negate 取反条件
func (c Cond) Negate() Cond {
	return c ^ 1
}

// Mem 内存操作数 [Base + Index*Scale + Disp] 或 [rip + 常量池]
type Mem struct {
	Base  X64Reg
	Index X64Reg // RegNone 表示无变址
	Scale byte   // 1, 2, 4, 8
	Disp  int32
	RIP   bool // 为 true 时 Disp 是常量池下标
}

// At 构造 [base + disp]
func At(base X64Reg, disp int32) Mem {
	return Mem{Base: base, Index: RegNone, Disp: disp}
}

// Indexed 构造 [base + index*scale]
func Indexed(base, index X64Reg, scale byte) Mem {
	return Mem{Base: base, Index: index, Scale: scale}
}

// Pool 构造指向浮点常量池第 i 项的 RIP 相对操作数
func Pool(i int) Mem {
	return Mem{Base: RegNone, Index: RegNone, Disp: int32(i), RIP: true}
}

func (m Mem) extBase() bool  { return !m.RIP && m.Base.IsExtended() }
func (m Mem) extIndex() bool { return m.Index != RegNone && m.Index.IsExtended() }

// ============================================================================
// x86-64 汇编器
// ============================================================================

// X64Assembler x86-64 汇编器
type X64Assembler struct {
	code    []byte   // 生成的机器码
	ripRefs []ripRef // RIP 相对引用，常量池确定位置后回填
}

// ripRef RIP 相对引用
type ripRef struct {
	site  int // 位移字段偏移
	end   int // 指令结束偏移
	index int // 常量池下标
}

// NewX64Assembler 创建 x86-64 汇编器
func NewX64Assembler(capacity int) *X64Assembler {
	if capacity <= 0 {
		capacity = 512
	}
	return &X64Assembler{code: make([]byte, 0, capacity)}
}

// Reset 重置汇编器状态
func (a *X64Assembler) Reset() {
	a.code = a.code[:0]
	a.ripRefs = nil
}

// Code 获取生成的机器码
func (a *X64Assembler) Code() []byte {
	return a.code
}

// Len 返回当前代码长度
func (a *X64Assembler) Len() int {
	return len(a.code)
}

// ============================================================================
// 底层编码方法
// ============================================================================

// emit 写入字节
func (a *X64Assembler) emit(bytes ...byte) {
	a.code = append(a.code, bytes...)
}

// emitU32 写入 32 位值（小端序）
func (a *X64Assembler) emitU32(v uint32) {
	a.code = binary.LittleEndian.AppendUint32(a.code, v)
}

// emitU64 写入 64 位值（小端序）
func (a *X64Assembler) emitU64(v uint64) {
	a.code = binary.LittleEndian.AppendUint64(a.code, v)
}

// rex 构造 REX 前缀
// w: 64 位操作数
// r: 扩展 ModR/M.reg
// x: 扩展 SIB.index
// b: 扩展 ModR/M.r/m 或 SIB.base
func rex(w, r, x, b bool) byte {
	var v byte = 0x40
	if w {
		v |= 0x08
	}
	if r {
		v |= 0x04
	}
	if x {
		v |= 0x02
	}
	if b {
		v |= 0x01
	}
	return v
}

// optRex 仅在需要时写入 REX 前缀
func (a *X64Assembler) optRex(w, r, x, b bool) {
	if w || r || x || b {
		a.emit(rex(w, r, x, b))
	}
}

// modrm 构造 ModR/M 字节
// mod: 寻址模式 (0-3)
// reg: 寄存器操作数或操作码扩展
// rm: 寄存器/内存操作数
func modrm(mod, reg, rm byte) byte {
	return (mod << 6) | ((reg & 0x7) << 3) | (rm & 0x7)
}

func scaleBits(s byte) byte {
	switch s {
	case 2:
		return 1
	case 4:
		return 2
	case 8:
		return 3
	}
	return 0
}

// emitMem 生成内存操作数编码；trailing 为位移之后的立即数字节数
func (a *X64Assembler) emitMem(reg byte, m Mem, trailing int) {
	if m.RIP {
		a.emit(modrm(0, reg, 5))
		site := len(a.code)
		a.ripRefs = append(a.ripRefs, ripRef{site: site, end: site + 4 + trailing, index: int(m.Disp)})
		a.emitU32(0)
		return
	}

	// RBP/R13 作基址时没有无位移形式
	var mod byte
	switch {
	case m.Disp == 0 && m.Base.LowBits() != 5:
		mod = 0
	case m.Disp >= -128 && m.Disp <= 127:
		mod = 1
	default:
		mod = 2
	}

	// RSP/R12 作基址或有变址时需要 SIB
	if m.Index != RegNone {
		a.emit(modrm(mod, reg, 4))
		a.emit(scaleBits(m.Scale)<<6 | m.Index.LowBits()<<3 | m.Base.LowBits())
	} else if m.Base.LowBits() == 4 {
		a.emit(modrm(mod, reg, 4))
		a.emit(0x24) // SIB: scale=0, index=none, base=RSP
	} else {
		a.emit(modrm(mod, reg, m.Base.LowBits()))
	}

	switch mod {
	case 1:
		a.emit(byte(m.Disp))
	case 2:
		a.emitU32(uint32(m.Disp))
	}
}

// ResolvePool 回填 RIP 相对引用；poolStart 为常量池在代码中的偏移
func (a *X64Assembler) ResolvePool(poolStart int) {
	for _, r := range a.ripRefs {
		disp := int32(poolStart + r.index*8 - r.end)
		binary.LittleEndian.PutUint32(a.code[r.site:], uint32(disp))
	}
}

// Align 用 int3 填充到 n 字节对齐
func (a *X64Assembler) Align(n int) {
	for len(a.code)%n != 0 {
		a.emit(0xCC)
	}
}

// Data64 写入 64 位数据
func (a *X64Assembler) Data64(v uint64) {
	a.emitU64(v)
}

// ============================================================================
// 数据移动指令
// ============================================================================

// MovRegReg 寄存器到寄存器: mov dst, src
func (a *X64Assembler) MovRegReg(dst, src X64Reg) {
	a.emit(rex(true, src.IsExtended(), false, dst.IsExtended()))
	a.emit(0x89)
	a.emit(modrm(3, src.LowBits(), dst.LowBits()))
}

// MovRegImm 加载立即数，选择最短编码
//
// 0 用 xor（会改写标志位），32 位可表示时用 C7，否则用 movabs。
func (a *X64Assembler) MovRegImm(reg X64Reg, imm int64) {
	switch {
	case imm == 0:
		a.XorRegReg(reg, reg)
	case imm == int64(int32(imm)):
		a.MovRegImm32(reg, int32(imm))
	default:
		a.MovRegImm64(reg, uint64(imm))
	}
}

// MovRegImm64 加载 64 位立即数: mov reg, imm64
func (a *X64Assembler) MovRegImm64(reg X64Reg, imm uint64) {
	a.emit(rex(true, false, false, reg.IsExtended()))
	a.emit(0xB8 + reg.LowBits())
	a.emitU64(imm)
}

// MovRegImm32 加载 32 位立即数（符号扩展，不改写标志位）: mov reg, imm32
func (a *X64Assembler) MovRegImm32(reg X64Reg, imm int32) {
	a.emit(rex(true, false, false, reg.IsExtended()))
	a.emit(0xC7)
	a.emit(modrm(3, 0, reg.LowBits()))
	a.emitU32(uint32(imm))
}

// MovRegMem 从内存加载: mov reg, [m]
func (a *X64Assembler) MovRegMem(dst X64Reg, m Mem) {
	a.emit(rex(true, dst.IsExtended(), m.extIndex(), m.extBase()))
	a.emit(0x8B)
	a.emitMem(dst.LowBits(), m, 0)
}

// MovMemReg 存储到内存: mov [m], reg
func (a *X64Assembler) MovMemReg(m Mem, src X64Reg) {
	a.emit(rex(true, src.IsExtended(), m.extIndex(), m.extBase()))
	a.emit(0x89)
	a.emitMem(src.LowBits(), m, 0)
}

// MovMemImm32 存储符号扩展的立即数: mov qword [m], imm32
func (a *X64Assembler) MovMemImm32(m Mem, imm int32) {
	a.emit(rex(true, false, m.extIndex(), m.extBase()))
	a.emit(0xC7)
	a.emitMem(0, m, 4)
	a.emitU32(uint32(imm))
}

// MovsxByte 符号扩展加载字节: movsx dst, byte [m]
func (a *X64Assembler) MovsxByte(dst X64Reg, m Mem) {
	a.emit(rex(true, dst.IsExtended(), m.extIndex(), m.extBase()))
	a.emit(0x0F, 0xBE)
	a.emitMem(dst.LowBits(), m, 0)
}

// MovsxDword 符号扩展加载 32 位: movsxd dst, dword [m]
func (a *X64Assembler) MovsxDword(dst X64Reg, m Mem) {
	a.emit(rex(true, dst.IsExtended(), m.extIndex(), m.extBase()))
	a.emit(0x63)
	a.emitMem(dst.LowBits(), m, 0)
}

// MovByteMemReg 存储低 8 位: mov byte [m], src8
func (a *X64Assembler) MovByteMemReg(m Mem, src X64Reg) {
	// 带 REX 时 4..7 编码 spl/bpl/sil/dil 而不是 ah/ch/dh/bh
	a.emit(rex(false, src.IsExtended(), m.extIndex(), m.extBase()))
	a.emit(0x88)
	a.emitMem(src.LowBits(), m, 0)
}

// MovDwordMemReg 存储低 32 位: mov dword [m], src32
func (a *X64Assembler) MovDwordMemReg(m Mem, src X64Reg) {
	a.optRex(false, src.IsExtended(), m.extIndex(), m.extBase())
	a.emit(0x89)
	a.emitMem(src.LowBits(), m, 0)
}

// ============================================================================
// 算术与逻辑指令
// ============================================================================

// AluOp 使用 /digit 编码族的二元运算
type AluOp byte

const (
	AluAdd AluOp = 0
	AluOr  AluOp = 1
	AluAnd AluOp = 4
	AluSub AluOp = 5
	AluXor AluOp = 6
	AluCmp AluOp = 7
)

// AluRegReg op dst, src
func (a *X64Assembler) AluRegReg(op AluOp, dst, src X64Reg) {
	a.emit(rex(true, src.IsExtended(), false, dst.IsExtended()))
	a.emit(byte(op)<<3 | 0x01)
	a.emit(modrm(3, src.LowBits(), dst.LowBits()))
}

// AluRegImm op reg, imm32
func (a *X64Assembler) AluRegImm(op AluOp, reg X64Reg, imm int32) {
	a.emit(rex(true, false, false, reg.IsExtended()))
	if imm >= -128 && imm <= 127 {
		a.emit(0x83)
		a.emit(modrm(3, byte(op), reg.LowBits()))
		a.emit(byte(imm))
	} else {
		a.emit(0x81)
		a.emit(modrm(3, byte(op), reg.LowBits()))
		a.emitU32(uint32(imm))
	}
}

// AluRegMem op dst, [m]
func (a *X64Assembler) AluRegMem(op AluOp, dst X64Reg, m Mem) {
	a.emit(rex(true, dst.IsExtended(), m.extIndex(), m.extBase()))
	a.emit(byte(op)<<3 | 0x03)
	a.emitMem(dst.LowBits(), m, 0)
}

// AluMemImm op qword [m], imm32
func (a *X64Assembler) AluMemImm(op AluOp, m Mem, imm int32) {
	a.emit(rex(true, false, m.extIndex(), m.extBase()))
	if imm >= -128 && imm <= 127 {
		a.emit(0x83)
		a.emitMem(byte(op), m, 1)
		a.emit(byte(imm))
	} else {
		a.emit(0x81)
		a.emitMem(byte(op), m, 4)
		a.emitU32(uint32(imm))
	}
}

// AddRegReg 寄存器加法: add dst, src
func (a *X64Assembler) AddRegReg(dst, src X64Reg) { a.AluRegReg(AluAdd, dst, src) }

// AddRegImm32 立即数加法: add reg, imm32
func (a *X64Assembler) AddRegImm32(reg X64Reg, imm int32) { a.AluRegImm(AluAdd, reg, imm) }

// SubRegImm32 立即数减法: sub reg, imm32
func (a *X64Assembler) SubRegImm32(reg X64Reg, imm int32) { a.AluRegImm(AluSub, reg, imm) }

// XorRegReg 位异或: xor dst, src
func (a *X64Assembler) XorRegReg(dst, src X64Reg) { a.AluRegReg(AluXor, dst, src) }

// CmpRegReg 比较: cmp left, right
func (a *X64Assembler) CmpRegReg(left, right X64Reg) { a.AluRegReg(AluCmp, left, right) }

// CmpRegImm32 比较立即数: cmp reg, imm32
func (a *X64Assembler) CmpRegImm32(reg X64Reg, imm int32) { a.AluRegImm(AluCmp, reg, imm) }

// TestRegReg 测试: test reg1, reg2
func (a *X64Assembler) TestRegReg(reg1, reg2 X64Reg) {
	a.emit(rex(true, reg2.IsExtended(), false, reg1.IsExtended()))
	a.emit(0x85)
	a.emit(modrm(3, reg2.LowBits(), reg1.LowBits()))
}

// IMulRegReg 有符号乘法: imul dst, src
func (a *X64Assembler) IMulRegReg(dst, src X64Reg) {
	a.emit(rex(true, dst.IsExtended(), false, src.IsExtended()))
	a.emit(0x0F, 0xAF)
	a.emit(modrm(3, dst.LowBits(), src.LowBits()))
}

// IMulRegMem 有符号乘法: imul dst, [m]
func (a *X64Assembler) IMulRegMem(dst X64Reg, m Mem) {
	a.emit(rex(true, dst.IsExtended(), m.extIndex(), m.extBase()))
	a.emit(0x0F, 0xAF)
	a.emitMem(dst.LowBits(), m, 0)
}

// IMulRegImm32 立即数乘法: imul dst, src, imm32
func (a *X64Assembler) IMulRegImm32(dst, src X64Reg, imm int32) {
	a.emit(rex(true, dst.IsExtended(), false, src.IsExtended()))
	if imm >= -128 && imm <= 127 {
		a.emit(0x6B)
		a.emit(modrm(3, dst.LowBits(), src.LowBits()))
		a.emit(byte(imm))
	} else {
		a.emit(0x69)
		a.emit(modrm(3, dst.LowBits(), src.LowBits()))
		a.emitU32(uint32(imm))
	}
}

// Neg 取负: neg reg
func (a *X64Assembler) Neg(reg X64Reg) {
	a.emit(rex(true, false, false, reg.IsExtended()))
	a.emit(0xF7)
	a.emit(modrm(3, 3, reg.LowBits()))
}

// NotReg 位非: not reg
func (a *X64Assembler) NotReg(reg X64Reg) {
	a.emit(rex(true, false, false, reg.IsExtended()))
	a.emit(0xF7)
	a.emit(modrm(3, 2, reg.LowBits()))
}

// CQO 符号扩展 RAX -> RDX:RAX
func (a *X64Assembler) CQO() {
	a.emit(0x48, 0x99)
}

// IDivMem 有符号除法: idiv qword [m] (RDX:RAX / [m] -> RAX, 余数 -> RDX)
func (a *X64Assembler) IDivMem(m Mem) {
	a.emit(rex(true, false, m.extIndex(), m.extBase()))
	a.emit(0xF7)
	a.emitMem(7, m, 0)
}

// ShiftOp 移位种类（/digit）
type ShiftOp byte

const (
	ShiftShl ShiftOp = 4
	ShiftShr ShiftOp = 5
	ShiftSar ShiftOp = 7
)

// ShiftRegImm 移位立即数: shl/shr/sar reg, imm
func (a *X64Assembler) ShiftRegImm(op ShiftOp, reg X64Reg, imm byte) {
	a.emit(rex(true, false, false, reg.IsExtended()))
	if imm == 1 {
		a.emit(0xD1)
		a.emit(modrm(3, byte(op), reg.LowBits()))
	} else {
		a.emit(0xC1)
		a.emit(modrm(3, byte(op), reg.LowBits()))
		a.emit(imm)
	}
}

// ShiftRegCL 按 CL 移位: shl/shr/sar reg, cl
func (a *X64Assembler) ShiftRegCL(op ShiftOp, reg X64Reg) {
	a.emit(rex(true, false, false, reg.IsExtended()))
	a.emit(0xD3)
	a.emit(modrm(3, byte(op), reg.LowBits()))
}

// Cmov 条件传送: cmovcc dst, src
func (a *X64Assembler) Cmov(cc Cond, dst, src X64Reg) {
	a.emit(rex(true, dst.IsExtended(), false, src.IsExtended()))
	a.emit(0x0F, 0x40|byte(cc))
	a.emit(modrm(3, dst.LowBits(), src.LowBits()))
}

// IncMem 自增: inc qword [m]
func (a *X64Assembler) IncMem(m Mem) {
	a.emit(rex(true, false, m.extIndex(), m.extBase()))
	a.emit(0xFF)
	a.emitMem(0, m, 0)
}

// DecMem 自减: dec qword [m]
func (a *X64Assembler) DecMem(m Mem) {
	a.emit(rex(true, false, m.extIndex(), m.extBase()))
	a.emit(0xFF)
	a.emitMem(1, m, 0)
}

// ============================================================================
// SSE2 浮点指令
// ============================================================================

// sse 写入 prefix [REX] 0F op ModRM
func (a *X64Assembler) sseRR(prefix byte, w bool, op byte, reg, rm byte, extReg, extRm bool) {
	a.emit(prefix)
	a.optRex(w, extReg, false, extRm)
	a.emit(0x0F, op)
	a.emit(modrm(3, reg, rm))
}

func (a *X64Assembler) sseRM(prefix byte, w bool, op byte, reg byte, extReg bool, m Mem, trailing int) {
	a.emit(prefix)
	a.optRex(w, extReg, m.extIndex(), m.extBase())
	a.emit(0x0F, op)
	a.emitMem(reg, m, trailing)
}

// MovsdRegReg movsd dst, src
func (a *X64Assembler) MovsdRegReg(dst, src XmmReg) {
	a.sseRR(0xF2, false, 0x10, dst.LowBits(), src.LowBits(), dst.IsExtended(), src.IsExtended())
}

// MovsdRegMem movsd dst, [m]
func (a *X64Assembler) MovsdRegMem(dst XmmReg, m Mem) {
	a.sseRM(0xF2, false, 0x10, dst.LowBits(), dst.IsExtended(), m, 0)
}

// MovsdMemReg movsd [m], src
func (a *X64Assembler) MovsdMemReg(m Mem, src XmmReg) {
	a.sseRM(0xF2, false, 0x11, src.LowBits(), src.IsExtended(), m, 0)
}

// SseOp 标量双精度运算
type SseOp byte

const (
	SseSqrt SseOp = 0x51
	SseAdd  SseOp = 0x58
	SseMul  SseOp = 0x59
	SseSub  SseOp = 0x5C
	SseDiv  SseOp = 0x5E
)

// SseRegReg addsd/subsd/mulsd/divsd/sqrtsd dst, src
func (a *X64Assembler) SseRegReg(op SseOp, dst, src XmmReg) {
	a.sseRR(0xF2, false, byte(op), dst.LowBits(), src.LowBits(), dst.IsExtended(), src.IsExtended())
}

// SseRegMem addsd/subsd/mulsd/divsd/sqrtsd dst, [m]
func (a *X64Assembler) SseRegMem(op SseOp, dst XmmReg, m Mem) {
	a.sseRM(0xF2, false, byte(op), dst.LowBits(), dst.IsExtended(), m, 0)
}

// UcomisdRegReg ucomisd left, right
func (a *X64Assembler) UcomisdRegReg(left, right XmmReg) {
	a.sseRR(0x66, false, 0x2E, left.LowBits(), right.LowBits(), left.IsExtended(), right.IsExtended())
}

// UcomisdRegMem ucomisd left, [m]
func (a *X64Assembler) UcomisdRegMem(left XmmReg, m Mem) {
	a.sseRM(0x66, false, 0x2E, left.LowBits(), left.IsExtended(), m, 0)
}

// Cvttsd2siRegReg 截断转换: cvttsd2si dst, src
func (a *X64Assembler) Cvttsd2siRegReg(dst X64Reg, src XmmReg) {
	a.sseRR(0xF2, true, 0x2C, dst.LowBits(), src.LowBits(), dst.IsExtended(), src.IsExtended())
}

// Cvttsd2siRegMem 截断转换: cvttsd2si dst, qword [m]
func (a *X64Assembler) Cvttsd2siRegMem(dst X64Reg, m Mem) {
	a.sseRM(0xF2, true, 0x2C, dst.LowBits(), dst.IsExtended(), m, 0)
}

// Cvtsi2sdRegReg 整数转浮点: cvtsi2sd dst, src
func (a *X64Assembler) Cvtsi2sdRegReg(dst XmmReg, src X64Reg) {
	a.sseRR(0xF2, true, 0x2A, dst.LowBits(), src.LowBits(), dst.IsExtended(), src.IsExtended())
}

// Cvtsi2sdRegMem 整数转浮点: cvtsi2sd dst, qword [m]
func (a *X64Assembler) Cvtsi2sdRegMem(dst XmmReg, m Mem) {
	a.sseRM(0xF2, true, 0x2A, dst.LowBits(), dst.IsExtended(), m, 0)
}

// 舍入模式
const (
	RoundFloor byte = 0x1
	RoundCeil  byte = 0x2
)

// RoundsdRegReg SSE4.1 舍入: roundsd dst, src, mode
func (a *X64Assembler) RoundsdRegReg(dst, src XmmReg, mode byte) {
	a.emit(0x66)
	a.optRex(false, dst.IsExtended(), false, src.IsExtended())
	a.emit(0x0F, 0x3A, 0x0B)
	a.emit(modrm(3, dst.LowBits(), src.LowBits()))
	a.emit(mode)
}

// MovqXmmReg movq xmm, r64
func (a *X64Assembler) MovqXmmReg(dst XmmReg, src X64Reg) {
	a.sseRR(0x66, true, 0x6E, dst.LowBits(), src.LowBits(), dst.IsExtended(), src.IsExtended())
}

// MovqRegXmm movq r64, xmm
func (a *X64Assembler) MovqRegXmm(dst X64Reg, src XmmReg) {
	a.sseRR(0x66, true, 0x7E, src.LowBits(), dst.LowBits(), src.IsExtended(), dst.IsExtended())
}

// ============================================================================
// 栈操作指令
// ============================================================================

// Push 压栈: push reg
func (a *X64Assembler) Push(reg X64Reg) {
	if reg.IsExtended() {
		a.emit(rex(false, false, false, true))
	}
	a.emit(0x50 + reg.LowBits())
}

// Pop 出栈: pop reg
func (a *X64Assembler) Pop(reg X64Reg) {
	if reg.IsExtended() {
		a.emit(rex(false, false, false, true))
	}
	a.emit(0x58 + reg.LowBits())
}

// PushImm32 压入符号扩展立即数: push imm32
func (a *X64Assembler) PushImm32(imm int32) {
	a.emit(0x68)
	a.emitU32(uint32(imm))
}

// PushMem 压入内存: push qword [m]
func (a *X64Assembler) PushMem(m Mem) {
	a.optRex(false, false, m.extIndex(), m.extBase())
	a.emit(0xFF)
	a.emitMem(6, m, 0)
}

// ============================================================================
// 跳转指令
// ============================================================================

// Jmp 无条件跳转，返回 4 字节位移的位置
func (a *X64Assembler) Jmp() int {
	a.emit(0xE9)
	site := len(a.code)
	a.emitU32(0) // 占位符
	return site
}

// Jcc 条件跳转，返回 4 字节位移的位置
func (a *X64Assembler) Jcc(cc Cond) int {
	a.emit(0x0F, 0x80|byte(cc))
	site := len(a.code)
	a.emitU32(0)
	return site
}

// Patch 回填位移: target - (site + 4)
func (a *X64Assembler) Patch(site, target int) {
	binary.LittleEndian.PutUint32(a.code[site:], uint32(int32(target-(site+4))))
}

// PatchHere 把位移回填为当前位置
func (a *X64Assembler) PatchHere(site int) {
	a.Patch(site, len(a.code))
}

// ============================================================================
// 函数调用指令
// ============================================================================

// Call 函数调用: call reg
func (a *X64Assembler) Call(reg X64Reg) {
	if reg.IsExtended() {
		a.emit(rex(false, false, false, true))
	}
	a.emit(0xFF)
	a.emit(modrm(3, 2, reg.LowBits()))
}

// Ret 返回
func (a *X64Assembler) Ret() {
	a.emit(0xC3)
}
