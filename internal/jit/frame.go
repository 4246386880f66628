// frame.go - 本地代码栈帧布局
//
// 入口签名（System V）：
//
//	rdi cls_id, rsi mthd_id, rdx class_mem, rcx instance_mem,
//	r8 op_stack, r9 stack_pos, [rbp+16] call_stack, [rbp+24] call_stack_pos,
//	[rbp+32] jit_mem, [rbp+40] jit_offset
//
// op_stack 是 int64 数组，stack_pos 指向当前栈深度。
//
// 帧内布局（相对 rbp）：
//
//	-8..-48     入口参数副本
//	-64..-80    浮点临时槽
//	-88..-128   整数临时槽（-128 即红区边界）
//	< -128      局部变量槽位，按变量 id 递增向下排列

package jit

import (
	"sort"

	"github.com/tangzhangming/objeck/internal/bytecode"
)

// 入口参数在帧中的位置
const (
	CLS_ID       = -8
	MTHD_ID      = -16
	CLASS_MEM    = -24
	INSTANCE_MEM = -32
	OP_STACK     = -40
	STACK_POS    = -48

	CALL_STACK     = 16
	CALL_STACK_POS = 24
	JIT_MEM        = 32
	JIT_OFFSET     = 40
)

// 临时槽
const (
	TMP_XMM_0 = -64
	TMP_XMM_1 = -72
	TMP_XMM_2 = -80

	TMP_REG_0 = -88
	TMP_REG_1 = -96
	TMP_REG_2 = -104
	TMP_REG_3 = -112
	TMP_REG_4 = -120
	TMP_REG_5 = -128

	RED_ZONE = -128
)

// 压栈保存的寄存器（顺序即 push 顺序）
var savedRegs = []X64Reg{RBX, RCX, RDX, RDI, RSI, R8, R9, R10, R11, R12, R13, R14, R15}

// 错误返回码
const (
	exitNominal     = 0
	exitNil         = -1
	exitUnderBounds = -2
	exitOverBounds  = -3
	exitDivZero     = -4
)

// Frame 局部变量槽位分配结果
type Frame struct {
	Slots map[int64]int32 // 变量 id -> rbp 偏移
	Types map[int64]bytecode.MemoryType
	Space int // 需要从 rsp 减去的字节数（对齐后）
}

// Offset 变量的 rbp 偏移
func (f *Frame) Offset(id int64) (int32, bool) {
	off, ok := f.Slots[id]
	return off, ok
}

// assignFrameSlots 为局部变量分配帧槽位
//
// 整数与浮点占 8 字节，函数引用占 16 字节；槽位从红区往下按 id 排列。
// 返回的 Space 保证保存寄存器后 rsp 仍 16 字节对齐。
func assignFrameSlots(instrs []bytecode.Instr) *Frame {
	f := &Frame{
		Slots: make(map[int64]int32),
		Types: make(map[int64]bytecode.MemoryType),
	}
	for _, in := range instrs {
		if !in.IsLocal() {
			continue
		}
		t := bytecode.TypeInt
		switch in.Op {
		case bytecode.OpLoadFloatVar, bytecode.OpStorFloatVar, bytecode.OpCopyFloatVar:
			t = bytecode.TypeFloat
		case bytecode.OpLoadFuncVar, bytecode.OpStorFuncVar:
			t = bytecode.TypeFunc
		}
		// 同一槽位既按整数又按函数引用使用时取较大者
		if old, ok := f.Types[in.Operand]; !ok || old != bytecode.TypeFunc {
			f.Types[in.Operand] = t
		}
	}

	ids := make([]int64, 0, len(f.Types))
	for id := range f.Types {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	off := int32(RED_ZONE)
	for _, id := range ids {
		if f.Types[id] == bytecode.TypeFunc {
			off -= 16
		} else {
			off -= 8
		}
		f.Slots[id] = off
	}

	space := int(-off) + 16
	space = (space + 15) &^ 15
	f.Space = space + 8
	return f
}
