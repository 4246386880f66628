// reginstr.go - 模拟求值栈上的操作数
//
// 代码生成不逐条把值压到真正的操作数栈上，而是维护一个模拟栈。
// 栈上每一项记录值现在在哪里：立即数、寄存器，或栈帧中的某个槽位。

package jit

import "fmt"

// RegKind 操作数种类
type RegKind int

const (
	ImmInt   RegKind = iota // 整数立即数
	RegInt                  // 通用寄存器
	MemInt                  // 栈帧槽位中的整数（延迟加载）
	ImmFloat                // 常量池中的浮点数
	RegFloat                // XMM 寄存器
	MemFloat                // 栈帧槽位中的浮点数（延迟加载）
)

var regKindNames = [...]string{"IMM_INT", "REG_INT", "MEM_INT", "IMM_FLOAT", "REG_FLOAT", "MEM_FLOAT"}

func (k RegKind) String() string {
	if int(k) < len(regKindNames) {
		return regKindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// RegInstr 模拟栈上的一项
type RegInstr struct {
	Kind  RegKind
	Value int64  // ImmInt: 值; MemInt/MemFloat: rbp 偏移; ImmFloat: 常量池下标
	Reg   X64Reg // RegInt
	Xmm   XmmReg // RegFloat
}

func immInt(v int64) RegInstr       { return RegInstr{Kind: ImmInt, Value: v} }
func regInt(r X64Reg) RegInstr      { return RegInstr{Kind: RegInt, Reg: r} }
func memInt(off int64) RegInstr     { return RegInstr{Kind: MemInt, Value: off} }
func immFloat(index int) RegInstr   { return RegInstr{Kind: ImmFloat, Value: int64(index)} }
func regFloat(x XmmReg) RegInstr    { return RegInstr{Kind: RegFloat, Xmm: x} }
func memFloat(off int64) RegInstr   { return RegInstr{Kind: MemFloat, Value: off} }

// IsFloat 是否为浮点操作数
func (ri RegInstr) IsFloat() bool {
	return ri.Kind >= ImmFloat
}

// IsMem 是否为栈帧槽位
func (ri RegInstr) IsMem() bool {
	return ri.Kind == MemInt || ri.Kind == MemFloat
}

// mem 槽位的内存操作数（MemInt/MemFloat/ImmFloat）
func (ri RegInstr) mem() Mem {
	if ri.Kind == ImmFloat {
		return Pool(int(ri.Value))
	}
	return At(RBP, int32(ri.Value))
}

func (ri RegInstr) String() string {
	switch ri.Kind {
	case ImmInt:
		return fmt.Sprintf("%s(%d)", ri.Kind, ri.Value)
	case RegInt:
		return fmt.Sprintf("%s(%s)", ri.Kind, ri.Reg)
	case RegFloat:
		return fmt.Sprintf("%s(%s)", ri.Kind, ri.Xmm)
	case ImmFloat:
		return fmt.Sprintf("%s(#%d)", ri.Kind, ri.Value)
	default:
		return fmt.Sprintf("%s([rbp%+d])", ri.Kind, ri.Value)
	}
}
