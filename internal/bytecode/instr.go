// instr.go - 中间代码指令
//
// 指令是值类型：创建后不再修改。优化遍产生新的指令，
// 基本块以切片按值持有指令，因此不需要额外的分配表。

package bytecode

import (
	"fmt"
	"strconv"
	"strings"
)

// Context 变量所在的内存上下文
type Context int64

const (
	CtxLocal    Context = iota // 方法局部变量 (LOCL)
	CtxInstance                // 实例字段 (INST)
	CtxClass                   // 类静态字段 (CLS)
)

func (c Context) String() string {
	switch c {
	case CtxLocal:
		return "LOCL"
	case CtxInstance:
		return "INST"
	case CtxClass:
		return "CLS"
	default:
		return "CTX(" + strconv.FormatInt(int64(c), 10) + ")"
	}
}

// MemoryType 值的存储类型
type MemoryType int

const (
	TypeNil MemoryType = iota
	TypeInt
	TypeFloat
	TypeFunc
)

func (t MemoryType) String() string {
	switch t {
	case TypeNil:
		return "nil"
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	case TypeFunc:
		return "func"
	default:
		return "type(" + strconv.Itoa(int(t)) + ")"
	}
}

// 条件跳转的 Operand2 取值
const (
	JumpAlways  = -1 // 无条件跳转
	JumpIfFalse = 0  // 栈顶为 0 时跳转
	JumpIfTrue  = 1  // 栈顶为 1 时跳转
)

// Instr 一条中间代码指令
//
// 操作数的含义由操作码决定：
//   - 变量指令: Operand = 变量 id, Operand2 = Context
//   - 跳转: Operand = 标签 id, Operand2 = JumpAlways / 比较值
//   - 方法调用: Operand = 类 id, Operand2 = 方法 id
//   - 数组元素: Operand = 维数
//   - 陷阱: Operand = 参数个数
type Instr struct {
	Op           Opcode  `cbor:"1,keyasint"`
	Operand      int64   `cbor:"2,keyasint,omitempty"`
	Operand2     int64   `cbor:"3,keyasint,omitempty"`
	Operand3     int64   `cbor:"4,keyasint,omitempty"`
	FloatOperand float64 `cbor:"5,keyasint,omitempty"`
	StrOperand   string  `cbor:"6,keyasint,omitempty"`
	StrOperand2  string  `cbor:"7,keyasint,omitempty"`
	Line         int     `cbor:"8,keyasint,omitempty"`
}

// New 创建无操作数指令
func New(line int, op Opcode) Instr {
	return Instr{Op: op, Line: line}
}

// NewInt 创建带一个整数操作数的指令
func NewInt(line int, op Opcode, operand int64) Instr {
	return Instr{Op: op, Operand: operand, Line: line}
}

// NewInt2 创建带两个整数操作数的指令
func NewInt2(line int, op Opcode, operand, operand2 int64) Instr {
	return Instr{Op: op, Operand: operand, Operand2: operand2, Line: line}
}

// NewFloat 创建浮点字面量指令
func NewFloat(line int, value float64) Instr {
	return Instr{Op: OpLoadFloatLit, FloatOperand: value, Line: line}
}

// NewVar 创建变量读写指令
func NewVar(line int, op Opcode, id int64, ctx Context) Instr {
	return Instr{Op: op, Operand: id, Operand2: int64(ctx), Line: line}
}

// NewJump 创建跳转指令，cond 为 JumpAlways 时无条件跳转
func NewJump(line int, label int64, cond int64) Instr {
	return Instr{Op: OpJmp, Operand: label, Operand2: cond, Line: line}
}

// NewLabel 创建标签
func NewLabel(line int, label int64) Instr {
	return Instr{Op: OpLbl, Operand: label, Line: line}
}

// NewCall 创建直接方法调用
func NewCall(line int, cls, mthd int64) Instr {
	return Instr{Op: OpMthdCall, Operand: cls, Operand2: mthd, Line: line}
}

// NewLibCall 创建跨库调用
func NewLibCall(line int, op Opcode, className, methodName string) Instr {
	return Instr{Op: op, StrOperand: className, StrOperand2: methodName, Line: line}
}

// Ctx 变量指令的内存上下文
func (in Instr) Ctx() Context {
	return Context(in.Operand2)
}

// IsLocal 是否为局部变量指令
func (in Instr) IsLocal() bool {
	return in.Op.IsVariable() && in.Ctx() == CtxLocal
}

// IsConditional 跳转是否有条件
func (in Instr) IsConditional() bool {
	return in.Op == OpJmp && in.Operand2 != JumpAlways
}

// WithOperand 返回替换了 Operand 的副本
func (in Instr) WithOperand(v int64) Instr {
	in.Operand = v
	return in
}

// WithLine 返回替换了行号的副本
func (in Instr) WithLine(line int) Instr {
	in.Line = line
	return in
}

func (in Instr) String() string {
	var sb strings.Builder
	sb.WriteString(in.Op.String())
	switch {
	case in.Op == OpLoadFloatLit:
		sb.WriteString(" ")
		sb.WriteString(strconv.FormatFloat(in.FloatOperand, 'g', -1, 64))
	case in.Op.IsVariable():
		fmt.Fprintf(&sb, " %d, %s", in.Operand, in.Ctx())
	case in.Op == OpJmp:
		if in.Operand2 == JumpAlways {
			fmt.Fprintf(&sb, " L%d", in.Operand)
		} else {
			fmt.Fprintf(&sb, " L%d if %d", in.Operand, in.Operand2)
		}
	case in.Op == OpLbl:
		fmt.Fprintf(&sb, " L%d", in.Operand)
	case in.Op == OpMthdCall || in.Op == OpAsyncMthdCall:
		fmt.Fprintf(&sb, " %d:%d", in.Operand, in.Operand2)
	case in.Op == OpLibNewObjInst || in.Op == OpLibMthdCall || in.Op == OpLibObjInstCast:
		fmt.Fprintf(&sb, " %q", in.StrOperand)
		if in.StrOperand2 != "" {
			fmt.Fprintf(&sb, ", %q", in.StrOperand2)
		}
	case in.Operand != 0 || in.Operand2 != 0:
		fmt.Fprintf(&sb, " %d", in.Operand)
		if in.Operand2 != 0 {
			fmt.Fprintf(&sb, ", %d", in.Operand2)
		}
	}
	return sb.String()
}
