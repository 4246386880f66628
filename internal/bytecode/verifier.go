package bytecode

import (
	"fmt"

	"go.uber.org/multierr"
)

// VerificationError 中间代码验证错误
type VerificationError struct {
	Method  string // 方法全名
	Index   int    // 指令在方法中的线性下标
	Message string // 错误消息
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("verify %s (instr %d): %s", e.Method, e.Index, e.Message)
}

// Verifier 程序结构验证器
//
// 检查上游产出的程序是否满足优化器与 JIT 的结构假设。
// 所有问题都会被收集，而不是在第一个错误处停止。
type Verifier struct {
	program *Program
	err     error
}

// NewVerifier 创建验证器
func NewVerifier(p *Program) *Verifier {
	return &Verifier{program: p}
}

// Verify 验证整个程序
func Verify(p *Program) error {
	return NewVerifier(p).Verify()
}

// Verify 验证整个程序，返回合并后的错误
func (v *Verifier) Verify() error {
	seen := make(map[int]bool)
	for _, c := range v.program.Classes {
		if seen[c.ID] {
			v.fail(c.Name, -1, fmt.Sprintf("duplicate class id %d", c.ID))
		}
		seen[c.ID] = true

		mseen := make(map[int]bool)
		for _, m := range c.Methods {
			if mseen[m.ID] {
				v.fail(m.FullName(), -1, fmt.Sprintf("duplicate method id %d", m.ID))
			}
			mseen[m.ID] = true
			v.verifyMethod(c, m)
		}
	}
	return v.err
}

func (v *Verifier) fail(method string, index int, msg string) {
	v.err = multierr.Append(v.err, &VerificationError{Method: method, Index: index, Message: msg})
}

// verifyMethod 验证单个方法
func (v *Verifier) verifyMethod(c *Class, m *Method) {
	name := m.FullName()
	labels := make(map[int64]bool)
	var jumps []struct {
		index int
		label int64
	}

	index := 0
	for _, b := range m.Blocks {
		for _, in := range b.Instrs {
			v.verifyInstr(c, m, index, in)
			switch in.Op {
			case OpLbl:
				if labels[in.Operand] {
					v.fail(name, index, fmt.Sprintf("duplicate label L%d", in.Operand))
				}
				labels[in.Operand] = true
			case OpJmp:
				jumps = append(jumps, struct {
					index int
					label int64
				}{index, in.Operand})
			}
			index++
		}
	}

	for _, j := range jumps {
		if !labels[j.label] {
			v.fail(name, j.index, fmt.Sprintf("jump to unknown label L%d", j.label))
		}
	}
}

// verifyInstr 验证单条指令的操作数与操作码一致
func (v *Verifier) verifyInstr(c *Class, m *Method, index int, in Instr) {
	name := m.FullName()
	if !in.Op.Valid() || in.Op == OpNop {
		v.fail(name, index, fmt.Sprintf("invalid opcode %s", in.Op))
		return
	}

	switch {
	case in.Op.IsVariable():
		switch in.Ctx() {
		case CtxLocal:
			if in.Operand < 0 || int(in.Operand) >= m.Space {
				v.fail(name, index, fmt.Sprintf("%s: local slot %d outside space %d", in.Op, in.Operand, m.Space))
			}
		case CtxInstance:
			if in.Operand < 0 || int(in.Operand) >= c.InstanceSpace {
				v.fail(name, index, fmt.Sprintf("%s: instance slot %d outside space %d", in.Op, in.Operand, c.InstanceSpace))
			}
		case CtxClass:
			if in.Operand < 0 || int(in.Operand) >= c.ClassSpace {
				v.fail(name, index, fmt.Sprintf("%s: class slot %d outside space %d", in.Op, in.Operand, c.ClassSpace))
			}
		default:
			v.fail(name, index, fmt.Sprintf("%s: bad memory context %d", in.Op, in.Operand2))
		}

	case in.Op == OpJmp:
		if in.Operand2 < JumpAlways || in.Operand2 > JumpIfTrue {
			v.fail(name, index, fmt.Sprintf("JMP: bad condition %d", in.Operand2))
		}

	case in.Op == OpMthdCall || in.Op == OpAsyncMthdCall:
		if v.program.Method(int(in.Operand), int(in.Operand2)) == nil {
			v.fail(name, index, fmt.Sprintf("%s: no method %d:%d", in.Op, in.Operand, in.Operand2))
		}

	case in.Op == OpNewObjInst:
		if v.program.Class(int(in.Operand)) == nil {
			v.fail(name, index, fmt.Sprintf("NEW_OBJ_INST: no class %d", in.Operand))
		}

	case in.Op >= OpLoadByteAryElm && in.Op <= OpStorFloatAryElm,
		in.Op >= OpNewByteAry && in.Op <= OpNewFloatAry:
		if in.Operand < 1 {
			v.fail(name, index, fmt.Sprintf("%s: dimension %d", in.Op, in.Operand))
		}

	case in.Op == OpTrap || in.Op == OpTrapRtrn:
		if in.Operand < 1 {
			v.fail(name, index, fmt.Sprintf("%s: argument count %d", in.Op, in.Operand))
		}
	}
}
