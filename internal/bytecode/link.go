// link.go - 跳转定位与线性化
//
// 把方法的块列表展开成一条线性指令流，并把标签 id 解析成指令下标。
// JIT 与解释器都只消费链接后的 StackMethod。

package bytecode

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownLabel 跳转目标标签不存在
	ErrUnknownLabel = errors.New("unknown label")
	// ErrDuplicateLabel 同一方法内标签 id 重复
	ErrDuplicateLabel = errors.New("duplicate label")
)

// StackMethod 链接后的方法
type StackMethod struct {
	Method *Method
	Instrs []Instr

	labels  map[int64]int
	targets []int // 每条跳转指令的目标下标，非跳转为 -1
}

// Link 线性化方法并解析全部跳转
func Link(m *Method) (*StackMethod, error) {
	sm := &StackMethod{
		Method: m,
		Instrs: make([]Instr, 0, m.InstrCount()),
		labels: make(map[int64]int),
	}
	for i := range m.Blocks {
		sm.Instrs = append(sm.Instrs, m.Blocks[i].Instrs...)
	}

	for i, in := range sm.Instrs {
		if in.Op != OpLbl {
			continue
		}
		if _, dup := sm.labels[in.Operand]; dup {
			return nil, fmt.Errorf("%s: L%d: %w", m.FullName(), in.Operand, ErrDuplicateLabel)
		}
		sm.labels[in.Operand] = i
	}

	sm.targets = make([]int, len(sm.Instrs))
	for i, in := range sm.Instrs {
		sm.targets[i] = -1
		if in.Op != OpJmp {
			continue
		}
		idx, ok := sm.labels[in.Operand]
		if !ok {
			return nil, fmt.Errorf("%s: jump at %d to L%d: %w", m.FullName(), i, in.Operand, ErrUnknownLabel)
		}
		sm.targets[i] = idx
	}
	return sm, nil
}

// Len 指令数
func (sm *StackMethod) Len() int {
	return len(sm.Instrs)
}

// Target 第 i 条跳转指令的目标下标（目标是 LBL 指令本身）
func (sm *StackMethod) Target(i int) int {
	if i < 0 || i >= len(sm.targets) {
		return -1
	}
	return sm.targets[i]
}

// Label 标签 id 对应的指令下标
func (sm *StackMethod) Label(id int64) (int, bool) {
	idx, ok := sm.labels[id]
	return idx, ok
}

// Name 方法全名
func (sm *StackMethod) Name() string {
	return sm.Method.FullName()
}
