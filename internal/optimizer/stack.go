package optimizer

import "github.com/tangzhangming/objeck/internal/bytecode"

// workStack 优化遍使用的暂存栈
//
// 栈顶对应最后压入的指令。flush 按压入顺序把暂存指令写回输出，
// 因此任何未被改写的指令都保持原有顺序。
type workStack struct {
	items []bytecode.Instr
}

func (s *workStack) push(in bytecode.Instr) {
	s.items = append(s.items, in)
}

func (s *workStack) pop() bytecode.Instr {
	in := s.items[len(s.items)-1]
	s.items = s.items[:len(s.items)-1]
	return in
}

func (s *workStack) top() bytecode.Instr {
	return s.items[len(s.items)-1]
}

func (s *workStack) len() int {
	return len(s.items)
}

func (s *workStack) empty() bool {
	return len(s.items) == 0
}

// flush 按原顺序写回全部暂存指令
func (s *workStack) flush(out *bytecode.Block) {
	for _, in := range s.items {
		out.Add(in)
	}
	s.items = s.items[:0]
}
