package optimizer

// LabelAllocator 为内联展开分配私有标签 id
//
// 分配出的 id 为负数且严格递减，不会与前端产生的非负标签冲突。
// 每个内联点通过 Scope 打开独立的映射，同一被调方法在不同调用点
// 展开时得到互不相交的标签。
type LabelAllocator struct {
	next   int64
	issued int
}

// NewLabelAllocator 创建标签分配器
func NewLabelAllocator() *LabelAllocator {
	return &LabelAllocator{next: -1}
}

// Below 保证之后分配的 id 都小于 id
func (a *LabelAllocator) Below(id int64) {
	if id <= a.next {
		a.next = id - 1
	}
}

// Issued 已分配的标签数
func (a *LabelAllocator) Issued() int {
	return a.issued
}

// Scope 为一个内联点打开新的映射
func (a *LabelAllocator) Scope() *LabelScope {
	return &LabelScope{alloc: a, ids: make(map[int64]int64)}
}

// LabelScope 单个内联点内的标签映射
type LabelScope struct {
	alloc *LabelAllocator
	ids   map[int64]int64
}

// Map 返回原标签在本作用域内的新 id
func (s *LabelScope) Map(id int64) int64 {
	if v, ok := s.ids[id]; ok {
		return v
	}
	v := s.alloc.next
	s.alloc.next--
	s.alloc.issued++
	s.ids[id] = v
	return v
}
