// program.go - 程序、类、方法与基本块
//
// 上游前端产出 Program；优化器整体替换每个方法的块列表，
// 链接器把块列表展开成 JIT 与解释器使用的线性指令流。

package bytecode

import "fmt"

// ParamKind 参数/局部声明的种类
type ParamKind int

const (
	ParamInt ParamKind = iota
	ParamChar
	ParamFloat
	ParamObj
	ParamFunc
)

// Block 基本块：内部没有控制流汇合点
type Block struct {
	Instrs []Instr `cbor:"1,keyasint"`
}

// NewBlock 用给定指令创建基本块（复制切片）
func NewBlock(instrs ...Instr) Block {
	b := Block{Instrs: make([]Instr, len(instrs))}
	copy(b.Instrs, instrs)
	return b
}

// Add 追加一条指令
func (b *Block) Add(in Instr) {
	b.Instrs = append(b.Instrs, in)
}

// Len 指令数
func (b *Block) Len() int {
	return len(b.Instrs)
}

// Clone 深拷贝
func (b Block) Clone() Block {
	return NewBlock(b.Instrs...)
}

// Method 方法
type Method struct {
	ID       int         `cbor:"1,keyasint"`
	Name     string      `cbor:"2,keyasint"`
	Params   []ParamKind `cbor:"3,keyasint,omitempty"`
	Virtual  bool        `cbor:"4,keyasint,omitempty"`
	HasAndOr bool        `cbor:"5,keyasint,omitempty"` // 使用短路求值的临时槽位
	Space    int         `cbor:"6,keyasint,omitempty"` // 局部变量槽位数
	Return   MemoryType  `cbor:"7,keyasint,omitempty"`
	Blocks   []Block     `cbor:"8,keyasint"`

	// Class 所属类，由 Program.Bind 设置
	Class *Class `cbor:"-"`
}

// ParamCount 参数个数
func (m *Method) ParamCount() int {
	return len(m.Params)
}

// InstrCount 所有块的指令总数
func (m *Method) InstrCount() int {
	n := 0
	for i := range m.Blocks {
		n += len(m.Blocks[i].Instrs)
	}
	return n
}

// SetBlocks 替换块列表
func (m *Method) SetBlocks(blocks []Block) {
	m.Blocks = blocks
}

// FullName 类名:方法名
func (m *Method) FullName() string {
	if m.Class == nil {
		return m.Name
	}
	return m.Class.Name + ":" + m.Name
}

// Clone 深拷贝方法（不复制所属类）
func (m *Method) Clone() *Method {
	c := *m
	c.Params = append([]ParamKind(nil), m.Params...)
	c.Blocks = make([]Block, len(m.Blocks))
	for i, b := range m.Blocks {
		c.Blocks[i] = b.Clone()
	}
	return &c
}

// Class 类
type Class struct {
	ID            int       `cbor:"1,keyasint"`
	Name          string    `cbor:"2,keyasint"`
	Methods       []*Method `cbor:"3,keyasint"`
	InstanceSpace int       `cbor:"4,keyasint,omitempty"` // 实例字段槽位数
	ClassSpace    int       `cbor:"5,keyasint,omitempty"` // 静态字段槽位数
}

// Method 按 id 查找方法
func (c *Class) Method(id int) *Method {
	for _, m := range c.Methods {
		if m.ID == id {
			return m
		}
	}
	return nil
}

// Program 中间代码程序
type Program struct {
	Classes []*Class `cbor:"1,keyasint"`
}

// NewProgram 创建程序并绑定方法所属类
func NewProgram(classes ...*Class) *Program {
	p := &Program{Classes: classes}
	p.Bind()
	return p
}

// Bind 设置每个方法的 Class 反向引用
func (p *Program) Bind() {
	for _, c := range p.Classes {
		for _, m := range c.Methods {
			m.Class = c
		}
	}
}

// Class 按 id 查找类
func (p *Program) Class(id int) *Class {
	for _, c := range p.Classes {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// Method 按类 id 与方法 id 查找方法
func (p *Program) Method(cls, mthd int) *Method {
	c := p.Class(cls)
	if c == nil {
		return nil
	}
	return c.Method(mthd)
}

// Lookup 按 "类名:方法名" 查找方法
func (p *Program) Lookup(name string) (*Method, error) {
	for _, c := range p.Classes {
		for _, m := range c.Methods {
			if m.FullName() == name || m.Name == name {
				return m, nil
			}
		}
	}
	return nil, fmt.Errorf("method %q not found", name)
}

// Methods 按类、方法顺序列出全部方法
func (p *Program) Methods() []*Method {
	var out []*Method
	for _, c := range p.Classes {
		out = append(out, c.Methods...)
	}
	return out
}
