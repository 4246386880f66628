// vm.go - 参考解释器
//
// 直接执行链接后的中间代码。用途：
//   - JIT 返回 StatusFallback 时的执行目标
//   - 优化前后语义等价的判定依据
//
// 值模型：操作数栈与所有内存单元都是 uint64；浮点按 IEEE 位模式存放，
// 对象与数组是堆句柄（下标 + 1，0 表示 nil），函数引用占两个单元。

package vm

import (
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/tangzhangming/objeck/internal/bytecode"
)

// ============================================================================
// VM 核心结构
// ============================================================================

// StackSize 默认操作数栈大小
const StackSize = 4096

// CallStackSize 默认调用栈深度
const CallStackSize = 512

// VM 解释器
type VM struct {
	program *bytecode.Program

	// 操作数栈（所有帧共享）
	stack []uint64

	// 调用栈
	frames []*Frame

	// 堆：对象、数组、类内存
	heap     []heapEntry
	classMem map[int]uint64

	// 已链接的方法
	linked map[*bytecode.Method]*bytecode.StackMethod

	traps map[int64]TrapFunc
	out   io.Writer

	stepLimit uint64
	logger    *zap.Logger
	stats     Stats
}

// Frame 调用帧
type Frame struct {
	Method *bytecode.StackMethod
	Self   uint64   // 当前实例句柄
	Locals []uint64 // 局部变量
	IP     int      // 当前指令下标
}

// Stats 解释器统计
type Stats struct {
	InstructionsExecuted uint64 `json:"instructions_executed"`
	MethodCalls          uint64 `json:"method_calls"`
	Allocations          uint64 `json:"allocations"`
	Traps                uint64 `json:"traps"`
}

// Option 解释器选项
type Option func(*VM)

// WithOutput 设置陷阱输出目标
func WithOutput(w io.Writer) Option {
	return func(vm *VM) { vm.out = w }
}

// WithTrap 注册陷阱处理函数，覆盖同号的内置陷阱
func WithTrap(id int64, fn TrapFunc) Option {
	return func(vm *VM) { vm.traps[id] = fn }
}

// WithStepLimit 限制执行的指令总数，0 表示不限制
func WithStepLimit(n uint64) Option {
	return func(vm *VM) { vm.stepLimit = n }
}

// WithLogger 设置日志
func WithLogger(l *zap.Logger) Option {
	return func(vm *VM) {
		if l != nil {
			vm.logger = l
		}
	}
}

// ============================================================================
// VM 生命周期
// ============================================================================

// New 创建解释器
func New(program *bytecode.Program, opts ...Option) *VM {
	vm := &VM{
		program:  program,
		stack:    make([]uint64, 0, StackSize),
		classMem: make(map[int]uint64),
		linked:   make(map[*bytecode.Method]*bytecode.StackMethod),
		traps:    make(map[int64]TrapFunc),
		out:      os.Stdout,
		logger:   zap.NewNop(),
	}
	registerBuiltinTraps(vm)
	for _, opt := range opts {
		opt(vm)
	}
	return vm
}

// Reset 清空栈与堆，保留已链接的方法
func (vm *VM) Reset() {
	vm.stack = vm.stack[:0]
	vm.frames = vm.frames[:0]
	vm.heap = vm.heap[:0]
	vm.classMem = make(map[int]uint64)
	vm.stats = Stats{}
}

// Stats 获取统计信息
func (vm *VM) Stats() Stats {
	return vm.stats
}

// Program 正在执行的程序
func (vm *VM) Program() *bytecode.Program {
	return vm.program
}

// StackDepth 操作数栈深度
func (vm *VM) StackDepth() int {
	return len(vm.stack)
}

// ============================================================================
// 栈操作
// ============================================================================

func (vm *VM) push(v uint64) {
	if len(vm.stack) >= StackSize {
		panic(vm.fault(ErrStackOverflow, "operand stack"))
	}
	vm.stack = append(vm.stack, v)
}

func (vm *VM) pop() uint64 {
	n := len(vm.stack)
	if n == 0 {
		panic(vm.fault(ErrStackUnderflow, "operand stack"))
	}
	v := vm.stack[n-1]
	vm.stack = vm.stack[:n-1]
	return v
}

func (vm *VM) top() uint64 {
	if len(vm.stack) == 0 {
		panic(vm.fault(ErrStackUnderflow, "operand stack"))
	}
	return vm.stack[len(vm.stack)-1]
}

func (vm *VM) pushInt(v int64) { vm.push(uint64(v)) }
func (vm *VM) popInt() int64   { return int64(vm.pop()) }

func (vm *VM) pushBool(b bool) {
	if b {
		vm.push(1)
	} else {
		vm.push(0)
	}
}

// ============================================================================
// 调用入口
// ============================================================================

// Invoke 执行方法并返回返回值（无返回值时为 0）
//
// args 按参数顺序给出；self 为实例句柄，静态调用传 0。
func (vm *VM) Invoke(cls, mthd int, self uint64, args ...uint64) (v uint64, err error) {
	m := vm.program.Method(cls, mthd)
	if m == nil {
		return 0, &RuntimeError{Err: ErrUnknownMethod, Method: "", Index: -1}
	}

	defer func() {
		if r := recover(); r != nil {
			re, ok := r.(*RuntimeError)
			if !ok {
				panic(r)
			}
			vm.frames = vm.frames[:0]
			vm.stack = vm.stack[:0]
			err = re
		}
	}()

	base := len(vm.stack)
	// 方法开头的 STOR 依次弹出参数，第一个参数必须在栈顶
	for i := len(args) - 1; i >= 0; i-- {
		vm.push(args[i])
	}
	vm.call(m, self)

	switch m.Return {
	case bytecode.TypeInt, bytecode.TypeFloat:
		if len(vm.stack) > base {
			v = vm.pop()
		}
	case bytecode.TypeFunc:
		if len(vm.stack) > base+1 {
			v = vm.pop()
			vm.pop()
		}
	}
	vm.stack = vm.stack[:base]
	return v, nil
}

// InvokeName 按 "类名:方法名" 执行方法
func (vm *VM) InvokeName(name string, self uint64, args ...uint64) (uint64, error) {
	m, err := vm.program.Lookup(name)
	if err != nil {
		return 0, &RuntimeError{Err: ErrUnknownMethod, Method: name, Index: -1}
	}
	return vm.Invoke(m.Class.ID, m.ID, self, args...)
}

// link 取得方法的链接结果
func (vm *VM) link(m *bytecode.Method) *bytecode.StackMethod {
	if sm, ok := vm.linked[m]; ok {
		return sm
	}
	sm, err := bytecode.Link(m)
	if err != nil {
		panic(&RuntimeError{Err: err, Method: m.FullName(), Index: -1})
	}
	vm.linked[m] = sm
	return sm
}

// Invalidate 丢弃方法的链接结果（方法块列表被替换后调用）
func (vm *VM) Invalidate(m *bytecode.Method) {
	delete(vm.linked, m)
}

// call 在当前栈上执行方法直至 RTRN
func (vm *VM) call(m *bytecode.Method, self uint64) {
	if len(vm.frames) >= CallStackSize {
		panic(vm.fault(ErrCallDepth, m.FullName()))
	}
	sm := vm.link(m)
	// 函数引用占用 id 与 id+1 两个单元
	f := &Frame{Method: sm, Self: self, Locals: make([]uint64, m.Space+1)}
	vm.frames = append(vm.frames, f)
	vm.stats.MethodCalls++

	vm.run(f)

	vm.frames = vm.frames[:len(vm.frames)-1]
}

func (vm *VM) frame() *Frame {
	if len(vm.frames) == 0 {
		return nil
	}
	return vm.frames[len(vm.frames)-1]
}
