//go:build amd64

// call_amd64.go - 从 Go 进入本地代码
//
// 本地代码按 System V 约定接收入口参数，运行在单独映射的栈上。
// 操作数栈与调用栈放在 Go 堆对象里，调用期间由 nativeFrame 持有。

package jit

import (
	"errors"
	"fmt"
	"runtime"
	"unsafe"
)

const (
	nativeStackSize  = 64 << 10
	operandStackSize = 512
	callStackSize    = 64
)

// ErrNotInstalled 代码尚未安装到可执行内存
var ErrNotInstalled = errors.New("jit: code is not installed")

// nativeArgs 入口参数；字段偏移与 call_amd64.s 一致，不要调整顺序
type nativeArgs struct {
	ClsID        int64   // 0
	MthdID       int64   // 8
	ClassMem     uintptr // 16
	Instance     uintptr // 24
	OpStack      uintptr // 32
	StackPos     uintptr // 40
	CallStack    uintptr // 48
	CallStackPos uintptr // 56
	JitMem       uintptr // 64
	JitOffset    uintptr // 72
	StackTop     uintptr // 80
}

// nativeFrame 一次调用用到的全部内存
type nativeFrame struct {
	args    nativeArgs
	pos     int64
	callPos int64
	ops     [operandStackSize]uint64
	calls   [callStackSize]uint64
}

// callNative 切换到 args.StackTop 并调用 entry，返回出口码
func callNative(entry uintptr, args *nativeArgs) int64

// CallResult 本地调用结果
type CallResult struct {
	Exit  int64    // 出口码：0 正常，-1 空引用，-2/-3 越界，-4 除零
	Stack []uint64 // 返回时操作数栈的内容，栈顶在末尾
}

// Top 操作数栈顶；栈为空时为 0
func (r CallResult) Top() uint64 {
	if len(r.Stack) == 0 {
		return 0
	}
	return r.Stack[len(r.Stack)-1]
}

// Call 在当前线程上执行本地方法
//
// args 按参数顺序给出，与解释器的 Invoke 相同；self 为实例内存地址，
// 由调用者保证在调用期间有效。
func (n *NativeCode) Call(cls, mthd int, self uintptr, args ...uint64) (CallResult, error) {
	if n == nil || n.Entry == 0 {
		return CallResult{}, ErrNotInstalled
	}
	if len(args) > operandStackSize {
		return CallResult{}, fmt.Errorf("jit: %d arguments exceed the operand stack", len(args))
	}

	stack, err := allocWritable(nativeStackSize)
	if err != nil {
		return CallResult{}, fmt.Errorf("jit: allocate native stack: %w", err)
	}
	defer freePages(stack)

	f := new(nativeFrame)
	// 方法开头的 STOR 依次弹出参数，第一个参数在栈顶
	for i := len(args) - 1; i >= 0; i-- {
		f.ops[f.pos] = args[i]
		f.pos++
	}
	f.args = nativeArgs{
		ClsID:        int64(cls),
		MthdID:       int64(mthd),
		Instance:     self,
		OpStack:      uintptr(unsafe.Pointer(&f.ops[0])),
		StackPos:     uintptr(unsafe.Pointer(&f.pos)),
		CallStack:    uintptr(unsafe.Pointer(&f.calls[0])),
		CallStackPos: uintptr(unsafe.Pointer(&f.callPos)),
		StackTop:     entryOf(stack) + uintptr(len(stack)),
	}

	exit := callNative(n.Entry, &f.args)
	runtime.KeepAlive(f)

	if f.pos < 0 || f.pos > operandStackSize {
		return CallResult{Exit: exit}, fmt.Errorf("jit: operand stack position %d after %s", f.pos, n.Method)
	}
	res := CallResult{Exit: exit, Stack: make([]uint64, f.pos)}
	copy(res.Stack, f.ops[:f.pos])
	return res, nil
}
