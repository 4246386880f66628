//go:build !amd64

// call_other.go - 非 amd64 平台不能执行生成的代码

package jit

import "errors"

// ErrNotInstalled 代码尚未安装到可执行内存
var ErrNotInstalled = errors.New("jit: code is not installed")

// ErrUnsupportedArch 当前平台不能执行 x86-64 代码
var ErrUnsupportedArch = errors.New("jit: native calls need amd64")

// CallResult 本地调用结果
type CallResult struct {
	Exit  int64
	Stack []uint64
}

// Top 操作数栈顶；栈为空时为 0
func (r CallResult) Top() uint64 {
	if len(r.Stack) == 0 {
		return 0
	}
	return r.Stack[len(r.Stack)-1]
}

// Call 在非 amd64 平台上总是失败
func (n *NativeCode) Call(cls, mthd int, self uintptr, args ...uint64) (CallResult, error) {
	if n == nil || n.Entry == 0 {
		return CallResult{}, ErrNotInstalled
	}
	return CallResult{}, ErrUnsupportedArch
}
