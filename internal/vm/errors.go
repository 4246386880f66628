package vm

import (
	"errors"
	"fmt"

	objerr "github.com/tangzhangming/objeck/internal/errors"
)

// 运行时错误
var (
	ErrNilDereference = errors.New("nil dereference")
	ErrIndexBounds    = errors.New("array index out of bounds")
	ErrDivideByZero   = errors.New("division by zero")
	ErrInvalidCast    = errors.New("invalid cast")
	ErrStackOverflow  = errors.New("stack overflow")
	ErrStackUnderflow = errors.New("stack underflow")
	ErrCallDepth      = errors.New("call stack too deep")
	ErrUnknownMethod  = errors.New("unknown method")
	ErrUnsupported    = errors.New("unsupported instruction")
	ErrStepLimit      = errors.New("step limit exceeded")
	ErrUnknownTrap    = errors.New("unknown trap")
)

var codes = map[error]string{
	ErrNilDereference: objerr.R0001,
	ErrIndexBounds:    objerr.R0002,
	ErrDivideByZero:   objerr.R0003,
	ErrInvalidCast:    objerr.R0004,
	ErrStackOverflow:  objerr.R0005,
	ErrStackUnderflow: objerr.R0006,
	ErrCallDepth:      objerr.R0007,
	ErrUnknownMethod:  objerr.R0008,
	ErrUnsupported:    objerr.R0009,
	ErrStepLimit:      objerr.R0010,
	ErrUnknownTrap:    objerr.R0011,
}

// RuntimeError 解释执行时的错误
type RuntimeError struct {
	Err    error  // 哨兵错误
	Method string // 出错的方法
	Index  int    // 指令下标
	Line   int    // 源码行号
	Detail string
}

func (e *RuntimeError) Error() string {
	msg := e.Err.Error()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Method == "" {
		return msg
	}
	return fmt.Sprintf("%s@%d (line %d): %s", e.Method, e.Index, e.Line, msg)
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// Code 诊断码
func (e *RuntimeError) Code() string {
	return codes[e.Err]
}

// Diagnostic 转换为通用诊断
func (e *RuntimeError) Diagnostic() *objerr.Diagnostic {
	return objerr.Wrap(e.Code(), e.Method, e.Index, e).AtLine(e.Line)
}

// fault 构造带当前位置的运行时错误
func (vm *VM) fault(err error, detail string) *RuntimeError {
	re := &RuntimeError{Err: err, Index: -1, Detail: detail}
	if f := vm.frame(); f != nil {
		re.Method = f.Method.Name()
		re.Index = f.IP
		if f.IP >= 0 && f.IP < len(f.Method.Instrs) {
			re.Line = f.Method.Instrs[f.IP].Line
		}
	}
	return re
}
