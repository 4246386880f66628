// result.go - 编译结果
//
// 编译只有三种结局：成功、回退到解释执行、内部错误。
// 发射代码深处用 bailout panic 中止，Compile 负责恢复并转换成 Result。

package jit

import (
	"fmt"

	"github.com/tangzhangming/objeck/internal/bytecode"
	jerrors "github.com/tangzhangming/objeck/internal/errors"
)

// Status 编译状态
type Status int

const (
	StatusSuccess  Status = iota // 生成了本地代码
	StatusFallback               // 无法编译，交给解释器
	StatusFatal                  // 生成器内部错误
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFallback:
		return "fallback"
	case StatusFatal:
		return "fatal"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Result 一次编译的结果
type Result struct {
	Status Status
	Method *bytecode.Method
	Code   []byte // 机器码，末尾是浮点常量池
	Err    error  // 非成功时为 *errors.Diagnostic

	CodeSize   int // 不含常量池的指令字节数
	PoolOffset int // 常量池在 Code 中的偏移
	FloatConst int // 常量池项数
	FrameSize  int // 局部空间字节数（不含保存的寄存器）
	Jumps      int // 回填的跳转数
	Callouts   int // 外部调用数
	PeakGP     int
	PeakXmm    int
}

// OK 是否生成了代码
func (r *Result) OK() bool {
	return r.Status == StatusSuccess
}

// DiagCode 非成功结果的诊断码
func (r *Result) DiagCode() string {
	return jerrors.CodeOf(r.Err)
}

// bailout 中止编译
type bailout struct {
	status Status
	code   string
	msg    string
}

// fail 以给定状态中止当前编译
func fail(status Status, code string, format string, args ...any) {
	panic(bailout{status: status, code: code, msg: fmt.Sprintf(format, args...)})
}
