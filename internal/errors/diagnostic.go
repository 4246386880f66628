package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ============================================================================
// 诊断
// ============================================================================

// Diagnostic 带诊断码与位置的错误
type Diagnostic struct {
	Code    string // 诊断码 (J0002)
	Method  string // 类名:方法名
	Index   int    // 指令下标，-1 表示整个方法
	Line    int    // 源码行号，0 表示未知
	Message string
	Err     error // 被包装的错误，可为空
}

// New 创建诊断
func New(code, method string, index int, format string, args ...any) *Diagnostic {
	return &Diagnostic{
		Code:    code,
		Method:  method,
		Index:   index,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap 用诊断包装错误；err 为 nil 时返回 nil
func Wrap(code, method string, index int, err error) *Diagnostic {
	if err == nil {
		return nil
	}
	return &Diagnostic{Code: code, Method: method, Index: index, Message: err.Error(), Err: err}
}

// AtLine 设置行号并返回自身
func (d *Diagnostic) AtLine(line int) *Diagnostic {
	d.Line = line
	return d
}

// Error 实现 error 接口
func (d *Diagnostic) Error() string {
	var sb strings.Builder
	sb.WriteString(d.Code)
	if d.Method != "" {
		sb.WriteString(" ")
		sb.WriteString(d.Method)
		if d.Index >= 0 {
			fmt.Fprintf(&sb, "@%d", d.Index)
		}
	}
	if d.Line > 0 {
		fmt.Fprintf(&sb, " (line %d)", d.Line)
	}
	sb.WriteString(": ")
	sb.WriteString(d.Message)
	return sb.String()
}

// Unwrap 支持 errors.Is / errors.As
func (d *Diagnostic) Unwrap() error {
	return d.Err
}

// CodeOf 取出错误链中第一个诊断的诊断码
func CodeOf(err error) string {
	var d *Diagnostic
	if errors.As(err, &d) {
		return d.Code
	}
	return ""
}

// ============================================================================
// 格式化
// ============================================================================

// Formatter 诊断格式化器
type Formatter struct {
	Colors bool // 是否使用颜色
}

// NewFormatter 创建默认格式化器
func NewFormatter() *Formatter {
	return &Formatter{Colors: ColorsEnabled()}
}

func (f *Formatter) colorize(s string, c Color) string {
	if !f.Colors {
		return s
	}
	return Colorize(s, c)
}

func (f *Formatter) levelColor(l Level) Color {
	switch l {
	case LevelError:
		return ColorBoldRed
	case LevelWarning:
		return ColorBoldYellow
	default:
		return ColorBoldCyan
	}
}

// Format 格式化一条诊断
//
//	error[J0002]: register pool exhausted
//	 --> Test:Run:i,@12 (line 4)
func (f *Formatter) Format(d *Diagnostic) string {
	level := LevelError
	if info, ok := GetErrorInfo(d.Code); ok {
		level = info.Level
	}

	var sb strings.Builder
	head := f.colorize(fmt.Sprintf("%s[%s]", level, d.Code), f.levelColor(level))
	fmt.Fprintf(&sb, "%s: %s\n", head, d.Message)

	if d.Method != "" {
		loc := d.Method
		if d.Index >= 0 {
			loc += fmt.Sprintf("@%d", d.Index)
		}
		if d.Line > 0 {
			loc += fmt.Sprintf(" (line %d)", d.Line)
		}
		fmt.Fprintf(&sb, " %s %s\n", f.colorize("-->", ColorCyan), f.colorize(loc, ColorCyan))
	}
	return sb.String()
}

// FormatError 格式化任意错误；链中没有诊断时按普通错误输出
func (f *Formatter) FormatError(err error) string {
	var d *Diagnostic
	if errors.As(err, &d) {
		return f.Format(d)
	}
	return f.colorize("error", ColorBoldRed) + ": " + err.Error() + "\n"
}
