package bytecode

import (
	"fmt"
	"strings"
)

// ============================================================================
// 程序镜像文件格式定义
// ============================================================================

const (
	// ImageFileExtension 程序镜像文件后缀
	ImageFileExtension = ".obc"

	// MagicNumber 文件魔数 "OBJK" in ASCII
	MagicNumber uint32 = 0x4F424A4B

	// 版本号
	MajorVersion uint8 = 1
	MinorVersion uint8 = 0

	// HeaderSize 头部大小: 魔数(4) + 主版本(1) + 次版本(1)
	HeaderSize = 6
)

// ============================================================================
// 文本列表
// ============================================================================

// Format 生成方法的中间代码列表
func Format(m *Method) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "== %s (params=%d, space=%d, return=%s) ==\n",
		m.FullName(), m.ParamCount(), m.Space, m.Return)

	index := 0
	for bi, b := range m.Blocks {
		fmt.Fprintf(&sb, "-- block %d --\n", bi)
		for _, in := range b.Instrs {
			fmt.Fprintf(&sb, "%4d  %-4d %s\n", index, in.Line, in)
			index++
		}
	}
	return sb.String()
}

// FormatProgram 生成整个程序的列表
func FormatProgram(p *Program) string {
	var sb strings.Builder
	for _, c := range p.Classes {
		fmt.Fprintf(&sb, "class %s (id=%d, inst=%d, cls=%d)\n", c.Name, c.ID, c.InstanceSpace, c.ClassSpace)
		for _, m := range c.Methods {
			sb.WriteString(Format(m))
		}
	}
	return sb.String()
}
