// disasm.go - 机器码反汇编
//
// 调试输出与测试都通过 x86asm 解码生成的代码。

package jit

import (
	"fmt"
	"strings"

	"golang.org/x/arch/x86/x86asm"
)

// Line 一条反汇编结果
type Line struct {
	Offset int
	Bytes  []byte
	Inst   x86asm.Inst
	Text   string // Intel 语法
}

func (l Line) String() string {
	return fmt.Sprintf("%6x  %-24x %s", l.Offset, l.Bytes, l.Text)
}

// Disassemble 解码 code[:size]；base 为显示用的起始地址
//
// 无法解码的字节作为 "(bad)" 单独成行，继续向后解码。
func Disassemble(code []byte, base uint64) []Line {
	var lines []Line
	for off := 0; off < len(code); {
		inst, err := x86asm.Decode(code[off:], 64)
		if err != nil || inst.Len == 0 {
			lines = append(lines, Line{Offset: off, Bytes: code[off : off+1], Text: "(bad)"})
			off++
			continue
		}
		lines = append(lines, Line{
			Offset: off,
			Bytes:  code[off : off+inst.Len],
			Inst:   inst,
			Text:   x86asm.IntelSyntax(inst, base+uint64(off), nil),
		})
		off += inst.Len
	}
	return lines
}

// Listing 反汇编结果的文本形式
func (r *Result) Listing() string {
	if !r.OK() {
		return ""
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "; %s  code=%d pool=%d frame=%d\n",
		r.Method.FullName(), r.CodeSize, r.FloatConst, r.FrameSize)
	for _, l := range Disassemble(r.Code[:r.CodeSize], 0) {
		sb.WriteString(l.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}
