package errors

import (
	"os"
	"runtime"
	"strings"
)

// Color 终端颜色
type Color int

const (
	ColorReset Color = iota
	ColorRed
	ColorGreen
	ColorYellow
	ColorBlue
	ColorMagenta
	ColorCyan
	ColorWhite
	ColorBoldRed
	ColorBoldGreen
	ColorBoldYellow
	ColorBoldCyan
)

// ANSI 颜色代码
var ansiCodes = map[Color]string{
	ColorReset:      "\033[0m",
	ColorRed:        "\033[31m",
	ColorGreen:      "\033[32m",
	ColorYellow:     "\033[33m",
	ColorBlue:       "\033[34m",
	ColorMagenta:    "\033[35m",
	ColorCyan:       "\033[36m",
	ColorWhite:      "\033[37m",
	ColorBoldRed:    "\033[1;31m",
	ColorBoldGreen:  "\033[1;32m",
	ColorBoldYellow: "\033[1;33m",
	ColorBoldCyan:   "\033[1;36m",
}

// colorsEnabled 是否启用颜色
var colorsEnabled = detectColorSupport()

// detectColorSupport 检测终端是否支持颜色
func detectColorSupport() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	term := os.Getenv("TERM")
	if runtime.GOOS == "windows" {
		// Windows 10 1511+ 支持 ANSI
		return term != "" && term != "dumb" || os.Getenv("WT_SESSION") != ""
	}
	if term == "" || term == "dumb" {
		return false
	}
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

// ColorsEnabled 是否启用颜色
func ColorsEnabled() bool {
	return colorsEnabled
}

// SetColorsEnabled 设置是否启用颜色
func SetColorsEnabled(enabled bool) {
	colorsEnabled = enabled
}

// Colorize 给字符串着色
func Colorize(s string, color Color) string {
	if !colorsEnabled {
		return s
	}
	return ansiCodes[color] + s + ansiCodes[ColorReset]
}

// Red 红色
func Red(s string) string { return Colorize(s, ColorRed) }

// Green 绿色
func Green(s string) string { return Colorize(s, ColorGreen) }

// Yellow 黄色
func Yellow(s string) string { return Colorize(s, ColorYellow) }

// Cyan 青色
func Cyan(s string) string { return Colorize(s, ColorCyan) }

// BoldRed 加粗红色
func BoldRed(s string) string { return Colorize(s, ColorBoldRed) }

// BoldGreen 加粗绿色
func BoldGreen(s string) string { return Colorize(s, ColorBoldGreen) }

// Strip 移除 ANSI 颜色代码
func Strip(s string) string {
	result := s
	for _, code := range ansiCodes {
		result = strings.ReplaceAll(result, code, "")
	}
	return result
}

// ============================================================================
// 指令清单高亮
// ============================================================================

// HighlightListing 高亮中间代码清单的一行
//
// 指令行格式为 "下标 行号 助记符 操作数..."：助记符黄色，标签青色，数字品红。
// 其它行原样返回。
func HighlightListing(line string) string {
	if !colorsEnabled {
		return line
	}
	fields := strings.Fields(line)
	if len(fields) < 3 || !isNumber(fields[0]) || !isNumber(fields[1]) {
		return line
	}

	var sb strings.Builder
	sb.WriteString(line[:strings.Index(line, fields[2])])
	sb.WriteString(Colorize(fields[2], ColorYellow))
	for _, f := range fields[3:] {
		sb.WriteString(" ")
		switch {
		case len(f) > 1 && f[0] == 'L' && (isDigit(f[1]) || f[1] == '-'):
			sb.WriteString(Colorize(f, ColorCyan))
		case isNumber(strings.TrimSuffix(f, ",")):
			sb.WriteString(Colorize(f, ColorMagenta))
		default:
			sb.WriteString(f)
		}
	}
	return sb.String()
}

func isNumber(s string) bool {
	s = strings.TrimPrefix(s, "-")
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isDigit(s[i]) && s[i] != '.' {
			return false
		}
	}
	return true
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}
