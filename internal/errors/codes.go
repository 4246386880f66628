// Package errors 提供优化器、JIT 与解释器共用的诊断码和诊断类型
package errors

// ============================================================================
// 诊断级别
// ============================================================================

// Level 诊断级别
type Level int

const (
	LevelError   Level = iota // 错误
	LevelWarning              // 警告
	LevelNote                 // 提示
)

func (l Level) String() string {
	switch l {
	case LevelError:
		return "error"
	case LevelWarning:
		return "warning"
	case LevelNote:
		return "note"
	default:
		return "unknown"
	}
}

// ============================================================================
// 诊断码
// ============================================================================

const (
	// J0001-J0099: JIT 编译错误
	J0001 = "J0001" // 不支持的操作码
	J0002 = "J0002" // 寄存器耗尽
	J0003 = "J0003" // 操作数栈形状错误
	J0004 = "J0004" // 外部调用时仍有寄存器被占用
	J0005 = "J0005" // 浮点常量池已满
	J0006 = "J0006" // 可执行内存分配失败
	J0007 = "J0007" // 未配置外部调用入口

	// L0001-L0099: 链接错误
	L0001 = "L0001" // 未知标签
	L0002 = "L0002" // 重复标签

	// V0001-V0099: 程序验证错误
	V0001 = "V0001" // 无效操作码
	V0002 = "V0002" // 变量槽位越界
	V0003 = "V0003" // 调用目标不存在
	V0004 = "V0004" // 重复的类或方法 id
	V0005 = "V0005" // 操作数非法

	// R0001-R0099: 解释器运行时错误
	R0001 = "R0001" // 空引用
	R0002 = "R0002" // 数组下标越界
	R0003 = "R0003" // 除以零
	R0004 = "R0004" // 类型转换失败
	R0005 = "R0005" // 操作数栈溢出
	R0006 = "R0006" // 操作数栈下溢
	R0007 = "R0007" // 调用栈过深
	R0008 = "R0008" // 未知方法
	R0009 = "R0009" // 不支持的指令
	R0010 = "R0010" // 超出执行步数
	R0011 = "R0011" // 未注册的陷阱
)

// ============================================================================
// 诊断码信息
// ============================================================================

// ErrorInfo 诊断码信息
type ErrorInfo struct {
	Code     string // 诊断码
	Level    Level  // 级别
	Summary  string // 简短描述
	Category string // 分类
}

var infos = map[string]ErrorInfo{
	J0001: {J0001, LevelWarning, "unsupported opcode", "jit"},
	J0002: {J0002, LevelError, "register pool exhausted", "jit"},
	J0003: {J0003, LevelError, "malformed operand stack", "jit"},
	J0004: {J0004, LevelWarning, "registers live across call-out", "jit"},
	J0005: {J0005, LevelWarning, "float constant pool full", "jit"},
	J0006: {J0006, LevelError, "executable memory unavailable", "jit"},
	J0007: {J0007, LevelWarning, "no call-out entry", "jit"},

	L0001: {L0001, LevelError, "unknown label", "link"},
	L0002: {L0002, LevelError, "duplicate label", "link"},

	V0001: {V0001, LevelError, "invalid opcode", "verify"},
	V0002: {V0002, LevelError, "variable slot out of range", "verify"},
	V0003: {V0003, LevelError, "call target not found", "verify"},
	V0004: {V0004, LevelError, "duplicate id", "verify"},
	V0005: {V0005, LevelError, "invalid operand", "verify"},

	R0001: {R0001, LevelError, "nil dereference", "runtime"},
	R0002: {R0002, LevelError, "array index out of bounds", "runtime"},
	R0003: {R0003, LevelError, "division by zero", "runtime"},
	R0004: {R0004, LevelError, "invalid cast", "runtime"},
	R0005: {R0005, LevelError, "operand stack overflow", "runtime"},
	R0006: {R0006, LevelError, "operand stack underflow", "runtime"},
	R0007: {R0007, LevelError, "call stack overflow", "runtime"},
	R0008: {R0008, LevelError, "unknown method", "runtime"},
	R0009: {R0009, LevelError, "unsupported instruction", "runtime"},
	R0010: {R0010, LevelError, "step limit exceeded", "runtime"},
	R0011: {R0011, LevelError, "unknown trap", "runtime"},
}

// GetErrorInfo 获取诊断码信息
func GetErrorInfo(code string) (ErrorInfo, bool) {
	info, ok := infos[code]
	return info, ok
}

// IsRuntimeError 检查是否为解释器运行时诊断码
func IsRuntimeError(code string) bool {
	info, ok := infos[code]
	return ok && info.Category == "runtime"
}
