// opcode.go - 栈式中间代码操作码
//
// 中间代码是栈式的：操作数先压入求值栈，运算指令再弹出。
// 二元运算约定左操作数位于栈顶（最后压入），右操作数在其下方。

package bytecode

import "fmt"

// Opcode 操作码类型
type Opcode uint16

const (
	OpNop Opcode = iota

	// 字面量
	OpLoadIntLit   // 压入整数字面量 (Operand)
	OpLoadCharLit  // 压入字符字面量 (Operand)
	OpLoadFloatLit // 压入浮点字面量 (FloatOperand)

	// 变量 (Operand: 变量 id, Operand2: 内存上下文)
	OpLoadIntVar
	OpLoadFloatVar
	OpLoadFuncVar // 函数引用占两个字
	OpStorIntVar
	OpStorFloatVar
	OpStorFuncVar
	OpCopyIntVar   // 存储但保留栈顶
	OpCopyFloatVar // 存储但保留栈顶
	OpLoadInstMem  // 压入当前实例指针
	OpLoadClsMem   // 压入类内存指针

	// 数组元素 (Operand: 维数)
	OpLoadByteAryElm
	OpLoadCharAryElm
	OpLoadIntAryElm
	OpLoadFloatAryElm
	OpStorByteAryElm
	OpStorCharAryElm
	OpStorIntAryElm
	OpStorFloatAryElm
	OpLoadArySize

	// 数组分配与批量操作
	OpNewByteAry // Operand: 维数
	OpNewCharAry
	OpNewIntAry
	OpNewFloatAry
	OpCpyByteAry
	OpCpyCharAry
	OpCpyIntAry
	OpCpyFloatAry
	OpZeroByteAry
	OpZeroCharAry
	OpZeroIntAry
	OpZeroFloatAry

	// 整数运算
	OpAndInt // 逻辑与
	OpOrInt  // 逻辑或
	OpAddInt
	OpSubInt
	OpMulInt
	OpDivInt
	OpModInt
	OpBitAndInt
	OpBitOrInt
	OpBitXorInt
	OpBitNotInt
	OpShlInt
	OpShrInt
	OpDivPow2Int // 除以 2^右操作数，向零取整

	// 整数比较
	OpLesInt
	OpGtrInt
	OpLesEqlInt
	OpGtrEqlInt
	OpEqlInt
	OpNeqlInt

	// 浮点运算
	OpAddFloat
	OpSubFloat
	OpMulFloat
	OpDivFloat
	OpModFloat
	OpPowFloat
	OpAtan2Float
	OpSqrtFloat
	OpRoundFloat
	OpCeilFloat
	OpFlorFloat
	OpSinFloat
	OpCosFloat
	OpTanFloat
	OpLogFloat
	OpExpFloat
	OpRandFloat

	// 浮点比较
	OpLesFloat
	OpGtrFloat
	OpLesEqlFloat
	OpGtrEqlFloat
	OpEqlFloat
	OpNeqlFloat

	// 类型转换
	OpF2I
	OpI2F
	OpI2S
	OpS2I
	OpF2S
	OpS2F

	// 对象
	OpNewObjInst // Operand: 类 id
	OpObjTypeOf
	OpObjInstCast

	// 调用
	OpMthdCall      // Operand: 类 id, Operand2: 方法 id
	OpDynMthdCall   // Operand: 参数个数, Operand2: 返回类型
	OpAsyncMthdCall // Operand: 类 id, Operand2: 方法 id
	OpLibNewObjInst // StrOperand: 类名
	OpLibMthdCall   // StrOperand: 类名, StrOperand2: 方法名
	OpLibObjInstCast

	// 系统原语
	OpDllLoad
	OpDllUnload
	OpDllFuncCall
	OpThreadJoin
	OpThreadSleep
	OpThreadMutex
	OpCriticalStart
	OpCriticalEnd

	// 控制流
	OpJmp  // Operand: 标签 id, Operand2: -1 无条件，否则为比较值
	OpLbl  // Operand: 标签 id
	OpRtrn // 返回
	OpTrap // Operand: 参数个数（含陷阱号）
	OpTrapRtrn

	// 栈操作
	OpPopInt
	OpPopFloat
	OpSwapInt

	opcodeCount
)

var opNames = [...]string{
	OpNop: "NOP",

	OpLoadIntLit:   "LOAD_INT_LIT",
	OpLoadCharLit:  "LOAD_CHAR_LIT",
	OpLoadFloatLit: "LOAD_FLOAT_LIT",

	OpLoadIntVar:   "LOAD_INT_VAR",
	OpLoadFloatVar: "LOAD_FLOAT_VAR",
	OpLoadFuncVar:  "LOAD_FUNC_VAR",
	OpStorIntVar:   "STOR_INT_VAR",
	OpStorFloatVar: "STOR_FLOAT_VAR",
	OpStorFuncVar:  "STOR_FUNC_VAR",
	OpCopyIntVar:   "COPY_INT_VAR",
	OpCopyFloatVar: "COPY_FLOAT_VAR",
	OpLoadInstMem:  "LOAD_INST_MEM",
	OpLoadClsMem:   "LOAD_CLS_MEM",

	OpLoadByteAryElm:  "LOAD_BYTE_ARY_ELM",
	OpLoadCharAryElm:  "LOAD_CHAR_ARY_ELM",
	OpLoadIntAryElm:   "LOAD_INT_ARY_ELM",
	OpLoadFloatAryElm: "LOAD_FLOAT_ARY_ELM",
	OpStorByteAryElm:  "STOR_BYTE_ARY_ELM",
	OpStorCharAryElm:  "STOR_CHAR_ARY_ELM",
	OpStorIntAryElm:   "STOR_INT_ARY_ELM",
	OpStorFloatAryElm: "STOR_FLOAT_ARY_ELM",
	OpLoadArySize:     "LOAD_ARY_SIZE",

	OpNewByteAry:   "NEW_BYTE_ARY",
	OpNewCharAry:   "NEW_CHAR_ARY",
	OpNewIntAry:    "NEW_INT_ARY",
	OpNewFloatAry:  "NEW_FLOAT_ARY",
	OpCpyByteAry:   "CPY_BYTE_ARY",
	OpCpyCharAry:   "CPY_CHAR_ARY",
	OpCpyIntAry:    "CPY_INT_ARY",
	OpCpyFloatAry:  "CPY_FLOAT_ARY",
	OpZeroByteAry:  "ZERO_BYTE_ARY",
	OpZeroCharAry:  "ZERO_CHAR_ARY",
	OpZeroIntAry:   "ZERO_INT_ARY",
	OpZeroFloatAry: "ZERO_FLOAT_ARY",

	OpAndInt:     "AND_INT",
	OpOrInt:      "OR_INT",
	OpAddInt:     "ADD_INT",
	OpSubInt:     "SUB_INT",
	OpMulInt:     "MUL_INT",
	OpDivInt:     "DIV_INT",
	OpModInt:     "MOD_INT",
	OpBitAndInt:  "BIT_AND_INT",
	OpBitOrInt:   "BIT_OR_INT",
	OpBitXorInt:  "BIT_XOR_INT",
	OpBitNotInt:  "BIT_NOT_INT",
	OpShlInt:     "SHL_INT",
	OpShrInt:     "SHR_INT",
	OpDivPow2Int: "DIV_POW2_INT",

	OpLesInt:    "LES_INT",
	OpGtrInt:    "GTR_INT",
	OpLesEqlInt: "LES_EQL_INT",
	OpGtrEqlInt: "GTR_EQL_INT",
	OpEqlInt:    "EQL_INT",
	OpNeqlInt:   "NEQL_INT",

	OpAddFloat:   "ADD_FLOAT",
	OpSubFloat:   "SUB_FLOAT",
	OpMulFloat:   "MUL_FLOAT",
	OpDivFloat:   "DIV_FLOAT",
	OpModFloat:   "MOD_FLOAT",
	OpPowFloat:   "POW_FLOAT",
	OpAtan2Float: "ATAN2_FLOAT",
	OpSqrtFloat:  "SQRT_FLOAT",
	OpRoundFloat: "ROUND_FLOAT",
	OpCeilFloat:  "CEIL_FLOAT",
	OpFlorFloat:  "FLOR_FLOAT",
	OpSinFloat:   "SIN_FLOAT",
	OpCosFloat:   "COS_FLOAT",
	OpTanFloat:   "TAN_FLOAT",
	OpLogFloat:   "LOG_FLOAT",
	OpExpFloat:   "EXP_FLOAT",
	OpRandFloat:  "RAND_FLOAT",

	OpLesFloat:    "LES_FLOAT",
	OpGtrFloat:    "GTR_FLOAT",
	OpLesEqlFloat: "LES_EQL_FLOAT",
	OpGtrEqlFloat: "GTR_EQL_FLOAT",
	OpEqlFloat:    "EQL_FLOAT",
	OpNeqlFloat:   "NEQL_FLOAT",

	OpF2I: "F2I",
	OpI2F: "I2F",
	OpI2S: "I2S",
	OpS2I: "S2I",
	OpF2S: "F2S",
	OpS2F: "S2F",

	OpNewObjInst:  "NEW_OBJ_INST",
	OpObjTypeOf:   "OBJ_TYPE_OF",
	OpObjInstCast: "OBJ_INST_CAST",

	OpMthdCall:       "MTHD_CALL",
	OpDynMthdCall:    "DYN_MTHD_CALL",
	OpAsyncMthdCall:  "ASYNC_MTHD_CALL",
	OpLibNewObjInst:  "LIB_NEW_OBJ_INST",
	OpLibMthdCall:    "LIB_MTHD_CALL",
	OpLibObjInstCast: "LIB_OBJ_INST_CAST",

	OpDllLoad:       "DLL_LOAD",
	OpDllUnload:     "DLL_UNLOAD",
	OpDllFuncCall:   "DLL_FUNC_CALL",
	OpThreadJoin:    "THREAD_JOIN",
	OpThreadSleep:   "THREAD_SLEEP",
	OpThreadMutex:   "THREAD_MUTEX",
	OpCriticalStart: "CRITICAL_START",
	OpCriticalEnd:   "CRITICAL_END",

	OpJmp:      "JMP",
	OpLbl:      "LBL",
	OpRtrn:     "RTRN",
	OpTrap:     "TRAP",
	OpTrapRtrn: "TRAP_RTRN",

	OpPopInt:   "POP_INT",
	OpPopFloat: "POP_FLOAT",
	OpSwapInt:  "SWAP_INT",
}

func (op Opcode) String() string {
	if int(op) < len(opNames) && opNames[op] != "" {
		return opNames[op]
	}
	return fmt.Sprintf("UNKNOWN(%d)", op)
}

// Valid 操作码是否在已知范围内
func (op Opcode) Valid() bool {
	return op < opcodeCount
}

// ParseOpcode 按助记符查找操作码
func ParseOpcode(name string) (Opcode, bool) {
	for op, n := range opNames {
		if n == name {
			return Opcode(op), true
		}
	}
	return OpNop, false
}

// ============================================================================
// 分类谓词
// ============================================================================

// IsVariable 是否为变量读写指令（带内存上下文）
func (op Opcode) IsVariable() bool {
	switch op {
	case OpLoadIntVar, OpLoadFloatVar, OpLoadFuncVar,
		OpStorIntVar, OpStorFloatVar, OpStorFuncVar,
		OpCopyIntVar, OpCopyFloatVar:
		return true
	}
	return false
}

// IsIntCalc 是否为整数二元运算或比较
func (op Opcode) IsIntCalc() bool {
	return (op >= OpAndInt && op <= OpDivPow2Int && op != OpBitNotInt) ||
		(op >= OpLesInt && op <= OpNeqlInt)
}

// IsIntCompare 是否为整数比较
func (op Opcode) IsIntCompare() bool {
	return op >= OpLesInt && op <= OpNeqlInt
}

// IsFloatCalc 是否为可内联的浮点四则运算
func (op Opcode) IsFloatCalc() bool {
	return op >= OpAddFloat && op <= OpDivFloat
}

// IsFloatCompare 是否为浮点比较
func (op Opcode) IsFloatCompare() bool {
	return op >= OpLesFloat && op <= OpNeqlFloat
}

// IsCall 是否为调用类指令
func (op Opcode) IsCall() bool {
	switch op {
	case OpMthdCall, OpDynMthdCall, OpAsyncMthdCall, OpLibNewObjInst,
		OpLibMthdCall, OpLibObjInstCast, OpDllFuncCall:
		return true
	}
	return false
}

// IsSystem 是否为陷阱、线程、动态库等系统原语
func (op Opcode) IsSystem() bool {
	switch op {
	case OpTrap, OpTrapRtrn,
		OpCpyByteAry, OpCpyCharAry, OpCpyIntAry, OpCpyFloatAry,
		OpDllLoad, OpDllUnload, OpDllFuncCall,
		OpThreadJoin, OpThreadSleep, OpThreadMutex,
		OpCriticalStart, OpCriticalEnd,
		OpLibNewObjInst, OpLibMthdCall, OpLibObjInstCast:
		return true
	}
	return false
}
