// dispatch.go - 指令分派循环

package vm

import (
	"math"
	"math/rand"
	"strconv"
	"strings"

	"github.com/tangzhangming/objeck/internal/bytecode"
)

func f2u(f float64) uint64 { return math.Float64bits(f) }
func u2f(u uint64) float64 { return math.Float64frombits(u) }

// run 执行帧直到 RTRN 或指令流结束
func (vm *VM) run(f *Frame) {
	instrs := f.Method.Instrs
	for f.IP = 0; f.IP < len(instrs); f.IP++ {
		in := instrs[f.IP]

		vm.stats.InstructionsExecuted++
		if vm.stepLimit > 0 && vm.stats.InstructionsExecuted > vm.stepLimit {
			panic(vm.fault(ErrStepLimit, ""))
		}

		switch op := in.Op; {
		case op == bytecode.OpRtrn:
			return

		case op == bytecode.OpJmp:
			if in.Operand2 == bytecode.JumpAlways || vm.popInt() == in.Operand2 {
				f.IP = f.Method.Target(f.IP)
			}

		case op == bytecode.OpLbl, op == bytecode.OpNop:

		case op.IsVariable() || op == bytecode.OpLoadInstMem || op == bytecode.OpLoadClsMem:
			vm.execMemory(f, in)

		case op >= bytecode.OpLoadByteAryElm && op <= bytecode.OpZeroFloatAry:
			vm.execArray(in)

		case op >= bytecode.OpAndInt && op <= bytecode.OpNeqlInt:
			vm.execInt(in)

		case op >= bytecode.OpAddFloat && op <= bytecode.OpNeqlFloat:
			vm.execFloat(in)

		default:
			vm.execOther(in)
		}
	}
}

// ============================================================================
// 变量读写
// ============================================================================

func (vm *VM) local(f *Frame, id int64) *uint64 {
	if id < 0 || id >= int64(len(f.Locals)) {
		panic(vm.fault(ErrIndexBounds, "local "+strconv.FormatInt(id, 10)))
	}
	return &f.Locals[id]
}

// slot 变量指令访问的内存单元；INST / CLS 上下文先弹出对象句柄
func (vm *VM) slot(f *Frame, in bytecode.Instr) *uint64 {
	if in.Ctx() == bytecode.CtxLocal {
		return vm.local(f, in.Operand)
	}
	return vm.field(vm.Object(vm.pop()), in.Operand)
}

func (vm *VM) execMemory(f *Frame, in bytecode.Instr) {
	switch in.Op {
	case bytecode.OpLoadInstMem:
		vm.push(f.Self)

	case bytecode.OpLoadClsMem:
		vm.push(vm.classMemory(f.Method.Method.Class))

	case bytecode.OpLoadIntVar, bytecode.OpLoadFloatVar:
		vm.push(*vm.slot(f, in))

	case bytecode.OpStorIntVar, bytecode.OpStorFloatVar:
		p := vm.slot(f, in)
		*p = vm.pop()

	case bytecode.OpCopyIntVar, bytecode.OpCopyFloatVar:
		p := vm.slot(f, in)
		*p = vm.top()

	case bytecode.OpLoadFuncVar:
		if in.Ctx() == bytecode.CtxLocal {
			vm.push(*vm.local(f, in.Operand+1))
			vm.push(*vm.local(f, in.Operand))
			return
		}
		o := vm.Object(vm.pop())
		vm.push(*vm.field(o, in.Operand+1))
		vm.push(*vm.field(o, in.Operand))

	case bytecode.OpStorFuncVar:
		if in.Ctx() == bytecode.CtxLocal {
			*vm.local(f, in.Operand) = vm.pop()
			*vm.local(f, in.Operand+1) = vm.pop()
			return
		}
		o := vm.Object(vm.pop())
		*vm.field(o, in.Operand) = vm.pop()
		*vm.field(o, in.Operand+1) = vm.pop()
	}
}

// ============================================================================
// 数组
// ============================================================================

func arrayKind(op bytecode.Opcode) ArrayKind {
	switch op {
	case bytecode.OpLoadByteAryElm, bytecode.OpStorByteAryElm, bytecode.OpNewByteAry,
		bytecode.OpCpyByteAry, bytecode.OpZeroByteAry:
		return ByteArray
	case bytecode.OpLoadCharAryElm, bytecode.OpStorCharAryElm, bytecode.OpNewCharAry,
		bytecode.OpCpyCharAry, bytecode.OpZeroCharAry:
		return CharArray
	case bytecode.OpLoadFloatAryElm, bytecode.OpStorFloatAryElm, bytecode.OpNewFloatAry,
		bytecode.OpCpyFloatAry, bytecode.OpZeroFloatAry:
		return FloatArray
	}
	return IntArray
}

func (vm *VM) execArray(in bytecode.Instr) {
	switch in.Op {
	case bytecode.OpLoadByteAryElm, bytecode.OpLoadCharAryElm,
		bytecode.OpLoadIntAryElm, bytecode.OpLoadFloatAryElm:
		a, i := vm.arrayIndex(in.Operand)
		vm.push(a.Data[i])

	case bytecode.OpStorByteAryElm, bytecode.OpStorCharAryElm,
		bytecode.OpStorIntAryElm, bytecode.OpStorFloatAryElm:
		a, i := vm.arrayIndex(in.Operand)
		storeElement(a, i, vm.pop())

	case bytecode.OpLoadArySize:
		a := vm.Array(vm.pop())
		var n int64
		if len(a.Dims) > 0 {
			n = a.Dims[0]
		}
		vm.pushInt(n)

	case bytecode.OpNewByteAry, bytecode.OpNewCharAry, bytecode.OpNewIntAry, bytecode.OpNewFloatAry:
		dims := make([]int64, in.Operand)
		for i := range dims {
			dims[i] = vm.popInt()
		}
		vm.push(vm.NewArray(arrayKind(in.Op), dims...))

	case bytecode.OpCpyByteAry, bytecode.OpCpyCharAry, bytecode.OpCpyIntAry, bytecode.OpCpyFloatAry:
		vm.copyArray()

	case bytecode.OpZeroByteAry, bytecode.OpZeroCharAry, bytecode.OpZeroIntAry, bytecode.OpZeroFloatAry:
		a := vm.Array(vm.pop())
		clear(a.Data)
	}
}

// ============================================================================
// 整数运算
// ============================================================================

// DivPow2 left / 2^k，向零取整
func DivPow2(left int64, k uint) int64 {
	k &= 63
	if k == 0 {
		return left
	}
	bias := int64(uint64(left>>63) >> (64 - k))
	return (left + bias) >> k
}

func (vm *VM) execInt(in bytecode.Instr) {
	if in.Op == bytecode.OpBitNotInt {
		vm.pushInt(^vm.popInt())
		return
	}

	left := vm.popInt()
	right := vm.popInt()

	switch in.Op {
	case bytecode.OpAndInt:
		vm.pushBool(left != 0 && right != 0)
	case bytecode.OpOrInt:
		vm.pushBool(left != 0 || right != 0)
	case bytecode.OpAddInt:
		vm.pushInt(left + right)
	case bytecode.OpSubInt:
		vm.pushInt(left - right)
	case bytecode.OpMulInt:
		vm.pushInt(left * right)
	case bytecode.OpDivInt:
		if right == 0 {
			panic(vm.fault(ErrDivideByZero, ""))
		}
		vm.pushInt(left / right)
	case bytecode.OpModInt:
		if right == 0 {
			panic(vm.fault(ErrDivideByZero, ""))
		}
		vm.pushInt(left % right)
	case bytecode.OpBitAndInt:
		vm.pushInt(left & right)
	case bytecode.OpBitOrInt:
		vm.pushInt(left | right)
	case bytecode.OpBitXorInt:
		vm.pushInt(left ^ right)
	case bytecode.OpShlInt:
		vm.pushInt(left << (uint64(right) & 63))
	case bytecode.OpShrInt:
		vm.pushInt(left >> (uint64(right) & 63))
	case bytecode.OpDivPow2Int:
		vm.pushInt(DivPow2(left, uint(right)))
	case bytecode.OpLesInt:
		vm.pushBool(left < right)
	case bytecode.OpGtrInt:
		vm.pushBool(left > right)
	case bytecode.OpLesEqlInt:
		vm.pushBool(left <= right)
	case bytecode.OpGtrEqlInt:
		vm.pushBool(left >= right)
	case bytecode.OpEqlInt:
		vm.pushBool(left == right)
	case bytecode.OpNeqlInt:
		vm.pushBool(left != right)
	}
}

// ============================================================================
// 浮点运算
// ============================================================================

func (vm *VM) execFloat(in bytecode.Instr) {
	switch in.Op {
	case bytecode.OpRandFloat:
		vm.push(f2u(rand.Float64()))
		return
	case bytecode.OpSqrtFloat, bytecode.OpRoundFloat, bytecode.OpCeilFloat, bytecode.OpFlorFloat,
		bytecode.OpSinFloat, bytecode.OpCosFloat, bytecode.OpTanFloat, bytecode.OpLogFloat, bytecode.OpExpFloat:
		vm.push(f2u(UnaryFloat(in.Op, u2f(vm.pop()))))
		return
	}

	left := u2f(vm.pop())
	right := u2f(vm.pop())

	switch in.Op {
	case bytecode.OpAddFloat:
		vm.push(f2u(left + right))
	case bytecode.OpSubFloat:
		vm.push(f2u(left - right))
	case bytecode.OpMulFloat:
		vm.push(f2u(left * right))
	case bytecode.OpDivFloat:
		vm.push(f2u(left / right))
	case bytecode.OpModFloat:
		vm.push(f2u(math.Mod(left, right)))
	case bytecode.OpPowFloat:
		vm.push(f2u(math.Pow(left, right)))
	case bytecode.OpAtan2Float:
		vm.push(f2u(math.Atan2(left, right)))
	case bytecode.OpLesFloat:
		vm.pushBool(left < right)
	case bytecode.OpGtrFloat:
		vm.pushBool(left > right)
	case bytecode.OpLesEqlFloat:
		vm.pushBool(left <= right)
	case bytecode.OpGtrEqlFloat:
		vm.pushBool(left >= right)
	case bytecode.OpEqlFloat:
		vm.pushBool(left == right)
	case bytecode.OpNeqlFloat:
		vm.pushBool(left != right)
	}
}

// UnaryFloat 单目浮点运算；JIT 的运行时回调共用这里的语义
func UnaryFloat(op bytecode.Opcode, v float64) float64 {
	switch op {
	case bytecode.OpSqrtFloat:
		return math.Sqrt(v)
	case bytecode.OpRoundFloat:
		return math.Round(v)
	case bytecode.OpCeilFloat:
		return math.Ceil(v)
	case bytecode.OpFlorFloat:
		return math.Floor(v)
	case bytecode.OpSinFloat:
		return math.Sin(v)
	case bytecode.OpCosFloat:
		return math.Cos(v)
	case bytecode.OpTanFloat:
		return math.Tan(v)
	case bytecode.OpLogFloat:
		return math.Log(v)
	case bytecode.OpExpFloat:
		return math.Exp(v)
	}
	return math.NaN()
}

// ============================================================================
// 转换、对象、调用与其它
// ============================================================================

// F2I 浮点转整数，向零截断；NaN 与越界值得到 MinInt64（与 cvttsd2si 一致）
func F2I(v float64) int64 {
	if math.IsNaN(v) || v >= 9.223372036854775807e18 || v < -9.223372036854775808e18 {
		return math.MinInt64
	}
	return int64(v)
}

func (vm *VM) execOther(in bytecode.Instr) {
	switch in.Op {
	case bytecode.OpLoadIntLit, bytecode.OpLoadCharLit:
		vm.pushInt(in.Operand)
	case bytecode.OpLoadFloatLit:
		vm.push(f2u(in.FloatOperand))

	case bytecode.OpF2I:
		vm.pushInt(F2I(u2f(vm.pop())))
	case bytecode.OpI2F:
		vm.push(f2u(float64(vm.popInt())))

	case bytecode.OpI2S:
		dst := vm.pop()
		vm.writeString(dst, strconv.FormatInt(vm.popInt(), 10))
	case bytecode.OpF2S:
		dst := vm.pop()
		vm.writeString(dst, strconv.FormatFloat(u2f(vm.pop()), 'g', -1, 64))
	case bytecode.OpS2I:
		n, _ := strconv.ParseInt(strings.TrimSpace(vm.String(vm.pop())), 10, 64)
		vm.pushInt(n)
	case bytecode.OpS2F:
		v, _ := strconv.ParseFloat(strings.TrimSpace(vm.String(vm.pop())), 64)
		vm.push(f2u(v))

	case bytecode.OpNewObjInst:
		c := vm.program.Class(int(in.Operand))
		if c == nil {
			panic(vm.fault(ErrUnknownMethod, "class "+strconv.FormatInt(in.Operand, 10)))
		}
		vm.push(vm.NewObject(c))
	case bytecode.OpObjTypeOf:
		h := vm.pop()
		vm.pushBool(h != 0 && vm.Object(h).Class.ID == int(in.Operand))
	case bytecode.OpObjInstCast:
		h := vm.pop()
		if h != 0 && vm.Object(h).Class.ID != int(in.Operand) {
			panic(vm.fault(ErrInvalidCast, vm.Object(h).Class.Name))
		}
		vm.push(h)

	case bytecode.OpMthdCall:
		self := vm.pop()
		vm.call(vm.resolve(int(in.Operand), int(in.Operand2), self), self)
	case bytecode.OpDynMthdCall:
		cls := vm.popInt()
		mthd := vm.popInt()
		self := vm.pop()
		vm.call(vm.resolve(int(cls), int(mthd), self), self)

	case bytecode.OpTrap:
		vm.trap(in.Operand, false)
	case bytecode.OpTrapRtrn:
		vm.trap(in.Operand, true)

	case bytecode.OpPopInt, bytecode.OpPopFloat:
		vm.pop()
	case bytecode.OpSwapInt:
		a := vm.pop()
		b := vm.pop()
		vm.push(a)
		vm.push(b)

	default:
		// 异步调用、跨库调用、动态库与线程原语由宿主运行时提供
		panic(vm.fault(ErrUnsupported, in.Op.String()))
	}
}

// resolve 查找调用目标；虚方法按实例的实际类重新查找同名方法
func (vm *VM) resolve(cls, mthd int, self uint64) *bytecode.Method {
	m := vm.program.Method(cls, mthd)
	if m == nil {
		panic(vm.fault(ErrUnknownMethod, strconv.Itoa(cls)+":"+strconv.Itoa(mthd)))
	}
	if !m.Virtual || self == 0 {
		return m
	}
	actual := vm.Object(self).Class
	for _, cand := range actual.Methods {
		if cand.Name == m.Name {
			return cand
		}
	}
	return m
}

// writeString 把字符串写入字符数组，超出部分截断，剩余单元清零
func (vm *VM) writeString(h uint64, s string) {
	a := vm.Array(h)
	runes := []rune(s)
	for i := range a.Data {
		if i < len(runes) {
			a.Data[i] = uint64(runes[i])
		} else {
			a.Data[i] = 0
		}
	}
}
