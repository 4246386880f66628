package vm

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/tangzhangming/objeck/internal/bytecode"
)

// ============================================================================
// 测试程序构造
// ============================================================================

func method(id int, name string, params int, space int, ret bytecode.MemoryType, instrs ...bytecode.Instr) *bytecode.Method {
	m := &bytecode.Method{
		ID:     id,
		Name:   name,
		Space:  space,
		Return: ret,
		Blocks: []bytecode.Block{bytecode.NewBlock(instrs...)},
	}
	for i := 0; i < params; i++ {
		m.Params = append(m.Params, bytecode.ParamInt)
	}
	return m
}

var (
	lit  = func(v int64) bytecode.Instr { return bytecode.NewInt(1, bytecode.OpLoadIntLit, v) }
	op   = func(o bytecode.Opcode) bytecode.Instr { return bytecode.New(1, o) }
	ld   = func(id int64) bytecode.Instr { return bytecode.NewVar(1, bytecode.OpLoadIntVar, id, bytecode.CtxLocal) }
	st   = func(id int64) bytecode.Instr { return bytecode.NewVar(1, bytecode.OpStorIntVar, id, bytecode.CtxLocal) }
	rtrn = bytecode.New(1, bytecode.OpRtrn)
)

// sumTo 计算 0+1+...+(n-1)
func sumTo() *bytecode.Method {
	return method(0, "SumTo:i,", 1, 3, bytecode.TypeInt,
		st(0),
		lit(0), st(1), // i
		lit(0), st(2), // sum
		bytecode.NewLabel(1, 1),
		ld(0), ld(1), op(bytecode.OpLesInt), // i < n
		bytecode.NewJump(1, 2, bytecode.JumpIfFalse),
		ld(1), ld(2), op(bytecode.OpAddInt), st(2),
		lit(1), ld(1), op(bytecode.OpAddInt), st(1),
		bytecode.NewJump(1, 1, bytecode.JumpAlways),
		bytecode.NewLabel(1, 2),
		ld(2),
		rtrn,
	)
}

func program(methods ...*bytecode.Method) *bytecode.Program {
	return bytecode.NewProgram(&bytecode.Class{ID: 0, Name: "Test", Methods: methods, InstanceSpace: 2, ClassSpace: 1})
}

// ============================================================================
// 测试
// ============================================================================

// TestLoop 测试循环与条件跳转
func TestLoop(t *testing.T) {
	vm := New(program(sumTo()))
	v, err := vm.Invoke(0, 0, 0, 10)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if int64(v) != 45 {
		t.Errorf("SumTo(10) = %d, want 45", int64(v))
	}
	if vm.StackDepth() != 0 {
		t.Errorf("stack depth %d after return", vm.StackDepth())
	}
}

// TestOperandOrder 测试栈顶为左操作数
func TestOperandOrder(t *testing.T) {
	m := method(0, "Sub", 0, 0, bytecode.TypeInt, lit(3), lit(10), op(bytecode.OpSubInt), rtrn)
	v, err := New(program(m)).Invoke(0, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if int64(v) != 7 {
		t.Errorf("10 - 3 = %d", int64(v))
	}
}

// TestDivideByZero 测试除零错误
func TestDivideByZero(t *testing.T) {
	m := method(0, "Div", 0, 0, bytecode.TypeInt, lit(0), lit(5), op(bytecode.OpDivInt), rtrn)
	_, err := New(program(m)).Invoke(0, 0, 0)
	if !errors.Is(err, ErrDivideByZero) {
		t.Fatalf("expected ErrDivideByZero, got %v", err)
	}
	var re *RuntimeError
	if !errors.As(err, &re) || re.Index != 2 || re.Code() != "R0003" {
		t.Errorf("unexpected error detail %#v", re)
	}
}

// TestMinIntDivision 测试 MinInt64 / -1 回绕
func TestMinIntDivision(t *testing.T) {
	m := method(0, "Div", 0, 0, bytecode.TypeInt,
		lit(-1), lit(math.MinInt64), op(bytecode.OpDivInt), rtrn)
	v, err := New(program(m)).Invoke(0, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if int64(v) != math.MinInt64 {
		t.Errorf("MinInt64 / -1 = %d", int64(v))
	}
}

// TestDivPow2 测试向零取整的移位除法
func TestDivPow2(t *testing.T) {
	for _, x := range []int64{0, 1, 7, 8, 9, -1, -7, -8, -9, math.MaxInt64, math.MinInt64, math.MinInt64 + 1} {
		for k := uint(1); k <= 8; k++ {
			if got, want := DivPow2(x, k), x/(int64(1)<<k); got != want {
				t.Errorf("DivPow2(%d, %d) = %d, want %d", x, k, got, want)
			}
		}
	}
}

// TestFields 测试实例字段与方法调用
func TestFields(t *testing.T) {
	inst := func(o bytecode.Opcode, id int64) bytecode.Instr { return bytecode.NewVar(1, o, id, bytecode.CtxInstance) }
	set := method(0, "Set:i,", 1, 1, bytecode.TypeNil,
		st(0), ld(0), op(bytecode.OpLoadInstMem), inst(bytecode.OpStorIntVar, 1), rtrn)
	get := method(1, "Get", 0, 0, bytecode.TypeInt,
		op(bytecode.OpLoadInstMem), inst(bytecode.OpLoadIntVar, 1), rtrn)
	run := method(2, "Run", 0, 1, bytecode.TypeInt,
		bytecode.NewInt(1, bytecode.OpNewObjInst, 0), st(0),
		lit(42), ld(0), bytecode.NewCall(1, 0, 0),
		ld(0), bytecode.NewCall(1, 0, 1),
		rtrn)

	vm := New(program(set, get, run))
	v, err := vm.Invoke(0, 2, 0)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if int64(v) != 42 {
		t.Errorf("field round trip = %d", int64(v))
	}
	if s := vm.Stats(); s.MethodCalls != 3 || s.Allocations != 1 {
		t.Errorf("stats = %+v", s)
	}
}

// TestNilDereference 测试空引用
func TestNilDereference(t *testing.T) {
	m := method(0, "Nil", 0, 0, bytecode.TypeInt,
		lit(0), bytecode.NewVar(1, bytecode.OpLoadIntVar, 0, bytecode.CtxInstance), rtrn)
	if _, err := New(program(m)).Invoke(0, 0, 0); !errors.Is(err, ErrNilDereference) {
		t.Fatalf("expected ErrNilDereference, got %v", err)
	}
}

// TestArrays 测试二维数组与越界
func TestArrays(t *testing.T) {
	// a = Int[2, 3]; a[1, 2] = 9; return a[1, 2] + size(a)
	m := method(0, "Ary", 0, 1, bytecode.TypeInt,
		lit(3), lit(2), bytecode.NewInt(1, bytecode.OpNewIntAry, 2), st(0),
		lit(9), lit(2), lit(1), ld(0), bytecode.NewInt(1, bytecode.OpStorIntAryElm, 2),
		ld(0), op(bytecode.OpLoadArySize),
		lit(2), lit(1), ld(0), bytecode.NewInt(1, bytecode.OpLoadIntAryElm, 2),
		op(bytecode.OpAddInt),
		rtrn)
	v, err := New(program(m)).Invoke(0, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if int64(v) != 11 {
		t.Errorf("a[1,2] + size = %d, want 11", int64(v))
	}

	bad := method(0, "Bad", 0, 1, bytecode.TypeInt,
		lit(4), bytecode.NewInt(1, bytecode.OpNewIntAry, 1), st(0),
		lit(4), ld(0), bytecode.NewInt(1, bytecode.OpLoadIntAryElm, 1),
		rtrn)
	if _, err := New(program(bad)).Invoke(0, 0, 0); !errors.Is(err, ErrIndexBounds) {
		t.Fatalf("expected ErrIndexBounds, got %v", err)
	}
}

// TestTraps 测试陷阱分派
func TestTraps(t *testing.T) {
	var out bytes.Buffer
	m := method(0, "Print", 0, 0, bytecode.TypeInt,
		lit('h'), lit(TrapPrintChar), bytecode.NewInt(1, bytecode.OpTrap, 2),
		lit(42), lit(TrapPrintInt), bytecode.NewInt(1, bytecode.OpTrap, 2),
		lit(5), lit(-1), bytecode.NewInt(1, bytecode.OpTrapRtrn, 2),
		rtrn)

	vm := New(program(m), WithOutput(&out), WithTrap(-1, func(vm *VM, args []uint64) (uint64, error) {
		return args[0] * 2, nil
	}))
	v, err := vm.Invoke(0, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if out.String() != "h42" {
		t.Errorf("output = %q", out.String())
	}
	if v != 10 {
		t.Errorf("TRAP_RTRN = %d", v)
	}

	unknown := method(0, "U", 0, 0, bytecode.TypeNil, lit(-77), bytecode.NewInt(1, bytecode.OpTrap, 1), rtrn)
	if _, err := New(program(unknown)).Invoke(0, 0, 0); !errors.Is(err, ErrUnknownTrap) {
		t.Errorf("expected ErrUnknownTrap, got %v", err)
	}
}

// TestFloat 测试浮点运算与转换
func TestFloat(t *testing.T) {
	m := method(0, "F", 0, 0, bytecode.TypeInt,
		bytecode.NewFloat(1, 2), bytecode.NewFloat(1, 7), op(bytecode.OpDivFloat), // 3.5
		op(bytecode.OpF2I),
		rtrn)
	v, err := New(program(m)).Invoke(0, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if int64(v) != 3 {
		t.Errorf("F2I(7/2) = %d", int64(v))
	}
	if F2I(math.NaN()) != math.MinInt64 {
		t.Error("F2I(NaN) should be MinInt64")
	}
}

// TestStepLimit 测试执行步数限制
func TestStepLimit(t *testing.T) {
	m := method(0, "Spin", 0, 0, bytecode.TypeNil,
		bytecode.NewLabel(1, 1),
		bytecode.NewJump(1, 1, bytecode.JumpAlways),
		rtrn)
	if _, err := New(program(m), WithStepLimit(1000)).Invoke(0, 0, 0); !errors.Is(err, ErrStepLimit) {
		t.Fatalf("expected ErrStepLimit, got %v", err)
	}
}

// TestUnsupported 测试宿主专属指令
func TestUnsupported(t *testing.T) {
	m := method(0, "Lib", 0, 0, bytecode.TypeNil,
		bytecode.NewLibCall(1, bytecode.OpLibNewObjInst, "System.String", ""), rtrn)
	if _, err := New(program(m)).Invoke(0, 0, 0); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}
