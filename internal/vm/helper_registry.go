// helper_registry.go - 陷阱处理函数注册表
//
// TRAP / TRAP_RTRN 先弹出陷阱号，再弹出其余参数，按陷阱号分派到这里注册的函数。

package vm

import (
	"fmt"
	"math"
	"strconv"
)

// TrapFunc 陷阱处理函数；TRAP_RTRN 会把返回值压栈
type TrapFunc func(vm *VM, args []uint64) (uint64, error)

// 内置陷阱号
const (
	TrapPrintChar   int64 = -3984
	TrapPrintInt    int64 = -3985
	TrapPrintFloat  int64 = -3986
	TrapPrintString int64 = -3987
)

func registerBuiltinTraps(vm *VM) {
	vm.traps[TrapPrintChar] = func(vm *VM, args []uint64) (uint64, error) {
		if len(args) < 1 {
			return 0, fmt.Errorf("print char: missing argument")
		}
		_, err := fmt.Fprint(vm.out, string(rune(int64(args[0]))))
		return 0, err
	}
	vm.traps[TrapPrintInt] = func(vm *VM, args []uint64) (uint64, error) {
		if len(args) < 1 {
			return 0, fmt.Errorf("print int: missing argument")
		}
		_, err := fmt.Fprint(vm.out, strconv.FormatInt(int64(args[0]), 10))
		return 0, err
	}
	vm.traps[TrapPrintFloat] = func(vm *VM, args []uint64) (uint64, error) {
		if len(args) < 1 {
			return 0, fmt.Errorf("print float: missing argument")
		}
		_, err := fmt.Fprint(vm.out, strconv.FormatFloat(math.Float64frombits(args[0]), 'g', -1, 64))
		return 0, err
	}
	vm.traps[TrapPrintString] = func(vm *VM, args []uint64) (uint64, error) {
		if len(args) < 1 {
			return 0, fmt.Errorf("print string: missing argument")
		}
		_, err := fmt.Fprint(vm.out, vm.String(args[0]))
		return 0, err
	}
}

// RegisterTrap 注册或替换陷阱处理函数
func (vm *VM) RegisterTrap(id int64, fn TrapFunc) {
	vm.traps[id] = fn
}

// trap 执行 TRAP / TRAP_RTRN，argc 包含陷阱号本身
func (vm *VM) trap(argc int64, rtrn bool) {
	id := vm.popInt()
	args := make([]uint64, 0, argc)
	for i := int64(1); i < argc; i++ {
		args = append(args, vm.pop())
	}

	fn, ok := vm.traps[id]
	if !ok {
		panic(vm.fault(ErrUnknownTrap, strconv.FormatInt(id, 10)))
	}
	vm.stats.Traps++
	v, err := fn(vm, args)
	if err != nil {
		panic(vm.fault(err, fmt.Sprintf("trap %d", id)))
	}
	if rtrn {
		vm.push(v)
	}
}
