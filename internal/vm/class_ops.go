// class_ops.go - 对象、类内存与数组

package vm

import (
	"fmt"

	"github.com/tangzhangming/objeck/internal/bytecode"
)

// ArrayKind 数组元素类型
type ArrayKind int

const (
	ByteArray ArrayKind = iota
	CharArray
	IntArray
	FloatArray
)

// Object 实例或类内存
type Object struct {
	Class  *bytecode.Class
	Fields []uint64
}

// Array 多维数组，元素按行优先平铺
type Array struct {
	Kind ArrayKind
	Dims []int64
	Data []uint64
}

// Size 元素总数
func (a *Array) Size() int64 {
	return int64(len(a.Data))
}

type heapEntry struct {
	obj *Object
	ary *Array
}

// ============================================================================
// 分配
// ============================================================================

func (vm *VM) alloc(e heapEntry) uint64 {
	vm.heap = append(vm.heap, e)
	vm.stats.Allocations++
	return uint64(len(vm.heap))
}

// NewObject 分配实例并返回句柄
func (vm *VM) NewObject(c *bytecode.Class) uint64 {
	return vm.alloc(heapEntry{obj: &Object{Class: c, Fields: make([]uint64, c.InstanceSpace)}})
}

// NewArray 分配数组并返回句柄
func (vm *VM) NewArray(kind ArrayKind, dims ...int64) uint64 {
	size := int64(1)
	for _, d := range dims {
		if d < 0 {
			panic(vm.fault(ErrIndexBounds, fmt.Sprintf("negative dimension %d", d)))
		}
		size *= d
	}
	a := &Array{Kind: kind, Dims: append([]int64(nil), dims...), Data: make([]uint64, size)}
	return vm.alloc(heapEntry{ary: a})
}

// NewString 分配字符数组并写入字符串
func (vm *VM) NewString(s string) uint64 {
	runes := []rune(s)
	h := vm.NewArray(CharArray, int64(len(runes)))
	a := vm.heap[h-1].ary
	for i, r := range runes {
		a.Data[i] = uint64(r)
	}
	return h
}

// classMemory 类静态内存句柄，首次访问时分配
func (vm *VM) classMemory(c *bytecode.Class) uint64 {
	if h, ok := vm.classMem[c.ID]; ok {
		return h
	}
	h := vm.alloc(heapEntry{obj: &Object{Class: c, Fields: make([]uint64, c.ClassSpace)}})
	vm.classMem[c.ID] = h
	return h
}

// ============================================================================
// 句柄解析
// ============================================================================

// Object 解析对象句柄
func (vm *VM) Object(h uint64) *Object {
	if h == 0 || h > uint64(len(vm.heap)) || vm.heap[h-1].obj == nil {
		panic(vm.fault(ErrNilDereference, fmt.Sprintf("object handle %d", h)))
	}
	return vm.heap[h-1].obj
}

// Array 解析数组句柄
func (vm *VM) Array(h uint64) *Array {
	if h == 0 || h > uint64(len(vm.heap)) || vm.heap[h-1].ary == nil {
		panic(vm.fault(ErrNilDereference, fmt.Sprintf("array handle %d", h)))
	}
	return vm.heap[h-1].ary
}

// String 把字符数组读成字符串
func (vm *VM) String(h uint64) string {
	a := vm.Array(h)
	runes := make([]rune, 0, len(a.Data))
	for _, c := range a.Data {
		if c == 0 {
			break
		}
		runes = append(runes, rune(c))
	}
	return string(runes)
}

func (vm *VM) field(o *Object, id int64) *uint64 {
	if id < 0 || id >= int64(len(o.Fields)) {
		panic(vm.fault(ErrIndexBounds, fmt.Sprintf("field %d of %s", id, o.Class.Name)))
	}
	return &o.Fields[id]
}

// ============================================================================
// 数组下标
// ============================================================================

// arrayIndex 弹出数组句柄与 dims 个下标，返回平铺后的元素位置
//
// 第一个弹出的下标是最高维；其余下标依次按各维长度累乘。
func (vm *VM) arrayIndex(dims int64) (*Array, int64) {
	a := vm.Array(vm.pop())
	index := vm.popInt()
	for i := int64(1); i < dims; i++ {
		var d int64
		if i < int64(len(a.Dims)) {
			d = a.Dims[i]
		}
		index = index*d + vm.popInt()
	}
	if index < 0 || index >= a.Size() {
		panic(vm.fault(ErrIndexBounds, fmt.Sprintf("index %d, size %d", index, a.Size())))
	}
	return a, index
}

// storeElement 按元素类型截断后写入
func storeElement(a *Array, index int64, v uint64) {
	switch a.Kind {
	case ByteArray:
		v = uint64(int64(int8(v)))
	case CharArray:
		v = uint64(int64(int32(v)))
	}
	a.Data[index] = v
}

// copyArray CPY_*_ARY：长度、源偏移、源数组、目标偏移、目标数组依次出栈，
// 成功压入 1，越界压入 0
func (vm *VM) copyArray() {
	length := vm.popInt()
	srcOff := vm.popInt()
	src := vm.Array(vm.pop())
	dstOff := vm.popInt()
	dst := vm.Array(vm.pop())

	if length < 0 || srcOff < 0 || dstOff < 0 ||
		srcOff+length > src.Size() || dstOff+length > dst.Size() {
		vm.pushInt(0)
		return
	}
	copy(dst.Data[dstOff:dstOff+length], src.Data[srcOff:srcOff+length])
	vm.pushInt(1)
}
