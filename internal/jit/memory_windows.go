//go:build windows

// memory_windows.go - Windows 平台可执行内存
//
// 使用 VirtualAlloc 分配读写页面，写入后用 VirtualProtect 改为读执行。

package jit

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

func pageSize() int {
	return 4096
}

// allocWritable 分配可读写页面
func allocWritable(size int) ([]byte, error) {
	addr, err := windows.VirtualAlloc(0, uintptr(size), windows.MEM_COMMIT|windows.MEM_RESERVE, windows.PAGE_READWRITE)
	if err != nil {
		return nil, err
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), size), nil
}

// protectExecutable 把页面改为只读可执行
func protectExecutable(mem []byte) error {
	var old uint32
	return windows.VirtualProtect(entryOf(mem), uintptr(len(mem)), windows.PAGE_EXECUTE_READ, &old)
}

// freePages 释放页面
func freePages(mem []byte) error {
	if len(mem) == 0 {
		return nil
	}
	return windows.VirtualFree(entryOf(mem), 0, windows.MEM_RELEASE)
}
