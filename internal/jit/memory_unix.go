//go:build !windows

// memory_unix.go - Unix/Linux/macOS 平台可执行内存
//
// 使用 mmap 分配读写页面，写入后用 mprotect 改为读执行。

package jit

import (
	"golang.org/x/sys/unix"
)

func pageSize() int {
	return unix.Getpagesize()
}

// allocWritable 分配可读写的匿名页面
func allocWritable(size int) ([]byte, error) {
	return unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
}

// protectExecutable 把页面改为只读可执行
func protectExecutable(mem []byte) error {
	return unix.Mprotect(mem, unix.PROT_READ|unix.PROT_EXEC)
}

// freePages 释放页面
func freePages(mem []byte) error {
	if len(mem) == 0 {
		return nil
	}
	return unix.Munmap(mem)
}
