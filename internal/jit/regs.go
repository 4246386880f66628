// regs.go - 寄存器池
//
// 每个寄存器同一时刻只有一个持有者。Get 取出，Release 归还；
// 归还未持有的寄存器属于内部错误，取空池则本次编译放弃。

package jit

import (
	"fmt"

	jerrors "github.com/tangzhangming/objeck/internal/errors"
)

// 默认池内容（按取用顺序）
var (
	defaultGP  = []X64Reg{RDX, RCX, RBX, RAX}
	defaultAux = []X64Reg{R15, R14, R13, R11, R10, R8}
	defaultXmm = []XmmReg{XMM15, XMM14, XMM13, XMM12, XMM11, XMM10}
)

// RegisterPool 通用寄存器池：先用主池，主池空了再用辅助池
type RegisterPool struct {
	order []X64Reg
	held  map[X64Reg]bool
	peak  int
}

// NewRegisterPool 用主池前 gp 个、辅助池前 aux 个寄存器建池
func NewRegisterPool(gp, aux int) *RegisterPool {
	p := &RegisterPool{held: make(map[X64Reg]bool)}
	p.order = append(p.order, defaultGP[:clamp(gp, len(defaultGP))]...)
	p.order = append(p.order, defaultAux[:clamp(aux, len(defaultAux))]...)
	return p
}

func clamp(n, max int) int {
	if n < 0 {
		return 0
	}
	if n > max {
		return max
	}
	return n
}

// Get 取一个空闲寄存器
func (p *RegisterPool) Get() X64Reg {
	return p.GetExcept(RegNone)
}

// GetExcept 取一个不等于 avoid 的空闲寄存器
func (p *RegisterPool) GetExcept(avoid X64Reg) X64Reg {
	for _, r := range p.order {
		if r != avoid && !p.held[r] {
			p.held[r] = true
			if n := len(p.held); n > p.peak {
				p.peak = n
			}
			return r
		}
	}
	panic(bailout{status: StatusFallback, code: jerrors.J0002,
		msg: fmt.Sprintf("all %d general purpose registers in use", len(p.order))})
}

// Release 归还寄存器
func (p *RegisterPool) Release(r X64Reg) {
	if !p.held[r] {
		panic(bailout{status: StatusFatal, code: jerrors.J0003,
			msg: fmt.Sprintf("release of unowned register %s", r)})
	}
	delete(p.held, r)
}

// Holds 寄存器是否已被取出
func (p *RegisterPool) Holds(r X64Reg) bool {
	return p.held[r]
}

// Outstanding 已取出未归还的数量
func (p *RegisterPool) Outstanding() int {
	return len(p.held)
}

// Available 空闲数量
func (p *RegisterPool) Available() int {
	return len(p.order) - len(p.held)
}

// Peak 同时持有的最大数量
func (p *RegisterPool) Peak() int {
	return p.peak
}

// XmmPool SSE 寄存器池
type XmmPool struct {
	order []XmmReg
	held  map[XmmReg]bool
	peak  int
}

// NewXmmPool 用默认 XMM 池的前 n 个寄存器建池
func NewXmmPool(n int) *XmmPool {
	return &XmmPool{
		order: append([]XmmReg(nil), defaultXmm[:clamp(n, len(defaultXmm))]...),
		held:  make(map[XmmReg]bool),
	}
}

// Get 取一个空闲 XMM 寄存器
func (p *XmmPool) Get() XmmReg {
	for _, x := range p.order {
		if !p.held[x] {
			p.held[x] = true
			if n := len(p.held); n > p.peak {
				p.peak = n
			}
			return x
		}
	}
	panic(bailout{status: StatusFallback, code: jerrors.J0002,
		msg: fmt.Sprintf("all %d xmm registers in use", len(p.order))})
}

// Release 归还 XMM 寄存器
func (p *XmmPool) Release(x XmmReg) {
	if !p.held[x] {
		panic(bailout{status: StatusFatal, code: jerrors.J0003,
			msg: fmt.Sprintf("release of unowned register %s", x)})
	}
	delete(p.held, x)
}

// Outstanding 已取出未归还的数量
func (p *XmmPool) Outstanding() int {
	return len(p.held)
}

// Available 空闲数量
func (p *XmmPool) Available() int {
	return len(p.order) - len(p.held)
}

// Peak 同时持有的最大数量
func (p *XmmPool) Peak() int {
	return p.peak
}
