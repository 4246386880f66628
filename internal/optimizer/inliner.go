// inliner.go - 叶子方法内联
//
// 在 Pipeline 之后对每个类再扫一遍，把对小叶子方法的直接调用展开到调用点。
//
// 展开方式：
//   - 调用点的实例指针存入调用者新分配的槽位 base
//   - 被调方法局部槽位 i 重映射为 base+1+i
//   - 写入前可能被读取的槽位先清零，与真实调用的新栈帧一致
//   - LOAD_INST_MEM 改写为读取 base
//   - 被调方法的标签通过 LabelScope 换成调用者内唯一的新 id
//   - 末尾的 RTRN 删除，返回值留在操作数栈上
//
// 不内联的情况：
//  1. 递归调用或构造方法
//  2. 虚方法
//  3. 方法体不是单个基本块，或少于 2 条指令
//  4. RTRN 不是唯一且位于末尾
//  5. 访问实例/类字段，或包含系统原语
//  6. 读取其它类的类内存
//  7. 合并后的局部空间超出上限

package optimizer

import (
	"strings"

	"go.uber.org/zap"

	"github.com/tangzhangming/objeck/internal/bytecode"
)

// DefaultMaxInlineSpace 内联后调用者局部空间上限
const DefaultMaxInlineSpace = 32

// ============================================================================
// 内联决策
// ============================================================================

// InlineDecision 内联决策结果
type InlineDecision struct {
	ShouldInline bool
	Reason       string
}

func reject(reason string) InlineDecision {
	return InlineDecision{Reason: reason}
}

// DecideInlining 判断 callee 能否展开到 caller
func DecideInlining(caller, callee *bytecode.Method, maxSpace int) InlineDecision {
	if callee == nil {
		return reject("unknown callee")
	}
	if callee == caller {
		return reject("recursive")
	}
	if isConstructor(callee) {
		return reject("constructor")
	}
	if callee.Virtual {
		return reject("virtual")
	}
	if len(callee.Blocks) != 1 || len(callee.Blocks[0].Instrs) < 2 {
		return reject("not a single block")
	}
	if caller.Space+callee.Space+1 > maxSpace {
		return reject("local space")
	}

	body := callee.Blocks[0].Instrs
	for i, in := range body {
		switch {
		case in.Op == bytecode.OpRtrn && i != len(body)-1:
			return reject("early return")
		case in.Op.IsVariable() && in.Ctx() != bytecode.CtxLocal:
			return reject("field access")
		case in.Op.IsSystem():
			return reject("system operation")
		case in.Op == bytecode.OpLoadClsMem && callee.Class != caller.Class:
			return reject("foreign class memory")
		}
	}
	if body[len(body)-1].Op != bytecode.OpRtrn {
		return reject("no trailing return")
	}
	return InlineDecision{ShouldInline: true}
}

func isConstructor(m *bytecode.Method) bool {
	name := m.FullName()
	return strings.Contains(name, ":New:") || strings.HasSuffix(name, ":New") || strings.HasPrefix(m.Name, "New:")
}

// ============================================================================
// 展开
// ============================================================================

// expand 生成替换一次调用的指令序列
func expand(call bytecode.Instr, callee *bytecode.Method, base int64, scope *LabelScope) []bytecode.Instr {
	body := callee.Blocks[0].Instrs
	out := make([]bytecode.Instr, 0, len(body))
	out = append(out, bytecode.NewVar(call.Line, bytecode.OpStorIntVar, base, bytecode.CtxLocal))
	for _, ld := range staleReads(body) {
		out = append(out, zeroSlot(call.Line, ld.Op, base+1+ld.Operand)...)
	}

	for _, in := range body[:len(body)-1] {
		switch {
		case in.Op.IsVariable():
			in = in.WithOperand(base + 1 + in.Operand)
		case in.Op == bytecode.OpLoadInstMem:
			in = bytecode.NewVar(in.Line, bytecode.OpLoadIntVar, base, bytecode.CtxLocal)
		case in.Op == bytecode.OpJmp || in.Op == bytecode.OpLbl:
			in = in.WithOperand(scope.Map(in.Operand))
		}
		out = append(out, in)
	}
	return out
}

// staleReads 每个在写入之前可能被读取的局部槽位的第一次读取
//
// 只有第一个标签或跳转之前的写入算作确定写入；之后的写入可能被跳过。
func staleReads(body []bytecode.Instr) []bytecode.Instr {
	written := make(map[int64]bool)
	seen := make(map[int64]bool)
	straight := true
	var out []bytecode.Instr
	for _, in := range body {
		if in.Op == bytecode.OpLbl || in.Op == bytecode.OpJmp {
			straight = false
		}
		if !in.Op.IsVariable() || in.Ctx() != bytecode.CtxLocal {
			continue
		}
		switch in.Op {
		case bytecode.OpLoadIntVar, bytecode.OpLoadFloatVar, bytecode.OpLoadFuncVar:
			if !written[in.Operand] && !seen[in.Operand] {
				seen[in.Operand] = true
				out = append(out, in)
			}
		default:
			if straight {
				written[in.Operand] = true
			}
		}
	}
	return out
}

// zeroSlot 按读取的类型清零一个重映射后的槽位
func zeroSlot(line int, load bytecode.Opcode, slot int64) []bytecode.Instr {
	local := func(op bytecode.Opcode) bytecode.Instr {
		return bytecode.NewVar(line, op, slot, bytecode.CtxLocal)
	}
	switch load {
	case bytecode.OpLoadFloatVar:
		return []bytecode.Instr{bytecode.NewFloat(line, 0), local(bytecode.OpStorFloatVar)}
	case bytecode.OpLoadFuncVar:
		zero := bytecode.NewInt(line, bytecode.OpLoadIntLit, 0)
		return []bytecode.Instr{zero, zero, local(bytecode.OpStorFuncVar)}
	}
	return []bytecode.Instr{bytecode.NewInt(line, bytecode.OpLoadIntLit, 0), local(bytecode.OpStorIntVar)}
}

// minLabel 方法中最小的标签 id
func minLabel(m *bytecode.Method) int64 {
	var min int64
	for _, b := range m.Blocks {
		for _, in := range b.Instrs {
			if (in.Op == bytecode.OpLbl || in.Op == bytecode.OpJmp) && in.Operand < min {
				min = in.Operand
			}
		}
	}
	return min
}

// InlineMethods 展开 ctx.Method 中所有可内联的直接调用，返回展开次数
func InlineMethods(ctx *Context) int {
	m := ctx.Method
	if ctx.Program == nil {
		return 0
	}
	if ctx.Labels == nil {
		ctx.Labels = NewLabelAllocator()
	}
	ctx.Labels.Below(minLabel(m))

	count := 0
	blocks := make([]bytecode.Block, len(m.Blocks))
	for bi, b := range m.Blocks {
		var out bytecode.Block
		for _, instr := range b.Instrs {
			if instr.Op != bytecode.OpMthdCall {
				out.Add(instr)
				continue
			}
			callee := ctx.Program.Method(int(instr.Operand), int(instr.Operand2))
			d := DecideInlining(m, callee, ctx.maxInlineSpace)
			if !d.ShouldInline {
				if ctx.Logger != nil && callee != nil {
					ctx.Logger.Debug("inline skipped",
						zap.String("caller", m.FullName()),
						zap.String("callee", callee.FullName()),
						zap.String("reason", d.Reason))
				}
				out.Add(instr)
				continue
			}

			base := int64(m.Space)
			for _, e := range expand(instr, callee, base, ctx.Labels.Scope()) {
				out.Add(e)
			}
			m.Space += callee.Space + 1
			m.HasAndOr = m.HasAndOr || callee.HasAndOr
			count++
		}
		blocks[bi] = out
	}
	if count > 0 {
		m.SetBlocks(blocks)
		ctx.Stats.MethodsInlined += count
	}
	return count
}
