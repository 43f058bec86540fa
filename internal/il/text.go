package il

import (
	"fmt"
	"strings"
)

// Render produces the module's external text form (spec §6): one
// extern declaration per line, one string constant per line, then each
// function as `func name(params) type { ... }` with blocks written
// `label(params):` followed by indented instructions of the form
// `%<id> = <opcode> <type>, <operands>` (or bare `<opcode> <operands>`
// for instructions with no result).
func Render(m *Module) string {
	var sb strings.Builder
	for _, e := range m.Externs {
		fmt.Fprintf(&sb, "extern %s(%s) %s\n", e.Symbol, joinTypes(e.Params), e.Return)
	}
	for _, g := range m.Globals {
		fmt.Fprintf(&sb, "global %s = %q\n", g.Name, g.Value)
	}
	for _, fn := range m.Functions {
		sb.WriteString(renderFunction(fn))
	}
	return sb.String()
}

func renderFunction(fn *Function) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "func %s(%s) %s {\n", fn.Name, joinParams(fn.Params), fn.Return)
	for _, blk := range fn.Blocks {
		fmt.Fprintf(&sb, "%s(%s):\n", blk.Label, joinParams(blk.Params))
		for _, inst := range blk.Instructions {
			sb.WriteString("  ")
			sb.WriteString(renderInstruction(inst))
			sb.WriteString("\n")
		}
	}
	sb.WriteString("}\n")
	return sb.String()
}

func renderInstruction(inst Instruction) string {
	operands := joinValues(inst.Operands)
	var body string
	switch inst.Op {
	case OpICmp, OpFCmp:
		body = fmt.Sprintf("%s.%s %s, %s", inst.Op, inst.Predicate, inst.Type, operands)
	case OpCall, OpCallIndirect:
		body = fmt.Sprintf("%s %s(%s)", inst.Op, inst.Callee, operands)
	case OpBr:
		body = fmt.Sprintf("br %s", renderTargets(inst.Targets, inst.TargetArgs))
	case OpCBr:
		body = fmt.Sprintf("cbr %s, %s", valueString(inst.Operands[0]), renderTargets(inst.Targets, inst.TargetArgs))
	case OpRet:
		body = fmt.Sprintf("ret %s", operands)
	case OpRetVoid:
		body = "ret.void"
	case OpEHPush:
		body = fmt.Sprintf("eh.push %s", inst.Targets[0])
	case OpEHPop:
		body = "eh.pop"
	case OpEHEntry:
		body = "eh.entry"
	case OpResumeSame:
		body = fmt.Sprintf("resume.same %s", operands)
	case OpResumeLabel:
		body = fmt.Sprintf("resume.label %s, %s", operands, inst.Targets[0])
	default:
		body = fmt.Sprintf("%s %s, %s", inst.Op, inst.Type, operands)
	}
	if inst.HasResult && inst.HasResult2 {
		return fmt.Sprintf("%%%d, %%%d = %s", inst.Result, inst.Result2, body)
	}
	if inst.HasResult {
		return fmt.Sprintf("%%%d = %s", inst.Result, body)
	}
	return body
}

func renderTargets(targets []string, args [][]Value) string {
	parts := make([]string, len(targets))
	for i, t := range targets {
		var argStr string
		if i < len(args) {
			argStr = joinValues(args[i])
		}
		parts[i] = fmt.Sprintf("%s(%s)", t, argStr)
	}
	return strings.Join(parts, ", ")
}

func valueString(v Value) string {
	switch v.Kind {
	case VConstInt:
		return fmt.Sprintf("%d", v.Int)
	case VConstFloat:
		return fmt.Sprintf("%g", v.Float)
	case VConstBool:
		return fmt.Sprintf("%t", v.Bool)
	case VConstStr:
		return fmt.Sprintf("%q", v.Str)
	case VTemp:
		return fmt.Sprintf("%%%d", v.Temp)
	case VGlobal:
		return "@" + v.Str
	case VNull:
		return "null"
	default:
		return "?"
	}
}

func joinValues(vs []Value) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = valueString(v)
	}
	return strings.Join(parts, ", ")
}

func joinParams(ps []Param) string {
	parts := make([]string, len(ps))
	for i, p := range ps {
		parts[i] = fmt.Sprintf("%s: %s", p.Name, p.Type)
	}
	return strings.Join(parts, ", ")
}

func joinTypes(ts []Type) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = t.String()
	}
	return strings.Join(parts, ", ")
}
