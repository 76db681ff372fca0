package backend

import (
	"fmt"
	"strconv"
	"strings"
)

// WGSL renders a program as a compute shader. Boundary inputs arrive in a
// read-only storage buffer; every step writes its scalar to the output
// buffer at its step index.
func WGSL(prog *Program) string {
	var b strings.Builder
	b.WriteString("@group(0) @binding(0) var<storage, read> in: array<f32>;\n")
	b.WriteString("@group(0) @binding(1) var<storage, read_write> out: array<f32>;\n\n")
	b.WriteString("@compute @workgroup_size(1)\nfn main() {\n")
	for i, st := range prog.Steps {
		expr := st.Expr
		// Substitute high placeholders first so $1 never clobbers $10.
		for j := len(st.Args) - 1; j >= 0; j-- {
			expr = strings.ReplaceAll(expr, "$"+strconv.Itoa(j), operand(st.Args[j]))
		}
		fmt.Fprintf(&b, "    let v%d = %s;\n", i, expr)
	}
	for i := range prog.Steps {
		fmt.Fprintf(&b, "    out[%d] = v%d;\n", i, i)
	}
	b.WriteString("}\n")
	return b.String()
}

func operand(a Arg) string {
	switch a.Kind {
	case ArgStep:
		return fmt.Sprintf("v%d", a.Index)
	case ArgLiteral:
		return fmt.Sprintf("f32(%s)", strconv.FormatFloat(a.Literal, 'g', -1, 32))
	default:
		return fmt.Sprintf("in[%d]", a.Index)
	}
}
