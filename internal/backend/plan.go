package backend

import (
	"github.com/zclconf/go-cty/cty"

	"github.com/seabeeberry/Graphite/internal/catalog"
	"github.com/seabeeberry/Graphite/internal/proto"
)

// ArgKind discriminates where a step operand comes from.
type ArgKind int

const (
	// ArgInput reads a boundary input gathered from outside the run.
	ArgInput ArgKind = iota
	// ArgStep reads the output of an earlier step in the same program.
	ArgStep
	// ArgLiteral embeds a constant scalar.
	ArgLiteral
)

// Arg is one operand of a fused step.
type Arg struct {
	Kind    ArgKind
	Index   int
	Literal float64
}

// Step computes one proto node inside a fused program.
type Step struct {
	Node int
	Expr string
	Fn   catalog.CPUFunc
	Args []Arg
}

// Program is a maximal contiguous run of kernel-bearing nodes fused into a
// single dispatch. Inputs lists the proto node indices feeding the run from
// outside; every step's output is surfaced so interior fan-out costs
// nothing extra.
type Program struct {
	Inputs []int
	Steps  []Step
}

// StepFor returns the step index computing the given proto node.
func (p *Program) StepFor(node int) (int, bool) {
	for i, st := range p.Steps {
		if st.Node == node {
			return i, true
		}
	}
	return 0, false
}

// Plan assigns fused programs to regions of a proto graph.
type Plan struct {
	Runs  []*Program
	runOf map[int]int
}

// Run returns the program covering the given proto node, if any.
func (p *Plan) Run(node int) (*Program, bool) {
	i, ok := p.runOf[node]
	if !ok {
		return nil, false
	}
	return p.Runs[i], true
}

// PlanGraph partitions g into maximal contiguous runs of fusable nodes.
// Runs shorter than two nodes are not worth a dispatch and stay on the CPU
// path.
func PlanGraph(g *proto.Graph) *Plan {
	plan := &Plan{runOf: make(map[int]int)}

	start := -1
	flush := func(end int) {
		if start >= 0 && end-start >= 2 {
			prog := buildProgram(g, start, end)
			for _, st := range prog.Steps {
				plan.runOf[st.Node] = len(plan.Runs)
			}
			plan.Runs = append(plan.Runs, prog)
		}
		start = -1
	}

	for i := range g.Nodes {
		if fusable(g, i) {
			if start < 0 {
				start = i
			}
			continue
		}
		flush(i)
	}
	flush(len(g.Nodes))
	return plan
}

func fusable(g *proto.Graph, i int) bool {
	n := &g.Nodes[i]
	if n.Err != nil || n.Instance == nil || n.Instance.Kernel == nil {
		return false
	}
	if !n.Type.Equals(cty.Number) {
		return false
	}
	for _, in := range n.Inputs {
		if in.Wired() {
			if !g.Nodes[in.Node].Type.Equals(cty.Number) {
				return false
			}
		} else if in.Literal.IsNull() || !in.Literal.Type().Equals(cty.Number) {
			return false
		}
	}
	return true
}

func buildProgram(g *proto.Graph, start, end int) *Program {
	prog := &Program{}
	stepOf := make(map[int]int, end-start)
	inputOf := make(map[int]int)

	boundary := func(node int) int {
		if i, ok := inputOf[node]; ok {
			return i
		}
		i := len(prog.Inputs)
		inputOf[node] = i
		prog.Inputs = append(prog.Inputs, node)
		return i
	}

	for i := start; i < end; i++ {
		n := &g.Nodes[i]
		st := Step{Node: i, Expr: n.Instance.Kernel.Expr, Fn: n.Instance.Fn}
		for _, in := range n.Inputs {
			switch {
			case !in.Wired():
				f, _ := in.Literal.AsBigFloat().Float64()
				st.Args = append(st.Args, Arg{Kind: ArgLiteral, Literal: f})
			default:
				if s, ok := stepOf[in.Node]; ok {
					st.Args = append(st.Args, Arg{Kind: ArgStep, Index: s})
				} else {
					st.Args = append(st.Args, Arg{Kind: ArgInput, Index: boundary(in.Node)})
				}
			}
		}
		stepOf[i] = len(prog.Steps)
		prog.Steps = append(prog.Steps, st)
	}
	return prog
}
