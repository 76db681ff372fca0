package app

import (
	"context"
	"fmt"

	"github.com/zclconf/go-cty/cty"

	"github.com/seabeeberry/Graphite/internal/ctxlog"
	"github.com/seabeeberry/Graphite/internal/document"
	"github.com/seabeeberry/Graphite/internal/hclgraph"
	"github.com/seabeeberry/Graphite/internal/value"
)

// Run loads, validates, compiles, and evaluates the configured document,
// then prints the target's tagged value.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	doc, err := hclgraph.LoadFile(ctx, a.config.DocumentPath)
	if err != nil {
		return fmt.Errorf("failed to load document: %w", err)
	}
	a.logger.Debug("Document loaded.", "node_count", doc.Len())

	if err := doc.Validate(a.catalog); err != nil {
		return fmt.Errorf("document is not valid: %w", err)
	}

	pg, err := a.compiler.Compile(ctx, doc)
	if err != nil {
		return fmt.Errorf("compilation failed: %w", err)
	}
	a.executor.Adopt(ctx, pg)
	a.logger.Info("Graph compiled and adopted.", "generation", pg.Generation, "nodes", len(pg.Nodes))

	target := a.config.Target
	if target == "" {
		target = lastNodeID(doc)
	}
	if target == "" {
		return fmt.Errorf("document has no nodes to evaluate")
	}

	a.logger.Info("Evaluating target.", "target", target)
	val, err := a.executor.Evaluate(ctx, target)
	if err != nil {
		return fmt.Errorf("evaluation failed: %w", err)
	}

	fmt.Fprintf(a.outW, "%s = %s\n", target, formatValue(val))
	a.logger.Debug("App.Run method finished.")
	return nil
}

func lastNodeID(doc *document.Graph) string {
	nodes := doc.Nodes()
	if len(nodes) == 0 {
		return ""
	}
	return string(nodes[len(nodes)-1].ID)
}

// formatValue renders an evaluation result with its type tag. Capsule
// payloads are summarized rather than dumped.
func formatValue(v cty.Value) string {
	if v == cty.NilVal || v.IsNull() {
		return "null"
	}
	switch ty := v.Type(); {
	case ty.Equals(cty.Number):
		f, _ := v.AsBigFloat().Float64()
		return fmt.Sprintf("%v (number)", f)
	case ty.Equals(cty.String):
		return fmt.Sprintf("%q (string)", v.AsString())
	case ty.Equals(cty.Bool):
		return fmt.Sprintf("%v (bool)", v.True())
	case ty.Equals(value.RasterType):
		r, err := value.AsRaster(v)
		if err != nil {
			return "invalid raster"
		}
		return fmt.Sprintf("raster %dx%d", r.Width, r.Height)
	case ty.Equals(value.PathSetType):
		ps, err := value.AsPathSet(v)
		if err != nil {
			return "invalid pathset"
		}
		return fmt.Sprintf("pathset with %d subpaths", len(ps.Subpaths))
	default:
		return fmt.Sprintf("%v (%s)", v.GoString(), ty.FriendlyName())
	}
}
