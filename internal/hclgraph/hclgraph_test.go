package hclgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/seabeeberry/Graphite/internal/document"
)

func TestLoadBytes(t *testing.T) {
	t.Run("flat document with literals and wires", func(t *testing.T) {
		src := `
node "a" "constant" {
  input { literal = 13 }
}
node "b" "double" {
  input { from = "a" }
}
node "c" "add" {
  input { from = "b" }
  input { literal = 10 }
}
`
		g, err := LoadBytes([]byte(src), "flat.graph")
		require.NoError(t, err)
		require.Equal(t, 3, g.Len())

		a, ok := g.Node("a")
		require.True(t, ok)
		assert.Equal(t, "constant", a.Op)
		require.Len(t, a.Inputs, 1)
		assert.True(t, a.Inputs[0].Literal.RawEquals(cty.NumberIntVal(13)))

		c, ok := g.Node("c")
		require.True(t, ok)
		require.Len(t, c.Inputs, 2)
		assert.Equal(t, document.NodeID("b"), c.Inputs[0].From)
		assert.True(t, c.Inputs[1].Literal.RawEquals(cty.NumberIntVal(10)))
	})

	t.Run("string and bool literals", func(t *testing.T) {
		src := `
node "s" "constant" {
  input { literal = "hello" }
}
node "f" "constant" {
  input { literal = true }
}
`
		g, err := LoadBytes([]byte(src), "lit.graph")
		require.NoError(t, err)

		s, ok := g.Node("s")
		require.True(t, ok)
		assert.True(t, s.Inputs[0].Literal.RawEquals(cty.StringVal("hello")))

		f, ok := g.Node("f")
		require.True(t, ok)
		assert.True(t, f.Inputs[0].Literal.RawEquals(cty.True))
	})

	t.Run("network instantiation builds a nested graph", func(t *testing.T) {
		src := `
network "plus_one" {
  param "p" {}
  node "d" "double" {
    input { from = "p" }
  }
  node "s" "add" {
    input { from = "d" }
    input { literal = 1 }
  }
  output = "s"
}
node "src" "double" {
  input { literal = 2 }
}
node "z" "plus_one" {
  input { from = "src" }
}
`
		g, err := LoadBytes([]byte(src), "net.graph")
		require.NoError(t, err)

		z, ok := g.Node("z")
		require.True(t, ok)
		require.Equal(t, document.KindNetwork, z.Kind)
		require.NotNil(t, z.Network)
		assert.Equal(t, document.NodeID("s"), z.Network.Output)

		p, ok := z.Network.Node("p")
		require.True(t, ok)
		assert.Equal(t, document.KindParameter, p.Kind)
		assert.Equal(t, 0, p.Param)
	})

	t.Run("each use gets its own sub-graph", func(t *testing.T) {
		src := `
network "wrap" {
  node "n" "double" {
    input { literal = 1 }
  }
  output = "n"
}
node "x" "wrap" {}
node "y" "wrap" {}
`
		g, err := LoadBytes([]byte(src), "twice.graph")
		require.NoError(t, err)

		x, _ := g.Node("x")
		y, _ := g.Node("y")
		require.NotNil(t, x.Network)
		require.NotNil(t, y.Network)
		assert.NotSame(t, x.Network, y.Network)
	})

	t.Run("malformed source fails to parse", func(t *testing.T) {
		_, err := LoadBytes([]byte(`node "a" {`), "broken.graph")
		assert.Error(t, err)
	})

	t.Run("duplicate network name", func(t *testing.T) {
		src := `
network "n" {
  node "a" "double" {
    input { literal = 1 }
  }
  output = "a"
}
network "n" {
  node "a" "double" {
    input { literal = 2 }
  }
  output = "a"
}
`
		_, err := LoadBytes([]byte(src), "dup.graph")
		require.ErrorIs(t, err, ErrBadDocument)
		assert.Contains(t, err.Error(), `duplicate network "n"`)
	})

	t.Run("self-instantiating network", func(t *testing.T) {
		src := `
network "loop" {
  node "inner" "loop" {}
  output = "inner"
}
node "root" "loop" {}
`
		_, err := LoadBytes([]byte(src), "loop.graph")
		assert.ErrorIs(t, err, document.ErrUnboundedRecursion)
	})

	t.Run("network output must exist", func(t *testing.T) {
		src := `
network "bad" {
  node "a" "double" {
    input { literal = 1 }
  }
  output = "ghost"
}
node "use" "bad" {}
`
		_, err := LoadBytes([]byte(src), "output.graph")
		require.ErrorIs(t, err, ErrBadDocument)
		assert.Contains(t, err.Error(), `"ghost"`)
	})

	t.Run("input with both from and literal", func(t *testing.T) {
		src := `
node "a" "double" {
  input { literal = 1 }
}
node "b" "double" {
  input {
    from    = "a"
    literal = 2
  }
}
`
		_, err := LoadBytes([]byte(src), "both.graph")
		require.ErrorIs(t, err, ErrBadDocument)
		assert.Contains(t, err.Error(), "both from and literal")
	})

	t.Run("empty input block", func(t *testing.T) {
		src := `
node "a" "double" {
  input {}
}
`
		_, err := LoadBytes([]byte(src), "empty.graph")
		require.ErrorIs(t, err, ErrBadDocument)
		assert.Contains(t, err.Error(), "needs from or literal")
	})

	t.Run("literal must be static", func(t *testing.T) {
		src := `
node "a" "double" {
  input { literal = some.variable }
}
`
		_, err := LoadBytes([]byte(src), "var.graph")
		require.ErrorIs(t, err, ErrBadDocument)
		assert.Contains(t, err.Error(), "not static")
	})

	t.Run("duplicate node id", func(t *testing.T) {
		src := `
node "a" "double" {
  input { literal = 1 }
}
node "a" "double" {
  input { literal = 2 }
}
`
		_, err := LoadBytes([]byte(src), "dupnode.graph")
		assert.ErrorIs(t, err, document.ErrDuplicateNode)
	})
}

func TestLoadFile(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := LoadFile(t.Context(), "does-not-exist.graph")
		assert.Error(t, err)
	})
}
