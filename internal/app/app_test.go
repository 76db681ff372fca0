package app

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDoc(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.graph")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func newTestApp(t *testing.T, out *bytes.Buffer, cfg Config) *App {
	t.Helper()
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "error"
	}
	conf, err := NewConfig(cfg)
	require.NoError(t, err)
	a, err := NewApp(out, conf)
	require.NoError(t, err)
	return a
}

func TestRun(t *testing.T) {
	t.Run("evaluates the last node by default", func(t *testing.T) {
		path := writeDoc(t, `
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
`)
		var out bytes.Buffer
		a := newTestApp(t, &out, Config{DocumentPath: path})
		require.NoError(t, a.Run(t.Context()))
		assert.Contains(t, out.String(), "c = 36 (number)")
	})

	t.Run("explicit target", func(t *testing.T) {
		path := writeDoc(t, `
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
`)
		var out bytes.Buffer
		a := newTestApp(t, &out, Config{DocumentPath: path, Target: "b"})
		require.NoError(t, a.Run(t.Context()))
		assert.Contains(t, out.String(), "b = 26 (number)")
	})

	t.Run("network nodes evaluate through inlining", func(t *testing.T) {
		path := writeDoc(t, `
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
`)
		var out bytes.Buffer
		a := newTestApp(t, &out, Config{DocumentPath: path})
		require.NoError(t, a.Run(t.Context()))
		assert.Contains(t, out.String(), "z = 9 (number)")
	})

	t.Run("capsule results are summarized", func(t *testing.T) {
		path := writeDoc(t, `
node "shape" "circle" {
  input { literal = 6 }
}
node "img" "rasterize" {
  input { from = "shape" }
  input { literal = 16 }
  input { literal = 16 }
}
`)
		var out bytes.Buffer
		a := newTestApp(t, &out, Config{DocumentPath: path})
		require.NoError(t, a.Run(t.Context()))
		assert.Contains(t, out.String(), "img = raster 16x16")
	})

	t.Run("missing document", func(t *testing.T) {
		var out bytes.Buffer
		a := newTestApp(t, &out, Config{DocumentPath: "nope.graph"})
		err := a.Run(t.Context())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to load document")
	})

	t.Run("validation rejects incompatible wires", func(t *testing.T) {
		path := writeDoc(t, `
node "shape" "circle" {
  input { literal = 6 }
}
node "bad" "invert" {
  input { from = "shape" }
}
`)
		var out bytes.Buffer
		a := newTestApp(t, &out, Config{DocumentPath: path})
		err := a.Run(t.Context())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "document is not valid")
	})

	t.Run("evaluation errors are reported", func(t *testing.T) {
		path := writeDoc(t, `
node "boom" "divide" {
  input { literal = 1 }
  input { literal = 0 }
}
`)
		var out bytes.Buffer
		a := newTestApp(t, &out, Config{DocumentPath: path})
		err := a.Run(t.Context())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "evaluation failed")
	})

	t.Run("unknown configured backend fails at construction", func(t *testing.T) {
		conf, err := NewConfig(Config{
			DocumentPath: "whatever.graph",
			Backend:      "abacus",
			LogFormat:    "text",
			LogLevel:     "error",
		})
		require.NoError(t, err)
		var out bytes.Buffer
		_, err = NewApp(&out, conf)
		assert.Error(t, err)
	})
}
