package debugmon

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ocx/ddscore/pkg/plugins"
)

type fakePlugin struct {
	name  string
	lines []string
}

func (p *fakePlugin) Name() string               { return p.name }
func (p *fakePlugin) Version() string             { return "0.0.1" }
func (p *fakePlugin) Priority() int                { return 100 }
func (p *fakePlugin) Dump() ([]string, error)      { return p.lines, nil }

func newTestRegistry(t *testing.T, plugs ...plugins.DumpPlugin) *plugins.Registry {
	t.Helper()
	reg := plugins.NewRegistry()
	for _, p := range plugs {
		require.NoError(t, reg.Register(p))
	}
	return reg
}
