package debugmon

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/ddscore/internal/domain"
	"github.com/ocx/ddscore/internal/entity"
	"github.com/ocx/ddscore/internal/qos"
	"github.com/ocx/ddscore/internal/rtps"
)

func testPrefix(b byte) entity.GUIDPrefix {
	var p entity.GUIDPrefix
	p[0] = b
	return p
}

func TestDumpIncludesParticipantAndEndpoints(t *testing.T) {
	d := domain.New(7, testPrefix(9), nil)
	p, err := d.CreateParticipant(qos.Default(), nil, rtps.NeverDuration, rtps.Now())
	require.NoError(t, err)
	w, err := d.CreateWriter(p, "square", "ShapeType", qos.Default())
	require.NoError(t, err)
	r, err := d.CreateReader(p, "square", "ShapeType", qos.Default())
	require.NoError(t, err)

	lines := Dump(d, nil)
	joined := strings.Join(lines, "\n")

	assert.Contains(t, joined, "domain 7")
	assert.Contains(t, joined, p.GUID().String())
	assert.Contains(t, joined, w.GUID().String())
	assert.Contains(t, joined, r.GUID().String())
	assert.Contains(t, joined, "topic=square")
}

func TestDumpAppendsPluginOutput(t *testing.T) {
	d := domain.New(8, testPrefix(10), nil)
	_, err := d.CreateParticipant(qos.Default(), nil, rtps.NeverDuration, rtps.Now())
	require.NoError(t, err)

	reg := newTestRegistry(t, &fakePlugin{name: "extra", lines: []string{"extra line 1"}})
	lines := Dump(d, reg)

	assert.Contains(t, lines, "extra line 1")
}
