package mesh

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUniform1D(t *testing.T) {
	m, err := NewUniform1D(0, 1, 4, false, BoundaryTags{XMin: "inflow", XMax: "outflow"})
	require.NoError(t, err)
	assert.Equal(t, 4, m.K)
	assert.Len(t, m.Interfaces, 3)
	assert.Len(t, m.Boundaries, 2)
	assert.Empty(t, m.Mortars)

	for _, iface := range m.Interfaces {
		assert.Equal(t, iface.Left+1, iface.Right, "left neighbor is one element behind")
	}
	tagsSeen := map[string]int{}
	for _, b := range m.Boundaries {
		tagsSeen[b.Tag]++
		if b.Tag == "inflow" {
			assert.Equal(t, -1, b.NormalSign)
			assert.Equal(t, 0, b.Element)
		}
	}
	assert.Equal(t, map[string]int{"inflow": 1, "outflow": 1}, tagsSeen)

	// Jacobian of a quarter-unit element
	assert.InDelta(t, 8.0, m.InvJacobian[0], 1e-14)
}

func TestUniform1DPeriodic(t *testing.T) {
	m, err := NewUniform1D(0, 2, 2, true, DefaultTags())
	require.NoError(t, err)
	assert.Len(t, m.Interfaces, 2)
	assert.Empty(t, m.Boundaries)

	_, err = NewUniform1D(0, 1, 1, true, DefaultTags())
	require.Error(t, err, "single periodic element is degenerate")
}

func TestUniform2D(t *testing.T) {
	m, err := NewUniform2D(0, 3, 0, 3, 3, 3, false, false, DefaultTags())
	require.NoError(t, err)
	assert.Equal(t, 9, m.K)
	assert.Len(t, m.Interfaces, 12)
	assert.Len(t, m.Boundaries, 12)

	xCount, yCount := 0, 0
	for _, iface := range m.Interfaces {
		if iface.Orientation == 0 {
			xCount++
		} else {
			yCount++
		}
	}
	assert.Equal(t, 6, xCount)
	assert.Equal(t, 6, yCount)
}

func TestUniform2DPeriodic(t *testing.T) {
	m, err := NewUniform2D(0, 2, 0, 2, 2, 2, true, true, DefaultTags())
	require.NoError(t, err)
	assert.Len(t, m.Interfaces, 8)
	assert.Empty(t, m.Boundaries)
}

func TestUniform2DRejectsNonSquareCells(t *testing.T) {
	_, err := NewUniform2D(0, 2, 0, 1, 2, 4, false, false, DefaultTags())
	require.Error(t, err)
}

func TestRefined2D(t *testing.T) {
	// 2x2 base grid, lower-left cell refined once.
	m, err := NewRefined2D(0, 2, 0, 2, 2, 2, []int{0}, false, false, DefaultTags())
	require.NoError(t, err)
	assert.Equal(t, 7, m.K, "3 coarse + 4 children")

	// 4 child-child + 2 coarse-coarse conforming interfaces
	assert.Len(t, m.Interfaces, 6)
	// refined cell borders two unrefined neighbors
	require.Len(t, m.Mortars, 2)
	assert.Len(t, m.Boundaries, 10)

	for _, mt := range m.Mortars {
		assert.True(t, mt.Valid[0] && mt.Valid[1])
		assert.Equal(t, 0, m.Levels[mt.Large])
		assert.Equal(t, 1, m.Levels[mt.Small[0]])
		assert.Equal(t, 1, m.Levels[mt.Small[1]])
		assert.False(t, mt.EqualResolution)
		// child lengths are half the coarse length
		assert.InDelta(t, m.Lengths[mt.Large]/2, m.Lengths[mt.Small[0]], 1e-14)
	}
}

func TestRefined2DAllRefined(t *testing.T) {
	// Refining every cell yields a conforming mesh again, just finer.
	m, err := NewRefined2D(0, 2, 0, 2, 2, 2, []int{0, 1, 2, 3}, false, false, DefaultTags())
	require.NoError(t, err)
	assert.Equal(t, 16, m.K)
	assert.Empty(t, m.Mortars)
	assert.Len(t, m.Interfaces, 24)
}

func TestConvertInterfaceToMortar(t *testing.T) {
	m, err := NewUniform2D(0, 2, 0, 2, 2, 2, false, false, DefaultTags())
	require.NoError(t, err)
	nIfaces := len(m.Interfaces)

	conv, err := m.ConvertInterfaceToMortar(0)
	require.NoError(t, err)
	assert.Len(t, conv.Interfaces, nIfaces-1)
	require.Len(t, conv.Mortars, 1)
	mt := conv.Mortars[0]
	assert.True(t, mt.EqualResolution)
	assert.True(t, mt.Valid[0])
	assert.False(t, mt.Valid[1])
	require.NoError(t, conv.Validate())

	// Original is untouched (Clone is value-semantic)
	assert.Len(t, m.Interfaces, nIfaces)
	assert.Empty(t, m.Mortars)

	_, err = m.ConvertInterfaceToMortar(99)
	require.Error(t, err)
}

func TestValidateCatchesCorruption(t *testing.T) {
	m, err := NewUniform1D(0, 1, 3, false, DefaultTags())
	require.NoError(t, err)

	bad := m.Clone()
	bad.InvJacobian[1] = 1.0
	require.Error(t, bad.Validate())

	bad = m.Clone()
	bad.Interfaces[0].Right = 17
	require.Error(t, bad.Validate())

	bad = m.Clone()
	bad.Boundaries[0].Tag = ""
	require.Error(t, bad.Validate())
}
