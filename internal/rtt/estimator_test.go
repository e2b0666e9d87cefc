package rtt

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUnsetUntilFirstSample(t *testing.T) {
	var e Estimator
	require.False(t, e.Set())
	_, ok := e.MinUS()
	require.False(t, ok)
}

func TestFirstSampleInitializesBoth(t *testing.T) {
	var e Estimator
	e.AddSample(1000)
	require.True(t, e.Set())
	min, _ := e.MinUS()
	require.EqualValues(t, 1000, min)
	ewma, _ := e.EWMAUS()
	require.Equal(t, 1000.0, ewma)
}

func TestMinTracksLowestSample(t *testing.T) {
	var e Estimator
	e.AddSample(2000)
	e.AddSample(500)
	e.AddSample(900)
	min, _ := e.MinUS()
	require.EqualValues(t, 500, min)
}

func TestEWMAFormula(t *testing.T) {
	var e Estimator
	e.AddSample(1000)
	e.AddSample(2000)
	// ewma = 0.2*2000 + 0.8*1000 = 1200
	ewma, _ := e.EWMAUS()
	require.InDelta(t, 1200.0, ewma, 0.0001)
}
