package beacon

import (
	"errors"
	"testing"

	"github.com/aprsgo/tncd/internal/ax25"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetComment_UpdatesWithoutTransmitting(t *testing.T) {
	sent := 0
	b, err := New("K1FSY-9", nil, "/>", "FN42aa", "original", func(f *ax25.Frame) error {
		sent++
		return nil
	})
	require.NoError(t, err)

	b.SetComment("updated")

	assert.Equal(t, "updated", b.Comment())
	assert.Equal(t, 0, sent)
}

func TestTransmitNow_BuildsPositionReportWithComment(t *testing.T) {
	var got *ax25.Frame
	b, err := New("K1FSY-9", nil, "/>", "FN42aa", "hello", func(f *ax25.Frame) error {
		got = f
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, b.TransmitNow())
	require.NotNil(t, got)

	assert.Equal(t, "K1FSY-9", got.Src.String())
	assert.Equal(t, byte('!'), got.Info[0])
	assert.Contains(t, string(got.Info), "hello")
}

func TestTransmitNow_RejectsUnresolvableGrid(t *testing.T) {
	b, err := New("K1FSY-9", nil, "/>", "not-a-grid", "hello", func(f *ax25.Frame) error {
		return nil
	})
	require.NoError(t, err)

	assert.Error(t, b.TransmitNow())
}

func TestTransmitNow_PropagatesSenderError(t *testing.T) {
	b, err := New("K1FSY-9", nil, "/>", "FN42aa", "hello", func(f *ax25.Frame) error {
		return errors.New("boom")
	})
	require.NoError(t, err)

	assert.Error(t, b.TransmitNow())
}
