package iio

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alsd/errcode"
)

func write(t *testing.T, dir, name, val string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(val+"\n"), 0o644))
}

func TestProcessedInputPreferred(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "in_illuminance_input", "512.25")
	write(t, dir, "in_illuminance_raw", "9")

	s, err := Open(dir, 0)
	require.NoError(t, err)
	v, err := s.ReadSample(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 512.25, v)
}

func TestRawScaledWithOffset(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "in_illuminance_raw", "100")
	write(t, dir, "in_illuminance_scale", "0.5")
	write(t, dir, "in_illuminance_offset", "4")

	s, err := Open(dir, 3)
	require.NoError(t, err)
	v, err := s.ReadSample(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 52.0, v)
}

func TestRawUsesParamScale(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "in_illuminance_raw", "100")
	s, err := Open(dir, 2)
	require.NoError(t, err)
	v, _ := s.ReadSample(context.Background())
	assert.Equal(t, 200.0, v)
}

func TestMissingChannel(t *testing.T) {
	_, err := Open(t.TempDir(), 0)
	assert.Equal(t, errcode.UnknownDevice, errcode.Of(err))
}

func TestUnreadableValue(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "in_illuminance_raw", "garbage")
	s, err := Open(dir, 0)
	require.NoError(t, err)
	_, err = s.ReadSample(context.Background())
	assert.Equal(t, errcode.Unavailable, errcode.Of(err))
}
