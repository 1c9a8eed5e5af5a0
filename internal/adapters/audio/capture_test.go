package audio

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prajwalbangera/interview-voice/internal/core"
)

func TestAcquireMissingSourceIsDeviceError(t *testing.T) {
	d := NewDevice(filepath.Join(t.TempDir(), "no-such-device.pcm"))

	_, err := d.Acquire(context.Background(), core.DefaultCaptureOptions())
	require.Error(t, err)

	var de *core.DeviceError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "microphone unavailable", de.Reason)
}

func TestAcquireAndCloseIsIdempotent(t *testing.T) {
	src := filepath.Join(t.TempDir(), "mic.pcm")
	require.NoError(t, os.WriteFile(src, make([]byte, frameBytes*2), 0o644))

	d := NewDevice(src)
	track, err := d.Acquire(context.Background(), core.DefaultCaptureOptions())
	require.NoError(t, err)

	assert.Equal(t, "audio", track.Kind())
	assert.NotEmpty(t, track.ID())

	require.NoError(t, track.Close())
	require.NoError(t, track.Close())
}
