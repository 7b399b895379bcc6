package fault

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: 0},
		{name: "already running is quiet", err: fmt.Errorf("%w: pid 12", ErrAlreadyRunning), want: 0},
		{name: "configuration", err: fmt.Errorf("%w: delay -1", ErrConfiguration), want: 2},
		{name: "device", err: fmt.Errorf("%w: index 4", ErrDevice), want: 1},
		{name: "asset", err: ErrAssetUnavailable, want: 1},
		{name: "conversion", err: fmt.Errorf("%w: ffmpeg exit 1", ErrConversion), want: 1},
		{name: "unclassified", err: errors.New("boom"), want: 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, ExitCode(tc.err))
		})
	}
}

func TestFatal(t *testing.T) {
	require.True(t, Fatal(fmt.Errorf("load: %w", ErrAssetUnavailable)))
	require.True(t, Fatal(ErrDevice))
	require.False(t, Fatal(ErrTranscription))
	require.False(t, Fatal(ErrIO))
	require.False(t, Fatal(nil))
}
