package asr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestShift(t *testing.T) {
	seg := Segment{Text: " hi", Start: 200 * time.Millisecond, End: 900 * time.Millisecond}
	got := Shift(seg, 3*time.Second)
	require.Equal(t, 3200*time.Millisecond, got.Start)
	require.Equal(t, 3900*time.Millisecond, got.End)
	require.Equal(t, " hi", got.Text)
	require.Equal(t, 200*time.Millisecond, seg.Start)
}
