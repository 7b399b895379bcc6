package media

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"whispercli/internal/audio"
	"whispercli/internal/fault"

	"github.com/stretchr/testify/require"
)

func writeWAV(t *testing.T, path string, rate int, samples []int16) {
	t.Helper()
	sink := audio.NewWAVSink(path)
	require.NoError(t, sink.Open(audio.Format{SampleRate: rate, Channels: 1, FrameSamples: len(samples)}))
	require.NoError(t, sink.Write(samples))
	require.NoError(t, sink.Close())
}

func TestConvertRunsFFmpegAndCleansUp(t *testing.T) {
	dir := t.TempDir()
	tmpDir := filepath.Join(dir, "tmp")
	input := filepath.Join(dir, "sample.mp3")
	require.NoError(t, os.WriteFile(input, []byte("ID3"), 0o600))

	var gotArgs []string
	f := &FFmpeg{
		Path:    "/opt/ffmpeg",
		TempDir: tmpDir,
		Run: func(_ context.Context, name string, args ...string) ([]byte, error) {
			require.Equal(t, "/opt/ffmpeg", name)
			gotArgs = args
			writeWAV(t, args[len(args)-1], 16000, []int16{16384, -16384, 0})
			return nil, nil
		},
	}

	res, err := f.Convert(context.Background(), input)
	require.NoError(t, err)
	require.Equal(t, []float32{0.5, -0.5, 0}, res.Samples)
	require.Empty(t, res.Warnings)
	require.Contains(t, gotArgs, "-vn")
	require.Subset(t, gotArgs, []string{"-i", input, "-ar", "16000", "-ac", "1", "-sample_fmt", "s16"})

	entries, err := os.ReadDir(tmpDir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestConvertCanonicalWAVSkipsFFmpeg(t *testing.T) {
	input := filepath.Join(t.TempDir(), "clip.wav")
	writeWAV(t, input, 16000, []int16{8192, 8192})

	f := &FFmpeg{Run: func(context.Context, string, ...string) ([]byte, error) {
		return nil, errors.New("should not run")
	}}
	res, err := f.Convert(context.Background(), input)
	require.NoError(t, err)
	require.Equal(t, []float32{0.25, 0.25}, res.Samples)
}

func TestConvertNonCanonicalWAVUsesFFmpeg(t *testing.T) {
	input := filepath.Join(t.TempDir(), "clip.wav")
	writeWAV(t, input, 44100, []int16{1, 2, 3})

	calls := 0
	f := &FFmpeg{TempDir: t.TempDir(), Run: func(_ context.Context, _ string, args ...string) ([]byte, error) {
		calls++
		writeWAV(t, args[len(args)-1], 16000, []int16{0})
		return nil, nil
	}}
	_, err := f.Convert(context.Background(), input)
	require.NoError(t, err)
	require.Equal(t, 1, calls)
}

func TestConvertMissingInput(t *testing.T) {
	f := &FFmpeg{}
	_, err := f.Convert(context.Background(), filepath.Join(t.TempDir(), "nope.mp3"))
	require.ErrorIs(t, err, fault.ErrConfiguration)
}

func TestConvertFFmpegFailure(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "broken.mkv")
	require.NoError(t, os.WriteFile(input, []byte("junk"), 0o600))
	tmpDir := filepath.Join(dir, "tmp")

	f := &FFmpeg{TempDir: tmpDir, Run: func(context.Context, string, ...string) ([]byte, error) {
		return []byte("Invalid data found when processing input"), errors.New("exit status 1")
	}}
	_, err := f.Convert(context.Background(), input)
	require.ErrorIs(t, err, fault.ErrConversion)
	require.Contains(t, err.Error(), "Invalid data found")

	entries, err := os.ReadDir(tmpDir)
	require.NoError(t, err)
	require.Empty(t, entries)
}
