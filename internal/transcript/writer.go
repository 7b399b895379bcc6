package transcript

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// WriteText writes the transcript text exactly as aggregated, UTF-8, no
// trailing newline added.
func WriteText(path string, t Transcript) error {
	return atomicWrite(path, []byte(t.Text))
}

// WriteSRT writes a SubRip subtitle file, one cue per retained segment.
func WriteSRT(path string, t Transcript) error {
	var b strings.Builder
	for i, seg := range t.Segments {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d\n", i+1)
		fmt.Fprintf(&b, "%s --> %s\n", formatSRTTimestamp(seg.Start), formatSRTTimestamp(seg.End))
		fmt.Fprintf(&b, "%s\n", strings.TrimSpace(seg.Text))
	}
	return atomicWrite(path, []byte(b.String()))
}

// WriteVTT writes a WebVTT file.
func WriteVTT(path string, t Transcript) error {
	var b strings.Builder
	b.WriteString("WEBVTT\n")
	for _, seg := range t.Segments {
		b.WriteByte('\n')
		fmt.Fprintf(&b, "%s --> %s\n", formatVTTTimestamp(seg.Start), formatVTTTimestamp(seg.End))
		fmt.Fprintf(&b, "%s\n", strings.TrimSpace(seg.Text))
	}
	return atomicWrite(path, []byte(b.String()))
}

// WriteAll writes t next to basePath (no extension) in every format and
// returns the paths written, txt first when requested. Empty formats means txt.
func WriteAll(basePath string, t Transcript, formats []string) ([]string, error) {
	if len(formats) == 0 {
		formats = []string{"txt"}
	}
	var (
		written []string
		errs    []string
	)
	for _, f := range formats {
		path := basePath + "." + f
		var err error
		switch f {
		case "txt":
			err = WriteText(path, t)
		case "srt":
			err = WriteSRT(path, t)
		case "vtt":
			err = WriteVTT(path, t)
		default:
			errs = append(errs, fmt.Sprintf("unknown format %q", f))
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", f, err))
			continue
		}
		written = append(written, path)
	}
	if len(errs) > 0 {
		return written, fmt.Errorf("transcript write errors: %s", strings.Join(errs, "; "))
	}
	return written, nil
}

func formatSRTTimestamp(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	ms := int(d.Milliseconds()) % 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

func formatVTTTimestamp(d time.Duration) string {
	return strings.Replace(formatSRTTimestamp(d), ",", ".", 1)
}

// atomicWrite writes data to path via a temp file in the same directory and a rename.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".transcript-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	ok := false
	defer func() {
		if !ok {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("writing transcript: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("syncing transcript: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing transcript: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming transcript: %w", err)
	}
	ok = true
	return nil
}
