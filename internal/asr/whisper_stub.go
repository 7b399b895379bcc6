//go:build !whisper

package asr

import (
	"fmt"

	"whispercli/internal/fault"
)

// Available reports whether the whisper.cpp engine is compiled in.
const Available = false

// Load fails in builds without the whisper tag.
func Load(path string, opts Options) (Engine, error) {
	return nil, fmt.Errorf("%w: whisper support not built; rebuild with -tags whisper", fault.ErrConfiguration)
}
