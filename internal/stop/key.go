package stop

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"whispercli/internal/fault"

	"golang.org/x/term"
)

const ctrlC = 0x03

// Key is a named key and the bytes a terminal sends for it.
type Key struct {
	Name  string
	Bytes []byte
}

// ParseKey accepts space, enter, esc, tab or a single printable character.
func ParseKey(s string) (Key, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	switch name {
	case "space", " ":
		return Key{Name: "space", Bytes: []byte{' '}}, nil
	case "enter", "return":
		return Key{Name: "enter", Bytes: []byte{'\r', '\n'}}, nil
	case "esc", "escape":
		return Key{Name: "esc", Bytes: []byte{0x1b}}, nil
	case "tab":
		return Key{Name: "tab", Bytes: []byte{'\t'}}, nil
	}
	if len(s) == 1 && s[0] > ' ' && s[0] < 0x7f {
		c := s[0]
		k := Key{Name: string(c), Bytes: []byte{c}}
		lower, upper := strings.ToLower(string(c)), strings.ToUpper(string(c))
		if lower != upper {
			k.Bytes = []byte{lower[0], upper[0]}
		}
		return k, nil
	}
	return Key{}, fmt.Errorf("%w: unsupported stop key %q", fault.ErrConfiguration, s)
}

// KeyReader reads keystrokes on its own goroutine and remembers which bytes
// were seen. Ctrl-C, which raw mode delivers as a byte instead of a signal,
// triggers the interrupt callback.
type KeyReader struct {
	mu          sync.Mutex
	seen        map[byte]bool
	onInterrupt func()
	interrupted sync.Once

	raw     atomic.Bool
	restore func() error
	done    chan struct{}
}

// NewKeyReader starts reading r. The reader goroutine exits on read error or EOF.
func NewKeyReader(r io.Reader, onInterrupt func()) *KeyReader {
	k := &KeyReader{seen: map[byte]bool{}, onInterrupt: onInterrupt, done: make(chan struct{})}
	go k.loop(r)
	return k
}

// OpenTerminal puts f into raw mode when it is a terminal and starts reading it.
// Close restores the previous mode.
func OpenTerminal(f *os.File, onInterrupt func()) (*KeyReader, error) {
	fd := int(f.Fd())
	var restore func() error
	if term.IsTerminal(fd) {
		prev, err := term.MakeRaw(fd)
		if err != nil {
			return nil, fmt.Errorf("raw terminal: %w", err)
		}
		restore = func() error { return term.Restore(fd, prev) }
	}
	k := NewKeyReader(f, onInterrupt)
	if restore != nil {
		k.raw.Store(true)
		k.restore = restore
	}
	return k, nil
}

func (k *KeyReader) loop(r io.Reader) {
	defer close(k.done)
	buf := make([]byte, 16)
	for {
		n, err := r.Read(buf)
		for _, b := range buf[:n] {
			if b == ctrlC && k.onInterrupt != nil {
				k.interrupted.Do(k.onInterrupt)
				continue
			}
			k.mu.Lock()
			k.seen[b] = true
			k.mu.Unlock()
		}
		if err != nil {
			return
		}
	}
}

// Pressed reports whether any of bytes has been read.
func (k *KeyReader) Pressed(bytes ...byte) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, b := range bytes {
		if k.seen[b] {
			return true
		}
	}
	return false
}

// Reset forgets every key read so far.
func (k *KeyReader) Reset() {
	k.mu.Lock()
	clear(k.seen)
	k.mu.Unlock()
}

// Raw reports whether the terminal is currently in raw mode.
func (k *KeyReader) Raw() bool { return k.raw.Load() }

// Done is closed when the reader goroutine exits.
func (k *KeyReader) Done() <-chan struct{} { return k.done }

// Close restores the terminal. A goroutine blocked reading stdin is left to
// end with the process.
func (k *KeyReader) Close() error {
	if !k.raw.Swap(false) || k.restore == nil {
		return nil
	}
	return k.restore()
}

type keyPress struct {
	r   *KeyReader
	key Key
}

func (p keyPress) Evaluate() bool { return p.r.Pressed(p.key.Bytes...) }

func (p keyPress) Reset() { p.r.Reset() }

// KeyPress fires once key has been read by r.
func KeyPress(r *KeyReader, key Key) Condition { return keyPress{r: r, key: key} }
