package caption

import (
	"fmt"
	"io"
	"sync"
)

// Display renders captions on a terminal. Partials overwrite the current
// line in place; finals and banners end it.
type Display struct {
	w     io.Writer
	mu    sync.Mutex
	dirty bool
}

// NewDisplay creates a display writing to w
func NewDisplay(w io.Writer) *Display {
	return &Display{w: w}
}

// ShowPartial redraws the current line with an in-progress caption
func (d *Display) ShowPartial(line string) {
	if line == "" {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	fmt.Fprintf(d.w, "\r%s", line)
	d.dirty = true
}

// ShowFinal prints a final caption and moves to a new line
func (d *Display) ShowFinal(line string) {
	if line == "" {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	fmt.Fprintf(d.w, "\r%s\n", line)
	d.dirty = false
}

// Banner prints a status message on its own line
func (d *Display) Banner(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dirty {
		fmt.Fprintln(d.w)
		d.dirty = false
	}
	fmt.Fprintln(d.w, text)
}
