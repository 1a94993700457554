package progress

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/vertextoedge/firefox-downloader/internal/util/ratelimiter"
)

// DefaultUpdateInterval caps redraws at ten per second
const DefaultUpdateInterval = 100 * time.Millisecond

// Sink receives progress from a transfer loop
type Sink interface {
	// Start begins a transfer of total bytes; total < 0 means unknown
	Start(total int64)
	// Update reports the cumulative number of bytes written
	Update(current int64)
	// Finish draws the final complete line
	Finish()
	// Abort ends an unfinished transfer line
	Abort()
}

// Nop discards all progress
type Nop struct{}

func (Nop) Start(int64)  {}
func (Nop) Update(int64) {}
func (Nop) Finish()      {}
func (Nop) Abort()       {}

// Options configures a Renderer
type Options struct {
	// Output is where the progress line is drawn.
	// Default: os.Stdout
	Output io.Writer

	// UpdateInterval is the minimum time between redraws.
	// Default: 100ms
	UpdateInterval time.Duration

	// Width is the bar width in characters.
	// Default: 40
	Width int

	// Now is the clock used for rate limiting.
	// Default: time.Now
	Now func() time.Time
}

// Renderer draws a Bar on a single line, redrawn with a carriage return
type Renderer struct {
	opts    Options
	mu      sync.Mutex
	limiter *ratelimiter.Limiter
	bar     *Bar
	drawn   bool
}

// NewRenderer creates a renderer that always draws
func NewRenderer(opts Options) *Renderer {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.UpdateInterval == 0 {
		opts.UpdateInterval = DefaultUpdateInterval
	}
	if opts.Width <= 0 {
		opts.Width = defaultWidth
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Renderer{
		opts:    opts,
		limiter: ratelimiter.NewWithClock(opts.UpdateInterval, opts.Now),
	}
}

// ForOutput returns a Renderer when w is an interactive terminal and Nop otherwise
func ForOutput(w io.Writer, interval time.Duration) Sink {
	if !IsTerminal(w) {
		return Nop{}
	}
	return NewRenderer(Options{Output: w, UpdateInterval: interval})
}

// IsTerminal reports whether w is a terminal file
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Start begins a new bar; the first Update is always drawn
func (r *Renderer) Start(total int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.bar = NewBar(0, total)
	r.bar.Width = r.opts.Width
	r.limiter.Reset()
	r.drawn = false
}

// Update records progress and redraws when the rate limit allows
func (r *Renderer) Update(current int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.bar == nil {
		return
	}
	r.bar.Set(current)
	if allowed, _ := r.limiter.Allow(); allowed {
		r.draw()
	}
}

// Finish draws the final state and ends the line
func (r *Renderer) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.bar == nil {
		return
	}
	r.draw()
	io.WriteString(r.opts.Output, "\n")
	r.bar = nil
	r.drawn = false
}

// Abort ends the line if anything was drawn
func (r *Renderer) Abort() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.drawn {
		io.WriteString(r.opts.Output, "\n")
	}
	r.bar = nil
	r.drawn = false
}

func (r *Renderer) draw() {
	io.WriteString(r.opts.Output, "\r"+r.bar.String())
	r.drawn = true
}
