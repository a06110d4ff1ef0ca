// Package pool runs minification in a set of worker processes.
//
// Each worker is a separate process that loads its own copy of the engine,
// so each has its own process-wide configuration and workers never
// contend for one engine. This is the scale-out path when a single
// process's engine is the bottleneck or when callers need configurations
// that do not interfere with each other.
//
// A worker handles one request at a time. The pool hands each call to an
// idle worker; the context passed to a call bounds only the wait for an
// idle worker. Once a request is sent it runs to completion.
package pool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/fxamacker/cbor/v2"

	"github.com/wilsonzlin/minify-ffi"
)

var (
	// ErrClosed is returned by calls on a closed Pool.
	ErrClosed = errors.New("pool: closed")

	// ErrWorkerExited is returned when a worker's pipe breaks mid-call.
	// The worker is replaced on its next use.
	ErrWorkerExited = errors.New("pool: worker exited")
)

// Options configures a Pool.
type Options struct {
	// Workers is the number of worker processes. Default: runtime.NumCPU().
	Workers int

	// Command starts one worker. It must call Serve on its stdin and
	// stdout. Default: the running executable with the argument "worker".
	Command []string

	// Env is appended to the pool process's environment for workers.
	Env []string

	// Config is applied to every worker before its first request.
	Config minify.Options

	// Logger receives worker lifecycle messages. Default: discarded.
	Logger *slog.Logger
}

// Pool is a fixed-size set of worker processes.
type Pool struct {
	command []string
	env     []string
	logger  *slog.Logger
	size    int

	idle   chan *worker
	done   chan struct{}
	nextID atomic.Uint64

	// configMu serializes Configure, which holds every worker at once.
	configMu sync.Mutex

	mu     sync.Mutex
	config map[string]string
	closed bool
}

type worker struct {
	index   int
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	encoder *cbor.Encoder
	decoder *cbor.Decoder
	broken  bool
}

// Start launches opts.Workers workers and configures each with
// opts.Config. If any worker fails to start, the ones already running are
// stopped and the error is returned.
func Start(ctx context.Context, opts Options) (*Pool, error) {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if len(opts.Command) == 0 {
		executable, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("pool: locating worker executable: %w", err)
		}
		opts.Command = []string{executable, "worker"}
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	p := &Pool{
		command: opts.Command,
		env:     opts.Env,
		logger:  opts.Logger,
		size:    opts.Workers,
		idle:    make(chan *worker, opts.Workers),
		done:    make(chan struct{}),
		config:  toWire(opts.Config),
	}
	started := make([]*worker, 0, opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		w := &worker{index: i}
		err := ctx.Err()
		if err == nil {
			err = p.start(w)
		}
		if err != nil {
			for _, running := range started {
				p.stop(running)
			}
			return nil, err
		}
		started = append(started, w)
	}
	for _, w := range started {
		p.idle <- w
	}
	p.logger.Debug("worker pool started", "workers", opts.Workers, "command", opts.Command[0])
	return p, nil
}

// start launches w's process and sends it the pool configuration.
func (p *Pool) start(w *worker) error {
	cmd := exec.Command(p.command[0], p.command[1:]...)
	cmd.Env = append(os.Environ(), p.env...)
	cmd.Stderr = os.Stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("pool: worker %d stdin: %w", w.index, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return fmt.Errorf("pool: worker %d stdout: %w", w.index, err)
	}
	if err := cmd.Start(); err != nil {
		stdin.Close()
		return fmt.Errorf("pool: starting worker %d: %w", w.index, err)
	}
	*w = worker{
		index:   w.index,
		cmd:     cmd,
		stdin:   stdin,
		encoder: encMode.NewEncoder(stdin),
		decoder: decMode.NewDecoder(stdout),
	}
	p.logger.Debug("worker started", "worker", w.index, "pid", cmd.Process.Pid)

	p.mu.Lock()
	config := p.config
	p.mu.Unlock()
	resp, err := p.roundTrip(w, &request{Op: opConfigure, Config: config})
	if err != nil {
		p.stop(w)
		return err
	}
	if err := resp.err(""); err != nil {
		p.stop(w)
		return err
	}
	return nil
}

// stop ends w's process. A healthy worker exits on stdin EOF; a broken
// one is killed.
func (p *Pool) stop(w *worker) {
	if w.cmd == nil {
		return
	}
	if w.broken {
		w.cmd.Process.Kill()
	}
	w.stdin.Close()
	err := w.cmd.Wait()
	p.logger.Debug("worker stopped", "worker", w.index, "error", err)
	*w = worker{index: w.index}
}

func (p *Pool) acquire(ctx context.Context) (*worker, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	select {
	case <-p.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	case w := <-p.idle:
		p.mu.Lock()
		closed := p.closed
		p.mu.Unlock()
		if closed {
			p.idle <- w
			return nil, ErrClosed
		}
		if w.cmd == nil {
			if err := p.start(w); err != nil {
				p.idle <- w
				return nil, err
			}
		}
		return w, nil
	}
}

func (p *Pool) release(w *worker) {
	if w.broken {
		p.logger.Warn("worker broke; replacing on next use", "worker", w.index)
		p.stop(w)
	}
	p.idle <- w
}

func (p *Pool) roundTrip(w *worker, req *request) (*response, error) {
	req.ID = p.nextID.Add(1)
	if err := w.encoder.Encode(req); err != nil {
		w.broken = true
		return nil, fmt.Errorf("%w: worker %d: sending request: %v", ErrWorkerExited, w.index, err)
	}
	var resp response
	if err := w.decoder.Decode(&resp); err != nil {
		w.broken = true
		return nil, fmt.Errorf("%w: worker %d: reading response: %v", ErrWorkerExited, w.index, err)
	}
	if resp.ID != req.ID {
		w.broken = true
		return nil, fmt.Errorf("pool: worker %d answered request %d with response %d", w.index, req.ID, resp.ID)
	}
	return &resp, nil
}

func (p *Pool) call(ctx context.Context, req *request) (*response, error) {
	w, err := p.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer p.release(w)
	return p.roundTrip(w, req)
}

// Minify minifies text as mediaType on an idle worker.
func (p *Pool) Minify(ctx context.Context, mediaType, text string) (string, error) {
	resp, err := p.call(ctx, &request{Op: opMinify, MediaType: mediaType, Input: []byte(text)})
	if err != nil {
		return "", err
	}
	if err := resp.err(mediaType); err != nil {
		return "", err
	}
	return string(resp.Output), nil
}

// MinifyFile minifies inputPath into outputPath on an idle worker.
func (p *Pool) MinifyFile(ctx context.Context, mediaType, inputPath, outputPath string) error {
	resp, err := p.call(ctx, &request{Op: opMinifyFile, MediaType: mediaType, InputPath: inputPath, OutputPath: outputPath})
	if err != nil {
		return err
	}
	return resp.err(mediaType)
}

// MinifyAll minifies every text as mediaType across the pool and returns
// the results in input order. If any call fails, the error of the
// lowest-indexed failure is returned.
func (p *Pool) MinifyAll(ctx context.Context, mediaType string, texts []string) ([]string, error) {
	results := make([]string, len(texts))
	errs := make([]error, len(texts))
	var wg sync.WaitGroup
	for i, text := range texts {
		wg.Add(1)
		go func(i int, text string) {
			defer wg.Done()
			results[i], errs[i] = p.Minify(ctx, mediaType, text)
		}(i, text)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}

// Configure replaces the configuration of every worker and of workers
// started later. It waits until every worker is idle. If a worker rejects
// the configuration, workers configured before it keep the new
// configuration and the pool's stored configuration is unchanged.
func (p *Pool) Configure(ctx context.Context, options minify.Options) error {
	p.configMu.Lock()
	defer p.configMu.Unlock()

	held := make([]*worker, 0, p.size)
	defer func() {
		for _, w := range held {
			p.release(w)
		}
	}()
	for len(held) < p.size {
		w, err := p.acquire(ctx)
		if err != nil {
			return err
		}
		held = append(held, w)
	}

	config := toWire(options)
	for _, w := range held {
		resp, err := p.roundTrip(w, &request{Op: opConfigure, Config: config})
		if err != nil {
			return err
		}
		if err := resp.err(""); err != nil {
			return err
		}
	}

	p.mu.Lock()
	p.config = config
	p.mu.Unlock()
	return nil
}

// Close stops every worker, waiting for in-flight calls to finish.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	for i := 0; i < p.size; i++ {
		p.stop(<-p.idle)
	}
	close(p.done)
	return nil
}
