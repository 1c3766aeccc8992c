// Package ptyshell runs a child shell on a pseudo-terminal and streams its
// output to an observer callback.
package ptyshell

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"

	"github.com/doeshing/termai-go/internal/domain"
	"github.com/doeshing/termai-go/internal/ports"
)

const stopGrace = 3 * time.Second

// Session attaches a shell process to a pty. Output is delivered on a
// dedicated reader goroutine; Write and Resize return without waiting on
// downstream processing.
type Session struct {
	shell    string
	cols     int
	rows     int
	dir      string
	onOutput func([]byte)
	onExit   func(int, error)
	log      ports.Logger

	mu      sync.Mutex
	cmd     *exec.Cmd
	tty     *os.File
	running bool
	done    chan struct{}
	waited  chan struct{}
	waitErr error
}

// Options configures a Session.
type Options struct {
	Shell    string
	Cols     int
	Rows     int
	Dir      string
	OnOutput func([]byte)     // called from the reader goroutine
	OnExit   func(int, error) // called once with the shell's exit code
}

// New builds a stopped session. Call Start to spawn the shell.
func New(opts Options, log ports.Logger) *Session {
	shell := opts.Shell
	if shell == "" {
		shell = os.Getenv("SHELL")
	}
	if shell == "" {
		shell = "/bin/bash"
	}
	cols, rows := opts.Cols, opts.Rows
	if cols <= 0 {
		cols = 80
	}
	if rows <= 0 {
		rows = 24
	}
	return &Session{
		shell:    shell,
		cols:     cols,
		rows:     rows,
		dir:      opts.Dir,
		onOutput: opts.OnOutput,
		onExit:   opts.OnExit,
		log:      log,
	}
}

// Start spawns the shell in its own process group and begins the reader loop.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return &domain.ProcessError{Op: "start", Err: errors.New("already running")}
	}

	cmd := exec.Command(s.shell)
	cmd.Dir = s.dir
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")

	// pty.StartWithSize runs the child with setsid, so the shell leads its
	// own process group and group signals reach pipelines it spawns.
	tty, err := pty.StartWithSize(cmd, &pty.Winsize{
		Cols: uint16(s.cols),
		Rows: uint16(s.rows),
	})
	if err != nil {
		return &domain.ProcessError{Op: "spawn", Err: err}
	}

	s.cmd = cmd
	s.tty = tty
	s.running = true
	s.done = make(chan struct{})
	s.waited = make(chan struct{})

	s.log.Info("shell started", map[string]interface{}{
		"shell": s.shell,
		"pid":   cmd.Process.Pid,
	})
	go s.wait(cmd, s.waited)
	go s.readLoop(tty, s.done, s.waited)
	return nil
}

// wait reaps the child exactly once; Stop and the reader loop both consume
// the stored result after waited closes.
func (s *Session) wait(cmd *exec.Cmd, waited chan struct{}) {
	err := cmd.Wait()
	s.mu.Lock()
	s.waitErr = err
	s.mu.Unlock()
	close(waited)
}

func (s *Session) readLoop(tty *os.File, done, waited chan struct{}) {
	defer close(done)
	buf := make([]byte, 4096)
	var readErr error
	for {
		n, err := tty.Read(buf)
		if n > 0 && s.onOutput != nil {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			s.onOutput(chunk)
		}
		if err != nil {
			// EIO is the normal Linux close signal for a pty master.
			if !errors.Is(err, io.EOF) && !errors.Is(err, syscall.EIO) {
				readErr = &domain.IOError{Op: "read", Err: err}
			}
			break
		}
	}

	<-waited

	s.mu.Lock()
	s.running = false
	waitErr := s.waitErr
	s.mu.Unlock()

	if s.onExit != nil {
		s.onExit(exitCode(waitErr), readErr)
	}
}

// exitCode maps a wait error to the child's exit status. Signal deaths and
// wait failures report -1, matching os.ProcessState.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// Write sends input bytes to the shell. Writing to a stopped session fails
// with an IOError rather than silently dropping, so callers can roll back
// whatever tracking they opened for the input.
func (s *Session) Write(p []byte) error {
	s.mu.Lock()
	tty, running := s.tty, s.running
	s.mu.Unlock()
	if !running {
		return &domain.IOError{Op: "write", Err: errors.New("session not running")}
	}
	if _, err := tty.Write(p); err != nil {
		return &domain.IOError{Op: "write", Err: err}
	}
	return nil
}

// Resize updates the pty window size and signals the shell via SIGWINCH.
func (s *Session) Resize(cols, rows int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return &domain.IOError{Op: "resize", Err: errors.New("session not running")}
	}
	if cols <= 0 || rows <= 0 {
		return &domain.IOError{Op: "resize", Err: errors.New("dimensions must be positive")}
	}
	s.cols, s.rows = cols, rows
	if err := pty.Setsize(s.tty, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)}); err != nil {
		return &domain.IOError{Op: "resize", Err: err}
	}
	return nil
}

// Stop terminates the shell's process group, escalating to SIGKILL after a
// grace period. Safe to call more than once.
func (s *Session) Stop() error {
	s.mu.Lock()
	if s.cmd == nil {
		s.mu.Unlock()
		return nil
	}
	cmd, tty, done := s.cmd, s.tty, s.done
	s.cmd = nil
	s.mu.Unlock()

	pgid := -cmd.Process.Pid
	_ = syscall.Kill(pgid, syscall.SIGTERM)

	select {
	case <-done:
	case <-time.After(stopGrace):
		_ = syscall.Kill(pgid, syscall.SIGKILL)
		<-done
	}

	_ = tty.Close()

	// done closes only after the waiter stored its result
	s.mu.Lock()
	err := s.waitErr
	s.mu.Unlock()

	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return &domain.ProcessError{Op: "stop", Err: err}
	}
	s.log.Info("shell stopped", map[string]interface{}{"shell": s.shell})
	return nil
}

// Running reports whether the shell is alive.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

var _ ports.ShellSession = (*Session)(nil)
