// Package services orchestrates the session: shell I/O, output capture,
// history, context scoring, trigger evaluation, and analysis submission.
package services

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/doeshing/termai-go/internal/domain"
	"github.com/doeshing/termai-go/internal/infrastructure/contextwin"
	"github.com/doeshing/termai-go/internal/infrastructure/terminal"
	"github.com/doeshing/termai-go/internal/infrastructure/trigger"
	"github.com/doeshing/termai-go/internal/ports"
)

// exitSentinel is printed by the shell after each dispatched command so the
// observer can recover the exit code without parsing the prompt.
const exitSentinel = "__termai_rc_"

var sentinelRe = regexp.MustCompile(`__termai_rc_(\d+)__`)

// Analyzer is the slice of the analysis engine the session needs.
type Analyzer interface {
	Submit(req domain.AnalysisRequest) error
	CacheStats() domain.CacheStats
}

// SessionManager wires the shell to the observation pipeline. One manager
// observes one shell.
type SessionManager struct {
	cfg      domain.Config
	shell    ports.ShellSession
	buffer   *terminal.Buffer
	history  *terminal.History
	window   *contextwin.Window
	triggers *trigger.Engine
	bus      ports.EventBus
	analyzer Analyzer
	log      ports.Logger

	mu         sync.Mutex
	info       domain.SessionInfo
	pending    *pendingCommand
	lastOutput int // next absolute buffer line to scan for the sentinel
}

type pendingCommand struct {
	command   string
	startLine int
}

// Deps carries the collaborators for a SessionManager.
type Deps struct {
	Shell    ports.ShellSession
	Buffer   *terminal.Buffer
	History  *terminal.History
	Window   *contextwin.Window
	Triggers *trigger.Engine
	Bus      ports.EventBus
	Analyzer Analyzer
	Logger   ports.Logger
}

// NewSessionManager builds the manager. The shell's OnOutput must be wired to
// HandleOutput and OnExit to HandleExit before Start is called.
func NewSessionManager(cfg domain.Config, workingDir string, deps Deps) *SessionManager {
	return &SessionManager{
		cfg:      cfg,
		shell:    deps.Shell,
		buffer:   deps.Buffer,
		history:  deps.History,
		window:   deps.Window,
		triggers: deps.Triggers,
		bus:      deps.Bus,
		analyzer: deps.Analyzer,
		log:      deps.Logger,
		info: domain.SessionInfo{
			ID:         uuid.NewString(),
			Shell:      cfg.Terminal.Shell,
			WorkingDir: workingDir,
			Cols:       cfg.Terminal.Cols,
			Rows:       cfg.Terminal.Rows,
		},
	}
}

// Start spawns the shell.
func (m *SessionManager) Start() error {
	if err := m.shell.Start(); err != nil {
		return err
	}
	m.mu.Lock()
	m.info.StartedAt = time.Now()
	m.mu.Unlock()
	return nil
}

// Execute dispatches a command through the shell with an exit-code sentinel
// appended, opening a history record that HandleOutput later finalizes.
func (m *SessionManager) Execute(command string) error {
	command = strings.TrimSpace(command)
	if command == "" {
		return nil
	}

	m.mu.Lock()
	if m.pending != nil {
		m.mu.Unlock()
		return errors.New("a command is already in flight")
	}
	m.pending = &pendingCommand{command: command, startLine: m.buffer.Total()}
	dir := m.info.WorkingDir
	m.mu.Unlock()

	m.history.Begin(command, dir)
	m.bus.Publish(domain.Event{
		Type:     domain.EventCommandStart,
		Priority: 5,
		At:       time.Now(),
		Payload:  command,
	})

	line := fmt.Sprintf("%s; printf '\\n%s%%d__\\n' \"$?\"\n", command, exitSentinel)
	if err := m.shell.Write([]byte(line)); err != nil {
		m.history.Cancel()
		m.mu.Lock()
		m.pending = nil
		m.mu.Unlock()
		return err
	}
	return nil
}

// Write forwards raw input bytes to the shell without command tracking.
func (m *SessionManager) Write(p []byte) error {
	return m.shell.Write(p)
}

// Resize propagates new terminal geometry.
func (m *SessionManager) Resize(cols, rows int) error {
	if err := m.shell.Resize(cols, rows); err != nil {
		return err
	}
	m.mu.Lock()
	m.info.Cols, m.info.Rows = cols, rows
	m.mu.Unlock()
	return nil
}

// HandleOutput ingests a chunk read from the pty. Called from the shell's
// reader goroutine.
func (m *SessionManager) HandleOutput(chunk []byte) {
	m.buffer.Append(chunk)
	m.bus.Publish(domain.Event{
		Type:     domain.EventOutput,
		Priority: 1,
		At:       time.Now(),
		Payload:  len(chunk),
	})
	m.scanForCompletion()
}

// scanForCompletion looks for the exit sentinel in lines appended since the
// last scan and finalizes the pending command when found.
func (m *SessionManager) scanForCompletion() {
	m.mu.Lock()
	pending := m.pending
	from := m.lastOutput
	total := m.buffer.Total()
	m.mu.Unlock()

	if pending == nil || total <= from {
		m.mu.Lock()
		m.lastOutput = total
		m.mu.Unlock()
		return
	}

	lines, start := m.buffer.Lines(from, total-from)
	for i, line := range lines {
		// The echoed command text also contains the sentinel prefix, but
		// with a literal %d that the digit group rejects.
		match := sentinelRe.FindStringSubmatch(terminal.StripANSI(line))
		if match == nil {
			continue
		}
		code, err := strconv.Atoi(match[1])
		if err != nil {
			continue
		}
		m.finalize(pending, code, start+i)
		m.mu.Lock()
		m.lastOutput = start + i + 1
		m.mu.Unlock()
		return
	}

	m.mu.Lock()
	m.lastOutput = total
	m.mu.Unlock()
}

// finalize closes the pending record, feeds the pipeline, and evaluates
// triggers.
func (m *SessionManager) finalize(pending *pendingCommand, exitCode, sentinelLine int) {
	output, errExcerpt := m.collectOutput(pending.startLine, sentinelLine, exitCode)

	record, ok := m.history.End(exitCode, output, errExcerpt)
	m.mu.Lock()
	m.pending = nil
	m.mu.Unlock()
	if !ok {
		return
	}

	m.trackDirectory(record)
	m.trackGit(record)

	entry := m.window.AddCompleted(record)
	if floor := m.cfg.Context.PruneFloor; floor > 0 && m.window.Len() >= m.cfg.Context.MaxCommands {
		m.window.PruneLowRelevance(floor)
	}
	m.bus.Publish(domain.Event{
		Type:     domain.EventCommandEnd,
		Priority: 5,
		At:       time.Now(),
		Payload:  domain.CommandEndPayload{Record: record},
	})
	m.bus.Publish(domain.Event{
		Type:     domain.EventContextUpdated,
		Priority: 2,
		At:       time.Now(),
		Payload:  entry,
	})

	trig, ok := m.triggers.Evaluate(record)
	if !ok {
		return
	}
	m.submit(trig, record, "")
}

// collectOutput extracts the captured lines between dispatch and sentinel,
// dropping the echoed command and the sentinel plumbing itself.
func (m *SessionManager) collectOutput(start, sentinelLine, exitCode int) (output, errExcerpt string) {
	if sentinelLine <= start {
		return "", ""
	}
	raw, _ := m.buffer.Lines(start, sentinelLine-start)
	kept := make([]string, 0, len(raw))
	for _, line := range raw {
		clean := terminal.StripANSI(line)
		if strings.Contains(clean, exitSentinel) {
			continue
		}
		kept = append(kept, strings.TrimRight(clean, "\r"))
	}
	output = strings.Join(kept, "\n")
	if exitCode != 0 {
		errExcerpt = tailLines(output, 5)
	}
	return output, errExcerpt
}

func tailLines(text string, n int) string {
	lines := strings.Split(text, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

// trackDirectory follows successful cd commands so records carry the right
// working directory.
func (m *SessionManager) trackDirectory(record domain.CommandRecord) {
	if record.ExitCode != 0 {
		return
	}
	fields := strings.Fields(record.Command)
	if len(fields) == 0 || fields[0] != "cd" {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case len(fields) == 1 || fields[1] == "~":
		m.info.WorkingDir = homeDir()
	case strings.HasPrefix(fields[1], "~/"):
		m.info.WorkingDir = filepath.Join(homeDir(), fields[1][2:])
	case filepath.IsAbs(fields[1]):
		m.info.WorkingDir = filepath.Clean(fields[1])
	default:
		m.info.WorkingDir = filepath.Join(m.info.WorkingDir, fields[1])
	}
}

// trackGit refreshes branch and dirty state from git status output.
func (m *SessionManager) trackGit(record domain.CommandRecord) {
	if record.ExitCode != 0 || !strings.HasPrefix(record.Command, "git status") {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, line := range strings.Split(record.Output, "\n") {
		line = strings.TrimSpace(line)
		if rest, ok := strings.CutPrefix(line, "On branch "); ok {
			m.info.GitBranch = strings.TrimSpace(rest)
		}
	}
	m.info.GitDirty = !strings.Contains(record.Output, "working tree clean")
}

// AnalyzeNow raises a manual analysis request at top priority.
func (m *SessionManager) AnalyzeNow(text string) error {
	trig := domain.Trigger{
		Kind:        domain.TriggerManual,
		Priority:    10,
		Description: "manual request",
	}
	var subject domain.CommandRecord
	if recent := m.history.Recent(1); len(recent) == 1 {
		subject = recent[0]
	}
	return m.submit(trig, subject, text)
}

func (m *SessionManager) submit(trig domain.Trigger, subject domain.CommandRecord, manual string) error {
	payload := m.window.Assemble(m.cfg.Context.MaxTokens)
	payload.Subject = subject
	payload.Manual = manual

	req := domain.AnalysisRequest{
		ID:        uuid.NewString(),
		Trigger:   trig,
		Payload:   payload,
		Priority:  trig.Priority,
		CreatedAt: time.Now(),
	}
	if err := m.analyzer.Submit(req); err != nil {
		m.log.Warn("analysis submission dropped", map[string]interface{}{
			"trigger": string(trig.Kind),
			"error":   err.Error(),
		})
		return err
	}
	return nil
}

// MarkTask records what the user says they are working on.
func (m *SessionManager) MarkTask(description string) {
	m.window.MarkTask(description)
	m.mu.Lock()
	m.info.Task = description
	m.mu.Unlock()
}

// ClearOutput wipes the reassembled buffer. Absolute line indexes survive
// the clear, so an in-flight command keeps its marks.
func (m *SessionManager) ClearOutput() {
	m.buffer.Clear()
}

// SearchOutput scans the buffer for a pattern.
func (m *SessionManager) SearchOutput(pattern string) []terminal.Match {
	return m.buffer.Search(pattern)
}

// Pending reports whether a dispatched command is still awaiting its exit
// sentinel.
func (m *SessionManager) Pending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending != nil
}

// Info returns a copy of the session metadata.
func (m *SessionManager) Info() domain.SessionInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.info
}

// Snapshot captures the exportable session state.
func (m *SessionManager) Snapshot() domain.SessionSnapshot {
	return domain.SessionSnapshot{
		Info:      m.Info(),
		Records:   m.history.All(),
		Important: m.window.Important(),
		Stats:     m.history.Stats(),
	}
}

// CacheStats surfaces the analysis cache counters.
func (m *SessionManager) CacheStats() domain.CacheStats {
	return m.analyzer.CacheStats()
}

// HandleExit is wired to the shell's exit callback.
func (m *SessionManager) HandleExit(code int, err error) {
	if err != nil {
		m.log.Error("shell reader ended", err, nil)
	}
	m.history.Cancel()
	m.mu.Lock()
	m.pending = nil
	m.mu.Unlock()
	m.bus.Publish(domain.Event{
		Type:     domain.EventSessionStopped,
		Priority: 5,
		At:       time.Now(),
		Payload:  domain.SessionStoppedPayload{SessionID: m.Info().ID, ExitCode: code},
	})
}

// Stop terminates the shell. A command still in flight is cancelled rather
// than finalized with a fabricated exit code; analyses already submitted run
// to completion.
func (m *SessionManager) Stop() error {
	err := m.shell.Stop()
	m.history.Cancel()
	m.mu.Lock()
	m.pending = nil
	m.mu.Unlock()
	return err
}

func homeDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home
	}
	return "/"
}
