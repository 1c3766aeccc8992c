package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/doeshing/termai-go/internal/app"
	"github.com/doeshing/termai-go/internal/domain"
	"github.com/doeshing/termai-go/internal/services"
)

func newRunCommand(container *app.Container) *cobra.Command {
	var (
		task    string
		noSave  bool
		quietAI bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start an observed shell session",
		Long: "Reads commands line by line, dispatches them to a shell under a\n" +
			"pseudo-terminal, and surfaces AI analysis when a command fails or\n" +
			"matches a risk pattern. Type 'exit' or press Ctrl-D to finish.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd.Context(), container, task, noSave, quietAI)
		},
	}

	cmd.Flags().StringVarP(&task, "task", "t", "", "Describe what you are working on (boosts related context)")
	cmd.Flags().BoolVar(&noSave, "no-save", false, "Skip writing the session snapshot on exit")
	cmd.Flags().BoolVar(&quietAI, "quiet", false, "Suppress inline analysis output")

	return cmd
}

func runSession(ctx context.Context, container *app.Container, task string, noSave, quietAI bool) error {
	session := container.Session
	defer container.Close()

	if !container.Provider.HealthCheck(ctx) {
		fmt.Fprintln(os.Stderr, "warning: inference service unreachable, analysis disabled until it returns")
	}

	container.Tee.Set(func(p []byte) { os.Stdout.Write(p) })

	var unsubscribe []func()
	if !quietAI {
		unsubscribe = append(unsubscribe,
			container.Bus.Subscribe(domain.EventAnalysisCompleted, renderAnalysis),
			container.Bus.Subscribe(domain.EventAnalysisFailed, renderFailure),
		)
	}
	defer func() {
		for _, u := range unsubscribe {
			u()
		}
	}()

	if err := session.Start(); err != nil {
		return err
	}
	if task != "" {
		session.MarkTask(task)
	}

	scanner := bufio.NewScanner(os.Stdin)
loop:
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "exit":
			break loop
		case strings.HasPrefix(line, ":analyze"):
			question := strings.TrimSpace(strings.TrimPrefix(line, ":analyze"))
			if err := session.AnalyzeNow(question); err != nil {
				fmt.Fprintln(os.Stderr, "analysis request dropped:", err)
			}
			continue
		case strings.HasPrefix(line, ":task "):
			session.MarkTask(strings.TrimSpace(strings.TrimPrefix(line, ":task ")))
			continue
		case line == ":clear":
			session.ClearOutput()
			continue
		case strings.HasPrefix(line, ":search "):
			pattern := strings.TrimSpace(strings.TrimPrefix(line, ":search "))
			for _, match := range session.SearchOutput(pattern) {
				fmt.Fprintf(os.Stderr, "%4d: %s\n", match.Line, match.Text)
			}
			continue
		}
		if err := session.Execute(line); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			continue
		}
		// give the command a moment before accepting the next line
		waitForIdle(session)
	}

	if err := session.Stop(); err != nil {
		container.Logger.Error("session stop", err, nil)
	}
	if !noSave {
		if err := container.Store.Save(session.Snapshot()); err != nil {
			return fmt.Errorf("save session snapshot: %w", err)
		}
		fmt.Fprintf(os.Stderr, "session %s saved\n", session.Info().ID)
	}
	return scanner.Err()
}

// waitForIdle blocks until the dispatched command finalizes or a timeout
// passes, so interleaved output stays readable in line mode.
func waitForIdle(session *services.SessionManager) {
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		if !session.Pending() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func renderAnalysis(e domain.Event) {
	payload, ok := e.Payload.(domain.AnalysisCompletedPayload)
	if !ok {
		return
	}
	resp := payload.Response
	source := ""
	if resp.FromCache {
		source = " (cached)"
	}
	fmt.Fprintf(os.Stderr, "\n── analysis%s ──\n", source)
	for _, s := range resp.Suggestions {
		fmt.Fprintf(os.Stderr, "  suggestion: %s\n", s)
	}
	for _, w := range resp.Warnings {
		fmt.Fprintf(os.Stderr, "  warning:    %s\n", w)
	}
	for _, errText := range resp.Errors {
		fmt.Fprintf(os.Stderr, "  cause:      %s\n", errText)
	}
	if len(resp.Suggestions)+len(resp.Warnings)+len(resp.Errors) == 0 {
		fmt.Fprintf(os.Stderr, "  %s\n", resp.Content)
	}
	fmt.Fprintln(os.Stderr)
}

func renderFailure(e domain.Event) {
	payload, ok := e.Payload.(domain.AnalysisFailedPayload)
	if !ok {
		return
	}
	fmt.Fprintf(os.Stderr, "analysis unavailable: %s\n", payload.Reason)
}
