// Package cli wires the cobra command tree.
package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/doeshing/termai-go/internal/app"
)

// Options holds CLI-level configuration.
type Options struct {
	Verbose bool
}

// NewRootCmd wires the cobra root command.
func NewRootCmd(ctx context.Context, opts Options) (*cobra.Command, error) {
	container, err := app.BuildContainer(ctx, opts.Verbose)
	if err != nil {
		return nil, err
	}

	root := &cobra.Command{
		Use:   "termai",
		Short: "TermAI - terminal session observer with local AI analysis",
		Long: "TermAI watches a shell session, scores command relevance, and asks a\n" +
			"local Ollama model for suggestions when commands fail or look risky.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newRunCommand(container))
	root.AddCommand(newModelsCommand(container))
	root.AddCommand(newExportCommand(container))
	return root, nil
}
