package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/doeshing/termai-go/internal/app"
)

func newModelsCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List models the inference service offers",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if !container.Provider.HealthCheck(ctx) {
				return fmt.Errorf("inference service at %s is not reachable", container.Config.Ollama.Host)
			}
			models, err := container.Provider.ListModels(ctx)
			if err != nil {
				return err
			}
			if len(models) == 0 {
				fmt.Println("no models installed; try: ollama pull llama3.2:1b")
				return nil
			}
			for _, name := range models {
				marker := " "
				if name == container.Config.Ollama.Model {
					marker = "*"
				}
				fmt.Printf("%s %s\n", marker, name)
			}
			return nil
		},
	}
}
