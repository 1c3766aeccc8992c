package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/doeshing/termai-go/internal/app"
	"github.com/doeshing/termai-go/internal/domain"
)

func newExportCommand(container *app.Container) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "export [session-id]",
		Short: "List recorded sessions or export one as JSON",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return listSessions(container)
			}
			return exportSession(container, args[0], out)
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "Write JSON to a file instead of stdout")
	return cmd
}

func listSessions(container *app.Container) error {
	infos, err := container.Store.List()
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Println("no recorded sessions")
		return nil
	}
	for _, info := range infos {
		line := fmt.Sprintf("%s  %s  %s", info.ID, humanize.Time(info.StartedAt), info.WorkingDir)
		if info.Task != "" {
			line += "  (" + info.Task + ")"
		}
		fmt.Println(line)
	}
	return nil
}

func exportSession(container *app.Container, id, out string) error {
	snapshot, err := container.Store.Load(id)
	if err != nil {
		return err
	}
	raw, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}
	raw = append(raw, '\n')
	if out == "" {
		_, err = os.Stdout.Write(raw)
		return err
	}
	if err := os.WriteFile(out, raw, domain.SecureFilePermissions); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "wrote %s\n", out)
	return nil
}
