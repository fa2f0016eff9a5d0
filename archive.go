package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ScribeLabsAI/ScribeMi/internal/mi"
)

func newArchiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Manage zip archives of source documents",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "ls",
		Short: "List uploaded archives",
		Args:  cobra.NoArgs,
		RunE:  runArchiveLs,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "put <zip-file>",
		Short: "Upload a zip archive",
		Args:  cobra.ExactArgs(1),
		RunE:  runArchivePut,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "rm <name>...",
		Short: "Delete archives",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runArchiveRm,
	})

	return cmd
}

// archiveOutput is the JSON schema for `archive ls --json`. Presigned links
// are not printed.
type archiveOutput struct {
	Name         string `json:"name"`
	LastModified string `json:"last_modified"`
}

func runArchiveLs(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cs, err := newCLISession(ctx, buildLogger())
	if err != nil {
		return err
	}

	archives, err := cs.Client.ListArchives(ctx)
	if err != nil {
		return fmt.Errorf("listing archives: %w", err)
	}

	out := make([]archiveOutput, 0, len(archives))
	for _, a := range archives {
		out = append(out, archiveOutput{Name: a.Name, LastModified: a.LastModified})
	}

	w := cmd.OutOrStdout()

	if flagJSON {
		return printJSON(w, out)
	}

	if len(out) == 0 {
		statusf("No archives.\n")
		return nil
	}

	rows := make([][]string, 0, len(out))
	for _, a := range out {
		rows = append(rows, []string{a.Name, a.LastModified})
	}

	printTable(w, []string{"NAME", "LAST MODIFIED"}, rows)

	return nil
}

func runArchivePut(cmd *cobra.Command, args []string) error {
	logger := buildLogger()
	ctx, stop := shutdownContext(cmd.Context(), logger)
	defer stop()

	cs, err := newCLISession(ctx, logger)
	if err != nil {
		return err
	}

	name, err := cs.Client.UploadArchive(ctx, mi.FromPath(args[0]))
	if err != nil {
		return fmt.Errorf("uploading %s: %w", args[0], err)
	}

	if flagJSON {
		return printJSON(cmd.OutOrStdout(), archiveOutput{Name: name})
	}

	fmt.Fprintln(cmd.OutOrStdout(), name)

	return nil
}

func runArchiveRm(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cs, err := newCLISession(ctx, buildLogger())
	if err != nil {
		return err
	}

	var errs []error

	for _, name := range args {
		if err := cs.Client.DeleteArchive(ctx, name); err != nil {
			errs = append(errs, fmt.Errorf("deleting archive %s: %w", name, err))
			continue
		}

		statusf("Deleted %s.\n", name)
	}

	return errors.Join(errs...)
}
