package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/ScribeLabsAI/ScribeMi/internal/journal"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [job-id]",
		Short: "Show documents submitted from this machine",
		Long: "Show the local submission journal, newest first. Entries stay after the\n" +
			"task is deleted so the checksum and filename of past uploads remain known.\n" +
			"With a job ID, show only that submission.",
		Args: cobra.MaximumNArgs(1),
		RunE: runHistory,
	}

	cmd.Flags().IntP("limit", "n", 20, "show at most this many entries (0 for all)")

	return cmd
}

// historyOutput is the JSON schema for `history --json`.
type historyOutput struct {
	JobID       string     `json:"job_id"`
	Filename    string     `json:"filename"`
	Filetype    string     `json:"filetype"`
	Company     string     `json:"company,omitempty"`
	Checksum    string     `json:"md5"`
	Size        int64      `json:"size"`
	SubmittedAt time.Time  `json:"submitted_at"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
}

func newHistoryOutput(e *journal.Entry) historyOutput {
	out := historyOutput{
		JobID:       e.JobID,
		Filename:    e.Filename,
		Filetype:    e.Filetype,
		Company:     e.Company,
		Checksum:    e.Checksum,
		Size:        e.Size,
		SubmittedAt: e.SubmittedAt,
	}

	if e.Deleted() {
		deleted := e.DeletedAt
		out.DeletedAt = &deleted
	}

	return out
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}

	j, err := openJournal(ctx, buildLogger())
	if err != nil {
		return err
	}
	defer j.Close()

	if len(args) == 1 {
		entry, err := j.Find(ctx, args[0])
		if err != nil {
			return err
		}

		return printHistoryEntry(cmd.OutOrStdout(), &entry)
	}

	entries, err := j.List(ctx, limit)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()

	if flagJSON {
		out := make([]historyOutput, 0, len(entries))
		for i := range entries {
			out = append(out, newHistoryOutput(&entries[i]))
		}

		return printJSON(w, out)
	}

	if len(entries) == 0 {
		statusf("No submissions recorded.\n")
		return nil
	}

	headers := []string{"SUBMITTED", "JOB ID", "TYPE", "SIZE", "FILENAME", "STATE"}
	rows := make([][]string, 0, len(entries))

	for i := range entries {
		e := &entries[i]

		rows = append(rows, []string{
			formatTime(e.SubmittedAt), e.JobID, e.Filetype, formatSize(e.Size), e.Filename, historyState(e),
		})
	}

	printTable(w, headers, rows)

	return nil
}

func historyState(e *journal.Entry) string {
	if e.Deleted() {
		return "deleted"
	}

	return "submitted"
}

func printHistoryEntry(w io.Writer, e *journal.Entry) error {
	if flagJSON {
		return printJSON(w, newHistoryOutput(e))
	}

	company := e.Company
	if company == "" {
		company = "-"
	}

	deleted := "-"
	if e.Deleted() {
		deleted = formatTime(e.DeletedAt)
	}

	fmt.Fprintf(w, "Job ID:     %s\n", e.JobID)
	fmt.Fprintf(w, "Filename:   %s\n", e.Filename)
	fmt.Fprintf(w, "Type:       %s\n", e.Filetype)
	fmt.Fprintf(w, "Company:    %s\n", company)
	fmt.Fprintf(w, "Size:       %s\n", formatSize(e.Size))
	fmt.Fprintf(w, "MD5:        %s\n", e.Checksum)
	fmt.Fprintf(w, "Submitted:  %s\n", formatTime(e.SubmittedAt))
	fmt.Fprintf(w, "Deleted:    %s\n", deleted)
	fmt.Fprintf(w, "State:      %s\n", historyState(e))

	return nil
}
