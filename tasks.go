package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ScribeLabsAI/ScribeMi/internal/journal"
	"github.com/ScribeLabsAI/ScribeMi/internal/mi"
)

// dirPerms is used when creating the parent directory of a fetched model.
const dirPerms = 0o755

func newLsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List tasks",
		Args:  cobra.NoArgs,
		RunE:  runLs,
	}

	cmd.Flags().String("company", "", "only list tasks for this company")

	return cmd
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <job-id>",
		Short: "Show one task",
		Args:  cobra.ExactArgs(1),
		RunE:  runGet,
	}
}

func newSubmitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit <file>",
		Short: "Submit a document for MI extraction",
		Long: "Upload a document and create an extraction task. The filetype defaults to\n" +
			"the file extension; accepted values are " + strings.Join(mi.Filetypes, ", ") + ".",
		Args: cobra.ExactArgs(1),
		RunE: runSubmit,
	}

	cmd.Flags().String("filetype", "", "document type (default: file extension)")
	cmd.Flags().String("filename", "", "filename recorded with the task (default: the path)")
	cmd.Flags().String("company", "", "company the document belongs to")
	cmd.Flags().Bool("wait", false, "wait for the task to finish")

	return cmd
}

func newFetchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch <job-id>",
		Short: "Download the model of a finished task",
		Args:  cobra.ExactArgs(1),
		RunE:  runFetch,
	}

	cmd.Flags().StringP("output", "o", "", "write the model to this file instead of stdout")

	return cmd
}

func newRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <job-id>...",
		Short: "Delete tasks with their documents and models",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runRm,
	}
}

func newConsolidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "consolidate <job-id>...",
		Short: "Aggregate the models of several tasks into a fund portfolio",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runConsolidate,
	}

	cmd.Flags().StringP("output", "o", "", "write the portfolio to this file instead of stdout")

	return cmd
}

func newWaitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wait <job-id>",
		Short: "Wait until a task finishes",
		Args:  cobra.ExactArgs(1),
		RunE:  runWait,
	}

	cmd.Flags().Duration("timeout", 15*time.Minute, "give up after this long")

	return cmd
}

// taskOutput is the JSON schema for task listings. The presigned model URL
// is left out: it is a bearer credential.
type taskOutput struct {
	JobID            string    `json:"job_id"`
	Status           string    `json:"status"`
	Client           string    `json:"client,omitempty"`
	Company          string    `json:"company,omitempty"`
	Filename         string    `json:"filename,omitempty"`
	OriginalFilename string    `json:"original_filename,omitempty"`
	ModelFilename    string    `json:"model_filename,omitempty"`
	Submitted        time.Time `json:"submitted"`
}

func newTaskOutput(t *mi.Task) taskOutput {
	return taskOutput{
		JobID:            t.JobID,
		Status:           t.Status,
		Client:           t.Client,
		Company:          t.CompanyName,
		Filename:         t.ClientFilename,
		OriginalFilename: t.OriginalFilename,
		ModelFilename:    t.ClientModelFilename,
		Submitted:        t.SubmittedAt(),
	}
}

func runLs(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	logger := buildLogger()

	company, err := cmd.Flags().GetString("company")
	if err != nil {
		return err
	}

	cs, err := newCLISession(ctx, logger)
	if err != nil {
		return err
	}

	tasks, err := cs.Client.ListTasks(ctx, company)
	if err != nil {
		return fmt.Errorf("listing tasks: %w", err)
	}

	w := cmd.OutOrStdout()

	if flagJSON {
		out := make([]taskOutput, 0, len(tasks))
		for i := range tasks {
			out = append(out, newTaskOutput(&tasks[i]))
		}

		return printJSON(w, out)
	}

	if len(tasks) == 0 {
		statusf("No tasks.\n")
		return nil
	}

	headers := []string{"JOB ID", "STATUS", "SUBMITTED", "COMPANY", "FILENAME"}
	rows := make([][]string, 0, len(tasks))

	for i := range tasks {
		t := &tasks[i]
		rows = append(rows, []string{
			t.JobID, t.Status, formatTime(t.SubmittedAt()), t.CompanyName, t.ClientFilename,
		})
	}

	printTable(w, headers, rows)

	return nil
}

func runGet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := buildLogger()

	cs, err := newCLISession(ctx, logger)
	if err != nil {
		return err
	}

	task, err := cs.Client.GetTask(ctx, args[0])
	if err != nil {
		return fmt.Errorf("getting task %s: %w", args[0], err)
	}

	return printTask(cmd.OutOrStdout(), task)
}

func printTask(w io.Writer, task *mi.Task) error {
	out := newTaskOutput(task)

	if flagJSON {
		return printJSON(w, out)
	}

	fmt.Fprintf(w, "Job ID:    %s\n", out.JobID)
	fmt.Fprintf(w, "Status:    %s\n", out.Status)
	fmt.Fprintf(w, "Submitted: %s\n", formatTime(out.Submitted))

	if out.Company != "" {
		fmt.Fprintf(w, "Company:   %s\n", out.Company)
	}

	if out.Filename != "" {
		fmt.Fprintf(w, "Filename:  %s\n", out.Filename)
	}

	if out.ModelFilename != "" {
		fmt.Fprintf(w, "Model:     %s\n", out.ModelFilename)
	}

	return nil
}

// filetypeFromPath derives the filetype from the file extension.
func filetypeFromPath(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}

func runSubmit(cmd *cobra.Command, args []string) error {
	path := args[0]
	logger := buildLogger()
	ctx, stop := shutdownContext(cmd.Context(), logger)
	defer stop()

	params, wait, err := submitFlags(cmd, path)
	if err != nil {
		return err
	}

	// Checked before login so a typo costs no network round trip.
	if err := params.Validate(); err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	cs, err := newCLISession(ctx, logger)
	if err != nil {
		return err
	}

	jobID, err := cs.Client.SubmitTask(ctx, mi.FromReader(bytes.NewReader(data)), params)
	if err != nil {
		return fmt.Errorf("submitting %s: %w", path, err)
	}

	recordSubmission(ctx, logger, journal.Entry{
		JobID:    jobID,
		Filename: params.Filename,
		Filetype: params.Filetype,
		Company:  params.CompanyName,
		Checksum: mi.ContentMD5(data),
		Size:     int64(len(data)),
	})

	statusf("Submitted %s (%s).\n", path, formatSize(int64(len(data))))

	if !wait {
		if flagJSON {
			return printJSON(cmd.OutOrStdout(), map[string]string{"job_id": jobID})
		}

		fmt.Fprintln(cmd.OutOrStdout(), jobID)

		return nil
	}

	task, err := cs.Client.WaitForTask(ctx, jobID, mi.WaitOptions{})
	if err != nil {
		return err
	}

	return printTask(cmd.OutOrStdout(), task)
}

func submitFlags(cmd *cobra.Command, path string) (mi.SubmitParams, bool, error) {
	var params mi.SubmitParams

	filetype, err := cmd.Flags().GetString("filetype")
	if err != nil {
		return params, false, err
	}

	filename, err := cmd.Flags().GetString("filename")
	if err != nil {
		return params, false, err
	}

	company, err := cmd.Flags().GetString("company")
	if err != nil {
		return params, false, err
	}

	wait, err := cmd.Flags().GetBool("wait")
	if err != nil {
		return params, false, err
	}

	if filetype == "" {
		filetype = filetypeFromPath(path)
	}

	if filename == "" {
		filename = path
	}

	params = mi.SubmitParams{Filetype: filetype, Filename: filename, CompanyName: company}

	return params, wait, nil
}

// recordSubmission journals a successful submit. The task exists either
// way, so journal failures are only logged.
func recordSubmission(ctx context.Context, logger *slog.Logger, e journal.Entry) {
	j, err := openJournal(ctx, logger)
	if err != nil {
		logger.Warn("could not open journal", slog.String("error", err.Error()))
		return
	}
	defer j.Close()

	if _, err := j.Record(ctx, e); err != nil {
		logger.Warn("could not record submission",
			slog.String("job_id", e.JobID),
			slog.String("error", err.Error()),
		)
	}
}

func runFetch(cmd *cobra.Command, args []string) error {
	jobID := args[0]
	ctx := cmd.Context()
	logger := buildLogger()

	output, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}

	cs, err := newCLISession(ctx, logger)
	if err != nil {
		return err
	}

	// Fetched right before the download: the model URL is short-lived.
	task, err := cs.Client.GetTask(ctx, jobID)
	if err != nil {
		return fmt.Errorf("getting task %s: %w", jobID, err)
	}

	model, err := cs.Client.FetchModel(ctx, task)
	if err != nil {
		return fmt.Errorf("fetching model for %s: %w", jobID, err)
	}

	return writeJSONOutput(cmd.OutOrStdout(), output, model)
}

// writeJSONOutput writes raw JSON to stdout or, when path is set, to a file
// via a .partial temp file and atomic rename.
func writeJSONOutput(stdout io.Writer, path string, raw json.RawMessage) error {
	if path == "" {
		_, err := fmt.Fprintln(stdout, string(raw))
		return err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, dirPerms); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	partialPath := path + ".partial"

	if err := os.WriteFile(partialPath, raw, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", partialPath, err)
	}

	if err := os.Rename(partialPath, path); err != nil {
		_ = os.Remove(partialPath)
		return fmt.Errorf("renaming %s: %w", partialPath, err)
	}

	statusf("Wrote %s (%s).\n", path, formatSize(int64(len(raw))))

	return nil
}

func runRm(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := buildLogger()

	cs, err := newCLISession(ctx, logger)
	if err != nil {
		return err
	}

	j, err := openJournal(ctx, logger)
	if err != nil {
		logger.Warn("could not open journal", slog.String("error", err.Error()))
	}

	if j != nil {
		defer j.Close()
	}

	var errs []error

	for _, jobID := range args {
		if err := cs.Client.DeleteTask(ctx, &mi.Task{JobID: jobID}); err != nil {
			errs = append(errs, fmt.Errorf("deleting %s: %w", jobID, err))
			continue
		}

		if j != nil {
			if err := j.MarkDeleted(ctx, jobID); err != nil {
				logger.Warn("could not update journal",
					slog.String("job_id", jobID),
					slog.String("error", err.Error()),
				)
			}
		}

		statusf("Deleted %s.\n", jobID)
	}

	return errors.Join(errs...)
}

func runConsolidate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := buildLogger()

	output, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}

	cs, err := newCLISession(ctx, logger)
	if err != nil {
		return err
	}

	tasks := make([]mi.Task, 0, len(args))
	for _, id := range args {
		tasks = append(tasks, mi.Task{JobID: id})
	}

	model, err := cs.Client.ConsolidateTasks(ctx, tasks)
	if err != nil {
		return err
	}

	return writeJSONOutput(cmd.OutOrStdout(), output, model)
}

func runWait(cmd *cobra.Command, args []string) error {
	logger := buildLogger()
	ctx, stop := shutdownContext(cmd.Context(), logger)
	defer stop()

	timeout, err := cmd.Flags().GetDuration("timeout")
	if err != nil {
		return err
	}

	cs, err := newCLISession(ctx, logger)
	if err != nil {
		return err
	}

	task, err := cs.Client.WaitForTask(ctx, args[0], mi.WaitOptions{MaxElapsed: timeout})
	if err != nil {
		return err
	}

	if err := printTask(cmd.OutOrStdout(), task); err != nil {
		return err
	}

	if task.Status == mi.StatusFailed {
		return fmt.Errorf("task %s failed", task.JobID)
	}

	return nil
}
