package handlers

import (
	"context"
	"fmt"
	"time"

	"commentpulse/internal/core"

	"github.com/spf13/cobra"
)

// NewJobCmd creates the job command with status, retry and cancel subcommands.
func NewJobCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Inspect and manage analysis jobs",
	}

	cmd.AddCommand(newJobStatusCmd())
	cmd.AddCommand(newJobRetryCmd())
	cmd.AddCommand(newJobCancelCmd())

	return cmd
}

func newJobStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [job-id]",
		Short: "Show the current state of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildStoreApp()
			if err != nil {
				return err
			}
			defer a.Close()

			job, err := a.lifecycle.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printJob(job)
			return nil
		},
	}
}

func newJobRetryCmd() *cobra.Command {
	var (
		model string
		async bool
	)

	cmd := &cobra.Command{
		Use:   "retry [job-id]",
		Short: "Retry a failed job",
		Long: `Retry a failed job. Only jobs in the FAILED state can be retried, and
each job allows a bounded number of attempts.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJobRetry(cmd.Context(), args[0], model, async)
		},
	}

	cmd.Flags().StringVar(&model, "model", "", "Gemini model override")
	cmd.Flags().BoolVar(&async, "async", false, "Resubmit and print the job ID without waiting")

	return cmd
}

func runJobRetry(ctx context.Context, jobID, model string, async bool) error {
	a, err := buildApp(model)
	if err != nil {
		return err
	}
	defer a.Close()

	job, err := a.lifecycle.Retry(ctx, jobID)
	if err != nil {
		return err
	}
	fmt.Printf("Retrying job %s (attempt %d of %d)\n", job.ID, job.RetryCount, job.MaxRetries)

	handle, err := a.service.Resubmit(ctx, job, nil)
	if err != nil {
		return err
	}

	if async {
		fmt.Println("Poll with: commentpulse job status", job.ID)
		return nil
	}

	outcome, err := handle.Await(ctx)
	if err != nil {
		return err
	}
	if outcome.Err != nil {
		return fmt.Errorf("analysis failed: %w", outcome.Err)
	}

	printResult(outcome.Result)
	return nil
}

func newJobCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel [job-id]",
		Short: "Cancel a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildStoreApp()
			if err != nil {
				return err
			}
			defer a.Close()

			job, err := a.lifecycle.Cancel(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Job %s cancelled\n", job.ID)
			return nil
		},
	}
}

func printJob(job *core.AnalysisJob) {
	fmt.Printf("Job:      %s\n", job.ID)
	fmt.Printf("Content:  %s\n", job.ContentID)
	fmt.Printf("Status:   %s\n", job.Status)
	fmt.Printf("Progress: %d%% (step %d of %d: %s)\n",
		job.Progress, job.CurrentStep, job.TotalSteps, job.StepDescription)

	if job.RetryCount > 0 {
		fmt.Printf("Retries:  %d of %d\n", job.RetryCount, job.MaxRetries)
	}
	if job.ErrorMessage != "" {
		fmt.Printf("Error:    %s\n", job.ErrorMessage)
	}
	if job.ResultID != "" {
		fmt.Printf("Result:   %s\n", job.ResultID)
	}

	fmt.Printf("Created:  %s\n", job.CreatedAt.Format(time.RFC3339))
	if job.StartedAt != nil {
		fmt.Printf("Started:  %s\n", job.StartedAt.Format(time.RFC3339))
	}
	if job.CompletedAt != nil {
		fmt.Printf("Finished: %s\n", job.CompletedAt.Format(time.RFC3339))
	}
}
