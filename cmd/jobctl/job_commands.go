package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/cuongbtq/story-factory/internal/api/storage"
	"github.com/cuongbtq/story-factory/internal/domain"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var topic, style string

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a story brief",
		RunE: func(cmd *cobra.Command, args []string) error {
			topic = strings.TrimSpace(topic)
			if topic == "" {
				return errors.New("--topic must not be blank")
			}

			return ctx.withSession(cmd.Context(), func(s *session) error {
				now := time.Now().UTC()
				job := &domain.Job{
					ID:        uuid.NewString(),
					Topic:     topic,
					Style:     strings.TrimSpace(style),
					Status:    domain.StatusScriptPending,
					CreatedAt: now,
					UpdatedAt: now,
				}
				if err := s.store.CreateJob(cmd.Context(), job); err != nil {
					return err
				}
				s.announce(cmd.Context(), cmd.ErrOrStderr(), job)

				fmt.Fprintf(cmd.OutOrStdout(), "Submitted job %s (%s)\n", job.ID, job.Status)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&topic, "topic", "t", "", "What the story is about")
	cmd.Flags().StringVarP(&style, "style", "s", "", "Visual and narrative style")
	return cmd
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var status string
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := storage.JobFilter{Status: domain.Status(status), PageSize: limit}
			if filter.Status != "" && !filter.Status.Valid() {
				return fmt.Errorf("unknown status %q", status)
			}
			if filter.PageSize <= 0 {
				filter.PageSize = 20
			}

			return ctx.withSession(cmd.Context(), func(s *session) error {
				jobs, err := s.store.ListJobs(cmd.Context(), filter)
				if err != nil {
					return err
				}
				if len(jobs) > filter.PageSize {
					jobs = jobs[:filter.PageSize]
				}

				if asJSON {
					return writeJSON(cmd.OutOrStdout(), jobs)
				}
				if len(jobs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No jobs found")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderJobList(jobs))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Only jobs in this status")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of jobs")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show a job and its scenes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, err := parseJobID(args[0])
			if err != nil {
				return err
			}

			return ctx.withSession(cmd.Context(), func(s *session) error {
				job, err := s.store.GetJobByID(cmd.Context(), jobID)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), job)
				}
				renderJobDetail(cmd.OutOrStdout(), job)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func newRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <job-id>",
		Short: "Send a failed job back to its stage's queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, err := parseJobID(args[0])
			if err != nil {
				return err
			}

			return ctx.withSession(cmd.Context(), func(s *session) error {
				job, err := s.store.Resubmit(cmd.Context(), jobID)
				if err != nil {
					if errors.Is(err, domain.ErrNotResubmittable) {
						return fmt.Errorf("job %s: %w", jobID, err)
					}
					return err
				}
				s.announce(cmd.Context(), cmd.ErrOrStderr(), job)

				fmt.Fprintf(cmd.OutOrStdout(), "Job %s moved to %s\n", job.ID, job.Status)
				return nil
			})
		},
	}
}

func parseJobID(raw string) (string, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("invalid job id %q: %w", raw, err)
	}
	return id.String(), nil
}

func renderJobList(jobs []domain.Job) string {
	rows := make([][]string, 0, len(jobs))
	for _, j := range jobs {
		rows = append(rows, []string{
			j.ID,
			string(j.Status),
			truncate(j.Topic, 40),
			strconv.Itoa(len(j.Scenes)),
			j.CreatedAt.Local().Format("2006-01-02 15:04"),
		})
	}
	return renderTable([]string{"ID", "Status", "Topic", "Scenes", "Created"}, rows, 3)
}

func renderJobDetail(w io.Writer, job *domain.Job) {
	fmt.Fprintf(w, "ID:       %s\n", job.ID)
	fmt.Fprintf(w, "Status:   %s\n", job.Status)
	fmt.Fprintf(w, "Topic:    %s\n", job.Topic)
	fmt.Fprintf(w, "Style:    %s\n", job.Style)
	fmt.Fprintf(w, "Created:  %s\n", job.CreatedAt.Local().Format(time.RFC3339))
	if job.ErrorMessage != nil {
		fmt.Fprintf(w, "Error:    %s\n", *job.ErrorMessage)
	}
	if job.FinalVideoURL != nil {
		fmt.Fprintf(w, "Video:    %s\n", *job.FinalVideoURL)
	}

	if len(job.Scenes) == 0 {
		return
	}

	rows := make([][]string, 0, len(job.Scenes))
	for i, s := range job.Scenes {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			truncate(s.Narration, 48),
			yesNo(s.ImageURL != ""),
			yesNo(s.AudioURL != ""),
			truncate(s.Error, 40),
		})
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, renderTable([]string{"#", "Narration", "Image", "Audio", "Error"}, rows, 0))
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "-"
}
