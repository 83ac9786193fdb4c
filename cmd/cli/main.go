package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/content-curator/internal/app"
	"github.com/content-curator/internal/config"
	"github.com/content-curator/internal/models"
	"github.com/content-curator/internal/scheduler"
	"github.com/content-curator/internal/storage"
	"github.com/content-curator/pkg/logger"
)

var (
	cfgFile string
	cfg     *config.Config
	log     *logger.Logger
	curator *app.App
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "curator",
		Short: "Scheduled content curation for Discord",
		Long: `Fetches content from YouTube, Reddit and RSS feeds on a schedule,
filters and deduplicates it and posts new items to Discord webhooks.`,
		PersistentPreRunE:  initializeApp,
		PersistentPostRunE: closeApp,
		SilenceUsage:       true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")

	// Add subcommands
	rootCmd.AddCommand(tasksCmd())
	rootCmd.AddCommand(contentCmd())
	rootCmd.AddCommand(sourcesCmd())
	rootCmd.AddCommand(notifiersCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func initializeApp(cmd *cobra.Command, args []string) error {
	var err error

	// Load config
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	log = logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})

	curator, err = app.New(cmd.Context(), cfg, log)
	return err
}

func closeApp(cmd *cobra.Command, args []string) error {
	if curator == nil {
		return nil
	}
	return curator.Close()
}

// ============ TASK COMMANDS ============

func tasksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Scheduled task commands",
	}

	cmd.AddCommand(tasksListCmd())
	cmd.AddCommand(tasksShowCmd())
	cmd.AddCommand(tasksAddCmd())
	cmd.AddCommand(tasksSetEnabledCmd("enable", true))
	cmd.AddCommand(tasksSetEnabledCmd("disable", false))
	cmd.AddCommand(tasksRemoveCmd())
	cmd.AddCommand(tasksRunCmd())
	return cmd
}

func tasksListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List scheduled tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			tasks, err := curator.Tasks.ListTasks(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list tasks: %w", err)
			}

			fmt.Printf("\n=== Tasks (%d) ===\n\n", len(tasks))
			for _, t := range tasks {
				fmt.Printf("[%s] %s | %s | %s\n", t.ID, displayName(t), t.Platform, t.Schedule())
				fmt.Printf("    Source: %s | Notifier: %s | Max items: %d\n", describeSource(t), t.NotifierRef, t.MaxItems)
				if t.NextRun != nil {
					fmt.Printf("    Next run: %s (%s)\n", t.NextRun.Local().Format(time.RFC1123), humanize.Time(*t.NextRun))
				}
				fmt.Println()
			}
			return nil
		},
	}
}

func tasksShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [task-id]",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := curator.Tasks.GetTask(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			fmt.Printf("ID:        %s\n", t.ID)
			fmt.Printf("Name:      %s\n", displayName(t))
			fmt.Printf("Platform:  %s\n", t.Platform)
			fmt.Printf("Source:    %s\n", describeSource(t))
			fmt.Printf("Notifier:  %s\n", t.NotifierRef)
			fmt.Printf("Schedule:  %s\n", t.Schedule())
			fmt.Printf("Max items: %d\n", t.MaxItems)
			if t.StartTime != nil {
				fmt.Printf("Start:     %s\n", t.StartTime.Local().Format(time.RFC1123))
			}
			if t.NextRun != nil {
				fmt.Printf("Next run:  %s (%s)\n", t.NextRun.Local().Format(time.RFC1123), humanize.Time(*t.NextRun))
			}
			fmt.Printf("Created:   %s\n", t.Created.Local().Format(time.RFC1123))
			fmt.Printf("Updated:   %s\n", t.Updated.Local().Format(time.RFC1123))

			if t.HasSelection() {
				fmt.Printf("\nSelected content (%d):\n", len(t.ContentSelection))
				for i, c := range t.ContentSelection {
					fmt.Printf("  %d. %s [%s]\n", i+1, c.Title, c.ID)
				}
			}
			return nil
		},
	}
}

func tasksAddCmd() *cobra.Command {
	var (
		name      string
		platform  string
		src       string
		notifier  string
		every     int
		unit      string
		maxItems  int
		start     string
		manual    bool
		disabled  bool
		selection []string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a scheduled task",
		Example: `  curator tasks add --platform youtube --source UC_x5XG1OV2P6uZZ5FSM9Ttw --notifier main --every 2 --unit hours
  curator tasks add --platform reddit --source r/golang --notifier main --every 30 --unit minutes --max-items 3
  curator tasks add --platform youtube --select dQw4w9WgXcQ:"Launch video" --notifier main --manual`,
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now()

			task := &models.ScheduledTask{
				ID:            uuid.NewString(),
				Name:          name,
				Platform:      models.Platform(platform),
				Source:        strings.TrimSpace(src),
				NotifierRef:   notifier,
				Enabled:       !disabled,
				IntervalValue: every,
				IntervalUnit:  models.IntervalUnit(unit),
				MaxItems:      maxItems,
			}

			for _, s := range selection {
				id, title, _ := strings.Cut(s, ":")
				if id == "" {
					return fmt.Errorf("invalid --select %q, expected id[:title]", s)
				}
				task.ContentSelection = append(task.ContentSelection, models.SelectedContent{ID: id, Title: title})
			}

			startAt := now
			if start != "" {
				t, err := time.Parse(time.RFC3339, start)
				if err != nil {
					return fmt.Errorf("invalid --start, expected RFC3339: %w", err)
				}
				startAt = t
			}
			task.StartTime = &startAt
			if !manual {
				next := startAt
				task.NextRun = &next
			}

			if _, err := curator.Notifiers.Get(notifier); err != nil {
				return err
			}

			if err := curator.Tasks.SaveTask(cmd.Context(), task); err != nil {
				return err
			}

			fmt.Printf("Task %s created (%s)\n", task.ID, task.Schedule())
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&platform, "platform", "", "platform: youtube, reddit, rss or twitter")
	cmd.Flags().StringVar(&src, "source", "", "channel id, subreddit, feed url or search query")
	cmd.Flags().StringVar(&notifier, "notifier", "", "webhook name to deliver to")
	cmd.Flags().IntVar(&every, "every", 1, "interval value")
	cmd.Flags().StringVar(&unit, "unit", "hours", "interval unit: minutes, hours, days or weeks")
	cmd.Flags().IntVar(&maxItems, "max-items", scheduler.DefaultMaxItems, "maximum items delivered per run")
	cmd.Flags().StringVar(&start, "start", "", "first run time (RFC3339), default now")
	cmd.Flags().BoolVar(&manual, "manual", false, "only run with 'tasks run'")
	cmd.Flags().BoolVar(&disabled, "disabled", false, "create the task disabled")
	cmd.Flags().StringArrayVar(&selection, "select", nil, "static content id[:title], repeatable")
	cmd.MarkFlagRequired("platform")
	cmd.MarkFlagRequired("notifier")

	return cmd
}

func tasksSetEnabledCmd(use string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [task-id]",
		Short: strings.ToUpper(use[:1]) + use[1:] + " a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := curator.Tasks.GetTask(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			t.Enabled = enabled
			if err := curator.Tasks.SaveTask(cmd.Context(), t); err != nil {
				return err
			}

			fmt.Printf("Task %s: %s\n", t.ID, t.Schedule())
			return nil
		},
	}
}

func tasksRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove [task-id]",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := curator.Tasks.DeleteTask(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Task %s removed\n", args[0])
			return nil
		},
	}
}

func tasksRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run [task-id]",
		Short: "Run a task now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := curator.Dispatcher.RunNow(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			printReport(report)
			return report.Err
		},
	}
}

func printReport(r *scheduler.Report) {
	fmt.Printf("\n=== Run Results ===\n")
	fmt.Printf("Task:      %s\n", r.TaskID)
	fmt.Printf("Resolved:  %d\n", r.Resolved)
	fmt.Printf("Passed:    %d\n", r.Passed)
	fmt.Printf("Delivered: %d\n", r.Delivered)
	fmt.Printf("Failed:    %d\n", r.Failed)
	fmt.Printf("Skipped:   %d\n", r.Skipped)
	fmt.Printf("Duration:  %s\n", r.Duration)
	if r.NextRun != nil {
		fmt.Printf("Next run:  %s\n", r.NextRun.Local().Format(time.RFC1123))
	}

	if len(r.Errors) > 0 {
		fmt.Printf("\nErrors:\n")
		for _, e := range r.Errors {
			fmt.Printf("  - %s\n", e)
		}
	}
}

// ============ CONTENT COMMANDS ============

func contentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "content",
		Short: "Delivered content commands",
	}

	cmd.AddCommand(contentListCmd())
	return cmd
}

func contentListCmd() *cobra.Command {
	var (
		platform string
		status   string
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded content, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := storage.ContentFilter{Limit: limit}

			if platform != "" {
				p := models.Platform(platform)
				filter.Platform = &p
			}
			switch status {
			case "posted":
				posted := true
				filter.Posted = &posted
			case "unposted":
				posted := false
				filter.Posted = &posted
			case "", "all":
			default:
				return fmt.Errorf("invalid --status %q, expected posted, unposted or all", status)
			}

			items, err := curator.Repo.QueryContent(cmd.Context(), filter)
			if err != nil {
				return fmt.Errorf("failed to query content: %w", err)
			}

			fmt.Printf("\n=== Content (%d) ===\n\n", len(items))
			for _, c := range items {
				state := "new"
				if c.Posted {
					state = "posted"
				}
				fmt.Printf("[%s/%s] %s | %s\n", c.Platform, c.ContentID, state, truncateStr(c.Title, 80))
				fmt.Printf("    URL: %s\n", c.URL)
				fmt.Printf("    Seen: %s\n", humanize.Time(c.CreatedAt))
				fmt.Println()
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&platform, "platform", "", "filter by platform")
	cmd.Flags().StringVar(&status, "status", "all", "posted, unposted or all")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum rows")

	return cmd
}

// ============ SOURCE COMMANDS ============

func sourcesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Content source commands",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Check that enabled sources are reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			failed := 0
			for _, p := range curator.Sources.Platforms() {
				s, err := curator.Sources.Get(p)
				if err != nil {
					return err
				}
				if err := s.HealthCheck(ctx); err != nil {
					failed++
					fmt.Printf("  [ERROR] %s: %v\n", p, err)
					continue
				}
				fmt.Printf("  [OK]    %s\n", p)
			}

			if failed > 0 {
				return fmt.Errorf("%d source(s) failed", failed)
			}
			return nil
		},
	})

	return cmd
}

// ============ NOTIFIER COMMANDS ============

func notifiersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notifiers",
		Short: "Outbound webhook commands",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List configured webhooks",
		RunE: func(cmd *cobra.Command, args []string) error {
			names := curator.Notifiers.Names()
			if len(names) == 0 {
				fmt.Println("No webhooks configured.")
				fmt.Println("Add entries to notifiers.discord.webhooks in your config.")
				return nil
			}
			for _, name := range names {
				fmt.Printf("  - %s\n", name)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "test [name]",
		Short: "Send a test message to a webhook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := curator.TestNotifier(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Test message sent to %s\n", args[0])
			return nil
		},
	})

	return cmd
}

// ============ HELPERS ============

func displayName(t *models.ScheduledTask) string {
	if t.Name != "" {
		return t.Name
	}
	return "(unnamed)"
}

func describeSource(t *models.ScheduledTask) string {
	if t.HasSelection() {
		return fmt.Sprintf("%d selected item(s)", len(t.ContentSelection))
	}
	if t.Source == "" {
		return "(none)"
	}
	return t.Source
}

func truncateStr(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
