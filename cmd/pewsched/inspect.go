package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"pewsched/internal/app"
	"pewsched/internal/config"
	"pewsched/internal/storage"
	"pewsched/internal/task/scheduler"
	"pewsched/internal/task/trigger"
	logx "pewsched/pkg/logx"
)

func loadConfig() (*config.Config, error) {
	cfg, err := config.NewConfigManager(cfgPath).Parse()
	if err != nil {
		return nil, err
	}
	if err := app.ValidateJobs(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the config and every job schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				if hints := errors.GetAllHints(err); len(hints) > 0 {
					cmd.PrintErrln("hint:", strings.Join(hints, "; "))
				}
				return err
			}
			cmd.Printf("%s: ok (%d jobs)\n", cfgPath, len(cfg.Jobs))
			return nil
		},
	}
}

func newNextCmd() *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "next [job...]",
		Short: "Preview upcoming run times",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			loc := time.UTC
			if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
				if loc, err = trigger.LoadLocation(tz); err != nil {
					return err
				}
			}
			want := map[string]bool{}
			for _, id := range args {
				want[id] = true
			}

			now := time.Now()
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "JOB\tTRIGGER\tNEXT")
			for _, jc := range cfg.Jobs {
				if len(want) > 0 && !want[jc.ID] {
					continue
				}
				tr, err := app.JobTrigger(jc, loc, now)
				if err != nil {
					return err
				}
				n := count
				if jc.MaxRuns > 0 {
					n = min(n, jc.MaxRuns)
				}
				runs := scheduler.PreviewRuns(tr, now, n)
				if len(runs) == 0 {
					fmt.Fprintf(tw, "%s\t%s\t-\n", jc.ID, tr.Kind())
					continue
				}
				for i, at := range runs {
					id, kind := jc.ID, string(tr.Kind())
					if i > 0 {
						id, kind = "", ""
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\n", id, kind, at.In(loc).Format(time.RFC3339))
				}
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 5, "number of run times per job")
	return cmd
}

func newHistoryCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history [job]",
		Short: "Show recorded runs, newest first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Storage == nil {
				return errors.WithHint(storage.ErrDisabled, `set storage.driver to "file" or "sqlite"`)
			}
			busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, time.Second)
			if err != nil {
				return err
			}
			st, err := storage.Open(storage.Config{
				Driver:      cfg.Storage.Driver,
				Path:        cfg.Storage.Path,
				BusyTimeout: busy,
				HistorySize: cfg.Storage.HistorySize,
			}, logx.Nop())
			if err != nil {
				return err
			}
			if st == nil {
				return errors.WithHint(storage.ErrDisabled, `set storage.driver to "file" or "sqlite"`)
			}
			defer st.Close()

			jobID := ""
			if len(args) == 1 {
				jobID = args[0]
			}
			runs, err := st.RecentRuns(context.Background(), jobID, limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "STARTED\tJOB\tTOOK\tRESULT")
			for _, r := range runs {
				result := "ok"
				if !r.OK() {
					result = r.Error
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Started.Format(time.RFC3339), r.JobID, r.Duration.Round(time.Millisecond), result)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum runs to show (0 for all)")
	return cmd
}
