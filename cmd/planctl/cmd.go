package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"planbot/internal/app"
	"planbot/internal/config"
	"planbot/internal/planner"
	plannerplugin "planbot/internal/plugin/builtin/planner"
	logx "planbot/pkg/logx"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "planctl",
		Short:         "Parse, generate and inspect schedules",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "./config.yaml", "path to config (json or yaml)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "WARNING", "log level for stderr output")

	root.AddCommand(newParseCmd(opts), newPlanCmd(opts), newHistoryCmd(opts))
	return root
}

func (o *rootOptions) logger(w io.Writer) logx.Logger {
	return logx.NewWriter(w, o.logLevel)
}

func (o *rootOptions) load() (*config.Config, error) {
	return config.NewConfigManager(o.configPath).Load()
}

func newParseCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   `parse <timeframe> "task" ...`,
		Short: "Parse and normalize a request without calling the backend",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := standalonePipeline(cmd, opts)
			if err != nil {
				return err
			}
			req, err := p.Prepare(joinArgs(args))
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), req)
		},
	}
}

func newPlanCmd(opts *rootOptions) *cobra.Command {
	var (
		save    bool
		userID  int64
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   `plan <timeframe> "task" ...`,
		Short: "Generate a schedule against the configured backend",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			log := opts.logger(cmd.ErrOrStderr())
			p, err := app.NewPipeline(cfg, log)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			raw := joinArgs(args)
			res, err := p.Run(ctx, raw)
			if err != nil {
				return err
			}
			if res.Degraded {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning: backend reply unusable, fallback schedule returned")
			}
			if !save {
				return writeJSON(cmd.OutOrStdout(), res.Schedule)
			}

			st, err := app.OpenStore(cfg, log)
			if err != nil {
				return err
			}
			if st == nil {
				return errors.New("--save needs storage.driver to be configured")
			}
			defer st.Close()
			rec := plannerplugin.RecordFromResult(userID, userID, raw, res)
			id, err := st.SaveSchedule(ctx, rec)
			if err != nil {
				return err
			}
			rec.ID = id
			return writeJSON(cmd.OutOrStdout(), rec)
		},
	}
	cmd.Flags().BoolVar(&save, "save", false, "persist the result to the configured store")
	cmd.Flags().Int64Var(&userID, "user", 0, "user id to save the schedule under")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "overall deadline including retries")
	return cmd
}

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var (
		userID int64
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List saved schedules for a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			st, err := app.OpenStore(cfg, opts.logger(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			if st == nil {
				return errors.New("storage is disabled in config")
			}
			defer st.Close()
			recs, err := st.ListSchedules(cmd.Context(), userID, limit)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), recs)
		},
	}
	cmd.Flags().Int64Var(&userID, "user", 0, "user id")
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "maximum records")
	return cmd
}

// standalonePipeline falls back to the default policy when no config file
// exists, so parse works without any setup.
func standalonePipeline(cmd *cobra.Command, opts *rootOptions) (*planner.Pipeline, error) {
	cfg, err := opts.load()
	if err != nil {
		if !cmd.Flags().Changed("config") {
			cfg = &config.Config{}
		} else {
			return nil, err
		}
	}
	return app.NewPipeline(cfg, opts.logger(cmd.ErrOrStderr()))
}

// joinArgs rebuilds the raw request: the first argument is the timeframe and
// is passed through as-is, every later argument is one task and gets quoted
// unless it already is.
func joinArgs(args []string) string {
	if len(args) == 0 {
		return ""
	}
	parts := make([]string, 0, len(args))
	parts = append(parts, strings.TrimSpace(args[0]))
	for _, a := range args[1:] {
		a = strings.TrimSpace(a)
		if len(a) < 2 || !strings.HasPrefix(a, `"`) || !strings.HasSuffix(a, `"`) {
			a = `"` + a + `"`
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
