// Command clistbot runs the contest reminder bot.
//
// Usage:
//
//	clistbot run --config ./config.yaml
//	clistbot contests --config ./config.yaml --limit 10
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/paul-wild/FAU-Clist-Bot/internal/app"
	"github.com/paul-wild/FAU-Clist-Bot/internal/clist"
	"github.com/paul-wild/FAU-Clist-Bot/internal/config"
	"github.com/paul-wild/FAU-Clist-Bot/pkg/logx"
)

func main() {
	var cfgPath, envPath string

	root := &cobra.Command{
		Use:           "clistbot",
		Short:         "Telegram reminders for upcoming clist.by contests",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.LoadDotEnv(envPath)
		},
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "./config.yaml", "path to config (yaml or json)")
	root.PersistentFlags().StringVar(&envPath, "env", ".env", "dotenv file with secrets; missing is fine")

	run := runCmd(&cfgPath)
	root.RunE = run.RunE
	root.AddCommand(run)
	root.AddCommand(contestsCmd(&cfgPath))

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func runCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the bot until interrupted (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			sigs := make(chan os.Signal, 1)
			signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigs)

			a, err := app.NewApp(*cfgPath)
			if err != nil {
				return err
			}
			if err := a.Start(ctx); err != nil {
				stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer stopCancel()
				_ = a.Stop(stopCtx, app.StopFatalError)
				return fmt.Errorf("start: %w", err)
			}

			var reason app.StopReason
			select {
			case sig := <-sigs:
				reason = app.StopSIGTERM
				if sig == os.Interrupt {
					reason = app.StopSIGINT
				}
			case <-a.Done():
				reason = app.StopFatalError
			}

			stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer stopCancel()
			_ = a.Stop(stopCtx, reason)
			if reason == app.StopFatalError {
				if err := a.Err(); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func contestsCmd(cfgPath *string) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "contests",
		Short: "Print upcoming contests and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewConfigManager(*cfgPath).Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			set, err := config.Resolve(cfg)
			if err != nil {
				return err
			}
			if set.Clist.Username == "" || set.Clist.APIKey == "" {
				return errors.New("clist credentials are required (clist.username, clist.api_key)")
			}
			if limit <= 0 {
				limit = set.Reminders.ListLimit
			}

			client := clist.New(set.Clist, logx.NewConsole("WARN").With(logx.String("comp", "clist")))
			contests, err := client.FetchContests(cmd.Context(), time.Now(), set.Clist.Window)
			if err != nil {
				return err
			}
			if len(contests) > limit {
				contests = contests[:limit]
			}
			fmt.Fprintln(cmd.OutOrStdout(), app.FormatContestList(contests, set.Reminders.Location))
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "number of contests to show (default reminders.list_limit)")
	return cmd
}
