// Command syncctl operates the sync engine from the command line: draining
// the queue, inspecting its state and re-arming failed items.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/medistock/syncengine/config"
	"github.com/medistock/syncengine/identity"
	"github.com/medistock/syncengine/local"
	"github.com/medistock/syncengine/logging"
	"github.com/medistock/syncengine/processor"
	"github.com/medistock/syncengine/queue"
	"github.com/medistock/syncengine/realtime"
	"github.com/medistock/syncengine/remote"
	"github.com/medistock/syncengine/resolve"
	"github.com/medistock/syncengine/scheduler"
	"github.com/medistock/syncengine/status"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// engine bundles everything the subcommands need.
type engine struct {
	cfg      config.Config
	q        *queue.Store
	proc     *processor.Processor
	agg      *status.Aggregator
	listener *realtime.Listener
}

func (e *engine) close() {
	e.q.Close()
}

func buildEngine(cfgPath string) (*engine, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	logging.Init(cfg.Logging)

	q, err := queue.NewWithDataSource(cfg.QueuePath)
	if err != nil {
		return nil, err
	}

	remotes := remote.NewRegistry()
	locals := local.NewRegistry()
	var listener *realtime.Listener
	if cfg.Remote.Configured() {
		clientID, err := identity.Load(cfg.ClientIDFile)
		if err != nil {
			q.Close()
			return nil, err
		}
		client := remote.NewClient(cfg.Remote.BaseURL, cfg.Remote.APIKey,
			remote.WithClientID(clientID))
		client.RegisterAll(remotes)

		if cfg.Remote.RealtimeURL != "" {
			listener = realtime.NewListener(cfg.Remote.RealtimeURL, cfg.Remote.APIKey,
				realtime.NewEchoFilter(clientID),
				realtime.ApplyToLocal(locals, logging.Default()))
		}
	}

	proc := processor.New(q, remotes, locals, resolve.NewResolver(),
		processor.WithRetryConfig(cfg.RetryConfig()),
		processor.WithConfiguredCheck(cfg.Remote.Configured))

	return &engine{
		cfg:      cfg,
		q:        q,
		proc:     proc,
		agg:      status.NewAggregator(q),
		listener: listener,
	}, nil
}

func newRootCmd() *cobra.Command {
	var cfgPath string

	root := &cobra.Command{
		Use:           "syncctl",
		Short:         "Operate the offline-first sync engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "syncengine.yaml", "path to the config file")

	root.AddCommand(newRunCmd(&cfgPath))
	root.AddCommand(newWatchCmd(&cfgPath))
	root.AddCommand(newStatusCmd(&cfgPath))
	root.AddCommand(newRetryFailedCmd(&cfgPath))
	return root
}

func newWatchCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Run the engine continuously: periodic drains, realtime feed, live status",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := buildEngine(*cfgPath)
			if err != nil {
				return err
			}
			defer eng.close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			monitor := scheduler.NewManualMonitor(true)
			opts := []scheduler.Option{
				scheduler.WithOnChange(eng.agg.SetOnline),
			}
			if eng.listener != nil {
				opts = append(opts, scheduler.WithRealtime(eng.listener))
			}
			sched := scheduler.New(eng.proc, monitor, eng.cfg.Retry.SyncInterval.Std(), opts...)

			eng.agg.SetOnline(monitor.Online())
			if err := eng.agg.RefreshCounts(ctx); err != nil {
				return err
			}
			go eng.agg.Feed(ctx, eng.proc.Events())

			snaps, cancelSub := eng.agg.Subscribe()
			defer cancelSub()
			go func() {
				for snap := range snaps {
					cmd.Printf("pending=%d conflicts=%d online=%t syncing=%t\n",
						snap.Pending, snap.Conflicts, snap.Online, snap.IsSyncing)
				}
			}()

			sched.Start(ctx)
			<-ctx.Done()
			sched.Stop()
			return nil
		},
	}
}

func newRunCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Drain the sync queue once",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := buildEngine(*cfgPath)
			if err != nil {
				return err
			}
			defer eng.close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			done := make(chan struct{})
			go reportEvents(ctx, cmd, eng, done)

			err = eng.proc.Process(ctx)
			close(done)
			return err
		},
	}
}

// reportEvents narrates processor events and keeps the status aggregator
// current while a command-driven run executes.
func reportEvents(ctx context.Context, cmd *cobra.Command, eng *engine, done <-chan struct{}) {
	for {
		select {
		case ev := <-eng.proc.Events():
			eng.agg.Apply(ctx, ev)
			switch e := ev.(type) {
			case processor.CannotProcess:
				cmd.Printf("cannot process: %s\n", e.Reason)
			case processor.ItemSynced:
				cmd.Printf("synced %s %s\n", e.Kind, e.EntityID)
			case processor.ItemFailed:
				cmd.Printf("failed %s %s: %v (retry: %t)\n", e.Kind, e.EntityID, e.Err, e.WillRetry)
			case processor.ConflictDetected:
				cmd.Printf("conflict on %s %s, user decision required\n", e.Conflict.EntityType, e.Conflict.EntityID)
			case processor.ProcessingCompleted:
				cmd.Printf("done: %d processed, %d synced, %d failed, %d conflicts\n",
					e.Processed, e.Success, e.Failed, e.Conflicts)
			}
		case <-done:
			return
		}
	}
}

func newStatusCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the current sync state",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := buildEngine(*cfgPath)
			if err != nil {
				return err
			}
			defer eng.close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			if err := eng.agg.RefreshCounts(ctx); err != nil {
				return err
			}
			snap := eng.agg.Current()
			snap.Online = eng.cfg.Remote.Configured()

			out, err := json.MarshalIndent(snap, "", "  ")
			if err != nil {
				return err
			}
			cmd.Println(string(out))
			return nil
		},
	}
}

func newRetryFailedCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "retry-failed",
		Short: "Reset failed items to pending and drain the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := buildEngine(*cfgPath)
			if err != nil {
				return err
			}
			defer eng.close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			n, err := eng.proc.RetryFailed(ctx)
			if err != nil {
				return err
			}
			cmd.Printf("reset %d failed items\n", n)
			if n == 0 {
				return nil
			}

			done := make(chan struct{})
			go reportEvents(ctx, cmd, eng, done)
			err = eng.proc.Process(ctx)
			close(done)
			return err
		},
	}
}
