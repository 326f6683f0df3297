package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Napageneral/journai/internal/aggregate"
	"github.com/Napageneral/journai/internal/bus"
	"github.com/Napageneral/journai/internal/live"
	"github.com/Napageneral/journai/internal/server"
)

func serveCmd() *cobra.Command {
	var addr string
	var withInbox bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (and the inbox watcher when enabled)",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			if addr == "" {
				addr = a.cfg.Server.Addr
			}

			ctx, stop := signalContext()
			defer stop()

			router := server.NewRouter(server.Deps{
				DB:          a.db,
				Journal:     a.journal,
				Runner:      a.runner,
				Aggregator:  a.agg,
				Log:         a.log,
				CORSOrigins: a.cfg.Server.CORSOrigins,
			})

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error { return server.Run(ctx, addr, router, a.log) })
			if withInbox || a.cfg.Inbox.Enabled {
				in, err := a.inbox()
				if err != nil {
					return err
				}
				mgr := live.NewManager(a.db, a.log)
				mgr.Specs = []live.WatcherSpec{in.Watcher(mgr.HeartbeatInterval)}
				g.Go(func() error { return mgr.Run(ctx) })
			}
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config)")
	cmd.Flags().BoolVar(&withInbox, "inbox", false, "Also watch the journal inbox")
	return cmd
}

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Watch the journal inbox and analyze new files",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			in, err := a.inbox()
			if err != nil {
				return err
			}

			ctx, stop := signalContext()
			defer stop()

			mgr := live.NewManager(a.db, a.log)
			mgr.Specs = []live.WatcherSpec{in.Watcher(mgr.HeartbeatInterval)}
			a.log.Info("watching inbox", "dir", in.Dir)
			return mgr.Run(ctx)
		},
	}
}

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import [file...]",
		Short: "Import journal files (the inbox when no file is given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			in, err := a.inbox()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			var results []live.ImportResult
			if len(args) == 0 {
				if results, err = in.Scan(ctx); err != nil {
					return err
				}
			}
			for _, path := range args {
				res, err := in.ImportFile(ctx, path)
				if err != nil {
					return err
				}
				results = append(results, res)
			}

			if jsonOutput {
				printJSON(results)
				return nil
			}
			t := newTable("Path", "Entry", "Status")
			for _, r := range results {
				status := "imported"
				switch {
				case r.Skipped:
					status = "unchanged"
				case r.Analyzed:
					status = "imported, analyzed"
				}
				entry := "-"
				if r.EntryID != 0 {
					entry = strconv.FormatInt(r.EntryID, 10)
				}
				t.AppendRow(table.Row{r.Path, entry, status})
			}
			t.Render()
			return nil
		},
	}
}

func analyzeCmd() *cobra.Command {
	var only string
	cmd := &cobra.Command{
		Use:   "analyze <entry-id>",
		Short: "Run the analyzers on one entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entryID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid entry id %q", args[0])
			}
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			var report any
			if only != "" {
				report, err = a.runner.Analyze(ctx, entryID, only)
			} else {
				report, err = a.runner.AnalyzeAll(ctx, entryID)
			}
			if err != nil {
				return err
			}
			printJSON(report)
			return nil
		},
	}
	cmd.Flags().StringVar(&only, "only", "", "Run a single analyzer (va, spider, plutchik, activities, themeriver)")
	return cmd
}

func mergeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "merge-activities <target> <source...>",
		Short: "Fold activity labels into one canonical activity",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.journal.MergeActivities(cmd.Context(), args[1:], args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				printJSON(res)
			} else {
				fmt.Printf("Merged %d label(s) into %q, repointed %d metric(s)\n",
					res.AliasedCount, res.Canonical, res.RepointedMetrics)
			}
			return nil
		},
	}
}

func histogramCmd() *cobra.Command {
	var view, rng string
	cmd := &cobra.Command{
		Use:   "histogram",
		Short: "Activity counts and mood per day",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := aggregate.Filter{View: aggregate.ViewWeek}
			if view != "" {
				v, err := aggregate.ParseView(view)
				if err != nil {
					return err
				}
				f.View = v
			}
			if rng != "" {
				w, err := aggregate.ParseRange(rng)
				if err != nil {
					return err
				}
				f.Range = &w
			}

			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			days, err := a.agg.ActivityHistogram(cmd.Context(), f)
			if err != nil {
				return err
			}
			renderDays(days)
			return nil
		},
	}
	cmd.Flags().StringVar(&view, "view", "", "day, week, month or all (default week)")
	cmd.Flags().StringVar(&rng, "range", "", "Explicit window: YYYY-MM-DD,YYYY-MM-DD")
	return cmd
}

func moodHistogramCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mood-histogram",
		Short: "Average mood per activity and day, every day filled",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			days, err := a.agg.MoodHistogram(cmd.Context())
			if err != nil {
				return err
			}
			renderDays(days)
			return nil
		},
	}
}

func renderDays(days []aggregate.Day) {
	if jsonOutput {
		printJSON(days)
		return
	}
	t := newTable("Day", "Activity", "Count", "Mood")
	for _, d := range days {
		if len(d.Activities) == 0 {
			t.AppendRow(table.Row{d.Day, "-", "", ""})
			continue
		}
		for i, ac := range d.Activities {
			day := ""
			if i == 0 {
				day = d.Day
			}
			mood := "-"
			if ac.Mood != nil {
				mood = strconv.FormatFloat(*ac.Mood, 'f', 1, 64)
			}
			t.AppendRow(table.Row{day, ac.Name, ac.Count, mood})
		}
		t.AppendSeparator()
	}
	t.Render()
}

func eventsCmd() *cobra.Command {
	var after int64
	var limit int
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Page through the journal event log",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			events, err := bus.List(cmd.Context(), a.db, after, limit)
			if err != nil {
				return err
			}
			if jsonOutput {
				printJSON(events)
				return nil
			}
			t := newTable("Seq", "Type", "Entry", "Created", "Payload")
			for _, e := range events {
				entry := "-"
				if e.EntryID != nil {
					entry = strconv.FormatInt(*e.EntryID, 10)
				}
				payload := ""
				if e.Payload != nil {
					payload = *e.Payload
				}
				t.AppendRow(table.Row{e.Seq, e.Type, entry, e.CreatedAt, payload})
			}
			t.Render()
			return nil
		},
	}
	cmd.Flags().Int64Var(&after, "after", 0, "Only events with a greater seq")
	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum number of events")
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the state of the background watchers",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			statuses := live.GetStatuses(cmd.Context(), a.db, live.InboxWatcherName)
			if jsonOutput {
				printJSON(statuses)
				return nil
			}
			t := newTable("Watcher", "Status", "Heartbeat", "Restarts", "Last error")
			for _, s := range statuses {
				hb := "-"
				if s.LastHeartbeat != nil {
					hb = strconv.FormatInt(*s.LastHeartbeat, 10)
				}
				status := s.Status
				if status == "" {
					status = "never run"
				}
				t.AppendRow(table.Row{s.Watcher, status, hb, s.Restarts, strings.TrimSpace(s.LastError)})
			}
			t.Render()
			return nil
		},
	}
}

func newTable(header ...any) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row(header))
	return t
}
