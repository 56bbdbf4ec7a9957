package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"tidings/internal/app"
	"tidings/internal/publish"
)

func buildApp() (*app.App, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		} else {
			return nil, fmt.Errorf("no config file found, pass --config")
		}
	}
	return app.New(path)
}

func runDaemon() error {
	a, err := buildApp()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return a.Run(ctx)
}

func runCollect(date string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	target, err := resolveDate(a, date)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return a.Collector().Collect(ctx, target)
}

func runPublish(date string, priority int) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var res publish.Result
	if priority > 0 {
		target, err := resolveDate(a, date)
		if err != nil {
			return err
		}
		res = a.Coordinator().ForcePublish(ctx, target, priority)
	} else {
		res = a.Coordinator().PublishNext(ctx)
	}

	switch res.Status {
	case publish.StatusDelivered:
		fmt.Printf("published %s (priority %d, %d remaining)\n", res.ItemID, res.Priority, res.Remaining)
		return nil
	case publish.StatusSkippedDuplicate:
		fmt.Printf("skipped %s: duplicate of recent content\n", res.ItemID)
		return nil
	case publish.StatusNoItemReady:
		fmt.Println("no item ready")
		return nil
	default:
		return res.Err
	}
}

func runStatus(date string, jsonOutput bool) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	target, err := resolveDate(a, date)
	if err != nil {
		return err
	}
	rep, err := a.Coordinator().StatusFor(target)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}

	if !rep.Exists {
		fmt.Printf("no batch for %s\n", rep.Date)
		return nil
	}
	fmt.Printf("batch %s: %d items, %d published, %d pending\n",
		rep.Date, rep.Total, rep.Published, rep.Unpublished)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PRI\tSLOT\tSTATE\tATTEMPTS\tTITLE")
	for _, it := range rep.Items {
		state := "pending"
		if it.Published {
			state = "published"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\n",
			it.Priority, it.ScheduledTime, state, it.Attempts, it.Title)
	}
	return w.Flush()
}

// resolveDate parses --date, defaulting to yesterday in the pipeline zone.
func resolveDate(a *app.App, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Now().In(a.Location()).AddDate(0, 0, -1), nil
	}
	d, err := time.ParseInLocation("2006-01-02", raw, a.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --date %q (want YYYY-MM-DD)", raw)
	}
	return d, nil
}
