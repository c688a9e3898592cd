package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/EternisAI/silo-provisioner/internal/provisioning"
	"github.com/EternisAI/silo-provisioner/internal/workbook"
	"gopkg.in/yaml.v3"
)

const flavorAll = "all"

type report struct {
	GeneratedAt time.Time           `yaml:"generated_at"`
	Input       string              `yaml:"input"`
	Runs        []*provisioning.Run `yaml:"runs"`
}

// flavorsFor expands the --flavor flag. "all" runs the application batch first.
func flavorsFor(name string) ([]provisioning.Flavor, error) {
	if name == flavorAll {
		return []provisioning.Flavor{provisioning.FlavorApps, provisioning.FlavorClients}, nil
	}
	f := provisioning.Flavor(name)
	if !f.Valid() {
		return nil, fmt.Errorf("%w: %q", provisioning.ErrInvalidFlavor, name)
	}
	return []provisioning.Flavor{f}, nil
}

func runProvision(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	flavor := fs.String("flavor", flavorAll, "Batch to provision: apps, clients or all")
	input := fs.String("input", config.Input.Path, "Input workbook (.xlsx)")
	reportPath := fs.String("report", "", "Write a YAML report of the runs to this file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	flavors, err := flavorsFor(*flavor)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var sink provisioning.Sink
	if config.Database.Enabled() {
		store, release, err := openStore(ctx, config.Database)
		if err != nil {
			return err
		}
		defer release()
		sink = store
	}

	wb, err := workbook.Open(*input)
	if err != nil {
		return err
	}
	defer wb.Close()

	orch := newOrchestrator(config, sink)
	rep := report{GeneratedAt: time.Now().UTC(), Input: *input}
	for _, f := range flavors {
		run, err := orch.Execute(ctx, f, wb)
		if err != nil {
			return fmt.Errorf("%s provisioning aborted: %w", f, err)
		}
		rep.Runs = append(rep.Runs, run)
	}

	if *reportPath != "" {
		if err := writeReport(*reportPath, rep); err != nil {
			return err
		}
		slog.Info("Report written", "path", *reportPath)
	}
	return nil
}

// writeReport stores rep as YAML. The report carries generated passwords, so it is
// readable by the owner only.
func writeReport(path string, rep report) error {
	out, err := yaml.Marshal(rep)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}
	if err := os.WriteFile(path, out, 0600); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
