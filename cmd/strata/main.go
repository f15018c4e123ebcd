// Command strata is the reference migration binary. Migration units
// are Go code, so a host project is expected to copy this command into
// its own tree and register its generated units in hostRegistry.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/logrusorgru/aurora/v3"
	"github.com/pkg/errors"

	"github.com/olegsidorov/strata"
	"github.com/olegsidorov/strata/internal/cli"
	"github.com/olegsidorov/strata/unit"
)

var ErrNameRequired = errors.New("create requires -name")

// hostRegistry is the seam for the host project, typically
//
//	return unit.NewRegistry(migrations.All...)
//
// where migrations is the package the scaffolder writes into.
func hostRegistry() (*unit.Registry, error) {
	return unit.NewRegistry()
}

func main() {
	var configPath string
	var steps int
	var name string

	flag.StringVar(&configPath, "config", "strata.yaml", "path to the strata configuration file")
	flag.IntVar(&steps, "steps", 0, "limit how many units the command touches")
	flag.StringVar(&name, "name", "", "name of the migration unit to create")
	flag.Parse()

	command := flag.Arg(0)
	if command == "" {
		usage()
		os.Exit(1)
	}

	if err := run(configPath, command, steps, name); err != nil {
		fmt.Println(aurora.Red(fmt.Sprintf("strata: %s", err)))
		os.Exit(1)
	}
}

func run(configPath, command string, steps int, name string) (err error) {
	registry, err := hostRegistry()
	if err != nil {
		return err
	}

	app, closer, err := cli.NewFromYaml(configPath, registry)
	if err != nil {
		return err
	}

	defer func() {
		if closeErr := closer(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	switch command {
	case "migrate":
		applied, migrateErr := app.Migrate(ctx, cli.ActionConfig{Steps: steps})
		if migrateErr != nil {
			return migrateErr
		}

		report("migrated", applied)
	case "rollback":
		rolledBack, rollbackErr := app.Rollback(ctx, cli.ActionConfig{Steps: steps})
		if rollbackErr != nil {
			return rollbackErr
		}

		report("rolled back", rolledBack)
	case "status":
		statuses, statusErr := app.Status(ctx)
		if statusErr != nil {
			return statusErr
		}

		printStatuses(statuses)
	case "create":
		if name == "" {
			return ErrNameRequired
		}

		path, createErr := app.CreateUnit(name)
		if createErr != nil {
			return createErr
		}

		fmt.Println(aurora.Green(fmt.Sprintf("created %s", path)))
	default:
		usage()
		return errors.Errorf("unknown command [%s]", command)
	}

	return nil
}

func report(verb string, keys []string) {
	if len(keys) == 0 {
		fmt.Println(aurora.Yellow("nothing to do"))
		return
	}

	for _, k := range keys {
		fmt.Println(aurora.Green(fmt.Sprintf("%s %s", verb, k)))
	}
}

func printStatuses(statuses []strata.Status) {
	for _, s := range statuses {
		if s.State == strata.StateApplied {
			fmt.Println(aurora.Green(fmt.Sprintf(
				"%s\tapplied\tbatch %d\t%s",
				s.Key, s.Batch, s.AppliedAt.Format(time.RFC3339),
			)))
		} else {
			fmt.Println(aurora.Yellow(fmt.Sprintf("%s\tpending", s.Key)))
		}
	}
}

func usage() {
	fmt.Println("usage: strata [-config strata.yaml] [-steps N] [-name slug] <migrate|rollback|status|create>")
}
