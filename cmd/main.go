/*
Copyright 2024 Sibabalw Payments Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	escrow "github.com/sibabalw/payments-app-sub003"
	"github.com/sibabalw/payments-app-sub003/config"
	"github.com/sibabalw/payments-app-sub003/database"
	"github.com/sibabalw/payments-app-sub003/internal/apierror"
)

// CLI encapsulates the root cobra command of the payments engine.
type CLI struct {
	cmd *cobra.Command
}

// engineInstance holds the engine and configuration shared by all commands.
type engineInstance struct {
	engine *escrow.Engine
	cnf    *config.Configuration
}

func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads the configuration and wires the engine before any command
// runs.
func preRun(app *engineInstance, configFile *string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig(*configFile)
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		newEngine, err := setupEngine(cnf)
		if err != nil {
			log.Fatal(err)
		}

		app.engine = newEngine
		app.cnf = cnf
		return nil
	}
}

func setupEngine(cfg *config.Configuration) (*escrow.Engine, error) {
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("error getting datasource: %v", err)
	}
	newEngine, err := escrow.NewEngine(db)
	if err != nil {
		return nil, fmt.Errorf("error creating engine: %v", err)
	}
	return newEngine, nil
}

// printSummary writes the machine-readable outcome of a batch command.
func printSummary(summary interface{}) {
	out, err := json.Marshal(summary)
	if err != nil {
		logrus.Error(err)
		return
	}
	fmt.Println(string(out))
}

// exitWith maps an operation error to the CLI's exit code taxonomy.
func exitWith(err error) {
	if err == nil {
		return
	}
	logrus.Error(err)
	os.Exit(apierror.MapErrorToExitCode(err))
}

// NewCLI assembles the payments-engine command tree.
func NewCLI() *CLI {
	var configFile string
	b := &engineInstance{}

	var rootCmd = &cobra.Command{
		Use:   "payments-engine",
		Short: "Escrow ledger and job consistency engine",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./payments.json", "Configuration file for the payments engine")
	rootCmd.PersistentPreRunE = preRun(b, &configFile)

	rootCmd.AddCommand(migrateCommands(b))
	rootCmd.AddCommand(workerCommands(b))
	rootCmd.AddCommand(scheduleCommands(b))
	rootCmd.AddCommand(jobCommands(b))
	rootCmd.AddCommand(reconcileCommands(b))
	rootCmd.AddCommand(recoverCommands(b))
	rootCmd.AddCommand(settleCommands(b))
	rootCmd.AddCommand(snapshotCommands(b))

	return &CLI{cmd: rootCmd}
}

func (w CLI) executeCLI() {
	if err := w.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}
