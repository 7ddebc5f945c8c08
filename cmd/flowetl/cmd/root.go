//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com
//
// This file is part of flowetl.
//
// flowetl is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// flowetl is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with flowetl. If not, see https://www.gnu.org/licenses/.

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/aaronlmathis/flowetl/config"
)

// RootCmd is the root Cobra command that gets called from the main func.
// Without a sub-command it behaves like `flowetl run`.
func RootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flowetl",
		Short: "flowetl ingests flow-accounting records, applies rules and bulk-loads them into a sink.",
		Long: `flowetl reads JSON or delimited flow records line by line from a file, stdin or S3,
applies the configured transformation rules and writes the records in batches to an
Elasticsearch-compatible bulk endpoint, MongoDB, PostgreSQL, Parquet or stdout.`,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE:         runE,
	}

	flags := cmd.PersistentFlags()
	flags.StringP("config", "c", "", "configuration file (YAML or JSON)")
	flags.Bool("print", false, "print batches to stdout instead of sending them to the sink")
	flags.StringP("input", "i", "-", `input file, "-" for stdin`)
	flags.StringP("format", "f", "json", "input format: json, csv or delimited")
	flags.IntP("workers", "w", 4, "number of parse/transform workers")
	flags.IntP("batch-size", "b", 5000, "maximum records per sink request")
	flags.String("log-level", "info", "log level: debug, info, warn, error")

	cmd.AddCommand(
		runCmd(),
		validateCmd(),
		versionCmd(),
	)

	return cmd
}

// loadConfig reads the configuration named by --config with flag overrides applied and
// configures logging from it.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return config.Config{}, err
	}
	cfg, err := config.Load(path, cmd.Flags())
	if err != nil {
		return config.Config{}, err
	}
	if err := config.ConfigureLogging(cfg.Logging); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}
