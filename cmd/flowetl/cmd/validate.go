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
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/aaronlmathis/flowetl/core"
)

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration and rules without reading any input.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				logConfigError(err)
				return err
			}
			rules, err := loadRules(cfg)
			if err != nil {
				logConfigError(err)
				return err
			}
			if _, _, err := newParser(cfg.Input); err != nil {
				logConfigError(err)
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "configuration ok: %s input, %s sink, %d rules\n", cfg.Input.Format, cfg.Sink.Type, len(rules))
			for i, rule := range rules {
				name := rule.Name
				if name == "" {
					name = fmt.Sprintf("rules[%d]", i)
				}
				fmt.Fprintf(out, "  %s: %s\n", name, rule)
			}
			return nil
		},
	}
}

// logConfigError logs every configuration problem contained in err on its own line.
func logConfigError(err error) {
	var merr *multierror.Error
	if !errors.As(err, &merr) {
		merr = &multierror.Error{Errors: []error{err}}
	}
	for _, e := range merr.Errors {
		var cfgErr *core.ConfigError
		if errors.As(e, &cfgErr) {
			log.WithField("path", cfgErr.Path).Error(cfgErr.Err)
			continue
		}
		log.Error(e)
	}
}
