// Copyright 2026 dboth. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// thermalplant shows and streams a thermal camera, and saves calibrated
// snapshots on demand.
package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/dboth/thermalplant/config"
)

type app struct {
	configPath string
	verbose    bool
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "thermalplant",
		Short:         "Thermal imaging for plants",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !a.verbose {
				log.SetOutput(io.Discard)
			}
			log.SetFlags(log.Lmicroseconds)
			var err error
			a.cfg, err = config.Load(a.configPath)
			return err
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", config.DefaultPath(), "configuration file, created if missing")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "verbose mode")
	root.AddCommand(a.runCmd(), a.grabCmd(), a.probeCmd())
	return root
}

func mainImpl() error {
	return newRootCmd().Execute()
}

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "\nthermalplant: %s.\n", err)
		os.Exit(1)
	}
}
