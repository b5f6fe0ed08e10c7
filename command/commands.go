// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package command

import (
	"fmt"
	"io"
	"os"

	"github.com/hashicorp/cli"
	"github.com/mattn/go-isatty"
	"github.com/openbao/mdbkv/version"
)

// RunOptions overrides the process defaults used by RunCustom.
type RunOptions struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Run runs the CLI with the given arguments and returns the exit code.
func Run(args []string) int {
	return RunCustom(args, nil)
}

// RunCustom is like Run but with the input and output streams in runOpts.
func RunCustom(args []string, runOpts *RunOptions) int {
	if runOpts == nil {
		runOpts = &RunOptions{}
	}
	if runOpts.Stdin == nil {
		runOpts.Stdin = os.Stdin
	}
	if runOpts.Stdout == nil {
		runOpts.Stdout = os.Stdout
	}
	if runOpts.Stderr == nil {
		runOpts.Stderr = os.Stderr
	}

	var ui cli.Ui = &cli.BasicUi{
		Reader:      runOpts.Stdin,
		Writer:      runOpts.Stdout,
		ErrorWriter: runOpts.Stderr,
	}

	// Only color output going to a terminal.
	if f, ok := runOpts.Stdout.(*os.File); ok && isatty.IsTerminal(f.Fd()) && os.Getenv("NO_COLOR") == "" {
		ui = &cli.ColoredUi{
			ErrorColor: cli.UiColorRed,
			WarnColor:  cli.UiColorYellow,
			InfoColor:  cli.UiColorGreen,
			Ui:         ui,
		}
	}

	c := &cli.CLI{
		Name:                       "mdbkv",
		Args:                       args,
		Version:                    version.GetVersion().FullVersionNumber(true),
		Commands:                   initCommands(ui, runOpts.Stdin),
		HelpFunc:                   cli.BasicHelpFunc("mdbkv"),
		HelpWriter:                 runOpts.Stdout,
		ErrorWriter:                runOpts.Stderr,
		Autocomplete:               true,
		AutocompleteNoDefaultFlags: true,
	}

	exitCode, err := c.Run()
	if err != nil {
		fmt.Fprintf(runOpts.Stderr, "Error executing CLI: %s\n", err.Error())
		return 1
	}
	return exitCode
}

func initCommands(ui cli.Ui, stdin io.Reader) map[string]cli.CommandFactory {
	getBaseCommand := func() *BaseCommand {
		return &BaseCommand{
			UI:    ui,
			stdin: stdin,
		}
	}

	return map[string]cli.CommandFactory{
		"copy": func() (cli.Command, error) {
			return &CopyCommand{BaseCommand: getBaseCommand()}, nil
		},
		"delete": func() (cli.Command, error) {
			return &DeleteCommand{BaseCommand: getBaseCommand()}, nil
		},
		"drop": func() (cli.Command, error) {
			return &DropCommand{BaseCommand: getBaseCommand()}, nil
		},
		"get": func() (cli.Command, error) {
			return &GetCommand{BaseCommand: getBaseCommand()}, nil
		},
		"list": func() (cli.Command, error) {
			return &ListCommand{BaseCommand: getBaseCommand()}, nil
		},
		"put": func() (cli.Command, error) {
			return &PutCommand{BaseCommand: getBaseCommand()}, nil
		},
		"stat": func() (cli.Command, error) {
			return &StatCommand{BaseCommand: getBaseCommand()}, nil
		},
		"version": func() (cli.Command, error) {
			return &VersionCommand{
				VersionInfo: version.GetVersion(),
				BaseCommand: getBaseCommand(),
			}, nil
		},
	}
}
