// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package command

import (
	"fmt"
	"strings"

	"github.com/hashicorp/cli"
	"github.com/openbao/mdbkv/helper/osutil"
	"github.com/posener/complete"
)

var (
	_ cli.Command             = (*CopyCommand)(nil)
	_ cli.CommandAutocomplete = (*CopyCommand)(nil)
)

type CopyCommand struct {
	*BaseCommand
}

func (c *CopyCommand) Synopsis() string {
	return "Write a consistent copy of the environment"
}

func (c *CopyCommand) Help() string {
	helpText := `
Usage: mdbkv copy [options] DEST

  Writes a consistent snapshot of the environment to DEST while it stays
  usable by other processes. DEST is replaced if it exists.

      $ mdbkv copy -path=data.db backup.db

` + c.Flags().Help()

	return strings.TrimSpace(helpText)
}

func (c *CopyCommand) Flags() *FlagSets {
	return c.flagSet(FlagSetEnv)
}

func (c *CopyCommand) AutocompleteArgs() complete.Predictor {
	return complete.PredictFiles("*")
}

func (c *CopyCommand) AutocompleteFlags() complete.Flags {
	return c.Flags().Completions()
}

func (c *CopyCommand) Run(args []string) int {
	f := c.Flags()

	if err := f.Parse(args); err != nil {
		c.UI.Error(err.Error())
		return 1
	}

	args = f.Args()
	if !c.checkArgs(args, 1, 1) {
		return 1
	}
	dest := args[0]

	env, err := c.openEnv(true)
	if err != nil {
		c.UI.Error(err.Error())
		return 2
	}
	defer c.closeEnv(env)

	if err := env.Copy(dest); err != nil {
		c.UI.Error(fmt.Sprintf("Error copying environment: %s", err))
		return 2
	}

	sum, err := osutil.FileSha256Sum(dest)
	if err != nil {
		c.UI.Error(fmt.Sprintf("Error hashing copy: %s", err))
		return 2
	}

	c.UI.Info(fmt.Sprintf("Success! Copied environment to %s (sha256 %s)", dest, sum))
	return 0
}
