// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package command

import (
	"fmt"
	"strings"

	"github.com/hashicorp/cli"
	"github.com/openbao/mdbkv/physical/mdb"
	"github.com/posener/complete"
)

var (
	_ cli.Command             = (*DeleteCommand)(nil)
	_ cli.CommandAutocomplete = (*DeleteCommand)(nil)
)

type DeleteCommand struct {
	*BaseCommand
}

func (c *DeleteCommand) Synopsis() string {
	return "Delete a key or a single value"
}

func (c *DeleteCommand) Help() string {
	helpText := `
Usage: mdbkv delete [options] KEY [VALUE]

  Deletes KEY and every value stored under it. In a dup-sort database, giving
  VALUE deletes only that key/value pair.

      $ mdbkv delete -path=data.db greeting

      $ mdbkv delete -path=data.db -db=tags post/1 go

` + c.Flags().Help()

	return strings.TrimSpace(helpText)
}

func (c *DeleteCommand) Flags() *FlagSets {
	return c.flagSet(FlagSetDatabase)
}

func (c *DeleteCommand) AutocompleteArgs() complete.Predictor {
	return complete.PredictAnything
}

func (c *DeleteCommand) AutocompleteFlags() complete.Flags {
	return c.Flags().Completions()
}

func (c *DeleteCommand) Run(args []string) int {
	f := c.Flags()

	if err := f.Parse(args); err != nil {
		c.UI.Error(err.Error())
		return 1
	}

	args = f.Args()
	if !c.checkArgs(args, 1, 2) {
		return 1
	}

	env, err := c.openEnv(false)
	if err != nil {
		c.UI.Error(err.Error())
		return 2
	}
	defer c.closeEnv(env)

	err = env.Update(func(txn *mdb.Txn) error {
		dbi, err := c.openDB(txn)
		if err != nil {
			return err
		}
		if len(args) == 2 {
			return txn.DeleteValue(dbi, []byte(args[0]), []byte(args[1]))
		}
		return txn.Delete(dbi, []byte(args[0]))
	})
	switch {
	case mdb.IsNotFound(err):
		c.UI.Error(fmt.Sprintf("No value found for %s", args[0]))
		return 2
	case err != nil:
		c.UI.Error(fmt.Sprintf("Error deleting %s: %s", args[0], err))
		return 2
	}

	c.UI.Info(fmt.Sprintf("Success! Data deleted at: %s", args[0]))
	return 0
}
