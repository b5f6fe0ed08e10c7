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
	_ cli.Command             = (*DropCommand)(nil)
	_ cli.CommandAutocomplete = (*DropCommand)(nil)
)

type DropCommand struct {
	*BaseCommand

	flagEmpty bool
}

func (c *DropCommand) Synopsis() string {
	return "Delete a database or all of its entries"
}

func (c *DropCommand) Help() string {
	helpText := `
Usage: mdbkv drop [options]

  Deletes the database selected with -db together with all of its entries.
  The default database cannot be deleted; dropping it removes its entries.

      $ mdbkv drop -path=data.db -db=sessions

  Remove every entry but keep the database:

      $ mdbkv drop -path=data.db -db=sessions -empty

` + c.Flags().Help()

	return strings.TrimSpace(helpText)
}

func (c *DropCommand) Flags() *FlagSets {
	set := c.flagSet(FlagSetDatabase)

	f := set.NewFlagSet("Command Options")

	f.BoolVar(&BoolVar{
		Name:   "empty",
		Target: &c.flagEmpty,
		Usage:  "Only delete the entries, keeping the database.",
	})

	return set
}

func (c *DropCommand) AutocompleteArgs() complete.Predictor {
	return complete.PredictNothing
}

func (c *DropCommand) AutocompleteFlags() complete.Flags {
	return c.Flags().Completions()
}

func (c *DropCommand) Run(args []string) int {
	f := c.Flags()

	if err := f.Parse(args); err != nil {
		c.UI.Error(err.Error())
		return 1
	}

	if !c.checkArgs(f.Args(), 0, 0) {
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
		if c.flagEmpty {
			return txn.Empty(dbi)
		}
		return txn.Drop(dbi)
	})
	if err != nil {
		c.UI.Error(fmt.Sprintf("Error dropping database: %s", err))
		return 2
	}

	switch {
	case c.flagEmpty || c.flagDB == "":
		c.UI.Info(fmt.Sprintf("Success! Emptied database %q", c.flagDB))
	default:
		c.UI.Info(fmt.Sprintf("Success! Dropped database %q", c.flagDB))
	}
	return 0
}
