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
	_ cli.Command             = (*GetCommand)(nil)
	_ cli.CommandAutocomplete = (*GetCommand)(nil)
)

type GetCommand struct {
	*BaseCommand

	flagAll bool
}

func (c *GetCommand) Synopsis() string {
	return "Read the value stored under a key"
}

func (c *GetCommand) Help() string {
	helpText := `
Usage: mdbkv get [options] KEY

  Reads the value stored under KEY and prints it. In a dup-sort database the
  smallest value is printed, or every value with -all.

      $ mdbkv get -path=data.db greeting

      $ mdbkv get -path=data.db -db=tags -all post/1

` + c.Flags().Help()

	return strings.TrimSpace(helpText)
}

func (c *GetCommand) Flags() *FlagSets {
	set := c.flagSet(FlagSetDatabase)

	f := set.NewFlagSet("Command Options")

	f.BoolVar(&BoolVar{
		Name:   "all",
		Target: &c.flagAll,
		Usage:  "Print every value of the key in a dup-sort database.",
	})

	return set
}

func (c *GetCommand) AutocompleteArgs() complete.Predictor {
	return complete.PredictAnything
}

func (c *GetCommand) AutocompleteFlags() complete.Flags {
	return c.Flags().Completions()
}

func (c *GetCommand) Run(args []string) int {
	f := c.Flags()

	if err := f.Parse(args); err != nil {
		c.UI.Error(err.Error())
		return 1
	}

	args = f.Args()
	if !c.checkArgs(args, 1, 1) {
		return 1
	}
	key := []byte(args[0])

	env, err := c.openEnv(true)
	if err != nil {
		c.UI.Error(err.Error())
		return 2
	}
	defer c.closeEnv(env)

	var values []string
	err = env.View(func(txn *mdb.Txn) error {
		dbi, err := c.openDB(txn)
		if err != nil {
			return err
		}

		cur, err := txn.OpenCursor(dbi)
		if err != nil {
			return err
		}
		defer cur.Close()

		res, err := cur.Set(key)
		if err != nil || !res.Found() {
			return err
		}
		values = append(values, string(res.Value))
		if !c.flagAll {
			return nil
		}

		for {
			res, err := cur.NextDup()
			switch {
			case mdb.IsErrno(err, mdb.Incompatible):
				return nil
			case err != nil:
				return err
			case !res.Found():
				return nil
			}
			values = append(values, string(res.Value))
		}
	})
	if err != nil {
		c.UI.Error(fmt.Sprintf("Error reading %s: %s", args[0], err))
		return 2
	}

	if len(values) == 0 {
		c.UI.Error(fmt.Sprintf("No value found for %s", args[0]))
		return 2
	}

	return OutputList(c.UI, values)
}
