// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package command

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/hashicorp/cli"
	"github.com/openbao/mdbkv/physical/mdb"
	"github.com/posener/complete"
)

var (
	_ cli.Command             = (*ListCommand)(nil)
	_ cli.CommandAutocomplete = (*ListCommand)(nil)
)

type ListCommand struct {
	*BaseCommand

	flagPrefix string
	flagAfter  string
	flagLimit  int
	flagValues bool
}

func (c *ListCommand) Synopsis() string {
	return "List keys in a database"
}

func (c *ListCommand) Help() string {
	helpText := `
Usage: mdbkv list [options]

  Lists the keys of the database selected with -db in sorted order.

  List keys under the "users/" prefix:

      $ mdbkv list -path=data.db -prefix=users/

  Use the -after and -limit flags to page through a large database, and
  -values to print every key/value pair as a table:

      $ mdbkv list -path=data.db -after=users/bob -limit=50 -values

` + c.Flags().Help()

	return strings.TrimSpace(helpText)
}

func (c *ListCommand) Flags() *FlagSets {
	set := c.flagSet(FlagSetDatabase)

	f := set.NewFlagSet("Command Options")

	f.StringVar(&StringVar{
		Name:   "prefix",
		Target: &c.flagPrefix,
		Usage:  "Only list keys starting with this prefix.",
	})

	f.StringVar(&StringVar{
		Name:    "after",
		Target:  &c.flagAfter,
		Default: "",
		Usage: "Last seen key; the next key alphabetically will be the first " +
			"returned.",
	})

	f.IntVar(&IntVar{
		Name:    "limit",
		Target:  &c.flagLimit,
		Default: -1,
		Usage:   "Limits the number of entries listed.",
	})

	f.BoolVar(&BoolVar{
		Name:   "values",
		Target: &c.flagValues,
		Usage:  "Print values next to keys. Every value of a dup-sort key gets its own row.",
	})

	return set
}

func (c *ListCommand) AutocompleteArgs() complete.Predictor {
	return complete.PredictNothing
}

func (c *ListCommand) AutocompleteFlags() complete.Flags {
	return c.Flags().Completions()
}

func (c *ListCommand) Run(args []string) int {
	f := c.Flags()

	if err := f.Parse(args); err != nil {
		c.UI.Error(err.Error())
		return 1
	}

	if !c.checkArgs(f.Args(), 0, 0) {
		return 1
	}

	env, err := c.openEnv(true)
	if err != nil {
		c.UI.Error(err.Error())
		return 2
	}
	defer c.closeEnv(env)

	var rows []string
	err = env.View(func(txn *mdb.Txn) error {
		dbi, err := c.openDB(txn)
		if err != nil {
			return err
		}
		rows, err = c.scan(txn, dbi)
		return err
	})
	if err != nil {
		c.UI.Error(fmt.Sprintf("Error listing: %s", err))
		return 2
	}

	if len(rows) == 0 {
		c.UI.Error("No entries found")
		return 2
	}

	if c.flagValues {
		return OutputTable(c.UI, []string{"Key", "Value"}, rows)
	}
	return OutputList(c.UI, rows)
}

func (c *ListCommand) scan(txn *mdb.Txn, dbi mdb.DBI) ([]string, error) {
	cur, err := txn.OpenCursor(dbi)
	if err != nil {
		return nil, err
	}
	defer cur.Close()

	prefix := []byte(c.flagPrefix)
	start := prefix
	if c.flagAfter != "" && c.flagAfter > c.flagPrefix {
		start = []byte(c.flagAfter)
	}

	step := cur.NextNoDup
	if c.flagValues {
		step = cur.Next
	}

	var rows []string
	res, err := cur.SetRange(start)
	for ; err == nil && res.Found(); res, err = step() {
		if !bytes.HasPrefix(res.Key, prefix) {
			break
		}
		if c.flagAfter != "" && string(res.Key) <= c.flagAfter {
			continue
		}
		if c.flagLimit >= 0 && len(rows) >= c.flagLimit {
			break
		}

		if c.flagValues {
			rows = append(rows, row(string(res.Key), string(res.Value)))
		} else {
			rows = append(rows, string(res.Key))
		}
	}
	if err != nil {
		return nil, err
	}
	return rows, nil
}
