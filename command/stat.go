// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package command

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/cli"
	"github.com/openbao/mdbkv/physical/mdb"
	"github.com/posener/complete"
)

var (
	_ cli.Command             = (*StatCommand)(nil)
	_ cli.CommandAutocomplete = (*StatCommand)(nil)
)

type StatCommand struct {
	*BaseCommand
}

func (c *StatCommand) Synopsis() string {
	return "Show environment and database statistics"
}

func (c *StatCommand) Help() string {
	helpText := `
Usage: mdbkv stat [options]

  Prints information about the environment and about the database selected
  with -db.

      $ mdbkv stat -path=data.db -db=sessions

` + c.Flags().Help()

	return strings.TrimSpace(helpText)
}

func (c *StatCommand) Flags() *FlagSets {
	return c.flagSet(FlagSetDatabase)
}

func (c *StatCommand) AutocompleteArgs() complete.Predictor {
	return complete.PredictNothing
}

func (c *StatCommand) AutocompleteFlags() complete.Flags {
	return c.Flags().Completions()
}

func (c *StatCommand) Run(args []string) int {
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

	info, err := env.Info()
	if err != nil {
		c.UI.Error(fmt.Sprintf("Error reading environment info: %s", err))
		return 2
	}

	var st *mdb.Stat
	err = env.View(func(txn *mdb.Txn) error {
		dbi, err := c.openDB(txn)
		if err != nil {
			return err
		}
		st, err = txn.Stat(dbi)
		return err
	})
	if err != nil {
		c.UI.Error(fmt.Sprintf("Error reading database stats: %s", err))
		return 2
	}

	name := c.flagDB
	if name == "" {
		name = "(default)"
	}

	rows := []string{
		row("Path", env.Path()),
		row("Map Size", humanize.IBytes(uint64(info.MapSize))),
		row("File Size", humanize.IBytes(uint64(info.Size))),
		row("Page Size", humanize.IBytes(uint64(info.PageSize))),
		row("Last Txn ID", strconv.Itoa(info.LastTxnID)),
		row("Max Readers", strconv.Itoa(info.MaxReaders)),
		row("Max Databases", strconv.Itoa(info.MaxDBs)),
		row("Database", name),
		row("Depth", strconv.Itoa(st.Depth)),
		row("Branch Pages", strconv.Itoa(st.BranchPages)),
		row("Leaf Pages", strconv.Itoa(st.LeafPages)),
		row("Overflow Pages", strconv.Itoa(st.OverflowPages)),
		row("Entries", humanize.Comma(int64(st.Entries))),
	}
	return OutputTable(c.UI, []string{"Key", "Value"}, rows)
}
