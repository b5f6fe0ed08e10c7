// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package command

import (
	"fmt"
	"io"
	"strings"

	"github.com/hashicorp/cli"
	"github.com/openbao/mdbkv/physical/mdb"
	"github.com/posener/complete"
)

var (
	_ cli.Command             = (*PutCommand)(nil)
	_ cli.CommandAutocomplete = (*PutCommand)(nil)
)

type PutCommand struct {
	*BaseCommand

	flagNoOverwrite bool
	flagNoDupData   bool
	flagAppend      bool
	flagDupSort     bool
}

func (c *PutCommand) Synopsis() string {
	return "Store a value under a key"
}

func (c *PutCommand) Help() string {
	helpText := `
Usage: mdbkv put [options] KEY VALUE

  Stores VALUE under KEY, creating the database selected with -db if it does
  not exist. If VALUE is "-" it is read from stdin.

      $ mdbkv put -path=data.db greeting hello

      $ echo -n hello | mdbkv put -path=data.db greeting -

  Create a dup-sort database holding several values per key:

      $ mdbkv put -path=data.db -db=tags -dupsort post/1 go

` + c.Flags().Help()

	return strings.TrimSpace(helpText)
}

func (c *PutCommand) Flags() *FlagSets {
	set := c.flagSet(FlagSetDatabase)

	f := set.NewFlagSet("Command Options")

	f.BoolVar(&BoolVar{
		Name:   "no-overwrite",
		Target: &c.flagNoOverwrite,
		Usage:  "Fail if the key already exists.",
	})

	f.BoolVar(&BoolVar{
		Name:   "no-dup-data",
		Target: &c.flagNoDupData,
		Usage:  "Fail if the key/value pair already exists in a dup-sort database.",
	})

	f.BoolVar(&BoolVar{
		Name:   "append",
		Target: &c.flagAppend,
		Usage:  "Fail unless the key sorts after every existing key.",
	})

	f.BoolVar(&BoolVar{
		Name:   "dupsort",
		Target: &c.flagDupSort,
		Usage: "Open the database as dup-sort, creating it that way if needed. " +
			"Opening an existing plain database this way fails unless it is empty.",
	})

	return set
}

func (c *PutCommand) AutocompleteArgs() complete.Predictor {
	return complete.PredictAnything
}

func (c *PutCommand) AutocompleteFlags() complete.Flags {
	return c.Flags().Completions()
}

func (c *PutCommand) Run(args []string) int {
	f := c.Flags()

	if err := f.Parse(args); err != nil {
		c.UI.Error(err.Error())
		return 1
	}

	args = f.Args()
	if !c.checkArgs(args, 2, 2) {
		return 1
	}

	key := []byte(args[0])
	value := []byte(args[1])
	if args[1] == "-" {
		var err error
		value, err = io.ReadAll(c.input())
		if err != nil {
			c.UI.Error(fmt.Sprintf("Failed to read stdin: %s", err))
			return 1
		}
	}

	dbiOpts := []mdb.DbiOption{mdb.DbiCreate}
	if c.flagDupSort {
		dbiOpts = append(dbiOpts, mdb.DbiDupSort)
	}

	var putOpts []mdb.PutOption
	if c.flagNoOverwrite {
		putOpts = append(putOpts, mdb.PutNoOverwrite)
	}
	if c.flagNoDupData {
		putOpts = append(putOpts, mdb.PutNoDupData)
	}
	if c.flagAppend {
		putOpts = append(putOpts, mdb.PutAppend)
	}

	env, err := c.openEnv(false)
	if err != nil {
		c.UI.Error(err.Error())
		return 2
	}
	defer c.closeEnv(env)

	err = env.Update(func(txn *mdb.Txn) error {
		dbi, err := c.openDB(txn, dbiOpts...)
		if err != nil {
			return err
		}
		return txn.Put(dbi, key, value, putOpts...)
	})
	switch {
	case mdb.IsErrno(err, mdb.KeyExist):
		c.UI.Error(fmt.Sprintf("Error writing %s: key already exists", args[0]))
		return 2
	case err != nil:
		c.UI.Error(fmt.Sprintf("Error writing %s: %s", args[0], err))
		return 2
	}

	c.UI.Info(fmt.Sprintf("Success! Data written to: %s", args[0]))
	return 0
}
