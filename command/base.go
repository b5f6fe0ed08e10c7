// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package command

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hashicorp/cli"
	log "github.com/hashicorp/go-hclog"
	"github.com/openbao/mdbkv/command/config"
	"github.com/openbao/mdbkv/helper/logging"
	"github.com/openbao/mdbkv/physical/mdb"
	"github.com/posener/complete"
)

const (
	// EnvPath is the environment variable for the -path flag.
	EnvPath = "MDBKV_PATH"

	// EnvLogLevel is the environment variable for the -log-level flag.
	EnvLogLevel = "MDBKV_LOG_LEVEL"
)

var errNoPath = errors.New("no environment path given; set -path, $" + EnvPath + " or \"path\" in the config file")

// BaseCommand holds the state shared by every command: the UI and the
// environment selection flags.
type BaseCommand struct {
	UI cli.Ui

	flags *FlagSets

	flagPath     string
	flagDB       string
	flagConfig   string
	flagLogLevel string

	// stdin is used by commands reading a value from "-"; nil means
	// os.Stdin.
	stdin io.Reader

	// logger overrides the logger built from -log-level, for tests.
	logger log.Logger
}

type FlagSetBit uint

const (
	FlagSetNone FlagSetBit = 1 << iota
	FlagSetEnv
	FlagSetDatabase
)

// flagSet creates the flags for this command. The result is cached on the
// command to save performance on future calls.
func (c *BaseCommand) flagSet(bit FlagSetBit) *FlagSets {
	if c.flags != nil {
		return c.flags
	}

	set := NewFlagSets()

	if bit&(FlagSetEnv|FlagSetDatabase) != 0 {
		f := set.NewFlagSet("Environment Options")

		f.StringVar(&StringVar{
			Name:       "path",
			Target:     &c.flagPath,
			EnvVar:     EnvPath,
			Completion: complete.PredictFiles("*"),
			Usage:      "Path to the environment data file.",
		})

		f.StringVar(&StringVar{
			Name:       "config",
			Target:     &c.flagConfig,
			Completion: complete.PredictFiles("*"),
			Usage: "Path to the CLI configuration file. The default is " +
				config.DefaultConfigPath + ", or the value of $" + config.ConfigPathEnv + ".",
		})

		f.StringVar(&StringVar{
			Name:       "log-level",
			Target:     &c.flagLogLevel,
			EnvVar:     EnvLogLevel,
			Completion: complete.PredictSet("trace", "debug", "info", "warn", "error"),
			Usage:      "Log verbosity of the storage engine. The default is warn.",
		})

		if bit&FlagSetDatabase != 0 {
			f.StringVar(&StringVar{
				Name:   "db",
				Target: &c.flagDB,
				Usage:  "Name of the database to use. The default database is used when empty.",
			})
		}
	}

	c.flags = set
	return set
}

// openEnv opens the environment selected by the flags and the CLI config
// file. Flags take precedence over the file.
func (c *BaseCommand) openEnv(readOnly bool) (*mdb.Env, error) {
	cfg, err := config.LoadConfig(c.flagConfig)
	if err != nil {
		return nil, err
	}

	conf := cfg.EnvConf()
	if c.flagPath != "" {
		conf["path"] = c.flagPath
	}
	if conf["path"] == "" {
		return nil, errNoPath
	}
	if readOnly {
		conf["read_only"] = "true"
	}

	logger := c.logger
	if logger == nil {
		level := cfg.LogLevel
		if c.flagLogLevel != "" {
			level = c.flagLogLevel
		}
		if level == "" {
			level = "warn"
		}
		lvl, err := logging.ParseLogLevel(level)
		if err != nil {
			return nil, err
		}
		logger = logging.NewLogger(lvl)
	}

	env, err := mdb.NewEnv(conf, logger.Named("mdb"))
	if err != nil {
		return nil, fmt.Errorf("error opening environment at %q: %w", conf["path"], err)
	}
	return env, nil
}

// closeEnv closes env, reporting a failure on the UI.
func (c *BaseCommand) closeEnv(env *mdb.Env) {
	if err := env.Close(); err != nil {
		c.UI.Error(fmt.Sprintf("Error closing environment: %s", err))
	}
}

// openDB opens the database selected with -db inside txn.
func (c *BaseCommand) openDB(txn *mdb.Txn, opts ...mdb.DbiOption) (mdb.DBI, error) {
	dbi, err := txn.OpenDatabase(c.flagDB, opts...)
	if err != nil {
		if mdb.IsNotFound(err) {
			return dbi, fmt.Errorf("database %q does not exist", c.flagDB)
		}
		return dbi, err
	}
	return dbi, nil
}

func (c *BaseCommand) input() io.Reader {
	if c.stdin != nil {
		return c.stdin
	}
	return os.Stdin
}

// checkArgs validates the number of positional arguments.
func (c *BaseCommand) checkArgs(args []string, minArgs, maxArgs int) bool {
	switch {
	case len(args) < minArgs:
		c.UI.Error(fmt.Sprintf("Not enough arguments (expected %d, got %d)", minArgs, len(args)))
		return false
	case len(args) > maxArgs:
		c.UI.Error(fmt.Sprintf("Too many arguments (expected %d, got %d)", maxArgs, len(args)))
		return false
	}
	return true
}
