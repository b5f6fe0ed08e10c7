// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/go-secure-stdlib/strutil"
	"github.com/hashicorp/hcl"
	"github.com/hashicorp/hcl/hcl/ast"
	hclParser "github.com/hashicorp/hcl/hcl/parser"
	jsonParser "github.com/hashicorp/hcl/json/parser"
	homedir "github.com/mitchellh/go-homedir"
)

const (
	// DefaultConfigPath is the default path to the configuration file
	DefaultConfigPath = "~/.mdbkv"

	// ConfigPathEnv is the environment variable that can be used to
	// override where the configuration file is.
	ConfigPathEnv = "MDBKV_CONFIG_PATH"
)

// DefaultConfig is the CLI configuration for mdbkv that can be specified via
// `$MDBKV_CONFIG_PATH=$HOME/.mdbkv` file which is HCL-formatted (therefore
// HCL or JSON). Command-line flags take precedence over every field.
type DefaultConfig struct {
	// Path is the environment data file used when -path is not given.
	Path string `hcl:"path"`

	// MapSize is the size limit of the environment, as a byte string such
	// as "1GiB".
	MapSize string `hcl:"map_size"`

	MaxDBs     int  `hcl:"max_dbs"`
	MaxReaders int  `hcl:"max_readers"`
	ReadOnly   bool `hcl:"read_only"`
	NoSync     bool `hcl:"no_sync"`

	// Timeout bounds how long opening the environment waits for the file
	// lock; bare numbers are seconds.
	Timeout string `hcl:"timeout"`

	LogLevel string `hcl:"log_level"`
}

var validKeys = []string{
	"path",
	"map_size",
	"max_dbs",
	"max_readers",
	"read_only",
	"no_sync",
	"timeout",
	"log_level",
}

// LoadConfig reads the configuration from the given path. If path is
// empty, then the default path will be used, or the environment variable
// if set. A missing file yields an empty configuration.
func LoadConfig(path string) (*DefaultConfig, error) {
	if path == "" {
		path = DefaultConfigPath
		if v := os.Getenv(ConfigPathEnv); v != "" {
			path = v
		}
	}

	// NOTE: requires HOME env var to be set
	path, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("error expanding config path %q: %w", path, err)
	}

	contents, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	conf, err := ParseConfig(string(contents))
	if err != nil {
		return nil, fmt.Errorf("error parsing config file at %q: %w", path, err)
	}

	return conf, nil
}

// ParseConfig parses the given configuration as a string.
func ParseConfig(contents string) (*DefaultConfig, error) {
	var (
		root *ast.File
		err  error
	)
	if strings.HasPrefix(strings.TrimSpace(contents), "{") {
		root, err = jsonParser.Parse([]byte(contents))
	} else {
		root, err = hclParser.Parse([]byte(contents))
	}
	if err != nil {
		return nil, err
	}

	// Top-level item should be the object list
	list, ok := root.Node.(*ast.ObjectList)
	if !ok {
		return nil, errors.New("failed to parse config; does not contain a root object")
	}

	if err := checkKeys(list); err != nil {
		return nil, err
	}

	var c DefaultConfig
	if err := hcl.DecodeObject(&c, list); err != nil {
		return nil, err
	}
	return &c, nil
}

func checkKeys(list *ast.ObjectList) error {
	var result *multierror.Error
	for _, item := range list.Items {
		key := item.Keys[0].Token.Value().(string)
		if !strutil.StrListContains(validKeys, key) {
			result = multierror.Append(result, fmt.Errorf("invalid key %q on line %d", key, item.Assign.Line))
		}
	}
	return result.ErrorOrNil()
}

// EnvConf converts the configuration into the option map accepted by
// mdb.NewEnv. Unset fields are left out so that the environment defaults
// apply.
func (c *DefaultConfig) EnvConf() map[string]string {
	conf := make(map[string]string)
	if c.Path != "" {
		conf["path"] = c.Path
	}
	if c.MapSize != "" {
		conf["map_size"] = c.MapSize
	}
	if c.MaxDBs > 0 {
		conf["max_dbs"] = strconv.Itoa(c.MaxDBs)
	}
	if c.MaxReaders > 0 {
		conf["max_readers"] = strconv.Itoa(c.MaxReaders)
	}
	if c.ReadOnly {
		conf["read_only"] = "true"
	}
	if c.NoSync {
		conf["no_sync"] = "true"
	}
	if c.Timeout != "" {
		conf["timeout"] = c.Timeout
	}
	return conf
}
