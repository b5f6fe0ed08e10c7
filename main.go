// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main // import "github.com/openbao/mdbkv"

import (
	"os"

	"github.com/openbao/mdbkv/command"
)

func main() {
	os.Exit(command.Run(os.Args[1:]))
}
