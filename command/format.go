// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package command

import (
	"strings"

	"github.com/hashicorp/cli"
	"github.com/ryanuber/columnize"
)

// hopeDelim is the column delimiter used when building tables; it is
// unlikely to appear in keys or values.
const hopeDelim = "\x1f"

// row joins the columns of one table line.
func row(cols ...string) string {
	return strings.Join(cols, hopeDelim)
}

// tableOutput formats the list as a table whose first entry is the header,
// underlined.
func tableOutput(list []string, c *columnize.Config) string {
	if len(list) == 0 {
		return ""
	}

	headers := strings.Split(list[0], hopeDelim)
	underlines := make([]string, 0, len(headers))
	for _, h := range headers {
		underlines = append(underlines, strings.Repeat("-", len(strings.TrimSpace(h))))
	}

	out := make([]string, 0, len(list)+1)
	out = append(out, list[0], row(underlines...))
	out = append(out, list[1:]...)
	return columnOutput(out, c)
}

// columnOutput prints the list of items as a table with no headers.
func columnOutput(list []string, c *columnize.Config) string {
	if len(list) == 0 {
		return ""
	}

	if c == nil {
		c = &columnize.Config{}
	}
	if c.Glue == "" {
		c.Glue = "    "
	}
	if c.Empty == "" {
		c.Empty = "n/a"
	}
	c.Delim = hopeDelim

	return columnize.Format(list, c)
}

// OutputList prints one item per line.
func OutputList(ui cli.Ui, items []string) int {
	for _, item := range items {
		ui.Output(item)
	}
	return 0
}

// OutputTable prints rows built with row under the given headers.
func OutputTable(ui cli.Ui, headers []string, rows []string) int {
	list := append([]string{row(headers...)}, rows...)
	ui.Output(tableOutput(list, nil))
	return 0
}
