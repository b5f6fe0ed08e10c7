// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package command

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/kr/text"
	wordwrap "github.com/mitchellh/go-wordwrap"
	"github.com/posener/complete"
)

// FlagSets is a group of flag sets sharing one parser. Each set is printed
// under its own heading in the command help.
type FlagSets struct {
	flagSets    []*FlagSet
	mainSet     *flag.FlagSet
	completions complete.Flags
}

// NewFlagSets creates a new flag sets.
func NewFlagSets() *FlagSets {
	mainSet := flag.NewFlagSet("", flag.ContinueOnError)

	// Errors and usage are controlled by the CLI.
	mainSet.Usage = func() {}
	mainSet.SetOutput(io.Discard)

	return &FlagSets{
		flagSets:    make([]*FlagSet, 0, 6),
		mainSet:     mainSet,
		completions: complete.Flags{},
	}
}

// NewFlagSet creates a new flag set from the given flag sets.
func (f *FlagSets) NewFlagSet(name string) *FlagSet {
	flagSet := &FlagSet{
		name:    name,
		flagSet: flag.NewFlagSet(name, flag.ContinueOnError),
		mainSet: f.mainSet,
		sets:    f,
	}
	f.flagSets = append(f.flagSets, flagSet)
	return flagSet
}

// Completions returns the completions for this flag set.
func (f *FlagSets) Completions() complete.Flags {
	return f.completions
}

// Parse parses the given flags, returning any errors.
func (f *FlagSets) Parse(args []string) error {
	return f.mainSet.Parse(args)
}

// Args returns the remaining args after parsing.
func (f *FlagSets) Args() []string {
	return f.mainSet.Args()
}

// Visit visits the flags that were set, in lexicographical order.
func (f *FlagSets) Visit(fn func(*flag.Flag)) {
	f.mainSet.Visit(fn)
}

// Help builds custom help for this command, grouping by flag set.
func (f *FlagSets) Help() string {
	var out bytes.Buffer

	for _, set := range f.flagSets {
		fmt.Fprintf(&out, "%s:\n\n", set.name)
		set.flagSet.VisitAll(func(fl *flag.Flag) {
			printFlagDetail(&out, fl)
		})
	}

	return strings.TrimRight(out.String(), "\n")
}

func printFlagDetail(w io.Writer, fl *flag.Flag) {
	example := ""
	if t, ok := fl.Value.(flagExample); ok {
		example = t.Example()
	}

	if example != "" {
		fmt.Fprintf(w, "  -%s=<%s>\n", fl.Name, example)
	} else {
		fmt.Fprintf(w, "  -%s\n", fl.Name)
	}

	usage := wordwrap.WrapString(fl.Usage, 74)
	fmt.Fprintf(w, "%s\n\n", text.Indent(usage, "      "))
}

// FlagSet is one heading worth of flags.
type FlagSet struct {
	name    string
	flagSet *flag.FlagSet
	mainSet *flag.FlagSet
	sets    *FlagSets
}

func (f *FlagSet) Name() string {
	return f.name
}

func (f *FlagSet) add(name string, value flag.Value, usage string, predictor complete.Predictor) {
	f.mainSet.Var(value, name, usage)
	f.flagSet.Var(value, name, usage)
	if predictor == nil {
		predictor = complete.PredictAnything
	}
	f.sets.completions["-"+name] = predictor
}

type flagExample interface {
	Example() string
}

// lookupEnv returns the value of the environment variable backing a flag,
// if it has one.
func lookupEnv(name string) (string, bool) {
	if name == "" {
		return "", false
	}
	return os.LookupEnv(name)
}

// -- StringVar and stringValue
type StringVar struct {
	Name       string
	Default    string
	EnvVar     string
	Target     *string
	Completion complete.Predictor
	Usage      string
}

func (f *FlagSet) StringVar(i *StringVar) {
	initial := i.Default
	if v, ok := lookupEnv(i.EnvVar); ok {
		initial = v
	}

	usage := i.Usage
	if i.Default != "" {
		usage += fmt.Sprintf(" The default is %s.", i.Default)
	}
	if i.EnvVar != "" {
		usage += fmt.Sprintf(" This can also be specified via the %s environment variable.", i.EnvVar)
	}

	f.add(i.Name, newStringValue(initial, i.Target), usage, i.Completion)
}

type stringValue struct {
	target *string
}

func newStringValue(def string, target *string) *stringValue {
	*target = def
	return &stringValue{target: target}
}

func (s *stringValue) Set(val string) error {
	*s.target = val
	return nil
}

func (s *stringValue) Get() interface{} { return *s.target }
func (s *stringValue) String() string   { return *s.target }
func (s *stringValue) Example() string  { return "string" }

// -- BoolVar and boolValue
type BoolVar struct {
	Name       string
	Default    bool
	EnvVar     string
	Target     *bool
	Completion complete.Predictor
	Usage      string
}

func (f *FlagSet) BoolVar(i *BoolVar) {
	def := i.Default
	if v, ok := lookupEnv(i.EnvVar); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			def = b
		}
	}

	usage := i.Usage
	if i.Default {
		usage += " The default is true."
	}
	if i.EnvVar != "" {
		usage += fmt.Sprintf(" This can also be specified via the %s environment variable.", i.EnvVar)
	}

	completion := i.Completion
	if completion == nil {
		completion = complete.PredictNothing
	}
	f.add(i.Name, newBoolValue(def, i.Target), usage, completion)
}

type boolValue struct {
	target *bool
}

func newBoolValue(def bool, target *bool) *boolValue {
	*target = def
	return &boolValue{target: target}
}

func (b *boolValue) Set(s string) error {
	v, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}
	*b.target = v
	return nil
}

func (b *boolValue) Get() interface{} { return *b.target }
func (b *boolValue) String() string   { return strconv.FormatBool(*b.target) }
func (b *boolValue) Example() string  { return "" }
func (b *boolValue) IsBoolFlag() bool { return true }

// -- IntVar and intValue
type IntVar struct {
	Name       string
	Default    int
	EnvVar     string
	Target     *int
	Completion complete.Predictor
	Usage      string
}

func (f *FlagSet) IntVar(i *IntVar) {
	initial := i.Default
	if v, ok := lookupEnv(i.EnvVar); ok {
		if n, err := strconv.Atoi(v); err == nil {
			initial = n
		}
	}

	usage := i.Usage
	if i.Default != 0 {
		usage += fmt.Sprintf(" The default is %d.", i.Default)
	}
	if i.EnvVar != "" {
		usage += fmt.Sprintf(" This can also be specified via the %s environment variable.", i.EnvVar)
	}

	f.add(i.Name, newIntValue(initial, i.Target), usage, i.Completion)
}

type intValue struct {
	target *int
}

func newIntValue(def int, target *int) *intValue {
	*target = def
	return &intValue{target: target}
}

func (i *intValue) Set(s string) error {
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	*i.target = v
	return nil
}

func (i *intValue) Get() interface{} { return *i.target }
func (i *intValue) String() string   { return strconv.Itoa(*i.target) }
func (i *intValue) Example() string  { return "int" }
