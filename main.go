// Package main is the entry point for sdsrules, the rule-driven
// file-processing engine for an SDS waveform archive. It delegates
// immediately to the cli package, which defines the collect/manage/delete
// subcommands.
package main

import (
	"github.com/knmi/sdsrules/cli"
)

func main() {
	cli.Execute()
}
