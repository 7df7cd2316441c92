package main

import (
	"github.com/alecthomas/kong"
)

var cli CLI

func main() {
	ctx := kong.Parse(
		&cli,
		kong.UsageOnError(),
		kong.Name("tokenctl"),
		kong.Description("Inspects and maintains linked social account credentials"),
	)

	// See respective commands Run() methods
	err := ctx.Run(&cli.Globals)
	ctx.FatalIfErrorf(err)
}
