package main

import (
	"os"

	"github.com/alecthomas/kong"

	"github.com/radieske/coinflip-bet-platform-poc/internal/wagerctl"
)

func main() {
	cli := wagerctl.CLI{Globals: wagerctl.Globals{Out: os.Stdout}}
	ctx := kong.Parse(&cli, wagerctl.Options()...)
	err := ctx.Run(&cli.Globals)
	ctx.FatalIfErrorf(err)
}
