// Command cartoonify runs the detection, stylization and compositing steps
// on local files and performs maintenance on the job store.
package main

import (
	"github.com/alecthomas/kong"
)

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("cartoonify"),
		kong.Description("Portrait cartoonify tools."),
		kong.UsageOnError(),
	)
	ctx.FatalIfErrorf(ctx.Run(&Global{Logger: newLogger(cli.Verbose), Out: ctx.Stdout}))
}
