package main

import (
	"readtx/cmd/readtx-cli/commands"
	"readtx/lib/osutil"
)

func main() {
	commands.ExecuteContext(osutil.SignalContext())
}
