// goprotos replays PROTOS-style SIP robustness test cases against a target.
package main

import (
	"os"

	"github.com/dantte-lp/goprotos/cmd/goprotos/commands"
)

func main() {
	os.Exit(commands.Execute())
}
