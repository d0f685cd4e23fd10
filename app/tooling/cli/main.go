// This program provides command line access to a running node.
package main

import (
	"github.com/solochain/solochain/app/tooling/cli/cmd"
)

func main() {
	cmd.Execute()
}
