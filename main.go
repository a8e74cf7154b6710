// Command sheetflow runs the task lifecycle engine: the HTTP edge, the
// messaging worker, the formula-to-SQL compiler, and the autoscaler,
// selected by subcommand.
package main

import (
	"log"

	"github.com/sheetflow/sheetflow/cli"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
