// Command simulate plays a YAML scenario of scripted players through
// several reward weeks and prints the leaderboards, payouts and buckets.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/afurourrego/dungeonflip/internal/simulate"
)

func main() {
	var (
		scenarioPath = flag.String("scenario", "scenario.yaml", "scenario file")
		weeks        = flag.Int("weeks", 0, "override the scenario's week count")
		asJSON       = flag.Bool("json", false, "print the report as JSON")
		verbose      = flag.Bool("v", false, "print component logs to stderr")
	)
	flag.Parse()

	sc, err := simulate.LoadScenario(*scenarioPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "scenario:", err)
		os.Exit(2)
	}
	if *weeks > 0 {
		sc.Weeks = *weeks
	}

	var logOut io.Writer
	if *verbose {
		logOut = os.Stderr
	}
	rep, err := simulate.Run(context.Background(), sc, logOut)
	if err != nil {
		fmt.Fprintln(os.Stderr, "simulate:", err)
		os.Exit(1)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rep); err != nil {
			fmt.Fprintln(os.Stderr, "encode:", err)
			os.Exit(1)
		}
		return
	}
	if err := rep.WriteText(os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "write:", err)
		os.Exit(1)
	}
	if top := rep.TopEarners(); len(top) > 0 {
		fmt.Printf("\ntop earner: %s (won %s)\n", top[0].Name, rep.Units.Format(top[0].Won))
	}
}
