package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/leftmike/keel/engine"
)

var (
	startCmd = &cobra.Command{
		Use:   "start",
		Short: "Start the Keel engine with an interactive shell",
		RunE:  startRun,
	}

	dataDir  = "keeldata"
	poolSize = 256
)

func init() {
	fs := startCmd.Flags()

	fs.StringVar(&dataDir, "data", dataDir, "`directory` containing the database")
	cfgVars["data"] = fs.Lookup("data")

	fs.IntVar(&poolSize, "pool-size", poolSize, "buffer pool size in pages")
	cfgVars["pool-size"] = fs.Lookup("pool-size")

	keelCmd.AddCommand(startCmd)
}

func startRun(cmd *cobra.Command, args []string) error {
	e, err := engine.Start(dataDir, poolSize)
	if err != nil {
		return fmt.Errorf("keel: %s", err)
	}
	defer e.Close()

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	for {
		s, err := ln.Prompt("keel> ")
		if err == io.EOF || err == liner.ErrPromptAborted {
			break
		}
		if err != nil {
			return fmt.Errorf("keel: %s", err)
		}
		ln.AppendHistory(s)

		done, err := dispatch(e, s, os.Stdout)
		if err != nil {
			fmt.Println(err)
		}
		if done {
			break
		}
	}

	return nil
}
