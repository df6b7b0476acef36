package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leftmike/keel/sql"
)

func init() {
	keelCmd.AddCommand(
		&cobra.Command{
			Use:   "version",
			Short: "Print the version number of Keel",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Println(sql.Version())
			},
		})
}
