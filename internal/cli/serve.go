package cli

import (
	"github.com/spf13/cobra"
)

var quietBanner bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ingestion, aggregation and viewer API pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := getApp()
		if !quietBanner {
			a.Config.Print()
		}
		return a.Serve(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().BoolVar(&quietBanner, "quiet", false, "Skip the configuration banner")
}
