// ingest-service pulls opportunity listings from the Unstop public search
// API, deduplicates them against the feed store and upserts the merged
// records.
//
//	ingest-service serve              cron loop + admin API
//	ingest-service run [--category]   one run, then exit
//	ingest-service migrate            create tables and indexes
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "[ingest-service] %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "ingest-service",
		Short:         "Ingest and deduplicate opportunity listings",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newRunCmd(), newMigrateCmd())
	return root
}
