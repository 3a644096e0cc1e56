package main

import (
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Reseed the wiki from <configs>/seed.yaml and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		logger, err := newLogger()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		store, _, err := openWikiStore(dataDir, nil, logger)
		if err != nil {
			return err
		}
		defer store.Close()
		return seedFromFile(cmd.Context(), store, logger)
	},
}
