package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sweeney/rain-gauge/internal/store"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Invalidate the persisted record so the next run cold starts",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		b := newBuses()
		defer b.Close()
		dev, closeDev, err := openDevice(cfg.Storage, b)
		if err != nil {
			return err
		}
		defer closeDev()

		if err := store.New(dev).Reset(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "storage reset; totals will start from zero on the next run")
		return nil
	},
}
