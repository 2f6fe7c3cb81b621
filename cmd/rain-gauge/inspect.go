package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/sweeney/rain-gauge/internal/store"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Print the persisted checkpoint record",
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

		return inspect(cmd.OutOrStdout(), store.New(dev))
	},
}

func inspect(w io.Writer, st *store.Store) error {
	rec, err := st.Inspect()
	if err != nil && !errors.Is(err, store.ErrNotInitialized) {
		return err
	}
	fmt.Fprintf(w, "total: %.2f mm\n", rec.Total)
	fmt.Fprintf(w, "day:   %d\n", rec.Day)
	fmt.Fprintf(w, "magic: 0x%08X (valid: %v)\n", rec.Magic, rec.Valid())
	if errors.Is(err, store.ErrNotInitialized) {
		fmt.Fprintln(w, "storage is not initialized; the next run will cold start")
	}
	return nil
}
