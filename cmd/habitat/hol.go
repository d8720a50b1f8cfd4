package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/systemgarden/habitat/pkg/holstore"
)

var holCmd = &cobra.Command{
	Use:   "hol",
	Short: "Inspect a container's superblock",
}

var holInfoCmd = &cobra.Command{
	Use:   "info FILE",
	Short: "Print superblock fields for FILE",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := holstore.Open(args[0])
		if err != nil {
			return fmt.Errorf("open %s: %w", args[0], err)
		}
		defer h.Close()

		size, err := h.Footprint()
		if err != nil {
			return fmt.Errorf("footprint: %w", err)
		}
		remain, err := h.Remain()
		if err != nil {
			return fmt.Errorf("remain: %w", err)
		}

		fmt.Printf("File:     %s\n", args[0])
		fmt.Printf("Version:  %d\n", h.Version())
		fmt.Printf("Created:  %s\n", h.Created().Format("2006-01-02 15:04:05"))
		fmt.Printf("Platform: %s\n", h.Platform())
		fmt.Printf("Host:     %s\n", h.Host())
		fmt.Printf("OS:       %s\n", h.OS())
		fmt.Printf("Size:     %d bytes\n", size)
		fmt.Printf("Remain:   %d bytes\n", remain)
		return nil
	},
}

func init() {
	holCmd.AddCommand(holInfoCmd)
}
