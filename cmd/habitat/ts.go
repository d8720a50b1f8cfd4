package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/systemgarden/habitat/pkg/holstore"
	"github.com/systemgarden/habitat/pkg/timestore"
)

var tsCmd = &cobra.Command{
	Use:   "ts",
	Short: "Operate timestore rings",
}

var tsCreateCmd = &cobra.Command{
	Use:   "create FILE NAME",
	Short: "Create a timestore ring",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		description, _ := cmd.Flags().GetString("description")
		password, _ := cmd.Flags().GetString("password")
		nslots, _ := cmd.Flags().GetInt64("nslots")

		h, err := holstore.Create(args[0])
		if err != nil {
			return err
		}
		defer h.Close()

		r, err := timestore.Create(h, args[1], description, password, nslots)
		if err != nil {
			return fmt.Errorf("create ring %s: %w", args[1], err)
		}
		defer r.Close()

		fmt.Printf("✓ ring created: %s\n", args[1])
		return nil
	},
}

var tsPutCmd = &cobra.Command{
	Use:   "put FILE NAME PAYLOAD",
	Short: "Append a record to a ring",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, _ := cmd.Flags().GetString("password")

		h, err := holstore.Open(args[0])
		if err != nil {
			return err
		}
		defer h.Close()

		r, err := timestore.Open(h, args[1], password)
		if err != nil {
			return fmt.Errorf("open ring %s: %w", args[1], err)
		}
		defer r.Close()

		seq, err := r.Put([]byte(args[2]))
		if err != nil {
			return fmt.Errorf("put: %w", err)
		}
		fmt.Printf("seq: %d\n", seq)
		return nil
	},
}

var tsGetCmd = &cobra.Command{
	Use:   "get FILE NAME SEQ",
	Short: "Read a record by sequence number",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, _ := cmd.Flags().GetString("password")

		h, err := holstore.Open(args[0])
		if err != nil {
			return err
		}
		defer h.Close()

		r, err := timestore.Open(h, args[1], password)
		if err != nil {
			return fmt.Errorf("open ring %s: %w", args[1], err)
		}
		defer r.Close()

		seq, err := parseSeq(args[2])
		if err != nil {
			return err
		}

		payload, at, err := r.Get(seq)
		if err != nil {
			return fmt.Errorf("get: %w", err)
		}
		fmt.Printf("%s\t%s\n", at.Format("2006-01-02 15:04:05"), payload)
		return nil
	},
}

var tsTellCmd = &cobra.Command{
	Use:   "tell FILE NAME",
	Short: "Report a ring's occupancy",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, _ := cmd.Flags().GetString("password")

		h, err := holstore.Open(args[0])
		if err != nil {
			return err
		}
		defer h.Close()

		r, err := timestore.Open(h, args[1], password)
		if err != nil {
			return fmt.Errorf("open ring %s: %w", args[1], err)
		}
		defer r.Close()

		info, err := r.Tell()
		if err != nil {
			return fmt.Errorf("tell: %w", err)
		}
		fmt.Printf("slots:       %d\n", info.NSlots)
		fmt.Printf("available:   %d\n", info.NAvail)
		fmt.Printf("read cursor: %d\n", info.NRead)
		fmt.Printf("description: %s\n", info.Description)
		return nil
	},
}

var tsLsCmd = &cobra.Command{
	Use:   "ls FILE [PATTERN]",
	Short: "List ring names",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		pattern := ""
		if len(args) == 2 {
			pattern = args[1]
		}

		h, err := holstore.Open(args[0])
		if err != nil {
			return err
		}
		defer h.Close()

		names, err := timestore.LsRings(h, pattern)
		if err != nil {
			return fmt.Errorf("ls: %w", err)
		}
		for _, n := range names {
			fmt.Println(n)
		}
		return nil
	},
}

func init() {
	tsCreateCmd.Flags().String("description", "", "Ring description")
	tsCreateCmd.Flags().String("password", "", "Ring password")
	tsCreateCmd.Flags().Int64("nslots", 0, "Slot capacity (0 = unbounded)")

	for _, cmd := range []*cobra.Command{tsPutCmd, tsGetCmd, tsTellCmd} {
		cmd.Flags().String("password", "", "Ring password")
	}

	tsCmd.AddCommand(tsCreateCmd)
	tsCmd.AddCommand(tsPutCmd)
	tsCmd.AddCommand(tsGetCmd)
	tsCmd.AddCommand(tsTellCmd)
	tsCmd.AddCommand(tsLsCmd)
}
