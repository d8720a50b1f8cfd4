package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/systemgarden/habitat/pkg/holstore"
	"github.com/systemgarden/habitat/pkg/table"
	"github.com/systemgarden/habitat/pkg/tablestore"
)

var tabCmd = &cobra.Command{
	Use:   "tab",
	Short: "Operate tablestore rings",
}

var tabCreateCmd = &cobra.Command{
	Use:   "create FILE NAME",
	Short: "Create a tablestore ring",
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

		ts, err := tablestore.Create(h, args[1], description, password, nslots)
		if err != nil {
			return fmt.Errorf("create tab %s: %w", args[1], err)
		}
		defer ts.Close()

		fmt.Printf("✓ tab created: %s\n", args[1])
		return nil
	},
}

var tabPutCmd = &cobra.Command{
	Use:   "put FILE NAME TEXT",
	Short: "Put a tab-separated text blob as a row",
	Long: `TEXT is the tab_put_text wire format: a column-names line, an
info line, and one or more tab-separated data lines, newline delimited.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, _ := cmd.Flags().GetString("password")

		h, err := holstore.Open(args[0])
		if err != nil {
			return err
		}
		defer h.Close()

		ts, err := tablestore.Open(h, args[1], password)
		if err != nil {
			return fmt.Errorf("open tab %s: %w", args[1], err)
		}
		defer ts.Close()

		text := strings.ReplaceAll(args[2], "\\n", "\n")
		seq, err := ts.PutText(text)
		if err != nil {
			return fmt.Errorf("put: %w", err)
		}
		fmt.Printf("seq: %d\n", seq)
		return nil
	},
}

var tabGetCmd = &cobra.Command{
	Use:   "get FILE NAME [SEQ]",
	Short: "Print the oldest row, or every row of the span containing SEQ",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, _ := cmd.Flags().GetString("password")

		h, err := holstore.Open(args[0])
		if err != nil {
			return err
		}
		defer h.Close()

		ts, err := tablestore.Open(h, args[1], password)
		if err != nil {
			return fmt.Errorf("open tab %s: %w", args[1], err)
		}
		defer ts.Close()

		var tbl *table.Table
		if len(args) == 3 {
			seq, perr := parseSeq(args[2])
			if perr != nil {
				return perr
			}
			tbl, err = ts.GetSpanBySeq(seq)
		} else {
			tbl, _, _, err = ts.Get()
		}
		if err != nil {
			return fmt.Errorf("get: %w", err)
		}
		fmt.Println(tbl.Header())
		fmt.Println(tbl.Body())
		return nil
	},
}

var tabHeaderCmd = &cobra.Command{
	Use:   "header FILE NAME",
	Short: "Print the latest span's column header",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, _ := cmd.Flags().GetString("password")

		h, err := holstore.Open(args[0])
		if err != nil {
			return err
		}
		defer h.Close()

		ts, err := tablestore.Open(h, args[1], password)
		if err != nil {
			return fmt.Errorf("open tab %s: %w", args[1], err)
		}
		defer ts.Close()

		cols, err := ts.GetHeaderLatest()
		if err != nil {
			return fmt.Errorf("header: %w", err)
		}
		fmt.Println(strings.Join(cols, "\t"))
		return nil
	},
}

func init() {
	tabCreateCmd.Flags().String("description", "", "Tab description")
	tabCreateCmd.Flags().String("password", "", "Tab password")
	tabCreateCmd.Flags().Int64("nslots", 0, "Slot capacity (0 = unbounded)")

	for _, cmd := range []*cobra.Command{tabPutCmd, tabGetCmd, tabHeaderCmd} {
		cmd.Flags().String("password", "", "Tab password")
	}

	tabCmd.AddCommand(tabCreateCmd)
	tabCmd.AddCommand(tabPutCmd)
	tabCmd.AddCommand(tabGetCmd)
	tabCmd.AddCommand(tabHeaderCmd)
}
