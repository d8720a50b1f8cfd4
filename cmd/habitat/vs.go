package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/systemgarden/habitat/pkg/holstore"
	"github.com/systemgarden/habitat/pkg/versionstore"
)

var vsCmd = &cobra.Command{
	Use:   "vs",
	Short: "Operate versionstore rings",
}

var vsNewCmd = &cobra.Command{
	Use:   "new FILE NAME",
	Short: "Create a versionstore ring",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		description, _ := cmd.Flags().GetString("description")
		password, _ := cmd.Flags().GetString("password")

		h, err := holstore.Create(args[0])
		if err != nil {
			return err
		}
		defer h.Close()

		vs, err := versionstore.Create(h, args[1], description, password)
		if err != nil {
			return fmt.Errorf("create vs %s: %w", args[1], err)
		}
		defer vs.Close()

		fmt.Printf("✓ vs created: %s\n", args[1])
		return nil
	},
}

var vsPutCmd = &cobra.Command{
	Use:   "put FILE NAME DATA",
	Short: "Store a new version",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, _ := cmd.Flags().GetString("password")
		author, _ := cmd.Flags().GetString("author")
		comment, _ := cmd.Flags().GetString("comment")

		h, err := holstore.Open(args[0])
		if err != nil {
			return err
		}
		defer h.Close()

		vs, err := versionstore.Open(h, args[1], password)
		if err != nil {
			return fmt.Errorf("open vs %s: %w", args[1], err)
		}
		defer vs.Close()

		v, err := vs.New([]byte(args[2]), author, comment)
		if err != nil {
			return fmt.Errorf("new: %w", err)
		}
		fmt.Printf("version: %d\n", v)
		return nil
	},
}

var vsGetCmd = &cobra.Command{
	Use:   "get FILE NAME [VERSION]",
	Short: "Print a version's data, or the latest",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, _ := cmd.Flags().GetString("password")

		h, err := holstore.Open(args[0])
		if err != nil {
			return err
		}
		defer h.Close()

		vs, err := versionstore.Open(h, args[1], password)
		if err != nil {
			return fmt.Errorf("open vs %s: %w", args[1], err)
		}
		defer vs.Close()

		var ver versionstore.Version
		if len(args) == 3 {
			n, perr := parseSeq(args[2])
			if perr != nil {
				return perr
			}
			ver, err = vs.GetVersion(n)
		} else {
			ver, err = vs.GetLatest()
		}
		if err != nil {
			return fmt.Errorf("get: %w", err)
		}
		fmt.Printf("version:  %d\n", ver.Number)
		fmt.Printf("author:   %s\n", ver.Author)
		fmt.Printf("comment:  %s\n", ver.Comment)
		fmt.Printf("data:     %s\n", ver.Data)
		return nil
	},
}

var vsEditCmd = &cobra.Command{
	Use:   "edit FILE NAME VERSION",
	Short: "Edit a version's author/comment metadata",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, _ := cmd.Flags().GetString("password")
		author, _ := cmd.Flags().GetString("author")
		comment, _ := cmd.Flags().GetString("comment")

		h, err := holstore.Open(args[0])
		if err != nil {
			return err
		}
		defer h.Close()

		vs, err := versionstore.Open(h, args[1], password)
		if err != nil {
			return fmt.Errorf("open vs %s: %w", args[1], err)
		}
		defer vs.Close()

		v, err := parseSeq(args[2])
		if err != nil {
			return err
		}

		if err := vs.Edit(v, author, comment); err != nil {
			return fmt.Errorf("edit: %w", err)
		}
		fmt.Printf("✓ version %d updated\n", v)
		return nil
	},
}

var vsLsCmd = &cobra.Command{
	Use:   "ls FILE",
	Short: "List versionstore ring names",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := holstore.Open(args[0])
		if err != nil {
			return err
		}
		defer h.Close()

		names, err := versionstore.LsVers(h)
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
	vsNewCmd.Flags().String("description", "", "Versionstore description")
	vsNewCmd.Flags().String("password", "", "Versionstore password")

	for _, cmd := range []*cobra.Command{vsPutCmd, vsEditCmd} {
		cmd.Flags().String("password", "", "Versionstore password")
		cmd.Flags().String("author", "", "Author recorded with this version")
		cmd.Flags().String("comment", "", "Comment recorded with this version")
	}
	vsGetCmd.Flags().String("password", "", "Versionstore password")

	vsCmd.AddCommand(vsNewCmd)
	vsCmd.AddCommand(vsPutCmd)
	vsCmd.AddCommand(vsGetCmd)
	vsCmd.AddCommand(vsEditCmd)
	vsCmd.AddCommand(vsLsCmd)
}
