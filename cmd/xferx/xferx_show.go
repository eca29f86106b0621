package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

// version is stamped at link time; unset in a source build.
var version = "dev"

var showCmd = &cobra.Command{
	Use:                   "show {types|volumes|filesystems|version} [VOL:]",
	Short:                 "Display session state: mounted volumes, logical names, recognized types, or the build version",
	Args:                  cobra.RangeArgs(1, 2),
	DisableFlagsInUseLine: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		switch args[0] {
		case "version":
			fmt.Println(version)
		case "volumes", "filesystems":
			ids := registry.List()
			sort.Strings(ids)
			for _, id := range ids {
				fs, _ := registry.Get(id)
				fmt.Printf("%s: %d/%d blocks free\n", id, fs.FreeBlocks(), fs.TotalBlocks())
			}
			for logical, device := range registry.Aliases() {
				fmt.Printf("%s: = %s:\n", logical, device)
			}
		case "types":
			if len(args) != 2 {
				fail("SHOW", fmt.Errorf("SHOW TYPES requires a volume"))
				return nil
			}
			fs, _, err := resolveRef(args[1])
			if err != nil {
				fail("SHOW", err)
				return nil
			}
			for _, t := range fs.GetTypes() {
				fmt.Println(t)
			}
		default:
			fail("SHOW", fmt.Errorf("unrecognized SHOW topic %q", args[0]))
		}
		return nil
	},
}

var assignCmd = &cobra.Command{
	Use:                   "assign DEV: LOGICAL:",
	Short:                 "Create a logical name for a mounted volume",
	Args:                  cobra.ExactArgs(2),
	DisableFlagsInUseLine: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := registry.Assign(args[1], args[0]); err != nil {
			fail("ASSIGN", err)
		}
		return nil
	},
}

var deassignCmd = &cobra.Command{
	Use:                   "deassign LOGICAL:",
	Short:                 "Remove a logical name",
	Args:                  cobra.ExactArgs(1),
	DisableFlagsInUseLine: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		registry.Deassign(args[0])
		return nil
	},
}
