package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:                   "delete VOL:PATTERN",
	Short:                 "Delete every entry matching a glob pattern",
	Args:                  cobra.ExactArgs(1),
	DisableFlagsInUseLine: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		fs, pattern, err := resolveRef(args[0])
		if err != nil {
			fail("DELETE", err)
			return nil
		}
		entries, err := fs.FilterEntriesList(pattern, false, false, true)
		if err != nil {
			fail("DELETE", err)
			return nil
		}
		if len(entries) == 0 {
			fail("DELETE", fmt.Errorf("no such file(s) %s", pattern))
			return nil
		}
		for _, e := range entries {
			if err := fs.Delete(e); err != nil {
				fail("DELETE", err)
				continue
			}
			fmt.Printf("%s deleted\n", e.Name())
		}
		return nil
	},
}
