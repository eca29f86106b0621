package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var examineFull bool

var examineCmd = &cobra.Command{
	Use:                   "examine VOL:",
	Short:                 "Report a mounted volume's capacity and free space",
	Args:                  cobra.ExactArgs(1),
	DisableFlagsInUseLine: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		fs, _, err := resolveRef(args[0])
		if err != nil {
			fail("EXAMINE", err)
			return nil
		}
		fmt.Printf("Block size:   %d\n", fs.BlockSize())
		fmt.Printf("Total blocks: %d\n", fs.TotalBlocks())
		fmt.Printf("Free blocks:  %d\n", fs.FreeBlocks())
		fmt.Printf("Read-only:    %v\n", fs.ReadOnly())
		if examineFull {
			fmt.Printf("Size (bytes): %d\n", fs.GetSize())
			fmt.Printf("Current dir:  %s\n", fs.GetPwd())
		}
		return nil
	},
}

func init() {
	examineCmd.Flags().BoolVar(&examineFull, "full", false, "include size and working-directory detail")
}
