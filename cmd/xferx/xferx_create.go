package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	createDirectory bool
	createAllocate  int
	createType      string
)

var createCmd = &cobra.Command{
	Use:                   "create VOL:PATH",
	Short:                 "Create an empty file or a subdirectory",
	Args:                  cobra.ExactArgs(1),
	DisableFlagsInUseLine: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		fs, path, err := resolveRef(args[0])
		if err != nil {
			fail("CREATE", err)
			return nil
		}
		if createDirectory {
			if _, err := fs.CreateDirectory(path, nil); err != nil {
				fail("CREATE", err)
			}
			return nil
		}
		blocks := createAllocate
		if blocks <= 0 {
			blocks = 1
		}
		if _, err := fs.CreateFile(path, blocks, time.Now(), createType); err != nil {
			fail("CREATE", err)
			return nil
		}
		fmt.Printf("%%CREATE-I-CREATED %s (%d blocks)\n", path, blocks)
		return nil
	},
}

func init() {
	createCmd.Flags().BoolVar(&createDirectory, "directory", false, "create a subdirectory instead of a file")
	createCmd.Flags().IntVar(&createAllocate, "allocate", 0, "blocks to allocate for a new file, default: 1")
	createCmd.Flags().StringVar(&createType, "type", "", "file-type tag for a new file")
}
