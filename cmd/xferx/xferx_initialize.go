package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"xferx/storage"
)

var (
	initFSType string
	initSizeKB int64
)

var initializeCmd = &cobra.Command{
	Use:                   "initialize TARGET",
	Short:                 "Write an empty, bootable-layout instance of a filesystem over a new image file",
	Args:                  cobra.ExactArgs(1),
	DisableFlagsInUseLine: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		target := args[0]
		typ := fsType(initFSType)
		if typ == "" {
			typ = guessFSType(target)
		}
		size := initSizeKB * 1024
		if size <= 0 {
			size = 512 * storage.BlockSize
		}
		if err := initializeVolume(typ, target, size); err != nil {
			fail("INITIALIZE", err)
			return nil
		}
		fmt.Printf("%%INITIALIZE-I-DONE %s (%s)\n", target, typ)
		return nil
	},
}

func init() {
	initializeCmd.Flags().StringVar(&initFSType, "fstype", "", "filesystem type, default: guessed from file extension")
	initializeCmd.Flags().Int64Var(&initSizeKB, "size", 0, "volume size in KiB, default: 256 (512 blocks) for every format")
}
