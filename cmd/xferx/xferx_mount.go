package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	mountFSType   string
	mountReadOnly bool
	mountStrict   bool
)

var mountCmd = &cobra.Command{
	Use:                   "mount VOL: FILE",
	Short:                 "Mount a disk or tape image under a volume identifier",
	Args:                  cobra.ExactArgs(2),
	DisableFlagsInUseLine: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		id, path := args[0], args[1]
		typ := fsType(mountFSType)
		if typ == "" {
			typ = guessFSType(path)
		}
		fs, err := mountVolume(typ, path, mountReadOnly, mountStrict)
		if err != nil {
			fail("MOUNT", err)
			return nil
		}
		if err := registry.Mount(id, fs); err != nil {
			fs.Close()
			fail("MOUNT", err)
			return nil
		}
		fmt.Printf("%%MOUNT-I-MOUNTED %s as %s:\n", path, id)
		return nil
	},
}

func init() {
	mountCmd.Flags().StringVar(&mountFSType, "fstype", "", "filesystem type, default: guessed from file extension")
	mountCmd.Flags().BoolVar(&mountReadOnly, "readonly", false, "mount read-only")
	mountCmd.Flags().BoolVar(&mountStrict, "strict", false, "fail mount on consistency check violations")
}

var dismountCmd = &cobra.Command{
	Use:                   "dismount VOL:",
	Short:                 "Dismount a volume and close its underlying image",
	Args:                  cobra.ExactArgs(1),
	DisableFlagsInUseLine: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := registry.Dismount(args[0]); err != nil {
			fail("DISMOUNT", err)
		}
		return nil
	},
}
