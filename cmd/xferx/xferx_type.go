package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"xferx/filesystem"
)

var typeCmd = &cobra.Command{
	Use:                   "type VOL:FILE",
	Short:                 "Print a file's contents to standard output, translating line endings",
	Args:                  cobra.ExactArgs(1),
	DisableFlagsInUseLine: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		fs, path, err := resolveRef(args[0])
		if err != nil {
			fail("TYPE", err)
			return nil
		}
		entry, err := fs.GetFileEntry(path)
		if err != nil {
			fail("TYPE", err)
			return nil
		}
		handle, err := fs.Open(entry, filesystem.ModeASCII)
		if err != nil {
			fail("TYPE", err)
			return nil
		}
		defer handle.Close()
		data, err := handle.ReadBlock(0, entry.Length())
		if err != nil {
			fail("TYPE", err)
			return nil
		}
		_, _ = os.Stdout.Write(data)
		fmt.Println()
		return nil
	},
}
