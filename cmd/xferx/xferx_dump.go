package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	dumpStart int
	dumpEnd   int
)

var dumpCmd = &cobra.Command{
	Use:                   "dump VOL:FILE",
	Short:                 "Hex-dump a file's blocks",
	Args:                  cobra.ExactArgs(1),
	DisableFlagsInUseLine: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		fs, path, err := resolveRef(args[0])
		if err != nil {
			fail("DUMP", err)
			return nil
		}
		entry, err := fs.GetFileEntry(path)
		if err != nil {
			fail("DUMP", err)
			return nil
		}
		data, err := fs.ReadBytes(entry)
		if err != nil {
			fail("DUMP", err)
			return nil
		}
		start, end := 0, len(data)
		if dumpStart > 0 {
			start = dumpStart
		}
		if dumpEnd > 0 && dumpEnd < end {
			end = dumpEnd
		}
		for off := start; off < end; off += 16 {
			line := data[off:min(off+16, end)]
			fmt.Printf("%08X  % X\n", off, line)
		}
		return nil
	},
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func init() {
	dumpCmd.Flags().IntVar(&dumpStart, "start", 0, "starting byte offset")
	dumpCmd.Flags().IntVar(&dumpEnd, "end", 0, "ending byte offset, default: end of file")
}
