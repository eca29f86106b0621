package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"xferx/filesystem"
)

var (
	copyASCII bool
	copyType  string
)

// readSide reads ref's full contents, either from a mounted volume or from
// the host filesystem when ref names no mounted volume identifier.
func readSide(ref string) ([]byte, error) {
	if fs, path, ok := tryResolveRef(ref); ok {
		entry, err := fs.GetFileEntry(path)
		if err != nil {
			return nil, err
		}
		mode := filesystem.ModeImage
		if copyASCII {
			mode = filesystem.ModeASCII
		}
		handle, err := fs.Open(entry, mode)
		if err != nil {
			return nil, err
		}
		defer handle.Close()
		return handle.ReadBlock(0, entry.Length())
	}
	return os.ReadFile(ref)
}

// writeSide writes data to ref, either onto a mounted volume or the host
// filesystem.
func writeSide(ref string, data []byte) error {
	if fs, path, ok := tryResolveRef(ref); ok {
		_, err := fs.WriteBytes(path, data, time.Now(), copyType)
		return err
	}
	return os.WriteFile(ref, data, 0o644)
}

var copyCmd = &cobra.Command{
	Use:                   "copy SRC DST",
	Short:                 "Copy a file between a mounted volume and the host, or between two volumes",
	Args:                  cobra.ExactArgs(2),
	DisableFlagsInUseLine: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := readSide(args[0])
		if err != nil {
			fail("COPY", err)
			return nil
		}
		if err := writeSide(args[1], data); err != nil {
			fail("COPY", err)
			return nil
		}
		fmt.Printf("%%COPY-I-COPIED %s to %s (%d bytes)\n", args[0], args[1], len(data))
		return nil
	},
}

func init() {
	copyCmd.Flags().BoolVar(&copyASCII, "ascii", false, "translate line endings during the copy")
	copyCmd.Flags().StringVar(&copyType, "type", "", "destination file-type tag, default: format-specific default")
}
