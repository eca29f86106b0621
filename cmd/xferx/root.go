package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"xferx/volumes"
)

// registry is the process-wide L4 volume table, mirroring the teacher's use
// of package-level state for its media-type flags (retroio/cmd) — a single
// CLI invocation works with one session's worth of mounted volumes.
var registry = volumes.New()

var rootCmd = &cobra.Command{
	Use:   "xferx",
	Short: "Inspect and transfer files on historical minicomputer/microcomputer disk and tape images",
	Long: `xferx reads and writes RT-11, DOS-11, Files-11 (ODS-1), RSTS/E, OS/8,
TSS/8, CAPS-11, Nova RDOS, UNIX (v0-v7), Apple DOS 3.3, Apple Pascal and
ProDOS volume images, through a single command surface regardless of which
format is mounted.`,
}

func init() {
	rootCmd.AddCommand(mountCmd)
	rootCmd.AddCommand(dismountCmd)
	rootCmd.AddCommand(initializeCmd)
	rootCmd.AddCommand(dirCmd)
	rootCmd.AddCommand(typeCmd)
	rootCmd.AddCommand(copyCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(cdCmd)
	rootCmd.AddCommand(pwdCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(assignCmd)
	rootCmd.AddCommand(deassignCmd)
	rootCmd.AddCommand(examineCmd)
	rootCmd.AddCommand(dumpCmd)
}

// fail prints err the way the teacher's cmd package does (fmt, no logger)
// and, per §7, formats it with the shell's "?CMD-F-message" convention.
func fail(verb string, err error) {
	fmt.Printf("?%s-F-%s\n", verb, err)
}
