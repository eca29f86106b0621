package main

import (
	"fmt"
	"os"

	"github.com/sisatech/tablewriter"
	"github.com/spf13/cobra"
)

var (
	dirBrief bool
	dirFull  bool
	dirUIC   bool
)

var dirCmd = &cobra.Command{
	Use:                   "dir [VOL:PATTERN]",
	Short:                 "List directory entries, optionally filtered by a glob pattern",
	Args:                  cobra.MaximumNArgs(1),
	DisableFlagsInUseLine: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ref := ""
		if len(args) == 1 {
			ref = args[0]
		}
		fs, pattern, err := resolveRef(ref)
		if err != nil {
			fail("DIR", err)
			return nil
		}
		entries, err := fs.FilterEntriesList(pattern, true, false, pattern != "")
		if err != nil {
			fail("DIR", err)
			return nil
		}

		if dirBrief {
			for _, e := range entries {
				fmt.Println(e.Name())
			}
			return nil
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.SetAlignment(tablewriter.ALIGN_LEFT)
		table.SetBorder(false)
		table.SetColumnSeparator("")
		header := []string{"NAME", "TYPE", "BLOCKS", "BYTES"}
		if dirUIC || dirFull {
			header = append(header, "DIR")
		}
		table.SetHeader(header)

		blocks := 0
		for _, e := range entries {
			blocks += e.Length()
			row := []string{e.Name(), e.FileType(), fmt.Sprintf("%d", e.Length()), fmt.Sprintf("%d", e.Size())}
			if dirUIC || dirFull {
				row = append(row, fmt.Sprintf("%v", e.IsDirectory()))
			}
			table.Append(row)
		}
		table.Render()
		fmt.Printf("Total of %d blocks in %d entries, %d free\n", blocks, len(entries), fs.FreeBlocks())
		return nil
	},
}

func init() {
	dirCmd.Flags().BoolVar(&dirBrief, "brief", false, "list names only")
	dirCmd.Flags().BoolVar(&dirFull, "full", false, "show extended columns")
	dirCmd.Flags().BoolVar(&dirUIC, "uic", false, "add a DIR column marking directory entries (same as --full)")
}
