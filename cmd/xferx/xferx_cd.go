package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cdCmd = &cobra.Command{
	Use:                   "cd VOL:PATH",
	Short:                 "Change the current working directory on a mounted volume",
	Args:                  cobra.ExactArgs(1),
	DisableFlagsInUseLine: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		fs, path, err := resolveRef(args[0])
		if err != nil {
			fail("CD", err)
			return nil
		}
		ok, err := fs.Chdir(path)
		if err != nil {
			fail("CD", err)
			return nil
		}
		if !ok {
			fmt.Println("%CD-I-FLAT this format has no directory hierarchy")
		}
		return nil
	},
}

var pwdCmd = &cobra.Command{
	Use:                   "pwd VOL:",
	Short:                 "Print the current working directory of a mounted volume",
	Args:                  cobra.ExactArgs(1),
	DisableFlagsInUseLine: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		fs, _, err := resolveRef(args[0])
		if err != nil {
			fail("PWD", err)
			return nil
		}
		fmt.Println(fs.GetPwd())
		return nil
	},
}
