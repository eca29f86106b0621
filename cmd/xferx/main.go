// Command xferx is the thin CLI collaborator described in spec.md §1/§6: it
// owns argument parsing and output formatting only, delegating every
// filesystem operation to the xferx library packages (storage, encoding,
// filesystem, volumes).
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
