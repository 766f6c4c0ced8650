package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yairfalse/leima/internal/pager"
	"github.com/yairfalse/leima/internal/scan"
	awsscan "github.com/yairfalse/leima/internal/scan/aws"
)

// scannersCmd lists the keys accepted by --scanners. The account-global
// bucket scan is not a registry key; it is toggled through the buckets
// config section instead.
var scannersCmd = &cobra.Command{
	Use:   "scanners",
	Short: "List available scanner keys",
	Run:   runScanners,
}

func init() {
	rootCmd.AddCommand(scannersCmd)
}

func runScanners(_ *cobra.Command, _ []string) {
	awsscan.NewScanners(nil, pager.Options{}).RegisterAll()
	for _, key := range scan.Keys() {
		fmt.Println(key)
	}
}
