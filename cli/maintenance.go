package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/javanhut/fxstore/internal/colors"
	"github.com/javanhut/fxstore/internal/project"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check the catalogue, the effect files and the usage ledger against each other",
	Args:  cobra.NoArgs,
	RunE:  runVerify,
}

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Delete effects no song uses",
	Args:  cobra.NoArgs,
	RunE:  runGC,
}

func runVerify(cmd *cobra.Command, args []string) error {
	return withProject(func(p *project.Project) error {
		r := p.Store().Verify()
		if r.Clean() {
			fmt.Println(colors.Success("Store is consistent"))
			return nil
		}
		section := func(title string, keys []string) {
			if len(keys) == 0 {
				return
			}
			fmt.Println(colors.Bold(title))
			for _, k := range keys {
				fmt.Printf("  %s\n", k)
			}
		}
		section("Catalogued but missing on disk:", r.MissingFiles)
		section("Used but not catalogued:", r.OrphanUsage)
		section("Not used by any song (run gc):", r.Unused)
		return errors.New("store is inconsistent")
	})
}

func runGC(cmd *cobra.Command, args []string) error {
	return withProject(func(p *project.Project) error {
		removed, err := p.Store().Collect()
		for _, key := range removed {
			fmt.Printf("  %s %s\n", colors.Op("remove"), key)
		}
		if err != nil {
			return err
		}
		if len(removed) == 0 {
			fmt.Println("Nothing to collect")
			return nil
		}
		fmt.Printf("Collected %d effect(s)\n", len(removed))
		return nil
	})
}
