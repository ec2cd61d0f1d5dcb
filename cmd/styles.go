package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kiesman99/mapwizard/pkg/style"
)

var stylesCmd = &cobra.Command{
	Use:   "styles",
	Short: "List the style files found in --style-dir",
	Long: `List the .json, .yaml and .yml style files in the style directory.
Pass a listed name to --style to use it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := viper.GetString("style-dir")
		paths, err := style.Discover(dir)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(paths) == 0 {
			fmt.Fprintf(out, "No style files in %s\n", dir)
			return nil
		}

		fmt.Fprintln(out, "List of map style files:")
		for i, p := range paths {
			rules, err := style.Load(p)
			if err != nil {
				fmt.Fprintf(out, "%d. %s (invalid: %v)\n", i+1, style.Name(p), err)
				continue
			}
			fmt.Fprintf(out, "%d. %s (%d rules, %s)\n", i+1, style.Name(p), len(rules), p)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(stylesCmd)
}
