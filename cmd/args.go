// qcc args <options file>
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/qobs-build/qcc/internal/native"
)

var argsStyle EnumValue = NewEnumValue("gcc", map[string]string{
	"gcc":  "POSIX shell quoting",
	"msvc": "Windows command line quoting",
})

var argsCmd = &cobra.Command{
	Use:   "args [options file]",
	Short: "Print the arguments stored in an options file, one per line",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		parsed, err := native.ParseOptionsFile(args[0], native.Styles[argsStyle.Value()].OptionsFile)
		if err != nil {
			return err
		}
		for _, arg := range parsed {
			fmt.Fprintln(cmd.OutOrStdout(), arg)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(argsCmd)
	argsCmd.Flags().Var(&argsStyle, "style", "Quoting used by the file, one of "+argsStyle.HelpString())
	argsCmd.RegisterFlagCompletionFunc("style", argsStyle.CompletionFunc())
}
