package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pathcanon/pathcanon/internal/normalize"
	"github.com/pathcanon/pathcanon/internal/pathtext"
	"github.com/pathcanon/pathcanon/internal/resolve"
)

func newResolveCmd() *cobra.Command {
	var grammarName string
	var deviceLen bool
	var noExpandHome bool

	cmd := &cobra.Command{
		Use:   "resolve [fragments...]",
		Short: "Join path fragments into one normalized absolute path",
		Long: "Fragments are evaluated right to left; the working directory is used\n" +
			"only when no fragment is absolute. No filesystem access is made.",
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := normalize.ParseGrammar(grammarName)
			if err != nil {
				return err
			}
			inputs, err := prepareInputs(args, !noExpandHome)
			if err != nil {
				return err
			}

			res, err := resolve.New(g, resolve.OSEnv{}).Resolve(inputs...)
			if err != nil {
				return err
			}
			out, err := pathtext.Decode(res.Path)
			if err != nil {
				return err
			}

			if deviceLen {
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\n", out, res.DeviceLen)
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), out)
			return err
		},
	}

	cmd.Flags().StringVar(&grammarName, "grammar", normalize.GrammarNative, "Path grammar: posix|win32|native")
	cmd.Flags().BoolVar(&deviceLen, "device-len", false, "Also print the length of the device prefix")
	cmd.Flags().BoolVar(&noExpandHome, "no-expand-home", false, "Do not expand a leading ~")

	return cmd
}

// prepareInputs checks the encoding of every argument and expands "~".
func prepareInputs(args []string, expandHome bool) ([]string, error) {
	out := make([]string, len(args))
	for i, arg := range args {
		text, err := pathtext.Decode(arg)
		if err != nil {
			return nil, err
		}
		if expandHome {
			if text, err = pathtext.ExpandHome(text); err != nil {
				return nil, err
			}
		}
		out[i] = text
	}
	return out, nil
}
