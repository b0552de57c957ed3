package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/autoresumefiller/autofill/internal/config"
	"github.com/autoresumefiller/autofill/internal/provider"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "Inspect configured LLM providers",
}

// -- providers list --

var providersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List providers and their configured models",
	RunE: func(cmd *cobra.Command, _ []string) error {
		formatProviders(os.Stdout, newRegistry(cfg), cfg.AI)
		return nil
	},
}

// -- providers validate --

var providersValidateCmd = &cobra.Command{
	Use:   "validate [name]",
	Short: "Check a provider's credentials (default: the active provider)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := adapterFor(newRegistry(cfg), args)
		if err != nil {
			return err
		}

		ok, err := a.ValidateCredentials(cmd.Context())
		if err != nil {
			return eris.Wrapf(err, "validate %s", a.Name())
		}
		if !ok {
			return eris.Errorf("%s: credentials rejected", a.Name())
		}
		fmt.Fprintf(os.Stdout, "%s: credentials valid (model %s)\n", a.Name(), a.Model())
		return nil
	},
}

// -- providers models --

var providersModelsCmd = &cobra.Command{
	Use:   "models [name]",
	Short: "List the models a provider offers (default: the active provider)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := adapterFor(newRegistry(cfg), args)
		if err != nil {
			return err
		}

		models, err := a.ListModels(cmd.Context())
		if err != nil {
			return eris.Wrapf(err, "list models for %s", a.Name())
		}
		for _, m := range models {
			fmt.Fprintln(os.Stdout, m)
		}
		return nil
	},
}

func adapterFor(reg *provider.Registry, args []string) (provider.Adapter, error) {
	name := reg.ActiveName()
	if len(args) > 0 {
		name = args[0]
	}
	return reg.Get(name)
}

func init() {
	providersCmd.AddCommand(providersListCmd)
	providersCmd.AddCommand(providersValidateCmd)
	providersCmd.AddCommand(providersModelsCmd)
	rootCmd.AddCommand(providersCmd)
}

// formatProviders writes one row per registered provider to w.
func formatProviders(out io.Writer, reg *provider.Registry, ai config.AIConfig) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "PROVIDER\tACTIVE\tMODEL\tKEY")
	_, _ = fmt.Fprintln(w, "--------\t------\t-----\t---")

	active := reg.ActiveName()
	for _, name := range reg.Names() {
		pc := ai.Providers[name]
		mark := ""
		if name == active {
			mark = "*"
		}
		key := "missing"
		if pc.Key != "" {
			key = "set"
		}
		if name == "offline" {
			key = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", name, mark, pc.Model, key)
	}
	_ = w.Flush()
}
