package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jihwankim/viewharness/pkg/scenario"
	"github.com/jihwankim/viewharness/pkg/scenario/parser"
	"github.com/jihwankim/viewharness/pkg/scenario/validator"
)

var scenariosCmd = &cobra.Command{
	Use:   "scenarios",
	Args:  cobra.NoArgs,
	Short: "List the built-in scenario catalog, or validate a scenario file",
	Long: `With no flags, lists every stable scenario identifier the run,
verify, and other subcommands accept in place of a YAML path. With
--validate, parses and validates a scenario file instead, printing its
warnings and errors without running it.`,
	RunE: runScenarios,
}

func init() {
	scenariosCmd.Flags().String("validate", "", "path to a scenario YAML file to validate instead of listing the catalog")
}

func runScenarios(cmd *cobra.Command, _ []string) error {
	validatePath, _ := cmd.Flags().GetString("validate")
	if validatePath != "" {
		return validateScenarioFile(validatePath)
	}

	for _, name := range scenario.Names() {
		sc, _ := scenario.Lookup(name)
		fmt.Printf("%-28s %-20s %s\n", name, sc.Metadata.Phase, sc.Metadata.Description)
	}
	return nil
}

func validateScenarioFile(path string) error {
	p := parser.New(nil)
	sc, err := p.ParseFile(path)
	if err != nil {
		return err
	}

	v := validator.New()
	v.Validate(sc) // error return mirrors v.HasErrors(); report printed either way
	fmt.Print(v.GetReport())
	if v.HasErrors() {
		return fmt.Errorf("scenario %q failed validation", sc.Metadata.Name)
	}
	return nil
}
