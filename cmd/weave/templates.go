package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ShayCichocki/weave/internal/templates"
	"github.com/ShayCichocki/weave/pkg/models"
)

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "Manage saved plan templates",
}

var templatesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved templates",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := templates.NewStore(templates.DefaultDir())
		if err != nil {
			return err
		}
		defer store.Close()

		names := store.List()
		if len(names) == 0 {
			fmt.Println("No templates saved.")
			return nil
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return nil
	},
}

var templatesShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Print a template as YAML",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := templates.NewStore(templates.DefaultDir())
		if err != nil {
			return err
		}
		defer store.Close()

		plan, err := store.Load(args[0])
		if err != nil {
			return err
		}
		data, err := yaml.Marshal(plan)
		if err != nil {
			return err
		}
		fmt.Print(string(data))
		return nil
	},
}

var templatesSaveCmd = &cobra.Command{
	Use:   "save <plan-file>",
	Short: "Save a plan file as a template named by its plan id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		plan, err := models.LoadPlan(args[0])
		if err != nil {
			return err
		}

		store, err := templates.NewStore(templates.DefaultDir())
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.Save(plan); err != nil {
			return err
		}
		printStatus("✓", fmt.Sprintf("saved template %s", plan.ID), color.FgGreen)
		return nil
	},
}

var templatesDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a template",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := templates.NewStore(templates.DefaultDir())
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.Delete(args[0]); err != nil {
			return err
		}
		printStatus("✓", fmt.Sprintf("deleted template %s", args[0]), color.FgGreen)
		return nil
	},
}

func init() {
	templatesCmd.AddCommand(templatesListCmd)
	templatesCmd.AddCommand(templatesShowCmd)
	templatesCmd.AddCommand(templatesSaveCmd)
	templatesCmd.AddCommand(templatesDeleteCmd)
	rootCmd.AddCommand(templatesCmd)
}
