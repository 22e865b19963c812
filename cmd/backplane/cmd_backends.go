package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// backendsCmd lists the configured backends.
var backendsCmd = &cobra.Command{
	Use:   "backends",
	Short: "List configured backends",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		rt, err := buildRuntime(cfg)
		if err != nil {
			return err
		}
		for _, name := range rt.Registry().Names() {
			bc := cfg.Backends[name]
			marker := " "
			if name == cfg.DefaultBackend {
				marker = "*"
			}
			switch bc.Kind {
			case "sidecar":
				fmt.Printf("%s %-16s sidecar  %s\n", marker, name, bc.Command)
			default:
				fmt.Printf("%s %-16s %s\n", marker, name, bc.Kind)
			}
		}
		return nil
	},
}
