package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "cardex",
		Short: "Trading card retrieval and rule analysis engine",
	}
	root.Version = version
	root.SetVersionTemplate("{{.Version}}\n")
	root.AddCommand(serveCmd())
	root.AddCommand(searchCmd())
	root.AddCommand(classifyCmd())
	root.AddCommand(importCmd())
	root.AddCommand(rulesCmd())
	root.AddCommand(interactionsCmd())
	root.AddCommand(versionCmd())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
