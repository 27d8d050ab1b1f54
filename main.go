package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/isdelr/blog-be/cmd/createadmin"
	"github.com/isdelr/blog-be/cmd/serve"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "blog-be",
		Short:        "Blog publishing backend",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configFile, _ := cmd.Flags().GetString("config")
			return serve.Run(cmd.Context(), configFile)
		},
	}
	rootCmd.PersistentFlags().String("config", "", "Optional config file (env vars and .env take effect without it)")

	rootCmd.AddCommand(serve.NewServeCommand())
	rootCmd.AddCommand(createadmin.NewCreateAdminCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
