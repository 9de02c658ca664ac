package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"readtx/lib/serviceutil"
	"readtx/lib/vault"
)

var (
	configSetUser     *string
	configSetPassword *string
	configInitForce   *bool
)

func init() {
	configInitForce = configInitCmd.Flags().Bool("force", false, "Overwrite an existing config file.")
	configSetUser = configSetCmd.Flags().String("user", "", "Login user, email or phone number.")
	configSetPassword = configSetCmd.Flags().String("password", "", "Password or PIN, stored encrypted.")
	configSetCmd.MarkFlagRequired("user")
	configSetCmd.MarkFlagRequired("password")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	rootCmd.AddCommand(configCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manages the credentials and portal urls config file.",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Writes a commented starter config file.",
	Run: func(cmd *cobra.Command, args []string) {
		path := *configPath
		if path == "" {
			var err error
			path, err = vault.DefaultPath()
			if err != nil {
				serviceutil.Fatal("failed to resolve config path", err)
			}
		}
		err := vault.WriteTemplate(path, *configInitForce)
		if err != nil {
			serviceutil.Fatal("failed to write config template", err)
		}
		fmt.Println(path)
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Prints the config file. Passwords stay encrypted.",
	Run: func(cmd *cobra.Command, args []string) {
		v, err := vault.Open(*configPath)
		if err != nil {
			serviceutil.Fatal("failed to open config", err)
		}
		raw, err := os.ReadFile(v.Path)
		if err != nil {
			serviceutil.Fatal("failed to read config, run \"readtx-cli config init\" first", err)
		}
		fmt.Printf("// %s\n%s", v.Path, raw)
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <crawler> --user <user> --password <password>",
	Short: "Stores credentials for a crawler, encrypting the password.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		v, err := vault.Open(*configPath)
		if err != nil {
			serviceutil.Fatal("failed to open config", err)
		}
		err = v.SetCredentials(args[0], *configSetUser, *configSetPassword)
		if err != nil {
			serviceutil.Fatal("failed to store credentials", err)
		}
		fmt.Printf("credentials for %q written to %s\n", args[0], v.Path)
	},
}
