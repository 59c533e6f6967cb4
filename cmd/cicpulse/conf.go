package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/nasa-jpl/cicpulse/config"
)

var mkconfCmd = &cobra.Command{
	Use:   "mkconf",
	Short: "write the default configuration to the config file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.OpenFile(configFile, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		defer f.Close()
		if err = config.Write(f, config.Defaults()); err != nil {
			return err
		}
		log.Printf("wrote %s", configFile)
		return nil
	},
}

var confCmd = &cobra.Command{
	Use:   "conf",
	Short: "print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig()
		if err != nil {
			return err
		}
		return config.Write(cmd.OutOrStdout(), c)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "cicpulse version %v\n", Version)
	},
}

func init() {
	rootCmd.AddCommand(mkconfCmd, confCmd, versionCmd)
}
