package main

import (
	"errors"
	"fmt"
	"time"

	goAttend "github.com/MrEthical07/goAttend"
	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a development identity token",
	RunE: func(cmd *cobra.Command, args []string) error {
		sub, _ := cmd.Flags().GetString("sub")
		role, _ := cmd.Flags().GetString("role")
		ttl, _ := cmd.Flags().GetDuration("ttl")
		if sub == "" {
			return errors.New("--sub is required")
		}
		if !goAttend.Role(role).Valid() {
			return fmt.Errorf("unknown role %q", role)
		}

		cfg, err := commandConfig(cmd)
		if err != nil {
			return err
		}
		identity, err := identityManager(cfg)
		if err != nil {
			return err
		}

		tok, err := identity.CreateIdentity(sub, role, time.Now(), ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().String("sub", "", "Principal id")
	tokenCmd.Flags().String("role", string(goAttend.RoleTeacher), "teacher or student")
	tokenCmd.Flags().Duration("ttl", time.Hour, "Token lifetime")
}
