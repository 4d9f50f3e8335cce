package cmd

import (
	"errors"
	"fmt"

	"github.com/princinho/adminportal/models"
	"github.com/princinho/adminportal/services"
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create the bootstrap super-admin from ADMIN_EMAIL/ADMIN_PASSWORD if missing",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := bootstrap()
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		a, err := newApp(cmd.Context(), cfg, log, false)
		if err != nil {
			return err
		}
		defer a.Close()

		created, err := a.store.EnsureSuperAdmin(cmd.Context(), cfg.AdminEmail, cfg.AdminPassword, cfg.AdminName)
		if err != nil {
			return err
		}
		if created {
			fmt.Fprintln(cmd.OutOrStdout(), "Admin user seeded:", cfg.AdminEmail)
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), "Admin user already exists:", cfg.AdminEmail)
		}
		return nil
	},
}

var createAdminOpts struct {
	email    string
	password string
	name     string
	role     string
}

var createAdminCmd = &cobra.Command{
	Use:   "create-admin",
	Short: "Create an admin account",
	RunE: func(cmd *cobra.Command, args []string) error {
		if createAdminOpts.email == "" || createAdminOpts.password == "" {
			return errors.New("--email and --password are required")
		}
		cfg, log, err := bootstrap()
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		a, err := newApp(cmd.Context(), cfg, log, false)
		if err != nil {
			return err
		}
		defer a.Close()

		acc, err := a.store.Create(cmd.Context(), services.NewAccount{
			Name:     createAdminOpts.name,
			Email:    createAdminOpts.email,
			Password: createAdminOpts.password,
			Role:     models.Role(createAdminOpts.role),
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created %s %s (%s)\n", acc.Role, acc.Email, acc.ID.Hex())
		return nil
	},
}

func init() {
	f := createAdminCmd.Flags()
	f.StringVar(&createAdminOpts.email, "email", "", "account email")
	f.StringVar(&createAdminOpts.password, "password", "", "initial password")
	f.StringVar(&createAdminOpts.name, "name", "", "display name")
	f.StringVar(&createAdminOpts.role, "role", string(models.RoleAdmin), "super-admin, admin or moderator")
}
