package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/edvin/timeoff/internal/bootstrap"
	"github.com/edvin/timeoff/internal/core"
	"github.com/edvin/timeoff/internal/db"
	"github.com/edvin/timeoff/internal/model"
	"github.com/edvin/timeoff/internal/store"
)

func newCreateUserCmd() *cobra.Command {
	var (
		in        core.NewUser
		emailMode string
		signature string
	)

	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Create a user who can log in to the API",
		Long: "Create a user who can log in to the API. The password is read from " +
			"TIMEOFF_USER_PASSWORD when --password is not given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if in.Password == "" {
				in.Password = os.Getenv("TIMEOFF_USER_PASSWORD")
			}
			if in.Password == "" {
				return errors.New("--password or TIMEOFF_USER_PASSWORD is required")
			}
			in.EmailMode = model.EmailMode(emailMode)
			if signature != "" {
				in.Signature = &signature
			}

			cfg, err := loadConfig("migrate")
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			pool, err := db.NewPool(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer pool.Close()

			engine, err := bootstrap.NewEngine(cfg, store.New(pool))
			if err != nil {
				return err
			}
			u, err := engine.Services.User.Create(ctx, in)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(u)
		},
	}

	f := cmd.Flags()
	f.StringVar(&in.Email, "email", "", "Login and mailbox address (required)")
	f.StringVar(&in.Password, "password", "", "Login password")
	f.StringVar(&in.Name, "name", "", "Full name used in email signatures (required)")
	f.StringVar(&in.Code, "code", "", "Short crew code used in email subjects (required)")
	f.StringVar(&in.Role, "role", model.RoleUser, "Role: user or admin")
	f.StringVar(&emailMode, "email-mode", string(model.EmailModeManual), "Email mode: automatic or manual")
	f.StringVar(&signature, "signature", "", "Custom email signature")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("code")
	return cmd
}
