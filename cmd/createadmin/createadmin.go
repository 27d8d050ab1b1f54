package createadmin

import (
	"errors"
	"fmt"

	"github.com/go-extras/cobraflags"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/isdelr/blog-be/internal/app"
	"github.com/isdelr/blog-be/internal/apperror"
	"github.com/isdelr/blog-be/internal/models"
	"github.com/isdelr/blog-be/internal/services"
)

const (
	nameFlag     = "name"
	emailFlag    = "email"
	passwordFlag = "password"
)

var flags = map[string]cobraflags.Flag{
	nameFlag: &cobraflags.StringFlag{
		Name:  nameFlag,
		Value: "Admin",
		Usage: "Display name of the administrator",
	},
	emailFlag: &cobraflags.StringFlag{
		Name:  emailFlag,
		Value: "",
		Usage: "Email address used to sign in (required)",
	},
	passwordFlag: &cobraflags.StringFlag{
		Name:  passwordFlag,
		Value: "",
		Usage: "Initial password, at least 6 characters (required)",
	},
}

// NewCreateAdminCommand returns the command that bootstraps an admin account.
func NewCreateAdminCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an administrator account",
		Long: `Create an administrator account directly in the database.

Administrators cannot be self-registered through the API; use this command
to create the first one.

Example:
  blog-be create-admin --email admin@example.com --password 'change-me'`,
		RunE: run,
	}
	cobraflags.RegisterMap(cmd, flags)
	return cmd
}

func run(cmd *cobra.Command, _ []string) error {
	email := flags[emailFlag].GetString()
	password := flags[passwordFlag].GetString()
	if email == "" || password == "" {
		return errors.New("--email and --password are required")
	}

	configFile, _ := cmd.Flags().GetString("config")
	ctx := cmd.Context()
	_, db, err := app.Open(ctx, configFile)
	if err != nil {
		return err
	}
	defer db.Close()

	users := services.NewUserService(db, nil, services.NewEventService(db))
	user, err := users.CreateUser(ctx, flags[nameFlag].GetString(), email, password, models.RoleAdmin)
	if err != nil {
		if apperror.KindOf(err) == apperror.KindConflict {
			return fmt.Errorf("a user with email %s already exists", email)
		}
		return err
	}

	log.Info().Str("user_id", user.ID).Str("email", user.Email).Msg("Admin user created")
	return nil
}
