package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"syscall"
	"text/tabwriter"

	"github.com/google/uuid"
	"golang.org/x/term"

	"github.com/atriumlabs/atrium/internal/adapter/postgres"
	"github.com/atriumlabs/atrium/internal/config"
	"github.com/atriumlabs/atrium/internal/domain/user"
	"github.com/atriumlabs/atrium/internal/middleware"
	"github.com/atriumlabs/atrium/internal/secrets"
	"github.com/atriumlabs/atrium/internal/service"
)

// runAdmin dispatches admin subcommands (bootstrap, reset-password,
// create-user, list-users). All of them run with a system-admin context;
// they operate below the HTTP auth layer.
func runAdmin(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printAdminHelp()
		return nil
	}

	switch args[0] {
	case "bootstrap":
		return runAdminBootstrap(args[1:])
	case "reset-password":
		return runAdminResetPassword(args[1:])
	case "create-user":
		return runAdminCreateUser(args[1:])
	case "list-users":
		return runAdminListUsers(args[1:])
	default:
		printAdminHelp()
		return fmt.Errorf("unknown admin command: %s", args[0])
	}
}

func printAdminHelp() {
	fmt.Fprintf(os.Stderr, `Usage: atrium admin <command> [options]

Commands:
  bootstrap        Create the initial platform admin account
  reset-password   Reset a user's password
  create-user      Create a new user
  list-users       List users of a tenant
  help             Show this help message

Examples:
  atrium admin bootstrap --email admin@localhost
  atrium admin reset-password --email admin@localhost
  atrium admin reset-password --email admin@localhost --password NewPass123!
  atrium admin create-user --email ops@acme.test --name "Acme Ops" --tenant 0198c9b4-...
  atrium admin create-user --email root@localhost --name "Root" --admin
  atrium admin list-users
  atrium admin list-users --tenant 0198c9b4-...
`)
}

func loadAdminDeps() (*service.AuthService, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}

	vault, err := secrets.NewVault(secrets.EnvLoader(jwtSecretKey))
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("secrets: %w", err)
	}
	secret := signingSecret(vault, func() string { return cfg.Auth.JWTSecret })

	store := postgres.NewStore(pool)
	authSvc := service.NewAuthService(store, cfg.Auth, secret, nil)

	cleanup := func() {
		pool.Close()
	}
	return authSvc, cleanup, nil
}

func runAdminBootstrap(args []string) error {
	fs := flag.NewFlagSet("bootstrap", flag.ContinueOnError)
	email := fs.String("email", "admin@localhost", "platform admin email address")
	password := fs.String("password", "", "initial password (prompted if not provided)") //nolint:gosec // CLI flag
	if err := fs.Parse(args); err != nil {
		return err
	}

	pass := *password
	if pass == "" {
		var err error
		pass, err = promptPassword("Initial password: ")
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		confirm, err := promptPassword("Confirm password: ")
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		if pass != confirm {
			return fmt.Errorf("passwords do not match")
		}
	}

	authSvc, cleanup, err := loadAdminDeps()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := middleware.SystemAdminContext(context.Background())
	if err := authSvc.SeedDefaultAdmin(ctx, *email, pass); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Platform admin ready: %s (password change required at first login)\n", *email)
	return nil
}

func runAdminResetPassword(args []string) error {
	fs := flag.NewFlagSet("reset-password", flag.ContinueOnError)
	email := fs.String("email", "", "user email address (required)")
	password := fs.String("password", "", "new password (prompted if not provided)") //nolint:gosec // CLI flag
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *email == "" {
		return fmt.Errorf("--email is required")
	}

	newPass := *password
	if newPass == "" {
		var err error
		newPass, err = promptPassword("New password: ")
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		confirm, err := promptPassword("Confirm password: ")
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		if newPass != confirm {
			return fmt.Errorf("passwords do not match")
		}
	}

	authSvc, cleanup, err := loadAdminDeps()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := middleware.SystemAdminContext(context.Background())
	if err := authSvc.ResetPassword(ctx, *email, newPass); err != nil {
		return fmt.Errorf("reset password: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Password reset successfully for %s\n", *email)
	return nil
}

func runAdminCreateUser(args []string) error {
	fs := flag.NewFlagSet("create-user", flag.ContinueOnError)
	email := fs.String("email", "", "user email address (required)")
	name := fs.String("name", "", "user display name (required)")
	password := fs.String("password", "", "password (prompted if not provided)") //nolint:gosec // CLI flag
	tenant := fs.String("tenant", "", "tenant id (defaults to the platform tenant)")
	admin := fs.Bool("admin", false, "grant the platform admin role")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *email == "" {
		return fmt.Errorf("--email is required")
	}
	if *name == "" {
		return fmt.Errorf("--name is required")
	}

	tenantID := middleware.DefaultTenantID
	if *tenant != "" {
		var err error
		tenantID, err = uuid.Parse(*tenant)
		if err != nil {
			return fmt.Errorf("invalid --tenant: %w", err)
		}
	}

	pass := *password
	if pass == "" {
		var err error
		pass, err = promptPassword("Password: ")
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		confirm, err := promptPassword("Confirm password: ")
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		if pass != confirm {
			return fmt.Errorf("passwords do not match")
		}
	}

	role := user.RoleMember
	if *admin {
		role = user.RoleAdmin
	}

	authSvc, cleanup, err := loadAdminDeps()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := middleware.SystemAdminContext(context.Background())
	u, err := authSvc.Register(ctx, &user.CreateRequest{
		Email:    *email,
		Name:     *name,
		Password: pass,
		Role:     role,
		TenantID: tenantID,
	})
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}

	fmt.Fprintf(os.Stderr, "User created: %s (id=%s, role=%s, tenant=%s)\n", u.Email, u.ID, u.Role, u.TenantID)
	return nil
}

func runAdminListUsers(args []string) error {
	fs := flag.NewFlagSet("list-users", flag.ContinueOnError)
	tenant := fs.String("tenant", "", "tenant id (defaults to the platform tenant)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	tenantID := middleware.DefaultTenantID
	if *tenant != "" {
		var err error
		tenantID, err = uuid.Parse(*tenant)
		if err != nil {
			return fmt.Errorf("invalid --tenant: %w", err)
		}
	}

	authSvc, cleanup, err := loadAdminDeps()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := middleware.SystemAdminContext(context.Background())
	users, err := authSvc.ListUsers(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	if len(users) == 0 {
		fmt.Println("No users found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tEMAIL\tNAME\tROLE\tENABLED\tMUST_CHANGE_PW")
	for i := range users {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%t\n",
			users[i].ID, users[i].Email, users[i].Name, users[i].Role, users[i].Enabled, users[i].MustChangePassword)
	}
	return w.Flush()
}

// promptPassword reads a password from the terminal without echoing.
func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(syscall.Stdin)) //nolint:unconvert // int conversion needed on some platforms
	fmt.Fprintln(os.Stderr)                         // newline after password input
	if err != nil {
		return "", err
	}
	return string(b), nil
}
