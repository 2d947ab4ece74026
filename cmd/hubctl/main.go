// hubctl drives the portal session SDK from the command line: two-phase
// login, session inspection, logout, and a watch mode that follows remote
// logouts through the shared storage backend.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"tqhub/internal/session"
	dErrors "tqhub/pkg/domain-errors"
)

var (
	flagVerbose  bool
	flagPassword string
)

var rootCmd = &cobra.Command{
	Use:           "hubctl",
	Short:         "Portal session SDK driver",
	Long:          "hubctl exercises the portal session SDK against a real storage backend:\nlogin, inspect, log out, and watch for logouts arriving from elsewhere.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var loginCmd = &cobra.Command{
	Use:   "login <email>",
	Short: "Resolve the tenant for an email and log in",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, flagVerbose)
		if err != nil {
			return err
		}
		defer a.close()

		password := flagPassword
		if password == "" {
			fmt.Fprint(cmd.OutOrStdout(), "Password: ")
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil {
				return fmt.Errorf("read password: %w", err)
			}
			password = strings.TrimRight(line, "\r\n")
		}

		if err := a.manager.Login(ctx, args[0], password); err != nil {
			return presentError(err)
		}
		a.manager.Flush()

		tenant := a.manager.Tenant()
		fmt.Fprintf(cmd.OutOrStdout(), "Logged in to %s (tenant %d) as %s\n",
			tenant.Name, a.manager.TenantID(), args[0])
		fmt.Fprintf(cmd.OutOrStdout(), "Role: %s  Timezone: %s  Locale: %s\n",
			a.manager.Role(), tenant.Timezone, tenant.Locale)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the persisted session state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), flagVerbose)
		if err != nil {
			return err
		}
		defer a.close()
		a.manager.Flush()

		out := cmd.OutOrStdout()
		if !a.manager.IsAuthenticated() {
			fmt.Fprintln(out, "Not logged in")
			return nil
		}

		record := a.manager.Snapshot()
		tenant := a.manager.Tenant()
		fmt.Fprintf(out, "User:     %s %s <%s>\n",
			record.User.FirstName, record.User.LastName, record.User.Email)
		fmt.Fprintf(out, "Tenant:   %s (id %d, slug %s)\n", tenant.Name, record.TenantID, tenant.Slug)
		fmt.Fprintf(out, "Role:     %s\n", a.manager.Role())
		fmt.Fprintf(out, "Display:  %s / %s\n", tenant.Timezone, tenant.Locale)
		if len(record.User.AllowedApps) > 0 {
			fmt.Fprint(out, "Apps:    ")
			for _, app := range record.User.AllowedApps {
				fmt.Fprintf(out, " %s(%s)", app.Slug, app.LicenseStatus)
			}
			fmt.Fprintln(out)
		}
		if err := a.manager.LastError(); err != nil {
			fmt.Fprintf(out, "Warning:  %v\n", err)
		}
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Clear the persisted session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, flagVerbose)
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.manager.Logout(ctx); err != nil {
			return presentError(err)
		}
		a.manager.Flush()
		fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Block until the session is cleared by another process",
	Long:  "watch follows the shared storage backend and exits when a logout\nperformed elsewhere (another process, another machine) propagates here.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, flagVerbose)
		if err != nil {
			return err
		}
		defer a.close()

		if !a.manager.IsAuthenticated() {
			return fmt.Errorf("not logged in; nothing to watch")
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		loggedOut := make(chan struct{})
		synchronizer := session.NewSynchronizer(a.manager, a.store,
			session.WithSynchronizerLogger(a.log),
			session.WithNavigate(func() { close(loggedOut) }),
		)

		errs := make(chan error, 1)
		go func() { errs <- synchronizer.Run(ctx) }()

		fmt.Fprintf(cmd.OutOrStdout(), "Watching session for %s...\n", a.manager.Snapshot().User.Email)

		select {
		case <-loggedOut:
			fmt.Fprintln(cmd.OutOrStdout(), "Session cleared remotely, logged out")
			cancel()
			<-errs
			return nil
		case err := <-errs:
			return err
		case <-ctx.Done():
			<-errs
			return nil
		}
	},
}

// presentError prefixes the error with where the UI would surface it, so the
// taxonomy is visible from the terminal.
func presentError(err error) error {
	code := dErrors.CodeOf(err)
	return fmt.Errorf("[%s] %w", session.PresentationFor(code), err)
}

func main() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	loginCmd.Flags().StringVarP(&flagPassword, "password", "p", "", "password (prompted when omitted)")

	rootCmd.AddCommand(loginCmd, statusCmd, logoutCmd, watchCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
