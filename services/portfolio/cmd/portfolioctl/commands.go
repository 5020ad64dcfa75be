package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"portfolio/pkg/domain"
	"portfolio/pkg/store"
	"portfolio/services/portfolio/internal/app"
	"portfolio/services/portfolio/internal/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()
		color.Green("schema up to date (%s)", redactDSN(cfg.DatabaseURL))
		return nil
	},
}

var seedAdminCmd = &cobra.Command{
	Use:   "seed-admin",
	Short: "Create the admin account or reset its password",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		email, _ := cmd.Flags().GetString("email")
		password, _ := cmd.Flags().GetString("password")
		if email == "" {
			email = cfg.AdminEmail
		}
		if password == "" {
			password = cfg.AdminPassword
		}
		if password == "" {
			return errors.New("password is required (--password or ADMIN_PASSWORD)")
		}
		a, err := app.New(app.Config{Store: st})
		if err != nil {
			return err
		}
		user, err := a.SeedAdmin(commandContext(cmd), email, password)
		if err != nil {
			return err
		}
		color.Green("admin %s ready (id %d)", user.Email, user.ID)
		return nil
	},
}

var contactsCmd = &cobra.Command{
	Use:   "contacts",
	Short: "Inspect contact submissions",
}

var contactsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List contact submissions, oldest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		_, st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		contacts, err := st.ListContacts(commandContext(cmd))
		if err != nil {
			return err
		}
		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(contacts)
		}
		return printContacts(cmd, contacts)
	},
}

var pruneSessionsCmd = &cobra.Command{
	Use:   "prune-sessions",
	Short: "Delete expired login sessions",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		ttl, err := config.ParseSessionTTL(cfg.SessionTTL)
		if err != nil {
			return err
		}
		sessions := store.NewGormSessionStore(st.DB(), ttl, config.SessionKeys(cfg.SessionSecret)...)
		removed, err := sessions.DeleteExpired(commandContext(cmd))
		if err != nil {
			return err
		}
		color.Green("removed %d expired sessions", removed)
		return nil
	},
}

func init() {
	seedAdminCmd.Flags().String("email", "", "admin email (default from config)")
	seedAdminCmd.Flags().String("password", "", "admin password (default from config)")
	contactsListCmd.Flags().Bool("json", false, "print JSON instead of a table")
	contactsCmd.AddCommand(contactsListCmd)
}

func printContacts(cmd *cobra.Command, contacts []domain.Contact) error {
	out := cmd.OutOrStdout()
	if len(contacts) == 0 {
		color.New(color.FgYellow).Fprintln(out, "no contact submissions")
		return nil
	}
	header := color.New(color.FgCyan, color.Bold)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	header.Fprintln(w, "ID\tRECEIVED\tNAME\tEMAIL\tTYPE\tMESSAGE")
	for _, c := range contacts {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			c.ID, c.CreatedAt.Format("2006-01-02 15:04"), c.Name, c.Email, c.ProjectType, preview(c.Message, 48))
	}
	return w.Flush()
}

func preview(msg string, n int) string {
	msg = strings.Join(strings.Fields(msg), " ")
	r := []rune(msg)
	if len(r) <= n {
		return msg
	}
	return string(r[:n-1]) + "…"
}

func redactDSN(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	scheme := strings.Index(dsn, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return dsn
	}
	return dsn[:scheme+3] + "***" + dsn[at:]
}
