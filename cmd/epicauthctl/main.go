package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dropDatabas3/epicauth/internal/config"
	"github.com/dropDatabas3/epicauth/internal/jwks"
	"github.com/dropDatabas3/epicauth/internal/jwt"
	"github.com/dropDatabas3/epicauth/internal/store"
	"github.com/dropDatabas3/epicauth/internal/store/pg"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

type cli struct {
	configPath string
	out        string // "json" | "text"
	timeout    time.Duration
	cfg        *config.Config
	w          io.Writer
}

func (c *cli) print(v any, text func()) {
	if c.out == "json" {
		b, _ := json.MarshalIndent(v, "", "  ")
		fmt.Fprintln(c.w, string(b))
		return
	}
	text()
}

func (c *cli) keyCache(source, url string) (*jwks.Cache, error) {
	if url == "" {
		switch source {
		case "auth":
			url = c.cfg.Epic.AuthJWKSURL
		case "connect":
			url = c.cfg.Epic.ConnectJWKSURL
		default:
			return nil, fmt.Errorf("--source must be auth or connect, got %q", source)
		}
	}
	return jwks.New(url,
		jwks.WithSource(source),
		jwks.WithFetcher(jwks.NewHTTPFetcher(config.Duration(c.cfg.Epic.FetchTimeout))),
	), nil
}

func main() {
	_ = godotenv.Load()

	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "epicauthctl",
		Short:         "Herramientas de operación para epicauth",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if c.out != "json" && c.out != "text" {
				return fmt.Errorf("--out must be json or text, got %q", c.out)
			}
			cfg, err := config.Load(c.configPath)
			if err != nil {
				return err
			}
			c.cfg = cfg
			c.w = cmd.OutOrStdout()
			return nil
		},
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", os.Getenv("CONFIG_PATH"), "config.yaml (opcional, env CONFIG_PATH)")
	root.PersistentFlags().StringVar(&c.out, "out", "text", "Formato de salida: json|text")
	root.PersistentFlags().DurationVar(&c.timeout, "timeout", 30*time.Second, "timeout total del comando")

	root.AddCommand(jwksCmd(c), verifyCmd(c), migrateCmd(c), playerCmd(c))
	return root
}

func jwksCmd(c *cli) *cobra.Command {
	group := &cobra.Command{Use: "jwks", Short: "Inspección de los key stores de Epic"}

	var source, url string
	fetch := &cobra.Command{
		Use:   "fetch",
		Short: "Descarga un key set y lista sus claves",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), c.timeout)
			defer cancel()

			kc, err := c.keyCache(source, url)
			if err != nil {
				return err
			}
			if err := kc.Prepare(ctx); err != nil {
				return err
			}
			snap := kc.Snapshot()
			c.print(snap, func() {
				fmt.Fprintf(c.w, "%s (%d keys, etag %q)\n", snap.SourceURL, len(snap.Keys), snap.ETag)
				tw := tabwriter.NewWriter(c.w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "KID\tKTY\tALG\tUSE")
				for _, k := range snap.Keys {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", k.Kid, k.Kty, k.Alg, k.Use)
				}
				_ = tw.Flush()
			})
			return nil
		},
	}
	fetch.Flags().StringVar(&source, "source", "auth", "auth|connect")
	fetch.Flags().StringVar(&url, "url", "", "URL explícita (pisa --source)")

	group.AddCommand(fetch)
	return group
}

func verifyCmd(c *cli) *cobra.Command {
	var authToken, connectToken string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verifica tokens de Epic y muestra el subject",
		RunE: func(cmd *cobra.Command, args []string) error {
			if authToken == "" && connectToken == "" {
				return errors.New("--auth-token o --connect-token es requerido")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), c.timeout)
			defer cancel()

			type row struct {
				Interface string `json:"interface"`
				Subject   string `json:"subject,omitempty"`
				Error     string `json:"error,omitempty"`
			}
			var rows []row
			failed := false
			for _, t := range []struct{ source, token string }{{"auth", authToken}, {"connect", connectToken}} {
				if t.token == "" {
					continue
				}
				kc, err := c.keyCache(t.source, "")
				if err != nil {
					return err
				}
				sub, err := jwt.NewVerifier(t.source, kc, jwt.WithLeeway(config.Duration(c.cfg.Epic.ClockSkew))).Verify(ctx, t.token)
				r := row{Interface: t.source, Subject: sub}
				if err != nil {
					r.Error = err.Error()
					failed = true
				}
				rows = append(rows, r)
			}

			c.print(rows, func() {
				for _, r := range rows {
					switch {
					case r.Error != "":
						fmt.Fprintf(c.w, "%-8s INVALID  %s\n", r.Interface, r.Error)
					case r.Subject == "":
						fmt.Fprintf(c.w, "%-8s VALID    (no sub claim)\n", r.Interface)
					default:
						fmt.Fprintf(c.w, "%-8s VALID    sub=%s\n", r.Interface, r.Subject)
					}
				}
			})
			if failed {
				return errors.New("verification failed")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&authToken, "auth-token", "", "token del Auth interface")
	cmd.Flags().StringVar(&connectToken, "connect-token", "", "token del Connect interface")
	return cmd
}

func migrateCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Aplica las migraciones embebidas de Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.cfg.Storage.Driver != "postgres" {
				return fmt.Errorf("migrate requiere storage.driver=postgres (actual %q)", c.cfg.Storage.Driver)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), c.timeout)
			defer cancel()

			s, err := pg.New(ctx, c.cfg.Storage.DSN, pg.Options{MaxOpenConns: 2})
			if err != nil {
				return err
			}
			defer s.Close()

			n, err := s.Migrate(ctx)
			if err != nil {
				return err
			}
			c.print(map[string]int{"applied": n}, func() { fmt.Fprintf(c.w, "applied %d migrations\n", n) })
			return nil
		},
	}
}

func playerCmd(c *cli) *cobra.Command {
	group := &cobra.Command{Use: "player", Short: "Consulta de players"}
	group.AddCommand(&cobra.Command{
		Use:   "get <player-id>",
		Short: "Muestra un player por id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), c.timeout)
			defer cancel()

			var scfg store.Config
			scfg.Driver = c.cfg.Storage.Driver
			scfg.DSN = c.cfg.Storage.DSN
			stores, err := store.Open(ctx, scfg)
			if err != nil {
				return err
			}
			defer stores.Close()

			p, err := stores.Reader.GetPlayer(ctx, args[0])
			if err != nil {
				return err
			}
			c.print(p, func() {
				fmt.Fprintf(c.w, "id:                   %s\n", p.ID)
				fmt.Fprintf(c.w, "epic_account_id:      %s\n", p.EpicAccountID)
				fmt.Fprintf(c.w, "epic_product_user_id: %s\n", p.EpicProductUserID)
				fmt.Fprintf(c.w, "created_at:           %s\n", p.CreatedAt.Format(time.RFC3339))
				fmt.Fprintf(c.w, "last_login_at:        %s\n", p.LastLoginAt.Format(time.RFC3339))
			})
			return nil
		},
	})
	return group
}
