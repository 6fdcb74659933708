// poolctl es la CLI de provisioning: opera directo contra el store, sin
// pasar por la superficie HTTP. Pensada para seed inicial y operación.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/idmx-dev/poolhouse/internal/appregistry"
	"github.com/idmx-dev/poolhouse/internal/bootstrap"
	"github.com/idmx-dev/poolhouse/internal/config"
	"github.com/idmx-dev/poolhouse/internal/domain/repository"
	"github.com/idmx-dev/poolhouse/internal/identity"
	"github.com/idmx-dev/poolhouse/internal/observability/logger"
	"github.com/idmx-dev/poolhouse/internal/store"

	_ "github.com/idmx-dev/poolhouse/internal/store/adapters/pg"
	_ "github.com/idmx-dev/poolhouse/internal/store/adapters/redis"
)

var configPath string

func main() {
	_ = godotenv.Load()
	logger.Init(logger.Config{Env: "prod", Level: "warn", ServiceName: "poolctl"})

	root := &cobra.Command{
		Use:           "poolctl",
		Short:         "Provisioning de pools, clients y usuarios",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "ruta del archivo de configuración")

	root.AddCommand(cmdBootstrap())
	root.AddCommand(cmdCreatePool())
	root.AddCommand(cmdCreateClient())
	root.AddCommand(cmdCreateUser())
	root.AddCommand(cmdList())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func connect(ctx context.Context) (store.Connection, *config.Config, error) {
	var cfg *config.Config
	var err error
	if _, statErr := os.Stat(configPath); os.IsNotExist(statErr) {
		cfg, err = config.FromEnv()
	} else {
		cfg, err = config.Load(configPath)
	}
	if err != nil {
		return nil, nil, err
	}

	store.Configure(store.AdapterConfig{
		Name:         cfg.Storage.Driver,
		DSN:          cfg.Storage.DSN,
		MaxOpenConns: cfg.Storage.Postgres.MaxOpenConns,
		MaxIdleConns: cfg.Storage.Postgres.MaxIdleConns,
		RedisAddr:    cfg.Storage.Redis.Addr,
		RedisDB:      cfg.Storage.Redis.DB,
		RedisPrefix:  cfg.Storage.Redis.Prefix,
	})
	conn, err := store.Active(ctx)
	if err != nil {
		return nil, nil, err
	}
	return conn, cfg, nil
}

func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}

func cmdBootstrap() *cobra.Command {
	return &cobra.Command{
		Use:   "bootstrap",
		Short: "Crea el pool default si no existe",
		RunE: func(cmd *cobra.Command, _ []string) error {
			conn, cfg, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = store.Reset() }()
			cfg.Bootstrap.DefaultPool.Enabled = true
			return bootstrap.EnsureDefaultPool(cmd.Context(), conn, cfg)
		},
	}
}

func cmdCreatePool() *cobra.Command {
	var id, name, mfaMode string
	cmd := &cobra.Command{
		Use:   "create-pool",
		Short: "Crea un pool (tenant)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			conn, _, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = store.Reset() }()

			pool, err := conn.Pools().Create(cmd.Context(), repository.CreatePoolInput{
				ID:               id,
				Name:             name,
				MFAConfiguration: repository.MFAMode(mfaMode),
			})
			if err != nil {
				return err
			}
			printJSON(pool)
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "pool id (vacío = generado)")
	cmd.Flags().StringVar(&name, "name", "", "nombre del pool")
	cmd.Flags().StringVar(&mfaMode, "mfa", string(repository.MFAOff), "política MFA: OFF|OPTIONAL|REQUIRED")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func cmdCreateClient() *cobra.Command {
	var poolID, name string
	var redirectURIs []string
	cmd := &cobra.Command{
		Use:   "create-client",
		Short: "Registra un client OIDC en un pool",
		RunE: func(cmd *cobra.Command, _ []string) error {
			conn, _, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = store.Reset() }()

			client, err := appregistry.New(conn).Register(cmd.Context(), appregistry.RegisterInput{
				PoolID:       poolID,
				Name:         name,
				RedirectURIs: redirectURIs,
			})
			if err != nil {
				return err
			}
			// Única vez que el secret sale en claro: anotarlo acá.
			printJSON(struct {
				*repository.Client
				ClientSecret string `json:"client_secret"`
			}{Client: client, ClientSecret: client.ClientSecret})
			return nil
		},
	}
	cmd.Flags().StringVar(&poolID, "pool", "", "pool dueño del client")
	cmd.Flags().StringVar(&name, "name", "", "nombre del client")
	cmd.Flags().StringSliceVar(&redirectURIs, "redirect-uri", nil, "redirect URIs permitidas (repetible)")
	_ = cmd.MarkFlagRequired("pool")
	_ = cmd.MarkFlagRequired("redirect-uri")
	return cmd
}

func cmdCreateUser() *cobra.Command {
	var poolID, email, pass, givenName, familyName string
	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Crea un usuario en un pool",
		RunE: func(cmd *cobra.Command, _ []string) error {
			conn, _, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = store.Reset() }()

			user, err := identity.NewService(conn).Create(cmd.Context(), identity.CreateAccountInput{
				PoolID:     poolID,
				Email:      email,
				Password:   pass,
				GivenName:  givenName,
				FamilyName: familyName,
			})
			if err != nil {
				return err
			}
			printJSON(user)
			return nil
		},
	}
	cmd.Flags().StringVar(&poolID, "pool", "", "pool del usuario")
	cmd.Flags().StringVar(&email, "email", "", "email (único por pool)")
	cmd.Flags().StringVar(&pass, "password", "", "password inicial")
	cmd.Flags().StringVar(&givenName, "given-name", "", "nombre")
	cmd.Flags().StringVar(&familyName, "family-name", "", "apellido")
	_ = cmd.MarkFlagRequired("pool")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func cmdList() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Enumera entidades del store",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "pools",
		Short: "Lista todos los pools",
		RunE: func(c *cobra.Command, _ []string) error {
			conn, _, err := connect(c.Context())
			if err != nil {
				return err
			}
			defer func() { _ = store.Reset() }()
			pools, err := conn.Pools().List(c.Context())
			if err != nil {
				return err
			}
			printJSON(pools)
			return nil
		},
	})

	var poolID string
	users := &cobra.Command{
		Use:   "users",
		Short: "Lista los usuarios de un pool (paginado completo)",
		RunE: func(c *cobra.Command, _ []string) error {
			conn, _, err := connect(c.Context())
			if err != nil {
				return err
			}
			defer func() { _ = store.Reset() }()

			var all []repository.User
			token := ""
			for {
				page, next, err := conn.Users().List(c.Context(), poolID, 100, token)
				if err != nil {
					return err
				}
				all = append(all, page...)
				if next == "" {
					break
				}
				token = next
			}
			printJSON(all)
			return nil
		},
	}
	users.Flags().StringVar(&poolID, "pool", "", "pool a enumerar")
	_ = users.MarkFlagRequired("pool")
	cmd.AddCommand(users)

	var clientsPool string
	clients := &cobra.Command{
		Use:   "clients",
		Short: "Lista clients (de un pool, o todos)",
		RunE: func(c *cobra.Command, _ []string) error {
			conn, _, err := connect(c.Context())
			if err != nil {
				return err
			}
			defer func() { _ = store.Reset() }()
			all, err := appregistry.New(conn).LoadAllForPool(c.Context(), clientsPool)
			if err != nil {
				return err
			}
			printJSON(all)
			return nil
		},
	}
	clients.Flags().StringVar(&clientsPool, "pool", "", "pool a enumerar (vacío = todos)")
	cmd.AddCommand(clients)

	return cmd
}
