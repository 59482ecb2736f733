package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vetchium/idcore/internal/config"
	"github.com/vetchium/idcore/internal/domain"
	"github.com/vetchium/idcore/internal/observability/logger"
	"github.com/vetchium/idcore/internal/security/password"
	"github.com/vetchium/idcore/internal/store"
	"github.com/vetchium/idcore/internal/store/memory"
	"github.com/vetchium/idcore/internal/store/pg"
	migrations "github.com/vetchium/idcore/migrations/postgres"

	"github.com/google/uuid"
)

func main() {
	_ = godotenv.Load()

	var cfgPath string

	root := &cobra.Command{
		Use:           "idcore",
		Short:         "Herramientas operativas del core de identidad",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", os.Getenv("IDCORE_CONFIG"), "ruta del config.yaml (env IDCORE_CONFIG)")

	root.AddCommand(migrateCmd(&cfgPath))
	root.AddCommand(seedCmd(&cfgPath))
	root.AddCommand(sweepCmd(&cfgPath))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		Level:       cfg.App.LogLevel,
		ServiceName: cfg.App.ServiceName,
	})
	return cfg, nil
}

// openRepo abre el repositorio según el driver configurado. El cleanup
// retornado siempre es invocable.
func openRepo(ctx context.Context, cfg *config.Config) (store.Repository, func(), error) {
	switch cfg.Storage.Driver {
	case "postgres":
		st, err := pg.Connect(ctx, cfg.Storage.DSN)
		if err != nil {
			return nil, func() {}, err
		}
		return st, st.Close, nil
	default:
		return memory.New(), func() {}, nil
	}
}

func migrateCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Aplica las migraciones SQL pendientes (sólo postgres)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			if cfg.Storage.Driver != "postgres" {
				return fmt.Errorf("migrate requires storage.driver=postgres, got %q", cfg.Storage.Driver)
			}

			ctx := cmd.Context()
			st, err := pg.Connect(ctx, cfg.Storage.DSN)
			if err != nil {
				return err
			}
			defer st.Close()

			applied, err := pg.Migrate(ctx, st.Pool(), migrations.FS)
			if err != nil {
				return err
			}
			logger.L().Info("migrations applied",
				logger.Component("migrate"),
				logger.Count(len(applied)),
			)
			return nil
		},
	}
}

func seedCmd(cfgPath *string) *cobra.Command {
	var (
		email    string
		pw       string
		fullName string
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Crea el tenant admin global con su primera cuenta admin",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			if email == "" || pw == "" {
				return fmt.Errorf("--email and --password are required")
			}

			ctx := cmd.Context()
			repo, cleanup, err := openRepo(ctx, cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			hash, err := password.Hash(password.Default, pw)
			if err != nil {
				return err
			}

			now := time.Now().UTC()
			tenant := &domain.Tenant{
				ID:          uuid.NewString(),
				Kind:        domain.TenantAdmin,
				DisplayName: "Platform Administration",
				CreatedAt:   now,
			}
			if err := repo.Tenants().Create(ctx, tenant); err != nil {
				return err
			}
			admin := &domain.Principal{
				ID:           uuid.NewString(),
				TenantID:     tenant.ID,
				Email:        email,
				FullName:     fullName,
				PasswordHash: hash,
				Status:       domain.PrincipalActive,
				Language:     "en",
				Roles:        []domain.Role{domain.RoleAdmin},
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			if err := repo.Principals().Create(ctx, admin); err != nil {
				return err
			}

			logger.L().Info("admin tenant seeded",
				logger.Component("seed"),
				logger.TenantID(tenant.ID),
				logger.PrincipalID(admin.ID),
			)
			fmt.Printf("tenant=%s admin=%s\n", tenant.ID, admin.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email de la cuenta admin")
	cmd.Flags().StringVar(&pw, "password", "", "password inicial")
	cmd.Flags().StringVar(&fullName, "full-name", "Platform Admin", "nombre completo")
	return cmd
}

func sweepCmd(cfgPath *string) *cobra.Command {
	var loop bool
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Barre challenges, sesiones, tokens y claims expirados",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx := cmd.Context()
			repo, cleanup, err := openRepo(ctx, cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			for {
				if err := sweepOnce(ctx, repo); err != nil {
					return err
				}
				if !loop {
					return nil
				}
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(cfg.Sweep.Interval):
				}
			}
		},
	}
	cmd.Flags().BoolVar(&loop, "loop", false, "correr continuamente cada sweep.interval")
	return cmd
}

// sweepOnce corre los cuatro barridos en paralelo. El corte de
// expiración es el mismo instante para todos.
func sweepOnce(ctx context.Context, repo store.Repository) error {
	log := logger.With(logger.Component("sweep"))
	now := time.Now().UTC()

	var challenges, sessions, tokens, claims int

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		challenges, err = repo.Challenges().DeleteExpired(gctx, now)
		return err
	})
	g.Go(func() (err error) {
		sessions, err = repo.Sessions().DeleteExpired(gctx, now)
		return err
	})
	g.Go(func() (err error) {
		tokens, err = repo.Tokens().DeleteExpired(gctx, now)
		return err
	})
	g.Go(func() (err error) {
		claims, err = repo.Domains().DeleteExpiredPending(gctx, now)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("sweep completed",
		logger.Count(challenges+sessions+tokens+claims),
		logger.String("challenges", fmt.Sprint(challenges)),
		logger.String("sessions", fmt.Sprint(sessions)),
		logger.String("tokens", fmt.Sprint(tokens)),
		logger.String("claims", fmt.Sprint(claims)),
	)
	return nil
}
