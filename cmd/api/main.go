package main

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/pressly/goose/v3"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	apppkg "github.com/yanryp/servicedesk-sub001/cmd/api/app"
	authpkg "github.com/yanryp/servicedesk-sub001/cmd/api/auth"
	metricspkg "github.com/yanryp/servicedesk-sub001/cmd/api/metrics"
	slaspkg "github.com/yanryp/servicedesk-sub001/cmd/api/slas"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func main() {
	_ = godotenv.Load()
	cfg := apppkg.GetConfig()
	if cfg.Env == "dev" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// DB connect
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	defer pool.Close()

	// Migrate (embedded goose) using pgx stdlib driver
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		log.Fatal().Err(err).Msg("goose dialect")
	}
	sqldb, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("sql open for goose")
	}
	defer sqldb.Close()
	if err := goose.UpContext(ctx, sqldb, "migrations"); err != nil {
		log.Fatal().Err(err).Msg("migrate up")
	}

	// JWKS-backed Keyfunc for OIDC mode
	var keyf jwt.Keyfunc
	if cfg.JWKSURL != "" {
		httpClient := &http.Client{Timeout: 10 * time.Second}
		set, err := jwk.Fetch(ctx, cfg.JWKSURL, jwk.WithHTTPClient(httpClient))
		if err != nil {
			log.Fatal().Err(err).Str("jwks_url", cfg.JWKSURL).Msg("fetch jwks")
		}
		setPtr := &set
		go func() {
			ticker := time.NewTicker(10 * time.Minute)
			defer ticker.Stop()
			for range ticker.C {
				if newSet, err := jwk.Fetch(context.Background(), cfg.JWKSURL, jwk.WithHTTPClient(httpClient)); err == nil {
					*setPtr = newSet
				}
			}
		}()
		keyf = func(t *jwt.Token) (interface{}, error) {
			kid, _ := t.Header["kid"].(string)
			if kid != "" {
				if key, ok := (*setPtr).LookupKeyID(kid); ok {
					var pub any
					if err := key.Raw(&pub); err != nil {
						return nil, err
					}
					return pub, nil
				}
			}
			it := (*setPtr).Iterate(context.Background())
			if it.Next(context.Background()) {
				pair := it.Pair()
				if key, ok := pair.Value.(jwk.Key); ok {
					var pub any
					if err := key.Raw(&pub); err != nil {
						return nil, err
					}
					return pub, nil
				}
			}
			return nil, fmt.Errorf("no jwk for kid: %s", kid)
		}
	}

	// Redis client (optional): calendar snapshot cache
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Error().Err(err).Msg("redis ping")
			rdb = nil
		} else {
			defer rdb.Close()
		}
	}

	// Seed a dev admin for local auth
	if cfg.AuthMode == "local" && cfg.Env == "dev" {
		if err := seedLocalAdmin(ctx, pool, cfg.AdminPassword); err != nil {
			log.Error().Err(err).Msg("seed local admin")
		}
	}

	a := apppkg.NewApp(cfg, pool, keyf, rdb)
	routes(a)

	srv := &http.Server{
		Addr:           cfg.Addr,
		Handler:        a.R,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
	log.Info().Str("addr", cfg.Addr).Msg("api listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("listen")
	}
}

func routes(a *apppkg.App) {
	a.R.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })
	a.R.GET("/metrics", metricspkg.Handler())

	if a.Cfg.AuthMode == "local" {
		a.R.POST("/login", authpkg.Login(a))
		a.R.POST("/logout", authpkg.Logout)
	}

	auth := a.R.Group("/")
	auth.Use(authpkg.Middleware(a))
	auth.GET("/me", authpkg.Me)

	auth.GET("/sla/business-hours", slaspkg.BusinessHours(a))
	auth.GET("/sla/next-window", slaspkg.NextWindow(a))
	auth.POST("/sla/due-date", slaspkg.DueDate(a))
	auth.GET("/sla/rules", authpkg.RequireRole("agent"), slaspkg.Rules(a))
	auth.GET("/sla/holidays", authpkg.RequireRole("agent"), slaspkg.Holidays(a))
}

func seedLocalAdmin(ctx context.Context, db *pgxpool.Pool, password string) error {
	var exists bool
	if err := db.QueryRow(ctx, "select exists(select 1 from users where lower(username)='admin')").Scan(&exists); err != nil {
		return err
	}
	if exists {
		return nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if _, err := db.Exec(ctx, `
        insert into users (id, username, email, display_name, password_hash, roles)
        values (gen_random_uuid(), 'admin', 'admin@example.com', 'Admin', $1, '{admin}')`,
		string(hash)); err != nil {
		return err
	}
	log.Info().Str("username", "admin").Msg("seeded local admin user (dev)")
	return nil
}
