package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	_ "github.com/go-sql-driver/mysql"

	"github.com/n-rosenthal/sala-de-leitura/internal/audit"
	"github.com/n-rosenthal/sala-de-leitura/internal/catalog"
	"github.com/n-rosenthal/sala-de-leitura/internal/consistency"
	"github.com/n-rosenthal/sala-de-leitura/internal/dashboard"
	"github.com/n-rosenthal/sala-de-leitura/internal/loans"
	"github.com/n-rosenthal/sala-de-leitura/internal/members"
	"github.com/n-rosenthal/sala-de-leitura/internal/platform/auth"
	"github.com/n-rosenthal/sala-de-leitura/internal/platform/db"
	"github.com/n-rosenthal/sala-de-leitura/internal/platform/httpx"
)

func main() {
	cfg, err := db.LoadConfig("config/config.yaml")
	if err != nil {
		panic(err)
	}

	log.Printf("[INFO] mode:%s", cfg.Mode)
	if cfg.Mode != "dev" && cfg.Mode != "release" {
		log.Fatal("config mode must be dev or release")
	}
	if cfg.Auth.JWTSecret == "" {
		log.Fatal("auth.jwt_secret must be set")
	}

	conn, err := db.Connect(cfg.DB)
	if err != nil {
		panic(err)
	}
	defer conn.Close()
	log.Printf("[INFO] connected to DB: %s", cfg.DB.DBName)

	ctx, cancelBoot := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.Migrate(ctx, conn); err != nil {
		cancelBoot()
		log.Fatalf("[ERROR] schema migration failed: %v", err)
	}
	cancelBoot()
	log.Println("[INFO] schema is up to date")

	auditSvc := audit.NewService(conn)
	authSvc := auth.NewService(conn, auditSvc, []byte(cfg.Auth.JWTSecret),
		time.Duration(cfg.Auth.TokenTTLHours)*time.Hour)
	loanSvc := loans.NewService(conn, auditSvc, cfg.LockWait(), loans.Config{
		LoanDays:  cfg.Loans.LoanDays,
		RenewDays: cfg.Loans.RenewDays,
	})
	bookSvc := catalog.NewService(conn, auditSvc)
	memberSvc := members.NewService(conn, authSvc, auditSvc)
	checkSvc := consistency.NewService(conn, auditSvc, cfg.LockWait())
	dashSvc := dashboard.NewService(conn)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery(), httpx.RequestID())
	_ = r.SetTrustedProxies(nil)

	if cfg.Mode == "dev" {
		// CORS only matters while the frontend runs on its own port.
		r.Use(cors.New(cors.Config{
			AllowOrigins:     []string{"http://localhost:3000"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-Id"},
			ExposeHeaders:    []string{"Content-Length", "X-Request-Id"},
			AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowCredentials: true,
		}))
	}

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	api := r.Group("/api/v1")
	auth.RegisterPublicRoutes(api, authSvc)

	authed := api.Group("", auth.RequireAuth([]byte(cfg.Auth.JWTSecret)))
	staff := authed.Group("", auth.RequireRole("staff", "admin"))

	loans.RegisterRoutes(authed, staff, loanSvc)
	catalog.RegisterRoutes(authed, staff, bookSvc)
	members.RegisterRoutes(authed, staff, memberSvc)
	consistency.RegisterRoutes(staff, checkSvc)
	dashboard.RegisterRoutes(staff, dashSvc)
	audit.RegisterRoutes(staff, auditSvc)

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}

	go func() {
		log.Printf("[INFO] listening on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit
	log.Println("[INFO] shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal(err)
	}
}
