package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	cfg "github.com/example/bookcatalog/internal/config"
	"github.com/gorilla/mux"
	"golang.org/x/time/rate"
	_ "modernc.org/sqlite"
)

type App struct {
	DB             DB
	Tokens         *TokenCodec
	limiter        *rate.Limiter
	allowedOrigins []string
}

// router wires the full HTTP surface. Split out of main so tests can run
// requests against the exact production routing.
func (a *App) router() *mux.Router {
	r := mux.NewRouter()

	r.Use(SecurityHeaders)
	r.Use(a.Logging)
	r.Use(a.CORS)
	r.Use(a.RateLimit)

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(200)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")
	r.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if p, ok := a.DB.(interface{ ping() bool }); ok && !p.ping() {
			w.WriteHeader(503)
			w.Write([]byte(`{"ready":false}`))
			return
		}
		w.WriteHeader(200)
		w.Write([]byte(`{"ready":true}`))
	}).Methods("GET")

	r.HandleFunc("/auth/token", a.HandleLogin).Methods("POST")
	r.Handle("/auth/refresh_token", a.BearerAuth(http.HandlerFunc(a.HandleRefreshToken))).Methods("POST")

	// registration and listing are open; mutation is owner-only
	r.HandleFunc("/accounts", a.HandleCreateAccount).Methods("POST")
	r.HandleFunc("/accounts", a.HandleListAccounts).Methods("GET")
	r.Handle("/accounts/{id}", a.BearerAuth(http.HandlerFunc(a.HandleUpdateAccount))).Methods("PATCH")
	r.Handle("/accounts/{id}", a.BearerAuth(http.HandlerFunc(a.HandleDeleteAccount))).Methods("DELETE")

	novelists := r.PathPrefix("/novelists").Subrouter()
	novelists.Use(a.BearerAuth)
	novelists.HandleFunc("", a.HandleCreateNovelist).Methods("POST")
	novelists.HandleFunc("", a.HandleListNovelists).Methods("GET")
	novelists.HandleFunc("/{id}", a.HandleUpdateNovelist).Methods("PATCH")
	novelists.HandleFunc("/{id}", a.HandleDeleteNovelist).Methods("DELETE")

	books := r.PathPrefix("/books").Subrouter()
	books.Use(a.BearerAuth)
	books.HandleFunc("", a.HandleCreateBook).Methods("POST")
	books.HandleFunc("", a.HandleListBooks).Methods("GET")
	books.HandleFunc("/{id}", a.HandleUpdateBook).Methods("PATCH")
	books.HandleFunc("/{id}", a.HandleDeleteBook).Methods("DELETE")

	// preflight requests are answered by the CORS middleware; the route only
	// exists so the middleware chain runs for OPTIONS
	r.PathPrefix("/").Methods("OPTIONS").HandlerFunc(func(http.ResponseWriter, *http.Request) {})

	return r
}

func main() {
	c, err := cfg.New()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	codec, err := NewTokenCodec(c.JwtSecret, c.JwtAlgorithm, time.Duration(c.TokenTTLSeconds)*time.Second)
	if err != nil {
		log.Fatalf("token codec: %v", err)
	}

	var db DB
	switch c.DBAdapter {
	case "sqlite":
		s, err := NewSQLiteDB(c.SQLiteFile)
		if err != nil {
			log.Fatalf("sqlite init: %v", err)
		}
		db = s
	case "postgres":
		dsn, err := c.BuildPostgresDSN()
		if err != nil {
			log.Fatalf("postgres config error: %v", err)
		}
		log.Println("Applying database migrations...")
		if err := ApplyMigrations("./migrations", dsn); err != nil {
			log.Fatalf("migrations: %v", err)
		}
		p, err := NewPostgresDB(dsn)
		if err != nil {
			log.Fatalf("postgres init: %v", err)
		}
		db = p
		log.Println("Connected to PostgreSQL database")
	case "memory":
		log.Println("Using in-memory database (not recommended for production)")
		db = NewMemoryDB()
	default:
		log.Fatalf("unsupported DB_ADAPTER: %s (supported: postgres, sqlite, memory)", c.DBAdapter)
	}

	app := &App{
		DB:             db,
		Tokens:         codec,
		limiter:        newLimiter(c.RateLimitPerMinute),
		allowedOrigins: c.AllowedOrigins,
	}

	srv := &http.Server{
		Handler:      app.router(),
		Addr:         ":" + c.Port,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		fmt.Println("Starting server on", c.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if closer, ok := app.DB.(interface{ close() error }); ok {
		_ = closer.close()
	}
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("shutdown failed:%+v", err)
	}
	fmt.Println("Server exited properly")
}
