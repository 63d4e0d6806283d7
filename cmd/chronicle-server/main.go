// Command chronicle-server is a minimal reference HTTP adapter over the
// embeddable database: JWT-protected CRUD over entities, translating the
// error taxonomy to HTTP status codes. It demonstrates the adapter
// contract an RPC or MCP surface would follow; it is not itself a
// supported deployment surface, grounded narrowly on api/rest.go and
// api/jwt.go's echo+echo-jwt wiring rather than grown into a full API.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/evalgo-chronicle/chronicle/config"
	"github.com/evalgo-chronicle/chronicle/db"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	handle, err := db.Open(context.Background(), cfg, db.Options{})
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer handle.Dispose(context.Background())

	h := &handlers{db: handle, auth: newTokenIssuer(cfg.Auth)}

	e := echo.New()
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.HTTPErrorHandler = errorHandler

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	authGroup := e.Group("/auth")
	authGroup.POST("/token", h.issueToken)

	entities := e.Group("/v1/entities")
	entities.Use(echojwt.WithConfig(echojwt.Config{
		SigningKey:  []byte(cfg.Auth.JWTSecret),
		TokenLookup: "header:Authorization:Bearer ",
	}))
	entities.POST("/:namespace", h.createEntity)
	entities.GET("/:namespace", h.findEntities)
	entities.GET("/:namespace/:id", h.getEntity)
	entities.PATCH("/:namespace/:id", h.updateEntity)
	entities.DELETE("/:namespace/:id", h.deleteEntity)

	go func() {
		addr := cfg.Server.Host + ":" + strconv.Itoa(cfg.Server.Port)
		log.Printf("chronicle-server listening on %s", addr)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("shutting down chronicle-server...")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.Fatal(err)
	}
}
