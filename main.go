package main

import (
	"log"
	"net/http"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

func loadEnv() {
	var err error

	// A .env file is optional; real environment variables win
	_ = godotenv.Load()

	// Extract necessary environment variables
	timeoutEnv := os.Getenv("TIMEOUT")
	appVersion = os.Getenv("APP_VERSION")
	loadLogEnv()

	// Set default value if not set
	if timeoutEnv == "" {
		globalTimeout = 30
	} else {
		// Convert timeout to integer
		globalTimeout, err = strconv.Atoi(timeoutEnv)
		if err != nil {
			log.Fatalf("Failed to convert timeout environment variable to integer")
		}
	}
}

func newService(config *Config) *service {
	client := NewAlertClient(config.AlertsEndpoint, config.VigenciasEndpoint)
	windows := NewVigencyConfigProvider(client, config.DefaultVigencias, zapLogger)
	builder := NewAlertBuilder(defaultCatalog, windows, zapLogger)
	opts := config.Pipeline.options()

	// One pipeline per presenter session
	sessions := NewSessionRegistry(func() *Pipeline {
		return NewPipeline(client, windows, builder, opts, zapLogger)
	}, config.sessionIdle())

	return &service{
		catalog:  defaultCatalog,
		windows:  windows,
		sessions: sessions,
	}
}

func registerRoutes(e *echo.Echo, svc *service) {
	// Adds a heartbeat handler
	e.GET("/heartbeat", heartbeat)

	// Creates API group to simplify middleware declaration
	vigenciaGroup := e.Group("/vigencia", bearerContext)

	// Catalog and window table currently in effect
	vigenciaGroup.GET("/rules", svc.rules)
	vigenciaGroup.GET("/config", svc.vigencias)

	// Evaluate a patient's alerts
	vigenciaGroup.POST("/alertas/:patientId", svc.alerts)
}

func main() {
	loadEnv()

	// Read service configuration
	config, err := readConfig()
	if err != nil {
		log.Fatal(err)
	}

	svc := newService(config)

	// Create new Echo object
	e := echo.New()

	// Add basic middleware to log all requests
	e.Use(middleware.Logger())

	// Configure elastic apm logging
	initAPM(e)

	// Sets CORS headers to allow all origins, but restrict HTTP method type
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType, sessionHeader},
	}))

	// Middleware to provide more control over response status for APM transactions
	// This must go after the Elastic APM middleware
	e.Use(filterError)

	registerRoutes(e, svc)

	// Start server
	e.Logger.Fatal(e.Start(":" + getEnv("PORT", "8000")))
}
