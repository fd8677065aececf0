package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.elastic.co/apm"
	"go.elastic.co/apm/module/apmechov4"
	"go.elastic.co/apm/module/apmzap"
	"go.uber.org/zap"
)

var (
	zapLogger *zap.Logger
	appEnv    string
	appName   string
	apmActive string
	elkUrl    string
)

func init() {

	// Set logging configuration
	var err error
	zapLogger, err = zap.NewProduction(zap.WrapCore((&apmzap.Core{}).WrapCore))
	if err != nil {
		log.Fatalf("Can't initialize zap logger: %v", err)
	}

	// Flushes buffer if it exists
	defer zapLogger.Sync()
}

// loadLogEnv reads the logging environment. Called after the .env file is
// loaded so values from it are honored.
func loadLogEnv() {
	appEnv = os.Getenv("APP_ENV")
	appName = os.Getenv("APP_NAME")
	apmActive = os.Getenv("ELASTIC_APM_ACTIVE")
	elkUrl = os.Getenv("ELK_URL")
}

func initAPM(e *echo.Echo) {
	// Close default Elastic APM tracer
	zapLogger.Info("Disable default APM logger")
	apm.DefaultTracer.Close()

	// Conditionally enable APM logger based on "ELASTIC_APM_ACTIVE" environment variable.
	if apmActive == "true" {
		// Create new tracer with basic options
		// Use environment variables for the remaining options
		zapLogger.Info("Creating new APM tracer",
			zap.String("ServiceName", appName),
			zap.String("ServiceEnvironment", appEnv))
		tracer, err := apm.NewTracerOptions(apm.TracerOptions{
			ServiceName:        appName,
			ServiceVersion:     appVersion,
			ServiceEnvironment: appEnv,
		})
		if err != nil {
			zapLogger.Fatal(err.Error())
		}

		// Adds elastic APM middleware to web server to capture requests
		// and send them to elastic
		zapLogger.Info("Enabling APM logger")
		e.Use(apmechov4.Middleware(apmechov4.WithTracer(tracer)))
	}
}

func logger(c context.Context, err error) {
	zapLogger.Error(err.Error())
	if apmActive == "true" {
		apm.CaptureError(c, err).Send()
	}
}

func elkLogger(msg map[string]string, level string) error {
	// Nowhere to ship to
	if elkUrl == "" {
		return nil
	}

	// Set default level if none exists
	if level == "" {
		level = "debug"
	}

	// Sends logs to a test index, if not production
	index := appEnv
	if index != "prod" {
		index = "test"
	}

	// Timestamp in ISO format
	datetime := time.Now().Format(time.RFC3339)

	// Populate remaining message details
	msg["environment"] = index
	msg["level"] = level
	msg["date"] = datetime

	// Build request body
	bodyReader, err := readerFromMap(msg)
	if err != nil {
		return err
	}

	// Set headers for request
	headers := map[string]string{
		"Content-Type": "application/json",
	}

	// Send log message
	resp, err := sendRequest(context.Background(), "POST", elkUrl, nil, headers, bodyReader, 5)
	if err != nil {
		return err
	}

	// Read the body
	body, err := readBody(resp)
	if err != nil {
		return err
	}

	// Verify status code
	if resp.StatusCode >= 400 {
		return fmt.Errorf("log message failed (Patient - %s, Status Code - %d): %s", msg["patient"], resp.StatusCode, string(body))
	}

	return nil
}

// sendWebLog ships the outcome of an evaluation along with a readable summary.
func sendWebLog(ctx context.Context, ev *Evaluation, user string) {
	// Create base log message
	message := webLogContext(ev, user)

	summary, err := renderSummary(ev)
	if err != nil {
		logger(ctx, fmt.Errorf("unable to render summary (evaluation: %s): %w", ev.ID, err))
		return
	}
	message["msg"] = summary

	level := "info"
	if ev.Degraded {
		level = "warn"
	}

	// Send log message in a separate thread to avoid slowing down the response
	go func() {
		if err := elkLogger(message, level); err != nil {
			logger(context.WithoutCancel(ctx), fmt.Errorf("%v. Evaluation: %s", err, ev.ID))
		}
	}()
}

func webLogContext(ev *Evaluation, user string) map[string]string {
	// Return map with contextual details about the evaluation
	return map[string]string{
		"application": appName,
		"version":     appVersion,
		"patient":     ev.PatientID,
		"evaluation":  ev.ID,
		"source":      string(ev.Source),
		"degraded":    strconv.FormatBool(ev.Degraded),
		"user":        user,
	}
}

// Creates a string reader from a map
func readerFromMap(m map[string]string) (*strings.Reader, error) {
	jsonBytes, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return strings.NewReader(string(jsonBytes)), nil
}
