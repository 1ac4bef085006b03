// cmd/checkavail/main.go
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"lvbot/pkg/availability"
	"lvbot/pkg/browser"
	"lvbot/pkg/config"
	"lvbot/pkg/log"
)

const (
	flagCourtsParameterName   = "courts"
	flagCourtsParameterUsage  = "comma-separated court numbers (default: all configured)"
	flagOutputParameterName   = "out"
	flagOutputParameterUsage  = "path for the JSON result (default: stdout)"
	flagTimeoutParameterName  = "timeout"
	flagTimeoutParameterUsage = "overall timeout for the check"
)

func main() {
	courtsValue := flag.String(flagCourtsParameterName, "", flagCourtsParameterUsage)
	outputFilePath := flag.String(flagOutputParameterName, "", flagOutputParameterUsage)
	timeoutValue := flag.Duration(flagTimeoutParameterName, 3*time.Minute, flagTimeoutParameterUsage)
	flag.Parse()

	cfg, configError := config.Load()
	if configError != nil {
		fmt.Fprintf(os.Stderr, "FATAL: loading configuration: %v\n", configError)
		os.Exit(1)
	}
	if initError := log.Init(false); initError != nil {
		fmt.Fprintf(os.Stderr, "FATAL: initializing logging: %v\n", initError)
		os.Exit(1)
	}
	defer log.Sync()
	logger := log.L()

	courts := cfg.CourtNumbers()
	if *courtsValue != "" {
		parsed, parseError := parseCourts(*courtsValue)
		if parseError != nil {
			logger.Fatal("invalid_courts_flag", zap.String("value", *courtsValue), zap.Error(parseError))
		}
		courts = parsed
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeoutValue)
	defer cancel()

	pool := browser.NewPool(cfg, courts, log.Named("browser"))
	if startError := pool.Start(ctx); startError != nil {
		logger.Fatal("browser_pool_start_failed", zap.Error(startError))
	}
	defer pool.Stop()

	checker := availability.NewChecker(pool, cfg, log.Named("availability"))
	matrix := checker.CheckAvailability(ctx, availability.CheckOptions{Courts: courts})

	encoded, marshalError := json.MarshalIndent(matrix, "", "  ")
	if marshalError != nil {
		logger.Fatal("result_marshal_failed", zap.Error(marshalError))
	}

	if *outputFilePath == "" {
		fmt.Println(string(encoded))
		return
	}
	if writeError := os.WriteFile(*outputFilePath, encoded, 0o644); writeError != nil {
		logger.Fatal("result_write_failed", zap.String("path", *outputFilePath), zap.Error(writeError))
	}
	logger.Info("result_written", zap.String("path", *outputFilePath), zap.Int("courts", len(matrix)))
}

func parseCourts(raw string) ([]int, error) {
	var courts []int
	for _, token := range strings.Split(raw, ",") {
		court, parseError := strconv.Atoi(strings.TrimSpace(token))
		if parseError != nil {
			return nil, parseError
		}
		courts = append(courts, court)
	}
	return courts, nil
}
