package main

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/OpenRTM/RTM-Tutorial-sub001/dataport"
)

// cliOptions holds command-line configuration
type cliOptions struct {
	ConfigPaths     []string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
	DemoRate        float64
	DemoInterface   string
	DemoDirectory   string
}

func (o *cliOptions) bind(cmd *cobra.Command) {
	f := cmd.PersistentFlags()

	f.StringSliceVarP(&o.ConfigPaths, "config", "c",
		getEnvList("RTCD_CONFIG", nil),
		"Configuration file layers, later files override earlier ones (env: RTCD_CONFIG)")
	f.StringVar(&o.LogLevel, "log-level",
		getEnv("RTCD_LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error (env: RTCD_LOG_LEVEL)")
	f.StringVar(&o.LogFormat, "log-format",
		getEnv("RTCD_LOG_FORMAT", "json"),
		"Log format: json, text (env: RTCD_LOG_FORMAT)")
	f.DurationVar(&o.ShutdownTimeout, "shutdown-timeout",
		getEnvDuration("RTCD_SHUTDOWN_TIMEOUT", 30*time.Second),
		"Graceful shutdown timeout (env: RTCD_SHUTDOWN_TIMEOUT)")
	f.Float64Var(&o.DemoRate, "demo-rate",
		getEnvFloat("RTCD_DEMO_RATE", 10),
		"Execution rate in Hz of the demo pipeline used when no components are configured")
	f.StringVar(&o.DemoInterface, "demo-interface",
		getEnv("RTCD_DEMO_INTERFACE", dataport.InterfaceCorbaCDR),
		"Interface type of the demo pipeline connections")
	f.StringVar(&o.DemoDirectory, "demo-dir",
		getEnv("RTCD_DEMO_DIR", ""),
		"Output directory of the demo file sink")
}

func (o *cliOptions) validate() error {
	for _, path := range o.ConfigPaths {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("config file not found: %s", path)
		}
	}
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, strings.ToLower(o.LogLevel)) {
		return fmt.Errorf("invalid log level: %s", o.LogLevel)
	}
	if !slices.Contains([]string{"json", "text"}, strings.ToLower(o.LogFormat)) {
		return fmt.Errorf("invalid log format: %s", o.LogFormat)
	}
	if o.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid shutdown timeout: %s", o.ShutdownTimeout)
	}
	if o.DemoRate <= 0 {
		return fmt.Errorf("invalid demo rate: %v", o.DemoRate)
	}
	return nil
}

// Environment variable helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
