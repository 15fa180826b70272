package cli

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/vk/metalus/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("metalus", flag.ContinueOnError)
	flagSet.SetOutput(output)

	// Custom usage/help text function
	flagSet.Usage = func() {
		fmt.Fprint(output, `
Metalus - a declarative pipeline execution driver.

Usage:
  metalus [options] [APPLICATION_PATH]

Arguments:
  APPLICATION_PATH
    Path to an application file (.json, .yaml or .hcl).

Options:
`)
		flagSet.PrintDefaults()
	}

	appFlag := flagSet.String("application", "", "Path to the application file.")
	aFlag := flagSet.String("a", "", "Path to the application file (shorthand).")
	inlineFlag := flagSet.String("application-json", "", "Inline application JSON document.")
	loaderFlag := flagSet.String("loader", "", "Application loader. Options: 'json', 'yaml' or 'hcl'. Defaults to the file extension.")
	logFormatFlag := flagSet.String("log-format", "json", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	workersFlag := flagSet.Int("workers", 4, "Number of concurrent workers for the plan scheduler.")
	strictFlag := flagSet.Bool("strict", true, "Let running sibling executions finish after a failure.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	path := ""
	if *appFlag != "" {
		path = *appFlag
	} else if *aFlag != "" {
		path = *aFlag
	} else if flagSet.NArg() > 0 {
		path = flagSet.Arg(0)
	}
	slog.Debug("Application path determined.", "path", path)

	if path == "" && *inlineFlag == "" {
		slog.Debug("No application provided, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}

	loader := strings.ToLower(*loaderFlag)
	switch loader {
	case "", "json", "yaml", "hcl":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid loader: must be 'json', 'yaml' or 'hcl'"}
	}

	if *workersFlag < 1 {
		return nil, false, &ExitError{Code: 2, Message: "workers must be at least 1"}
	}
	slog.Debug("CLI parameter validation complete.")

	return &app.Config{
		ApplicationPath: path,
		ApplicationJSON: *inlineFlag,
		Loader:          loader,
		LogFormat:       logFormat,
		LogLevel:        logLevel,
		WorkerCount:     *workersFlag,
		Strict:          *strictFlag,
	}, false, nil
}
