package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"odescreen/types"
)

// ParseArguments converts command-line arguments into a map of flags and values
func ParseArguments() map[string]string {
	args := make(map[string]string)

	// First, identify the command (screen/import/stats)
	command := ""
	commandIndex := -1
	for i := 1; i < len(os.Args); i++ {
		if os.Args[i] == "screen" || os.Args[i] == "import" || os.Args[i] == "stats" {
			command = os.Args[i]
			commandIndex = i
			break
		}
	}

	if command != "" {
		args["command"] = command
	}

	// Process all arguments, skipping the command
	for i := 1; i < len(os.Args); i++ {
		if i == commandIndex {
			continue
		}

		arg := os.Args[i]

		// Handle flags with equals sign (--key=value)
		if strings.HasPrefix(arg, "--") && strings.Contains(arg, "=") {
			parts := strings.SplitN(arg, "=", 2)
			flagName := strings.TrimPrefix(parts[0], "--")
			args[flagName] = parts[1]
			continue
		}

		// Handle flags without equals sign (--key value)
		if strings.HasPrefix(arg, "--") {
			flagName := strings.TrimPrefix(arg, "--")

			// Check if this is a boolean flag (no value)
			if i+1 >= len(os.Args) || strings.HasPrefix(os.Args[i+1], "--") {
				args[flagName] = "true"
			} else {
				// The next argument is the value
				args[flagName] = os.Args[i+1]
				i++ // Skip the value in the next iteration
			}
		}
	}

	return args
}

// GetDefaultDatabasePath returns the default path for the session database
func GetDefaultDatabasePath() string {
	// Get the executable path
	exePath, err := os.Executable()
	if err != nil {
		// Fallback to current directory if executable path can't be determined
		return "odescreen.db"
	}

	// Return the default database path next to the executable
	return filepath.Join(filepath.Dir(exePath), "odescreen.db")
}

// PrintUsage outputs the command-line usage instructions
func PrintUsage() {
	fmt.Printf("Usage:\n")
	fmt.Printf("  %s screen --operator=ID --subject=ID [--eye=SIDE] [--duration=SECONDS] [--answers=PATH] [--config=PATH] [--database=PATH] [--debug] [--logfile=PATH]\n", os.Args[0])
	fmt.Printf("  %s import --folder=PATH --eye=SIDE [--operator=ID] [--subject=ID] [--answers=PATH] [--database=PATH] [--debug] [--logfile=PATH]\n", os.Args[0])
	fmt.Printf("  %s stats [--subject=ID] [--database=PATH]\n", os.Args[0])
	fmt.Printf("\nParameters:\n")
	fmt.Printf("  --operator    : Operator identifier for the session\n")
	fmt.Printf("  --subject     : Subject identifier for the session\n")
	fmt.Printf("  --eye         : Eye side to capture (left or right, default: right)\n")
	fmt.Printf("  --duration    : Auto-capture window per run in seconds (default: 20)\n")
	fmt.Printf("  --folder      : Path to folder containing stills to import\n")
	fmt.Printf("  --answers     : Path to a YAML questionnaire answers file\n")
	fmt.Printf("  --config      : Path to a YAML configuration file\n")
	fmt.Printf("  --database    : Path to the session database (default: %s)\n", GetDefaultDatabasePath())
	fmt.Printf("  --threshold   : Detection confidence threshold (0.0-1.0)\n")
	fmt.Printf("  --debug       : Enable debug mode (logs detailed information)\n")
	fmt.Printf("  --logfile     : Specify custom log file path (default: odescreen.log)\n")
	fmt.Printf("\nExamples:\n")
	fmt.Printf("  %s screen --operator=op7 --subject=s042 --eye=right --duration=15 --answers=answers.yaml\n", os.Args[0])
	fmt.Printf("  %s import --folder=/data/stills --eye=left --debug\n", os.Args[0])
	fmt.Printf("  %s stats --subject=s042\n", os.Args[0])
}

// ParseThreshold parses and validates the threshold value from string
func ParseThreshold(thresholdStr string) (float64, error) {
	parsedThreshold, err := strconv.ParseFloat(thresholdStr, 64)
	if err != nil || parsedThreshold < 0 || parsedThreshold > 1 {
		return 0.8, fmt.Errorf("Invalid threshold value '%s', using default (0.8)", thresholdStr)
	}
	return parsedThreshold, nil
}

// ParseEye parses an eye side flag value ("left"/"right", any case)
func ParseEye(eyeStr string) (types.Eye, error) {
	switch strings.ToUpper(strings.TrimSpace(eyeStr)) {
	case "LEFT", "L":
		return types.EyeLeft, nil
	case "RIGHT", "R", "":
		return types.EyeRight, nil
	}
	return "", fmt.Errorf("invalid eye %q, expected left or right", eyeStr)
}

// ParseDuration parses a positive whole number of seconds
func ParseDuration(durationStr string, fallback int) int {
	seconds, err := strconv.Atoi(durationStr)
	if err != nil || seconds < 1 {
		return fallback
	}
	return seconds
}
