package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"odescreen/analysis"
	"odescreen/camera"
	"odescreen/capture"
	"odescreen/classify"
	"odescreen/config"
	"odescreen/database"
	"odescreen/detect"
	"odescreen/importer"
	"odescreen/logging"
	"odescreen/modelcache"
	"odescreen/questionnaire"
	"odescreen/session"
	"odescreen/signalhandler"
	"odescreen/store"
	"odescreen/thumbnail"
	"odescreen/types"
	"odescreen/utils"
)

func main() {
	// Set up proper signal handling
	signalhandler.SetupHandler(logging.CloseLogger)

	// Set the optimal number of CPUs to use
	runtime.GOMAXPROCS(signalhandler.GetOptimalProcs())

	// Parse command line arguments into a map
	args := utils.ParseArguments()

	// Get the command (screen, import or stats)
	command, hasCommand := args["command"]

	// Load configuration (defaults, optional file, environment)
	cfg, err := config.Load(args["config"])
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}
	applyFlagOverrides(&cfg, args)

	// Setup debug logging if enabled
	if cfg.Debug {
		if err := logging.SetupLogger(cfg.LogFile); err != nil {
			fmt.Printf("Warning: Failed to setup logging: %v\n", err)
		} else {
			fmt.Printf("Debug mode enabled. Logging to: %s\n", cfg.LogFile)
		}
		defer logging.CloseLogger()
	}

	// Check if required arguments are missing
	showUsage := !hasCommand

	if hasCommand && command == "screen" && (args["operator"] == "" || args["subject"] == "") {
		showUsage = true
	}

	if hasCommand && command == "import" && args["folder"] == "" {
		showUsage = true
	}

	if showUsage {
		utils.PrintUsage()
		os.Exit(1)
	}

	switch command {
	case "screen":
		handleScreenCommand(args, cfg)
	case "import":
		handleImportCommand(args, cfg)
	case "stats":
		handleStatsCommand(args, cfg)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		utils.PrintUsage()
		os.Exit(1)
	}
}

// applyFlagOverrides lets command-line flags win over file and environment.
func applyFlagOverrides(cfg *config.Config, args map[string]string) {
	if v, ok := args["database"]; ok && v != "" {
		cfg.DatabasePath = v
	} else if v, ok := args["db"]; ok && v != "" {
		// Allow --db as an alias for --database
		cfg.DatabasePath = v
	}
	if v, ok := args["logfile"]; ok && v != "" {
		cfg.LogFile = v
	}
	if _, ok := args["debug"]; ok {
		cfg.Debug = true
	}
	if v, ok := args["threshold"]; ok {
		threshold, err := utils.ParseThreshold(v)
		if err != nil {
			fmt.Printf("Warning: %v\n", err)
		} else {
			cfg.DetectionThreshold = threshold
		}
	}
}

// initDatabaseWithRetry opens the session database, retrying transient
// failures such as a locked file.
func initDatabaseWithRetry(dbPath string) *sql.DB {
	var db *sql.DB
	var err error
	const maxRetries = 3
	for i := 0; i < maxRetries; i++ {
		db, err = database.InitDatabase(dbPath)
		if err == nil {
			return db
		}

		if i < maxRetries-1 {
			log.Printf("Error initializing database (attempt %d/%d): %v - retrying...",
				i+1, maxRetries, err)
			time.Sleep(time.Second * time.Duration(i+1))
		}
	}
	log.Fatalf("Error initializing database after %d attempts: %v", maxRetries, err)
	return nil
}

// loadModels resolves both networks through the model cache.
func loadModels(cfg config.Config) (*detect.Detector, *classify.Classifier) {
	cache, err := modelcache.New(cfg.ModelCacheDir)
	if err != nil {
		log.Fatalf("Error opening model cache: %v", err)
	}

	detectorPath, err := cache.Resolve(cfg.DetectorModelPath, cfg.DetectorModelURL)
	if err != nil {
		log.Fatalf("Error resolving detection model: %v", err)
	}
	classifierPath, err := cache.Resolve(cfg.ClassifierModelPath, cfg.ClassifierModelURL)
	if err != nil {
		log.Fatalf("Error resolving classification model: %v", err)
	}

	detector, err := detect.New(detectorPath)
	if err != nil {
		log.Fatalf("Error loading detection model: %v", err)
	}
	classifier, err := classify.New(classifierPath, cfg.ClassifierInput)
	if err != nil {
		log.Fatalf("Error loading classification model: %v", err)
	}
	return detector, classifier
}

func handleScreenCommand(args map[string]string, cfg config.Config) {
	eye, err := utils.ParseEye(args["eye"])
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	duration := utils.ParseDuration(args["duration"], 20)

	db := initDatabaseWithRetry(cfg.DatabasePath)
	defer db.Close()

	detector, classifier := loadModels(cfg)
	defer detector.Close()
	defer classifier.Close()

	source, err := camera.Open(cfg.CameraDevice, cfg.WorkingWidth, cfg.WorkingHeight)
	if err != nil {
		log.Fatalf("Error opening camera: %v", err)
	}
	defer source.Close()

	// Torch support varies by device; a failure degrades, never aborts.
	if err := source.SetTorch(true); err != nil {
		fmt.Printf("Warning: %v\n", err)
		logging.LogWarning("torch unavailable: %v", err)
	}

	images := store.New()
	controller := capture.NewController(source, detector, images, capture.Options{
		DetectionThreshold: cfg.DetectionThreshold,
		Debounce:           time.Duration(cfg.DebounceMillis) * time.Millisecond,
		PadRatio:           cfg.PadRatio,
		WorkingWidth:       cfg.WorkingWidth,
		WorkingHeight:      cfg.WorkingHeight,
		FlipDisplay:        cfg.FlipDisplay,
	})
	orchestrator := analysis.NewOrchestrator(classifier, analysis.Options{
		TopK:                    cfg.TopK,
		ClassificationThreshold: cfg.ClassificationThreshold,
	})
	machine := session.New(images, controller, orchestrator, database.NewSink(db))

	ctx := context.Background()
	startTime := time.Now()

	if err := machine.Begin(ctx, args["operator"], args["subject"]); err != nil {
		log.Fatalf("Error starting session: %v", err)
	}
	if err := controller.SetEye(eye); err != nil {
		log.Fatalf("Error selecting eye: %v", err)
	}

	fmt.Printf("Session %s started for subject %s\n", machine.ID(), args["subject"])
	fmt.Printf("Auto-capturing %s eye for %d seconds (threshold %.2f)...\n",
		eye, duration, cfg.DetectionThreshold)

	if err := controller.SetDetectionEnabled(true); err != nil {
		log.Fatalf("Error enabling detection: %v", err)
	}
	if err := controller.SetAutoCapture(true); err != nil {
		log.Fatalf("Error arming auto-capture: %v", err)
	}
	time.Sleep(time.Duration(duration) * time.Second)
	controller.SetAutoCapture(false)
	controller.SetDetectionEnabled(false)

	fmt.Printf("Captured %d image(s): %d right, %d left\n",
		images.Count(), images.CountForEye(types.EyeRight), images.CountForEye(types.EyeLeft))
	if images.Count() == 0 {
		log.Fatalf("No images captured; nothing to analyze")
	}

	if err := machine.Transition(ctx, session.StageReview); err != nil {
		log.Fatalf("Error entering review: %v", err)
	}
	writeThumbnails(images, args["thumbs"])

	finishSession(ctx, machine, args)

	fmt.Printf("\nTotal session time: %v\n", time.Since(startTime))
	printStats(db, args["subject"])
}

func handleImportCommand(args map[string]string, cfg config.Config) {
	eye, err := utils.ParseEye(args["eye"])
	if err != nil {
		log.Fatalf("Error: %v", err)
	}

	folderPath := args["folder"]
	folderInfo, err := os.Stat(folderPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Fatalf("Folder path does not exist: %s", folderPath)
		}
		log.Fatalf("Cannot access folder path: %s (%v)", folderPath, err)
	}
	if !folderInfo.IsDir() {
		log.Fatalf("Path is not a directory: %s", folderPath)
	}

	db := initDatabaseWithRetry(cfg.DatabasePath)
	defer db.Close()

	detector, classifier := loadModels(cfg)
	defer detector.Close()
	defer classifier.Close()

	// Imports run without a camera; identity defaults keep the session valid.
	operator := args["operator"]
	if operator == "" {
		operator = "importer"
	}
	subject := args["subject"]
	if subject == "" {
		subject = filepath.Base(folderPath)
	}

	images := store.New()
	orchestrator := analysis.NewOrchestrator(classifier, analysis.Options{
		TopK:                    cfg.TopK,
		ClassificationThreshold: cfg.ClassificationThreshold,
	})
	machine := session.New(images, noCamera{}, orchestrator, database.NewSink(db))

	ctx := context.Background()
	if err := machine.Begin(ctx, operator, subject); err != nil {
		log.Fatalf("Error starting session: %v", err)
	}

	result, err := importer.Run(images, importer.Options{
		FolderPath: folderPath,
		Eye:        eye,
		DebugMode:  cfg.Debug,
	})
	if err != nil {
		log.Fatalf("Error importing folder: %v", err)
	}
	fmt.Printf("Imported %d image(s) for the %s eye (%d skipped, %d errors)\n",
		result.Imported, eye, result.Skipped, result.Errors)
	if result.Imported == 0 {
		log.Fatalf("Nothing imported; nothing to analyze")
	}

	if err := machine.Transition(ctx, session.StageReview); err != nil {
		log.Fatalf("Error entering review: %v", err)
	}
	writeThumbnails(images, args["thumbs"])

	finishSession(ctx, machine, args)
	printStats(db, subject)
}

// finishSession runs analysis, fills the questionnaire and submits.
func finishSession(ctx context.Context, machine *session.Machine, args map[string]string) {
	if err := machine.Transition(ctx, session.StageAnalysis); err != nil {
		log.Fatalf("Error entering analysis: %v", err)
	}
	if err := machine.RunAnalysis(ctx); err != nil {
		log.Fatalf("Error running analysis: %v", err)
	}

	fmt.Println("\nAnalysis results:")
	results := machine.Analysis()
	for _, eye := range []types.Eye{types.EyeRight, types.EyeLeft} {
		res := results[eye]
		if res.ValidVotes > 0 {
			fmt.Printf("  %-5s : %s (%s, ratio %.2f over %d votes)\n",
				eye, res.Verdict, res.VerdictText, res.VoteRatio, res.ValidVotes)
		} else {
			fmt.Printf("  %-5s : %s (%s)\n", eye, res.Verdict, res.VerdictText)
		}
	}

	// The questionnaire comes from a file for unattended runs; without one
	// the session stops before submission so an operator can follow up.
	answersPath := args["answers"]
	if answersPath == "" {
		fmt.Println("\nNo answers file given; session not submitted.")
		return
	}
	answers, comments, err := questionnaire.LoadAnswersFile(answersPath)
	if err != nil {
		log.Fatalf("Error loading answers file: %v", err)
	}

	if err := machine.Transition(ctx, session.StageQuestionnaire); err != nil {
		log.Fatalf("Error entering questionnaire: %v", err)
	}
	if err := machine.CompleteQuestionnaire(answers, comments); err != nil {
		log.Fatalf("Error completing questionnaire: %v", err)
	}
	if err := machine.Submit(ctx); err != nil {
		log.Fatalf("Error submitting session: %v", err)
	}
	fmt.Printf("\nSession %s submitted.\n", machine.ID())
}

// writeThumbnails renders review previews into the given directory.
func writeThumbnails(images *store.Store, dir string) {
	if dir == "" {
		return
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		fmt.Printf("Warning: cannot create thumbnail directory: %v\n", err)
		return
	}

	written := 0
	for _, img := range images.Images() {
		thumb, err := thumbnail.Render(img.PixelData, thumbnail.MaxSide)
		if err != nil {
			logging.LogError("Cannot render thumbnail for %s: %v", img.SequenceName, err)
			continue
		}
		path := filepath.Join(dir, img.SequenceName+".jpg")
		if err := os.WriteFile(path, thumb, 0644); err != nil {
			logging.LogError("Cannot write thumbnail %s: %v", path, err)
			continue
		}
		written++
	}
	fmt.Printf("Wrote %d thumbnail(s) to %s\n", written, dir)
}

func printStats(db *sql.DB, subjectID string) {
	stats, err := database.GetSessionStats(db, subjectID)
	if err != nil || stats == nil {
		return
	}
	fmt.Printf("\nSummary:\n")
	fmt.Printf("- Sessions submitted: %d\n", stats.TotalSessions)
	fmt.Printf("- Images recorded: %d\n", stats.TotalImages)
	fmt.Printf("- Sessions with suspected edema: %d\n", stats.ODESuspected)
}

func handleStatsCommand(args map[string]string, cfg config.Config) {
	if _, err := os.Stat(cfg.DatabasePath); os.IsNotExist(err) {
		log.Fatalf("Database does not exist: %s. Run a screening session first.", cfg.DatabasePath)
	}

	db, err := database.OpenDatabase(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Error opening database: %v", err)
	}
	defer db.Close()

	stats, err := database.GetSessionStats(db, args["subject"])
	if err != nil {
		log.Fatalf("Error reading statistics: %v", err)
	}

	if args["subject"] != "" {
		fmt.Printf("Statistics for subject %s:\n", args["subject"])
	} else {
		fmt.Println("Statistics for all subjects:")
	}
	fmt.Printf("- Sessions submitted: %d\n", stats.TotalSessions)
	fmt.Printf("- Images recorded: %d\n", stats.TotalImages)
	fmt.Printf("- Sessions with suspected edema: %d\n", stats.ODESuspected)
}

// noCamera satisfies the capture stage interface for camera-less imports.
type noCamera struct{}

func (noCamera) Start(ctx context.Context) error { return nil }
func (noCamera) Stop()                           {}
