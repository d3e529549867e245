// Package importer brings previously captured stills into the current
// session as manual captures. Files are ordered by their capture timestamp
// so sequence names reflect the order the photos were actually taken.
package importer

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/barasher/go-exiftool"

	"odescreen/logging"
	"odescreen/store"
	"odescreen/types"
)

// Options defines the options for an import run
type Options struct {
	FolderPath string
	Eye        types.Eye
	DebugMode  bool
}

// Result summarizes one import run.
type Result struct {
	Imported int
	Skipped  int
	Errors   int
}

// candidate is one file queued for import.
type candidate struct {
	path     string
	taken    time.Time
	hasTaken bool
	data     []byte
	err      error
}

var importableExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// Run walks the folder, reads every importable still and appends them to
// the store as manual captures for the given eye. Files that cannot be read
// are counted and skipped, never aborting the run.
func Run(images *store.Store, options Options) (*Result, error) {
	if !options.Eye.Valid() {
		return nil, fmt.Errorf("invalid eye %q", options.Eye)
	}

	paths, skipped, err := collectFiles(options.FolderPath)
	if err != nil {
		return nil, err
	}
	if options.DebugMode {
		logging.DebugLog("Importing %d files from %s for eye %s", len(paths), options.FolderPath, options.Eye)
	}

	candidates := loadCandidates(paths)
	annotateCaptureTimes(candidates)

	// Capture-time order first, path order as the tiebreak and for files
	// without usable metadata.
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.hasTaken && b.hasTaken && !a.taken.Equal(b.taken) {
			return a.taken.Before(b.taken)
		}
		if a.hasTaken != b.hasTaken {
			return a.hasTaken
		}
		return a.path < b.path
	})

	result := &Result{Skipped: skipped}
	for _, c := range candidates {
		if c.err != nil {
			logging.LogError("Cannot import %s: %v", c.path, c.err)
			result.Errors++
			continue
		}
		if _, err := images.Append(options.Eye, types.ModeManual, 0, c.data); err != nil {
			logging.LogError("Cannot store %s: %v", c.path, err)
			result.Errors++
			continue
		}
		result.Imported++
	}
	return result, nil
}

// collectFiles walks the folder and returns the importable paths plus the
// count of files with unsupported extensions.
func collectFiles(folder string) ([]string, int, error) {
	info, err := os.Stat(folder)
	if err != nil {
		return nil, 0, fmt.Errorf("cannot access folder %s: %v", folder, err)
	}
	if !info.IsDir() {
		return nil, 0, fmt.Errorf("%s is not a folder", folder)
	}

	var paths []string
	skipped := 0
	filepath.Walk(folder, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if importableExts[strings.ToLower(filepath.Ext(path))] {
			paths = append(paths, path)
		} else {
			skipped++
		}
		return nil
	})
	return paths, skipped, nil
}

// loadCandidates reads the file contents with a bounded worker pool.
func loadCandidates(paths []string) []*candidate {
	candidates := make([]*candidate, len(paths))
	var wg sync.WaitGroup
	semaphore := make(chan struct{}, 8)

	for i, path := range paths {
		wg.Add(1)
		go func(i int, path string) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			c := &candidate{path: path}
			c.data, c.err = os.ReadFile(path)
			candidates[i] = c
		}(i, path)
	}
	wg.Wait()
	return candidates
}

// annotateCaptureTimes attaches the EXIF capture timestamp to each
// candidate. Files without usable metadata fall back to their modification
// time; a missing exiftool binary degrades the whole run the same way.
func annotateCaptureTimes(candidates []*candidate) {
	paths := make([]string, 0, len(candidates))
	byPath := make(map[string]*candidate, len(candidates))
	for _, c := range candidates {
		if c.err != nil {
			continue
		}
		paths = append(paths, c.path)
		byPath[c.path] = c
	}
	if len(paths) == 0 {
		return
	}

	et, err := exiftool.NewExiftool()
	if err != nil {
		logging.LogWarning("exiftool unavailable, ordering imports by file time: %v", err)
		fallbackToFileTimes(candidates)
		return
	}
	defer et.Close()

	for _, meta := range et.ExtractMetadata(paths...) {
		c, ok := byPath[meta.File]
		if !ok {
			continue
		}
		if meta.Err != nil {
			continue
		}
		if raw, err := meta.GetString("DateTimeOriginal"); err == nil {
			if taken, err := time.ParseInLocation("2006:01:02 15:04:05", raw, time.Local); err == nil {
				c.taken = taken
				c.hasTaken = true
			}
		}
	}
	fallbackToFileTimes(candidates)
}

// fallbackToFileTimes fills in the modification time for candidates still
// missing a capture timestamp.
func fallbackToFileTimes(candidates []*candidate) {
	for _, c := range candidates {
		if c.err != nil || c.hasTaken {
			continue
		}
		if info, err := os.Stat(c.path); err == nil {
			c.taken = info.ModTime()
			c.hasTaken = true
		}
	}
}
