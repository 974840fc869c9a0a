package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"

	"github.com/spf13/cobra"

	"testrig/internal/paths"
)

var cleanDryRun bool

func newCleanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove generated test and release intermediates, keeping artifacts and logs",
		Args:  cobra.NoArgs,
		RunE:  runClean,
	}

	cmd.Flags().BoolVar(&cleanDryRun, "dry-run", false, "List what would be removed without deleting")

	return cmd
}

type cleanResult struct {
	Dirs       []string `json:"dirs"`
	Files      int      `json:"files"`
	FreedBytes int64    `json:"freed_bytes"`
	DryRun     bool     `json:"dry_run"`
}

func runClean(cmd *cobra.Command, _ []string) error {
	e, err := openEngine(cmd, nil)
	if err != nil {
		return err
	}
	defer e.Close()

	out := cmd.OutOrStdout()
	result, err := measureDirs(e.CleanTargets(), out, cleanDryRun)
	if err != nil {
		return err
	}
	if !cleanDryRun {
		if err := e.Clean(); err != nil {
			return err
		}
	}
	return writeCleanResult(out, "clean", result)
}

// measureDirs totals the files below each existing dir and lists the dirs.
func measureDirs(dirs []string, out io.Writer, dryRun bool) (cleanResult, error) {
	result := cleanResult{Dirs: []string{}, DryRun: dryRun}
	for _, dir := range dirs {
		exists, err := paths.DirExists(dir)
		if err != nil {
			return result, fmt.Errorf("stat %s: %w", dir, err)
		}
		if !exists {
			continue
		}
		files, size, err := dirStats(dir)
		if err != nil {
			return result, err
		}
		result.Dirs = append(result.Dirs, dir)
		result.Files += files
		result.FreedBytes += size
		if !outputJSON {
			verb := "removing"
			if dryRun {
				verb = "would remove"
			}
			fmt.Fprintf(out, "%s %s (%d files, %s)\n", verb, dir, files, formatSize(size))
		}
	}
	return result, nil
}

func dirStats(root string) (int, int64, error) {
	var (
		files int
		size  int64
	)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		files++
		size += info.Size()
		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("walk %s: %w", root, err)
	}
	return files, size, nil
}

func writeCleanResult(out io.Writer, label string, result cleanResult) error {
	if outputJSON {
		return json.NewEncoder(out).Encode(result)
	}

	action := "complete"
	if result.DryRun {
		action = "(dry run)"
	}
	fmt.Fprintf(out, "\n%s %s: %d directories, %d files, %s freed\n",
		label, action, len(result.Dirs), result.Files, formatSize(result.FreedBytes))
	return nil
}

func formatSize(bytes int64) string {
	if bytes <= 0 {
		return "-"
	}
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)
	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
