// Package sweep batch-scans every git repository under a parent directory
// and summarises the results riskiest-first.
package sweep

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperpolymath/panic-attacker/internal/assail"
	"github.com/hyperpolymath/panic-attacker/internal/logging"
	"github.com/hyperpolymath/panic-attacker/internal/types"
)

// Config controls one sweep run.
type Config struct {
	Directory    string
	FindingsOnly bool
	MinFindings  int
	Parallelism  int
	Analyzer     assail.Options
}

// RepoResult summarises one repository scan.
type RepoResult struct {
	RepoPath       string `json:"repo_path"`
	RepoName       string `json:"repo_name"`
	WeakPointCount int    `json:"weak_point_count"`
	CriticalCount  int    `json:"critical_count"`
	HighCount      int    `json:"high_count"`
	TotalFiles     int    `json:"total_files"`
	TotalLines     int    `json:"total_lines"`
	Error          string `json:"error,omitempty"`
}

// Report is the complete sweep output.
type Report struct {
	SchemaVersion     string       `json:"schema_version"`
	GeneratedAt       time.Time    `json:"generated_at"`
	Directory         string       `json:"directory"`
	ReposScanned      int          `json:"repos_scanned"`
	ReposWithFindings int          `json:"repos_with_findings"`
	TotalWeakPoints   int          `json:"total_weak_points"`
	TotalCritical     int          `json:"total_critical"`
	Results           []RepoResult `json:"results"`
}

// discoverRepos finds immediate subdirectories containing .git.
func discoverRepos(directory string) ([]string, error) {
	info, err := os.Stat(directory)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", directory)
	}
	entries, err := os.ReadDir(directory)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", directory, err)
	}
	var repos []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		gitDir := filepath.Join(directory, entry.Name(), ".git")
		if gitInfo, err := os.Stat(gitDir); err == nil && gitInfo.IsDir() {
			repos = append(repos, filepath.Join(directory, entry.Name()))
		}
	}
	sort.Strings(repos)
	return repos, nil
}

// Run scans every discovered repository, in parallel, and sorts results by
// weak-point count descending.
func Run(ctx context.Context, cfg Config, logger *zap.Logger) (*Report, error) {
	logger = logging.OrNop(logger).Named("sweep")
	repos, err := discoverRepos(cfg.Directory)
	if err != nil {
		return nil, err
	}

	results := make([]RepoResult, len(repos))
	g, gctx := errgroup.WithContext(ctx)
	parallelism := cfg.Parallelism
	if parallelism < 1 {
		parallelism = 1
	}
	g.SetLimit(parallelism)

	for i, repoPath := range repos {
		i, repoPath := i, repoPath
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			result := RepoResult{RepoPath: repoPath, RepoName: filepath.Base(repoPath)}
			analyzer, err := assail.NewAnalyzer(repoPath, cfg.Analyzer, logger)
			if err != nil {
				result.Error = err.Error()
				results[i] = result
				return nil
			}
			analysis, err := analyzer.Analyze(gctx)
			if err != nil {
				result.Error = err.Error()
				results[i] = result
				return nil
			}
			rep := analysis.Report
			result.WeakPointCount = len(rep.WeakPoints)
			result.TotalFiles = len(rep.FileStatistics)
			result.TotalLines = rep.Statistics.TotalLines
			for _, wp := range rep.WeakPoints {
				switch wp.Severity {
				case types.SeverityCritical:
					result.CriticalCount++
				case types.SeverityHigh:
					result.HighCount++
				}
			}
			results[i] = result
			logger.Debug("repo scanned",
				zap.String("repo", result.RepoName),
				zap.Int("weak_points", result.WeakPointCount))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].WeakPointCount != results[j].WeakPointCount {
			return results[i].WeakPointCount > results[j].WeakPointCount
		}
		return results[i].RepoName < results[j].RepoName
	})

	filtered := results[:0]
	for _, result := range results {
		if cfg.FindingsOnly && result.WeakPointCount == 0 && result.Error == "" {
			continue
		}
		if result.WeakPointCount < cfg.MinFindings && result.Error == "" {
			continue
		}
		filtered = append(filtered, result)
	}

	report := &Report{
		SchemaVersion: types.SchemaVersion,
		GeneratedAt:   time.Now().UTC(),
		Directory:     cfg.Directory,
		ReposScanned:  len(repos),
		Results:       filtered,
	}
	for _, result := range filtered {
		if result.WeakPointCount > 0 {
			report.ReposWithFindings++
		}
		report.TotalWeakPoints += result.WeakPointCount
		report.TotalCritical += result.CriticalCount
	}
	return report, nil
}
