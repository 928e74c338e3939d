package assail

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperpolymath/panic-attacker/internal/types"
)

// workspaceMarkers declare a root that contains sub-packages.
var workspaceMarkers = []string{"go.work", "pnpm-workspace.yaml", "Cargo.toml"}

// packageManifests mark a directory as a scannable sub-package.
var packageManifests = []string{
	"go.mod", "Cargo.toml", "package.json", "mix.exs", "pyproject.toml",
	"dune-project", "rebar.config", "gleam.toml", "build.zig",
}

// IsWorkspace reports whether root carries a workspace manifest with at
// least one sub-package underneath.
func IsWorkspace(root string) bool {
	marked := false
	for _, marker := range workspaceMarkers {
		if _, err := os.Stat(filepath.Join(root, marker)); err == nil {
			marked = true
			break
		}
	}
	if !marked {
		return false
	}
	return len(subPackages(root)) > 0
}

func subPackages(root string) []string {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil
	}
	var pkgs []string
	for _, entry := range entries {
		if !entry.IsDir() || skipDirs[entry.Name()] || entry.Name()[0] == '.' {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		for _, manifest := range packageManifests {
			if _, err := os.Stat(filepath.Join(dir, manifest)); err == nil {
				pkgs = append(pkgs, dir)
				break
			}
		}
	}
	sort.Strings(pkgs)
	return pkgs
}

// AnalyzeWorkspace scans every sub-package and aggregates totals. Packages
// run in parallel; each gets its own analyzer, so no state is shared
// between scans.
func AnalyzeWorkspace(ctx context.Context, root string, opts Options, topOffendersLimit int, logger *zap.Logger) (*types.WorkspaceReport, error) {
	pkgs := subPackages(root)
	if len(pkgs) == 0 {
		return nil, fmt.Errorf("no sub-packages found under %s", root)
	}

	reports := make([]*types.AssailReport, len(pkgs))
	g, gctx := errgroup.WithContext(ctx)
	parallelism := opts.Parallelism
	if parallelism < 1 {
		parallelism = 1
	}
	g.SetLimit(parallelism)
	for i, pkg := range pkgs {
		i, pkg := i, pkg
		g.Go(func() error {
			analyzer, err := NewAnalyzer(pkg, opts, logger)
			if err != nil {
				return fmt.Errorf("package %s: %w", pkg, err)
			}
			analysis, err := analyzer.Analyze(gctx)
			if err != nil {
				return fmt.Errorf("package %s: %w", pkg, err)
			}
			reports[i] = analysis.Report
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ws := &types.WorkspaceReport{
		SchemaVersion: types.SchemaVersion,
		GeneratedAt:   time.Now().UTC(),
		Root:          root,
	}
	for _, report := range reports {
		ws.Packages = append(ws.Packages, *report)
		ws.Totals.Merge(report.Statistics)
		ws.TopOffenders = append(ws.TopOffenders, types.PackageRisk{
			Package:   filepath.Base(report.ProgramPath),
			RiskScore: packageRisk(report),
		})
	}
	sort.Slice(ws.TopOffenders, func(i, j int) bool {
		if ws.TopOffenders[i].RiskScore != ws.TopOffenders[j].RiskScore {
			return ws.TopOffenders[i].RiskScore > ws.TopOffenders[j].RiskScore
		}
		return ws.TopOffenders[i].Package < ws.TopOffenders[j].Package
	})
	if topOffendersLimit > 0 && len(ws.TopOffenders) > topOffendersLimit {
		ws.TopOffenders = ws.TopOffenders[:topOffendersLimit]
	}
	return ws, nil
}

// packageRisk mirrors the per-file risk weighting at package granularity.
func packageRisk(report *types.AssailReport) float64 {
	s := report.Statistics
	risk := 3.0*float64(s.UnsafeBlocks) +
		2.5*float64(s.PanicSites) +
		2.0*float64(s.ThreadingConstructs) +
		1.5*float64(s.IOOperations) +
		1.0*float64(s.UnwrapCalls) +
		1.0*float64(s.AllocationSites)
	for _, wp := range report.WeakPoints {
		risk += float64(wp.Severity)
	}
	return risk
}
