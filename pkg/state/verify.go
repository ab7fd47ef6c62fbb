// pkg/state/verify.go
package state

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/David-Botos/snowplan/pkg/ddl"
)

// Discrepancy kinds reported by the verifier.
const (
	DiscrepancyMissingFile  = "missing file"
	DiscrepancyHashMismatch = "hash mismatch"
	DiscrepancyOrphanFile   = "orphan file"
)

// Discrepancy is one disagreement between the state snapshot and the
// definitions tree. Key is empty for orphan files, which by definition
// have no record.
type Discrepancy struct {
	Key      string
	FilePath string
	Kind     string
}

// VerificationReport summarizes one integrity pass.
type VerificationReport struct {
	Objects       int
	Files         int
	Discrepancies []Discrepancy
	StartTime     time.Time
	EndTime       time.Time
	TotalDuration time.Duration
}

// OK reports whether snapshot and tree agree.
func (r *VerificationReport) OK() bool {
	return len(r.Discrepancies) == 0
}

// Complete finalizes the report and computes the total duration.
func (r *VerificationReport) Complete() {
	r.EndTime = time.Now()
	r.TotalDuration = r.EndTime.Sub(r.StartTime)
}

// Render formats the verification report for terminal output.
func (r *VerificationReport) Render() string {
	var b strings.Builder
	b.WriteString(strings.Repeat("-", 60))
	b.WriteString("\nSTATE VERIFICATION:\n")
	fmt.Fprintf(&b, "• %d object(s) checked against %d definition file(s).\n", r.Objects, r.Files)
	if r.OK() {
		b.WriteString("• No discrepancies.\n")
		return b.String()
	}
	for _, d := range r.Discrepancies {
		if d.Key != "" {
			fmt.Fprintf(&b, "• %s: %s (%s)\n", d.Kind, d.Key, d.FilePath)
		} else {
			fmt.Fprintf(&b, "• %s: %s\n", d.Kind, d.FilePath)
		}
	}
	return b.String()
}

// Verifier cross-checks the state snapshot against the definitions tree:
// every record's exported file must exist and hash back to the recorded
// fingerprint, and every definition file must be claimed by a record.
// It runs entirely offline; hand edits between a refresh and a plan
// surface here instead of as puzzling plan items.
type Verifier struct {
	store  *Store
	root   string
	logger *zap.Logger
}

// NewVerifier creates a verifier over a state store and a definitions root.
func NewVerifier(store *Store, root string) *Verifier {
	return &Verifier{
		store:  store,
		root:   root,
		logger: zap.L().Named("state-verifier"),
	}
}

// Verify loads the snapshot, checks every record's file, then walks the
// tree for files no record claims. Records are visited in key order so
// repeated runs report discrepancies identically.
func (v *Verifier) Verify() (*VerificationReport, error) {
	report := &VerificationReport{StartTime: time.Now()}

	if err := v.store.Load(); err != nil {
		return nil, err
	}
	objects := v.store.Objects()
	report.Objects = len(objects)

	keys := make([]string, 0, len(objects))
	for k := range objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	claimed := make(map[string]bool, len(objects))
	for _, key := range keys {
		record := objects[key]
		claimed[filepath.Clean(record.FilePath)] = true

		raw, err := os.ReadFile(record.FilePath)
		if os.IsNotExist(err) {
			v.record(report, Discrepancy{Key: key, FilePath: record.FilePath, Kind: DiscrepancyMissingFile})
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read definition %s: %w", record.FilePath, err)
		}
		if ddl.HashDDL(string(raw)) != record.Hash {
			v.record(report, Discrepancy{Key: key, FilePath: record.FilePath, Kind: DiscrepancyHashMismatch})
		}
	}

	err := filepath.WalkDir(v.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == v.root {
				return fs.SkipAll
			}
			return err
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			return nil
		}
		report.Files++
		if !claimed[filepath.Clean(path)] {
			v.record(report, Discrepancy{FilePath: path, Kind: DiscrepancyOrphanFile})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	report.Complete()
	if report.OK() {
		v.logger.Info("State verification passed",
			zap.Int("objects", report.Objects),
			zap.Int("files", report.Files),
			zap.Duration("duration", report.TotalDuration))
	} else {
		v.logger.Warn("State verification found discrepancies",
			zap.Int("objects", report.Objects),
			zap.Int("files", report.Files),
			zap.Int("discrepancies", len(report.Discrepancies)))
	}
	return report, nil
}

func (v *Verifier) record(report *VerificationReport, d Discrepancy) {
	report.Discrepancies = append(report.Discrepancies, d)
	v.logger.Warn("State discrepancy",
		zap.String("kind", d.Kind),
		zap.String("key", d.Key),
		zap.String("file", d.FilePath))
}
