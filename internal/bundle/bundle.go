// Package bundle loads the four preprocessed CSVs the classifier consumes,
// either from an uploaded ZIP archive or from a data directory.
package bundle

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/urban-texture/internal/table"
)

// Names of the files every upload must carry.
const (
	MergedFile       = "merged.csv"
	PercentilesFile  = "metrics_with_percentiles.csv"
	StandardizedFile = "standardized.csv"
	BuildingsFile    = "buildings.csv"
)

// RequiredFiles lists the expected archive members in reporting order.
var RequiredFiles = []string{MergedFile, PercentilesFile, StandardizedFile, BuildingsFile}

// Bundle holds the tables produced by the preprocessing stage.
type Bundle struct {
	Merged       *table.Table
	Percentiles  *table.Table
	Standardized *table.Table
	Buildings    *table.Table
}

// Summary reports the row counts of a bundle.
type Summary struct {
	Merged       int `json:"merged" yaml:"merged"`
	Percentiles  int `json:"metrics_with_percentiles" yaml:"metrics_with_percentiles"`
	Standardized int `json:"standardized" yaml:"standardized"`
	Buildings    int `json:"buildings" yaml:"buildings"`
}

// Summary returns row counts for each table.
func (b *Bundle) Summary() Summary {
	return Summary{
		Merged:       b.Merged.Len(),
		Percentiles:  b.Percentiles.Len(),
		Standardized: b.Standardized.Len(),
		Buildings:    b.Buildings.Len(),
	}
}

// ErrMissingFiles matches any *MissingFilesError.
var ErrMissingFiles = eris.New("bundle: missing files")

// MissingFilesError reports required files absent from an upload.
type MissingFilesError struct {
	Missing []string
}

func (e *MissingFilesError) Error() string {
	return fmt.Sprintf("Missing files in the ZIP: %s", strings.Join(e.Missing, ", "))
}

// Is reports whether target is ErrMissingFiles.
func (e *MissingFilesError) Is(target error) bool {
	return target == ErrMissingFiles
}

// ReadZIP validates an archive held in memory and loads its tables. When a
// required file is absent it returns *MissingFilesError and no tables.
func ReadZIP(ctx context.Context, data []byte, opts table.CSVOptions) (*Bundle, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, eris.Wrap(err, "bundle: open archive")
	}
	return readArchive(ctx, zr, opts)
}

// ReadZIPFile is ReadZIP for an archive on disk.
func ReadZIPFile(ctx context.Context, zipPath string, opts table.CSVOptions) (*Bundle, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, eris.Wrap(err, "bundle: open archive")
	}
	defer r.Close() //nolint:errcheck

	return readArchive(ctx, &r.Reader, opts)
}

func readArchive(ctx context.Context, zr *zip.Reader, opts table.CSVOptions) (*Bundle, error) {
	members := indexMembers(zr)

	var missing []string
	for _, name := range RequiredFiles {
		if _, ok := members[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingFilesError{Missing: missing}
	}

	tables := make(map[string]*table.Table, len(RequiredFiles))
	for _, name := range RequiredFiles {
		t, err := readMember(ctx, members[name], opts)
		if err != nil {
			return nil, err
		}
		tables[name] = t
	}

	b := fromTables(tables)
	zap.L().Debug("bundle: archive loaded", zap.Any("rows", b.Summary()))
	return b, nil
}

// indexMembers maps required base names to archive entries. A root-level
// entry with the exact name wins; otherwise the first entry inside a folder
// with that base name is used. macOS resource forks are ignored.
func indexMembers(zr *zip.Reader) map[string]*zip.File {
	members := make(map[string]*zip.File, len(RequiredFiles))
	nested := make(map[string]*zip.File, len(RequiredFiles))
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || strings.HasPrefix(f.Name, "__MACOSX/") {
			continue
		}
		if !strings.Contains(f.Name, "/") {
			if _, seen := members[f.Name]; !seen {
				members[f.Name] = f
			}
			continue
		}
		base := path.Base(f.Name)
		if _, seen := nested[base]; !seen {
			nested[base] = f
		}
	}
	for base, f := range nested {
		if _, ok := members[base]; !ok {
			members[base] = f
		}
	}
	return members
}

func readMember(ctx context.Context, f *zip.File, opts table.CSVOptions) (*table.Table, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, eris.Wrapf(err, "bundle: open %s", f.Name)
	}
	defer rc.Close() //nolint:errcheck

	t, err := table.ReadCSV(ctx, rc, opts)
	if err != nil {
		return nil, eris.Wrapf(err, "bundle: read %s", f.Name)
	}
	return t, nil
}

// ReadDir loads the four CSVs from a directory.
func ReadDir(ctx context.Context, dir string, opts table.CSVOptions) (*Bundle, error) {
	var missing []string
	for _, name := range RequiredFiles {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingFilesError{Missing: missing}
	}

	tables := make(map[string]*table.Table, len(RequiredFiles))
	for _, name := range RequiredFiles {
		t, err := table.ReadCSVFile(ctx, filepath.Join(dir, name), opts)
		if err != nil {
			return nil, eris.Wrapf(err, "bundle: read %s", name)
		}
		tables[name] = t
	}
	return fromTables(tables), nil
}

func fromTables(tables map[string]*table.Table) *Bundle {
	return &Bundle{
		Merged:       tables[MergedFile],
		Percentiles:  tables[PercentilesFile],
		Standardized: tables[StandardizedFile],
		Buildings:    tables[BuildingsFile],
	}
}

// Extract writes the required members of an archive into destDir and
// returns their paths. Other members are skipped.
func Extract(zipPath, destDir string) ([]string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, eris.Wrap(err, "bundle: open archive")
	}
	defer r.Close() //nolint:errcheck

	members := indexMembers(&r.Reader)
	var missing []string
	for _, name := range RequiredFiles {
		if _, ok := members[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingFilesError{Missing: missing}
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, eris.Wrap(err, "bundle: create destination")
	}

	var extracted []string
	for _, name := range RequiredFiles {
		p, err := extractEntry(members[name], destDir, name)
		if err != nil {
			return extracted, err
		}
		extracted = append(extracted, p)
	}
	return extracted, nil
}

// extractEntry copies f to destDir/name, guarding against paths that escape destDir.
func extractEntry(f *zip.File, destDir, name string) (string, error) {
	destPath := filepath.Join(destDir, name)
	if !strings.HasPrefix(filepath.Clean(destPath), filepath.Clean(destDir)+string(os.PathSeparator)) {
		return "", eris.Errorf("bundle: illegal path %q", name)
	}

	rc, err := f.Open()
	if err != nil {
		return "", eris.Wrap(err, "bundle: open entry")
	}
	defer rc.Close() //nolint:errcheck

	out, err := os.Create(destPath)
	if err != nil {
		return "", eris.Wrap(err, "bundle: create file")
	}
	defer out.Close() //nolint:errcheck

	if _, err := io.Copy(out, rc); err != nil {
		return "", eris.Wrap(err, "bundle: write file")
	}
	return destPath, nil
}
