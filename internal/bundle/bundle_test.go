package bundle

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/urban-texture/internal/table"
)

func zipBytes(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range files {
		fw, err := w.Create(name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func createTestZIP(t *testing.T, files map[string]string) string {
	t.Helper()
	zipPath := filepath.Join(t.TempDir(), "upload.zip")
	require.NoError(t, os.WriteFile(zipPath, zipBytes(t, files), 0o644))
	return zipPath
}

func completeFiles() map[string]string {
	return map[string]string{
		MergedFile:       "uID,area,height\n1,100,10\n2,200,20\n",
		PercentilesFile:  "uID,area_p50\n1,0.5\n2,0.7\n",
		StandardizedFile: "uID,area,height\n1,-1,-1\n2,1,1\n",
		BuildingsFile:    "uID,geometry\n1,\"POINT (0 0)\"\n2,\"POINT (1 1)\"\n",
	}
}

func TestReadZIP_Complete(t *testing.T) {
	files := completeFiles()
	files["notes.txt"] = "ignored"

	b, err := ReadZIP(context.Background(), zipBytes(t, files), table.CSVOptions{})
	require.NoError(t, err)

	assert.Equal(t, Summary{Merged: 2, Percentiles: 2, Standardized: 2, Buildings: 2}, b.Summary())
	assert.Equal(t, []string{"uID", "area", "height"}, b.Standardized.Columns)
	assert.Equal(t, "POINT (1 1)", b.Buildings.Value(1, "geometry"))
}

func TestReadZIP_MissingFiles(t *testing.T) {
	tests := []struct {
		name    string
		drop    []string
		missing []string
	}{
		{"one", []string{StandardizedFile}, []string{StandardizedFile}},
		{"ordered", []string{BuildingsFile, MergedFile}, []string{MergedFile, BuildingsFile}},
		{"all", RequiredFiles, RequiredFiles},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			files := completeFiles()
			for _, name := range tt.drop {
				delete(files, name)
			}
			if len(files) == 0 {
				files["readme.txt"] = "x"
			}

			b, err := ReadZIP(context.Background(), zipBytes(t, files), table.CSVOptions{})
			require.Error(t, err)
			assert.Nil(t, b)
			assert.True(t, errors.Is(err, ErrMissingFiles))

			var mfe *MissingFilesError
			require.True(t, errors.As(err, &mfe))
			assert.Equal(t, tt.missing, mfe.Missing)
		})
	}
}

func TestMissingFilesError_Message(t *testing.T) {
	err := &MissingFilesError{Missing: []string{MergedFile, BuildingsFile}}
	assert.Equal(t, "Missing files in the ZIP: merged.csv, buildings.csv", err.Error())
}

func TestReadZIP_NestedFolder(t *testing.T) {
	files := map[string]string{}
	for name, content := range completeFiles() {
		files["export/"+name] = content
	}
	files["__MACOSX/export/._merged.csv"] = "junk"

	b, err := ReadZIP(context.Background(), zipBytes(t, files), table.CSVOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, b.Merged.Len())
}

func TestReadZIP_RootLevelWins(t *testing.T) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	add := func(name, content string) {
		fw, err := w.Create(name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	add("old/"+MergedFile, "uID,area,height\n9,1,1\n")
	for name, content := range completeFiles() {
		add(name, content)
	}
	require.NoError(t, w.Close())

	b, err := ReadZIP(context.Background(), buf.Bytes(), table.CSVOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, b.Merged.Len())
	assert.Equal(t, "1", b.Merged.Value(0, "uID"))
}

func TestReadZIP_NotAnArchive(t *testing.T) {
	_, err := ReadZIP(context.Background(), []byte("not a zip"), table.CSVOptions{})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrMissingFiles))
	assert.Contains(t, err.Error(), "bundle: open archive")
}

func TestReadZIP_EmptyMember(t *testing.T) {
	files := completeFiles()
	files[MergedFile] = ""

	_, err := ReadZIP(context.Background(), zipBytes(t, files), table.CSVOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "merged.csv")
}

func TestReadZIPFile(t *testing.T) {
	zipPath := createTestZIP(t, completeFiles())

	b, err := ReadZIPFile(context.Background(), zipPath, table.CSVOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, b.Percentiles.Len())
}

func TestReadDir(t *testing.T) {
	dir := t.TempDir()
	for name, content := range completeFiles() {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}

	b, err := ReadDir(context.Background(), dir, table.CSVOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, b.Buildings.Len())

	require.NoError(t, os.Remove(filepath.Join(dir, PercentilesFile)))
	_, err = ReadDir(context.Background(), dir, table.CSVOptions{})
	var mfe *MissingFilesError
	require.True(t, errors.As(err, &mfe))
	assert.Equal(t, []string{PercentilesFile}, mfe.Missing)
}

func TestExtract(t *testing.T) {
	files := completeFiles()
	files["extra.txt"] = "skip me"
	zipPath := createTestZIP(t, files)

	destDir := filepath.Join(t.TempDir(), "data")
	extracted, err := Extract(zipPath, destDir)
	require.NoError(t, err)
	assert.Len(t, extracted, len(RequiredFiles))

	data, err := os.ReadFile(filepath.Join(destDir, MergedFile))
	require.NoError(t, err)
	assert.Equal(t, completeFiles()[MergedFile], string(data))

	_, err = os.Stat(filepath.Join(destDir, "extra.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestExtract_Missing(t *testing.T) {
	files := completeFiles()
	delete(files, BuildingsFile)
	zipPath := createTestZIP(t, files)

	_, err := Extract(zipPath, t.TempDir())
	assert.True(t, errors.Is(err, ErrMissingFiles))
}
