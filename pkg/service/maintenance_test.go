package service

import (
	"bytes"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattsolo1/grove-scanner/pkg/integrity"
	"github.com/mattsolo1/grove-scanner/pkg/models"
	"github.com/mattsolo1/grove-scanner/pkg/naming"
	"github.com/mattsolo1/grove-scanner/pkg/pages"
	"github.com/mattsolo1/grove-scanner/pkg/scanerr"
)

func TestStatistics(t *testing.T) {
	s := newTestService(t)
	_, err := s.CreateFolder("F")
	require.NoError(t, err)
	_, err = s.CreateDocumentFromImages("D", []pages.Source{
		pngSource(t, color.White),
		pngSource(t, color.Black),
	})
	require.NoError(t, err)
	gone, err := s.CreateDocument("Gone")
	require.NoError(t, err)
	_, err = s.SoftDelete(gone.ID)
	require.NoError(t, err)

	stats, err := s.Statistics()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalItems)
	assert.Equal(t, 1, stats.TotalDocuments)
	assert.Equal(t, 1, stats.TotalFolders)
	assert.Equal(t, 2, stats.TotalPages)
	assert.Positive(t, stats.TotalBytes)

	storage, err := s.StorageStats()
	require.NoError(t, err)
	assert.Equal(t, 3, storage.ItemCount)
	assert.Equal(t, s.Config().Root, storage.Root)
}

func TestBackupAndRestore(t *testing.T) {
	s := newTestService(t)
	doc, err := s.CreateDocumentFromImages("Keep", []pages.Source{pngSource(t, color.White)})
	require.NoError(t, err)

	path, err := s.Backup(doc.ID)
	require.NoError(t, err)
	manifest, err := s.ReadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, doc.ID, manifest.ID)

	backups, err := s.Backups(doc.ID)
	require.NoError(t, err)
	assert.Len(t, backups, 1)

	_, err = s.Rename(doc.ID, "Changed")
	require.NoError(t, err)
	restored, err := s.RestoreBackup(doc.ID, path)
	require.NoError(t, err)
	assert.Equal(t, "Keep", restored.DisplayName)

	require.NoError(t, s.PermanentlyDelete(doc.ID))
	restored, err = s.RestoreBackup(doc.ID, filepath.Base(path))
	require.NoError(t, err)
	assert.Equal(t, doc.PageOrder, restored.PageOrder)
	assert.FileExists(t, pageFile(t, s, doc.ID, "page_001.jpg"))
}

func TestCleanupTempUsesConfiguredAge(t *testing.T) {
	s := newTestService(t)
	stale := filepath.Join(s.Store().TempDir(), "stale")
	require.NoError(t, os.Mkdir(stale, 0o755))
	old := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(stale, old, old))

	assert.Equal(t, 1, s.CleanupTemp(0))
	assert.NoDirExists(t, stale)
}

func TestRepairAll(t *testing.T) {
	s := newTestService(t)
	doc, err := s.CreateDocument("D")
	require.NoError(t, err)
	folder, err := s.CreateFolder("F")
	require.NoError(t, err)

	broken := doc.Clone()
	broken.DisplayName = ""
	broken.PageOrder = []string{"a.jpg", "a.jpg"}
	broken.UpdatedAt = broken.CreatedAt - 10
	require.NoError(t, s.Store().SaveMetadata(broken))

	issues, err := s.CheckIntegrity()
	require.NoError(t, err)
	counts := integrity.CountByKind(issues)
	assert.Equal(t, 1, counts[integrity.BlankName])
	assert.Equal(t, 1, counts[integrity.DuplicatePage])
	assert.Equal(t, 1, counts[integrity.UpdatedBeforeCreated])

	report, err := s.RepairAll()
	require.NoError(t, err)
	assert.Equal(t, 2, report.Checked)
	assert.Equal(t, []string{doc.ID}, report.Repaired)
	assert.Empty(t, report.Unresolved)
	for _, issue := range report.After {
		assert.False(t, integrity.Repairable(issue.Kind), "left %s", issue)
	}

	fixed, err := s.GetItem(doc.ID)
	require.NoError(t, err)
	assert.Equal(t, integrity.UntitledDocument, fixed.DisplayName)
	assert.Equal(t, []string{"a.jpg"}, fixed.PageOrder)
	assert.Equal(t, fixed.CreatedAt, fixed.UpdatedAt)

	untouched, err := s.GetItem(folder.ID)
	require.NoError(t, err)
	assert.Equal(t, folder, untouched)
}

func TestRepairAllLeavesDuplicateIDs(t *testing.T) {
	s := newTestService(t)
	doc, err := s.CreateDocument("D")
	require.NoError(t, err)

	dir, err := s.Store().ItemDir(doc.ID)
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(dir, naming.DescFileName))
	require.NoError(t, err)
	twin := filepath.Join(s.Config().Root, "2001-01-01_00_00_00.000")
	require.NoError(t, os.Mkdir(twin, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(twin, naming.DescFileName), data, 0o644))

	report, err := s.RepairAll()
	require.NoError(t, err)
	assert.Equal(t, []string{doc.ID}, report.Unresolved)
	assert.DirExists(t, twin)
	assert.DirExists(t, dir)
}

func TestMigrateAll(t *testing.T) {
	s := newTestService(t)
	legacy := filepath.Join(s.Config().Root, "2019-05-01_08_00_00.000")
	require.NoError(t, os.Mkdir(legacy, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(legacy, naming.DescFileName), []byte(`{
  "uuid": "legacy-1",
  "displayName": "Old scan",
  "bDir": false,
  "order": [],
  "bLock": true,
  "createdDate": 1556697600000
}`), 0o644))
	bad := filepath.Join(s.Config().Root, "2019-05-02_08_00_00.000")
	require.NoError(t, os.Mkdir(bad, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(bad, naming.DescFileName), []byte(`{"uuid": "legacy-2", "bDir": false}`), 0o644))

	report, err := s.MigrateAll()
	require.NoError(t, err)
	assert.Equal(t, 2, report.TotalDirs)
	assert.Equal(t, 1, report.MigratedDirs)
	assert.Equal(t, 1, report.FailedDirs)
	assert.Equal(t, []string{"legacy-1"}, report.Migrated)
	assert.ErrorIs(t, report.ProcessingErr[filepath.Base(bad)], scanerr.ErrMigrationFailed)

	item, err := s.GetItem("legacy-1")
	require.NoError(t, err)
	assert.True(t, item.Locked)
	assert.Equal(t, models.Timestamp(1556697600000), item.UpdatedAt)

	again, err := s.MigrateAll()
	require.NoError(t, err)
	assert.Equal(t, 1, again.TotalDirs, "only the broken directory is still legacy")
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := newTestService(t)
	_, err := s.CreateFolder("F")
	require.NoError(t, err)
	_, err = s.CreateDocument("D")
	require.NoError(t, err)

	var buf bytes.Buffer
	written, err := s.ExportSnapshot(&buf)
	require.NoError(t, err)
	assert.Equal(t, 2, written.Metadata.TotalItems)
	assert.Equal(t, 1, written.Metadata.TotalFolders)

	read, err := ReadSnapshot(&buf)
	require.NoError(t, err)
	assert.Equal(t, written, read)

	_, err = ReadSnapshot(bytes.NewBufferString(`{"version":"9"}`))
	assert.ErrorIs(t, err, scanerr.ErrInvalidArgument)
	_, err = ReadSnapshot(bytes.NewBufferString(`{`))
	assert.ErrorIs(t, err, scanerr.ErrCorrupted)
}

func TestReindex(t *testing.T) {
	s := newTestService(t)
	for _, name := range []string{"a", "b"} {
		_, err := s.CreateDocument(name)
		require.NoError(t, err)
	}
	n, err := s.Reindex()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
