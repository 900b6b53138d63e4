package service

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattsolo1/grove-scanner/pkg/naming"
	"github.com/mattsolo1/grove-scanner/pkg/pages"
	"github.com/mattsolo1/grove-scanner/pkg/scanerr"
)

// clock advances one second on every reading.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	c := &clock{t: time.Date(2025, 1, 11, 10, 0, 0, 0, time.UTC)}
	opts = append([]Option{WithClock(c.Now)}, opts...)
	s, err := New(&Config{Root: t.TempDir(), MaxDimension: 64, ThumbSize: 8}, nil, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func pngSource(t *testing.T, c color.Color) pages.BytesSource {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 12))
	for x := 0; x < 16; x++ {
		for y := 0; y < 12; y++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return pages.BytesSource(buf.Bytes())
}

func pageFile(t *testing.T, s *Service, id, name string) string {
	t.Helper()
	dir, err := s.Store().ItemDir(id)
	require.NoError(t, err)
	return filepath.Join(dir, name)
}

func TestNewUsesSQLiteIndex(t *testing.T) {
	s := newTestService(t)
	assert.Equal(t, IndexSQLite, s.Config().Index)
	assert.FileExists(t, filepath.Join(s.Config().Root, IndexFileName))
	assert.Equal(t, int64(DefaultCacheBytes), s.Config().CacheBytes)
}

func TestNewRejectsUnknownIndex(t *testing.T) {
	_, err := New(&Config{Root: t.TempDir(), Index: "bolt"}, nil)
	assert.Error(t, err)
}

func TestCreateDocument(t *testing.T) {
	s := newTestService(t)

	created, err := s.CreateDocument("Invoice")
	require.NoError(t, err)

	got, err := s.GetItem(created.ID)
	require.NoError(t, err)
	assert.False(t, got.IsContainer)
	assert.Equal(t, []string{}, got.PageOrder)
	assert.False(t, got.Locked)
	assert.Equal(t, got.CreatedAt, got.UpdatedAt)
	assert.Equal(t, "Invoice", got.DisplayName)
	assert.Nil(t, got.DeletedAt)
}

func TestCreateInFolder(t *testing.T) {
	s := newTestService(t)
	folder, err := s.CreateFolder("Receipts")
	require.NoError(t, err)
	doc, err := s.CreateDocument("Lunch", InFolder(folder.ID))
	require.NoError(t, err)
	require.NotNil(t, doc.ParentID)
	assert.Equal(t, folder.ID, *doc.ParentID)

	_, err = s.CreateDocument("Nope", InFolder(doc.ID))
	assert.ErrorIs(t, err, scanerr.ErrInvalidArgument)

	inFolder, err := s.ListItems(InParent(folder.ID))
	require.NoError(t, err)
	require.Len(t, inFolder, 1)
	assert.Equal(t, doc.ID, inFolder[0].ID)
}

func TestGetItemMissing(t *testing.T) {
	s := newTestService(t)
	_, err := s.GetItem("nope")
	assert.ErrorIs(t, err, scanerr.ErrNotFound)
}

func TestAddAndRemovePages(t *testing.T) {
	s := newTestService(t)
	doc, err := s.CreateDocument("Scan")
	require.NoError(t, err)

	for _, name := range []string{"a.jpg", "b.jpg", "c.jpg"} {
		doc, err = s.AddPage(doc.ID, pngSource(t, color.White), name)
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"a.jpg", "b.jpg", "c.jpg"}, doc.PageOrder)

	doc, err = s.RemovePage(doc.ID, "b.jpg")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.jpg", "c.jpg"}, doc.PageOrder)

	assert.NoFileExists(t, pageFile(t, s, doc.ID, "b.jpg"))
	assert.NoFileExists(t, pageFile(t, s, doc.ID, naming.ThumbnailName("b.jpg")))
	assert.FileExists(t, pageFile(t, s, doc.ID, "a.jpg"))
	assert.FileExists(t, pageFile(t, s, doc.ID, "c.jpg"))

	got, err := s.GetItem(doc.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.jpg", "c.jpg"}, got.PageOrder)
	assert.Greater(t, got.UpdatedAt, got.CreatedAt)
}

func TestAddPageErrors(t *testing.T) {
	s := newTestService(t)
	folder, err := s.CreateFolder("F")
	require.NoError(t, err)
	doc, err := s.CreateDocument("D")
	require.NoError(t, err)

	_, err = s.AddPage(folder.ID, pngSource(t, color.White), "a.jpg")
	assert.ErrorIs(t, err, scanerr.ErrInvalidOperation)

	_, err = s.AddPage(doc.ID, pngSource(t, color.White), "a.jpg")
	require.NoError(t, err)
	_, err = s.AddPage(doc.ID, pngSource(t, color.White), "a.jpg")
	assert.ErrorIs(t, err, scanerr.ErrInvalidArgument)

	_, err = s.AddPage(doc.ID, pages.BytesSource("not an image"), "b.jpg")
	assert.ErrorIs(t, err, scanerr.ErrInvalidArgument)
	assert.NoFileExists(t, pageFile(t, s, doc.ID, "b.jpg"))

	_, err = s.RemovePage(doc.ID, "zzz.jpg")
	assert.ErrorIs(t, err, scanerr.ErrNotFound)
	_, err = s.RemovePage(folder.ID, "a.jpg")
	assert.ErrorIs(t, err, scanerr.ErrInvalidOperation)
}

func TestAddPageRandomName(t *testing.T) {
	s := newTestService(t)
	doc, err := s.CreateDocument("D")
	require.NoError(t, err)

	doc, err = s.AddPage(doc.ID, pngSource(t, color.White), "")
	require.NoError(t, err)
	require.Len(t, doc.PageOrder, 1)
	assert.Regexp(t, `^page_[0-9a-f]{8}\.jpg$`, doc.PageOrder[0])
}

func TestReorderPages(t *testing.T) {
	s := newTestService(t)
	doc, err := s.CreateDocumentFromImages("Multi", []pages.Source{
		pngSource(t, color.White),
		pngSource(t, color.Black),
	})
	require.NoError(t, err)
	require.Equal(t, []string{"page_001.jpg", "page_002.jpg"}, doc.PageOrder)

	before, err := os.ReadFile(pageFile(t, s, doc.ID, "page_002.jpg"))
	require.NoError(t, err)

	reordered, err := s.ReorderPages(doc.ID, []string{"page_002.jpg", "page_001.jpg"})
	require.NoError(t, err)
	assert.Equal(t, []string{"page_001.jpg", "page_002.jpg"}, reordered.PageOrder)
	assert.Greater(t, reordered.UpdatedAt, doc.UpdatedAt)

	after, err := os.ReadFile(pageFile(t, s, doc.ID, "page_001.jpg"))
	require.NoError(t, err)
	assert.Equal(t, before, after)

	_, err = s.ReorderPages(doc.ID, []string{"page_001.jpg"})
	assert.ErrorIs(t, err, scanerr.ErrInvalidArgument)
	var oe *pages.OrderError
	assert.True(t, errors.As(err, &oe))
}

func TestCreateDocumentFromImagesCleansUp(t *testing.T) {
	s := newTestService(t)
	_, err := s.CreateDocumentFromImages("Broken", []pages.Source{
		pngSource(t, color.White),
		pages.BytesSource("garbage"),
	})
	require.Error(t, err)

	items, err := s.ListAll()
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestMoveAndCopyPage(t *testing.T) {
	s := newTestService(t)
	a, err := s.CreateDocument("A")
	require.NoError(t, err)
	b, err := s.CreateDocument("B")
	require.NoError(t, err)
	_, err = s.AddPage(a.ID, pngSource(t, color.White), "x.png")
	require.NoError(t, err)

	_, b, err = s.CopyPage(a.ID, b.ID, "x.png")
	require.NoError(t, err)
	assert.Equal(t, []string{"x.png"}, b.PageOrder)

	_, _, err = s.MovePage(a.ID, b.ID, "x.png")
	assert.ErrorIs(t, err, scanerr.ErrInvalidOperation)

	c, err := s.CreateDocument("C")
	require.NoError(t, err)
	a, c, err = s.MovePage(a.ID, c.ID, "x.png")
	require.NoError(t, err)
	assert.Empty(t, a.PageOrder)
	assert.Equal(t, []string{"x.png"}, c.PageOrder)
	assert.NoFileExists(t, pageFile(t, s, a.ID, "x.png"))
	assert.FileExists(t, pageFile(t, s, c.ID, "x.png"))

	_, _, err = s.MovePage(a.ID, c.ID, "x.png")
	assert.ErrorIs(t, err, scanerr.ErrNotFound)
}

func TestSoftDeleteAndRestore(t *testing.T) {
	s := newTestService(t)
	doc, err := s.CreateDocument("Temp")
	require.NoError(t, err)

	deleted, err := s.SoftDelete(doc.ID)
	require.NoError(t, err)
	require.NotNil(t, deleted.DeletedAt)
	assert.GreaterOrEqual(t, *deleted.DeletedAt, deleted.CreatedAt)

	again, err := s.SoftDelete(doc.ID)
	require.NoError(t, err)
	assert.Equal(t, deleted, again)

	active, err := s.ListActive()
	require.NoError(t, err)
	assert.Empty(t, active)
	trash, err := s.ListItems(OnlyDeleted())
	require.NoError(t, err)
	assert.Len(t, trash, 1)

	restored, err := s.Restore(doc.ID)
	require.NoError(t, err)
	assert.Nil(t, restored.DeletedAt)
	assert.Greater(t, restored.UpdatedAt, deleted.UpdatedAt)

	doc.UpdatedAt = restored.UpdatedAt
	assert.Equal(t, doc, restored)
}

func TestPermanentlyDelete(t *testing.T) {
	s := newTestService(t)
	doc, err := s.CreateDocument("Gone")
	require.NoError(t, err)
	dir, err := s.Store().ItemDir(doc.ID)
	require.NoError(t, err)

	require.NoError(t, s.PermanentlyDelete(doc.ID))
	assert.NoDirExists(t, dir)

	err = s.PermanentlyDelete(doc.ID)
	assert.ErrorIs(t, err, scanerr.ErrNotFound)
}

func TestDeleteItemsReportsPartialFailure(t *testing.T) {
	s := newTestService(t)
	a, err := s.CreateDocument("A")
	require.NoError(t, err)
	b, err := s.CreateDocument("B")
	require.NoError(t, err)

	done, err := s.DeleteItems([]string{a.ID, "missing", b.ID}, false)
	assert.Equal(t, []string{a.ID, b.ID}, done)

	var batch *BatchError
	require.True(t, errors.As(err, &batch))
	assert.Equal(t, "failed to delete 1 items out of 3", batch.Error())
	assert.ErrorIs(t, err, scanerr.ErrNotFound)
}

func TestUpdateItem(t *testing.T) {
	s := newTestService(t)
	doc, err := s.CreateDocument("Old")
	require.NoError(t, err)

	doc.DisplayName = "New"
	doc.Locked = true
	updated, err := s.UpdateItem(doc)
	require.NoError(t, err)
	assert.Equal(t, "New", updated.DisplayName)
	assert.True(t, updated.Locked)
	assert.Greater(t, updated.UpdatedAt, doc.UpdatedAt)

	bad := updated
	bad.IsContainer = true
	_, err = s.UpdateItem(bad)
	assert.ErrorIs(t, err, scanerr.ErrInvalidArgument)

	bad = updated
	bad.CreatedAt++
	_, err = s.UpdateItem(bad)
	assert.ErrorIs(t, err, scanerr.ErrInvalidArgument)
}

func TestRenameAndLock(t *testing.T) {
	s := newTestService(t)
	doc, err := s.CreateDocument("Old")
	require.NoError(t, err)

	_, err = s.Rename(doc.ID, "  ")
	assert.ErrorIs(t, err, scanerr.ErrInvalidArgument)

	renamed, err := s.Rename(doc.ID, "New")
	require.NoError(t, err)
	assert.Equal(t, "New", renamed.DisplayName)

	locked, err := s.ToggleLock(doc.ID)
	require.NoError(t, err)
	assert.True(t, locked.Locked)

	same, err := s.SetLocked(doc.ID, true)
	require.NoError(t, err)
	assert.Equal(t, locked.UpdatedAt, same.UpdatedAt)
}

func TestTouchAlwaysAdvances(t *testing.T) {
	frozen := time.Date(2025, 1, 11, 10, 0, 0, 0, time.UTC)
	s, err := New(&Config{Root: t.TempDir(), Index: IndexMemory}, nil, WithClock(func() time.Time { return frozen }))
	require.NoError(t, err)
	defer s.Close()

	doc, err := s.CreateDocument("D")
	require.NoError(t, err)
	first, err := s.ToggleLock(doc.ID)
	require.NoError(t, err)
	second, err := s.ToggleLock(doc.ID)
	require.NoError(t, err)
	assert.Greater(t, first.UpdatedAt, doc.UpdatedAt)
	assert.Greater(t, second.UpdatedAt, first.UpdatedAt)
}

func TestVerifyPages(t *testing.T) {
	s := newTestService(t)
	doc, err := s.CreateDocument("D")
	require.NoError(t, err)
	doc, err = s.AddPage(doc.ID, pngSource(t, color.White), "a.jpg")
	require.NoError(t, err)

	doc.PageOrder = append(doc.PageOrder, "ghost.jpg")
	_, err = s.UpdateItem(doc)
	require.NoError(t, err)

	report, err := s.VerifyPages(doc.ID)
	require.NoError(t, err)
	assert.False(t, report.Valid())
	assert.Equal(t, []string{"ghost.jpg"}, report.Missing)

	reports, err := s.ValidateItems([]string{doc.ID, "missing"})
	assert.Len(t, reports, 1)
	var batch *BatchError
	assert.True(t, errors.As(err, &batch))
}

func TestPageImageAndThumbnailAreCached(t *testing.T) {
	s := newTestService(t)
	doc, err := s.CreateDocumentFromImages("D", []pages.Source{pngSource(t, color.White)})
	require.NoError(t, err)

	img, err := s.PageImage(doc.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, 16, img.Bounds().Dx())

	thumb, err := s.Thumbnail(doc.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, 8, thumb.Bounds().Dx())
	assert.Equal(t, 2, s.images.Len())

	_, err = s.PageImage(doc.ID, 1)
	assert.ErrorIs(t, err, scanerr.ErrInvalidArgument)

	_, err = s.RemovePage(doc.ID, doc.PageOrder[0])
	require.NoError(t, err)
	assert.Zero(t, s.images.Len())

	s.ClearImageCache()
	assert.Zero(t, s.images.Bytes())
}

func TestPageLocation(t *testing.T) {
	s := newTestService(t)
	doc, err := s.CreateDocumentFromImages("D", []pages.Source{pngSource(t, color.White)})
	require.NoError(t, err)

	loc, ok, err := s.PageLocation(doc.ID, "page_001.jpg")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "file", loc.Scheme)

	_, ok, err = s.PageLocation(doc.ID, "page_009.jpg")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestServiceOverMemMapFs(t *testing.T) {
	s, err := New(&Config{Root: "/scans"}, nil, WithFs(afero.NewMemMapFs()))
	require.NoError(t, err)
	defer s.Close()

	doc, err := s.CreateDocument("In memory")
	require.NoError(t, err)
	got, err := s.GetItem(doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc, got)

	_, statErr := os.Stat(filepath.Join("/scans", IndexFileName))
	assert.True(t, os.IsNotExist(statErr))
}

func TestConcurrentAddPage(t *testing.T) {
	s := newTestService(t)
	doc, err := s.CreateDocument("D")
	require.NoError(t, err)

	src := pngSource(t, color.White)
	var wg sync.WaitGroup
	for i := 1; i <= 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.AddPage(doc.ID, src, naming.PageFilename(i, "png"))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := s.GetItem(doc.ID)
	require.NoError(t, err)
	assert.Len(t, got.PageOrder, 5)
}

func TestTimestampsAreMonotonic(t *testing.T) {
	s := newTestService(t)
	doc, err := s.CreateDocument("D")
	require.NoError(t, err)

	prev := doc.UpdatedAt
	for i := 0; i < 3; i++ {
		doc, err = s.ToggleLock(doc.ID)
		require.NoError(t, err)
		assert.Greater(t, doc.UpdatedAt, prev)
		prev = doc.UpdatedAt
	}
}
