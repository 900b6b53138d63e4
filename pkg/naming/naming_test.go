package naming

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattsolo1/grove-scanner/pkg/models"
)

func TestDirectoryName(t *testing.T) {
	ts := models.FromTime(time.Date(2025, 1, 11, 10, 0, 0, 123_000_000, time.UTC))
	assert.Equal(t, "2025-01-11_10_00_00.123", DirectoryName(ts))

	// Same timestamp, same name.
	assert.Equal(t, DirectoryName(ts), DirectoryName(ts))

	// One millisecond apart, different names.
	assert.NotEqual(t, DirectoryName(ts), DirectoryName(ts+1))
}

func TestDirectoryNameIsUTC(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*3600)
	ts := models.FromTime(time.Date(2025, 1, 11, 15, 0, 0, 0, loc))
	assert.Equal(t, "2025-01-11_10_00_00.000", DirectoryName(ts))
}

func TestDirectoryNamesSortChronologically(t *testing.T) {
	a := DirectoryName(models.FromTime(time.Date(2024, 12, 31, 23, 59, 59, 999_000_000, time.UTC)))
	b := DirectoryName(models.FromTime(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.Less(t, a, b)
}

func TestDirectoryCandidateAndParse(t *testing.T) {
	ts := models.Timestamp(1736589600123)
	base := DirectoryName(ts)

	assert.Equal(t, base, DirectoryCandidate(base, 0))
	assert.Equal(t, base+"_2", DirectoryCandidate(base, 2))

	got, suffix, ok := ParseDirectoryName(DirectoryCandidate(base, 2))
	require.True(t, ok)
	assert.Equal(t, ts, got)
	assert.Equal(t, 2, suffix)

	got, suffix, ok = ParseDirectoryName(base)
	require.True(t, ok)
	assert.Equal(t, ts, got)
	assert.Equal(t, 0, suffix)

	for _, name := range []string{"temp", "backup", "index.db", "2025-01-11"} {
		_, _, ok := ParseDirectoryName(name)
		assert.False(t, ok, name)
	}
}

func TestPageFilenames(t *testing.T) {
	assert.Equal(t, "page_007.jpg", PageFilename(7, "jpg"))
	assert.Equal(t, "page_012.png", PageFilename(12, ".PNG"))
	assert.Equal(t, "page_1000.jpg", PageFilename(1000, ""))

	a := RandomPageFilename("jpg")
	b := RandomPageFilename("jpg")
	assert.NotEqual(t, a, b)
	assert.Regexp(t, `^page_[0-9a-f]{8}\.jpg$`, a)
}

func TestNewIDIsUniqueUUID(t *testing.T) {
	const n = 200
	var (
		mu   sync.Mutex
		seen = make(map[string]bool, n)
		wg   sync.WaitGroup
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := NewID()
			mu.Lock()
			seen[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, seen, n)

	for id := range seen {
		_, err := uuid.Parse(id)
		require.NoError(t, err)
		break
	}
}

func TestThumbnailAndFormats(t *testing.T) {
	assert.Equal(t, "thumb_page_001.jpg", ThumbnailName("page_001.jpg"))
	assert.True(t, IsThumbnail("thumb_page_001.jpg"))
	assert.False(t, IsThumbnail("page_001.jpg"))

	assert.Equal(t, "jpeg", Extension("scan.JPEG"))
	assert.Equal(t, "", Extension("noext"))
	assert.True(t, IsSupportedFormat("a.webp"))
	assert.False(t, IsSupportedFormat("a.gif"))
}

func TestValidatePageFilename(t *testing.T) {
	assert.NoError(t, ValidatePageFilename("a.jpg"))
	for _, bad := range []string{"", " ", ".", "..", "../x.jpg", `a\b.jpg`, "desc.json", "thumb_a.jpg"} {
		assert.Error(t, ValidatePageFilename(bad), bad)
	}
}
