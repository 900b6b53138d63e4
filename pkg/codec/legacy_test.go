package codec

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattsolo1/grove-scanner/pkg/models"
	"github.com/mattsolo1/grove-scanner/pkg/scanerr"
)

const legacyDesc = `{
  "uuid": "0b6c1a52-8c4e-4a2a-9d0e-3c9b1f2e7a11",
  "displayName": "Tax 2024",
  "bDir": false,
  "relativePath": "./2025-01-11_10_00_00.123/",
  "order": ["page_001.jpg", "page_002.jpg"],
  "bLock": true,
  "createdDate": 1736589600123,
  "updatedDate": 1736589700000,
  "deletedDate": null
}`

const exportShape = `{
  "uuid": "0b6c1a52-8c4e-4a2a-9d0e-3c9b1f2e7a12",
  "displayName": "Old folder",
  "isDirectory": true,
  "isLocked": false,
  "createdDate": 1000
}`

func TestIsLegacy(t *testing.T) {
	assert.True(t, IsLegacy([]byte(legacyDesc)))
	assert.True(t, IsLegacy([]byte(exportShape)))

	current, err := Encode(models.NewDocument("a", "x", 1))
	require.NoError(t, err)
	assert.False(t, IsLegacy(current))
	assert.False(t, IsLegacy([]byte("not json")))
	assert.False(t, IsLegacy([]byte(`{"foo":1}`)))
}

func TestMigrateLegacyDesc(t *testing.T) {
	out, err := MigrateLegacy([]byte(legacyDesc))
	require.NoError(t, err)

	item, err := Decode(out)
	require.NoError(t, err)
	assert.Equal(t, "0b6c1a52-8c4e-4a2a-9d0e-3c9b1f2e7a11", item.ID)
	assert.Equal(t, "Tax 2024", item.DisplayName)
	assert.False(t, item.IsContainer)
	assert.Equal(t, []string{"page_001.jpg", "page_002.jpg"}, item.PageOrder)
	assert.True(t, item.Locked)
	assert.Equal(t, models.Timestamp(1736589600123), item.CreatedAt)
	assert.Equal(t, models.Timestamp(1736589700000), item.UpdatedAt)
	assert.Nil(t, item.DeletedAt)
	assert.False(t, IsLegacy(out))
}

func TestMigrateExportShape(t *testing.T) {
	out, err := MigrateLegacy([]byte(exportShape))
	require.NoError(t, err)

	item, err := Decode(out)
	require.NoError(t, err)
	assert.True(t, item.IsContainer)
	assert.Empty(t, item.PageOrder)
	assert.Equal(t, models.Timestamp(1000), item.UpdatedAt)
}

func TestMigrateCurrentShapeIsStable(t *testing.T) {
	in, err := Encode(models.NewDocument("a", "x", 7))
	require.NoError(t, err)

	out, err := MigrateLegacy(in)
	require.NoError(t, err)
	assert.Equal(t, string(in), string(out))
}

func TestMigrateLegacyFailures(t *testing.T) {
	tests := []struct {
		name  string
		input string
		field string
	}{
		{"unparsable", `{"uuid":`, ""},
		{"no id", `{"displayName":"x","bDir":false,"createdDate":1}`, "id"},
		{"no dates", `{"uuid":"a","displayName":"x","bDir":false}`, "createdAt"},
		{"bad type", `{"uuid":"a","bDir":"no","createdDate":1}`, "bDir"},
		{"folder with pages", `{"uuid":"a","bDir":true,"order":["p.jpg"],"createdDate":1}`, "pageOrder"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := MigrateLegacy([]byte(tt.input))
			require.Error(t, err)

			var cerr *Error
			require.True(t, errors.As(err, &cerr))
			assert.Equal(t, MigrationFailed, cerr.Reason)
			assert.Equal(t, tt.field, cerr.Field)
			assert.True(t, errors.Is(err, scanerr.ErrMigrationFailed))
			assert.False(t, errors.Is(err, scanerr.ErrCorrupted))
		})
	}
}
