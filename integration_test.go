//go:build integration

package main

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/mattsolo1/grove-scanner/pkg/models"
	"github.com/mattsolo1/grove-scanner/pkg/pages"
	"github.com/mattsolo1/grove-scanner/pkg/service"
	"github.com/mattsolo1/grove-scanner/pkg/storage"
)

func encodedPage(t *testing.T, c color.Color) pages.BytesSource {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 30))
	for x := 0; x < 40; x++ {
		for y := 0; y < 30; y++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("Failed to encode page: %v", err)
	}
	return pages.BytesSource(buf.Bytes())
}

func TestIntegration(t *testing.T) {
	// Skip if not running integration tests
	if os.Getenv("RUN_INTEGRATION_TESTS") == "" {
		t.Skip("Skipping integration test. Set RUN_INTEGRATION_TESTS=1 to run.")
	}

	root := filepath.Join(t.TempDir(), "SimplyScanner")
	config := &service.Config{Root: root}

	var docID, folderID string

	// Test 1: Create items on a fresh root
	t.Run("CreateItems", func(t *testing.T) {
		svc, err := service.New(config, nil)
		if err != nil {
			t.Fatalf("Failed to create service: %v", err)
		}
		defer svc.Close()

		folder, err := svc.CreateFolder("Receipts")
		if err != nil {
			t.Fatalf("Failed to create folder: %v", err)
		}
		folderID = folder.ID

		doc, err := svc.CreateDocumentFromImages("Lunch", []pages.Source{
			encodedPage(t, color.White),
			encodedPage(t, color.Black),
		}, service.InFolder(folder.ID))
		if err != nil {
			t.Fatalf("Failed to create document: %v", err)
		}
		docID = doc.ID

		if len(doc.PageOrder) != 2 {
			t.Errorf("Expected 2 pages, got %d", len(doc.PageOrder))
		}
	})

	// Test 2: A restarted service finds everything through the persisted index
	t.Run("Restart", func(t *testing.T) {
		idx, err := storage.OpenSQLiteIndex(filepath.Join(root, service.IndexFileName))
		if err != nil {
			t.Fatalf("Failed to open index: %v", err)
		}
		n, err := idx.Len()
		idx.Close()
		if err != nil {
			t.Fatalf("Failed to count index: %v", err)
		}
		if n != 2 {
			t.Errorf("Expected 2 indexed items, got %d", n)
		}

		svc, err := service.New(config, nil)
		if err != nil {
			t.Fatalf("Failed to reopen service: %v", err)
		}
		defer svc.Close()

		doc, err := svc.GetItem(docID)
		if err != nil {
			t.Fatalf("Failed to get document: %v", err)
		}
		if doc.ParentID == nil || *doc.ParentID != folderID {
			t.Errorf("Expected document in folder %s", folderID)
		}

		report, err := svc.VerifyPages(docID)
		if err != nil {
			t.Fatalf("Failed to verify pages: %v", err)
		}
		if !report.Valid() {
			t.Errorf("Missing pages after restart: %v", report.Missing)
		}
	})

	// Test 3: Backup, damage, restore
	t.Run("BackupRestore", func(t *testing.T) {
		svc, err := service.New(config, nil)
		if err != nil {
			t.Fatalf("Failed to create service: %v", err)
		}
		defer svc.Close()

		backup, err := svc.Backup(docID)
		if err != nil {
			t.Fatalf("Failed to back up: %v", err)
		}
		if _, err := svc.RemovePage(docID, "page_001.jpg"); err != nil {
			t.Fatalf("Failed to remove page: %v", err)
		}

		restored, err := svc.RestoreBackup(docID, backup)
		if err != nil {
			t.Fatalf("Failed to restore: %v", err)
		}
		if len(restored.PageOrder) != 2 {
			t.Errorf("Expected 2 pages after restore, got %d", len(restored.PageOrder))
		}
	})
}

func TestEndToEnd(t *testing.T) {
	if os.Getenv("RUN_E2E_TESTS") == "" {
		t.Skip("Skipping E2E test. Set RUN_E2E_TESTS=1 to run.")
	}

	svc, err := service.New(&service.Config{Root: t.TempDir()}, nil)
	if err != nil {
		t.Fatalf("Failed to create service: %v", err)
	}
	defer svc.Close()

	doc, err := svc.CreateDocument("Contract")
	if err != nil {
		t.Fatalf("Failed to create document: %v", err)
	}
	for i := 0; i < 3; i++ {
		if doc, err = svc.AddPage(doc.ID, encodedPage(t, color.Gray{Y: uint8(i * 80)}), ""); err != nil {
			t.Fatalf("Failed to add page: %v", err)
		}
	}

	reversed := []string{doc.PageOrder[2], doc.PageOrder[1], doc.PageOrder[0]}
	doc, err = svc.ReorderPages(doc.ID, reversed)
	if err != nil {
		t.Fatalf("Failed to reorder: %v", err)
	}

	if _, err := svc.SoftDelete(doc.ID); err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}
	active, err := svc.ListItems(service.WithSort(models.SortNameAsc))
	if err != nil {
		t.Fatalf("Failed to list: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("Expected no active items, got %d", len(active))
	}

	if err := svc.PermanentlyDelete(doc.ID); err != nil {
		t.Fatalf("Failed to purge: %v", err)
	}

	t.Logf("Successfully completed end-to-end test")
}
