package queue

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestReadURLs(t *testing.T) {
	input := `# seed list
https://example.org/a

https://example.org/b
https://example.org/a
`
	urls, err := ReadURLs(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadURLs failed: %v", err)
	}
	if len(urls) != 2 || urls[0] != "https://example.org/a" || urls[1] != "https://example.org/b" {
		t.Errorf("unexpected urls: %v", urls)
	}
}

func TestReadURLsFromFile_Text(t *testing.T) {
	path := filepath.Join(t.TempDir(), "urls.txt")
	if err := os.WriteFile(path, []byte("https://example.org/x\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	urls, err := ReadURLsFromFile(path)
	if err != nil {
		t.Fatalf("ReadURLsFromFile failed: %v", err)
	}
	if len(urls) != 1 {
		t.Errorf("expected 1 url, got %v", urls)
	}
}

func TestReadURLsFromFile_Workbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "links.xlsx")

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	_ = f.SetCellValue(sheet, "A1", "Organisation")
	_ = f.SetCellValue(sheet, "B1", "Link")
	_ = f.SetCellValue(sheet, "A2", "Youth Justice Service")
	_ = f.SetCellValue(sheet, "B2", "https://example.gov.au/youth")
	_ = f.SetCellValue(sheet, "A3", "Duplicate")
	_ = f.SetCellValue(sheet, "B3", "https://example.gov.au/youth")
	_ = f.SetCellValue(sheet, "A4", "https://example.org/first-cell")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("save workbook: %v", err)
	}
	_ = f.Close()

	urls, err := ReadURLsFromFile(path)
	if err != nil {
		t.Fatalf("ReadURLsFromFile failed: %v", err)
	}
	want := []string{"https://example.gov.au/youth", "https://example.org/first-cell"}
	if len(urls) != len(want) {
		t.Fatalf("expected %v, got %v", want, urls)
	}
	for i := range want {
		if urls[i] != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], urls[i])
		}
	}
}
