package queue

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ReadURLsFromFile reads URLs from a text file (one per line) or the first
// sheet of an .xlsx workbook. Duplicates are dropped, order is kept.
func ReadURLsFromFile(filePath string) ([]string, error) {
	if strings.EqualFold(filepath.Ext(filePath), ".xlsx") {
		return readWorkbook(filePath)
	}

	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	return ReadURLs(file)
}

// ReadURLs reads one URL per line, skipping blanks and # comments
func ReadURLs(r io.Reader) ([]string, error) {
	var urls []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if !seen[line] {
			seen[line] = true
			urls = append(urls, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return urls, nil
}

// readWorkbook takes the first http(s) cell of each row in the first sheet
func readWorkbook(filePath string) ([]string, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}

	var urls []string
	seen := make(map[string]bool)
	for _, row := range rows {
		for _, cell := range row {
			cell = strings.TrimSpace(cell)
			lower := strings.ToLower(cell)
			if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
				continue
			}
			if !seen[cell] {
				seen[cell] = true
				urls = append(urls, cell)
			}
			break
		}
	}
	return urls, nil
}
