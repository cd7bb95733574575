package services

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/foxxcyber/loan-tracker/internal/models"
)

// ItemCSVHeader is the column order of item import files
var ItemCSVHeader = []string{"item_id", "name", "genre", "manager"}

// templateExampleRow is offered to users together with the header
var templateExampleRow = []string{"4901234567894", "Board game: Castles", "Board games", "Sato"}

var (
	ErrEmptyCSV     = errors.New("csv file contains no item rows")
	ErrTooManyRows  = errors.New("csv file contains too many rows")
	ErrMalformedCSV = errors.New("csv file could not be parsed")
)

// ParseItemsCSV reads candidate items from a comma-separated file. A first
// record whose first field is exactly "item_id" is treated as a header.
// Missing trailing fields are read as empty, a fifth column is an image URL.
func ParseItemsCSV(reader io.Reader, maxRows int) ([]models.CandidateItem, error) {
	br := bufio.NewReader(reader)
	// Strip UTF-8 BOM written by spreadsheet exports
	if bom, err := br.Peek(3); err == nil && bytes.Equal(bom, []byte{0xEF, 0xBB, 0xBF}) {
		_, _ = br.Discard(3)
	}

	csvReader := csv.NewReader(br)
	csvReader.FieldsPerRecord = -1
	csvReader.LazyQuotes = true
	csvReader.TrimLeadingSpace = true

	var rows []models.CandidateItem
	first := true

	for {
		record, err := csvReader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedCSV, err)
		}

		if first {
			first = false
			if len(record) > 0 && record[0] == ItemCSVHeader[0] {
				continue
			}
		}

		if blankRecord(record) {
			continue
		}

		if maxRows > 0 && len(rows) >= maxRows {
			return nil, fmt.Errorf("%w (limit %d)", ErrTooManyRows, maxRows)
		}

		line, _ := csvReader.FieldPos(0)
		row := models.CandidateItem{
			Row:        line,
			ExternalID: field(record, 0),
			Name:       field(record, 1),
			Genre:      field(record, 2),
			Manager:    field(record, 3),
		}
		if url := field(record, 4); url != "" {
			row.ImageURL = &url
		}
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return nil, ErrEmptyCSV
	}

	return rows, nil
}

func field(record []string, i int) string {
	if i < len(record) {
		return strings.TrimSpace(record[i])
	}
	return ""
}

func blankRecord(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// WriteItemCSVTemplate writes the downloadable import template
func WriteItemCSVTemplate(w io.Writer) error {
	csvWriter := csv.NewWriter(w)
	if err := csvWriter.Write(ItemCSVHeader); err != nil {
		return err
	}
	if err := csvWriter.Write(templateExampleRow); err != nil {
		return err
	}
	csvWriter.Flush()
	return csvWriter.Error()
}
