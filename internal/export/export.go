// Package export writes matched deals to JSON and CSV files.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/maltedev/wb-deal-scraper/internal/models"
)

// utf8BOM lets spreadsheet tools detect the encoding of Cyrillic text.
const utf8BOM = "\ufeff"

// Row is a record as written to disk.
type Row struct {
	models.ProductRecord
	DiscountDifference float64 `json:"discount_difference"`
}

func Rows(records []models.ProductRecord) []Row {
	rows := make([]Row, len(records))
	for i, r := range records {
		rows[i] = Row{ProductRecord: r, DiscountDifference: r.DiscountDifference()}
	}
	return rows
}

var csvHeader = []string{
	"url", "article", "product_name", "current_price", "second_price", "original_price",
	"feedback_discount", "rating", "reviews", "brand", "images", "discount_difference",
}

func WriteJSON(filename string, records []models.ProductRecord) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filename, err)
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(Rows(records)); err != nil {
		return fmt.Errorf("failed to write %s: %w", filename, err)
	}

	return file.Close()
}

func WriteCSV(filename string, records []models.ProductRecord) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filename, err)
	}
	defer file.Close()

	if _, err := file.WriteString(utf8BOM); err != nil {
		return err
	}

	writer := csv.NewWriter(file)

	if err := writer.Write(csvHeader); err != nil {
		return err
	}

	for _, row := range Rows(records) {
		record := []string{
			row.URL,
			row.Article,
			row.Name,
			formatFloat(row.CurrentPrice),
			formatFloat(row.SecondaryPrice),
			formatFloat(row.OriginalPrice),
			formatFloat(row.FeedbackDiscount),
			formatFloat(row.Rating),
			strconv.Itoa(row.ReviewCount),
			row.Brand,
			strings.Join(row.Images, " "),
			formatFloat(row.DiscountDifference),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to write %s: %w", filename, err)
	}

	return file.Close()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
