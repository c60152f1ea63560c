package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/maltedev/wb-deal-scraper/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sample = []models.ProductRecord{{
	URL:              "https://www.wildberries.ru/catalog/1/detail.aspx",
	Article:          "1",
	Name:             "Маска, для волос",
	CurrentPrice:     90,
	FeedbackDiscount: 120.5,
	Rating:           4.8,
	ReviewCount:      12,
	Brand:            "Estel",
	Images:           []string{"https://img/1.jpg", "https://img/2.jpg"},
}}

func TestWriteJSON(t *testing.T) {
	file := filepath.Join(t.TempDir(), "results.json")

	require.NoError(t, WriteJSON(file, sample))

	raw, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Маска, для волос", "non-ASCII text is written as is")

	var rows []map[string]any
	require.NoError(t, json.Unmarshal(raw, &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, 30.5, rows[0]["discount_difference"])
	assert.Equal(t, "Маска, для волос", rows[0]["product_name"])
}

func TestWriteCSV(t *testing.T) {
	file := filepath.Join(t.TempDir(), "results.csv")

	require.NoError(t, WriteCSV(file, sample))

	raw, err := os.ReadFile(file)
	require.NoError(t, err)
	content := string(raw)
	assert.True(t, strings.HasPrefix(content, utf8BOM))

	lines := strings.Split(strings.TrimSpace(strings.TrimPrefix(content, utf8BOM)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, strings.Join(csvHeader, ","), lines[0])
	assert.Equal(t, `https://www.wildberries.ru/catalog/1/detail.aspx,1,"Маска, для волос",90,0,0,120.5,4.8,12,Estel,https://img/1.jpg https://img/2.jpg,30.5`, lines[1])
}
