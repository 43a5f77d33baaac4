package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/weather-grid-sync/internal/domain"
)

var requiredColumns = []string{"field_id", "lon", "lat", "date_planted"}

// readFields parses a fields CSV. Rows are validated individually and the
// first bad row aborts the whole load.
func readFields(r io.Reader) ([]domain.ConsumerLocation, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("empty file")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	colIdx := map[string]int{}
	for i, h := range header {
		colIdx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, col := range requiredColumns {
		if _, ok := colIdx[col]; !ok {
			return nil, fmt.Errorf("missing column %q", col)
		}
	}

	var out []domain.ConsumerLocation
	seen := map[int64]int{}
	for line := 2; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		f, err := parseField(row, colIdx)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if prev, ok := seen[f.ID]; ok {
			return nil, fmt.Errorf("line %d: field %d already defined on line %d", line, f.ID, prev)
		}
		seen[f.ID] = line
		out = append(out, f)
	}
	return out, nil
}

func parseField(row []string, colIdx map[string]int) (domain.ConsumerLocation, error) {
	var f domain.ConsumerLocation

	id, err := strconv.ParseInt(get(row, colIdx, "field_id"), 10, 64)
	if err != nil {
		return f, fmt.Errorf("field_id: %w", err)
	}
	lon, err := strconv.ParseFloat(get(row, colIdx, "lon"), 64)
	if err != nil || lon < -180 || lon > 180 {
		return f, fmt.Errorf("lon %q out of range", get(row, colIdx, "lon"))
	}
	lat, err := strconv.ParseFloat(get(row, colIdx, "lat"), 64)
	if err != nil || lat < -90 || lat > 90 {
		return f, fmt.Errorf("lat %q out of range", get(row, colIdx, "lat"))
	}
	planted, err := time.Parse(domain.DateLayout, get(row, colIdx, "date_planted"))
	if err != nil {
		return f, fmt.Errorf("date_planted: %w", err)
	}

	f.ID = id
	f.Point = domain.Point{Lon: lon, Lat: lat}
	f.EarliestRequiredDate = planted
	return f, nil
}

func get(row []string, idx map[string]int, col string) string {
	i, ok := idx[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
