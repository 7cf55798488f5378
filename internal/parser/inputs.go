package parser

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/chaifeng/proxy.pac/internal/model"
)

// ParseHosts reads the hosts to classify. A CSV with a "Host" header column
// is read by that column; any other input is read as one host per line,
// taking the first field. Blank rows and '#' comments are skipped.
func ParseHosts(r io.Reader) ([]string, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1
	reader.Comment = '#'

	first, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not read header: %w", err)
	}

	hostCol := -1
	for i, col := range first {
		if strings.EqualFold(strings.TrimSpace(col), "Host") {
			hostCol = i
			break
		}
	}

	var hosts []string
	if hostCol == -1 {
		hostCol = 0
		hosts = appendHost(hosts, first, hostCol)
	}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		hosts = appendHost(hosts, record, hostCol)
	}
	return hosts, nil
}

func appendHost(hosts, record []string, col int) []string {
	if col >= len(record) {
		return hosts
	}
	host := strings.TrimSpace(record[col])
	if host == "" {
		return hosts
	}
	return append(hosts, host)
}

// ParseCheckCases reads a self-test CSV with the columns kind, input and
// expected.
func ParseCheckCases(r io.Reader) ([]model.CheckCase, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1
	reader.Comment = '#'

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("could not read header: %w", err)
	}
	colMap := make(map[string]int)
	for i, colName := range header {
		colMap[strings.ToLower(strings.TrimSpace(colName))] = i
	}
	for _, required := range []string{"kind", "input", "expected"} {
		if _, ok := colMap[required]; !ok {
			return nil, fmt.Errorf("could not find '%s' column in check file", required)
		}
	}

	var cases []model.CheckCase
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		line++
		field := func(name string) string {
			if i := colMap[name]; i < len(record) {
				return strings.TrimSpace(record[i])
			}
			return ""
		}
		kind := model.CheckKind(strings.ToLower(field("kind")))
		if kind != model.CheckNetwork && kind != model.CheckDirective {
			return nil, fmt.Errorf("record %d: %w: unknown check kind %q", line, ErrInvalidEntry, field("kind"))
		}
		cases = append(cases, model.CheckCase{Kind: kind, Input: field("input"), Expected: field("expected")})
	}
	return cases, nil
}
