// Package scenes reads and writes tabular scene lists.
package scenes

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"scenegen/internal/domain"
)

// Format identifies a supported input encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// FormatFromPath derives the input format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: %q (use .csv or .json)", domain.ErrUnsupportedFormat, filepath.Base(path))
	}
}

// Load reads the scene file at path and returns its scenes sorted by number.
func Load(path string) ([]domain.Scene, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("scenes: open %s: %w", path, err)
	}
	defer f.Close()
	return Decode(f, format)
}

// Decode parses scenes from r. A leading UTF-8 byte order mark is ignored.
func Decode(r io.Reader, format Format) ([]domain.Scene, error) {
	r = transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	var (
		scenes []domain.Scene
		err    error
	)
	switch format {
	case FormatCSV:
		scenes, err = decodeCSV(r)
	case FormatJSON:
		scenes, err = decodeJSON(r)
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, err
	}
	sort.SliceStable(scenes, func(i, j int) bool {
		return scenes[i].SceneNumber < scenes[j].SceneNumber
	})
	if err := CheckUnique(scenes); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedRecord, err)
	}
	return scenes, nil
}

// CheckUnique reports the first scene_number that appears more than once.
// Each number names an output file, so a repeat would overwrite an image.
func CheckUnique(list []domain.Scene) error {
	seen := make(map[int]struct{}, len(list))
	for _, sc := range list {
		if _, ok := seen[sc.SceneNumber]; ok {
			return fmt.Errorf("duplicate scene_number %d", sc.SceneNumber)
		}
		seen[sc.SceneNumber] = struct{}{}
	}
	return nil
}

var requiredColumns = []string{"scene_number", "script_line", "scene_type"}

func decodeCSV(r io.Reader) ([]domain.Scene, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: missing header row", domain.ErrMalformedRecord)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedRecord, err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", domain.ErrMalformedRecord, col)
		}
	}

	field := func(row []string, name string) (string, bool) {
		i, ok := index[name]
		if !ok || i >= len(row) {
			return "", false
		}
		return row[i], true
	}

	scenes := []domain.Scene{}
	for line := 2; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrMalformedRecord, err)
		}
		rawNumber, ok := field(row, "scene_number")
		if !ok {
			return nil, fmt.Errorf("%w: line %d: missing scene_number", domain.ErrMalformedRecord, line)
		}
		number, err := parseSceneNumber(rawNumber)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", domain.ErrMalformedRecord, line, err)
		}
		scriptLine, ok := field(row, "script_line")
		if !ok {
			return nil, fmt.Errorf("%w: line %d: missing script_line", domain.ErrMalformedRecord, line)
		}
		sceneType, ok := field(row, "scene_type")
		if !ok {
			return nil, fmt.Errorf("%w: line %d: missing scene_type", domain.ErrMalformedRecord, line)
		}
		props, _ := field(row, "props")
		style, _ := field(row, "style")
		scenes = append(scenes, domain.Scene{
			SceneNumber: number,
			ScriptLine:  scriptLine,
			SceneType:   sceneType,
			Props:       domain.SplitProps(props),
			Style:       strings.TrimSpace(style),
		})
	}
	return scenes, nil
}

type jsonScene struct {
	SceneNumber *sceneNumber `json:"scene_number"`
	ScriptLine  *string      `json:"script_line"`
	SceneType   *string      `json:"scene_type"`
	Props       propList     `json:"props"`
	Style       string       `json:"style"`
}

func decodeJSON(r io.Reader) ([]domain.Scene, error) {
	var records []jsonScene
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedRecord, err)
	}
	return fromRecords(records)
}

func fromRecords(records []jsonScene) ([]domain.Scene, error) {
	scenes := make([]domain.Scene, 0, len(records))
	for i, rec := range records {
		switch {
		case rec.SceneNumber == nil:
			return nil, fmt.Errorf("%w: record %d: missing scene_number", domain.ErrMalformedRecord, i+1)
		case rec.ScriptLine == nil:
			return nil, fmt.Errorf("%w: record %d: missing script_line", domain.ErrMalformedRecord, i+1)
		case rec.SceneType == nil:
			return nil, fmt.Errorf("%w: record %d: missing scene_type", domain.ErrMalformedRecord, i+1)
		}
		props := []string(rec.Props)
		if props == nil {
			props = []string{}
		}
		scenes = append(scenes, domain.Scene{
			SceneNumber: int(*rec.SceneNumber),
			ScriptLine:  *rec.ScriptLine,
			SceneType:   *rec.SceneType,
			Props:       props,
			Style:       strings.TrimSpace(rec.Style),
		})
	}
	return scenes, nil
}

// DecodeRecords parses a JSON array of scene objects, as produced by a
// language model, without sorting it.
func DecodeRecords(data []byte) ([]domain.Scene, error) {
	var records []jsonScene
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	return fromRecords(records)
}

type sceneNumber int

func (n *sceneNumber) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if unquoted, err := strconv.Unquote(raw); err == nil {
		raw = unquoted
	}
	v, err := parseSceneNumber(raw)
	if err != nil {
		return err
	}
	*n = sceneNumber(v)
	return nil
}

func parseSceneNumber(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	v, err := strconv.Atoi(raw)
	if err != nil {
		f, ferr := strconv.ParseFloat(raw, 64)
		if ferr != nil || f != float64(int(f)) {
			return 0, fmt.Errorf("scene_number %q is not an integer", raw)
		}
		v = int(f)
	}
	if v <= 0 {
		return 0, fmt.Errorf("scene_number %d must be positive", v)
	}
	return v, nil
}

// propList accepts either a JSON list of strings or a comma-joined string.
type propList []string

func (p *propList) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	switch {
	case raw == "null":
		*p = propList{}
		return nil
	case strings.HasPrefix(raw, `"`):
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = propList(domain.SplitProps(s))
		return nil
	}
	var items []string
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("props must be a list of strings or a comma separated string: %w", err)
	}
	out := make(propList, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	*p = out
	return nil
}
