package tileset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LoadJSONDir читает определения из *.json файлов каталога.
// Файл содержит одно определение или массив определений.
// Отсутствие каталога возвращается как есть, чтобы вызывающий мог проверить os.IsNotExist.
func LoadJSONDir(dir string) ([]Definition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".json") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var defs []Definition
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("чтение %s: %w", name, err)
		}
		parsed, err := parseDefinitions(data)
		if err != nil {
			return nil, fmt.Errorf("разбор %s: %w", name, err)
		}
		defs = append(defs, parsed...)
	}
	return defs, nil
}

func parseDefinitions(data []byte) ([]Definition, error) {
	raws := []json.RawMessage{data}
	if strings.HasPrefix(strings.TrimSpace(string(data)), "[") {
		raws = nil
		if err := json.Unmarshal(data, &raws); err != nil {
			return nil, err
		}
	}

	defs := make([]Definition, 0, len(raws))
	for _, raw := range raws {
		// Незаданные поля получают значения нового определения
		d := NewDefinition(0)
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, err
		}
		defs = append(defs, d)
	}
	return defs, nil
}

// NewJSONRepository загружает каталог в память.
func NewJSONRepository(dir string) (*MemoryRepository, error) {
	defs, err := LoadJSONDir(dir)
	if err != nil {
		return nil, err
	}
	for _, d := range defs {
		if err := d.Validate(); err != nil {
			return nil, err
		}
	}
	return NewMemoryRepository(defs...), nil
}
