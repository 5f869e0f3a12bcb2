package codelist

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Entry maps one clinical code to the semantic name it counts toward.
type Entry struct {
	Code        string `yaml:"code" json:"code"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	Terminology string `yaml:"terminology" json:"terminology"`
}

type Codelist struct {
	Entries []Entry `yaml:"codelists" json:"codelists"`
}

func Load(path string) (Codelist, error) {
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Codelist{}, err
	}
	var list Codelist
	if err := yaml.Unmarshal(content, &list); err != nil {
		return Codelist{}, err
	}
	if len(list.Entries) == 0 {
		return Codelist{}, fmt.Errorf("codelist file %s is empty", path)
	}
	if err := list.Validate(); err != nil {
		return Codelist{}, err
	}
	return list, nil
}

var requiredColumns = []string{"code", "name", "description", "terminology"}

// FromRows builds a codelist from a plain tabular input, for projects that
// keep their codelists in a database table. Missing required columns are a
// configuration error.
func FromRows(rows []map[string]interface{}) (Codelist, error) {
	if len(rows) == 0 {
		return Codelist{}, fmt.Errorf("codelist table is empty")
	}
	for _, column := range requiredColumns {
		if _, ok := rows[0][column]; !ok {
			return Codelist{}, fmt.Errorf("codelist table is missing required column %q", column)
		}
	}
	list := Codelist{Entries: make([]Entry, 0, len(rows))}
	for _, row := range rows {
		list.Entries = append(list.Entries, Entry{
			Code:        stringField(row["code"]),
			Name:        stringField(row["name"]),
			Description: stringField(row["description"]),
			Terminology: stringField(row["terminology"]),
		})
	}
	if err := list.Validate(); err != nil {
		return Codelist{}, err
	}
	return list, nil
}

func (c Codelist) Validate() error {
	for i, entry := range c.Entries {
		if strings.TrimSpace(entry.Code) == "" {
			return fmt.Errorf("codelist entry %d has no code", i)
		}
		if strings.TrimSpace(entry.Name) == "" {
			return fmt.Errorf("codelist entry %d (%s) has no name", i, entry.Code)
		}
		if strings.TrimSpace(entry.Terminology) == "" {
			return fmt.Errorf("codelist entry %d (%s) has no terminology", i, entry.Code)
		}
	}
	return nil
}

// CodeSet returns the codes mapped to the given name. An empty result is a
// data-quality condition, not an error: downstream generation produces
// all-false flags from it.
func (c Codelist) CodeSet(name string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, entry := range c.Entries {
		if strings.EqualFold(entry.Name, name) {
			set[entry.Code] = struct{}{}
		}
	}
	return set
}

// Names returns the distinct semantic names in the codelist.
func (c Codelist) Names() []string {
	seen := make(map[string]struct{})
	names := make([]string, 0)
	for _, entry := range c.Entries {
		key := strings.ToLower(entry.Name)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		names = append(names, entry.Name)
	}
	return names
}

func stringField(raw interface{}) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}
