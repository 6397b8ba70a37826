package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"chartaudit/internal/series"
)

// Category fixes, for one chart category, the default tooltip parameter
// names (key field first), the native datastore columns holding the same
// quantities, and where to query them. The reconciler receives this table
// as input; it never hardcodes names.
type Category struct {
	Name       series.Category `yaml:"-"`
	Parameters []string        `yaml:"parameters"`
	Columns    []string        `yaml:"columns"`
	Table      string          `yaml:"table"`
	KeyColumn  string          `yaml:"key_column"`
}

// defaults mirror the dashboard's stock series labels and the store's
// profile tables. A deployment that renames either side overrides them via
// Categories(file).
var defaults = map[series.Category]Category{
	series.Voltage: {
		Parameters: []string{"Date", "Voltage R", "Voltage Y", "Voltage B"},
		Columns:    []string{"VoltageR", "VoltageY", "VoltageB"},
		Table:      "voltage_profile",
		KeyColumn:  "SurveyDate",
	},
	series.Current: {
		Parameters: []string{"Date", "Current R", "Current Y", "Current B"},
		Columns:    []string{"CurrentR", "CurrentY", "CurrentB"},
		Table:      "current_profile",
		KeyColumn:  "SurveyDate",
	},
	series.Energy: {
		Parameters: []string{"Date", "Active", "Apparent", "Reactive"},
		Columns:    []string{"ActiveEnergy", "ApparentEnergy", "ReactiveEnergy"},
		Table:      "energy_profile",
		KeyColumn:  "SurveyDate",
	},
	series.Demand: {
		Parameters: []string{"Date", "Active", "Apparent"},
		Columns:    []string{"ActivePowerSum", "ApparentPowerSum"},
		Table:      "demand_profile",
		KeyColumn:  "SurveyDate",
	},
}

// Categories returns the category table, with entries overridden from the
// given YAML file when one is provided. Unknown category names in the file
// are rejected rather than ignored.
func Categories(file string) (map[series.Category]Category, error) {
	table := make(map[series.Category]Category, len(defaults))
	for name, c := range defaults {
		c.Name = name
		table[name] = c
	}
	if file == "" {
		return table, nil
	}

	raw, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read category config: %w", err)
	}
	var overrides map[string]Category
	if err := yaml.Unmarshal(raw, &overrides); err != nil {
		return nil, fmt.Errorf("parse category config: %w", err)
	}
	for name, o := range overrides {
		base, ok := table[series.Category(name)]
		if !ok {
			return nil, fmt.Errorf("category config: unknown category %q", name)
		}
		if len(o.Parameters) > 0 {
			base.Parameters = o.Parameters
		}
		if len(o.Columns) > 0 {
			base.Columns = o.Columns
		}
		if o.Table != "" {
			base.Table = o.Table
		}
		if o.KeyColumn != "" {
			base.KeyColumn = o.KeyColumn
		}
		table[series.Category(name)] = base
	}
	return table, nil
}

// Lookup resolves a category by its user-facing name.
func Lookup(table map[series.Category]Category, name string) (Category, error) {
	c, ok := table[series.Category(name)]
	if !ok {
		return Category{}, fmt.Errorf("unknown category %q (want Voltage, Current, Energy or Demand)", name)
	}
	return c, nil
}
