// Package config loads converter settings from YAML. An embedded default file
// is always applied first; a user file only overrides the keys it sets.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/insightdelivered/releve-converter/internal/parser"
)

//go:embed default.yaml
var embeddedDefault []byte

// Output formats.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
	FormatJSON = "json"
)

// Credit rules.
const (
	CreditRuleColumn = "column"
	CreditRuleWidth  = "width"
)

type Locale struct {
	DecimalSeparator   string `yaml:"decimal_separator"`
	ThousandsSeparator string `yaml:"thousands_separator"`
	DefaultCurrency    string `yaml:"default_currency"`
}

type Table struct {
	BlankRunThreshold    int      `yaml:"blank_run_threshold"`
	CreditRule           string   `yaml:"credit_rule"`
	CreditWidthThreshold int      `yaml:"credit_width_threshold"`
	FooterPatterns       []string `yaml:"footer_patterns"`
}

type Reconciliation struct {
	Tolerance  string `yaml:"tolerance"`
	Diagnostic bool   `yaml:"diagnostic"`
}

type Batch struct {
	Workers int `yaml:"workers"`
}

type Output struct {
	Format       string `yaml:"format"`
	CSVSeparator string `yaml:"csv_separator"`
	Dir          string `yaml:"dir"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console or json
}

// Config is the full converter configuration.
type Config struct {
	Locale         Locale         `yaml:"locale"`
	Table          Table          `yaml:"table"`
	Reconciliation Reconciliation `yaml:"reconciliation"`
	Batch          Batch          `yaml:"batch"`
	Output         Output         `yaml:"output"`
	Log            Log            `yaml:"log"`
}

// Default returns the embedded configuration.
func Default() (*Config, error) {
	return Parse(nil)
}

// Load applies the YAML file at path over the defaults. An empty path returns
// the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse applies data over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(embeddedDefault, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse embedded config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every setting.
func (c *Config) Validate() error {
	if _, err := c.locale(); err != nil {
		return err
	}
	if c.Table.BlankRunThreshold < 1 {
		return fmt.Errorf("table.blank_run_threshold must be positive, got %d", c.Table.BlankRunThreshold)
	}
	switch c.Table.CreditRule {
	case CreditRuleColumn:
	case CreditRuleWidth:
		if c.Table.CreditWidthThreshold < 1 {
			return fmt.Errorf("table.credit_width_threshold must be positive, got %d", c.Table.CreditWidthThreshold)
		}
	default:
		return fmt.Errorf("invalid table.credit_rule %q (must be 'column' or 'width')", c.Table.CreditRule)
	}
	if _, err := c.footers(); err != nil {
		return err
	}
	tol, err := decimal.NewFromString(c.Reconciliation.Tolerance)
	if err != nil {
		return fmt.Errorf("invalid reconciliation.tolerance %q: %w", c.Reconciliation.Tolerance, err)
	}
	if tol.IsNegative() {
		return fmt.Errorf("reconciliation.tolerance cannot be negative, got %s", tol)
	}
	if c.Batch.Workers < 1 {
		return fmt.Errorf("batch.workers must be positive, got %d", c.Batch.Workers)
	}
	switch c.Output.Format {
	case FormatCSV, FormatXLSX, FormatJSON:
	default:
		return fmt.Errorf("invalid output.format %q (must be csv, xlsx or json)", c.Output.Format)
	}
	if utf8.RuneCountInString(c.Output.CSVSeparator) != 1 {
		return fmt.Errorf("output.csv_separator must be a single character, got %q", c.Output.CSVSeparator)
	}
	return nil
}

// CSVSeparator returns the configured CSV field separator.
func (c *Config) CSVSeparator() rune {
	r, _ := utf8.DecodeRuneInString(c.Output.CSVSeparator)
	return r
}

// ParserOptions converts the configuration into parser options.
func (c *Config) ParserOptions() (parser.Options, error) {
	if err := c.Validate(); err != nil {
		return parser.Options{}, err
	}
	loc, _ := c.locale()
	footers, _ := c.footers()

	opts := parser.DefaultOptions()
	opts.Locale = loc
	opts.BlankRunThreshold = c.Table.BlankRunThreshold
	opts.Tolerance = decimal.RequireFromString(c.Reconciliation.Tolerance)
	opts.Diagnostic = c.Reconciliation.Diagnostic
	opts.FooterPatterns = footers
	opts.DefaultCurrency = c.Locale.DefaultCurrency
	if c.Table.CreditRule == CreditRuleWidth {
		opts.CreditRule = parser.WidthRule{Threshold: c.Table.CreditWidthThreshold}
	}
	return opts, nil
}

func (c *Config) locale() (parser.Locale, error) {
	dec, ok := singleRune(c.Locale.DecimalSeparator)
	if !ok {
		return parser.Locale{}, fmt.Errorf("locale.decimal_separator must be a single character, got %q", c.Locale.DecimalSeparator)
	}
	th, ok := singleRune(c.Locale.ThousandsSeparator)
	if !ok {
		return parser.Locale{}, fmt.Errorf("locale.thousands_separator must be a single character, got %q", c.Locale.ThousandsSeparator)
	}
	if dec == th {
		return parser.Locale{}, fmt.Errorf("locale separators must differ, both are %q", string(dec))
	}
	return parser.Locale{Decimal: dec, Thousands: th}, nil
}

func (c *Config) footers() ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(c.Table.FooterPatterns))
	for _, p := range c.Table.FooterPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid table.footer_patterns entry %q: %w", p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

func singleRune(s string) (rune, bool) {
	if utf8.RuneCountInString(s) != 1 {
		return 0, false
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r, true
}
