package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalid wraps every validation failure so callers can distinguish a bad
// config file from an I/O problem.
var ErrInvalid = errors.New("invalid config")

// Config is the validated, immutable relevance model the rest of the system
// consumes. Nothing mutates it after Load returns.
type Config struct {
	Filters  Filters  `yaml:"filters"`
	Keywords Keywords `yaml:"keywords"`
	Scoring  Scoring  `yaml:"scoring"`
	Digest   Digest   `yaml:"digest"`
}

type Filters struct {
	NAICSInclude         []string `yaml:"naics_include"`
	PreferredNoticeTypes []string `yaml:"preferred_notice_types"`
	ExcludeNoticeTypes   []string `yaml:"exclude_notice_types"`
	PostedFromDays       int      `yaml:"posted_from_days"`
}

// Keywords holds substring match weights. Keys are lower-cased at load time
// so scoring can match against a lower-cased text blob directly.
type Keywords struct {
	Positive map[string]int `yaml:"positive"`
	Negative map[string]int `yaml:"negative"`
}

type Scoring struct {
	IncludeInDigestScore int `yaml:"include_in_digest_score"`
	NAICSMatchBoost      int `yaml:"naics_match_boost"`
	NoticeTypeBoost      int `yaml:"notice_type_boost"`
	SetAsideBoost        int `yaml:"set_aside_boost"`
	DeadlineUrgencyBoost int `yaml:"deadline_urgency_boost"`
}

type Digest struct {
	MaxItems int `yaml:"max_items"`
}

// Load reads, expands, parses, and validates a config file. Environment
// variables referenced as ${VAR} in the YAML are expanded before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return Parse([]byte(os.ExpandEnv(string(data))))
}

// Parse validates a raw YAML document into a Config.
func Parse(data []byte) (*Config, error) {
	var root map[string]yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	for _, section := range []string{"filters", "keywords", "scoring", "digest"} {
		if _, ok := root[section]; !ok {
			return nil, fmt.Errorf("%w: missing required section %q", ErrInvalid, section)
		}
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	cfg.Keywords.Positive = lowerKeys(cfg.Keywords.Positive)
	cfg.Keywords.Negative = lowerKeys(cfg.Keywords.Negative)
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Keywords.Positive == nil {
		return fmt.Errorf("%w: keywords.positive must be a mapping", ErrInvalid)
	}
	if c.Keywords.Negative == nil {
		return fmt.Errorf("%w: keywords.negative must be a mapping", ErrInvalid)
	}
	if c.Filters.NAICSInclude == nil {
		return fmt.Errorf("%w: filters.naics_include must be a list", ErrInvalid)
	}
	if c.Filters.PreferredNoticeTypes == nil {
		return fmt.Errorf("%w: filters.preferred_notice_types must be a list", ErrInvalid)
	}
	if c.Filters.ExcludeNoticeTypes == nil {
		return fmt.Errorf("%w: filters.exclude_notice_types must be a list", ErrInvalid)
	}
	if c.Filters.PostedFromDays < 0 {
		return fmt.Errorf("%w: filters.posted_from_days must be non-negative", ErrInvalid)
	}
	if c.Digest.MaxItems <= 0 {
		return fmt.Errorf("%w: digest.max_items must be a positive integer", ErrInvalid)
	}
	return nil
}

func lowerKeys(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[strings.ToLower(k)] = v
	}
	return out
}

// NAICSIncluded reports whether a NAICS code is on the include list.
func (c *Config) NAICSIncluded(code string) bool {
	return contains(c.Filters.NAICSInclude, code)
}

// NoticeTypePreferred reports whether a notice type earns the type boost.
func (c *Config) NoticeTypePreferred(noticeType string) bool {
	return contains(c.Filters.PreferredNoticeTypes, noticeType)
}

// NoticeTypeExcluded reports whether a notice type is filtered out entirely.
func (c *Config) NoticeTypeExcluded(noticeType string) bool {
	return contains(c.Filters.ExcludeNoticeTypes, noticeType)
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
