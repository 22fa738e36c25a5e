/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package logistics infers the travel group of an address.
package logistics

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/friendsincode/fieldops/internal/models"
	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRules []byte

// Rule maps address keywords to a group.
type Rule struct {
	Group       models.LogisticsGroup `yaml:"group"`
	Description string                `yaml:"description"`
	Keywords    []string              `yaml:"keywords"`
}

// Rules is the on-disk rules document.
type Rules struct {
	Default models.LogisticsGroup `yaml:"default"`
	Groups  []Rule                `yaml:"groups"`
}

// Classifier assigns a logistics group to an address.
type Classifier struct {
	fallback models.LogisticsGroup
	rules    []compiledRule
}

type compiledRule struct {
	group    models.LogisticsGroup
	patterns []*regexp.Regexp
}

// Default returns a classifier built from the embedded rules.
func Default() *Classifier {
	c, err := Parse(defaultRules)
	if err != nil {
		panic(fmt.Sprintf("logistics: embedded rules invalid: %v", err))
	}
	return c
}

// Load reads rules from path, or the embedded rules when path is empty.
func Load(path string) (*Classifier, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read logistics rules: %w", err)
	}
	return Parse(data)
}

// Parse builds a classifier from a YAML rules document.
func Parse(data []byte) (*Classifier, error) {
	var doc Rules
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse logistics rules: %w", err)
	}

	c := &Classifier{fallback: models.GroupA}
	if doc.Default != "" {
		g := models.LogisticsGroup(strings.ToUpper(string(doc.Default)))
		if !g.Valid() {
			return nil, fmt.Errorf("invalid default group %q", doc.Default)
		}
		c.fallback = g
	}

	for i, r := range doc.Groups {
		g := models.LogisticsGroup(strings.ToUpper(string(r.Group)))
		if !g.Valid() {
			return nil, fmt.Errorf("rule %d: invalid group %q", i, r.Group)
		}
		cr := compiledRule{group: g}
		for _, kw := range r.Keywords {
			kw = normalize(kw)
			if kw == "" {
				continue
			}
			// Whole words only, so "km" does not match "kmart".
			re, err := regexp.Compile(`(^|[^\pL\pN])` + regexp.QuoteMeta(kw) + `($|[^\pL\pN])`)
			if err != nil {
				return nil, fmt.Errorf("rule %d: keyword %q: %w", i, kw, err)
			}
			cr.patterns = append(cr.patterns, re)
		}
		c.rules = append(c.rules, cr)
	}
	return c, nil
}

// Classify returns the group for address. Empty or unmatched addresses get
// the default group.
func (c *Classifier) Classify(address string) models.LogisticsGroup {
	addr := normalize(address)
	if addr == "" {
		return c.fallback
	}
	for _, r := range c.rules {
		for _, re := range r.patterns {
			if re.MatchString(addr) {
				return r.group
			}
		}
	}
	return c.fallback
}

var accents = strings.NewReplacer(
	"á", "a", "à", "a", "â", "a", "ã", "a", "ä", "a",
	"é", "e", "ê", "e", "è", "e",
	"í", "i", "î", "i",
	"ó", "o", "ô", "o", "õ", "o", "ö", "o",
	"ú", "u", "ü", "u",
	"ç", "c",
)

func normalize(s string) string {
	return strings.TrimSpace(accents.Replace(strings.ToLower(s)))
}
