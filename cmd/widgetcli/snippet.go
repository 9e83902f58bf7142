package main

import (
	"fmt"
	"net/url"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/xiaot623/gogo/widget/internal/bridge"
)

// Snippet is the embed script tag a host page would carry, in YAML:
//
//	src: https://chat.example/embed.js?tenantId=acme
//	attributes:
//	  data-primary-color: "#112233"
type Snippet struct {
	Src        string            `yaml:"src"`
	Attributes map[string]string `yaml:"attributes"`
}

// LoadSnippet reads a snippet file.
func LoadSnippet(path string) (*Snippet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snippet: %w", err)
	}
	return ParseSnippet(data)
}

// ParseSnippet decodes snippet YAML.
func ParseSnippet(data []byte) (*Snippet, error) {
	var s Snippet
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse snippet: %w", err)
	}
	return &s, nil
}

// Layers returns the explicit parameters baked into the script URL and the
// script tag's data attributes.
func (s *Snippet) Layers() (explicit, attrs bridge.Layer, err error) {
	if s == nil {
		return bridge.Layer{}, bridge.Layer{}, nil
	}
	if s.Src != "" {
		u, err := url.Parse(s.Src)
		if err != nil {
			return bridge.Layer{}, bridge.Layer{}, fmt.Errorf("invalid snippet src: %w", err)
		}
		explicit = bridge.FromQuery(u.Query())
	}
	return explicit, bridge.FromScriptAttributes(s.Attributes), nil
}
