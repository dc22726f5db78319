// Package prompts holds the versioned prompt templates used by the
// enhancement agent and the reranker.
package prompts

import (
	"bytes"
	"embed"
	"fmt"
	"sync"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed templates/*.yaml
var files embed.FS

// DefaultVersion is the prompt version used when none is configured.
const DefaultVersion = "1.0.0"

// Template files.
const (
	DataEnhance      = "data_enhance.yaml"
	RerankAndCompare = "rerank_and_compare.yaml"
)

// EnhanceData is rendered into the DataEnhance prompt.
type EnhanceData struct {
	MemberInfo     string
	CompanyExpand  string
	LinkedinExpand string
}

// RerankData is rendered into the RerankAndCompare prompt.
type RerankData struct {
	CandidateNums int
	MemberInfo    string
	CandidateInfo string
}

type entry struct {
	Prompt string `yaml:"prompt"`
}

var (
	mu     sync.Mutex
	parsed = map[string]*template.Template{}
)

// Load returns the first prompt stored under version in the named file.
func Load(name, version string) (*template.Template, error) {
	if version == "" {
		version = DefaultVersion
	}
	cacheKey := name + "@" + version

	mu.Lock()
	defer mu.Unlock()
	if t, ok := parsed[cacheKey]; ok {
		return t, nil
	}

	raw, err := files.ReadFile("templates/" + name)
	if err != nil {
		return nil, fmt.Errorf("reading prompt %s: %w", name, err)
	}
	var doc map[string][]entry
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parsing prompt %s: %w", name, err)
	}
	entries, ok := doc[version]
	if !ok || len(entries) == 0 {
		return nil, fmt.Errorf("prompt %s has no version %q", name, version)
	}

	t, err := template.New(cacheKey).Option("missingkey=error").Parse(entries[0].Prompt)
	if err != nil {
		return nil, fmt.Errorf("compiling prompt %s@%s: %w", name, version, err)
	}
	parsed[cacheKey] = t
	return t, nil
}

// Render executes the named prompt with data.
func Render(name, version string, data any) (string, error) {
	t, err := Load(name, version)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering prompt %s: %w", name, err)
	}
	return buf.String(), nil
}
