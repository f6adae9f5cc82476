package project

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/adrg/frontmatter"
	"gopkg.in/yaml.v3"
)

// Agent is an agent definition shipped in a site's config bundle.
type Agent struct {
	Name        string          `json:"name" yaml:"-"`
	Description string          `json:"description" yaml:"description"`
	Mode        string          `json:"mode,omitempty" yaml:"mode"`
	Model       string          `json:"model,omitempty" yaml:"model"`
	Temperature *float64        `json:"temperature,omitempty" yaml:"temperature"`
	Tools       map[string]bool `json:"tools,omitempty" yaml:"tools"`
	Path        string          `json:"path" yaml:"-"`
}

var yamlFrontmatter = frontmatter.NewFormat("---", "---", yaml.Unmarshal)

var agentDirs = []string{
	filepath.Join(".opencode", "agent"),
	filepath.Join(".opencode", "agents"),
}

// Agents lists the agent markdown files in dir's .opencode tree, sorted by
// name. A directory without agents yields an empty list.
func (m *Manager) Agents(dir string) ([]Agent, error) {
	var agents []Agent
	for _, sub := range agentDirs {
		entries, err := os.ReadDir(filepath.Join(dir, sub))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("failed to list agents: %w", err)
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
				continue
			}
			path := filepath.Join(dir, sub, e.Name())
			agent, err := parseAgent(path)
			if err != nil {
				m.logger.Warnw("skipping unreadable agent definition", "path", path, "error", err)
				continue
			}
			agents = append(agents, agent)
		}
	}

	sort.Slice(agents, func(i, j int) bool { return agents[i].Name < agents[j].Name })
	return agents, nil
}

func parseAgent(path string) (Agent, error) {
	f, err := os.Open(path)
	if err != nil {
		return Agent{}, err
	}
	defer f.Close()

	var agent Agent
	if _, err := frontmatter.Parse(f, &agent, yamlFrontmatter); err != nil {
		return Agent{}, fmt.Errorf("invalid frontmatter: %w", err)
	}
	agent.Name = strings.TrimSuffix(filepath.Base(path), ".md")
	agent.Path = path
	return agent, nil
}
