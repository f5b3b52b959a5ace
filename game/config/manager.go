package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/wricardo/tank-tactics/game/engine"
	"github.com/wricardo/tank-tactics/game/service"
)

var (
	ErrRulesetNotFound = service.ErrRulesetNotFound
	ErrInvalidRuleset  = errors.New("invalid ruleset")
)

// DefaultRulesetName is loaded as the default when present
const DefaultRulesetName = "classic"

// extensions lists the supported ruleset file types in lookup order
var extensions = []string{".json", ".yaml", ".yml"}

// Manager handles ruleset loading and caching
type Manager struct {
	configDir    string
	defaultRules *engine.Rules
	rulesets     map[string]*engine.Rules
	mu           sync.RWMutex
}

// NewManager creates a new ruleset manager
func NewManager(configDir string) (*Manager, error) {
	// Ensure config directory exists
	if _, err := os.Stat(configDir); os.IsNotExist(err) {
		return nil, fmt.Errorf("config directory does not exist: %s", configDir)
	}

	m := &Manager{
		configDir: configDir,
		rulesets:  make(map[string]*engine.Rules),
	}

	if err := m.loadDefaultRuleset(); err != nil {
		return nil, fmt.Errorf("failed to load default ruleset: %w", err)
	}

	return m, nil
}

// LoadRuleset loads a ruleset by name. The name may carry a file extension.
func (m *Manager) LoadRuleset(name string) (*engine.Rules, error) {
	id := rulesetID(name)

	m.mu.RLock()
	// Check cache first
	if rules, exists := m.rulesets[id]; exists {
		m.mu.RUnlock()
		return rules, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock
	if rules, exists := m.rulesets[id]; exists {
		return rules, nil
	}

	path, err := m.findFile(name)
	if err != nil {
		return nil, err
	}

	rules, err := ParseRulesetFile(path)
	if err != nil {
		return nil, err
	}

	m.rulesets[id] = rules
	return rules, nil
}

// ListRulesets returns information about all valid rulesets in the directory
func (m *Manager) ListRulesets() ([]*service.RulesetInfo, error) {
	entries, err := os.ReadDir(m.configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read config directory: %w", err)
	}

	var rulesets []*service.RulesetInfo
	seen := make(map[string]bool)

	for _, entry := range entries {
		if entry.IsDir() || !isRulesetFile(entry.Name()) {
			continue
		}

		id := rulesetID(entry.Name())
		if seen[id] {
			continue
		}

		rules, err := m.LoadRuleset(entry.Name())
		if err != nil {
			// Skip invalid rulesets
			continue
		}
		seen[id] = true

		rulesets = append(rulesets, &service.RulesetInfo{
			Filename:    entry.Name(),
			RulesetID:   id,
			Name:        rules.Name,
			Description: rules.Description,
			Cols:        rules.Cols,
			Rows:        rules.Rows,
		})
	}

	sort.Slice(rulesets, func(i, j int) bool {
		return rulesets[i].RulesetID < rulesets[j].RulesetID
	})
	return rulesets, nil
}

// GetDefault returns the default ruleset
func (m *Manager) GetDefault() *engine.Rules {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.defaultRules
}

// SetDefault sets the default ruleset by name
func (m *Manager) SetDefault(name string) error {
	rules, err := m.LoadRuleset(name)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultRules = rules
	return nil
}

// RefreshCache drops all cached rulesets and reloads the default
func (m *Manager) RefreshCache() error {
	m.mu.Lock()
	m.rulesets = make(map[string]*engine.Rules)
	m.mu.Unlock()

	return m.loadDefaultRuleset()
}

// SaveRuleset validates and writes a ruleset. The extension picks the
// format; names without one are written as JSON.
func (m *Manager) SaveRuleset(name string, rules *engine.Rules) error {
	if err := engine.ValidateRules(rules); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRuleset, err)
	}

	filename := filepath.Base(name)
	if !isRulesetFile(filename) {
		filename += ".json"
	}

	var (
		data []byte
		err  error
	)
	if strings.HasSuffix(filename, ".json") {
		data, err = json.MarshalIndent(rules, "", "  ")
	} else {
		data, err = yaml.Marshal(rules)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal ruleset: %w", err)
	}

	if err := os.WriteFile(filepath.Join(m.configDir, filename), data, 0644); err != nil {
		return fmt.Errorf("failed to write ruleset file: %w", err)
	}

	m.mu.Lock()
	m.rulesets[rulesetID(filename)] = rules
	m.mu.Unlock()

	return nil
}

// ParseRulesetFile reads and validates one ruleset file
func ParseRulesetFile(path string) (*engine.Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrRulesetNotFound, filepath.Base(path))
		}
		return nil, fmt.Errorf("failed to read ruleset file: %w", err)
	}

	var rules engine.Rules
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &rules)
	default:
		err = json.Unmarshal(data, &rules)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse ruleset %s: %w", filepath.Base(path), err)
	}

	if err := engine.ValidateRules(&rules); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRuleset, err)
	}

	return &rules, nil
}

// loadDefaultRuleset prefers classic, then the first valid file, then the built-in rules
func (m *Manager) loadDefaultRuleset() error {
	rules, err := m.LoadRuleset(DefaultRulesetName)
	if err != nil {
		available, listErr := m.ListRulesets()
		if listErr != nil || len(available) == 0 {
			m.setDefault(engine.DefaultRules())
			return nil
		}

		rules, err = m.LoadRuleset(available[0].Filename)
		if err != nil {
			m.setDefault(engine.DefaultRules())
			return nil
		}
	}

	m.setDefault(rules)
	return nil
}

func (m *Manager) setDefault(rules *engine.Rules) {
	m.mu.Lock()
	m.defaultRules = rules
	m.mu.Unlock()
}

// findFile resolves a ruleset name to a file in the config directory
func (m *Manager) findFile(name string) (string, error) {
	base := filepath.Base(name)
	if isRulesetFile(base) {
		path := filepath.Join(m.configDir, base)
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("%w: %s", ErrRulesetNotFound, name)
		}
		return path, nil
	}

	for _, ext := range extensions {
		path := filepath.Join(m.configDir, base+ext)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrRulesetNotFound, name)
}

func isRulesetFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// rulesetID strips the extension: "classic.yaml" and "classic" share a cache entry
func rulesetID(name string) string {
	base := filepath.Base(name)
	if isRulesetFile(base) {
		return strings.TrimSuffix(base, filepath.Ext(base))
	}
	return base
}
