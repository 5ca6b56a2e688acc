// Package session holds the process-wide session configuration and counters,
// their clamping rules, and their mapping onto persisted store keys.
package session

import (
	"strings"
	"sync"

	"github.com/hazyhaar/feedsweep/sweeper/internal/classify"
)

// Ranges of the numeric configuration fields.
const (
	MinScrollDelay = 1
	MaxScrollDelay = 120
	MinReload      = 0
	MaxReload      = 50

	DefaultScrollDelay = 10
)

// Config is the mutable session configuration.
type Config struct {
	Running              bool   `json:"running"`
	SuppressAds          bool   `json:"suppressAds"`
	SuppressSuggested    bool   `json:"suppressSuggested"`
	ForeignScriptLock    bool   `json:"foreignScriptLock"`
	ScrollDelaySeconds   int    `json:"scrollDelaySeconds"`
	ActionsBeforeReload  int    `json:"actionsBeforeReload"`
	KeywordFilterEnabled bool   `json:"keywordFilterEnabled"`
	KeywordFilterText    string `json:"keywordFilterText"`
	HumanPacingEnabled   bool   `json:"humanPacingEnabled"`
}

// Defaults returns the initial configuration.
func Defaults() Config {
	return Config{
		SuppressAds:        true,
		SuppressSuggested:  true,
		ScrollDelaySeconds: DefaultScrollDelay,
	}
}

// Normalize clamps numeric fields and trims the keyword.
func (c *Config) Normalize() {
	c.ScrollDelaySeconds = Clamp(c.ScrollDelaySeconds, MinScrollDelay, MaxScrollDelay)
	c.ActionsBeforeReload = Clamp(c.ActionsBeforeReload, MinReload, MaxReload)
	c.KeywordFilterText = strings.TrimSpace(c.KeywordFilterText)
}

// FilterActive reports whether keyword-filter mode is on.
func (c Config) FilterActive() bool {
	return c.KeywordFilterEnabled && c.KeywordFilterText != ""
}

// Rules projects the configuration onto the classifier's input.
func (c Config) Rules() classify.Rules {
	return classify.Rules{
		KeywordFilterEnabled: c.KeywordFilterEnabled,
		KeywordFilterText:    c.KeywordFilterText,
		ForeignScriptLock:    c.ForeignScriptLock,
		SuppressSuggested:    c.SuppressSuggested,
		SuppressAds:          c.SuppressAds,
	}
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Counters are the running session counts. Total == Suppressed +
// RelationshipsRemoved whenever observed.
type Counters struct {
	Suppressed           int `json:"suppressedCount"`
	RelationshipsRemoved int `json:"relationshipRemovedCount"`
	TotalActions         int `json:"totalActionCount"`
	ActionsSinceReload   int `json:"actionsSinceReload"`
	KeywordMatches       int `json:"keywordMatchCount"`
}

// State guards the configuration. Readers take a Snapshot per cycle; each
// field has a single setter.
type State struct {
	mu  sync.RWMutex
	cfg Config
}

// NewState creates a State from cfg (normalized).
func NewState(cfg Config) *State {
	cfg.Normalize()
	return &State{cfg: cfg}
}

// Snapshot returns an immutable copy of the configuration.
func (s *State) Snapshot() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// HumanPacing is read by the pacing policy on every delay.
func (s *State) HumanPacing() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.HumanPacingEnabled
}

// ActionsBeforeReload is read by the counters on every counted action.
func (s *State) ActionsBeforeReload() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.ActionsBeforeReload
}

func (s *State) update(fn func(*Config)) Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.cfg)
	s.cfg.Normalize()
	return s.cfg
}

func (s *State) SetRunning(v bool) Config {
	return s.update(func(c *Config) { c.Running = v })
}

func (s *State) SetSuppressAds(v bool) Config {
	return s.update(func(c *Config) { c.SuppressAds = v })
}

func (s *State) SetSuppressSuggested(v bool) Config {
	return s.update(func(c *Config) { c.SuppressSuggested = v })
}

func (s *State) SetForeignScriptLock(v bool) Config {
	return s.update(func(c *Config) { c.ForeignScriptLock = v })
}

func (s *State) SetScrollDelay(v int) Config {
	return s.update(func(c *Config) { c.ScrollDelaySeconds = v })
}

func (s *State) SetActionsBeforeReload(v int) Config {
	return s.update(func(c *Config) { c.ActionsBeforeReload = v })
}

func (s *State) SetFilter(enabled bool, keyword string) Config {
	return s.update(func(c *Config) {
		c.KeywordFilterEnabled = enabled
		c.KeywordFilterText = keyword
	})
}

func (s *State) SetHumanPacing(v bool) Config {
	return s.update(func(c *Config) { c.HumanPacingEnabled = v })
}

// Replace installs a whole configuration, e.g. the one loaded at start.
func (s *State) Replace(c Config) Config {
	return s.update(func(cfg *Config) { *cfg = c })
}

// Status is the externally visible engine state.
type Status struct {
	Config         Config         `json:"config"`
	Counters       Counters       `json:"counters"`
	NetworkWarning bool           `json:"networkWarning"`
	Mode           string         `json:"mode"`
	Suppressions   map[string]int `json:"suppressions,omitempty"`
}
