// Package message defines the engine's wire contract with its control
// surfaces: inbound commands (a closed tagged union) and outbound
// notifications.
package message

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Type is the wire tag of a command or notification.
type Type string

// Command tags.
const (
	TypeStart               Type = "START"
	TypeStop                Type = "STOP"
	TypeSetToggle           Type = "SET_TOGGLE"
	TypeSetScrollDelay      Type = "SET_SCROLL_DELAY"
	TypeSetRefreshThreshold Type = "SET_REFRESH_THRESHOLD"
	TypeSetFilter           Type = "SET_FILTER"
	TypeSetHumanPacing      Type = "SET_HUMAN_PACING"
)

// Tags still sent by older control panels.
const (
	legacyStart          Type = "START_AUTOCLEAN"
	legacyStop           Type = "STOP_AUTOCLEAN"
	legacyRefreshActions Type = "SET_REFRESH_BEFORE_ACTIONS"
	legacyHumanize       Type = "HUMANIZE_MODE"
)

// ToggleKey names a boolean suppression switch.
type ToggleKey string

const (
	ToggleSuppressAds       ToggleKey = "suppressAds"
	ToggleSuppressSuggested ToggleKey = "suppressSuggested"
	ToggleForeignScriptLock ToggleKey = "foreignScriptLock"
)

var legacyToggles = map[string]ToggleKey{
	"hideAds":          ToggleSuppressAds,
	"hideSuggestions":  ToggleSuppressSuggested,
	"parsiLockEnabled": ToggleForeignScriptLock,
}

// Default values applied when a numeric command omits its value.
const (
	DefaultScrollDelay      = 10
	DefaultRefreshThreshold = 0
)

// ErrUnknownCommand is returned by Decode for unsupported tags or keys.
var ErrUnknownCommand = errors.New("message: unknown command")

// Command is one of Start, Stop, SetToggle, SetScrollDelay,
// SetRefreshThreshold, SetFilter, SetHumanPacing.
type Command interface {
	Type() Type
	isCommand()
}

type Start struct{}
type Stop struct{}

type SetToggle struct {
	Key   ToggleKey
	Value bool
}

type SetScrollDelay struct{ Value int }
type SetRefreshThreshold struct{ Value int }

type SetFilter struct {
	Enabled bool
	Keyword string
}

type SetHumanPacing struct{ Enabled bool }

func (Start) Type() Type               { return TypeStart }
func (Stop) Type() Type                { return TypeStop }
func (SetToggle) Type() Type           { return TypeSetToggle }
func (SetScrollDelay) Type() Type      { return TypeSetScrollDelay }
func (SetRefreshThreshold) Type() Type { return TypeSetRefreshThreshold }
func (SetFilter) Type() Type           { return TypeSetFilter }
func (SetHumanPacing) Type() Type      { return TypeSetHumanPacing }

func (Start) isCommand()               {}
func (Stop) isCommand()                {}
func (SetToggle) isCommand()           {}
func (SetScrollDelay) isCommand()      {}
func (SetRefreshThreshold) isCommand() {}
func (SetFilter) isCommand()           {}
func (SetHumanPacing) isCommand()      {}

// envelope is the flat JSON shape shared by every command.
type envelope struct {
	Type    Type    `json:"type"`
	Key     string  `json:"key,omitempty"`
	Value   any     `json:"value,omitempty"`
	Enabled *bool   `json:"enabled,omitempty"`
	Keyword *string `json:"keyword,omitempty"`
}

// Decode parses a JSON command, accepting legacy tags and toggle keys.
func Decode(data []byte) (Command, error) {
	var env struct {
		Type    Type            `json:"type"`
		Key     string          `json:"key"`
		Value   json.RawMessage `json:"value"`
		Enabled bool            `json:"enabled"`
		Keyword string          `json:"keyword"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("message: decode: %w", err)
	}

	switch env.Type {
	case TypeStart, legacyStart:
		return Start{}, nil
	case TypeStop, legacyStop:
		return Stop{}, nil
	case TypeSetToggle:
		key, ok := toggleKey(env.Key)
		if !ok {
			return nil, fmt.Errorf("%w: toggle key %q", ErrUnknownCommand, env.Key)
		}
		v, err := boolValue(env.Value)
		if err != nil {
			return nil, err
		}
		return SetToggle{Key: key, Value: v}, nil
	case TypeSetScrollDelay:
		n, err := intValue(env.Value, DefaultScrollDelay)
		if err != nil {
			return nil, err
		}
		return SetScrollDelay{Value: n}, nil
	case TypeSetRefreshThreshold, legacyRefreshActions:
		n, err := intValue(env.Value, DefaultRefreshThreshold)
		if err != nil {
			return nil, err
		}
		return SetRefreshThreshold{Value: n}, nil
	case TypeSetFilter:
		return SetFilter{Enabled: env.Enabled, Keyword: env.Keyword}, nil
	case TypeSetHumanPacing, legacyHumanize:
		return SetHumanPacing{Enabled: env.Enabled}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, env.Type)
	}
}

// Encode renders a command in its canonical JSON shape.
func Encode(c Command) ([]byte, error) {
	env := envelope{Type: c.Type()}
	switch c := c.(type) {
	case Start, Stop:
	case SetToggle:
		env.Key, env.Value = string(c.Key), &c.Value
	case SetScrollDelay:
		env.Value = &c.Value
	case SetRefreshThreshold:
		env.Value = &c.Value
	case SetFilter:
		env.Enabled, env.Keyword = &c.Enabled, &c.Keyword
	case SetHumanPacing:
		env.Enabled = &c.Enabled
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownCommand, c)
	}
	return json.Marshal(env)
}

func toggleKey(k string) (ToggleKey, bool) {
	switch ToggleKey(k) {
	case ToggleSuppressAds, ToggleSuppressSuggested, ToggleForeignScriptLock:
		return ToggleKey(k), true
	}
	key, ok := legacyToggles[k]
	return key, ok
}

func boolValue(raw json.RawMessage) (bool, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return false, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false, fmt.Errorf("message: value: %w", err)
	}
	switch v := v.(type) {
	case bool:
		return v, nil
	case float64:
		return v != 0, nil
	case string:
		return v != "" && v != "false" && v != "0", nil
	default:
		return false, fmt.Errorf("message: value: unsupported %T", v)
	}
}

// intValue accepts numbers and numeric strings; a missing value takes def.
// Fractions are truncated and out-of-range values saturate at the int32
// bounds so clamping later picks the nearer limit.
func intValue(raw json.RawMessage, def int) (int, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return def, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, fmt.Errorf("message: value: %w", err)
	}
	switch v := v.(type) {
	case float64:
		return saturate(v), nil
	case string:
		s := strings.TrimSpace(v)
		if f, err := strconv.ParseFloat(s, 64); err == nil || errors.Is(err, strconv.ErrRange) {
			if math.IsNaN(f) {
				return def, nil
			}
			return saturate(f), nil
		}
		var n int
		if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
			return def, nil
		}
		return n, nil
	default:
		return 0, fmt.Errorf("message: value: unsupported %T", v)
	}
}

func saturate(f float64) int {
	switch {
	case f >= math.MaxInt32:
		return math.MaxInt32
	case f <= math.MinInt32:
		return math.MinInt32
	default:
		return int(f)
	}
}
