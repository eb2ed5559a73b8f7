package interview

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// State is the session lifecycle. Transitions only move forward.
type State string

const (
	StateConfiguring State = "CONFIGURING"
	StateActive      State = "ACTIVE"
	StateEnded       State = "ENDED"
	StateAnalyzing   State = "ANALYZING"
	StateAnalyzed    State = "ANALYZED"
)

var stateOrder = map[State]int{
	StateConfiguring: 0,
	StateActive:      1,
	StateEnded:       2,
	StateAnalyzing:   3,
	StateAnalyzed:    4,
}

// Persona is the interviewer's style.
type Persona string

const (
	PersonaTechnologist Persona = "technologist"
	PersonaVisionary    Persona = "visionary"
)

// ActorRole is who the user is playing.
type ActorRole string

const (
	ActorCandidate ActorRole = "candidate"
	ActorRecruiter ActorRole = "recruiter"
)

// Channel identifies one of the two voices in an assistant response.
type Channel string

const (
	ChannelSuggester   Channel = "suggester"
	ChannelInterviewer Channel = "interviewer"
)

// Config is fixed once the session starts.
type Config struct {
	TargetRole string    `json:"role"`
	Difficulty int       `json:"difficulty"`
	Persona    Persona   `json:"persona"`
	UseResume  bool      `json:"useResume"`
	ActorRole  ActorRole `json:"actorRole"`
}

// DefaultConfig is what a new session starts with.
func DefaultConfig() Config {
	return Config{Difficulty: 3, Persona: PersonaTechnologist, ActorRole: ActorCandidate}
}

// Normalize fills defaults and clears the resume flag for non-candidates.
func (c Config) Normalize() Config {
	c.TargetRole = strings.TrimSpace(c.TargetRole)
	if c.Persona == "" {
		c.Persona = PersonaTechnologist
	}
	if c.ActorRole == "" {
		c.ActorRole = ActorCandidate
	}
	if c.ActorRole != ActorCandidate {
		c.UseResume = false
	}
	return c
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	if c.TargetRole == "" {
		return fmt.Errorf("%w: target role is required", ErrInvalidConfig)
	}
	if _, ok := LevelFor(c.Difficulty); !ok {
		return fmt.Errorf("%w: difficulty must be 1-5, got %d", ErrInvalidConfig, c.Difficulty)
	}
	switch c.Persona {
	case PersonaTechnologist, PersonaVisionary:
	default:
		return fmt.Errorf("%w: unknown persona %q", ErrInvalidConfig, c.Persona)
	}
	switch c.ActorRole {
	case ActorCandidate, ActorRecruiter:
	default:
		return fmt.Errorf("%w: unknown actor role %q", ErrInvalidConfig, c.ActorRole)
	}
	return nil
}

// Turn is one user-submitted message.
type Turn struct {
	ID      int64     `json:"id"`
	Role    string    `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// ChannelMessage is one rendered unit of assistant output. The suggester and
// interviewer messages of a request share RequestID.
type ChannelMessage struct {
	ID        string  `json:"id"`
	RequestID string  `json:"requestId"`
	Persona   Channel `json:"persona"`
	Content   string  `json:"content"`
	Final     bool    `json:"final"`
	// AfterTurn is the number of user turns preceding this message.
	AfterTurn int `json:"afterTurn"`
}

// Level binds a difficulty ordinal to a persona intensity.
type Level struct {
	Ordinal int    `yaml:"ordinal" json:"ordinal"`
	Label   string `yaml:"label" json:"label"`
	Tone    string `yaml:"tone" json:"tone"`
}

//go:embed levels.yaml
var levelsYAML []byte

var levels = mustLoadLevels(levelsYAML)

func mustLoadLevels(data []byte) map[int]Level {
	var doc struct {
		Levels []Level `yaml:"levels"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		panic(fmt.Sprintf("parse levels.yaml: %v", err))
	}
	out := make(map[int]Level, len(doc.Levels))
	for _, l := range doc.Levels {
		out[l.Ordinal] = l
	}
	return out
}

// LevelFor returns the level bound to ordinal.
func LevelFor(ordinal int) (Level, bool) {
	l, ok := levels[ordinal]
	return l, ok
}

var (
	ErrInvalidConfig = errors.New("invalid session config")
	ErrConfigLocked  = errors.New("session config is locked once the session starts")
	ErrInvalidState  = errors.New("operation not allowed in current session state")
	ErrEmptyInput    = errors.New("empty answer")
	ErrNotFound      = errors.New("session not found")
)
