package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/beacon/internal/payload"
	"github.com/roach88/beacon/internal/transport"
)

// Scenario is one scripted run of the pipeline.
type Scenario struct {
	// Name identifies the scenario and its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario checks.
	Description string `yaml:"description"`

	// Config overrides beacon settings, using config file keys.
	Config map[string]any `yaml:"config,omitempty"`

	// StartTS is the fake clock's first second. Defaults to DefaultStartTS.
	StartTS int64 `yaml:"start_ts,omitempty"`

	// Init scripts the collector's answers to init calls. The last
	// answer repeats. Empty means the collector is unreachable.
	Init []InitScript `yaml:"init,omitempty"`

	// Events scripts the answers to uploads. The last answer repeats.
	// Empty means every upload succeeds.
	Events []EventsScript `yaml:"events,omitempty"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions"`
}

// InitScript is one scripted init answer.
type InitScript struct {
	Outcome  string        `yaml:"outcome"`
	ServerTS int64         `yaml:"server_ts,omitempty"`
	Enabled  *bool         `yaml:"enabled,omitempty"`
	Configs  []ConfigEntry `yaml:"configs,omitempty"`
}

// ConfigEntry is one remote config value in an init answer.
type ConfigEntry struct {
	Key     string `yaml:"key"`
	Value   string `yaml:"value"`
	StartTS int64  `yaml:"start_ts,omitempty"`
	EndTS   int64  `yaml:"end_ts,omitempty"`
}

// EventsScript is one scripted upload answer.
type EventsScript struct {
	Outcome string `yaml:"outcome"`
	Body    string `yaml:"body,omitempty"`
}

// Step is one host action.
type Step struct {
	Do       string         `yaml:"do"`
	Category string         `yaml:"category,omitempty"`
	Fields   payload.Object `yaml:"fields,omitempty"`
	Seconds  int64          `yaml:"seconds,omitempty"`
	Slot     int            `yaml:"slot,omitempty"`
	Value    string         `yaml:"value,omitempty"`
}

// Step actions.
const (
	DoInitialize   = "initialize"
	DoAdd          = "add"
	DoFlush        = "flush"
	DoOnStop       = "on_stop"
	DoOnResume     = "on_resume"
	DoStartSession = "start_session"
	DoEndSession   = "end_session"
	DoSetDimension = "set_dimension"
	DoAdvance      = "advance"
	DoTick         = "tick"
	DoCrash        = "crash"
)

// Assertion checks the end state of a run.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Category narrows delivered and pending; empty means every category.
	Category string `yaml:"category,omitempty"`

	// Count is the expected number for delivered, pending and
	// open_sessions.
	Count int `yaml:"count"`

	// Key and Value are used by remote_config.
	Key   string `yaml:"key,omitempty"`
	Value string `yaml:"value,omitempty"`
}

// Assertion types.
const (
	AssertDelivered    = "delivered"
	AssertPending      = "pending"
	AssertOpenSessions = "open_sessions"
	AssertRemoteConfig = "remote_config"
)

// LoadScenario reads a scenario file. Unknown keys are rejected so typos
// fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and checks scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, in := range s.Init {
		if _, ok := transport.ParseOutcome(in.Outcome); !ok {
			return fmt.Errorf("init[%d]: unknown outcome %q", i, in.Outcome)
		}
	}
	for i, ev := range s.Events {
		if _, ok := transport.ParseOutcome(ev.Outcome); !ok {
			return fmt.Errorf("events[%d]: unknown outcome %q", i, ev.Outcome)
		}
	}
	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, st *Step) error {
	switch st.Do {
	case DoInitialize, DoFlush, DoOnStop, DoOnResume, DoStartSession, DoEndSession, DoTick, DoCrash:
	case DoAdd:
		if st.Category == "" {
			return fmt.Errorf("steps[%d]: category is required for add", index)
		}
	case DoSetDimension:
		if st.Slot == 0 {
			return fmt.Errorf("steps[%d]: slot is required for set_dimension", index)
		}
	case DoAdvance:
		if st.Seconds <= 0 {
			return fmt.Errorf("steps[%d]: seconds must be positive for advance", index)
		}
	case "":
		return fmt.Errorf("steps[%d]: do is required", index)
	default:
		return fmt.Errorf("steps[%d]: unknown action %q", index, st.Do)
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case AssertDelivered, AssertPending, AssertOpenSessions:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertRemoteConfig:
		if a.Key == "" {
			return fmt.Errorf("assertions[%d]: key is required for remote_config", index)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
