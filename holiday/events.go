package holiday

import (
	_ "embed"
	"sort"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/popupkit/popupkit/internal/timeutil"
)

//go:embed events.yaml
var eventsYAML []byte

// Event is a built-in marketing event with one date per maintained
// year.
type Event struct {
	Key         string   `yaml:"-"`
	Name        string   `yaml:"name"`
	Category    string   `yaml:"category"`
	Template    string   `yaml:"template"`
	Description string   `yaml:"description"`
	Dates       []string `yaml:"dates"`
}

type eventsFile struct {
	Events map[string]*Event `yaml:"events"`
}

// loadEvents parses the embedded calendar and validates its dates.
func loadEvents() (map[string]*Event, error) {
	var file eventsFile
	if err := yaml.Unmarshal(eventsYAML, &file); err != nil {
		return nil, errors.Wrap(err, "failed to parse embedded event calendar")
	}

	for key, event := range file.Events {
		event.Key = key
		if event.Name == "" {
			return nil, errors.Errorf("event %q has no name", key)
		}
		if event.Category == "" {
			event.Category = "holiday"
		}
		sort.Strings(event.Dates)
		for _, d := range event.Dates {
			if _, err := timeutil.ParseDate(d); err != nil {
				return nil, errors.Wrapf(err, "event %q has invalid date", key)
			}
		}
	}
	return file.Events, nil
}
