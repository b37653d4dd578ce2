package device

import (
	"fmt"
)

// Factory creates device calendars by type identifier.
type Factory struct {
	calendars map[string]func(config *Config) (Calendar, error)
}

// Config carries the settings a calendar constructor may need.
type Config struct {
	CalendarID string
	Path       string
}

// NewFactory creates an empty factory.
func NewFactory() *Factory {
	return &Factory{
		calendars: make(map[string]func(config *Config) (Calendar, error)),
	}
}

// Register registers a calendar constructor under a type identifier.
func (f *Factory) Register(calendarType string, constructor func(config *Config) (Calendar, error)) {
	f.calendars[calendarType] = constructor
}

// Create builds a calendar of the given type.
func (f *Factory) Create(calendarType string, config *Config) (Calendar, error) {
	constructor, exists := f.calendars[calendarType]
	if !exists {
		return nil, fmt.Errorf("unsupported device calendar type: %s", calendarType)
	}
	return constructor(config)
}

// SupportedTypes returns the registered type identifiers.
func (f *Factory) SupportedTypes() []string {
	types := make([]string, 0, len(f.calendars))
	for calendarType := range f.calendars {
		types = append(types, calendarType)
	}
	return types
}

// DefaultFactory returns a factory with the built-in calendars registered.
func DefaultFactory() *Factory {
	f := NewFactory()
	f.Register("ics", func(config *Config) (Calendar, error) {
		return NewICSCalendar(config.Path, config.CalendarID, nil)
	})
	return f
}
