package notify

import (
	"context"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/freezegate/freezegate/internal/store"
)

// RecordName is the persisted-records key for the sink-configuration body:
// per-sink enablement and the event types each sink subscribes to.
const RecordName = "notifications"

// DataKey is the single map key under which the YAML body lives.
const DataKey = "notifications.yaml"

type sinkSpec struct {
	Name     string   `yaml:"name"`
	Type     string   `yaml:"type"` // http, chat, email, file
	Enabled  bool     `yaml:"enabled"`
	URL      string   `yaml:"url,omitempty"`
	Events   []string `yaml:"events,omitempty"`
	Path     string   `yaml:"path,omitempty"`
	SMTPAddr string   `yaml:"smtpAddr,omitempty"`
	From     string   `yaml:"from,omitempty"`
	To       []string `yaml:"to,omitempty"`
}

// LoadSinks reads the notifications record and builds the Sink set the
// Dispatcher fans out to. An absent record yields no sinks, not an error:
// a fresh install runs with notifications disabled until an operator
// writes the record.
func LoadSinks(ctx context.Context, backend store.Store) ([]Sink, error) {
	data, err := backend.Read(ctx, RecordName)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("notify: read sink config: %w", err)
	}
	return DecodeSinks(data[DataKey])
}

// DecodeSinks parses a notifications.yaml body into concrete Sinks.
func DecodeSinks(body string) ([]Sink, error) {
	if strings.TrimSpace(body) == "" {
		return nil, nil
	}
	var specs []sinkSpec
	if err := yaml.Unmarshal([]byte(body), &specs); err != nil {
		return nil, fmt.Errorf("notify: decode sink config: %w", err)
	}

	sinks := make([]Sink, 0, len(specs))
	for _, spec := range specs {
		if !spec.Enabled {
			continue
		}
		events := eventSet(spec.Events)
		switch spec.Type {
		case "http":
			sinks = append(sinks, &HttpSink{SinkName: spec.Name, URL: spec.URL, Events: events})
		case "chat":
			sinks = append(sinks, &ChatSink{HttpSink{SinkName: spec.Name, URL: spec.URL, Events: events}})
		case "email":
			sinks = append(sinks, &EmailSink{
				SinkName: spec.Name,
				Addr:     spec.SMTPAddr,
				From:     spec.From,
				To:       spec.To,
				Events:   events,
			})
		case "file":
			sinks = append(sinks, &FileSink{SinkName: spec.Name, Path: spec.Path, Events: events})
		default:
			return nil, fmt.Errorf("notify: unknown sink type %q for sink %q", spec.Type, spec.Name)
		}
	}
	return sinks, nil
}

func eventSet(events []string) map[string]struct{} {
	if len(events) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(events))
	for _, e := range events {
		set[e] = struct{}{}
	}
	return set
}
