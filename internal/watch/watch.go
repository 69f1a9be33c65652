// Package watch streams committed schedule changes as they happen.
package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/dyluth/docket/pkg/schedule"
)

// OutputFormat selects how events are written.
type OutputFormat string

const (
	// OutputFormatDefault writes one human-readable line per change
	OutputFormatDefault OutputFormat = "default"

	// OutputFormatJSON writes one JSON object per change
	OutputFormatJSON OutputFormat = "json"
)

// EventSource is the subscription surface. *schedule.Client satisfies it.
type EventSource interface {
	SubscribeScheduleEvents(ctx context.Context) (*schedule.Subscription, error)
}

// formatter writes the individual changes of one schedule event.
type formatter interface {
	FormatSlot(at int64, slot *schedule.Slot) error
	FormatTemplate(at int64, template *schedule.Template) error
	FormatTask(at int64, task *schedule.Task) error
	FormatCompletion(at int64, task *schedule.Task) error
	FormatUsage(at int64, slot *schedule.Slot) error
}

func newFormatter(format OutputFormat, w io.Writer) (formatter, error) {
	switch format {
	case OutputFormatDefault, "":
		return &defaultFormatter{writer: w}, nil
	case OutputFormatJSON:
		return &jsonFormatter{writer: w}, nil
	default:
		return nil, fmt.Errorf("unknown output format: %s", format)
	}
}

// StreamActivity writes every change committed to the schedule until ctx is
// cancelled or the subscription ends.
func StreamActivity(ctx context.Context, source EventSource, format OutputFormat, w io.Writer) error {
	f, err := newFormatter(format, w)
	if err != nil {
		return err
	}

	sub, err := source.SubscribeScheduleEvents(ctx)
	if err != nil {
		return err
	}
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-sub.Errors():
			if ok {
				log.Printf("[Watch] WARN: %v", err)
			}
		case event, ok := <-sub.Events():
			if !ok {
				return nil
			}
			if err := writeEvent(f, event); err != nil {
				return err
			}
		}
	}
}

// writeEvent fans one committed change set out to the formatter, creations first.
func writeEvent(f formatter, event *schedule.ScheduleEvent) error {
	if event.Applied == nil {
		return nil
	}
	at := event.AppliedAt

	for _, s := range event.Applied.Slots {
		if err := f.FormatSlot(at, s); err != nil {
			return err
		}
	}
	for _, t := range event.Applied.Templates {
		if err := f.FormatTemplate(at, t); err != nil {
			return err
		}
	}
	for _, t := range event.Applied.Tasks {
		if err := f.FormatTask(at, t); err != nil {
			return err
		}
	}
	for _, t := range event.Applied.Completed {
		if err := f.FormatCompletion(at, t); err != nil {
			return err
		}
	}
	for _, s := range event.Applied.Touched {
		if err := f.FormatUsage(at, s); err != nil {
			return err
		}
	}
	return nil
}

type defaultFormatter struct {
	writer io.Writer
}

func stamp(at int64) string {
	if at == 0 {
		return "--:--:--"
	}
	return time.UnixMilli(at).Format("15:04:05")
}

func (f *defaultFormatter) FormatSlot(at int64, s *schedule.Slot) error {
	_, err := fmt.Fprintf(f.writer, "[%s] 🗓️  Slot created: label=%q id=%s capacity=%dm\n",
		stamp(at), s.Label, s.ID, s.CapacityMinutes)
	return err
}

func (f *defaultFormatter) FormatTemplate(at int64, t *schedule.Template) error {
	_, err := fmt.Fprintf(f.writer, "[%s] 📋 Template created: name=%s id=%s duration=%dm\n",
		stamp(at), t.Name, t.ID, t.DurationMinutes)
	return err
}

func (f *defaultFormatter) FormatTask(at int64, t *schedule.Task) error {
	_, err := fmt.Fprintf(f.writer, "[%s] 📌 Task placed: name=%q id=%s slot=%s duration=%dm\n",
		stamp(at), t.Name, t.ID, t.SlotID, t.DurationMinutes)
	return err
}

func (f *defaultFormatter) FormatCompletion(at int64, t *schedule.Task) error {
	_, err := fmt.Fprintf(f.writer, "[%s] ✅ Task completed: name=%q id=%s\n", stamp(at), t.Name, t.ID)
	return err
}

func (f *defaultFormatter) FormatUsage(at int64, s *schedule.Slot) error {
	_, err := fmt.Fprintf(f.writer, "[%s] 📊 Slot usage: label=%q used=%d/%dm\n",
		stamp(at), s.Label, s.UsedMinutes, s.CapacityMinutes)
	return err
}

type jsonFormatter struct {
	writer io.Writer
}

func (f *jsonFormatter) write(event string, at int64, data interface{}) error {
	line, err := json.Marshal(map[string]interface{}{
		"event":         event,
		"applied_at_ms": at,
		"data":          data,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", event, err)
	}
	_, err = fmt.Fprintf(f.writer, "%s\n", line)
	return err
}

func (f *jsonFormatter) FormatSlot(at int64, s *schedule.Slot) error {
	return f.write("slot_created", at, s)
}

func (f *jsonFormatter) FormatTemplate(at int64, t *schedule.Template) error {
	return f.write("template_created", at, t)
}

func (f *jsonFormatter) FormatTask(at int64, t *schedule.Task) error {
	return f.write("task_placed", at, t)
}

func (f *jsonFormatter) FormatCompletion(at int64, t *schedule.Task) error {
	return f.write("task_completed", at, t)
}

func (f *jsonFormatter) FormatUsage(at int64, s *schedule.Slot) error {
	return f.write("slot_usage", at, s)
}
