// Package label turns container label maps into job definitions.
package label

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/labelsched/labelsched/internal/job"
	"github.com/labelsched/labelsched/internal/schedule"
)

const (
	// DefaultPrefix namespaces all recognized labels.
	DefaultPrefix = "scheduler."

	enableKey    = "enable"
	propSchedule = "schedule"
	propCommand  = "command"
)

var jobNameRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidationError reports one invalid job definition on a container.
// It invalidates only that job, never its siblings.
type ValidationError struct {
	ContainerID string
	Job         string
	Reason      string
	Err         error
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("invalid job %q on container %s: %s",
		e.Job, job.ShortID(e.ContainerID), e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Parser extracts job definitions from container labels. Parsing is
// pure: it is re-run against the full label map on every snapshot,
// never patched incrementally.
type Parser struct {
	prefix string
}

func NewParser(prefix string) *Parser {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if !strings.HasSuffix(prefix, ".") {
		prefix += "."
	}
	return &Parser{prefix: prefix}
}

// Enabled reports whether the container opted in to scheduling.
// A missing label counts as disabled.
func (p *Parser) Enabled(labels map[string]string) bool {
	return strings.EqualFold(labels[p.prefix+enableKey], "true")
}

type rawJob struct {
	schedule string
	command  string
}

// Parse returns the desired job definitions for one container plus a
// validation error per rejected job. A disabled container yields no
// definitions and no errors. Unrecognized label keys are ignored.
func (p *Parser) Parse(containerID string, labels map[string]string) ([]job.Definition, []error) {
	if !p.Enabled(labels) {
		return nil, nil
	}

	raw := make(map[string]*rawJob)
	for key, value := range labels {
		if !strings.HasPrefix(key, p.prefix) {
			continue
		}
		rest := strings.TrimPrefix(key, p.prefix)
		parts := strings.Split(rest, ".")
		if len(parts) != 2 {
			continue // e.g. the enable key itself
		}
		name, prop := parts[0], parts[1]
		if prop != propSchedule && prop != propCommand {
			continue
		}
		rj, ok := raw[name]
		if !ok {
			rj = &rawJob{}
			raw[name] = rj
		}
		switch prop {
		case propSchedule:
			rj.schedule = value
		case propCommand:
			rj.command = value
		}
	}

	// Sort names so validation errors and registrations come out in a
	// stable order.
	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	var defs []job.Definition
	var errs []error
	for _, name := range names {
		rj := raw[name]
		if !jobNameRe.MatchString(name) {
			errs = append(errs, &ValidationError{
				ContainerID: containerID,
				Job:         name,
				Reason:      "job name must match [A-Za-z0-9_-]+",
			})
			continue
		}
		if rj.schedule == "" {
			errs = append(errs, &ValidationError{
				ContainerID: containerID,
				Job:         name,
				Reason:      "missing schedule",
			})
			continue
		}
		if rj.command == "" {
			errs = append(errs, &ValidationError{
				ContainerID: containerID,
				Job:         name,
				Reason:      "missing command",
			})
			continue
		}
		if _, err := schedule.Parse(rj.schedule); err != nil {
			errs = append(errs, &ValidationError{
				ContainerID: containerID,
				Job:         name,
				Reason:      "bad schedule expression",
				Err:         err,
			})
			continue
		}
		defs = append(defs, job.Definition{
			ContainerID: containerID,
			Name:        name,
			Schedule:    rj.schedule,
			Command:     rj.command,
		})
	}

	return defs, errs
}
