package queue

import "strconv"

type EventKind string

const (
	EventKindIntake         EventKind = "intake"
	EventKindRepairScaffold EventKind = "repair_scaffold"
)

// IntakeSource records what produced an intake event.
type IntakeSource string

const (
	IntakeSourceCommand IntakeSource = "command"
	IntakeSourceIssue   IntakeSource = "issue"
)

// TriggerPayload is the data shared by every automation trigger.
type TriggerPayload struct {
	Repository     string
	IssueNumber    int
	InstallationID int64
	Command        string // empty for issue events
	Area           string // set for fix commands only
	Action         string // webhook action, e.g. "opened" or "created"
	TraceID        *string
}

// TriggerEvent is one of IntakeEvent or RepairScaffoldEvent.
type TriggerEvent interface {
	Kind() EventKind
	values() map[string]any
}

// IntakeEvent is emitted for every recognized command and for new, edited
// or reopened issues.
type IntakeEvent struct {
	TriggerPayload
	Source IntakeSource
}

func (IntakeEvent) Kind() EventKind { return EventKindIntake }

func (e IntakeEvent) values() map[string]any {
	fields := e.TriggerPayload.values(e.Kind())
	fields["source"] = string(e.Source)
	return fields
}

// RepairScaffoldEvent is emitted only for fix commands, alongside the intake event.
type RepairScaffoldEvent struct {
	TriggerPayload
}

func (RepairScaffoldEvent) Kind() EventKind { return EventKindRepairScaffold }

func (e RepairScaffoldEvent) values() map[string]any {
	fields := e.TriggerPayload.values(e.Kind())
	fields["source"] = string(IntakeSourceCommand)
	return fields
}

func (p TriggerPayload) values(kind EventKind) map[string]any {
	fields := map[string]any{
		"kind":            string(kind),
		"repository":      p.Repository,
		"issue_number":    p.IssueNumber,
		"installation_id": strconv.FormatInt(p.InstallationID, 10),
		"command":         p.Command,
		"area":            p.Area,
		"action":          p.Action,
	}
	if p.TraceID != nil && *p.TraceID != "" {
		fields["trace_id"] = *p.TraceID
	}
	return fields
}
