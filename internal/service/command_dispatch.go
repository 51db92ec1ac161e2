package service

import (
	"context"
	"fmt"
	"log/slog"

	"gitplumbers.app/bridge/common/logger"
	"gitplumbers.app/bridge/internal/command"
	"gitplumbers.app/bridge/internal/model"
	"gitplumbers.app/bridge/internal/queue"
	"gitplumbers.app/bridge/internal/service/issue_tracker"
)

type CommentEvent struct {
	InstallationID int64
	Repository     model.Repository
	IssueNumber    int
	Body           string
	Sender         string
	SenderIsBot    bool
	Action         string
	TraceID        *string
}

type IssueEvent struct {
	InstallationID int64
	Repository     model.Repository
	IssueNumber    int
	Action         string
	TraceID        *string
}

// DispatchResult describes what HandleComment did. Command is nil when the
// comment carried no command or was authored by a bot.
type DispatchResult struct {
	Command        *command.Command
	Acknowledged   bool
	EventsEnqueued int
}

type CommandDispatcher interface {
	HandleComment(ctx context.Context, event CommentEvent) (*DispatchResult, error)
	HandleIssue(ctx context.Context, event IssueEvent) error
}

type commandDispatcher struct {
	connector issue_tracker.Connector
	producer  queue.Producer
	prefix    string
}

func NewCommandDispatcher(connector issue_tracker.Connector, producer queue.Producer, prefix string) CommandDispatcher {
	return &commandDispatcher{
		connector: connector,
		producer:  producer,
		prefix:    prefix,
	}
}

func (d *commandDispatcher) HandleComment(ctx context.Context, event CommentEvent) (*DispatchResult, error) {
	result := &DispatchResult{}

	if event.SenderIsBot {
		return result, nil
	}

	cmd, ok := command.Parse(d.prefix, event.Body)
	if !ok {
		return result, nil
	}
	result.Command = &cmd

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		InstallationID: logger.Ptr(event.InstallationID),
		Repository:     logger.Ptr(event.Repository.FullName()),
		IssueNumber:    logger.Ptr(event.IssueNumber),
		Component:      "bridge.service.command_dispatch",
	})

	if err := validateTarget(event.InstallationID, event.Repository); err != nil {
		return result, err
	}

	slog.InfoContext(ctx, "command received",
		"command", cmd.Kind,
		"area", cmd.Area,
		"sender", event.Sender,
	)

	tracker, err := d.connector.Connect(ctx, event.InstallationID)
	if err != nil {
		return result, err
	}

	if err := tracker.CreateComment(ctx, event.Repository, event.IssueNumber, cmd.Acknowledgement(d.prefix)); err != nil {
		return result, fmt.Errorf("posting acknowledgement: %w", err)
	}
	result.Acknowledged = true

	payload := queue.TriggerPayload{
		Repository:     event.Repository.FullName(),
		IssueNumber:    event.IssueNumber,
		InstallationID: event.InstallationID,
		Command:        string(cmd.Kind),
		Area:           cmd.Area,
		Action:         event.Action,
		TraceID:        event.TraceID,
	}

	events := []queue.TriggerEvent{queue.IntakeEvent{TriggerPayload: payload, Source: queue.IntakeSourceCommand}}
	if cmd.Kind == command.KindFix {
		events = append(events, queue.RepairScaffoldEvent{TriggerPayload: payload})
	}

	for _, trigger := range events {
		if err := d.producer.Enqueue(ctx, trigger); err != nil {
			return result, err
		}
		result.EventsEnqueued++
	}

	return result, nil
}

// HandleIssue enqueues an intake event. Issues opened by the bridge itself
// are included so support requests reach the same automation.
func (d *commandDispatcher) HandleIssue(ctx context.Context, event IssueEvent) error {
	if err := validateTarget(event.InstallationID, event.Repository); err != nil {
		return err
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		InstallationID: logger.Ptr(event.InstallationID),
		Repository:     logger.Ptr(event.Repository.FullName()),
		IssueNumber:    logger.Ptr(event.IssueNumber),
		Component:      "bridge.service.command_dispatch",
	})

	return d.producer.Enqueue(ctx, queue.IntakeEvent{
		Source: queue.IntakeSourceIssue,
		TriggerPayload: queue.TriggerPayload{
			Repository:     event.Repository.FullName(),
			IssueNumber:    event.IssueNumber,
			InstallationID: event.InstallationID,
			Action:         event.Action,
			TraceID:        event.TraceID,
		},
	})
}
