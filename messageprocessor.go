package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// runs one polling cycle: receive, then decode, build, store, notify and
// delete each message in turn. A message is only deleted once both the store
// and the notification succeeded, anything else is left for SQS to redeliver.
type MessageProcessor struct {
	queue      QueueClient
	store      ArtifactStore
	publisher  NotificationPublisher
	builder    *ArtifactBuilder
	topic      string
	ledger     PageLedger        // optional
	db         DatabaseInterface // optional
	quiet      bool              // demotes success logs to debug
	now        func() time.Time
}

type ProcessorDeps struct {
	Queue      QueueClient
	Store      ArtifactStore
	Publisher  NotificationPublisher
	Builder    *ArtifactBuilder
	Ledger     PageLedger
	DB         DatabaseInterface
}

func NewMessageProcessor(deps ProcessorDeps, topic string, quiet bool) (*MessageProcessor, error) {
	switch {
	case deps.Queue == nil:
		return nil, fmt.Errorf("queue client is required")
	case deps.Store == nil:
		return nil, fmt.Errorf("artifact store is required")
	case deps.Publisher == nil:
		return nil, fmt.Errorf("notification publisher is required")
	case topic == "":
		return nil, fmt.Errorf("notification topic is required")
	}

	builder := deps.Builder
	if builder == nil {
		builder = NewArtifactBuilder(VisibilityPublic, DefaultKeyOffset)
	}

	return &MessageProcessor{
		queue:      deps.Queue,
		store:      deps.Store,
		publisher:  deps.Publisher,
		builder:    builder,
		topic:      topic,
		ledger:     deps.Ledger,
		db:         deps.DB,
		quiet:      quiet,
		now:        time.Now,
	}, nil
}

// RunCycle only returns an error when the queue itself could not be read.
// Per message failures are reported through the outcomes.
func (mp *MessageProcessor) RunCycle(ctx context.Context) ([]ProcessingOutcome, error) {
	messages, err := mp.queue.Receive(ctx)
	if err != nil {
		return nil, err
	}

	outcomes := make([]ProcessingOutcome, 0, len(messages))
	if len(messages) == 0 {
		log.Info().Msg("No messages to process")
		return outcomes, nil
	}

	log.Debug().Int("count", len(messages)).Msg("Received messages from SQS")

	for _, msg := range messages {
		outcome := mp.processMessage(ctx, msg)
		mp.recordOutcome(ctx, outcome)
		outcomes = append(outcomes, outcome)
	}

	return outcomes, nil
}

func (mp *MessageProcessor) processMessage(ctx context.Context, msg Message) (outcome ProcessingOutcome) {
	startTime := time.Now()
	ml := log.With().Str("message_id", msg.ID).Logger()

	outcome = ProcessingOutcome{MessageID: msg.ID, FailureStage: StageNone}
	stage := StageDecode

	defer func() {
		// don't delete message on panic, let SQS retry
		if r := recover(); r != nil {
			ml.Error().Str("stage", string(stage)).Interface("panic", r).Msg("Recovered from panic while processing message")
			outcome.Success = false
			outcome.FailureStage = stage
			outcome.Err = &StageError{Stage: stage, Err: fmt.Errorf("panic: %v", r)}
		}
		ml.Debug().Dur("duration", time.Since(startTime)).Msg("Message processing complete")
	}()

	err := mp.runPipeline(ctx, msg, &stage, ml)
	if err != nil {
		outcome.FailureStage = stageOf(err)
		if outcome.FailureStage == StageNone {
			outcome.FailureStage = stage
		}
		outcome.Err = err
		ml.Warn().Err(err).Str("stage", string(outcome.FailureStage)).Msg("Message processing failed, will be retried by SQS")
		return outcome
	}

	outcome.Success = true
	if mp.quiet {
		ml.Debug().Msg("Message processed successfully")
	} else {
		ml.Info().Msg("Message processed successfully")
	}
	return outcome
}

// stage is advanced as the pipeline moves on so a panic can be attributed
func (mp *MessageProcessor) runPipeline(ctx context.Context, msg Message, stage *Stage, ml zerolog.Logger) error {
	record, err := DecodeContact(msg.Body)
	if err != nil {
		return err
	}

	*stage = StageBuild
	artifact, err := mp.builder.Build(record)
	if err != nil {
		return &StageError{Stage: StageBuild, Err: err}
	}

	if mp.alreadyAnnounced(ctx, msg.ID, artifact.Key, ml) {
		ml.Info().Str("key", artifact.Key).Msg("Page already stored and announced, acknowledging redelivery")
		*stage = StageAcknowledge
		return mp.acknowledge(ctx, msg)
	}

	*stage = StageStore
	if err := mp.store.Put(ctx, artifact.Key, artifact.Content, artifact.Visibility); err != nil {
		return &StageError{Stage: StageStore, Err: err}
	}
	ml.Debug().Str("key", artifact.Key).Str("visibility", string(artifact.Visibility)).Msg("Stored contact page")

	// subscribers get the unit of work exactly as it was queued
	*stage = StageNotify
	if err := mp.publisher.Publish(ctx, mp.topic, msg.Body); err != nil {
		return &StageError{Stage: StageNotify, Err: err}
	}

	if mp.ledger != nil && msg.ID != "" {
		entry := LedgerEntry{MessageID: msg.ID, ArtifactKey: artifact.Key, RecordedAt: mp.now()}
		if err := mp.ledger.Record(ctx, entry); err != nil {
			ml.Error().Err(err).Msg("Failed to record page in ledger")
		}
	}

	*stage = StageAcknowledge
	return mp.acknowledge(ctx, msg)
}

// true only when the ledger holds this message under the key derived now
func (mp *MessageProcessor) alreadyAnnounced(ctx context.Context, messageID, key string, ml zerolog.Logger) bool {
	if mp.ledger == nil || messageID == "" {
		return false
	}

	entry, found, err := mp.ledger.Lookup(ctx, messageID)
	if err != nil {
		// the full pipeline is safe to repeat, so fall through to it
		ml.Error().Err(err).Msg("Failed to look up message in ledger")
		return false
	}
	if !found {
		return false
	}
	if entry.ArtifactKey != key {
		ml.Warn().
			Str("recorded_key", entry.ArtifactKey).
			Str("key", key).
			Msg("Ledger entry is for a different key, processing again")
		return false
	}
	return true
}

func (mp *MessageProcessor) acknowledge(ctx context.Context, msg Message) error {
	if err := mp.queue.Delete(ctx, msg.ReceiptHandle); err != nil {
		return &StageError{Stage: StageAcknowledge, Err: err}
	}
	log.Debug().Str("message_id", msg.ID).Msg("Message deleted from SQS")
	return nil
}

func (mp *MessageProcessor) recordOutcome(ctx context.Context, outcome ProcessingOutcome) {
	if mp.db == nil {
		return
	}
	if err := mp.db.CreateOutcomeLog(ctx, outcomeLogParams(outcome, mp.now())); err != nil {
		log.Error().Err(err).Str("message_id", outcome.MessageID).Msg("Failed to save outcome log")
	}
}
