package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rabbitmq/amqp091-go"

	"github.com/bel-commons/bel-commons/internal/db"
	"github.com/bel-commons/bel-commons/pkg/logger"
)

// staleAfter is how long a report or experiment may sit in its working
// state before the reaper assumes the worker died.
const staleAfter = "30 minutes"

// RecoverStaleWork requeues reports and experiments whose worker vanished
// mid-run and puts fresh messages back on the work queues. Meant to run on
// a schedule under a lease so only one instance reaps.
func RecoverStaleWork(
	ctx context.Context,
	ch *amqp091.Channel,
	conn *pgxpool.Pool,
) error {
	q := db.New(conn)

	reportIDs, err := q.ResetStaleReports(ctx, staleAfter)
	if err != nil {
		return fmt.Errorf("reset stale reports: %w", err)
	}
	for _, id := range reportIDs {
		msgBytes, err := json.Marshal(UploadMsg{Message: "Recovered stale report", ReportID: id})
		if err != nil {
			logger.Error("[Queue] Failed to marshal recovery message", "report_id", id, "err", err)
			continue
		}
		if err := PublishFIFO(ch, UploadQueue, msgBytes); err != nil {
			logger.Error("[Queue] Failed to republish report", "report_id", id, "err", err)
			continue
		}
		logger.Info("[Queue] Recovered stale report", "report_id", id)
	}

	experimentIDs, err := q.ResetStaleExperiments(ctx, staleAfter)
	if err != nil {
		return fmt.Errorf("reset stale experiments: %w", err)
	}
	for _, id := range experimentIDs {
		msgBytes, err := json.Marshal(ExperimentMsg{Message: "Recovered stale experiment", ExperimentID: id})
		if err != nil {
			logger.Error("[Queue] Failed to marshal recovery message", "experiment_id", id, "err", err)
			continue
		}
		if err := PublishFIFO(ch, ExperimentQueue, msgBytes); err != nil {
			logger.Error("[Queue] Failed to republish experiment", "experiment_id", id, "err", err)
			continue
		}
		logger.Info("[Queue] Recovered stale experiment", "experiment_id", id)
	}

	if len(reportIDs) == 0 && len(experimentIDs) == 0 {
		logger.Debug("[Queue] No stale work found")
	}
	return nil
}

// ResetStateForRetry puts the row behind a retried message back into the
// queued state so the next delivery can claim it. Best effort: a miss here
// just means the retry finds the row already claimed and acks.
func ResetStateForRetry(
	ctx context.Context,
	conn *pgxpool.Pool,
	queueName string,
	msgBody []byte,
) {
	q := db.New(conn)

	switch queueName {
	case UploadQueue:
		var data UploadMsg
		if err := json.Unmarshal(msgBody, &data); err != nil || data.ReportID == 0 {
			return
		}
		if err := q.RequeueReport(ctx, data.ReportID); err != nil {
			logger.Warn("[Queue] Failed to requeue report for retry", "report_id", data.ReportID, "err", err)
		}
	case ExperimentQueue:
		var data ExperimentMsg
		if err := json.Unmarshal(msgBody, &data); err != nil || data.ExperimentID == 0 {
			return
		}
		if err := q.RequeueExperiment(ctx, data.ExperimentID); err != nil {
			logger.Warn("[Queue] Failed to requeue experiment for retry", "experiment_id", data.ExperimentID, "err", err)
		}
	}
}
