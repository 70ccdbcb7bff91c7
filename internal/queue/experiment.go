package queue

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rabbitmq/amqp091-go"

	"github.com/bel-commons/bel-commons/internal/db"
	"github.com/bel-commons/bel-commons/internal/notify"
	"github.com/bel-commons/bel-commons/internal/querystore"
	"github.com/bel-commons/bel-commons/internal/storage"
	"github.com/bel-commons/bel-commons/internal/timing"
	"github.com/bel-commons/bel-commons/internal/util"
	"github.com/bel-commons/bel-commons/pkg/heat"
	"github.com/bel-commons/bel-commons/pkg/logger"
	"github.com/bel-commons/bel-commons/pkg/pipeline"
	"github.com/bel-commons/bel-commons/pkg/query"
)

// ProcessExperimentMessage scores one queued experiment: materialize the
// query's graph, overlay the omics values and run the permutation workflow.
func ProcessExperimentMessage(
	ctx context.Context,
	s3Client *awss3.Client,
	registry *pipeline.Registry,
	notifier notify.Notifier,
	ch *amqp091.Channel,
	conn *pgxpool.Pool,
	msg string,
) (err error) {
	data := new(ExperimentMsg)
	if err = json.Unmarshal([]byte(msg), data); err != nil {
		return err
	}

	q := db.New(conn)
	experiment, err := q.TryStartExperiment(ctx, data.ExperimentID)
	if errors.Is(err, pgx.ErrNoRows) {
		logger.Info("[Queue] Experiment already claimed or finished", "experiment_id", data.ExperimentID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("claim experiment %d: %w", data.ExperimentID, err)
	}

	PublishStateChange(ch, "experiment", experiment.ID, db.ExperimentStateRunning)

	defer func() {
		if err == nil {
			return
		}
		updateCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if updateErr := q.FailExperiment(updateCtx, db.FailExperimentParams{
			ID:           experiment.ID,
			ErrorMessage: pgtype.Text{String: util.SanitizePostgresText(err.Error()), Valid: true},
		}); updateErr != nil {
			logger.Warn("[Queue] Failed to mark experiment as failed", "experiment_id", experiment.ID, "err", updateErr)
		}
		PublishStateChange(ch, "experiment", experiment.ID, db.ExperimentStateFailed)
		notifyUser(context.Background(), q, notifier, experiment.UserID,
			fmt.Sprintf("Experiment #%d failed", experiment.ID), err.Error())
	}()

	started := time.Now()

	store := querystore.New(conn)
	builder := query.NewBuilder(store, registry)
	stored, err := store.GetQuery(ctx, experiment.QueryID)
	if err != nil {
		return fmt.Errorf("load query %d: %w", experiment.QueryID, err)
	}
	g, runErr := builder.Run(ctx, stored)
	if runErr != nil {
		if errors.Is(runErr, pipeline.ErrUnknownOperation) {
			return failExperiment(ctx, q, ch, notifier, experiment,
				fmt.Sprintf("query %d: %v", experiment.QueryID, runErr))
		}
		err = fmt.Errorf("run query %d: %w", experiment.QueryID, runErr)
		return err
	}

	omic, err := q.GetOmic(ctx, experiment.OmicID)
	if err != nil {
		return fmt.Errorf("load omic %d: %w", experiment.OmicID, err)
	}
	table, err := util.RetryWithContext(ctx, 3, func(ctx context.Context) ([]byte, error) {
		return storage.GetDocument(ctx, s3Client, omic.SourceKey)
	})
	if err != nil {
		return fmt.Errorf("fetch omics table %s: %w", omic.SourceKey, err)
	}
	values, parseErr := parseOmicTable(table, omic.GeneColumn, omic.DataColumn)
	if parseErr != nil {
		// A broken table cannot be fixed by retrying the message.
		return failExperiment(ctx, q, ch, notifier, experiment,
			fmt.Sprintf("omics table %s: %v", omic.SourceName, parseErr))
	}

	workflow := heat.Workflow{
		Permutations: int(experiment.Permutations),
		Seed:         experiment.ID,
	}
	result, err := workflow.Run(ctx, g, values)
	if err != nil {
		return fmt.Errorf("score experiment %d: %w", experiment.ID, err)
	}

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if err = q.CompleteExperiment(ctx, db.CompleteExperimentParams{
		ID:     experiment.ID,
		Result: resultJSON,
	}); err != nil {
		return fmt.Errorf("complete experiment %d: %w", experiment.ID, err)
	}

	inputSize := int64(len(g.Nodes)) * int64(max(int(experiment.Permutations), 1))
	if statErr := timing.AddProcessingTime(ctx, timing.StatExperiment, inputSize, time.Since(started).Milliseconds(), conn); statErr != nil {
		logger.Warn("[Queue] Failed to record processing time", "experiment_id", experiment.ID, "err", statErr)
	}

	PublishStateChange(ch, "experiment", experiment.ID, db.ExperimentStateCompleted)
	notifyUser(ctx, q, notifier, experiment.UserID,
		fmt.Sprintf("Experiment #%d completed", experiment.ID),
		fmt.Sprintf("Your experiment on %s scored %d nodes over %d permutations.",
			omic.SourceName, len(result), experiment.Permutations))

	logger.Info("[Queue] Experiment processed",
		"experiment_id", experiment.ID,
		"query_id", experiment.QueryID,
		"nodes_scored", len(result),
		"duration", time.Since(started).String(),
	)
	return nil
}

// failExperiment ends the experiment in the failed state without retrying
// the message. The returned nil acks the delivery.
func failExperiment(
	ctx context.Context,
	q *db.Queries,
	ch *amqp091.Channel,
	notifier notify.Notifier,
	experiment db.Experiment,
	reason string,
) error {
	updateCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := q.FailExperiment(updateCtx, db.FailExperimentParams{
		ID:           experiment.ID,
		ErrorMessage: pgtype.Text{String: util.SanitizePostgresText(reason), Valid: true},
	}); err != nil {
		logger.Warn("[Queue] Failed to mark experiment as failed", "experiment_id", experiment.ID, "err", err)
	}
	PublishStateChange(ch, "experiment", experiment.ID, db.ExperimentStateFailed)
	notifyUser(ctx, q, notifier, experiment.UserID,
		fmt.Sprintf("Experiment #%d failed", experiment.ID), reason)
	logger.Info("[Queue] Experiment rejected", "experiment_id", experiment.ID, "reason", reason)
	return nil
}

// parseOmicTable extracts the gene symbol to measured value mapping from a
// CSV table using the column names recorded on the omic row. Rows with an
// empty symbol or an unparsable value are skipped; an empty result is an
// error since the overlay would be a no-op.
func parseOmicTable(table []byte, geneColumn, dataColumn string) (map[string]float64, error) {
	r := csv.NewReader(bytes.NewReader(table))
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	geneIdx, dataIdx := -1, -1
	for i, name := range header {
		switch strings.TrimSpace(name) {
		case geneColumn:
			geneIdx = i
		case dataColumn:
			dataIdx = i
		}
	}
	if geneIdx < 0 {
		return nil, fmt.Errorf("gene column %q not found in header", geneColumn)
	}
	if dataIdx < 0 {
		return nil, fmt.Errorf("value column %q not found in header", dataColumn)
	}

	values := make(map[string]float64)
	for {
		record, err := r.Read()
		if err != nil {
			break
		}
		if geneIdx >= len(record) || dataIdx >= len(record) {
			continue
		}
		gene := strings.TrimSpace(record[geneIdx])
		if gene == "" {
			continue
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(record[dataIdx]), 64)
		if err != nil {
			continue
		}
		values[gene] = value
	}
	if len(values) == 0 {
		return nil, errors.New("no usable gene/value rows")
	}
	return values, nil
}
