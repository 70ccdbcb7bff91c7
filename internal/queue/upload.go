package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rabbitmq/amqp091-go"

	"github.com/bel-commons/bel-commons/internal/db"
	"github.com/bel-commons/bel-commons/internal/enrich"
	"github.com/bel-commons/bel-commons/internal/notify"
	"github.com/bel-commons/bel-commons/internal/storage"
	"github.com/bel-commons/bel-commons/internal/timing"
	"github.com/bel-commons/bel-commons/internal/util"
	"github.com/bel-commons/bel-commons/pkg/bel"
	"github.com/bel-commons/bel-commons/pkg/logger"
)

// uploadStore is the slice of the store the parse pipeline touches. Lookup
// misses are reported as pgx.ErrNoRows and a duplicate insert as a unique
// violation PgError, whatever the backing implementation.
type uploadStore interface {
	TryStartReport(ctx context.Context, id int64) (db.Report, error)
	FailReport(ctx context.Context, arg db.FailReportParams) error
	CompleteReport(ctx context.Context, arg db.CompleteReportParams) error
	GetNetworkByNameVersion(ctx context.Context, arg db.GetNetworkByNameVersionParams) (db.Network, error)
	GetNetworkByHash(ctx context.Context, contentHash string) (db.Network, error)
	ShareNetworkWithUser(ctx context.Context, arg db.ShareNetworkWithUserParams) error
	// InsertNetworkForReport persists the network and completes its report
	// as one atomic step.
	InsertNetworkForReport(ctx context.Context, arg db.InsertNetworkParams, reportID int64, summary []byte) (db.Network, error)
	GetUser(ctx context.Context, id string) (db.User, error)
	ListAdmins(ctx context.Context) ([]db.User, error)
	AddProcessingTime(ctx context.Context, kind string, inputSize, durationMs int64) error
}

// eventPublisher pushes report and experiment progress to interested
// clients. Implementations log their own failures; nothing reaches the
// pipeline.
type eventPublisher interface {
	StateChange(kind string, id int64, state string)
	Progress(reportID int64, line, total int)
}

// fetchFunc retrieves a stored source document by key.
type fetchFunc func(ctx context.Context, key string) ([]byte, error)

// pgUploadStore backs the pipeline with the shared query layer plus a pool
// for the insert transaction.
type pgUploadStore struct {
	q    *db.Queries
	pool *pgxpool.Pool
}

func (s *pgUploadStore) TryStartReport(ctx context.Context, id int64) (db.Report, error) {
	return s.q.TryStartReport(ctx, id)
}

func (s *pgUploadStore) FailReport(ctx context.Context, arg db.FailReportParams) error {
	return s.q.FailReport(ctx, arg)
}

func (s *pgUploadStore) CompleteReport(ctx context.Context, arg db.CompleteReportParams) error {
	return s.q.CompleteReport(ctx, arg)
}

func (s *pgUploadStore) GetNetworkByNameVersion(ctx context.Context, arg db.GetNetworkByNameVersionParams) (db.Network, error) {
	return s.q.GetNetworkByNameVersion(ctx, arg)
}

func (s *pgUploadStore) GetNetworkByHash(ctx context.Context, contentHash string) (db.Network, error) {
	return s.q.GetNetworkByHash(ctx, contentHash)
}

func (s *pgUploadStore) ShareNetworkWithUser(ctx context.Context, arg db.ShareNetworkWithUserParams) error {
	return s.q.ShareNetworkWithUser(ctx, arg)
}

func (s *pgUploadStore) InsertNetworkForReport(ctx context.Context, arg db.InsertNetworkParams, reportID int64, summary []byte) (db.Network, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return db.Network{}, fmt.Errorf("begin insert: %w", err)
	}
	defer tx.Rollback(ctx)
	qtx := s.q.WithTx(tx)

	network, err := qtx.InsertNetwork(ctx, arg)
	if err != nil {
		return db.Network{}, err
	}
	if err := qtx.CompleteReport(ctx, db.CompleteReportParams{
		ID:        reportID,
		NetworkID: pgtype.Int8{Int64: network.ID, Valid: true},
		Summary:   summary,
	}); err != nil {
		return db.Network{}, fmt.Errorf("complete report: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return db.Network{}, fmt.Errorf("commit insert: %w", err)
	}
	return network, nil
}

func (s *pgUploadStore) GetUser(ctx context.Context, id string) (db.User, error) {
	return s.q.GetUser(ctx, id)
}

func (s *pgUploadStore) ListAdmins(ctx context.Context) ([]db.User, error) {
	return s.q.ListAdmins(ctx)
}

func (s *pgUploadStore) AddProcessingTime(ctx context.Context, kind string, inputSize, durationMs int64) error {
	return timing.AddProcessingTime(ctx, kind, inputSize, durationMs, s.pool)
}

// amqpEvents publishes progress onto the pubsub exchange.
type amqpEvents struct {
	ch *amqp091.Channel
}

func (p amqpEvents) StateChange(kind string, id int64, state string) {
	PublishStateChange(p.ch, kind, id, state)
}

func (p amqpEvents) Progress(reportID int64, line, total int) {
	topic := fmt.Sprintf("report.%d.progress", reportID)
	if err := PublishTopic(p.ch, topic, []byte(fmt.Sprintf("%d/%d", line, total))); err != nil {
		logger.Debug("[Queue] Failed to publish progress", "topic", topic, "err", err)
	}
}

// ProcessUploadMessage runs the full parse pipeline for one report: fetch
// the source, parse, validate, check for duplicates, enrich, insert the
// network and complete the report.
//
// Only infrastructure failures return an error, which sends the message to
// the retry queue. Problems with the document itself mark the report failed
// and return nil, since retrying cannot fix a broken source.
func ProcessUploadMessage(
	ctx context.Context,
	s3Client *awss3.Client,
	pubmed *enrich.Client,
	resolver bel.NamespaceResolver,
	notifier notify.Notifier,
	ch *amqp091.Channel,
	conn *pgxpool.Pool,
	msg string,
) error {
	store := &pgUploadStore{q: db.New(conn), pool: conn}
	fetch := func(ctx context.Context, key string) ([]byte, error) {
		return util.RetryWithContext(ctx, 3, func(ctx context.Context) ([]byte, error) {
			return storage.GetDocument(ctx, s3Client, key)
		})
	}
	return processUpload(ctx, store, fetch, pubmed, resolver, notifier, amqpEvents{ch: ch}, msg)
}

func processUpload(
	ctx context.Context,
	store uploadStore,
	fetch fetchFunc,
	pubmed *enrich.Client,
	resolver bel.NamespaceResolver,
	notifier notify.Notifier,
	events eventPublisher,
	msg string,
) (err error) {
	data := new(UploadMsg)
	if err = json.Unmarshal([]byte(msg), data); err != nil {
		return err
	}

	report, err := store.TryStartReport(ctx, data.ReportID)
	if errors.Is(err, pgx.ErrNoRows) {
		logger.Info("[Queue] Report already claimed or finished", "report_id", data.ReportID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("claim report %d: %w", data.ReportID, err)
	}

	events.StateChange("report", report.ID, db.ReportStateParsing)

	defer func() {
		if err == nil {
			return
		}
		updateCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if updateErr := store.FailReport(updateCtx, db.FailReportParams{
			ID:           report.ID,
			ErrorMessage: pgtype.Text{String: util.SanitizePostgresText(err.Error()), Valid: true},
		}); updateErr != nil {
			logger.Warn("[Queue] Failed to mark report as failed", "report_id", report.ID, "err", updateErr)
		}
		events.StateChange("report", report.ID, db.ReportStateFailed)
	}()

	started := time.Now()

	source, err := fetch(ctx, report.SourceKey)
	if err != nil {
		return fmt.Errorf("fetch source %s: %w", report.SourceKey, err)
	}

	opts := bel.ParseOptions{
		CitationClearing: report.CitationClearing,
		AllowNested:      report.AllowNested,
		InferOrigin:      report.InferOrigin,
	}
	progress := func(line, total int) {
		if line%500 == 0 || line == total {
			events.Progress(report.ID, line, total)
		}
	}
	g, parseErr := bel.Parse(ctx, string(source), opts, resolver, progress)
	if parseErr != nil {
		// Unreachable namespace registries are an infrastructure problem
		// worth retrying; everything else is wrong in the document.
		var resErr *bel.ResourceError
		if errors.As(parseErr, &resErr) {
			err = fmt.Errorf("resolve namespace %s: %w", resErr.Keyword, parseErr)
			return err
		}
		return failUpload(ctx, store, events, notifier, report, fmt.Sprintf("parse failed: %v", parseErr))
	}

	if g.Name == "" || g.Version == "" {
		return failUpload(ctx, store, events, notifier, report,
			"document metadata must declare both a name and a version")
	}
	if bel.IsPlaceholder(g) {
		return failUpload(ctx, store, events, notifier, report,
			"document metadata still carries template placeholders, set a real name and description")
	}

	// Duplicate detection keys on the declared (name, version) pair. A hit
	// ends the pipeline one of three ways: same uploader is a no-op failure,
	// matching content grants the uploader read access on the existing row,
	// and diverging content is an integrity conflict that alerts the admins.
	contentHash := g.Hash()
	conflict, lookupErr := store.GetNetworkByNameVersion(ctx, db.GetNetworkByNameVersionParams{
		Name:    g.Name,
		Version: g.Version,
	})
	if lookupErr == nil {
		if conflict.UploaderID.Valid && conflict.UploaderID.String == report.UserID {
			return failUpload(ctx, store, events, notifier, report,
				fmt.Sprintf("you already uploaded %q v%s as network #%d, nothing to do", g.Name, g.Version, conflict.ID))
		}
		if conflict.ContentHash == contentHash {
			return shareExisting(ctx, store, events, notifier, report, conflict, g)
		}
		notifyAdmins(ctx, store, notifier,
			fmt.Sprintf("Integrity conflict on %q v%s", g.Name, g.Version),
			fmt.Sprintf("Upload report #%d by user %s declares %q v%s but its content differs from existing network #%d.",
				report.ID, report.UserID, g.Name, g.Version, conflict.ID))
		return failUpload(ctx, store, events, notifier, report,
			fmt.Sprintf("network %q v%s already exists with different content (network #%d), administrators have been notified", g.Name, g.Version, conflict.ID))
	}
	if !errors.Is(lookupErr, pgx.ErrNoRows) {
		err = fmt.Errorf("duplicate lookup: %w", lookupErr)
		return err
	}

	// Identical bytes under a different declared name also reuse the stored
	// network instead of inserting a second copy.
	existing, lookupErr := store.GetNetworkByHash(ctx, contentHash)
	if lookupErr == nil {
		return shareExisting(ctx, store, events, notifier, report, existing, g)
	}
	if !errors.Is(lookupErr, pgx.ErrNoRows) {
		err = fmt.Errorf("content hash lookup: %w", lookupErr)
		return err
	}

	if pubmed != nil {
		if enrichErr := pubmed.EnrichCitations(ctx, g); enrichErr != nil {
			logger.Warn("[Queue] Citation enrichment failed, continuing without", "report_id", report.ID, "err", enrichErr)
		}
	}

	graphJSON, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("encode graph: %w", err)
	}
	summaryJSON, err := json.Marshal(g.Summarize())
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}

	network, err := store.InsertNetworkForReport(ctx, db.InsertNetworkParams{
		Name:        g.Name,
		Version:     g.Version,
		ContentHash: contentHash,
		Graph:       graphJSON,
		Public:      report.Public,
		UploaderID:  pgtype.Text{String: report.UserID, Valid: true},
	}, report.ID, summaryJSON)
	if err != nil {
		// Unique violation means another worker inserted the same content
		// between our lookup and the insert. Same outcome as the lookup.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			err = nil
			return failUpload(ctx, store, events, notifier, report, "document was inserted concurrently by another upload")
		}
		return fmt.Errorf("insert network: %w", err)
	}

	if statErr := store.AddProcessingTime(ctx, timing.StatBELParse, int64(len(source)), time.Since(started).Milliseconds()); statErr != nil {
		logger.Warn("[Queue] Failed to record processing time", "report_id", report.ID, "err", statErr)
	}

	events.StateChange("report", report.ID, db.ReportStateCompleted)
	notifyUser(ctx, store, notifier, report.UserID,
		fmt.Sprintf("Network %s v%s is ready", g.Name, g.Version),
		fmt.Sprintf("Your upload %s was parsed into network #%d with %d nodes and %d edges.",
			report.SourceName, network.ID, len(g.Nodes), len(g.Edges)))

	logger.Info("[Queue] Upload processed",
		"report_id", report.ID,
		"network_id", network.ID,
		"nodes", len(g.Nodes),
		"edges", len(g.Edges),
		"duration", time.Since(started).String(),
	)
	return nil
}

// failUpload ends the report in the failed state without retrying the
// message. The returned nil acks the delivery.
func failUpload(
	ctx context.Context,
	store uploadStore,
	events eventPublisher,
	notifier notify.Notifier,
	report db.Report,
	reason string,
) error {
	updateCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := store.FailReport(updateCtx, db.FailReportParams{
		ID:           report.ID,
		ErrorMessage: pgtype.Text{String: util.SanitizePostgresText(reason), Valid: true},
	}); err != nil {
		logger.Warn("[Queue] Failed to mark report as failed", "report_id", report.ID, "err", err)
	}
	events.StateChange("report", report.ID, db.ReportStateFailed)
	notifyUser(ctx, store, notifier, report.UserID,
		fmt.Sprintf("Upload %s failed", report.SourceName), reason)
	logger.Info("[Queue] Upload rejected", "report_id", report.ID, "reason", reason)
	return nil
}

// shareExisting completes the report against an already stored network with
// the same content: the uploader gets a read share instead of a second row.
// A store failure here returns an error and lets the message retry.
func shareExisting(
	ctx context.Context,
	store uploadStore,
	events eventPublisher,
	notifier notify.Notifier,
	report db.Report,
	network db.Network,
	g *bel.Graph,
) error {
	if err := store.ShareNetworkWithUser(ctx, db.ShareNetworkWithUserParams{
		NetworkID: network.ID,
		UserID:    report.UserID,
	}); err != nil {
		return fmt.Errorf("grant read access on network %d: %w", network.ID, err)
	}

	summaryJSON, err := json.Marshal(g.Summarize())
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	if err := store.CompleteReport(ctx, db.CompleteReportParams{
		ID:        report.ID,
		NetworkID: pgtype.Int8{Int64: network.ID, Valid: true},
		Summary:   summaryJSON,
	}); err != nil {
		return fmt.Errorf("complete report: %w", err)
	}

	events.StateChange("report", report.ID, db.ReportStateCompleted)
	notifyUser(ctx, store, notifier, report.UserID,
		fmt.Sprintf("Network %s v%s was already available", network.Name, network.Version),
		fmt.Sprintf("Your upload %s matches existing network #%d; you were granted read access instead of a duplicate copy.",
			report.SourceName, network.ID))
	logger.Info("[Queue] Upload matched existing network, read access granted",
		"report_id", report.ID, "network_id", network.ID)
	return nil
}

func notifyAdmins(ctx context.Context, store uploadStore, notifier notify.Notifier, subject, body string) {
	admins, err := store.ListAdmins(ctx)
	if err != nil {
		logger.Warn("[Queue] Cannot load admins for notification", "err", err)
		return
	}
	for _, admin := range admins {
		notify.Dispatch(ctx, notifier, notify.Notification{
			Recipient: admin.Email,
			Subject:   subject,
			Body:      body,
		})
	}
}

// userDirectory resolves a user id to a profile for notifications. Both the
// query layer and the upload store satisfy it.
type userDirectory interface {
	GetUser(ctx context.Context, id string) (db.User, error)
}

func notifyUser(ctx context.Context, users userDirectory, notifier notify.Notifier, userID, subject, body string) {
	user, err := users.GetUser(ctx, userID)
	if err != nil {
		logger.Warn("[Queue] Cannot notify user", "user_id", userID, "err", err)
		return
	}
	notify.Dispatch(ctx, notifier, notify.Notification{
		Recipient: user.Email,
		Subject:   subject,
		Body:      body,
	})
}
