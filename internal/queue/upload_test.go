package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/bel-commons/bel-commons/internal/db"
	"github.com/bel-commons/bel-commons/internal/notify"
	"github.com/bel-commons/bel-commons/pkg/bel"
)

const uploadDoc = `SET DOCUMENT Name = "Apoptosis Map"
SET DOCUMENT Version = "1.0"
DEFINE NAMESPACE HGNC AS URL "https://example.org/hgnc.belns"
SET Citation = {"PubMed","Example paper","12345"}
SET Evidence = "Observed in cell culture"
p(HGNC:AKT1) increases p(HGNC:EGFR)
p(HGNC:EGFR) decreases p(HGNC:TP53)
p(HGNC:TP53) increases p(HGNC:MDM2)
`

// memUploadStore keeps everything in maps and slices. Lookup misses report
// pgx.ErrNoRows like the real store.
type memUploadStore struct {
	reports  map[int64]*db.Report
	networks []db.Network
	users    map[string]db.User
	admins   []db.User
	shares   []db.ShareNetworkWithUserParams
	nextID   int64
	stats    int
}

func newMemUploadStore(reports ...*db.Report) *memUploadStore {
	s := &memUploadStore{
		reports: make(map[int64]*db.Report),
		users: map[string]db.User{
			"u1": {ID: "u1", Email: "u1@example.org", Name: "Uploader One"},
			"u2": {ID: "u2", Email: "u2@example.org", Name: "Uploader Two"},
		},
		admins: []db.User{{ID: "a1", Email: "admin@example.org", Role: "admin"}},
		nextID: 100,
	}
	for _, r := range reports {
		s.reports[r.ID] = r
	}
	return s
}

func (s *memUploadStore) TryStartReport(_ context.Context, id int64) (db.Report, error) {
	r, ok := s.reports[id]
	if !ok || r.State != db.ReportStateQueued {
		return db.Report{}, pgx.ErrNoRows
	}
	r.State = db.ReportStateParsing
	return *r, nil
}

func (s *memUploadStore) FailReport(_ context.Context, arg db.FailReportParams) error {
	r, ok := s.reports[arg.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	r.State = db.ReportStateFailed
	r.ErrorMessage = arg.ErrorMessage
	return nil
}

func (s *memUploadStore) CompleteReport(_ context.Context, arg db.CompleteReportParams) error {
	r, ok := s.reports[arg.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	r.State = db.ReportStateCompleted
	r.NetworkID = arg.NetworkID
	r.Summary = arg.Summary
	return nil
}

func (s *memUploadStore) GetNetworkByNameVersion(_ context.Context, arg db.GetNetworkByNameVersionParams) (db.Network, error) {
	for _, n := range s.networks {
		if n.Name == arg.Name && n.Version == arg.Version {
			return n, nil
		}
	}
	return db.Network{}, pgx.ErrNoRows
}

func (s *memUploadStore) GetNetworkByHash(_ context.Context, contentHash string) (db.Network, error) {
	for _, n := range s.networks {
		if n.ContentHash == contentHash {
			return n, nil
		}
	}
	return db.Network{}, pgx.ErrNoRows
}

func (s *memUploadStore) ShareNetworkWithUser(_ context.Context, arg db.ShareNetworkWithUserParams) error {
	s.shares = append(s.shares, arg)
	return nil
}

func (s *memUploadStore) InsertNetworkForReport(ctx context.Context, arg db.InsertNetworkParams, reportID int64, summary []byte) (db.Network, error) {
	s.nextID++
	n := db.Network{
		ID:          s.nextID,
		Name:        arg.Name,
		Version:     arg.Version,
		ContentHash: arg.ContentHash,
		Graph:       arg.Graph,
		Public:      arg.Public,
		UploaderID:  arg.UploaderID,
	}
	s.networks = append(s.networks, n)
	if err := s.CompleteReport(ctx, db.CompleteReportParams{
		ID:        reportID,
		NetworkID: pgtype.Int8{Int64: n.ID, Valid: true},
		Summary:   summary,
	}); err != nil {
		return db.Network{}, err
	}
	return n, nil
}

func (s *memUploadStore) GetUser(_ context.Context, id string) (db.User, error) {
	u, ok := s.users[id]
	if !ok {
		return db.User{}, pgx.ErrNoRows
	}
	return u, nil
}

func (s *memUploadStore) ListAdmins(_ context.Context) ([]db.User, error) {
	return s.admins, nil
}

func (s *memUploadStore) AddProcessingTime(_ context.Context, _ string, _, _ int64) error {
	s.stats++
	return nil
}

type memEvents struct {
	states   []string
	progress int
}

func (e *memEvents) StateChange(kind string, id int64, state string) {
	e.states = append(e.states, fmt.Sprintf("%s.%d.%s", kind, id, state))
}

func (e *memEvents) Progress(int64, int, int) {
	e.progress++
}

type memNotifier struct {
	sent []notify.Notification
}

func (n *memNotifier) Send(_ context.Context, m notify.Notification) error {
	n.sent = append(n.sent, m)
	return nil
}

func queuedReport(id int64, userID string) *db.Report {
	return &db.Report{
		ID:         id,
		UserID:     userID,
		SourceName: "apoptosis.bel",
		SourceKey:  "documents/abc.bel",
		State:      db.ReportStateQueued,
	}
}

func uploadMsg(t *testing.T, reportID int64) string {
	t.Helper()
	raw, err := json.Marshal(UploadMsg{Message: "parse", ReportID: reportID})
	if err != nil {
		t.Fatalf("marshal message: %v", err)
	}
	return string(raw)
}

func fetchDoc(doc string) fetchFunc {
	return func(context.Context, string) ([]byte, error) {
		return []byte(doc), nil
	}
}

func docHash(t *testing.T, doc string) string {
	t.Helper()
	g, err := bel.Parse(context.Background(), doc, bel.ParseOptions{}, nil, nil)
	if err != nil {
		t.Fatalf("parse fixture: %v", err)
	}
	return g.Hash()
}

func TestProcessUploadCompletesReport(t *testing.T) {
	store := newMemUploadStore(queuedReport(1, "u1"))
	events := new(memEvents)
	notifier := new(memNotifier)

	err := processUpload(context.Background(), store, fetchDoc(uploadDoc), nil, nil, notifier, events, uploadMsg(t, 1))
	if err != nil {
		t.Fatalf("processUpload: %v", err)
	}

	report := store.reports[1]
	if report.State != db.ReportStateCompleted {
		t.Fatalf("report state = %q, want completed", report.State)
	}
	if len(store.networks) != 1 {
		t.Fatalf("got %d networks, want 1", len(store.networks))
	}
	network := store.networks[0]
	if network.Name != "Apoptosis Map" || network.Version != "1.0" {
		t.Fatalf("network = %s v%s", network.Name, network.Version)
	}
	if !report.NetworkID.Valid || report.NetworkID.Int64 != network.ID {
		t.Fatalf("report network id = %+v, want %d", report.NetworkID, network.ID)
	}

	var summary bel.Summary
	if err := json.Unmarshal(report.Summary, &summary); err != nil {
		t.Fatalf("unmarshal summary: %v", err)
	}
	if summary.Nodes != 4 || summary.Edges != 3 {
		t.Fatalf("summary = %d nodes / %d edges, want 4/3", summary.Nodes, summary.Edges)
	}

	last := events.states[len(events.states)-1]
	if last != "report.1.completed" {
		t.Fatalf("last state event = %q, want report.1.completed", last)
	}
	if len(notifier.sent) != 1 || notifier.sent[0].Recipient != "u1@example.org" {
		t.Fatalf("notifications = %+v, want one to u1", notifier.sent)
	}
	if store.stats != 1 {
		t.Fatalf("processing time recorded %d times, want 1", store.stats)
	}
}

func TestProcessUploadRejectsMissingMetadata(t *testing.T) {
	noVersion := `SET DOCUMENT Name = "Apoptosis Map"
DEFINE NAMESPACE HGNC AS URL "https://example.org/hgnc.belns"
SET Citation = {"PubMed","Example paper","12345"}
SET Evidence = "Observed in cell culture"
p(HGNC:AKT1) increases p(HGNC:EGFR)
`
	store := newMemUploadStore(queuedReport(1, "u1"))
	events := new(memEvents)
	notifier := new(memNotifier)

	err := processUpload(context.Background(), store, fetchDoc(noVersion), nil, nil, notifier, events, uploadMsg(t, 1))
	if err != nil {
		t.Fatalf("metadata rejection must ack, got %v", err)
	}

	report := store.reports[1]
	if report.State != db.ReportStateFailed {
		t.Fatalf("report state = %q, want failed", report.State)
	}
	if !strings.Contains(report.ErrorMessage.String, "name") || !strings.Contains(report.ErrorMessage.String, "version") {
		t.Fatalf("error message = %q, want mention of name and version", report.ErrorMessage.String)
	}
	if len(store.networks) != 0 {
		t.Fatalf("got %d networks, want none", len(store.networks))
	}
}

func TestProcessUploadDuplicateSameOwner(t *testing.T) {
	store := newMemUploadStore(queuedReport(1, "u1"))
	store.networks = append(store.networks, db.Network{
		ID:          7,
		Name:        "Apoptosis Map",
		Version:     "1.0",
		ContentHash: docHash(t, uploadDoc),
		UploaderID:  pgtype.Text{String: "u1", Valid: true},
	})
	events := new(memEvents)
	notifier := new(memNotifier)

	err := processUpload(context.Background(), store, fetchDoc(uploadDoc), nil, nil, notifier, events, uploadMsg(t, 1))
	if err != nil {
		t.Fatalf("processUpload: %v", err)
	}

	report := store.reports[1]
	if report.State != db.ReportStateFailed {
		t.Fatalf("report state = %q, want failed", report.State)
	}
	if !strings.Contains(report.ErrorMessage.String, "already uploaded") {
		t.Fatalf("error message = %q", report.ErrorMessage.String)
	}
	if len(store.networks) != 1 {
		t.Fatalf("got %d networks, want the existing one only", len(store.networks))
	}
	if len(store.shares) != 0 {
		t.Fatalf("shares = %+v, want none for the uploader's own network", store.shares)
	}
}

func TestProcessUploadDuplicateSameContentShares(t *testing.T) {
	store := newMemUploadStore(queuedReport(1, "u1"))
	store.networks = append(store.networks, db.Network{
		ID:          7,
		Name:        "Apoptosis Map",
		Version:     "1.0",
		ContentHash: docHash(t, uploadDoc),
		UploaderID:  pgtype.Text{String: "u2", Valid: true},
	})
	events := new(memEvents)
	notifier := new(memNotifier)

	err := processUpload(context.Background(), store, fetchDoc(uploadDoc), nil, nil, notifier, events, uploadMsg(t, 1))
	if err != nil {
		t.Fatalf("processUpload: %v", err)
	}

	report := store.reports[1]
	if report.State != db.ReportStateCompleted {
		t.Fatalf("report state = %q, want completed against the existing network", report.State)
	}
	if !report.NetworkID.Valid || report.NetworkID.Int64 != 7 {
		t.Fatalf("report network id = %+v, want 7", report.NetworkID)
	}
	if len(store.networks) != 1 {
		t.Fatalf("got %d networks, duplicate content must not insert a second row", len(store.networks))
	}
	if len(store.shares) != 1 || store.shares[0].NetworkID != 7 || store.shares[0].UserID != "u1" {
		t.Fatalf("shares = %+v, want network 7 shared with u1", store.shares)
	}
	last := events.states[len(events.states)-1]
	if last != "report.1.completed" {
		t.Fatalf("last state event = %q, want report.1.completed", last)
	}
}

func TestProcessUploadDuplicateContentConflict(t *testing.T) {
	store := newMemUploadStore(queuedReport(1, "u1"))
	store.networks = append(store.networks, db.Network{
		ID:          7,
		Name:        "Apoptosis Map",
		Version:     "1.0",
		ContentHash: "an-entirely-different-hash",
		UploaderID:  pgtype.Text{String: "u2", Valid: true},
	})
	events := new(memEvents)
	notifier := new(memNotifier)

	err := processUpload(context.Background(), store, fetchDoc(uploadDoc), nil, nil, notifier, events, uploadMsg(t, 1))
	if err != nil {
		t.Fatalf("processUpload: %v", err)
	}

	report := store.reports[1]
	if report.State != db.ReportStateFailed {
		t.Fatalf("report state = %q, want failed", report.State)
	}
	if !strings.Contains(report.ErrorMessage.String, "different content") {
		t.Fatalf("error message = %q", report.ErrorMessage.String)
	}
	if len(store.networks) != 1 {
		t.Fatalf("got %d networks, conflict must not insert", len(store.networks))
	}
	if len(store.shares) != 0 {
		t.Fatalf("shares = %+v, conflicting content must not be shared", store.shares)
	}

	var adminMail, userMail bool
	for _, n := range notifier.sent {
		switch n.Recipient {
		case "admin@example.org":
			adminMail = true
		case "u1@example.org":
			userMail = true
		}
	}
	if !adminMail {
		t.Fatal("admins were not notified about the integrity conflict")
	}
	if !userMail {
		t.Fatal("uploader was not notified about the failure")
	}
}

func TestProcessUploadSameContentDifferentNameShares(t *testing.T) {
	store := newMemUploadStore(queuedReport(1, "u1"))
	store.networks = append(store.networks, db.Network{
		ID:          9,
		Name:        "Another Name",
		Version:     "2.0",
		ContentHash: docHash(t, uploadDoc),
		UploaderID:  pgtype.Text{String: "u2", Valid: true},
	})
	events := new(memEvents)
	notifier := new(memNotifier)

	err := processUpload(context.Background(), store, fetchDoc(uploadDoc), nil, nil, notifier, events, uploadMsg(t, 1))
	if err != nil {
		t.Fatalf("processUpload: %v", err)
	}

	report := store.reports[1]
	if report.State != db.ReportStateCompleted {
		t.Fatalf("report state = %q, want completed against the stored copy", report.State)
	}
	if len(store.networks) != 1 {
		t.Fatalf("got %d networks, identical content must reuse the stored row", len(store.networks))
	}
	if len(store.shares) != 1 || store.shares[0].NetworkID != 9 {
		t.Fatalf("shares = %+v, want network 9 shared with the uploader", store.shares)
	}
}

func TestProcessUploadAlreadyClaimed(t *testing.T) {
	claimed := queuedReport(1, "u1")
	claimed.State = db.ReportStateParsing
	store := newMemUploadStore(claimed)
	events := new(memEvents)
	notifier := new(memNotifier)

	err := processUpload(context.Background(), store, fetchDoc(uploadDoc), nil, nil, notifier, events, uploadMsg(t, 1))
	if err != nil {
		t.Fatalf("claimed report must ack, got %v", err)
	}
	if len(events.states) != 0 {
		t.Fatalf("state events = %v, want none", events.states)
	}
	if len(store.networks) != 0 {
		t.Fatalf("got %d networks, want none", len(store.networks))
	}
}
