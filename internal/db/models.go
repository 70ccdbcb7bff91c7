package db

import (
	"github.com/jackc/pgx/v5/pgtype"
)

// Report states. A report is created queued, claimed into parsing and ends
// in exactly one of failed or completed.
const (
	ReportStateQueued    = "queued"
	ReportStateParsing   = "parsing"
	ReportStateFailed    = "failed"
	ReportStateCompleted = "completed"
)

// Experiment states mirror the report lifecycle.
const (
	ExperimentStateQueued    = "queued"
	ExperimentStateRunning   = "running"
	ExperimentStateFailed    = "failed"
	ExperimentStateCompleted = "completed"
)

type User struct {
	ID        string
	Email     string
	Name      string
	Role      string
	CreatedAt pgtype.Timestamptz
}

type Project struct {
	ID          int64
	Name        string
	Description pgtype.Text
	CreatedAt   pgtype.Timestamptz
}

type ProjectUser struct {
	ProjectID int64
	UserID    string
	Role      string
}

type Network struct {
	ID          int64
	Name        string
	Version     string
	ContentHash string
	Graph       []byte
	Public      bool
	UploaderID  pgtype.Text
	CreatedAt   pgtype.Timestamptz
}

type NetworkUser struct {
	NetworkID int64
	UserID    string
}

type ProjectNetwork struct {
	ProjectID int64
	NetworkID int64
}

type Assembly struct {
	ID        int64
	Hash      string
	CreatedAt pgtype.Timestamptz
}

type AssemblyNetwork struct {
	AssemblyID int64
	NetworkID  int64
}

type Query struct {
	ID         int64
	ParentID   pgtype.Int8
	AssemblyID int64
	UserID     pgtype.Text
	Seeds      []byte
	Pipeline   []byte
	CreatedAt  pgtype.Timestamptz
}

type Report struct {
	ID               int64
	UserID           string
	SourceName       string
	SourceKey        string
	SourceHash       string
	State            string
	ErrorMessage     pgtype.Text
	NetworkID        pgtype.Int8
	Summary          []byte
	Public           bool
	AllowNested      bool
	CitationClearing bool
	InferOrigin      bool
	StartedAt        pgtype.Timestamptz
	FinishedAt       pgtype.Timestamptz
	CreatedAt        pgtype.Timestamptz
}

type Experiment struct {
	ID           int64
	UserID       string
	QueryID      int64
	OmicID       int64
	Permutations int32
	State        string
	ErrorMessage pgtype.Text
	Result       []byte
	StartedAt    pgtype.Timestamptz
	FinishedAt   pgtype.Timestamptz
	CreatedAt    pgtype.Timestamptz
}

type Omic struct {
	ID          int64
	UserID      string
	SourceName  string
	SourceKey   string
	GeneColumn  string
	DataColumn  string
	Description pgtype.Text
	Public      bool
	CreatedAt   pgtype.Timestamptz
}

type EdgeVote struct {
	EdgeKey   string
	UserID    string
	Agreed    bool
	CreatedAt pgtype.Timestamptz
}

type EdgeComment struct {
	ID        int64
	EdgeKey   string
	UserID    string
	Comment   string
	CreatedAt pgtype.Timestamptz
}

type ProcessStat struct {
	ID         int64
	Kind       string
	InputSize  int64
	DurationMs int64
	CreatedAt  pgtype.Timestamptz
}
