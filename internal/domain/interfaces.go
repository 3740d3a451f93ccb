package domain

import (
	"context"
)

// MeasurementRepository supplies the materialized measurement tables of one study
type MeasurementRepository interface {
	PointMeasurements(ctx context.Context, studyID int64) ([]PointMeasurement, error)
	TrendMeasurements(ctx context.Context, studyID int64) ([]TrendMeasurement, error)
}

// StudyLookup resolves a study and its patient by accession number
type StudyLookup interface {
	StudyByAccession(ctx context.Context, accession string) (*Study, *Patient, error)
}

// IngestRepository persists the facts extracted from a parsed structured report
type IngestRepository interface {
	ReportExists(ctx context.Context, sopInstanceUID string) (bool, error)
	SaveReport(ctx context.Context, bundle *IngestBundle) error
}

// StudyRepository is the full persistence surface used by the study processor
type StudyRepository interface {
	MeasurementRepository
	StudyLookup
	IngestRepository
}

// ResultStore records interpretation outcomes
type ResultStore interface {
	SaveResult(ctx context.Context, record *ResultRecord) error
	GetResultsByAccession(ctx context.Context, accession string) ([]*ResultRecord, error)
	ListResults(ctx context.Context, limit int) ([]*ResultRecord, error)
	Close() error
}

// ProcessedTracker remembers which structured report instances were already handled
type ProcessedTracker interface {
	Seen(ctx context.Context, sopInstanceUID string) (bool, error)
	MarkProcessed(ctx context.Context, sopInstanceUID string) error
}

// Archive retrieves study instances from an image archive
type Archive interface {
	StudyInstances(ctx context.Context, studyID string) ([]string, error)
	FetchInstance(ctx context.Context, instanceID string) ([]byte, error)
}

// ReportSender delivers a generated structured report back to the archive
type ReportSender interface {
	SendReport(ctx context.Context, dicomFile []byte) error
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetDatabaseConfig() *DatabaseConfig
	GetArchiveConfig() *ArchiveConfig
	GetServerConfig() *ServerConfig
	Reload() error
	Validate() error
	GetDatabaseConnectionString() string
	GetRedisConnectionString() string
	IsProduction() bool
	IsDevelopment() bool
}
