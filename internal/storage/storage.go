package storage

import "slippageScope/internal/model"

// Storage defines a sink for simulation reports.
type Storage interface {
	PutReports(reports []model.RunReport) error
}
