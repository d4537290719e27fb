package database

import "time"

// Pool sizing defaults.
const (
	DefaultMaxConnections  = 25
	DefaultMinConnections  = 2
	DefaultMaxConnLifetime = time.Hour
	DefaultMaxConnIdleTime = 30 * time.Minute
)

// Error and log messages.
const (
	ErrMsgFailedToParseConnString         = "failed to parse connection string"
	ErrMsgFailedToCreatePool              = "failed to create connection pool"
	ErrMsgFailedToPingDatabase            = "failed to ping database"
	LogMsgSuccessfullyConnectedToDatabase = "Successfully connected to database"
)
