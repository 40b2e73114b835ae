package constants

import "time"

const (
	// MinSaveInterval is the floor between two executed checkpoint saves.
	// Calls landing inside the window are dropped, not queued.
	MinSaveInterval = 3 * time.Second

	DefaultSectionTimeout = 15 * time.Second
)

const (
	DatabaseTimeout = 5 * time.Second
	RequestTimeout  = 30 * time.Second
)

const (
	DBMaxOpenConns    = 10
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 1 * time.Hour
	DBMaxIdleTime     = 10 * time.Minute
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	DefaultHistoryLimit = 50
	DefaultKeepCount    = 100
	CleanupInterval     = 6 * time.Hour
)
