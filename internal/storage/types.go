package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	// Retention drops records older than this (sqlite only); 0 keeps everything.
	Retention time.Duration
}

// RunRecord is one finished job run.
// Keep it compact and schema-stable.
type RunRecord struct {
	ID     string    `json:"id"`
	Key    string    `json:"key"`
	At     time.Time `json:"at"`
	OK     bool      `json:"ok"`
	Forced bool      `json:"forced,omitempty"`
	Error  string    `json:"error,omitempty"`
	TookMS int64     `json:"took_ms"`
}
