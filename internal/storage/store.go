// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides SQLite persistence for conversations and messages.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jeranaias/rigrun-chat/internal/model"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// =============================================================================
// SIDEBAR NOTIFICATIONS
// =============================================================================

// SidebarNotifier is told about conversation lifecycle changes after they
// commit, so the owner's conversation list can be kept live.
type SidebarNotifier interface {
	ConversationCreated(conv *model.Conversation, displayTitle string)
	ConversationRenamed(conv *model.Conversation, displayTitle string)
	ConversationDeleted(conv *model.Conversation)
}

// =============================================================================
// STORE
// =============================================================================

// Store is the conversation store backed by a single SQLite database.
type Store struct {
	db       *sql.DB
	path     string
	notifier SidebarNotifier
	now      func() time.Time
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: database path is empty", ErrInvalidInput)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// foreign_keys is per connection; the DSN pragma applies it to every one
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := &Store{db: db, path: path, now: time.Now}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	log.Printf("STORE_OPEN | path=%s schema=%d", path, SchemaVersion)
	return s, nil
}

// WithNotifier sets the sidebar notifier and returns the store.
func (s *Store) WithNotifier(n SidebarNotifier) *Store {
	s.notifier = n
	return s
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) initSchema() error {
	if _, err := s.db.Exec(Schema); err != nil {
		return err
	}
	_, err := s.db.Exec(InitMetadata)
	return err
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Store) stamp() int64 {
	return s.now().UnixNano()
}

func fromStamp(n int64) time.Time {
	return time.Unix(0, n)
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// withTx runs fn in a transaction, committing if it returns nil.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			log.Printf("STORE_ROLLBACK_FAILED | error=%v", rbErr)
		}
		return err
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}
