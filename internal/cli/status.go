// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/jeranaias/rigrun-chat/internal/ollama"
	"github.com/jeranaias/rigrun-chat/internal/storage"
)

// modelChecker is implemented by providers that can tell whether the
// configured model is installed.
type modelChecker interface {
	CheckModel(ctx context.Context) error
}

// StatusReport is the result of "rigchat status".
type StatusReport struct {
	Version       string `json:"version"`
	Addr          string `json:"addr"`
	StoragePath   string `json:"storage_path"`
	StorageStatus string `json:"storage_status"`
	StorageError  string `json:"storage_error,omitempty"`
	Provider      string `json:"provider"`
	Model         string `json:"model"`
	BaseURL       string `json:"base_url,omitempty"`
	ModelStatus   string `json:"model_status"`
	ModelError    string `json:"model_error,omitempty"`
	Workers       int    `json:"workers"`
}

// OK reports whether storage and the model provider are both reachable.
func (r *StatusReport) OK() bool {
	return r.StorageStatus == "ok" && r.ModelStatus == "ok"
}

// HandleStatus handles "rigchat status": it checks the database opens and
// the model provider answers, without starting the server.
func HandleStatus(ctx context.Context, args *ArgParser, w io.Writer) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	provider, err := NewProvider(cfg.Model)
	if err != nil {
		return commandError("status", "", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	report := &StatusReport{
		Version:       Version,
		Addr:          cfg.Server.Addr,
		StoragePath:   cfg.Storage.Path,
		StorageStatus: "ok",
		Provider:      provider.Name(),
		Model:         cfg.Model.Name,
		BaseURL:       cfg.Model.BaseURL,
		ModelStatus:   "ok",
		Workers:       cfg.Dispatch.Workers,
	}

	if store, err := storage.Open(cfg.Storage.Path); err != nil {
		report.StorageStatus, report.StorageError = "unavailable", err.Error()
	} else {
		if err := store.Ping(ctx); err != nil {
			report.StorageStatus, report.StorageError = "unavailable", err.Error()
		}
		store.Close()
	}

	if err := provider.CheckRunning(ctx); err != nil {
		report.ModelStatus, report.ModelError = "unavailable", err.Error()
	} else if mc, ok := provider.(modelChecker); ok {
		if err := mc.CheckModel(ctx); err != nil {
			report.ModelStatus, report.ModelError = "unavailable", err.Error()
			if ollama.IsModelNotFound(err) {
				report.ModelStatus = "missing"
			}
		}
	}

	if args.BoolFlag("json") {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		printStatus(w, report)
	}

	if report.ModelStatus != "ok" {
		return errModelUnreachable
	}
	if report.StorageStatus != "ok" {
		return commandError("status", "storage", fmt.Errorf("%s", report.StorageError))
	}
	return nil
}

func printStatus(w io.Writer, r *StatusReport) {
	fmt.Fprintf(w, "rigchat %s\n\n", r.Version)
	fmt.Fprintf(w, "  %-10s %s\n", "Listen", r.Addr)
	fmt.Fprintf(w, "  %-10s %s\n", "Workers", fmt.Sprint(r.Workers))
	fmt.Fprintf(w, "  %-10s %s (%s)\n", "Storage", r.StorageStatus, r.StoragePath)
	if r.StorageError != "" {
		fmt.Fprintf(w, "  %-10s %s\n", "", r.StorageError)
	}
	model := r.Model
	if model == "" {
		model = "(provider default)"
	}
	fmt.Fprintf(w, "  %-10s %s %s\n", "Provider", r.Provider, model)
	if r.BaseURL != "" {
		fmt.Fprintf(w, "  %-10s %s\n", "Endpoint", r.BaseURL)
	}
	fmt.Fprintf(w, "  %-10s %s\n", "Model", r.ModelStatus)
	if r.ModelError != "" {
		fmt.Fprintf(w, "  %-10s %s\n", "", r.ModelError)
	}
}
