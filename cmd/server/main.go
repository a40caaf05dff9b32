package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/sheikh-saqib/camp-treasury-ledger/internal/events/kafka"
	"github.com/sheikh-saqib/camp-treasury-ledger/internal/interfaces"
	"github.com/sheikh-saqib/camp-treasury-ledger/internal/ledger"
	"github.com/sheikh-saqib/camp-treasury-ledger/internal/models"
	"github.com/sheikh-saqib/camp-treasury-ledger/internal/storage/memory"
	"github.com/sheikh-saqib/camp-treasury-ledger/internal/storage/postgres"
	"github.com/sheikh-saqib/camp-treasury-ledger/internal/validation"
)

func main() {
	_ = godotenv.Load()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	var store interfaces.LedgerStore
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			log.Fatal(err)
		}
		if err := postgres.RunMigrations(db); err != nil {
			log.Fatal(err)
		}
		store = postgres.NewPostgresLedgerStore(db)
		logger.Info().Msg("using postgres store")
	} else {
		store = memory.NewMemoryLedgerStore()
		logger.Info().Msg("DATABASE_URL not set, using in-memory store")
	}

	if err := seedDefaultUnits(store); err != nil {
		log.Fatal(err)
	}

	mode := validation.ModeLegacy
	if os.Getenv("BREAKDOWN_MODE") == "strict" {
		mode = validation.ModeStrict
	}
	gate := validation.NewGate(mode)

	var pub interfaces.EventPublisher
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		pub = kafka.NewPublisher(strings.Split(brokers, ","))
		logger.Info().Str("brokers", brokers).Msg("kafka publisher enabled")
	}

	ledgerService := ledger.NewLedger(store, gate, pub, logger)
	reconciler := ledger.NewReconciler(store, pub, logger)

	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	http.HandleFunc("/movements", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var desc models.Descriptor
		if err := json.NewDecoder(r.Body).Decode(&desc); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		ref, err := ledgerService.Append(r.Context(), actor(r), desc)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"movement": ref})
	})

	http.HandleFunc("/movements/delete", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var ref models.MovementRef
		if err := json.NewDecoder(r.Body).Decode(&ref); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if err := ledgerService.Remove(r.Context(), actor(r), ref); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"removed": ref})
	})

	http.HandleFunc("/movements/update", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Movement models.MovementRef `json:"movement"`
			Patch    models.Patch       `json:"patch"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		updated, err := ledgerService.Update(r.Context(), actor(r), req.Movement, req.Patch)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	})

	http.HandleFunc("/transfers", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var instr models.TransferInstruction
		if err := json.NewDecoder(r.Body).Decode(&instr); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		out, in, err := ledgerService.Transfer(r.Context(), actor(r), instr)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"out": out, "in": in})
	})

	http.HandleFunc("/balance", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		entity, ok := entityFromQuery(w, r)
		if !ok {
			return
		}
		balance, err := ledgerService.Balance(r.Context(), entity)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"entity": entity, "balance": balance})
	})

	http.HandleFunc("/holdings", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		registerID := r.URL.Query().Get("register_id")
		if registerID == "" {
			http.Error(w, "register_id is a mandatory field", http.StatusBadRequest)
			return
		}
		holdings, err := ledgerService.Holdings(r.Context(), registerID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, holdings)
	})

	http.HandleFunc("/reconcile/verify", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		entity, ok := entityFromQuery(w, r)
		if !ok {
			return
		}
		result, err := reconciler.Verify(r.Context(), entity)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	})

	http.HandleFunc("/reconcile/denominations", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		registerID := r.URL.Query().Get("register_id")
		if registerID == "" {
			http.Error(w, "register_id is a mandatory field", http.StatusBadRequest)
			return
		}
		report, err := reconciler.VerifyDenominations(r.Context(), registerID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
	})

	http.HandleFunc("/reconcile/repair", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Entity   *models.EntityRef `json:"entity,omitempty"`
			PeriodID string            `json:"period_id,omitempty"`
			DryRun   bool              `json:"dry_run,omitempty"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		corrected, err := reconciler.BatchRepair(r.Context(), actor(r), ledger.Scope{
			PeriodID: req.PeriodID,
			Entity:   req.Entity,
			DryRun:   req.DryRun,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"corrected": corrected, "dry_run": req.DryRun})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	logger.Info().Str("port", port).Msg("starting server")
	log.Fatal(http.ListenAndServe(":"+port, nil))
}

// seedDefaultUnits installs the standard euro denomination set on first run.
func seedDefaultUnits(store interfaces.LedgerStore) error {
	ctx := context.Background()
	return store.Atomically(ctx, func(tx interfaces.Tx) error {
		units, err := tx.Units(ctx)
		if err != nil {
			return err
		}
		if len(units) > 0 {
			return nil
		}
		for _, u := range models.DefaultEuroUnits() {
			if err := tx.InsertUnit(ctx, u); err != nil {
				return err
			}
		}
		return nil
	})
}

// actor returns the audit identity resolved by the upstream collaborator.
func actor(r *http.Request) string {
	if a := r.Header.Get("X-Actor"); a != "" {
		return a
	}
	return "unknown"
}

func entityFromQuery(w http.ResponseWriter, r *http.Request) (models.EntityRef, bool) {
	kind := models.EntityKind(r.URL.Query().Get("entity_kind"))
	id := r.URL.Query().Get("entity_id")
	if (kind != models.EntityRegister && kind != models.EntityAccount) || id == "" {
		http.Error(w, "entity_kind and entity_id are mandatory fields", http.StatusBadRequest)
		return models.EntityRef{}, false
	}
	return models.EntityRef{Kind: kind, ID: id}, true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeDomainError maps the engine's error taxonomy onto HTTP statuses; the
// body carries the structured domain error for the caller.
func writeDomainError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var invalid *models.InvalidMovementError
	var mismatch *models.BreakdownMismatchError
	switch {
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
	case errors.As(err, &invalid), errors.As(err, &mismatch):
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
