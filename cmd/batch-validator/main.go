package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"

	"github.com/Lllllllleong/qrinvoicevalidator/internal/models"
	"github.com/Lllllllleong/qrinvoicevalidator/internal/services"
)

var (
	batchInstance *services.BatchFunction
	once          sync.Once
	initErr       error
)

func init() {
	slog.SetDefault(services.NewLogger(os.Stdout))

	functions.HTTP("HandleValidateBatch", handleValidateBatch)
}

func main() {}

// handleValidateBatch validates every supported object under a bucket prefix.
func handleValidateBatch(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		batchInstance, initErr = services.NewBatch(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical: batch validator initialization failed", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}

	var req models.BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Could not decode request body", "error", err)
		http.Error(w, "Bad Request: could not parse JSON", http.StatusBadRequest)
		return
	}

	res, err := batchInstance.Process(r.Context(), &req)
	if errors.Is(err, services.ErrInvalidRequest) {
		http.Error(w, "Bad Request: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		http.Error(w, "Internal Server Error: processing failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(res); err != nil {
		slog.Error("Failed to write response", "error", err, "gcsBucket", req.Bucket, "prefix", req.Prefix)
		http.Error(w, "Internal Server Error: failed to encode response", http.StatusInternalServerError)
	}
}
