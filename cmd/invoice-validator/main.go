package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/Lllllllleong/qrinvoicevalidator/internal/models"
	"github.com/Lllllllleong/qrinvoicevalidator/internal/services"
)

var (
	validatorInstance *services.ValidatorFunction
	once              sync.Once
	initErr           error
)

func init() {
	slog.SetDefault(services.NewLogger(os.Stdout))

	// Triggered by object finalize events on the inbox bucket.
	functions.CloudEvent("ValidateInvoice", validateInvoice)
}

// main is required by the Go Functions Framework.
func main() {}

func validateInvoice(ctx context.Context, e cloudevents.Event) error {
	once.Do(func() {
		validatorInstance, initErr = services.NewValidator(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	var gcsEvent models.GCSEvent
	if err := json.Unmarshal(e.Data(), &gcsEvent); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}

	// Errors are logged with context inside Process; returning one marks the
	// invocation as failed so the event is retried.
	_, err := validatorInstance.Process(ctx, gcsEvent)
	return err
}
