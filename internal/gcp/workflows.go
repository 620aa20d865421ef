package gcp

import (
	"context"
	"encoding/json"
	"fmt"

	executions "cloud.google.com/go/workflows/executions/apiv1"
	"cloud.google.com/go/workflows/executions/apiv1/executionspb"

	"github.com/Lllllllleong/qrinvoicevalidator/internal/models"
)

// WorkflowParent formats the resource name executions are created under.
func WorkflowParent(projectID, location, workflowID string) string {
	return fmt.Sprintf("projects/%s/locations/%s/workflows/%s", projectID, location, workflowID)
}

// ReviewDispatcher starts the manual review workflow for results that need
// a human.
type ReviewDispatcher struct {
	client *executions.Client
	parent string
}

func NewReviewDispatcher(ctx context.Context, projectID, location, workflowID string) (*ReviewDispatcher, error) {
	client, err := executions.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Workflows Executions client: %w", err)
	}
	return &ReviewDispatcher{client: client, parent: WorkflowParent(projectID, location, workflowID)}, nil
}

// ReviewArgument encodes the execution argument for req.
func ReviewArgument(req models.ReviewRequest) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal review payload: %w", err)
	}
	return string(payload), nil
}

// Dispatch creates one workflow execution and returns its name.
func (d *ReviewDispatcher) Dispatch(ctx context.Context, req models.ReviewRequest) (string, error) {
	arg, err := ReviewArgument(req)
	if err != nil {
		return "", err
	}
	exec, err := d.client.CreateExecution(ctx, &executionspb.CreateExecutionRequest{
		Parent:    d.parent,
		Execution: &executionspb.Execution{Argument: arg},
	})
	if err != nil {
		return "", fmt.Errorf("failed to trigger review workflow: %w", err)
	}
	return exec.GetName(), nil
}

func (d *ReviewDispatcher) Close() error {
	return d.client.Close()
}
