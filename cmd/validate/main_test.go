package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/qrinvoicevalidator/internal/services"
)

func setDefaultEnv(t *testing.T) {
	t.Helper()
	t.Setenv("TOLERANCE_PERCENT", "5")
	t.Setenv("RECOGNIZER", "tesseract")
	t.Setenv("TOTAL_SELECTOR", "last")
	t.Setenv("BATCH_WORKERS", "1")
}

func TestParseFlags(t *testing.T) {
	setDefaultEnv(t)

	opts, err := parseFlags([]string{"-tolerance", "2.5", "-workers", "3", "-recognizer", "Tesseract", "-total", "largest", "-out", "done", "a.pdf", "b.png"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.pdf", "b.png"}, opts.paths)
	assert.Equal(t, "done", opts.outDir)
	assert.Equal(t, 2.5, opts.config.TolerancePercent)
	assert.Equal(t, 3, opts.config.BatchWorkers)
	assert.Equal(t, services.RecognizerTesseract, opts.config.Recognizer)
	assert.Equal(t, services.TotalSelectorLargest, opts.config.TotalSelector)
}

func TestParseFlagsRejectsInvalidValues(t *testing.T) {
	tests := [][]string{
		{},
		{"-recognizer", "foo", "a.pdf"},
		{"-tolerance", "150", "a.pdf"},
		{"-tolerance", "-1", "a.pdf"},
		{"-workers", "0", "a.pdf"},
		{"-total", "first", "a.pdf"},
		{"-unknown", "a.pdf"},
	}
	for _, args := range tests {
		setDefaultEnv(t)
		_, err := parseFlags(args)
		assert.Error(t, err, "%v", args)
	}
}
