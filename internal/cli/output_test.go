package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, f.Success(map[string]string{"result": "success"}, "ignored"))

	var resp Response
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
	assert.Nil(t, resp.Error)
	assert.NotContains(t, buf.String(), "ignored")
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, f.Success(OwnedResult{ProductID: "a"}, "a: not owned"))
	assert.Equal(t, "a: not owned\n", buf.String())

	buf.Reset()
	require.NoError(t, f.Success("plain", ""))
	assert.Equal(t, "plain\n", buf.String())
}

func TestOutputFormatter_JSONFailure(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "json", Writer: buf}

	err := f.Failure(ExitFailure, ErrCodeCatalog, "duplicate product id", CatalogSummary{}, CatalogProblem{Field: "catalog", Line: 3})
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp Response
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeCatalog, resp.Error.Code)
	assert.Equal(t, "duplicate product id", resp.Error.Message)
	assert.NotNil(t, resp.Error.Details)
	assert.NotNil(t, resp.Data)
}

func TestOutputFormatter_TextFailure(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "text", Writer: buf}

	err := f.Failure(ExitCommandError, ErrCodeNotFound, "database not found: x.db", nil, nil)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Equal(t, "Error [E_NOT_FOUND]: database not found: x.db\n", buf.String())
}

func TestExitError(t *testing.T) {
	base := errors.New("disk full")
	err := WrapExitError(ExitCommandError, "open cache", base)

	assert.Equal(t, "open cache: disk full", err.Error())
	assert.ErrorIs(t, err, base)
	assert.Equal(t, "bare", NewExitError(ExitFailure, "bare").Error())
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	assert.Equal(t, ExitCommandError, GetExitCode(fmt.Errorf("wrapped: %w", NewExitError(ExitCommandError, "x"))))
}
