package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/friedman-econ/friedman/internal/client"
	"github.com/friedman-econ/friedman/internal/engine"
	"github.com/friedman-econ/friedman/internal/server"
	"github.com/friedman-econ/friedman/internal/shell"
	"github.com/friedman-econ/friedman/internal/testutil"
)

func TestParseParams(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		base    string
		args    []string
		want    map[string]string
		wantErr string
	}{
		{
			name: "assignments only",
			args: []string{"data=x.csv", "lags=4", "bayesian=true", "alpha=0.05", "shock=null"},
			want: map[string]string{
				"data": `"x.csv"`, "lags": `4`, "bayesian": `true`, "alpha": `0.05`, "shock": `null`,
			},
		},
		{
			name: "assignments override base",
			base: `{"data":"a.csv","lags":2}`,
			args: []string{"lags=8"},
			want: map[string]string{"data": `"a.csv"`, "lags": `8`},
		},
		{
			name: "non-json numbers stay strings",
			args: []string{"shocks=1,2,3", "x=Inf", "y=0x10", "z=", "w=a=b"},
			want: map[string]string{"shocks": `"1,2,3"`, "x": `"Inf"`, "y": `"0x10"`, "z": `""`, "w": `"a=b"`},
		},
		{
			name: "null base",
			base: "null",
			args: []string{"a=1"},
			want: map[string]string{"a": `1`},
		},
		{name: "missing equals", args: []string{"lags"}, wantErr: "expected key=value"},
		{name: "empty key", args: []string{"=3"}, wantErr: "expected key=value"},
		{name: "array base", base: `[1]`, wantErr: "-params must be a JSON object"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := parseParams(tt.base, tt.args)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			flat := make(map[string]string, len(got))
			for k, v := range got {
				flat[k] = string(v)
			}
			assert.Equal(t, tt.want, flat)
		})
	}
}

func TestExitCode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, exitInvalid, exitCode(engine.InvalidParams("bad")))
	assert.Equal(t, exitEngine, exitCode(&engine.Error{Kind: engine.KindComputation, ExitCode: 1}))
	assert.Equal(t, exitEngine, exitCode(&engine.Error{Kind: engine.KindNotFound}))
	assert.Equal(t, exitFailure, exitCode(errors.New("connection refused")))
	assert.Equal(t, exitInvalid, exitCode(&client.APIError{Kind: "invalid_params"}))
	assert.Equal(t, exitEngine, exitCode(&client.APIError{Kind: "malformed_output"}))
	assert.Equal(t, exitFailure, exitCode(&client.APIError{Kind: "unauthorized"}))
	assert.Equal(t, exitInvalid, exitCode(&client.APIError{Status: 404, Kind: "not_found"}))
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

// useEngine points in-process runs at a fake engine and a scratch journal.
func useEngine(t *testing.T, script string) {
	t.Helper()
	t.Setenv("FRIEDMAN_ENGINE_PATH", testutil.FakeEngine(t, script))
	t.Setenv("FRIEDMAN_HISTORY_DIR", t.TempDir())
}

func echoed(t *testing.T, out string) []string {
	t.Helper()
	var got struct {
		Args []string `json:"args"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	return got.Args
}

func TestRun_InProcess(t *testing.T) {
	useEngine(t, testutil.EchoArgsEngine())

	code, stdout, _ := runCLI(t, "-params", `{"data":"x.csv"}`, "arima.estimate", "column=2", "max_p=3", "max_d=1", "max_q=3")
	require.Equal(t, exitOK, code)
	assert.Equal(t,
		[]string{"arima", "estimate", "x.csv", "--column", "2", "--d", "0", "--q", "0", "--method", "css_mle",
			"--max-p", "3", "--max-d", "1", "--max-q", "3", "--criterion", "bic", "--format=json"},
		echoed(t, stdout))
}

func TestRun_DryRun(t *testing.T) {
	marker := t.TempDir() + "/spawned"
	useEngine(t, "#!/bin/sh\ntouch "+marker+"\necho '{}'\n")

	code, stdout, _ := runCLI(t, "-dry-run", "var.stability", "data=d.csv")
	require.Equal(t, exitOK, code)
	assert.Contains(t, stdout, `"args": [`)
	assert.Contains(t, stdout, `"stability"`)
	assert.NoFileExists(t, marker)
}

func TestRun_Progress(t *testing.T) {
	useEngine(t, testutil.ProgressEngine([]string{"draw 100/1000", "draw 1000/1000"}, `{"ok":1}`))

	code, stdout, stderr := runCLI(t, "-job", "cli-job", "bvar.estimate", "data=d.csv")
	require.Equal(t, exitOK, code)
	assert.JSONEq(t, `{"ok":1}`, stdout)
	assert.Contains(t, stderr, "draw 100/1000\ndraw 1000/1000\n")
}

func TestRun_ExitCodes(t *testing.T) {
	useEngine(t, testutil.FailingEngine(1, "ERROR: singular", ""))

	code, stdout, stderr := runCLI(t, "var.estimate", "data=d.csv")
	assert.Equal(t, exitEngine, code)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "singular")

	code, _, _ = runCLI(t, "var.estimate", "data=d.csv", "lags=-1")
	assert.Equal(t, exitInvalid, code)

	code, _, _ = runCLI(t, "no.such")
	assert.Equal(t, exitInvalid, code)

	code, _, _ = runCLI(t)
	assert.Equal(t, exitInvalid, code)

	code, _, _ = runCLI(t, "-bogus")
	assert.Equal(t, exitInvalid, code)

	code, stdout, _ = runCLI(t, "-version")
	assert.Equal(t, exitOK, code)
	assert.Equal(t, "dev\n", stdout)
}

func TestRun_Remote(t *testing.T) {
	t.Parallel()

	svc := shell.New(shell.Options{
		Resolver: engine.NewResolver(engine.ResolverConfig{
			Path: testutil.FakeEngine(t, testutil.ProgressEngine([]string{"fitting"}, `{"remote":true}`)),
		}),
	})
	hash, err := server.HashToken("tok")
	require.NoError(t, err)
	ts := httptest.NewServer(server.New(server.Options{Service: svc, TokenHash: hash}).Router())
	defer ts.Close()

	code, stdout, stderr := runCLI(t, "-server", ts.URL, "-token", "tok", "-job", "remote-1", "gmm.estimate", "data=d.csv")
	require.Equal(t, exitOK, code, stderr)
	assert.JSONEq(t, `{"remote":true}`, stdout)
	assert.Contains(t, stderr, "fitting")

	code, stdout, _ = runCLI(t, "-server", ts.URL, "-token", "tok", "-dry-run", "gmm.estimate", "data=d.csv")
	require.Equal(t, exitOK, code)
	assert.Contains(t, stdout, `"gmm"`)

	code, _, _ = runCLI(t, "-server", ts.URL, "-token", "nope", "gmm.estimate", "data=d.csv")
	assert.Equal(t, exitFailure, code)

	code, _, _ = runCLI(t, "-server", ts.URL, "-token", "tok", "gmm.estimate")
	assert.Equal(t, exitInvalid, code)

	code, _, _ = runCLI(t, "-server", ts.URL, "-token", "tok", "no.such", "data=d.csv")
	assert.Equal(t, exitInvalid, code)
}
