package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/friedman-econ/friedman/internal/engine"
)

func params(t *testing.T, m map[string]any) Params {
	t.Helper()
	p, err := ParamsFromMap(m)
	require.NoError(t, err)
	return p
}

func prepare(t *testing.T, name string, m map[string]any) []string {
	t.Helper()
	d, ok := Lookup(name)
	require.True(t, ok, "operation %s", name)
	args, err := Prepare(d, params(t, m))
	require.NoError(t, err)
	return args
}

func TestBuild_ReferenceVectors(t *testing.T) {
	t.Parallel()

	assert.Equal(t,
		[]string{"arima", "estimate", "x.csv", "--column", "2", "--d", "0", "--q", "0", "--method", "css_mle",
			"--max-p", "3", "--max-d", "1", "--max-q", "3", "--criterion", "bic"},
		prepare(t, "arima.estimate", map[string]any{"data": "x.csv", "column": 2, "max_p": 3, "max_d": 1, "max_q": 3}))

	assert.Equal(t,
		[]string{"var", "estimate", "macro.csv", "--lags", "2", "--trend", "constant"},
		prepare(t, "var.estimate", map[string]any{"data": "macro.csv", "lags": 2}))
}

func TestBuild_Defaults(t *testing.T) {
	t.Parallel()

	tests := []struct {
		op   string
		want []string
	}{
		{"var.estimate", []string{"var", "estimate", "d.csv", "--trend", "constant"}},
		{"var.lagselect", []string{"var", "lagselect", "d.csv", "--max-lags", "12", "--criterion", "aic"}},
		{"var.stability", []string{"var", "stability", "d.csv"}},
		{"var.irf", []string{"var", "irf", "d.csv", "--shock", "1", "--horizons", "20", "--id", "cholesky",
			"--ci", "bootstrap", "--replications", "1000"}},
		{"var.forecast", []string{"var", "forecast", "d.csv", "--horizons", "20", "--confidence", "0.95"}},
		{"bvar.estimate", []string{"bvar", "estimate", "d.csv", "--lags", "4", "--prior", "minnesota",
			"--draws", "2000", "--sampler", "nuts"}},
		{"bvar.posterior", []string{"bvar", "posterior", "d.csv", "--lags", "4", "--draws", "2000",
			"--sampler", "nuts", "--method", "mean"}},
		{"irf.compute", []string{"irf", "compute", "d.csv", "--shock", "1", "--horizons", "20", "--id", "cholesky",
			"--ci", "bootstrap", "--replications", "1000"}},
		{"hd.compute", []string{"hd", "compute", "d.csv", "--id", "cholesky"}},
		{"lp.estimate", []string{"lp", "estimate", "d.csv", "--shock", "1", "--horizons", "20",
			"--control-lags", "4", "--vcov", "newey_west"}},
		{"lp.smooth", []string{"lp", "smooth", "d.csv", "--shock", "1", "--horizons", "20",
			"--knots", "3", "--lambda", "0"}},
		{"lp.state", []string{"lp", "state", "d.csv", "--shock", "1", "--horizons", "20",
			"--gamma", "1.5", "--method", "logistic"}},
		{"lp.propensity", []string{"lp", "propensity", "d.csv", "--treatment", "1", "--horizons", "20",
			"--score-method", "logit"}},
		{"lp.multi", []string{"lp", "multi", "d.csv", "--horizons", "20", "--control-lags", "4", "--vcov", "newey_west"}},
		{"factor.estimate", []string{"factor", "static", "d.csv", "--criterion", "ic1"}},
		{"factor.dynamic", []string{"factor", "dynamic", "d.csv", "--factor-lags", "1", "--method", "twostep"}},
		{"factor.gdfm", []string{"factor", "gdfm", "d.csv"}},
		{"factor.forecast", []string{"factor", "forecast", "d.csv", "--horizon", "12", "--ci-method", "none",
			"--conf-level", "0.95"}},
		{"test.adf", []string{"test", "adf", "d.csv", "--column", "1", "--trend", "constant"}},
		{"test.za", []string{"test", "za", "d.csv", "--column", "1", "--trend", "both", "--trim", "0.15"}},
		{"test.johansen", []string{"test", "johansen", "d.csv", "--lags", "2", "--trend", "constant"}},
		{"gmm.estimate", []string{"gmm", "estimate", "d.csv", "--weighting", "twostep"}},
		{"arima.estimate", []string{"arima", "estimate", "d.csv", "--column", "1", "--d", "0", "--q", "0",
			"--method", "css_mle", "--max-p", "5", "--max-d", "2", "--max-q", "5", "--criterion", "bic"}},
		{"arima.auto", []string{"arima", "auto", "d.csv", "--column", "1", "--max-p", "5", "--max-d", "2",
			"--max-q", "5", "--criterion", "bic", "--method", "css_mle"}},
		{"arima.forecast", []string{"arima", "forecast", "d.csv", "--column", "1", "--d", "0", "--q", "0",
			"--horizons", "12", "--confidence", "0.95", "--method", "css_mle"}},
		{"nongaussian.heteroskedasticity", []string{"nongaussian", "heteroskedasticity", "d.csv",
			"--method", "markov", "--regimes", "2"}},
		{"nongaussian.identifiability", []string{"nongaussian", "identifiability", "d.csv",
			"--test", "all", "--method", "fastica", "--contrast", "logcosh"}},
	}
	for _, tt := range tests {
		t.Run(tt.op, func(t *testing.T) {
			assert.Equal(t, tt.want, prepare(t, tt.op, map[string]any{"data": "d.csv"}))
		})
	}
}

func TestBuild_OptionalValues(t *testing.T) {
	t.Parallel()

	args := prepare(t, "var.irf", map[string]any{"data": "d.csv", "lags": 3, "config": "sign.toml"})
	assert.Equal(t, []string{"var", "irf", "d.csv", "--shock", "1", "--horizons", "20", "--id", "cholesky",
		"--ci", "bootstrap", "--replications", "1000", "--lags", "3", "--config", "sign.toml"}, args)

	// null and empty strings count as absent.
	args = prepare(t, "var.irf", map[string]any{"data": "d.csv", "lags": nil, "config": ""})
	assert.NotContains(t, args, "--lags")
	assert.NotContains(t, args, "--config")
}

func TestBuild_ArimaOrderSearch(t *testing.T) {
	t.Parallel()

	explicit := prepare(t, "arima.estimate", map[string]any{"data": "x.csv", "p": 2, "d": 1, "q": 1, "max_p": 9})
	assert.Equal(t, []string{"arima", "estimate", "x.csv", "--column", "1", "--p", "2", "--d", "1", "--q", "1",
		"--method", "css_mle"}, explicit)

	p0 := prepare(t, "arima.estimate", map[string]any{"data": "x.csv", "p": 0})
	assert.Contains(t, p0, "--p")
	assert.NotContains(t, p0, "--max-p")
}

func TestBuild_BayesianToggle(t *testing.T) {
	t.Parallel()

	freq := prepare(t, "fevd.compute", map[string]any{"data": "d.csv", "draws": 500})
	assert.Equal(t, []string{"fevd", "compute", "d.csv", "--horizons", "20", "--id", "cholesky"}, freq)

	bayes := prepare(t, "fevd.compute", map[string]any{"data": "d.csv", "bayesian": true, "draws": 500})
	assert.Equal(t, []string{"fevd", "compute", "d.csv", "--horizons", "20", "--id", "cholesky",
		"--bayesian", "--draws", "500", "--sampler", "nuts"}, bayes)
}

func TestBuild_LPMethodDispatch(t *testing.T) {
	t.Parallel()

	iv := prepare(t, "lp.estimate", map[string]any{
		"data": "d.csv", "method": "iv", "instruments": "z1,z2",
		"knots": 7, "gamma": 3.0, "treatment": 2,
	})
	assert.Equal(t, []string{"lp", "iv", "d.csv", "--shock", "1", "--horizons", "20", "--control-lags", "4",
		"--vcov", "newey_west", "--instruments", "z1,z2"}, iv)

	state := prepare(t, "lp.state", map[string]any{
		"data": "d.csv", "method": "smooth", "state_method": "exponential", "state_var": 2, "gamma": 0.5,
	})
	assert.Equal(t, []string{"lp", "state", "d.csv", "--shock", "1", "--horizons", "20",
		"--gamma", "0.5", "--method", "exponential", "--state-var", "2"}, state)

	multi := prepare(t, "lp.multi", map[string]any{"data": "d.csv", "shocks": []int{1, 3}})
	assert.Equal(t, []string{"lp", "multi", "d.csv", "--horizons", "20", "--control-lags", "4",
		"--vcov", "newey_west", "--shocks", "1,3"}, multi)

	multi = prepare(t, "lp.multi", map[string]any{"data": "d.csv", "shocks": " 2, 4 "})
	assert.Equal(t, []string{"--shocks", "2,4"}, multi[len(multi)-2:])
}

func TestBuild_FactorModel(t *testing.T) {
	t.Parallel()

	args := prepare(t, "factor.estimate", map[string]any{"data": "panel.csv", "model": "gdfm", "nfactors": 3, "dynamic_rank": 2})
	assert.Equal(t, []string{"factor", "gdfm", "panel.csv", "--nfactors", "3", "--dynamic-rank", "2"}, args)
}

func TestBuild_FloatRendering(t *testing.T) {
	t.Parallel()

	args := prepare(t, "var.forecast", map[string]any{"data": "d.csv", "confidence": 0.9})
	assert.Equal(t, "0.9", args[len(args)-1])

	args = prepare(t, "lp.smooth", map[string]any{"data": "d.csv", "lambda": 1e-4})
	assert.Equal(t, "0.0001", args[len(args)-1])

	args = prepare(t, "test.za", map[string]any{"data": "d.csv", "trim": 1})
	assert.Equal(t, "1", args[len(args)-1])
}

func TestBuild_DataOperations(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"data", "import", "--path", "/tmp/book.xlsx"},
		prepare(t, "data.import", map[string]any{"path": "/tmp/book.xlsx"}))
	assert.Equal(t, []string{"data", "import", "--path", "/tmp/book.xlsx", "--sheet", "Q1"},
		prepare(t, "data.import", map[string]any{"path": "/tmp/book.xlsx", "sheet": "Q1"}))
	assert.Equal(t, []string{"data", "preview", "--path", "/tmp/d.csv", "--rows", "10"},
		prepare(t, "data.preview", map[string]any{"path": "/tmp/d.csv", "rows": 10}))
}

func TestNormalize_Rejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		op   string
		in   map[string]any
	}{
		{"missing data", "var.estimate", map[string]any{"lags": 2}},
		{"empty data", "var.estimate", map[string]any{"data": "  "}},
		{"negative uint", "var.estimate", map[string]any{"data": "d.csv", "lags": -1}},
		{"fractional uint", "var.estimate", map[string]any{"data": "d.csv", "lags": 1.5}},
		{"non-numeric uint", "var.estimate", map[string]any{"data": "d.csv", "lags": "two"}},
		{"enum outside set", "var.estimate", map[string]any{"data": "d.csv", "trend": "quadratic"}},
		{"bad identification", "var.irf", map[string]any{"data": "d.csv", "id": "magic"}},
		{"bad method", "lp.estimate", map[string]any{"data": "d.csv", "method": "quantile"}},
		{"forecast is not an estimate model", "factor.estimate", map[string]any{"data": "d.csv", "model": "forecast"}},
		{"bad float", "var.forecast", map[string]any{"data": "d.csv", "confidence": "high"}},
		{"bad flag", "irf.compute", map[string]any{"data": "d.csv", "bayesian": "maybe"}},
		{"bad list", "lp.multi", map[string]any{"data": "d.csv", "shocks": []any{1, -2}}},
		{"missing path", "data.import", map[string]any{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, ok := Lookup(tt.op)
			require.True(t, ok)
			_, err := Prepare(d, params(t, tt.in))
			require.Error(t, err)
			assert.Equal(t, engine.KindInvalidParams, engine.KindOf(err))
		})
	}
}

func TestNormalize_Lenient(t *testing.T) {
	t.Parallel()

	args := prepare(t, "var.estimate", map[string]any{
		"data": "d.csv", "lags": "3", "unknown_field": map[string]any{"x": 1}, "trend": nil,
	})
	assert.Equal(t, []string{"var", "estimate", "d.csv", "--lags", "3", "--trend", "constant"}, args)

	args = prepare(t, "irf.compute", map[string]any{"data": "d.csv", "bayesian": "true"})
	assert.Contains(t, args, "--bayesian")

	args = prepare(t, "var.estimate", map[string]any{"data": "d.csv", "lags": 4.0})
	assert.Equal(t, "4", args[4])
}
