package command

import (
	"slices"
	"sort"
	"strings"
	"sync"
)

var (
	dataArg = []Positional{{Field: "data", Required: true}}

	lags   = OptUint("--lags")
	config = OptString("--config")

	shock        = Uint("--shock", 1)
	horizons     = Uint("--horizons", 20)
	identify     = Enum("--id", "cholesky", "cholesky", "sign", "narrative", "longrun", "arias")
	interval     = Enum("--ci", "bootstrap", "none", "bootstrap", "theoretical")
	replications = Uint("--replications", 1000)
	draws        = Uint("--draws", 2000)
	sampler      = String("--sampler", "nuts")
	column       = Uint("--column", 1)
	trend        = String("--trend", "constant")
)

func op(name, summary string, opts ...Option) *Descriptor {
	group, verb, _ := strings.Cut(name, ".")
	return &Descriptor{
		Name:        name,
		Summary:     summary,
		Group:       group,
		Verb:        verb,
		Positionals: dataArg,
		Options:     opts,
	}
}

// pinned copies d with its switch fixed to method and only the options that
// apply to it.
func pinned(d *Descriptor, name, summary, method string) *Descriptor {
	p := *d
	p.Name = name
	p.Summary = summary
	p.Pin = method
	p.Options = nil
	for _, o := range d.Options {
		if o.appliesTo(method) {
			p.Options = append(p.Options, o)
		}
	}
	return &p
}

func bayesOnly(o Option) Option { return o.If("bayesian", IsTrue) }

func dataOps() []*Descriptor {
	imp := op("data.import", "Import a spreadsheet and report its columns and row count", String("--path", "").Require(), OptString("--sheet"))
	imp.Positionals = nil
	preview := op("data.preview", "Return the first rows of a data file", String("--path", "").Require(), Uint("--rows", 100))
	preview.Positionals = nil
	return []*Descriptor{imp, preview}
}

func varOps() []*Descriptor {
	return []*Descriptor{
		op("var.estimate", "Estimate a vector autoregression",
			lags, Enum("--trend", "constant", "none", "constant", "trend", "both")),
		op("var.lagselect", "Select the VAR lag order by information criterion",
			Uint("--max-lags", 12), Enum("--criterion", "aic", "aic", "bic", "hqc")),
		op("var.stability", "Check VAR stability", lags),
		op("var.irf", "Impulse responses of a VAR",
			shock, horizons, identify, interval, replications, lags, config),
		op("var.fevd", "Forecast error variance decomposition of a VAR",
			horizons, identify, lags, config),
		op("var.hd", "Historical decomposition of a VAR", identify, lags, config),
		op("var.forecast", "Forecast from a VAR",
			horizons, Float("--confidence", 0.95), lags),
	}
}

func bvarOps() []*Descriptor {
	return []*Descriptor{
		op("bvar.estimate", "Estimate a Bayesian VAR",
			Uint("--lags", 4), String("--prior", "minnesota"), draws, sampler, config),
		op("bvar.posterior", "Summarize the BVAR posterior",
			Uint("--lags", 4), draws, sampler, String("--method", "mean"), config),
		op("bvar.irf", "Impulse responses of a BVAR",
			shock, horizons, identify, draws, sampler, lags, config),
		op("bvar.fevd", "Variance decomposition of a BVAR",
			horizons, identify, draws, sampler, lags, config),
		op("bvar.hd", "Historical decomposition of a BVAR",
			identify, draws, sampler, lags, config),
		op("bvar.forecast", "Forecast from a BVAR",
			horizons, draws, sampler, lags, config),
	}
}

func structuralOps() []*Descriptor {
	bayesian := Flag("--bayesian")
	return []*Descriptor{
		op("irf.compute", "Impulse responses, frequentist or Bayesian",
			shock, horizons, identify, interval, replications, lags,
			bayesian, bayesOnly(draws), bayesOnly(sampler), config),
		op("fevd.compute", "Variance decomposition, frequentist or Bayesian",
			horizons, identify, lags,
			bayesian, bayesOnly(draws), bayesOnly(sampler), config),
		op("hd.compute", "Historical decomposition, frequentist or Bayesian",
			identify, lags,
			bayesian, bayesOnly(draws), bayesOnly(sampler), config),
	}
}

func lpOps() []*Descriptor {
	methods := []string{"standard", "iv", "smooth", "state", "propensity", "multi", "robust"}
	lp := op("lp.estimate", "Local projections",
		Uint("--shock", 1).For("standard", "iv", "smooth", "state"),
		Uint("--treatment", 1).For("propensity", "robust"),
		horizons,
		Uint("--control-lags", 4).For("standard", "iv", "multi"),
		String("--vcov", "newey_west").For("standard", "iv", "multi"),
		Uint("--knots", 3).For("smooth"),
		Float("--lambda", 0).For("smooth"),
		Float("--gamma", 1.5).For("state"),
		String("--method", "logistic").As("state_method").For("state"),
		OptUint("--state-var").For("state"),
		String("--score-method", "logit").For("propensity", "robust"),
		OptString("--instruments").For("iv"),
		List("--shocks").For("multi"),
	)
	lp.Verb = ""
	lp.Switch = &Switch{
		Field:   "method",
		Default: "standard",
		Values:  methods,
		Verbs:   map[string]string{"standard": "estimate"},
	}
	return []*Descriptor{
		lp,
		pinned(lp, "lp.iv", "Local projections with instrumental variables", "iv"),
		pinned(lp, "lp.smooth", "Smooth local projections", "smooth"),
		pinned(lp, "lp.state", "State-dependent local projections", "state"),
		pinned(lp, "lp.propensity", "Propensity-score local projections", "propensity"),
		pinned(lp, "lp.multi", "Local projections for several shocks", "multi"),
		pinned(lp, "lp.robust", "Doubly robust local projections", "robust"),
	}
}

func factorOps() []*Descriptor {
	factor := op("factor.estimate", "Factor models",
		OptUint("--nfactors"),
		String("--criterion", "ic1").For("static"),
		Uint("--factor-lags", 1).For("dynamic"),
		String("--method", "twostep").For("dynamic"),
		OptUint("--dynamic-rank").For("gdfm"),
		Uint("--horizon", 12).For("forecast"),
		String("--ci-method", "none").For("forecast"),
		Float("--conf-level", 0.95).For("forecast"),
	)
	factor.Verb = ""
	factor.Switch = &Switch{
		Field:   "model",
		Default: "static",
		Values:  []string{"static", "dynamic", "gdfm"},
	}
	return []*Descriptor{
		factor,
		pinned(factor, "factor.static", "Static factor model", "static"),
		pinned(factor, "factor.dynamic", "Dynamic factor model", "dynamic"),
		pinned(factor, "factor.gdfm", "Generalized dynamic factor model", "gdfm"),
		pinned(factor, "factor.forecast", "Forecast from a factor model", "forecast"),
	}
}

func testOps() []*Descriptor {
	return []*Descriptor{
		op("test.adf", "Augmented Dickey-Fuller unit root test", column, trend, OptUint("--max-lags")),
		op("test.kpss", "KPSS stationarity test", column, trend),
		op("test.pp", "Phillips-Perron unit root test", column, trend),
		op("test.za", "Zivot-Andrews structural break unit root test",
			column, String("--trend", "both"), Float("--trim", 0.15)),
		op("test.np", "Ng-Perron unit root test", column, trend),
		op("test.johansen", "Johansen cointegration test", Uint("--lags", 2), trend),
	}
}

func arimaOps() []*Descriptor {
	maxP := Uint("--max-p", 5)
	maxD := Uint("--max-d", 2)
	maxQ := Uint("--max-q", 5)
	criterion := String("--criterion", "bic")
	method := String("--method", "css_mle")
	noP := func(o Option) Option { return o.If("p", IsAbsent) }

	return []*Descriptor{
		op("arima.estimate", "Estimate an ARIMA model; searches the order when p is absent",
			column, OptUint("--p"), Uint("--d", 0), Uint("--q", 0), method,
			noP(maxP), noP(maxD), noP(maxQ), noP(criterion)),
		op("arima.auto", "Automatic ARIMA order selection",
			column, maxP, maxD, maxQ, criterion, method),
		op("arima.forecast", "Forecast from an ARIMA model",
			column, Uint("--d", 0), Uint("--q", 0), Uint("--horizons", 12),
			Float("--confidence", 0.95), method, OptUint("--p")),
	}
}

func nongaussianOps() []*Descriptor {
	return []*Descriptor{
		op("nongaussian.fastica", "Identify structural shocks by independent component analysis",
			lags, String("--method", "fastica"), String("--contrast", "logcosh")),
		op("nongaussian.ml", "Identify structural shocks by maximum likelihood",
			lags, String("--distribution", "student_t")),
		op("nongaussian.heteroskedasticity", "Identify structural shocks through heteroskedasticity",
			lags, String("--method", "markov"), config, Uint("--regimes", 2)),
		op("nongaussian.normality", "Test residual normality", lags),
		op("nongaussian.identifiability", "Test identifiability of non-Gaussian shocks",
			lags, String("--test", "all"), String("--method", "fastica"), String("--contrast", "logcosh")),
	}
}

func gmmOps() []*Descriptor {
	return []*Descriptor{
		op("gmm.estimate", "Generalized method of moments", String("--weighting", "twostep"), config),
	}
}

var (
	catalogOnce sync.Once
	catalog     map[string]*Descriptor
	catalogList []*Descriptor
)

func load() {
	catalogOnce.Do(func() {
		catalog = make(map[string]*Descriptor)
		for _, group := range [][]*Descriptor{
			dataOps(), varOps(), bvarOps(), structuralOps(), lpOps(),
			factorOps(), testOps(), gmmOps(), arimaOps(), nongaussianOps(),
		} {
			for _, d := range group {
				catalog[d.Name] = d
				catalogList = append(catalogList, d)
			}
		}
		sort.Slice(catalogList, func(i, j int) bool { return catalogList[i].Name < catalogList[j].Name })
	})
}

// Lookup returns the descriptor registered under name.
func Lookup(name string) (*Descriptor, bool) {
	load()
	d, ok := catalog[name]
	return d, ok
}

// All returns every descriptor sorted by name. Descriptors are shared and
// must not be modified.
func All() []*Descriptor {
	load()
	return slices.Clone(catalogList)
}
