package classifier_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/raysh454/cleanweb/internal/classifier"
	"github.com/raysh454/cleanweb/internal/logging"
	"github.com/raysh454/cleanweb/internal/model"
	"github.com/raysh454/cleanweb/internal/testutil"
	"github.com/raysh454/cleanweb/internal/webclient"
)

// fakeModel returns canned predictions and counts calls.
type fakeModel struct {
	preds []classifier.Prediction
	err   error
	calls atomic.Int32
}

func (m *fakeModel) Predict(_ context.Context, in classifier.ModelInput) ([]classifier.Prediction, error) {
	m.calls.Add(1)
	if in.Image == nil {
		return nil, errors.New("no image")
	}
	if m.err != nil {
		return nil, m.err
	}
	return m.preds, nil
}

func staticLoader(m classifier.Model) classifier.Loader {
	return func(context.Context) (classifier.Model, error) { return m, nil }
}

func newModel(loader classifier.Loader, client webclient.WebClient, cacheSize int) *classifier.ModelClassifier {
	return classifier.NewModelClassifier(classifier.ModelOptions{
		Loader:        loader,
		Fetcher:       client,
		Logger:        &testutil.DummyLogger{},
		FetchRetries:  1,
		RetryBase:     time.Millisecond,
		HashCacheSize: cacheSize,
	})
}

var mildPreds = []classifier.Prediction{
	{Class: "Neutral", Probability: 0.7},
	{Class: "Porn", Probability: 0.2},
	{Class: "Sexy", Probability: 0.1},
}

// ─── Input validation ──────────────────────────────────────────────────

func TestClassify_EmptyInputRejectedByEveryVariant(t *testing.T) {
	t.Parallel()
	variants := []classifier.Classifier{
		classifier.NewHeuristic(),
		classifier.NewMock(true),
		classifier.NewMock(false),
		newModel(staticLoader(&fakeModel{preds: mildPreds}), nil, 0),
		classifier.NewCached(classifier.NewHeuristic(), classifier.NewMemoryStore(), 0, logging.Nop()),
	}
	inputs := []classifier.Input{
		classifier.BytesInput([]byte{}),
		classifier.URLInput(""),
		{},
	}
	for _, c := range variants {
		for _, in := range inputs {
			r, err := c.Classify(context.Background(), in)
			if !errors.Is(err, classifier.ErrInvalidInput) {
				t.Errorf("%s: expected ErrInvalidInput, got %v (%+v)", c.Name(), err, r)
			}
		}
	}
}

// ─── Mock ──────────────────────────────────────────────────────────────

func TestMock_Deterministic(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	block, allow := classifier.NewMock(true), classifier.NewMock(false)

	for _, in := range []classifier.Input{
		classifier.URLInput("https://example.test/cat.jpg"),
		classifier.URLInput("https://example.test/nsfw.jpg"),
		classifier.BytesInput([]byte("whatever")),
	} {
		b, err := block.Classify(ctx, in)
		if err != nil {
			t.Fatal(err)
		}
		if !b.IsProblematic || b.Severity != 10 || b.Confidence != 1 || b.Reasons[0] != "Mock classifier: always block" {
			t.Errorf("block result = %+v", b)
		}
		a, err := allow.Classify(ctx, in)
		if err != nil {
			t.Fatal(err)
		}
		if a.IsProblematic || a.Severity != 0 || a.Confidence != 1 {
			t.Errorf("allow result = %+v", a)
		}
	}
	if block.Name() != classifier.MockBlockName || allow.Name() != classifier.MockAllowName {
		t.Errorf("names = %q, %q", block.Name(), allow.Name())
	}
}

// ─── Heuristic ─────────────────────────────────────────────────────────

func TestHeuristic_Scoring(t *testing.T) {
	t.Parallel()
	cases := []struct {
		url         string
		strict      bool
		threshold   float64
		severity    float64
		confidence  float64
		problematic bool
	}{
		{"https://example.test/kitten.png", false, 5, 0, 0.5, false},
		{"https://example.test/ADULT/banner.png", false, 5, 3, 0.7, false},
		{"https://example.test/adult-nude.png", false, 5, 6, 0.7, true},
		{"https://example.test/adult/nude/nsfw/explicit/porn.png", false, 5, 10, 0.7, true},
		{"https://example.test/adult/adult.png", false, 5, 3, 0.7, false},
		{"https://example.test/adult.png", true, 5, 5, 0.7, false},
		{"https://example.test/adult.png", true, 4, 5, 0.7, true},
		{"https://example.test/kitten.png", true, 1, 2, 0.5, true},
	}
	for _, c := range cases {
		h := classifier.NewHeuristic()
		h.SetThreshold(c.threshold)
		h.SetStrictMode(c.strict)
		r, err := h.Classify(context.Background(), classifier.URLInput(c.url))
		if err != nil {
			t.Fatal(err)
		}
		if r.Severity != c.severity || r.Confidence != c.confidence || r.IsProblematic != c.problematic {
			t.Errorf("%s strict=%v t=%v: got sev=%v conf=%v prob=%v", c.url, c.strict, c.threshold, r.Severity, r.Confidence, r.IsProblematic)
		}
		if c.severity > 0 && !c.strict && !slices.Contains(r.Reasons, "Suspicious URL pattern detected") {
			t.Errorf("%s: reasons = %v", c.url, r.Reasons)
		}
	}
}

func TestHeuristic_BytesWithoutMetadataAreClean(t *testing.T) {
	t.Parallel()
	h := classifier.NewHeuristic()
	r, err := h.Classify(context.Background(), classifier.BytesInput(testutil.GradientPNG(16, 16, true)))
	if err != nil {
		t.Fatal(err)
	}
	if r.Severity != 0 || r.IsProblematic || len(r.Reasons) != 0 {
		t.Errorf("result = %+v", r)
	}
}

func TestHeuristic_ForkIsIndependent(t *testing.T) {
	t.Parallel()
	h := classifier.NewHeuristic()
	f := classifier.Fork(h).(*classifier.Heuristic)
	f.SetThreshold(1)

	url := classifier.URLInput("https://example.test/adult.png")
	orig, _ := h.Classify(context.Background(), url)
	forked, _ := f.Classify(context.Background(), url)
	if orig.IsProblematic || !forked.IsProblematic {
		t.Errorf("orig=%v forked=%v", orig.IsProblematic, forked.IsProblematic)
	}
	if classifier.Fork(classifier.NewMock(true)).Name() != classifier.MockBlockName {
		t.Error("non-forkable classifier should be returned as is")
	}
}

// ─── Aggregation ───────────────────────────────────────────────────────

func TestAggregation(t *testing.T) {
	t.Parallel()
	if got := classifier.WeightedScore(mildPreds); got < 0.259 || got > 0.261 {
		t.Errorf("weighted = %v", got)
	}
	if got := classifier.ScoreToSeverity(classifier.WeightedScore(mildPreds)); got != 3 {
		t.Errorf("severity = %v", got)
	}
	if got := classifier.TopConfidence(mildPreds); got != 0.7 {
		t.Errorf("confidence = %v", got)
	}
	want := []string{"Neutral: 70.0%", "Porn: 20.0%"}
	if got := classifier.PredictionReasons(mildPreds); !slices.Equal(got, want) {
		t.Errorf("reasons = %v", got)
	}

	capped := []classifier.Prediction{{Class: "Porn", Probability: 0.9}, {Class: "Hentai", Probability: 0.9}}
	if got := classifier.WeightedScore(capped); got != 1 {
		t.Errorf("capped = %v", got)
	}
	unknown := []classifier.Prediction{{Class: "Gore", Probability: 1}}
	if got := classifier.WeightedScore(unknown); got != classifier.UnknownWeight {
		t.Errorf("unknown = %v", got)
	}
}

// ─── Model-backed ──────────────────────────────────────────────────────

func TestModel_SingleFlightLoad(t *testing.T) {
	t.Parallel()
	fm := &fakeModel{preds: mildPreds}
	var loads atomic.Int32
	release := make(chan struct{})
	loader := func(context.Context) (classifier.Model, error) {
		loads.Add(1)
		<-release
		return fm, nil
	}
	c := newModel(loader, nil, 0)
	img := testutil.GradientPNG(32, 32, true)

	var wg sync.WaitGroup
	results := make([]*model.Result, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := c.Classify(context.Background(), classifier.BytesInput(img))
			if err != nil {
				t.Error(err)
				return
			}
			results[i] = r
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := loads.Load(); n != 1 {
		t.Fatalf("loader called %d times, want 1", n)
	}
	if !c.Loaded() {
		t.Fatal("model should be cached")
	}
	for _, r := range results {
		if r == nil || r.Severity != 3 || r.Confidence != 0.7 || r.Classifier != classifier.ModelName {
			t.Errorf("result = %+v", r)
		}
	}
}

func TestModel_LoadFailureFallsBackAndRetries(t *testing.T) {
	t.Parallel()
	fm := &fakeModel{preds: []classifier.Prediction{{Class: "Porn", Probability: 0.9}, {Class: "Neutral", Probability: 0.1}}}
	var loads atomic.Int32
	loader := func(context.Context) (classifier.Model, error) {
		if loads.Add(1) == 1 {
			return nil, errors.New("weights missing")
		}
		return fm, nil
	}
	c := newModel(loader, nil, 0)
	in := classifier.Input{URL: "https://example.test/nsfw-pic.png", Data: testutil.GradientPNG(16, 16, true)}

	r, err := c.Classify(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	if r.Severity != 3 || r.Confidence != 0.7 {
		t.Errorf("fallback result = %+v", r)
	}
	if !slices.Contains(r.Reasons, "model unavailable, used heuristic") {
		t.Errorf("reasons = %v", r.Reasons)
	}
	if c.Loaded() {
		t.Fatal("failed load must not be cached")
	}

	r, err = c.Classify(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	if loads.Load() != 2 || !r.IsProblematic || r.Severity != 9 {
		t.Errorf("after reload: loads=%d result=%+v", loads.Load(), r)
	}
}

func TestModel_UndecodableBytesUseHeuristic(t *testing.T) {
	t.Parallel()
	fm := &fakeModel{preds: mildPreds}
	c := newModel(staticLoader(fm), nil, 0)
	r, err := c.Classify(context.Background(), classifier.BytesInput([]byte("definitely not an image")))
	if err != nil {
		t.Fatal(err)
	}
	if fm.calls.Load() != 0 {
		t.Error("model should not see undecodable input")
	}
	if r.Classifier != classifier.ModelName || r.Confidence != 0.5 || !slices.Contains(r.Reasons, "unsupported image, used heuristic") {
		t.Errorf("result = %+v", r)
	}
}

func TestModel_FetchAndPredictFailuresAreSafe(t *testing.T) {
	t.Parallel()
	const broken = "https://example.test/broken.png"
	const missing = "https://example.test/missing.png"
	client := &testutil.DummyWebClient{
		FailURLs:  map[string]bool{broken: true},
		Responses: map[string]testutil.DummyResponse{missing: {Status: http.StatusNotFound}},
	}
	c := newModel(staticLoader(&fakeModel{preds: mildPreds}), client, 0)

	for _, u := range []string{broken, missing, "ftp://example.test/x.png"} {
		r, err := c.Classify(context.Background(), classifier.URLInput(u))
		if err != nil {
			t.Fatalf("%s: %v", u, err)
		}
		if !classifier.IsAnalysisError(r) || r.IsProblematic || r.Confidence != 0 {
			t.Errorf("%s: result = %+v", u, r)
		}
	}
	// one initial attempt plus one retry
	if n := client.RequestCount(broken); n != 2 {
		t.Errorf("broken fetched %d times", n)
	}
	if n := client.RequestCount(missing); n != 1 {
		t.Errorf("404 should not be retried, fetched %d times", n)
	}

	failing := newModel(staticLoader(&fakeModel{err: errors.New("gpu on fire")}), nil, 0)
	r, err := failing.Classify(context.Background(), classifier.BytesInput(testutil.GradientPNG(8, 8, true)))
	if err != nil {
		t.Fatal(err)
	}
	if !classifier.IsAnalysisError(r) || !strings.Contains(r.Reasons[0], "gpu on fire") {
		t.Errorf("predict failure result = %+v", r)
	}
}

func TestModel_FetchesURLAndDataURI(t *testing.T) {
	t.Parallel()
	const u = "https://example.test/photo.png"
	client := &testutil.DummyWebClient{Responses: map[string]testutil.DummyResponse{u: {Body: testutil.GradientPNG(16, 16, true)}}}
	fm := &fakeModel{preds: mildPreds}
	c := newModel(staticLoader(fm), client, 0)

	r, err := c.Classify(context.Background(), classifier.URLInput(u))
	if err != nil || r.Severity != 3 {
		t.Fatalf("url: %+v %v", r, err)
	}
	// "hi" is not an image, so the data URI decodes and then falls back.
	r, err = c.Classify(context.Background(), classifier.URLInput("data:text/plain;base64,aGk="))
	if err != nil || !slices.Contains(r.Reasons, "unsupported image, used heuristic") {
		t.Fatalf("data uri: %+v %v", r, err)
	}
	if fm.calls.Load() != 1 {
		t.Errorf("predict calls = %d", fm.calls.Load())
	}
}

func TestModel_PerceptualHashCache(t *testing.T) {
	t.Parallel()
	fm := &fakeModel{preds: mildPreds}
	c := newModel(staticLoader(fm), nil, 8)
	ctx := context.Background()

	up := testutil.GradientPNG(64, 64, true)
	down := testutil.GradientPNG(64, 64, false)
	for _, img := range [][]byte{up, up, down, down} {
		if _, err := c.Classify(ctx, classifier.BytesInput(img)); err != nil {
			t.Fatal(err)
		}
	}
	if n := fm.calls.Load(); n != 2 {
		t.Errorf("predict calls = %d, want 2", n)
	}
}

func TestModel_ForkSharesModelNotParams(t *testing.T) {
	t.Parallel()
	var loads atomic.Int32
	fm := &fakeModel{preds: mildPreds}
	c := newModel(func(context.Context) (classifier.Model, error) {
		loads.Add(1)
		return fm, nil
	}, nil, 0)
	f := classifier.Fork(c).(*classifier.ModelClassifier)
	f.SetThreshold(2)

	img := classifier.BytesInput(testutil.GradientPNG(8, 8, true))
	a, _ := c.Classify(context.Background(), img)
	b, _ := f.Classify(context.Background(), img)
	if a.IsProblematic || !b.IsProblematic {
		t.Errorf("orig=%+v fork=%+v", a, b)
	}
	if loads.Load() != 1 {
		t.Errorf("loads = %d", loads.Load())
	}
}

// ─── HTTP inference model ──────────────────────────────────────────────

func TestHTTPModel_HealthAndPredict(t *testing.T) {
	t.Parallel()
	var gotField atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
		case "/classify":
			if r.Method != http.MethodPost {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			f, _, err := r.FormFile("image")
			if err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			b, _ := io.ReadAll(f)
			gotField.Store(len(b) > 0)
			_ = json.NewEncoder(w).Encode(map[string]any{"predictions": mildPreds})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client, err := webclient.NewNetHTTPClient(webclient.Config{}, logging.Nop(), srv.Client())
	if err != nil {
		t.Fatal(err)
	}
	c := newModel(classifier.NewHTTPModelLoader(srv.URL+"/", client, logging.Nop()), nil, 0)
	r, err := c.Classify(context.Background(), classifier.BytesInput(testutil.GradientPNG(16, 16, true)))
	if err != nil {
		t.Fatal(err)
	}
	if !gotField.Load() {
		t.Error("server did not receive the image field")
	}
	if r.Severity != 3 || r.Confidence != 0.7 || len(r.Reasons) != 2 {
		t.Errorf("result = %+v", r)
	}
}

func TestHTTPModel_UnhealthyServiceFallsBack(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client, err := webclient.NewNetHTTPClient(webclient.Config{}, logging.Nop(), srv.Client())
	if err != nil {
		t.Fatal(err)
	}
	c := newModel(classifier.NewHTTPModelLoader(srv.URL, client, logging.Nop()), nil, 0)
	r, err := c.Classify(context.Background(), classifier.URLInput("https://example.test/porn.png"))
	if err != nil {
		t.Fatal(err)
	}
	if r.Severity != 3 || !slices.Contains(r.Reasons, "model unavailable, used heuristic") {
		t.Errorf("result = %+v", r)
	}
}

// ─── Registry ──────────────────────────────────────────────────────────

func TestRegistry(t *testing.T) {
	t.Parallel()
	r := classifier.NewRegistry()
	if err := r.Register("Heuristic", classifier.NewHeuristic()); err != nil {
		t.Fatal(err)
	}
	if err := r.Register("heuristic", classifier.NewHeuristic()); !errors.Is(err, classifier.ErrDuplicateClassifier) {
		t.Errorf("duplicate: %v", err)
	}
	if err := r.Register("mock-block", classifier.NewMock(true)); err != nil {
		t.Fatal(err)
	}
	if r.Default() != "heuristic" {
		t.Errorf("default = %q", r.Default())
	}
	if _, err := r.Get("nope"); !errors.Is(err, classifier.ErrUnknownClassifier) {
		t.Errorf("unknown: %v", err)
	}
	if err := r.SetDefault("nope"); !errors.Is(err, classifier.ErrUnknownClassifier) {
		t.Errorf("set unknown default: %v", err)
	}
	if err := r.SetDefault("MOCK-BLOCK"); err != nil {
		t.Fatal(err)
	}
	res, err := r.Classify(context.Background(), classifier.URLInput("https://example.test/a.png"), "")
	if err != nil {
		t.Fatal(err)
	}
	if res.Classifier != classifier.MockBlockName || !res.IsProblematic {
		t.Errorf("result = %+v", res)
	}
	if got := r.Names(); !slices.Equal(got, []string{"heuristic", "mock-block"}) {
		t.Errorf("names = %v", got)
	}
}

func TestNewDefaultRegistry(t *testing.T) {
	t.Parallel()
	r, err := classifier.NewDefaultRegistry(classifier.DefaultOptions{Logger: logging.Nop()})
	if err != nil {
		t.Fatal(err)
	}
	if got := r.Names(); !slices.Equal(got, []string{"heuristic", "mock-block", "mock-allow"}) {
		t.Errorf("names = %v", got)
	}

	r, err = classifier.NewDefaultRegistry(classifier.DefaultOptions{
		Loader:  staticLoader(&fakeModel{preds: mildPreds}),
		Store:   classifier.NewMemoryStore(),
		Default: "model",
	})
	if err != nil {
		t.Fatal(err)
	}
	if r.Default() != "model" || len(r.Names()) != 4 {
		t.Errorf("default=%q names=%v", r.Default(), r.Names())
	}
	c, _ := r.Get("model")
	if _, ok := c.(*classifier.Cached); !ok {
		t.Errorf("model should be cached, got %T", c)
	}

	if _, err := classifier.NewDefaultRegistry(classifier.DefaultOptions{Default: "model"}); !errors.Is(err, classifier.ErrUnknownClassifier) {
		t.Errorf("model default without loader: %v", err)
	}
}

// ─── Result cache ──────────────────────────────────────────────────────

func TestCached_HitPath(t *testing.T) {
	t.Parallel()
	inner := &testutil.DummyClassifier{Default: testutil.Severity(7, true)}
	store := classifier.NewMemoryStore()
	c := classifier.NewCached(inner, store, time.Minute, logging.Nop())
	ctx := context.Background()

	for _, u := range []string{
		"https://example.test/a.png?utm_source=x",
		"https://EXAMPLE.test:443/a.png",
		"https://example.test/a.png",
	} {
		r, err := c.Classify(ctx, classifier.URLInput(u))
		if err != nil {
			t.Fatal(err)
		}
		if r.Severity != 7 || !r.IsProblematic {
			t.Errorf("%s: %+v", u, r)
		}
	}
	if inner.CallCount() != 1 || store.Len() != 1 {
		t.Errorf("calls=%d entries=%d", inner.CallCount(), store.Len())
	}

	c.SetThreshold(8)
	if _, err := c.Classify(ctx, classifier.URLInput("https://example.test/a.png")); err != nil {
		t.Fatal(err)
	}
	if inner.CallCount() != 2 || inner.Threshold != 8 {
		t.Errorf("threshold change should miss and forward: calls=%d threshold=%v", inner.CallCount(), inner.Threshold)
	}

	if _, err := c.Classify(ctx, classifier.BytesInput([]byte{1, 2, 3})); err != nil {
		t.Fatal(err)
	}
	if store.Len() != 2 {
		t.Errorf("bytes input should bypass the cache, entries=%d", store.Len())
	}
}

func TestCached_AnalysisErrorsNotStored(t *testing.T) {
	t.Parallel()
	const u = "https://example.test/broken.png"
	client := &testutil.DummyWebClient{FailURLs: map[string]bool{u: true}}
	store := classifier.NewMemoryStore()
	c := classifier.NewCached(newModel(staticLoader(&fakeModel{preds: mildPreds}), client, 0), store, 0, logging.Nop())

	r, err := c.Classify(context.Background(), classifier.URLInput(u))
	if err != nil {
		t.Fatal(err)
	}
	if !classifier.IsAnalysisError(r) || store.Len() != 0 {
		t.Errorf("result=%+v entries=%d", r, store.Len())
	}
}

func TestCached_ConcurrentMissesShareOneCall(t *testing.T) {
	t.Parallel()
	gate := make(chan struct{})
	inner := &testutil.DummyClassifier{Gate: gate}
	c := classifier.NewCached(inner, classifier.NewMemoryStore(), 0, logging.Nop())

	var wg sync.WaitGroup
	for range 6 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Classify(context.Background(), classifier.URLInput("https://example.test/same.png")); err != nil {
				t.Error(err)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()
	if n := inner.CallCount(); n != 1 {
		t.Errorf("inner calls = %d, want 1", n)
	}
}

func TestCached_CancelledCallerDoesNotDecideForOthers(t *testing.T) {
	t.Parallel()
	const u = "https://example.test/shared.png"
	client := &testutil.DummyWebClient{
		ResponseDelay: 100 * time.Millisecond,
		Responses:     map[string]testutil.DummyResponse{u: {Body: testutil.GradientPNG(8, 8, true)}},
	}
	porn := []classifier.Prediction{{Class: "Porn", Probability: 1.0}}
	base := classifier.NewCached(newModel(staticLoader(&fakeModel{preds: porn}), client, 0), classifier.NewMemoryStore(), 0, logging.Nop())
	stopped, live := base.Fork(), base.Fork()

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	var stoppedErr error
	go func() {
		defer wg.Done()
		_, stoppedErr = stopped.Classify(ctx, classifier.URLInput(u))
	}()
	time.Sleep(20 * time.Millisecond)

	done := make(chan *model.Result, 1)
	go func() {
		r, err := live.Classify(context.Background(), classifier.URLInput(u))
		if err != nil {
			t.Error(err)
		}
		done <- r
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	wg.Wait()

	if !errors.Is(stoppedErr, context.Canceled) {
		t.Errorf("cancelled caller: err = %v", stoppedErr)
	}
	r := <-done
	if r == nil || classifier.IsAnalysisError(r) || !r.IsProblematic || r.Severity != 10 {
		t.Errorf("live caller got %+v", r)
	}
}

func TestMemoryStore_TTL(t *testing.T) {
	t.Parallel()
	store := classifier.NewMemoryStore()
	ctx := context.Background()
	r := testutil.Severity(4, false)

	if err := store.Set(ctx, "short", r, 20*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if err := store.Set(ctx, "forever", r, 0); err != nil {
		t.Fatal(err)
	}
	got, ok, _ := store.Get(ctx, "short")
	if !ok || got.Severity != 4 {
		t.Fatalf("fresh entry: ok=%v %+v", ok, got)
	}
	got.Reasons = append(got.Reasons, "mutated")

	time.Sleep(40 * time.Millisecond)
	if _, ok, _ := store.Get(ctx, "short"); ok {
		t.Error("expired entry still served")
	}
	if again, ok, _ := store.Get(ctx, "forever"); !ok || len(again.Reasons) != len(r.Reasons) {
		t.Errorf("zero ttl entry: ok=%v %+v", ok, again)
	}
}
