// Cartsage - Basket Association Rules and Adaptive Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartsage

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/cartsage/internal/eventprocessor"
	"github.com/tomtom215/cartsage/internal/middleware"
	"github.com/tomtom215/cartsage/internal/recommend"
)

type fakeEngine struct {
	mu sync.Mutex

	rules    recommend.RuleSet
	rulesErr error

	recommendation *recommend.Recommendation
	recommendErr   error
	lastCart       recommend.CartContext
	recommendCalls int

	stats       map[string]recommend.RuleStats
	feedbackErr error

	regenResult *recommend.RegenerationResult
	regenErr    error
	asyncCalls  int
	asyncActive bool
}

func (f *fakeEngine) Rules() (recommend.RuleSet, error) { return f.rules, f.rulesErr }

func (f *fakeEngine) Recommend(_ context.Context, cart recommend.CartContext) (*recommend.Recommendation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastCart = cart
	f.recommendCalls++
	if f.recommendErr != nil {
		return nil, f.recommendErr
	}
	if f.recommendation != nil {
		return f.recommendation, nil
	}
	return &recommend.Recommendation{TotalRules: len(f.rules), Filtered: !cart.Empty()}, nil
}

func (f *fakeEngine) RecordFeedback(_ context.Context, ruleID string, success bool) (recommend.RuleStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.feedbackErr != nil {
		return recommend.RuleStats{}, f.feedbackErr
	}
	s, ok := f.stats[ruleID]
	if !ok {
		return recommend.RuleStats{}, fmt.Errorf("%w: %s", recommend.ErrUnknownRule, ruleID)
	}
	if success {
		s.Successes++
	} else {
		s.Failures++
	}
	f.stats[ruleID] = s
	return s, nil
}

func (f *fakeEngine) RuleStats(_ context.Context, ruleID string) (recommend.RuleStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.stats[ruleID]
	if !ok {
		return recommend.RuleStats{}, fmt.Errorf("%w: %s", recommend.ErrUnknownRule, ruleID)
	}
	return s, nil
}

func (f *fakeEngine) RegenerateWithCeiling(context.Context, recommend.TriggerReason) (*recommend.RegenerationResult, error) {
	return f.regenResult, f.regenErr
}

func (f *fakeEngine) RegenerateAsync(recommend.TriggerReason) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.asyncCalls++
	return f.asyncActive
}

func (f *fakeEngine) Status() recommend.Status { return recommend.Status{} }

type fakeBaskets struct {
	mu      sync.Mutex
	baskets map[string]recommend.Basket
	err     error
	pingErr error
}

func (f *fakeBaskets) UpsertBasket(_ context.Context, b *recommend.Basket) (recommend.ChangeOp, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	if b.ID == "" {
		b.ID = fmt.Sprintf("generated-%d", len(f.baskets)+1)
	}
	_, existed := f.baskets[b.ID]
	f.baskets[b.ID] = *b
	if existed {
		return recommend.ChangeUpdated, nil
	}
	return recommend.ChangeCreated, nil
}

func (f *fakeBaskets) GetBasket(_ context.Context, id string) (recommend.Basket, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return recommend.Basket{}, false, f.err
	}
	b, ok := f.baskets[id]
	return b, ok, nil
}

func (f *fakeBaskets) Ping(context.Context) error { return f.pingErr }

type fakePublisher struct {
	mu     sync.Mutex
	events []eventprocessor.ChangeEvent
	err    error
}

func (f *fakePublisher) PublishChange(_ context.Context, e eventprocessor.ChangeEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, e)
	return nil
}

type fakeBroadcaster struct {
	got []recommend.RuleStats
}

func (f *fakeBroadcaster) BroadcastStatsUpdated(s recommend.RuleStats) { f.got = append(f.got, s) }

type testEnv struct {
	engine      *fakeEngine
	baskets     *fakeBaskets
	publisher   *fakePublisher
	broadcaster *fakeBroadcaster
	router      http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		engine: &fakeEngine{
			rules: recommend.RuleSet{
				{Antecedents: []string{"a"}, Consequents: []string{"b"}, Support: 0.5, Confidence: 0.6, Lift: 1.2},
				{Antecedents: []string{"a", "c"}, Consequents: []string{"d"}, Support: 0.1, Confidence: 0.3, Lift: 1.5},
			},
			stats: map[string]recommend.RuleStats{
				"a=>b":   {RuleID: "a=>b"},
				"a,c=>d": {RuleID: "a,c=>d", Successes: 2},
			},
		},
		baskets:     &fakeBaskets{baskets: map[string]recommend.Basket{}},
		publisher:   &fakePublisher{},
		broadcaster: &fakeBroadcaster{},
	}
	h, err := NewHandler(Dependencies{
		Engine:      env.engine,
		Baskets:     env.baskets,
		Publisher:   env.publisher,
		Broadcaster: env.broadcaster,
		Version:     "test",
	})
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	env.router = NewRouter(h, RouterConfig{Middleware: middleware.Config{
		CORSOrigins:       []string{"*"},
		RateLimitDisabled: true,
		MaxBodyBytes:      1 << 20,
	}})
	return env
}

type decoded struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *APIError       `json:"error"`
}

func (env *testEnv) do(t *testing.T, method, path, body string) (int, decoded) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	var out decoded
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("%s %s: decode %q: %v", method, path, rec.Body.String(), err)
	}
	return rec.Code, out
}

func errorCode(d decoded) string {
	if d.Error == nil {
		return ""
	}
	return d.Error.Code
}

func TestNewHandler_RequiresDependencies(t *testing.T) {
	if _, err := NewHandler(Dependencies{Baskets: &fakeBaskets{}}); err == nil {
		t.Error("expected error without engine")
	}
	if _, err := NewHandler(Dependencies{Engine: &fakeEngine{}}); err == nil {
		t.Error("expected error without basket store")
	}
}

func TestGetRules(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		rulesErr error
		rules    recommend.RuleSet
		verify   func(t *testing.T, code int, d decoded)
	}{
		{
			name: "returns rules with identities",
			path: "/api/v1/rules",
			verify: func(t *testing.T, code int, d decoded) {
				if code != http.StatusOK {
					t.Fatalf("status = %d", code)
				}
				var body RulesResponse
				if err := json.Unmarshal(d.Data, &body); err != nil {
					t.Fatal(err)
				}
				if body.Count != 2 || body.Rules[1].ID != "a,c=>d" {
					t.Errorf("body = %+v", body)
				}
			},
		},
		{
			name:  "empty rule set is not an error",
			path:  "/api/rules",
			rules: recommend.RuleSet{},
			verify: func(t *testing.T, code int, d decoded) {
				if code != http.StatusOK || !strings.Contains(string(d.Data), `"count":0`) {
					t.Errorf("status = %d data = %s", code, d.Data)
				}
			},
		},
		{
			name:     "not yet generated",
			path:     "/api/v1/rules",
			rulesErr: recommend.ErrNotYetGenerated,
			verify: func(t *testing.T, code int, d decoded) {
				if code != http.StatusNotFound || errorCode(d) != CodeRulesNotReady {
					t.Errorf("status = %d code = %q", code, errorCode(d))
				}
			},
		},
		{
			name:     "corrupt state",
			path:     "/api/v1/rules",
			rulesErr: fmt.Errorf("decode: %w", recommend.ErrCorruptState),
			verify: func(t *testing.T, code int, d decoded) {
				if code != http.StatusInternalServerError || errorCode(d) != CodeRulesCorrupt {
					t.Errorf("status = %d code = %q", code, errorCode(d))
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			if tt.rules != nil {
				env.engine.rules = tt.rules
			}
			env.engine.rulesErr = tt.rulesErr
			code, d := env.do(t, http.MethodGet, tt.path, "")
			tt.verify(t, code, d)
		})
	}
}

func TestRegenerateRules(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		setup  func(e *fakeEngine)
		verify func(t *testing.T, code int, d decoded, e *fakeEngine)
	}{
		{
			name: "awaited pass completes",
			path: "/api/v1/rules/regenerate",
			setup: func(e *fakeEngine) {
				e.regenResult = &recommend.RegenerationResult{Trigger: recommend.TriggerRequest, Rules: 4}
			},
			verify: func(t *testing.T, code int, d decoded, _ *fakeEngine) {
				if code != http.StatusOK || !strings.Contains(string(d.Data), `"completed":true`) {
					t.Errorf("status = %d data = %s", code, d.Data)
				}
			},
		},
		{
			name: "ceiling exceeded reports update in progress",
			path: "/api/update-rules",
			setup: func(e *fakeEngine) {
				e.regenErr = fmt.Errorf("%w: %w", recommend.ErrUpdateInProgress, context.DeadlineExceeded)
			},
			verify: func(t *testing.T, code int, d decoded, _ *fakeEngine) {
				if code != http.StatusAccepted || errorCode(d) != CodeUpdateInProgress {
					t.Errorf("status = %d code = %q", code, errorCode(d))
				}
			},
		},
		{
			name: "source unavailable",
			path: "/api/v1/rules/regenerate",
			setup: func(e *fakeEngine) {
				e.regenErr = fmt.Errorf("list baskets: %w", recommend.ErrSourceUnavailable)
			},
			verify: func(t *testing.T, code int, d decoded, _ *fakeEngine) {
				if code != http.StatusServiceUnavailable || errorCode(d) != CodeSourceUnavailable {
					t.Errorf("status = %d code = %q", code, errorCode(d))
				}
			},
		},
		{
			name:  "async returns immediately",
			path:  "/api/v1/rules/regenerate?async=true",
			setup: func(e *fakeEngine) { e.asyncActive = true },
			verify: func(t *testing.T, code int, d decoded, e *fakeEngine) {
				if code != http.StatusAccepted || e.asyncCalls != 1 {
					t.Errorf("status = %d asyncCalls = %d", code, e.asyncCalls)
				}
				if !strings.Contains(string(d.Data), `"already_active":true`) {
					t.Errorf("data = %s", d.Data)
				}
			},
		},
		{
			name:  "bad async flag",
			path:  "/api/v1/rules/regenerate?async=maybe",
			setup: func(*fakeEngine) {},
			verify: func(t *testing.T, code int, _ decoded, _ *fakeEngine) {
				if code != http.StatusBadRequest {
					t.Errorf("status = %d", code)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			tt.setup(env.engine)
			code, d := env.do(t, http.MethodPost, tt.path, "")
			tt.verify(t, code, d, env.engine)
		})
	}
}

// oversizedCart is a request body one item over recommend.MaxCartItems.
var oversizedCart = func() string {
	items := make([]string, recommend.MaxCartItems+1)
	for i := range items {
		items[i] = strconv.Quote("item-" + strconv.Itoa(i))
	}
	return `{"cart":[` + strings.Join(items, ",") + `]}`
}()

func expectInvalidCart(t *testing.T, code int, d decoded, e *fakeEngine) {
	t.Helper()
	if code != http.StatusBadRequest || errorCode(d) != CodeInvalidCart {
		t.Errorf("status = %d code = %q, want 400 %s", code, errorCode(d), CodeInvalidCart)
	}
	if e.recommendCalls != 0 {
		t.Errorf("engine called %d times for an invalid cart", e.recommendCalls)
	}
}

func TestRecommend(t *testing.T) {
	rule := recommend.Rule{Antecedents: []string{"a"}, Consequents: []string{"b"}, Support: 0.5, Confidence: 0.6, Lift: 1.2}

	tests := []struct {
		name   string
		body   string
		setup  func(e *fakeEngine)
		verify func(t *testing.T, code int, d decoded, e *fakeEngine)
	}{
		{
			name: "selected rule",
			body: `{"cart":["a"]}`,
			setup: func(e *fakeEngine) {
				e.recommendation = &recommend.Recommendation{
					Selection:  &recommend.Selection{Rule: rule, RuleID: "a=>b", Sample: 0.7},
					Candidates: 1, TotalRules: 2, Filtered: true,
				}
			},
			verify: func(t *testing.T, code int, d decoded, e *fakeEngine) {
				var body RecommendResponse
				if err := json.Unmarshal(d.Data, &body); err != nil {
					t.Fatal(err)
				}
				if code != http.StatusOK || body.Rule == nil || body.RuleID != "a=>b" || body.Sample != 0.7 {
					t.Errorf("status = %d body = %+v", code, body)
				}
				if !e.lastCart.Contains("a") {
					t.Error("cart not passed to engine")
				}
			},
		},
		{
			name:  "no matching rule is a null rule",
			body:  `{"cart":["zzz"]}`,
			setup: func(*fakeEngine) {},
			verify: func(t *testing.T, code int, d decoded, _ *fakeEngine) {
				if code != http.StatusOK || !strings.Contains(string(d.Data), `"rule":null`) {
					t.Errorf("status = %d data = %s", code, d.Data)
				}
			},
		},
		{
			name:  "empty body object means empty cart",
			body:  `{}`,
			setup: func(*fakeEngine) {},
			verify: func(t *testing.T, code int, _ decoded, e *fakeEngine) {
				if code != http.StatusOK || !e.lastCart.Empty() {
					t.Errorf("status = %d", code)
				}
			},
		},
		{
			name:   "blank item rejected",
			body:   `{"cart":["a",""]}`,
			setup:  func(*fakeEngine) {},
			verify: expectInvalidCart,
		},
		{
			name:   "item containing a separator rejected",
			body:   `{"cart":["a,b"]}`,
			setup:  func(*fakeEngine) {},
			verify: expectInvalidCart,
		},
		{
			name:   "item containing an arrow rejected",
			body:   `{"cart":["a=>b"]}`,
			setup:  func(*fakeEngine) {},
			verify: expectInvalidCart,
		},
		{
			name:   "oversized cart rejected",
			body:   oversizedCart,
			setup:  func(*fakeEngine) {},
			verify: expectInvalidCart,
		},
		{
			name:   "cart of wrong type",
			body:   `{"cart":"a"}`,
			setup:  func(*fakeEngine) {},
			verify: expectInvalidCart,
		},
		{
			name:   "cart of non-string items",
			body:   `{"cart":[1,2]}`,
			setup:  func(*fakeEngine) {},
			verify: expectInvalidCart,
		},
		{
			name:  "null cart means empty cart",
			body:  `{"cart":null}`,
			setup: func(*fakeEngine) {},
			verify: func(t *testing.T, code int, _ decoded, e *fakeEngine) {
				if code != http.StatusOK || !e.lastCart.Empty() {
					t.Errorf("status = %d", code)
				}
			},
		},
		{
			name:  "malformed json",
			body:  `{"cart":`,
			setup: func(*fakeEngine) {},
			verify: func(t *testing.T, code int, d decoded, _ *fakeEngine) {
				if code != http.StatusBadRequest || errorCode(d) != CodeInvalidJSON {
					t.Errorf("status = %d code = %q", code, errorCode(d))
				}
			},
		},
		{
			name:  "rules not ready",
			body:  `{"cart":[]}`,
			setup: func(e *fakeEngine) { e.recommendErr = recommend.ErrNotYetGenerated },
			verify: func(t *testing.T, code int, d decoded, _ *fakeEngine) {
				if code != http.StatusNotFound || errorCode(d) != CodeRulesNotReady {
					t.Errorf("status = %d code = %q", code, errorCode(d))
				}
			},
		},
		{
			name:  "unexpected failure is hidden",
			body:  `{"cart":[]}`,
			setup: func(e *fakeEngine) { e.recommendErr = errors.New("disk on fire") },
			verify: func(t *testing.T, code int, d decoded, _ *fakeEngine) {
				if code != http.StatusInternalServerError || errorCode(d) != CodeInternal {
					t.Errorf("status = %d code = %q", code, errorCode(d))
				}
				if strings.Contains(d.Error.Message, "fire") {
					t.Error("internal error leaked to client")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			tt.setup(env.engine)
			code, d := env.do(t, http.MethodPost, "/api/v1/recommendations", tt.body)
			tt.verify(t, code, d, env.engine)
		})
	}
}

func TestFeedback(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		verify func(t *testing.T, code int, d decoded, env *testEnv)
	}{
		{
			name: "success increments and broadcasts",
			body: `{"rule_id":"a=>b","success":true}`,
			verify: func(t *testing.T, code int, d decoded, env *testEnv) {
				if code != http.StatusOK {
					t.Fatalf("status = %d", code)
				}
				if env.engine.stats["a=>b"].Successes != 1 {
					t.Errorf("stats = %+v", env.engine.stats["a=>b"])
				}
				if len(env.broadcaster.got) != 1 {
					t.Error("stats update not broadcast")
				}
				if !strings.Contains(string(d.Data), `"posterior_mean"`) {
					t.Errorf("data = %s", d.Data)
				}
			},
		},
		{
			name: "failure feedback",
			body: `{"rule_id":"a,c=>d","success":false}`,
			verify: func(t *testing.T, code int, _ decoded, env *testEnv) {
				if code != http.StatusOK || env.engine.stats["a,c=>d"].Failures != 1 {
					t.Errorf("status = %d stats = %+v", code, env.engine.stats["a,c=>d"])
				}
			},
		},
		{
			name: "unknown rule",
			body: `{"rule_id":"x=>y","success":true}`,
			verify: func(t *testing.T, code int, d decoded, env *testEnv) {
				if code != http.StatusNotFound || errorCode(d) != CodeUnknownRule {
					t.Errorf("status = %d code = %q", code, errorCode(d))
				}
				if len(env.broadcaster.got) != 0 {
					t.Error("broadcast on failed feedback")
				}
			},
		},
		{
			name: "missing success flag",
			body: `{"rule_id":"a=>b"}`,
			verify: func(t *testing.T, code int, d decoded, _ *testEnv) {
				if code != http.StatusBadRequest || errorCode(d) != "VALIDATION_ERROR" {
					t.Errorf("status = %d code = %q", code, errorCode(d))
				}
			},
		},
		{
			name: "malformed rule id",
			body: `{"rule_id":"ab","success":true}`,
			verify: func(t *testing.T, code int, _ decoded, _ *testEnv) {
				if code != http.StatusBadRequest {
					t.Errorf("status = %d", code)
				}
			},
		},
		{
			name: "unknown fields rejected",
			body: `{"rule_id":"a=>b","success":true,"extra":1}`,
			verify: func(t *testing.T, code int, d decoded, _ *testEnv) {
				if code != http.StatusBadRequest || errorCode(d) != CodeInvalidJSON {
					t.Errorf("status = %d code = %q", code, errorCode(d))
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			code, d := env.do(t, http.MethodPost, "/api/v1/feedback", tt.body)
			tt.verify(t, code, d, env)
		})
	}
}

func TestGetRuleStats(t *testing.T) {
	env := newTestEnv(t)

	code, d := env.do(t, http.MethodGet, "/api/v1/rules/a,c=%3Ed/stats", "")
	if code != http.StatusOK || !strings.Contains(string(d.Data), `"successes":2`) {
		t.Errorf("known rule: status = %d data = %s", code, d.Data)
	}

	code, d = env.do(t, http.MethodGet, "/api/v1/rules/q=%3Ez/stats", "")
	if code != http.StatusNotFound || errorCode(d) != CodeUnknownRule {
		t.Errorf("unknown rule: status = %d code = %q", code, errorCode(d))
	}

	code, _ = env.do(t, http.MethodGet, "/api/v1/rules/garbage/stats", "")
	if code != http.StatusBadRequest {
		t.Errorf("malformed id: status = %d", code)
	}
}

func TestRecordBasket(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		setup  func(env *testEnv)
		verify func(t *testing.T, code int, d decoded, env *testEnv)
	}{
		{
			name:  "new basket is created and published",
			body:  `{"session_id":"s1","items":["milk","bread"]}`,
			setup: func(*testEnv) {},
			verify: func(t *testing.T, code int, d decoded, env *testEnv) {
				if code != http.StatusCreated {
					t.Fatalf("status = %d", code)
				}
				var body BasketResponse
				if err := json.Unmarshal(d.Data, &body); err != nil {
					t.Fatal(err)
				}
				if body.Op != recommend.ChangeCreated || !body.Published || body.Basket.ID == "" {
					t.Errorf("body = %+v", body)
				}
				if len(env.publisher.events) != 1 || env.publisher.events[0].BasketID != body.Basket.ID {
					t.Errorf("events = %+v", env.publisher.events)
				}
			},
		},
		{
			name: "existing basket is updated",
			body: `{"basket_id":"b1","session_id":"s2","items":["tea"]}`,
			setup: func(env *testEnv) {
				env.baskets.baskets["b1"] = recommend.Basket{ID: "b1", SessionID: "s1", Items: []string{"milk"}}
			},
			verify: func(t *testing.T, code int, _ decoded, env *testEnv) {
				if code != http.StatusOK {
					t.Fatalf("status = %d", code)
				}
				if env.publisher.events[0].Op != recommend.ChangeUpdated {
					t.Errorf("op = %q", env.publisher.events[0].Op)
				}
			},
		},
		{
			name:  "publish failure keeps the write",
			body:  `{"session_id":"s1","items":["milk"]}`,
			setup: func(env *testEnv) { env.publisher.err = errors.New("breaker open") },
			verify: func(t *testing.T, code int, d decoded, env *testEnv) {
				if code != http.StatusCreated || !strings.Contains(string(d.Data), `"published":false`) {
					t.Errorf("status = %d data = %s", code, d.Data)
				}
				if len(env.baskets.baskets) != 1 {
					t.Error("basket not stored")
				}
			},
		},
		{
			name:  "empty items rejected",
			body:  `{"session_id":"s1","items":[]}`,
			setup: func(*testEnv) {},
			verify: func(t *testing.T, code int, _ decoded, env *testEnv) {
				if code != http.StatusBadRequest || len(env.baskets.baskets) != 0 {
					t.Errorf("status = %d", code)
				}
			},
		},
		{
			name:  "missing session rejected",
			body:  `{"items":["milk"]}`,
			setup: func(*testEnv) {},
			verify: func(t *testing.T, code int, _ decoded, _ *testEnv) {
				if code != http.StatusBadRequest {
					t.Errorf("status = %d", code)
				}
			},
		},
		{
			name:  "store failure",
			body:  `{"session_id":"s1","items":["milk"]}`,
			setup: func(env *testEnv) { env.baskets.err = errors.New("database is locked") },
			verify: func(t *testing.T, code int, d decoded, env *testEnv) {
				if code != http.StatusServiceUnavailable || len(env.publisher.events) != 0 {
					t.Errorf("status = %d code = %q", code, errorCode(d))
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			tt.setup(env)
			code, d := env.do(t, http.MethodPost, "/api/v1/baskets", tt.body)
			tt.verify(t, code, d, env)
		})
	}
}

func TestGetBasket(t *testing.T) {
	env := newTestEnv(t)
	env.baskets.baskets["b1"] = recommend.Basket{ID: "b1", SessionID: "s", Items: []string{"x"}, CreatedAt: time.Now()}

	if code, _ := env.do(t, http.MethodGet, "/api/v1/baskets/b1", ""); code != http.StatusOK {
		t.Errorf("existing basket: status = %d", code)
	}
	if code, d := env.do(t, http.MethodGet, "/api/v1/baskets/missing", ""); code != http.StatusNotFound || errorCode(d) != CodeNotFound {
		t.Errorf("missing basket: status = %d", code)
	}
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name    string
		pingErr error
		rules   error
		path    string
		verify  func(t *testing.T, code int, d decoded)
	}{
		{
			name: "healthy",
			path: "/api/v1/health",
			verify: func(t *testing.T, code int, d decoded) {
				var h HealthStatus
				if err := json.Unmarshal(d.Data, &h); err != nil {
					t.Fatal(err)
				}
				if code != http.StatusOK || h.Status != "healthy" || !h.RulesReady || h.RuleCount != 2 {
					t.Errorf("status = %d health = %+v", code, h)
				}
			},
		},
		{
			name:  "rules not ready is still healthy",
			path:  "/api/v1/health",
			rules: recommend.ErrNotYetGenerated,
			verify: func(t *testing.T, _ int, d decoded) {
				if !strings.Contains(string(d.Data), `"status":"healthy"`) || !strings.Contains(string(d.Data), `"rules_ready":false`) {
					t.Errorf("data = %s", d.Data)
				}
			},
		},
		{
			name:    "database down degrades",
			path:    "/api/v1/health",
			pingErr: errors.New("closed"),
			verify: func(t *testing.T, _ int, d decoded) {
				if !strings.Contains(string(d.Data), `"status":"degraded"`) {
					t.Errorf("data = %s", d.Data)
				}
			},
		},
		{
			name:    "not ready without database",
			path:    "/api/v1/health/ready",
			pingErr: errors.New("closed"),
			verify: func(t *testing.T, code int, _ decoded) {
				if code != http.StatusServiceUnavailable {
					t.Errorf("status = %d", code)
				}
			},
		},
		{
			name:    "live without database",
			path:    "/api/v1/health/live",
			pingErr: errors.New("closed"),
			verify: func(t *testing.T, code int, _ decoded) {
				if code != http.StatusOK {
					t.Errorf("status = %d", code)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.baskets.pingErr = tt.pingErr
			env.engine.rulesErr = tt.rules
			code, d := env.do(t, http.MethodGet, tt.path, "")
			tt.verify(t, code, d)
		})
	}
}

func TestRouter_Fallbacks(t *testing.T) {
	env := newTestEnv(t)

	code, d := env.do(t, http.MethodGet, "/api/v1/nope", "")
	if code != http.StatusNotFound || errorCode(d) != CodeNotFound {
		t.Errorf("unknown route: status = %d code = %q", code, errorCode(d))
	}

	code, _ = env.do(t, http.MethodDelete, "/api/v1/rules", "")
	if code != http.StatusMethodNotAllowed {
		t.Errorf("wrong method: status = %d", code)
	}

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "cartsage_") {
		t.Errorf("/metrics: status = %d", rec.Code)
	}
}

func TestRouter_RateLimit(t *testing.T) {
	env := newTestEnv(t)
	h, _ := NewHandler(Dependencies{Engine: env.engine, Baskets: env.baskets})
	router := NewRouter(h, RouterConfig{Middleware: middleware.Config{
		CORSOrigins:       []string{"*"},
		RateLimitRequests: 1,
		RateLimitWindow:   time.Minute,
	}})

	last := 0
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/rules", nil)
		req.RemoteAddr = "192.0.2.1:5000"
		router.ServeHTTP(rec, req)
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", last)
	}

	// Probes are not limited.
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health/live", nil)
	req.RemoteAddr = "192.0.2.1:5000"
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("live probe status = %d", rec.Code)
	}
}
