package aggregation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"lendgate/internal/aggregation/metrics"
	"lendgate/internal/banks"
)

type fetchFunc func(ctx context.Context, credential string) ([]Application, error)

// fakeFetcher answers per bank code and counts calls.
type fakeFetcher struct {
	mu        sync.Mutex
	calls     map[banks.Code]int
	responses map[banks.Code]fetchFunc
}

func newFakeFetcher(responses map[banks.Code]fetchFunc) *fakeFetcher {
	return &fakeFetcher{calls: make(map[banks.Code]int), responses: responses}
}

func (f *fakeFetcher) FetchApplications(ctx context.Context, bank banks.Descriptor, _ string, credential string) ([]Application, error) {
	f.mu.Lock()
	f.calls[bank.Code]++
	fn := f.responses[bank.Code]
	f.mu.Unlock()
	if fn == nil {
		return nil, nil
	}
	return fn(ctx, credential)
}

func (f *fakeFetcher) callCount(code banks.Code) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[code]
}

func apps(ids ...int64) fetchFunc {
	return func(context.Context, string) ([]Application, error) {
		out := make([]Application, 0, len(ids))
		for _, id := range ids {
			out = append(out, Application{ID: id, Status: StatusPending, UserID: "user123"})
		}
		return out, nil
	}
}

func failing(err error) fetchFunc {
	return func(context.Context, string) ([]Application, error) {
		return nil, err
	}
}

func testRegistry(t *testing.T, baseURLs ...string) *banks.Registry {
	t.Helper()
	descriptors := []banks.Descriptor{
		{Name: "Bancolombia", Code: banks.Bancolombia, AuthHeader: "Authorization"},
		{Name: "Davivienda", Code: banks.Davivienda, AuthHeader: "Authorization"},
		{Name: "Coltefinanciera", Code: banks.Coltefinanciera, AuthHeader: "Authorization"},
	}
	for i := range descriptors {
		descriptors[i].BaseURL = "http://bank.test"
		if i < len(baseURLs) {
			descriptors[i].BaseURL = baseURLs[i]
		}
	}
	reg, err := banks.NewRegistry(descriptors...)
	require.NoError(t, err)
	return reg
}

type EngineSuite struct {
	suite.Suite
	registry *banks.Registry
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.registry = testRegistry(s.T())
}

func (s *EngineSuite) newEngine(f Fetcher, opts ...Option) *Engine {
	e, err := New(s.registry, f, opts...)
	s.Require().NoError(err)
	return e
}

func (s *EngineSuite) TestAggregatesAcrossBanksWithProvenance() {
	f := newFakeFetcher(map[banks.Code]fetchFunc{
		banks.Bancolombia:     apps(1, 2),
		banks.Davivienda:      apps(3),
		banks.Coltefinanciera: apps(),
	})

	result := s.newEngine(f).FetchAll(context.Background(), "user123", "Bearer token")

	s.Require().Len(result.Applications, 3)
	s.False(result.Cancelled)
	s.Empty(result.Failed())
	s.Equal(map[banks.Code]int{banks.Bancolombia: 2, banks.Davivienda: 1}, result.CountByBank())

	for _, env := range result.Applications {
		d, ok := s.registry.Get(env.BankCode)
		s.Require().True(ok)
		s.Equal(d.Name, env.BankName)
	}
}

func (s *EngineSuite) TestIsolatesEverySubsetOfFailingBanks() {
	all := s.registry.All()
	records := map[banks.Code][]int64{
		banks.Bancolombia:     {1, 2},
		banks.Davivienda:      {3},
		banks.Coltefinanciera: {4, 5, 6},
	}

	for mask := 0; mask < 1<<len(all); mask++ {
		responses := make(map[banks.Code]fetchFunc)
		want := make(map[int64]banks.Code)
		failed := 0
		for i, bank := range all {
			if mask&(1<<i) != 0 {
				responses[bank.Code] = failing(errors.New("connection timeout"))
				failed++
				continue
			}
			responses[bank.Code] = apps(records[bank.Code]...)
			for _, id := range records[bank.Code] {
				want[id] = bank.Code
			}
		}

		result := s.newEngine(newFakeFetcher(responses)).FetchAll(context.Background(), "user123", "")

		got := make(map[int64]banks.Code)
		for _, env := range result.Applications {
			_, dup := got[env.ID]
			s.False(dup, "mask %b: application %d merged twice", mask, env.ID)
			got[env.ID] = env.BankCode
		}
		s.Equal(want, got, "mask %b", mask)
		s.Len(result.Failed(), failed, "mask %b", mask)
		s.NotNil(result.Applications, "mask %b: result must be an empty list, not nil", mask)
	}
}

func (s *EngineSuite) TestAllBanksFailingYieldsEmptyResult() {
	f := newFakeFetcher(map[banks.Code]fetchFunc{
		banks.Bancolombia:     failing(errors.New("service unavailable")),
		banks.Davivienda:      failing(errors.New("service unavailable")),
		banks.Coltefinanciera: failing(errors.New("service unavailable")),
	})

	result := s.newEngine(f).FetchAll(context.Background(), "user123", "Bearer token")

	s.NotNil(result.Applications)
	s.Empty(result.Applications)
	s.False(result.Cancelled)
	s.Equal([]banks.Code{banks.Bancolombia, banks.Davivienda, banks.Coltefinanciera}, result.Failed())
}

func (s *EngineSuite) TestBankTimeoutOnlyDropsThatBank() {
	f := newFakeFetcher(map[banks.Code]fetchFunc{
		banks.Bancolombia: apps(1),
		banks.Davivienda: func(ctx context.Context, _ string) ([]Application, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
		banks.Coltefinanciera: apps(2),
	})

	result := s.newEngine(f, WithTimeout(30*time.Millisecond)).FetchAll(context.Background(), "user123", "Bearer token")

	s.Require().Len(result.Applications, 2)
	s.Equal(map[banks.Code]int{banks.Bancolombia: 1, banks.Coltefinanciera: 1}, result.CountByBank())
	s.Equal([]banks.Code{banks.Davivienda}, result.Failed())
	s.Equal(ErrorTimeout, Category(result.Banks[1].Err))
}

func (s *EngineSuite) TestBanksAreQueriedConcurrently() {
	var inFlight sync.WaitGroup
	inFlight.Add(s.registry.Len())
	allStarted := make(chan struct{})
	go func() {
		inFlight.Wait()
		close(allStarted)
	}()

	barrier := func(ctx context.Context, _ string) ([]Application, error) {
		inFlight.Done()
		select {
		case <-allStarted:
			return []Application{{ID: 1}}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f := newFakeFetcher(map[banks.Code]fetchFunc{
		banks.Bancolombia:     barrier,
		banks.Davivienda:      barrier,
		banks.Coltefinanciera: barrier,
	})

	result := s.newEngine(f, WithTimeout(2*time.Second)).FetchAll(context.Background(), "user123", "")
	s.Len(result.Applications, 3, "every bank must be in flight at the same time")
}

func (s *EngineSuite) TestCancelledCallerGetsNoPartialResult() {
	ctx, cancel := context.WithCancel(context.Background())
	f := newFakeFetcher(map[banks.Code]fetchFunc{
		banks.Bancolombia: apps(1, 2),
		banks.Davivienda: func(ctx context.Context, _ string) ([]Application, error) {
			cancel()
			<-ctx.Done()
			return nil, ctx.Err()
		},
		banks.Coltefinanciera: apps(3),
	})
	breakers := WithBreakers(1, time.Hour)

	e := s.newEngine(f, breakers)
	result := e.FetchAll(ctx, "user123", "")

	s.True(result.Cancelled)
	s.Empty(result.Applications)
	s.False(e.Breaker(banks.Davivienda).IsOpen(), "caller cancellation must not count against the bank")
}

func (s *EngineSuite) TestOpenBreakerSkipsBank() {
	f := newFakeFetcher(map[banks.Code]fetchFunc{
		banks.Bancolombia:     apps(1),
		banks.Davivienda:      failing(errors.New("connection refused")),
		banks.Coltefinanciera: apps(2),
	})
	e := s.newEngine(f, WithBreakers(2, time.Hour))

	for range 2 {
		result := e.FetchAll(context.Background(), "user123", "")
		s.Len(result.Applications, 2)
	}
	s.True(e.Breaker(banks.Davivienda).IsOpen())

	result := e.FetchAll(context.Background(), "user123", "")
	s.Len(result.Applications, 2)
	s.Equal(2, f.callCount(banks.Davivienda), "open breaker must short-circuit the call")
	s.Equal(ErrorCircuitOpen, Category(result.Banks[1].Err))
	s.Equal(3, f.callCount(banks.Bancolombia))
}

func (s *EngineSuite) TestProbeClosesBreakerAfterCooldown() {
	healthy := false
	var mu sync.Mutex
	f := newFakeFetcher(map[banks.Code]fetchFunc{
		banks.Davivienda: func(context.Context, string) ([]Application, error) {
			mu.Lock()
			defer mu.Unlock()
			if !healthy {
				return nil, errors.New("connection refused")
			}
			return []Application{{ID: 7}}, nil
		},
	})
	e := s.newEngine(f, WithBreakers(1, 0))

	e.FetchAll(context.Background(), "user123", "")
	s.True(e.Breaker(banks.Davivienda).IsOpen())

	mu.Lock()
	healthy = true
	mu.Unlock()

	result := e.FetchAll(context.Background(), "user123", "")
	s.Len(result.Applications, 1)
	s.False(e.Breaker(banks.Davivienda).IsOpen())
}

func (s *EngineSuite) TestCallerRejectionsLeaveBreakerClosed() {
	f := newFakeFetcher(map[banks.Code]fetchFunc{
		banks.Bancolombia: func(_ context.Context, credential string) ([]Application, error) {
			if credential == "" {
				return nil, newStatusError(banks.Bancolombia, http.StatusUnauthorized, "")
			}
			return []Application{{ID: 1, UserID: "user123"}}, nil
		},
		banks.Davivienda: failing(newStatusError(banks.Davivienda, http.StatusNotFound, "unknown user")),
	})
	e := s.newEngine(f, WithBreakers(2, time.Hour))

	for range 5 {
		e.FetchAll(context.Background(), "someone", "")
	}
	s.False(e.Breaker(banks.Bancolombia).IsOpen())
	s.False(e.Breaker(banks.Davivienda).IsOpen())

	result := e.FetchAll(context.Background(), "user123", "Bearer good")
	s.Require().Len(result.Applications, 1)
	s.Equal(banks.Bancolombia, result.Applications[0].BankCode)
	s.Equal(6, f.callCount(banks.Bancolombia))
}

func (s *EngineSuite) TestServerErrorsOpenBreaker() {
	f := newFakeFetcher(map[banks.Code]fetchFunc{
		banks.Bancolombia: failing(newStatusError(banks.Bancolombia, http.StatusBadGateway, "")),
	})
	e := s.newEngine(f, WithBreakers(2, time.Hour))

	e.FetchAll(context.Background(), "user123", "Bearer t")
	e.FetchAll(context.Background(), "user123", "Bearer t")

	s.True(e.Breaker(banks.Bancolombia).IsOpen())
}

func (s *EngineSuite) TestMetricsRecordOutcomes() {
	m := metrics.New(prometheus.NewRegistry())
	f := newFakeFetcher(map[banks.Code]fetchFunc{
		banks.Bancolombia: apps(1, 2),
		banks.Davivienda:  failing(&UpstreamError{Category: ErrorBadData, Bank: banks.Davivienda, Message: "bad"}),
	})

	s.newEngine(f, WithMetrics(m)).FetchAll(context.Background(), "user123", "")

	s.Equal(1.0, testutil.ToFloat64(m.FetchOutcome.WithLabelValues("BCO", "ok")))
	s.Equal(1.0, testutil.ToFloat64(m.FetchOutcome.WithLabelValues("DAVI", "bad_data")))
	s.Equal(2.0, testutil.ToFloat64(m.RecordsReturned.WithLabelValues("BCO")))
}

// TestUnauthenticatedCallsDoNotStarveOtherUsers drives a bank that refuses
// anonymous callers: anonymous traffic must not trip the breaker shared by
// authenticated ones.
func TestUnauthenticatedCallsDoNotStarveOtherUsers(t *testing.T) {
	bank := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":1,"status":"PENDING","userId":"victim"}]`))
	}))
	defer bank.Close()

	reg, err := banks.NewRegistry(banks.Descriptor{Name: "Bancolombia", Code: banks.Bancolombia, BaseURL: bank.URL})
	require.NoError(t, err)
	e, err := New(reg, NewHTTPFetcher(bank.Client()), WithBreakers(5, 30*time.Second))
	require.NoError(t, err)

	for range 5 {
		result := e.FetchAll(context.Background(), "someone", "")
		require.Len(t, result.Banks, 1)
		assert.Equal(t, ErrorUpstreamStatus, Category(result.Banks[0].Err))
	}
	assert.False(t, e.Breaker(banks.Bancolombia).IsOpen())

	result := e.FetchAll(context.Background(), "victim", "Bearer good")
	require.Len(t, result.Applications, 1)
	assert.Empty(t, result.Failed())
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(nil, newFakeFetcher(nil))
	assert.Error(t, err)

	_, err = New(testRegistry(t), nil)
	assert.Error(t, err)
}

// TestFetchAllOverHTTP runs the engine against real bank endpoints: bank 1
// returns two applications, bank 2 one, bank 3 none.
func TestFetchAllOverHTTP(t *testing.T) {
	var mu sync.Mutex
	seenAuth := make(map[string]string)

	bank := func(code string, body []Application) *httptest.Server {
		return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			seenAuth[code] = r.Header.Get("Authorization")
			mu.Unlock()
			assert.Equal(t, "/api/applications/user/user123", r.URL.Path)
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(body)
		}))
	}

	bco := bank("BCO", []Application{{ID: 1, Status: StatusPending, UserID: "user123"}, {ID: 2, Status: StatusApproved, UserID: "user123"}})
	defer bco.Close()
	davi := bank("DAVI", []Application{{ID: 3, Status: StatusUnderReview, UserID: "user123"}})
	defer davi.Close()
	colt := bank("COLT", []Application{})
	defer colt.Close()

	e, err := New(testRegistry(t, bco.URL, davi.URL, colt.URL), NewHTTPFetcher(bco.Client()))
	require.NoError(t, err)

	result := e.FetchAll(context.Background(), "user123", "Bearer valid-token")

	require.Len(t, result.Applications, 3)
	assert.Equal(t, map[banks.Code]int{banks.Bancolombia: 2, banks.Davivienda: 1}, result.CountByBank())
	for _, code := range []string{"BCO", "DAVI", "COLT"} {
		assert.Equal(t, "Bearer valid-token", seenAuth[code], "bank %s", code)
	}
}
