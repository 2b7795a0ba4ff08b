package metrics

import (
	"Stockpile/internal/entity"
	"Stockpile/internal/errors"
	"Stockpile/internal/gateway"
	"Stockpile/internal/test"
	"Stockpile/pkg/db"
	"Stockpile/pkg/log"
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Global instance of log.Logger to be used during metrics testing.
var logger log.Logger

// In-memory redis-server backing the tests.
var server *miniredis.Miniredis

// Global instance of metrics Repository to be used during metrics testing.
var metricsRepo Repository

// Global context
var ctx context.Context = context.Background()

// Sets up resources before testing the metrics package.
func setup() {
	logger = log.NewWithWriter("test", io.Discard)
	var err error
	server, err = miniredis.Run()
	if err != nil {
		logger.Fatal().Err(err).Msg("Couldn't start miniredis, Aborting test run.")
	}
	metricsRepo = NewRepository(db.Wrap(redis.NewClient(&redis.Options{Addr: server.Addr()})), "test")
}

// Cleans up the resources built during execution of setup()
func teardown() {
	server.Close()
}

func TestMain(m *testing.M) {
	// Setting up Resources
	setup()
	// Running the tests
	testExitCode := m.Run()
	// Cleanup Resources
	teardown()
	// Exit
	os.Exit(testExitCode)
}

type fixedSource struct {
	stats gateway.Stats
}

func (f fixedSource) Stats() gateway.Stats { return f.stats }

func TestGetMetricsSumsInstances(t *testing.T) {
	server.FlushAll()
	require.NoError(t, metricsRepo.SetOrUpdateMetrics(ctx, logger, "a",
		&entity.Metrics{ActiveConnections: 3, OnlinePrincipals: 2, Rooms: 7, RelayConnected: true}, time.Minute))
	require.NoError(t, metricsRepo.SetOrUpdateMetrics(ctx, logger, "b",
		&entity.Metrics{ActiveConnections: 4, OnlinePrincipals: 4, Rooms: 9, RelayConnected: true}, time.Minute))

	got, err := metricsRepo.GetMetrics(ctx, logger)
	require.NoError(t, err)
	assert.Equal(t, entity.Metrics{Instances: 2, ActiveConnections: 7, OnlinePrincipals: 6, Rooms: 16, RelayConnected: true}, got)

	require.NoError(t, metricsRepo.SetOrUpdateMetrics(ctx, logger, "b",
		&entity.Metrics{ActiveConnections: 4, OnlinePrincipals: 4, Rooms: 9}, time.Minute))
	got, err = metricsRepo.GetMetrics(ctx, logger)
	require.NoError(t, err)
	assert.False(t, got.RelayConnected)
}

func TestGetMetricsWithoutInstances(t *testing.T) {
	server.FlushAll()
	got, err := metricsRepo.GetMetrics(ctx, logger)
	require.NoError(t, err)
	assert.Equal(t, entity.Metrics{}, got)
}

func TestStaleInstancesExpire(t *testing.T) {
	server.FlushAll()
	source := fixedSource{stats: gateway.Stats{InstanceID: "a", Connections: 2, Principals: 1, Rooms: 3}}
	svc := NewService(source, metricsRepo, time.Second, logger)
	require.NoError(t, svc.Report(ctx))
	assert.Equal(t, 3*time.Second, server.TTL("test:metrics:a"))

	server.FastForward(4 * time.Second)
	got, err := svc.GetMetrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Instances)
}

func TestRunReportsUntilCleanup(t *testing.T) {
	server.FlushAll()
	source := fixedSource{stats: gateway.Stats{InstanceID: "a", Connections: 5, Principals: 2, Rooms: 4, RelayConnected: true}}
	svc := NewService(source, metricsRepo, 20*time.Millisecond, logger)
	go svc.Run(ctx)

	assert.Eventually(t, func() bool {
		got, err := svc.GetMetrics(ctx)
		return err == nil && got.ActiveConnections == 5
	}, time.Second, 10*time.Millisecond)

	cctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, svc.Cleanup(cctx))
	assert.False(t, server.Exists("test:metrics:a"))
	// Cleanup may be called twice during shutdown
	require.NoError(t, svc.Cleanup(cctx))
}

func TestMetricsAPI(t *testing.T) {
	server.FlushAll()
	svc := NewService(fixedSource{stats: gateway.Stats{InstanceID: "a", Connections: 1, Principals: 1, Rooms: 2}}, metricsRepo, time.Second, logger)
	require.NoError(t, svc.Report(ctx))
	router := test.MockRouter()
	APIHandlers(router, svc, test.MockAuthMiddleware(), logger)

	w := test.ExecuteAPITest(logger, t, router, test.RequestAPITest{
		Method:       http.MethodGet,
		Path:         "/api/realtime/metrics",
		WantResponse: []int{http.StatusOK},
		Cookies:      test.MockPrincipalCookies(entity.Principal{UserID: "u1", OrganizationID: "o1", Role: entity.RoleUser}),
	})
	var body struct {
		Metrics entity.Metrics `json:"metrics"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, entity.Metrics{Instances: 1, ActiveConnections: 1, OnlinePrincipals: 1, Rooms: 2}, body.Metrics)

	test.ExecuteAPITest(logger, t, router, test.RequestAPITest{
		Method:       http.MethodGet,
		Path:         "/api/realtime/metrics",
		WantResponse: []int{http.StatusUnauthorized},
	})
}

// flakyRepository fails its first writes, as many as failures, then accepts the rest.
type flakyRepository struct {
	failures int32
	writes   atomic.Int32
}

func (r *flakyRepository) GetMetrics(ctx context.Context, logger log.Logger) (entity.Metrics, error) {
	return entity.Metrics{}, nil
}

func (r *flakyRepository) SetOrUpdateMetrics(ctx context.Context, logger log.Logger, instanceID string, metrics *entity.Metrics, ttl time.Duration) error {
	if r.writes.Add(1) <= r.failures {
		return errors.InternalServerError("")
	}
	return nil
}

func (r *flakyRepository) DelMetrics(ctx context.Context, logger log.Logger, instanceID string) error {
	return nil
}

func TestRunKeepsReportingAfterFailure(t *testing.T) {
	var out bytes.Buffer
	repo := &flakyRepository{failures: 2}
	svc := NewService(fixedSource{stats: gateway.Stats{InstanceID: "a"}}, repo, 10*time.Millisecond, log.NewWithWriter("test", &out))
	go svc.Run(ctx)

	assert.Eventually(t, func() bool { return repo.writes.Load() > 3 }, time.Second, 5*time.Millisecond)
	cctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, svc.Cleanup(cctx))
	// Run has returned, the buffer is no longer written to.
	assert.Equal(t, 2, strings.Count(out.String(), "Metrics report skipped"))
}
