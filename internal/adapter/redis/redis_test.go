package redis

import (
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/pscheid92/marketpulse/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

func setupMiniredis(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func testQuotes() []domain.Quote {
	return []domain.Quote{
		{ID: uuid.New(), Symbol: "NIFTY", Name: "NIFTY 50", Price: 19674.25, ChangePercent: 0.63, LastUpdated: time.Unix(1700000000, 0).UTC()},
		{ID: uuid.New(), Symbol: "TCS", Name: "Tata Consultancy Services", Price: 3687.9, Volume: domain.Ptr(890000.0), LastUpdated: time.Unix(1700000000, 0).UTC()},
	}
}

type fakeRedisRecorder struct {
	mu          sync.Mutex
	operations  map[string]int
	errors      map[string]int
	dialFails   int
	transitions []string
}

func newFakeRedisRecorder() *fakeRedisRecorder {
	return &fakeRedisRecorder{operations: map[string]int{}, errors: map[string]int{}}
}

func (r *fakeRedisRecorder) Operation(name string, err error, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.operations[name]++
	if err != nil {
		r.errors[name]++
	}
}

func (r *fakeRedisRecorder) DialFailed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dialFails++
}

func (r *fakeRedisRecorder) BreakerChanged(to string, _ float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, to)
}

func (r *fakeRedisRecorder) snapshot() (map[string]int, map[string]int, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return copyCounts(r.operations), copyCounts(r.errors), append([]string(nil), r.transitions...)
}

func copyCounts(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
