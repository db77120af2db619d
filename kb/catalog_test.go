package kb

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/signalsfoundry/neo-explorer/filter"
	"github.com/signalsfoundry/neo-explorer/internal/logging"
	"github.com/signalsfoundry/neo-explorer/model"
	"github.com/signalsfoundry/neo-explorer/timectrl"
)

func mustNEO(t *testing.T, designation, name, diameter, hazardous string) *model.NearEarthObject {
	t.Helper()
	neo, err := model.NewNearEarthObject(designation, name, diameter, hazardous)
	if err != nil {
		t.Fatalf("NewNearEarthObject(%q) error: %v", designation, err)
	}
	return neo
}

func mustApproach(t *testing.T, designation, when, distance, velocity string) *model.CloseApproach {
	t.Helper()
	ca, err := model.NewCloseApproach(designation, when, distance, velocity)
	if err != nil {
		t.Fatalf("NewCloseApproach(%q) error: %v", designation, err)
	}
	return ca
}

func testCatalog(t *testing.T) *Catalog {
	t.Helper()
	neos := []*model.NearEarthObject{
		mustNEO(t, "433", "Eros", "16.84", "N"),
		mustNEO(t, "99942", "Apophis", "0.37", "Y"),
		mustNEO(t, "2020 AB", "", "", "N"),
	}
	approaches := []*model.CloseApproach{
		mustApproach(t, "433", "2020-Jan-01 00:00", "0.15", "5.0"),
		mustApproach(t, "99942", "2029-Apr-13 21:46", "0.000254", "7.42"),
		mustApproach(t, "2020 AB", "2020-Jan-02 12:30", "0.02", "11.5"),
		mustApproach(t, "433", "2056-Jan-24 00:00", "0.21", "6.1"),
	}
	c, err := Open(neos, approaches)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	return c
}

func TestScenarioErosAndUnnamed(t *testing.T) {
	eros := mustNEO(t, "433", "Eros", "16.84", "N")
	unnamed := mustNEO(t, "99942", "", "", "Y")
	ca := mustApproach(t, "433", "2020-Jan-01 00:00", "0.15", "5.0")

	c := NewCatalog([]*model.NearEarthObject{eros, unnamed}, []*model.CloseApproach{ca})
	if err := c.Link(); err != nil {
		t.Fatalf("Link error: %v", err)
	}

	if got := c.GetByName("Eros"); got != eros {
		t.Fatalf("GetByName(Eros) = %v, want %v", got, eros)
	}
	if got := c.GetByName(""); got != nil {
		t.Fatalf("GetByName(\"\") = %v, want nil", got)
	}

	results := slices.Collect(c.Query())
	if len(results) != 1 || results[0] != ca {
		t.Fatalf("Query() = %v, want [%v]", results, ca)
	}

	neo, _ := results[0].SerializeNested().Get(model.FieldNEO)
	if name, _ := neo.(model.Record).Get(model.FieldName); name != "Eros" {
		t.Fatalf("neo.name = %#v, want Eros", name)
	}

	rec := unnamed.Serialize()
	if name, _ := rec.Get(model.FieldName); name != "" {
		t.Fatalf("unnamed name = %#v, want empty", name)
	}
	if d, _ := rec.Get(model.FieldDiameterKm); !math.IsNaN(d.(float64)) {
		t.Fatalf("unnamed diameter_km = %v, want NaN", d)
	}
}

func TestLookupsRoundTrip(t *testing.T) {
	c := testCatalog(t)
	for neo := range c.NEOs() {
		if got := c.GetByDesignation(neo.Designation); got != neo {
			t.Fatalf("GetByDesignation(%q) = %v, want %v", neo.Designation, got, neo)
		}
		if neo.HasName() {
			if got := c.GetByName(*neo.Name); got != neo {
				t.Fatalf("GetByName(%q) = %v, want %v", *neo.Name, got, neo)
			}
		}
	}
	if got := c.GetByDesignation("nope"); got != nil {
		t.Fatalf("GetByDesignation(nope) = %v, want nil", got)
	}
	if got := c.GetByName("eros"); got != nil {
		t.Fatalf("GetByName is case-sensitive, got %v", got)
	}
}

func TestLookupsAreMemoized(t *testing.T) {
	c := testCatalog(t)
	before := c.nameCache.len()
	first := c.GetByName("Apophis")
	second := c.GetByName("Apophis")
	if first != second {
		t.Fatalf("repeated GetByName returned different objects")
	}
	if got := c.nameCache.len(); got != before+1 {
		t.Fatalf("name cache size = %d, want %d", got, before+1)
	}
}

func TestLookupCacheIsBounded(t *testing.T) {
	neos := []*model.NearEarthObject{
		mustNEO(t, "433", "Eros", "16.84", "N"),
		mustNEO(t, "99942", "Apophis", "0.37", "Y"),
	}
	c := NewCatalog(neos, nil, WithLookupCacheSize(2))

	for i := 0; i < 10; i++ {
		if got := c.GetByName(fmt.Sprintf("missing-%d", i)); got != nil {
			t.Fatalf("GetByName(missing-%d) = %v, want nil", i, got)
		}
	}
	if got := c.nameCache.len(); got != 2 {
		t.Fatalf("name cache size = %d, want 2", got)
	}
	if got := c.GetByName("Apophis"); got != neos[1] {
		t.Fatalf("GetByName(Apophis) = %v after evictions, want %v", got, neos[1])
	}
	if got := c.GetByName("Eros"); got != neos[0] {
		t.Fatalf("GetByName(Eros) = %v after evictions, want %v", got, neos[0])
	}
}

func TestQueryBeforeLinkWarnsOnce(t *testing.T) {
	var buf bytes.Buffer
	log := logging.New(logging.Config{Level: "debug", Output: &buf})
	neos := []*model.NearEarthObject{mustNEO(t, "433", "Eros", "16.84", "N")}
	approaches := []*model.CloseApproach{
		mustApproach(t, "433", "2020-Jan-01 00:00", "0.15", "5.0"),
	}
	c := NewCatalog(neos, approaches, WithLogger(log))

	for range c.Approaches() {
	}
	if strings.Contains(buf.String(), "before catalog was linked") {
		t.Fatalf("Approaches() warned about linking:\n%s", buf.String())
	}

	day := time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 2; i++ {
		if n := len(slices.Collect(c.Query(filter.Date(filter.OpEq, day)))); n != 1 {
			t.Fatalf("Query() before Link matched %d, want 1", n)
		}
	}
	if got := strings.Count(buf.String(), "query issued before catalog was linked"); got != 1 {
		t.Fatalf("warning logged %d times, want 1:\n%s", got, buf.String())
	}
	if !strings.Contains(buf.String(), "level=WARN") {
		t.Fatalf("warning not logged at WARN level:\n%s", buf.String())
	}

	if err := c.Link(); err != nil {
		t.Fatalf("Link error: %v", err)
	}
	for range c.Query() {
	}
	if got := strings.Count(buf.String(), "query issued before catalog was linked"); got != 1 {
		t.Fatalf("warning logged %d times after Link, want 1", got)
	}
}

func TestApproachesRecordsNoQuery(t *testing.T) {
	rec := &fakeRecorder{}
	neos := []*model.NearEarthObject{mustNEO(t, "433", "Eros", "16.84", "N")}
	approaches := []*model.CloseApproach{
		mustApproach(t, "433", "2020-Jan-01 00:00", "0.15", "5.0"),
	}
	c, err := Open(neos, approaches, WithMetricsRecorder(rec))
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	if n := len(slices.Collect(c.Approaches())); n != 1 {
		t.Fatalf("Approaches() len=%d, want 1", n)
	}
	if len(rec.queries) != 0 {
		t.Fatalf("Approaches() recorded %d queries, want 0", len(rec.queries))
	}
}

func TestLinkingIsBidirectional(t *testing.T) {
	c := testCatalog(t)
	if !c.Linked() {
		t.Fatalf("Linked() = false after Open")
	}
	for ca := range c.Approaches() {
		if ca.NEO == nil {
			t.Fatalf("approach %v not linked", ca)
		}
		if ca.NEO.Designation != ca.Designation() {
			t.Fatalf("NEO designation %q != key %q", ca.NEO.Designation, ca.Designation())
		}
		count := 0
		for _, other := range ca.NEO.Approaches {
			if other == ca {
				count++
			}
		}
		if count != 1 {
			t.Fatalf("approach appears %d times in its NEO, want 1", count)
		}
	}

	eros := c.GetByDesignation("433")
	if len(eros.Approaches) != 2 {
		t.Fatalf("Eros approaches = %d, want 2", len(eros.Approaches))
	}
	if !eros.Approaches[0].Time.Before(eros.Approaches[1].Time) {
		t.Fatalf("approaches not appended in catalog order")
	}
}

func TestLinkTwiceFails(t *testing.T) {
	c := testCatalog(t)
	if err := c.Link(); !errors.Is(err, ErrAlreadyLinked) {
		t.Fatalf("second Link err = %v, want ErrAlreadyLinked", err)
	}
	if got := len(c.GetByDesignation("433").Approaches); got != 2 {
		t.Fatalf("second Link mutated approaches: len=%d", got)
	}
}

func TestLinkUnknownDesignation(t *testing.T) {
	neos := []*model.NearEarthObject{mustNEO(t, "433", "Eros", "16.84", "N")}
	approaches := []*model.CloseApproach{mustApproach(t, "404", "2020-Jan-01 00:00", "0.1", "1")}
	if _, err := Open(neos, approaches); !errors.Is(err, ErrUnknownDesignation) {
		t.Fatalf("Open err = %v, want ErrUnknownDesignation", err)
	}
}

func TestQueryEmptyFiltersYieldsAllInOrder(t *testing.T) {
	c := testCatalog(t)
	got := slices.Collect(c.Query())
	if len(got) != len(c.approaches) {
		t.Fatalf("Query() len=%d, want %d", len(got), len(c.approaches))
	}
	for i := range got {
		if got[i] != c.approaches[i] {
			t.Fatalf("Query()[%d] out of order", i)
		}
	}
}

func TestQueryIsCommutativeIntersection(t *testing.T) {
	c := testCatalog(t)
	f1 := filter.Distance(filter.OpLE, 0.16)
	f2 := filter.Velocity(filter.OpGE, 6.0)

	ab := slices.Collect(c.Query(f1, f2))
	ba := slices.Collect(c.Query(f2, f1))
	if !slices.Equal(ab, ba) {
		t.Fatalf("Query(f1,f2) = %v, Query(f2,f1) = %v", ab, ba)
	}

	only2 := slices.Collect(c.Query(f2))
	var want []*model.CloseApproach
	for ca := range c.Query(f1) {
		if slices.Contains(only2, ca) {
			want = append(want, ca)
		}
	}
	if !slices.Equal(ab, want) {
		t.Fatalf("Query(f1,f2) = %v, want intersection %v", ab, want)
	}
	if len(ab) != 2 {
		t.Fatalf("Query(f1,f2) len=%d, want 2", len(ab))
	}
}

func TestQueryShortCircuits(t *testing.T) {
	c := testCatalog(t)
	calls := 0
	never := func(*model.CloseApproach) bool { return false }
	counting := func(*model.CloseApproach) bool { calls++; return true }

	if n := len(slices.Collect(c.Query(never, counting))); n != 0 {
		t.Fatalf("Query(never, ...) yielded %d approaches", n)
	}
	if calls != 0 {
		t.Fatalf("filter after a false one was evaluated %d times", calls)
	}
}

func TestQueryIsRestartable(t *testing.T) {
	c := testCatalog(t)
	f := filter.Hazardous(false)

	first := slices.Collect(c.Query(f))
	second := slices.Collect(c.Query(f))
	if !slices.Equal(first, second) {
		t.Fatalf("two queries differ: %v vs %v", first, second)
	}

	seq := c.Query(f)
	a := slices.Collect(seq)
	b := slices.Collect(seq)
	if !slices.Equal(a, b) || len(a) != 3 {
		t.Fatalf("re-ranging a sequence: %d then %d results, want 3 both times", len(a), len(b))
	}
}

func TestQueryStopsEarly(t *testing.T) {
	c := testCatalog(t)
	got := slices.Collect(filter.Limit(c.Query(), 2))
	if len(got) != 2 {
		t.Fatalf("Limit(Query(), 2) len=%d, want 2", len(got))
	}
}

type recordedQuery struct {
	matched int
	elapsed time.Duration
}

type fakeRecorder struct {
	mu                      sync.Mutex
	neos, named, approaches int
	queries                 []recordedQuery
}

func (f *fakeRecorder) SetCatalogCounts(neos, named, approaches int) {
	f.neos, f.named, f.approaches = neos, named, approaches
}

func (f *fakeRecorder) ObserveQuery(matched int, elapsed time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, recordedQuery{matched: matched, elapsed: elapsed})
}

func TestMetricsRecorder(t *testing.T) {
	rec := &fakeRecorder{}
	neos := []*model.NearEarthObject{
		mustNEO(t, "433", "Eros", "16.84", "N"),
		mustNEO(t, "2020 AB", "", "", "N"),
	}
	approaches := []*model.CloseApproach{
		mustApproach(t, "433", "2020-Jan-01 00:00", "0.15", "5.0"),
		mustApproach(t, "2020 AB", "2020-Jan-02 12:30", "0.02", "11.5"),
	}
	c, err := Open(neos, approaches, WithMetricsRecorder(rec))
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	if rec.neos != 2 || rec.named != 1 || rec.approaches != 2 {
		t.Fatalf("counts = %d/%d/%d, want 2/1/2", rec.neos, rec.named, rec.approaches)
	}

	for range c.Query(filter.Distance(filter.OpLE, 0.1)) {
	}
	if len(rec.queries) != 1 || rec.queries[0].matched != 1 {
		t.Fatalf("recorded queries = %+v, want one with 1 match", rec.queries)
	}
}

func TestQueryDurationUsesClock(t *testing.T) {
	rec := &fakeRecorder{}
	clock := timectrl.NewController(time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC), 250*time.Millisecond)
	neos := []*model.NearEarthObject{mustNEO(t, "433", "Eros", "16.84", "N")}
	approaches := []*model.CloseApproach{
		mustApproach(t, "433", "2020-Jan-01 00:00", "0.15", "5.0"),
	}
	c, err := Open(neos, approaches, WithMetricsRecorder(rec), WithClock(clock))
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}

	seq := c.Query()
	for range seq {
	}
	for range seq {
	}
	if len(rec.queries) != 2 {
		t.Fatalf("recorded %d queries, want 2", len(rec.queries))
	}
	for i, q := range rec.queries {
		if q.elapsed != 250*time.Millisecond {
			t.Fatalf("query %d elapsed = %v, want 250ms", i, q.elapsed)
		}
	}
}

func TestConcurrentReaders(t *testing.T) {
	c := testCatalog(t)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if c.GetByName("Eros") == nil {
					t.Errorf("GetByName(Eros) = nil")
					return
				}
				if n := len(slices.Collect(c.Query())); n != 4 {
					t.Errorf("Query() len=%d, want 4", n)
					return
				}
			}
		}()
	}
	wg.Wait()
}
