package geocode

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"bbqapp-core/internal/geo"
)

type fakeGeocoder struct {
	mu         sync.Mutex
	queryCalls int
	pointCalls int
	results    []geo.Address
	err        error

	// gate, when set, blocks every backend call until it is closed.
	gate chan struct{}
}

func (g *fakeGeocoder) FromQuery(_ context.Context, _ string, _ int) ([]geo.Address, error) {
	g.mu.Lock()
	g.queryCalls++
	gate, results, err := g.gate, g.results, g.err
	g.mu.Unlock()

	if gate != nil {
		<-gate
	}
	return results, err
}

func (g *fakeGeocoder) FromPoint(_ context.Context, _ geo.Point, _ int) ([]geo.Address, error) {
	g.mu.Lock()
	g.pointCalls++
	gate, results, err := g.gate, g.results, g.err
	g.mu.Unlock()

	if gate != nil {
		<-gate
	}
	return results, err
}

func (g *fakeGeocoder) calls() (int, int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.queryCalls, g.pointCalls
}

var _ Geocoder = (*fakeGeocoder)(nil)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func addresses(names ...string) []geo.Address {
	out := make([]geo.Address, 0, len(names))
	for _, name := range names {
		out = append(out, geo.Address{Lines: []string{name}})
	}
	return out
}

// collect drains a lookup until completion.
func collect(t *testing.T, l *Lookup) ([]geo.Address, error) {
	t.Helper()
	timeout := time.After(2 * time.Second)
	var out []geo.Address
	for {
		select {
		case addr, ok := <-l.Addresses():
			if !ok {
				return out, l.Err()
			}
			out = append(out, addr)
		case <-timeout:
			t.Fatal("timed out waiting for lookup completion")
			return nil, nil
		}
	}
}

func TestResolveQuery(t *testing.T) {
	geocoder := &fakeGeocoder{results: addresses("Invalidenstr. 117, Berlin")}
	resolver := NewResolver(context.Background(), geocoder, testLogger())

	got, err := collect(t, resolver.ResolveQuery("Invalidenstr. 117"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].Lines[0] != "Invalidenstr. 117, Berlin" {
		t.Errorf("got %+v", got)
	}
}

func TestResolveQueryEmpty(t *testing.T) {
	geocoder := &fakeGeocoder{}
	resolver := NewResolver(context.Background(), geocoder, testLogger())

	_, err := collect(t, resolver.ResolveQuery("   "))
	if !errors.Is(err, ErrEmptyQuery) {
		t.Errorf("err = %v, want ErrEmptyQuery", err)
	}
	if q, _ := geocoder.calls(); q != 0 {
		t.Errorf("backend called %d times for empty query", q)
	}
}

func TestResolveQueryZeroResults(t *testing.T) {
	geocoder := &fakeGeocoder{}
	resolver := NewResolver(context.Background(), geocoder, testLogger())

	got, err := collect(t, resolver.ResolveQuery("nowhere"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %+v, want no addresses", got)
	}
}

func TestResolveDeduplicatesConcurrentRequests(t *testing.T) {
	geocoder := &fakeGeocoder{
		results: addresses("Alexanderplatz, Berlin", "Alexanderplatz (U-Bahn), Berlin"),
		gate:    make(chan struct{}),
	}
	resolver := NewResolver(context.Background(), geocoder, testLogger())

	// Same query modulo whitespace and case shares one backend call.
	a := resolver.ResolveQuery("  Alexanderplatz ")
	b := resolver.ResolveQuery("alexanderplatz")
	close(geocoder.gate)

	gotA, errA := collect(t, a)
	gotB, errB := collect(t, b)
	if errA != nil || errB != nil {
		t.Fatalf("errors: %v, %v", errA, errB)
	}

	// Both waiters observe the full result sequence in backend order.
	want := []string{"Alexanderplatz, Berlin", "Alexanderplatz (U-Bahn), Berlin"}
	for name, got := range map[string][]geo.Address{"a": gotA, "b": gotB} {
		if len(got) != len(want) {
			t.Fatalf("waiter %s got %+v, want %d addresses", name, got, len(want))
		}
		for i, address := range got {
			if address.Lines[0] != want[i] {
				t.Errorf("waiter %s address %d = %q, want %q", name, i, address.Lines[0], want[i])
			}
		}
	}
	if q, _ := geocoder.calls(); q != 1 {
		t.Errorf("backend called %d times, want 1", q)
	}
}

func TestResolvePointDeduplicates(t *testing.T) {
	geocoder := &fakeGeocoder{
		results: addresses("Brandenburger Tor"),
		gate:    make(chan struct{}),
	}
	resolver := NewResolver(context.Background(), geocoder, testLogger())

	pt := geo.Point{Lat: 52.516275, Lon: 13.377704}
	a := resolver.ResolvePoint(pt)
	b := resolver.ResolvePoint(pt)
	close(geocoder.gate)

	if _, err := collect(t, a); err != nil {
		t.Fatal(err)
	}
	if _, err := collect(t, b); err != nil {
		t.Fatal(err)
	}
	if _, p := geocoder.calls(); p != 1 {
		t.Errorf("backend called %d times, want 1", p)
	}
}

func TestResolvePointInvalid(t *testing.T) {
	geocoder := &fakeGeocoder{results: addresses("ok")}
	resolver := NewResolver(context.Background(), geocoder, testLogger())

	_, err := collect(t, resolver.ResolvePoint(geo.Point{Lat: 120, Lon: 0}))
	if err == nil {
		t.Error("invalid coordinate should fail the lookup")
	}
	if _, p := geocoder.calls(); p != 0 {
		t.Errorf("backend called %d times for invalid coordinate", p)
	}

	// A later valid request on the same resolver succeeds.
	got, err := collect(t, resolver.ResolvePoint(geo.Point{Lat: 52.5, Lon: 13.4}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("got %+v", got)
	}
}

func TestResolveRunsToCompletionWithoutWaiters(t *testing.T) {
	geocoder := &fakeGeocoder{
		results: addresses("Museumsinsel"),
		gate:    make(chan struct{}),
	}
	resolver := NewResolver(context.Background(), geocoder, testLogger(), ResolverOptions{
		MaxResults: 5,
		Workers:    1,
		CacheTTL:   time.Minute,
	})

	abandoned := resolver.ResolveQuery("Museumsinsel")
	abandoned.Close()
	close(geocoder.gate)

	// The resolution keeps running and its outcome stays available, so a
	// repeat request is served without a second backend call.
	got, err := collect(t, resolver.ResolveQuery("Museumsinsel"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("got %+v", got)
	}
	if q, _ := geocoder.calls(); q != 1 {
		t.Errorf("backend called %d times, want 1", q)
	}
}

func TestResolveCachedResultReused(t *testing.T) {
	geocoder := &fakeGeocoder{results: addresses("Tempelhofer Feld")}
	resolver := NewResolver(context.Background(), geocoder, testLogger(), ResolverOptions{
		CacheTTL: time.Minute,
	})

	if _, err := collect(t, resolver.ResolveQuery("Tempelhofer Feld")); err != nil {
		t.Fatal(err)
	}
	if _, err := collect(t, resolver.ResolveQuery("tempelhofer feld")); err != nil {
		t.Fatal(err)
	}
	if q, _ := geocoder.calls(); q != 1 {
		t.Errorf("backend called %d times, want 1 with caching enabled", q)
	}
}

func TestResolveWithoutCacheRepeatsBackendCall(t *testing.T) {
	geocoder := &fakeGeocoder{results: addresses("Ostkreuz")}
	resolver := NewResolver(context.Background(), geocoder, testLogger())

	if _, err := collect(t, resolver.ResolveQuery("Ostkreuz")); err != nil {
		t.Fatal(err)
	}
	if _, err := collect(t, resolver.ResolveQuery("Ostkreuz")); err != nil {
		t.Fatal(err)
	}
	if q, _ := geocoder.calls(); q != 2 {
		t.Errorf("backend called %d times, want 2 without caching", q)
	}
}

func TestResolveErrorNotCached(t *testing.T) {
	geocoder := &fakeGeocoder{err: errors.New("upstream unavailable")}
	resolver := NewResolver(context.Background(), geocoder, testLogger(), ResolverOptions{
		CacheTTL: time.Minute,
	})

	if _, err := collect(t, resolver.ResolveQuery("Spandau")); err == nil {
		t.Fatal("expected backend error")
	}

	geocoder.mu.Lock()
	geocoder.err = nil
	geocoder.results = addresses("Spandau, Berlin")
	geocoder.mu.Unlock()

	got, err := collect(t, resolver.ResolveQuery("Spandau"))
	if err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("got %+v", got)
	}
	if q, _ := geocoder.calls(); q != 2 {
		t.Errorf("backend called %d times, want 2", q)
	}
}
