package matcher

import (
	"context"
	"errors"
	"testing"

	"github.com/example/ride-booking/internal/models"
)

type fakeDrivers struct {
	drivers     []models.Driver
	nearbyCalls int
}

func (f *fakeDrivers) List(ctx context.Context) ([]models.Driver, error) { return f.drivers, nil }
func (f *fakeDrivers) Nearby(ctx context.Context, loc models.Location, limit int) ([]models.Driver, error) {
	f.nearbyCalls++
	if limit < len(f.drivers) {
		return f.drivers[:limit], nil
	}
	return f.drivers, nil
}

// fixedTimes annotates markers from a table keyed by id.
type fixedTimes struct {
	times map[string]float64
	calls int
}

func (f *fixedTimes) ComputeDriverTimes(ctx context.Context, markers []models.Marker, user, dest *models.Location) []models.Marker {
	if dest == nil {
		return markers
	}
	f.calls++
	out := make([]models.Marker, len(markers))
	for i, m := range markers {
		m.Annotated = true
		m.Time = f.times[m.ID]
		m.Price = m.Time * 0.5
		if m.Time < 0 {
			m.Price = models.Unavailable
		}
		out[i] = m
	}
	return out
}

func TestQuoteRanksReachableDriversFirst(t *testing.T) {
	d := &fakeDrivers{drivers: []models.Driver{{ID: "A", Rating: 4}, {ID: "B", Rating: 5}, {ID: "C"}, {ID: "D", Rating: 4.5}}}
	eta := &fixedTimes{times: map[string]float64{"A": 12, "B": 12, "C": models.Unavailable, "D": 7}}
	s := &Service{Drivers: d, ETA: eta}
	user := &models.Location{Lat: 37.78, Lon: -122.43}
	dest := &models.Location{Lat: 37.70, Lon: -122.50}

	q, err := s.Quote(context.Background(), user, dest)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	var ids []string
	for _, m := range q.Markers {
		ids = append(ids, m.ID)
	}
	want := []string{"D", "B", "A", "C"}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, ids)
		}
	}
	if !q.Region.Contains(*user) || !q.Region.Contains(*dest) {
		t.Fatalf("region %+v misses endpoints", q.Region)
	}
}

func TestQuoteWithoutDestinationSkipsETA(t *testing.T) {
	d := &fakeDrivers{drivers: []models.Driver{{ID: "A"}, {ID: "B"}}}
	eta := &fixedTimes{}
	s := &Service{Drivers: d, ETA: eta, TopN: 1}

	q, err := s.Quote(context.Background(), &models.Location{Lat: 1, Lon: 1}, nil)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if eta.calls != 0 || len(q.Markers) != 1 || q.Markers[0].Annotated {
		t.Fatalf("unexpected quote %+v", q)
	}
	if d.nearbyCalls != 1 {
		t.Fatalf("expected nearby lookup when TopN is set")
	}
}

func TestQuoteRequiresUser(t *testing.T) {
	s := &Service{Drivers: &fakeDrivers{}, ETA: &fixedTimes{}}
	if _, err := s.Quote(context.Background(), nil, nil); !errors.Is(err, models.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestSelect(t *testing.T) {
	q := models.Quote{Markers: []models.Marker{
		{ID: "A", Annotated: true, Time: 5, Price: 2.5},
		{ID: "B", Annotated: true, Time: models.Unavailable, Price: models.Unavailable},
	}}
	if m, err := Select(q, "A"); err != nil || m.Price != 2.5 {
		t.Fatalf("unexpected select %+v %v", m, err)
	}
	if _, err := Select(q, "B"); !errors.Is(err, ErrDriverUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	if _, err := Select(q, "Z"); !errors.Is(err, ErrDriverNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
