package models

import (
	"errors"
	"math"
	"time"
)

// ErrInvalidInput is returned when a mandatory field (usually a location) is missing.
var ErrInvalidInput = errors.New("invalid input")

// Unavailable marks a driver whose ETA could not be computed.
const Unavailable = -1.0

type Location struct {
	Lat float64 `json:"latitude"`
	Lon float64 `json:"longitude"`
}

// Driver is a candidate returned by the drivers listing.
type Driver struct {
	ID              string    `json:"id"`
	FirstName       string    `json:"first_name"`
	LastName        string    `json:"last_name"`
	ProfileImageURL string    `json:"profile_image_url,omitempty"`
	CarImageURL     string    `json:"car_image_url,omitempty"`
	CarSeats        int       `json:"car_seats,omitempty"`
	Rating          float64   `json:"rating"`              // 0..5
	BaseRate        float64   `json:"base_rate,omitempty"` // price per minute
	Loc             Location  `json:"loc"`
	Online          bool      `json:"online"`
	Updated         time.Time `json:"updated"`
}

// Marker is a renderable driver point. Time and Price are set by the ETA step.
type Marker struct {
	ID              string   `json:"id"`
	Loc             Location `json:"loc"`
	Title           string   `json:"title"`
	FirstName       string   `json:"first_name,omitempty"`
	LastName        string   `json:"last_name,omitempty"`
	ProfileImageURL string   `json:"profile_image_url,omitempty"`
	CarImageURL     string   `json:"car_image_url,omitempty"`
	CarSeats        int      `json:"car_seats,omitempty"`
	Rating          float64  `json:"rating"`
	BaseRate        float64  `json:"base_rate,omitempty"`
	Time            float64  `json:"time"`  // minutes
	Price           float64  `json:"price"` // fare in currency units
	Annotated       bool     `json:"annotated"`
}

// Reachable reports whether the ETA step produced a usable estimate.
func (m Marker) Reachable() bool { return m.Annotated && m.Time >= 0 }

type Region struct {
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	LatitudeDelta  float64 `json:"latitude_delta"`
	LongitudeDelta float64 `json:"longitude_delta"`
}

// Contains reports whether loc lies inside the region's bounding box. The
// box may straddle the antimeridian.
func (r Region) Contains(loc Location) bool {
	halfLat, halfLon := r.LatitudeDelta/2, r.LongitudeDelta/2
	return loc.Lat >= r.Latitude-halfLat && loc.Lat <= r.Latitude+halfLat &&
		math.Abs(WrapLongitude(loc.Lon-r.Longitude)) <= halfLon
}

// WrapLongitude maps lon into [-180, 180).
func WrapLongitude(lon float64) float64 {
	return lon - 360*math.Floor((lon+180)/360)
}

// Quote is what the map screen renders: viewport plus annotated driver markers.
type Quote struct {
	Region  Region   `json:"region"`
	Markers []Marker `json:"markers"`
}

const (
	PaymentStatusPaid    = "paid"
	PaymentStatusPending = "pending"
)

type Ride struct {
	ID                   string    `json:"ride_id"`
	OriginAddress        string    `json:"origin_address"`
	DestinationAddress   string    `json:"destination_address"`
	OriginLatitude       float64   `json:"origin_latitude"`
	OriginLongitude      float64   `json:"origin_longitude"`
	DestinationLatitude  float64   `json:"destination_latitude"`
	DestinationLongitude float64   `json:"destination_longitude"`
	RideTime             int       `json:"ride_time"`  // minutes
	FarePrice            int64     `json:"fare_price"` // cents
	PaymentStatus        string    `json:"payment_status"`
	DriverID             string    `json:"driver_id"`
	UserID               string    `json:"user_id"`
	CreatedAt            time.Time `json:"created_at"`
}

// Validate checks the fields every persisted ride must carry.
func (r *Ride) Validate() error {
	switch {
	case r.DriverID == "":
		return errors.New("driver_id is required")
	case r.UserID == "":
		return errors.New("user_id is required")
	case r.FarePrice <= 0:
		return errors.New("fare_price must be positive")
	case r.PaymentStatus == "":
		return errors.New("payment_status is required")
	}
	return nil
}

// RideBooked is published once a ride record exists.
type RideBooked struct {
	RideID    string    `json:"ride_id"`
	DriverID  string    `json:"driver_id"`
	UserID    string    `json:"user_id"`
	FarePrice int64     `json:"fare_price"`
	Origin    Location  `json:"origin"`
	Dest      Location  `json:"destination"`
	BookedAt  time.Time `json:"booked_at"`
}

// BookedEvent derives the event payload from a persisted ride.
func (r *Ride) BookedEvent() RideBooked {
	return RideBooked{
		RideID:    r.ID,
		DriverID:  r.DriverID,
		UserID:    r.UserID,
		FarePrice: r.FarePrice,
		Origin:    Location{Lat: r.OriginLatitude, Lon: r.OriginLongitude},
		Dest:      Location{Lat: r.DestinationLatitude, Lon: r.DestinationLongitude},
		BookedAt:  r.CreatedAt,
	}
}
