package geo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/ride-booking/internal/models"
)

// RedisGeo implements Directory using Redis GEO commands. Positions live in
// a GEO set; profile fields live in a hash per driver.
type RedisGeo struct {
	client       redis.UniversalClient
	key          string
	searchRadius float64 // meters
}

func NewRedisGeo(client redis.UniversalClient, key string, radiusMeters float64) *RedisGeo {
	if radiusMeters <= 0 {
		radiusMeters = 5000
	}
	return &RedisGeo{client: client, key: key, searchRadius: radiusMeters}
}

func (r *RedisGeo) Upsert(ctx context.Context, d models.Driver) error {
	if err := r.client.GeoAdd(ctx, r.key, &redis.GeoLocation{Longitude: d.Loc.Lon, Latitude: d.Loc.Lat, Name: d.ID}).Err(); err != nil {
		return fmt.Errorf("geoadd %s: %w", d.ID, err)
	}
	return r.client.HSet(ctx, MetaKey(d.ID), MetaFields(d)).Err()
}

func (r *RedisGeo) List(ctx context.Context) ([]models.Driver, error) {
	ids, err := r.client.ZRange(ctx, r.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list drivers: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	sort.Strings(ids)
	positions, err := r.client.GeoPos(ctx, r.key, ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("driver positions: %w", err)
	}
	drivers := make([]models.Driver, len(ids))
	for i, id := range ids {
		drivers[i].ID = id
		if i < len(positions) && positions[i] != nil {
			drivers[i].Loc = models.Location{Lat: positions[i].Latitude, Lon: positions[i].Longitude}
		}
	}
	return r.online(ctx, drivers)
}

func (r *RedisGeo) Nearby(ctx context.Context, loc models.Location, limit int) ([]models.Driver, error) {
	res, err := r.client.GeoRadius(ctx, r.key, loc.Lon, loc.Lat, &redis.GeoRadiusQuery{Radius: r.searchRadius, Unit: "m", WithCoord: true, WithDist: true, Count: limit, Sort: "ASC"}).Result()
	if err != nil {
		return nil, fmt.Errorf("nearby drivers: %w", err)
	}
	drivers := make([]models.Driver, len(res))
	for i, g := range res {
		drivers[i] = models.Driver{ID: g.Name, Loc: models.Location{Lat: g.Latitude, Lon: g.Longitude}}
	}
	return r.online(ctx, drivers)
}

// online fills profile fields with one pipelined round trip and keeps the
// drivers marked online. A missing hash leaves the driver offline.
func (r *RedisGeo) online(ctx context.Context, drivers []models.Driver) ([]models.Driver, error) {
	if len(drivers) == 0 {
		return nil, nil
	}
	cmds := make([]*redis.MapStringStringCmd, len(drivers))
	_, err := r.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, d := range drivers {
			cmds[i] = p.HGetAll(ctx, MetaKey(d.ID))
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("driver profiles: %w", err)
	}
	out := make([]models.Driver, 0, len(drivers))
	for i := range drivers {
		m, err := cmds[i].Result()
		if err != nil {
			continue
		}
		ApplyMeta(&drivers[i], m)
		if drivers[i].Online {
			out = append(out, drivers[i])
		}
	}
	return out, nil
}

// MetaKey is the hash holding a driver's profile fields.
func MetaKey(id string) string { return "driver:meta:" + id }

// MetaFields flattens the profile fields of d for HSET.
func MetaFields(d models.Driver) map[string]interface{} {
	return map[string]interface{}{
		"first_name":        d.FirstName,
		"last_name":         d.LastName,
		"profile_image_url": d.ProfileImageURL,
		"car_image_url":     d.CarImageURL,
		"car_seats":         strconv.Itoa(d.CarSeats),
		"rating":            strconv.FormatFloat(d.Rating, 'f', -1, 64),
		"base_rate":         strconv.FormatFloat(d.BaseRate, 'f', -1, 64),
		"online":            strconv.FormatBool(d.Online),
		"updated":           time.Now().UTC().Format(time.RFC3339),
	}
}

// ApplyMeta is the inverse of MetaFields. Unparseable values are ignored.
func ApplyMeta(d *models.Driver, m map[string]string) {
	d.FirstName = m["first_name"]
	d.LastName = m["last_name"]
	d.ProfileImageURL = m["profile_image_url"]
	d.CarImageURL = m["car_image_url"]
	if v, err := strconv.Atoi(m["car_seats"]); err == nil {
		d.CarSeats = v
	}
	if v, err := strconv.ParseFloat(m["rating"], 64); err == nil {
		d.Rating = v
	}
	if v, err := strconv.ParseFloat(m["base_rate"], 64); err == nil {
		d.BaseRate = v
	}
	d.Online = m["online"] == "true"
	if v, err := time.Parse(time.RFC3339, m["updated"]); err == nil {
		d.Updated = v
	}
}
