// Package main implements fleetsim, a standalone virtual fleet that talks
// to a running utmd over HTTP: it registers N drones, streams telemetry,
// and picks up trajectories from committed missions.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/skyward/utm/internal/config"
	"github.com/skyward/utm/internal/sim"
	"github.com/skyward/utm/internal/uas"
	"github.com/skyward/utm/pkg/logging"
)

// httpUTM adapts the utmd REST API to the fleet's UTM interface.
type httpUTM struct {
	base   string
	client *http.Client
}

func (u *httpUTM) RegisterAircraft(reg uas.Registration, pos uas.Position) error {
	payload := map[string]any{
		"latitude":     pos.Latitude,
		"longitude":    pos.Longitude,
		"altitude":     pos.Altitude,
		"model":        reg.Model,
		"max_payload":  reg.MaxPayload,
		"max_range":    reg.MaxRange,
		"cruise_speed": reg.CruiseSpeed,
	}
	return u.post(fmt.Sprintf("%s/api/drones/%s/register", u.base, reg.DroneID), payload)
}

func (u *httpUTM) UpdateTelemetry(tel uas.Telemetry) error {
	return u.post(fmt.Sprintf("%s/api/drones/%s/telemetry", u.base, tel.DroneID), tel)
}

func (u *httpUTM) post(url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	resp, err := u.client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s: status %d", url, resp.StatusCode)
	}
	return nil
}

// missions fetches the mission list from utmd.
func (u *httpUTM) missions() ([]*uas.Mission, error) {
	resp, err := u.client.Get(u.base + "/api/missions")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var out []*uas.Mission
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

func main() {
	apiURL := flag.String("api", "http://localhost:8080", "utmd base URL")
	fleetSize := flag.Int("fleet", 5, "number of virtual drones")
	seed := flag.Int64("seed", 42, "random seed for initial positions")
	rate := flag.Float64("rate", 1.0, "telemetry update rate, Hz")
	logLevel := flag.String("log-level", "info", "log level")
	flag.Parse()

	logger := logging.New(logging.Options{Level: *logLevel})
	log := logging.Component(logger, "fleetsim")

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("configuration invalid")
	}

	utm := &httpUTM{base: *apiURL, client: &http.Client{Timeout: 5 * time.Second}}
	fleet := sim.NewFleet(*fleetSize, cfg, utm, log, *seed)

	if err := fleet.Register(); err != nil {
		log.WithError(err).Fatal("fleet registration failed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		cancel()
	}()

	// Pick up newly committed trajectories for our drones.
	assigned := make(map[string]bool)
	go func() {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				missions, err := utm.missions()
				if err != nil {
					log.WithError(err).Warn("mission poll failed")
					continue
				}
				for _, m := range missions {
					if m.Trajectory == nil || m.DroneID == "" || assigned[m.MissionID] || m.CompletedAt != nil {
						continue
					}
					assigned[m.MissionID] = true
					fleet.Assign(m.DroneID, m.Trajectory, m.PickupWaypointIndex)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	dt := 1.0 / *rate
	ticker := time.NewTicker(time.Duration(dt * float64(time.Second)))
	defer ticker.Stop()

	log.WithField("drones", *fleetSize).Info("fleet running")
	for {
		select {
		case <-ticker.C:
			fleet.Step(dt)
		case <-ctx.Done():
			return
		}
	}
}
