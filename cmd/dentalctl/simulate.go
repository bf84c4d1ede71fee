package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hackgods/dental-appointment-scheduling/internal/appointment"
)

type simConfig struct {
	APIBaseURL  string
	Duration    time.Duration
	Workers     int
	Dentists    int
	Patients    int
	Slots       int
	CancelRatio float64
	DaysAhead   int
}

// bookedAppointment remembers who owns an appointment so it can be cancelled later.
type bookedAppointment struct {
	ID        uuid.UUID
	PatientID uuid.UUID
}

type dataPool struct {
	Dentists     []uuid.UUID
	Services     []appointment.Treatment
	Patients     []uuid.UUID
	SlotStarts   []time.Time
	mu           sync.RWMutex
	appointments []bookedAppointment
}

func (dp *dataPool) addAppointment(a bookedAppointment) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, a)
}

func (dp *dataPool) randomAppointment(rng *rand.Rand) (bookedAppointment, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return bookedAppointment{}, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

type operationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *operationMetrics) record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
	} else {
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *operationMetrics) stats() (avg, lo, hi, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	lo = latencies[0]
	hi = latencies[len(latencies)-1]
	p50 = latencies[min(len(latencies)*50/100, len(latencies)-1)]
	p95 = latencies[min(len(latencies)*95/100, len(latencies)-1)]
	return avg, lo, hi, p50, p95
}

type simulator struct {
	config  simConfig
	pool    *dataPool
	client  *http.Client
	logger  *zap.Logger
	booking operationMetrics
	cancel  operationMetrics
}

func newSimulateCmd(c *cli) *cobra.Command {
	var sc simConfig

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Fire concurrent bookings at a few contested slots, then check for overlaps",
		Long: `simulate creates fresh dentists, sends concurrent booking and cancel
requests for a small set of slots through the HTTP API, and finally reads
the stored appointments back to verify that no dentist has two live
appointments that overlap. It exits non-zero if any overlap is found.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if sc.Workers <= 0 || sc.Duration <= 0 || sc.Dentists <= 0 || sc.Slots <= 0 || sc.Patients <= 0 {
				return fmt.Errorf("workers, duration, dentists, slots and patients must be positive")
			}
			ctx := cmd.Context()

			store, err := c.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			hours, err := appointment.ParseClinicHours(c.cfg.Clinic.Timezone, c.cfg.Clinic.Open, c.cfg.Clinic.Close, c.cfg.Clinic.Days)
			if err != nil {
				return fmt.Errorf("clinic hours: %w", err)
			}

			faker := gofakeit.New(0)
			pool := &dataPool{}
			if pool.Dentists, err = seedDentists(ctx, store.Repo, faker, sc.Dentists, c.logger); err != nil {
				return fmt.Errorf("create dentists: %w", err)
			}
			if pool.Services, err = seedServices(ctx, store.Repo, faker, c.logger); err != nil {
				return fmt.Errorf("create services: %w", err)
			}
			for i := 0; i < sc.Patients; i++ {
				pool.Patients = append(pool.Patients, uuid.New())
			}

			open, ok := nextOpenDay(hours, time.Now().AddDate(0, 0, sc.DaysAhead))
			if !ok {
				return fmt.Errorf("clinic has no open day")
			}
			step := c.cfg.SlotStep
			for i := 0; i < sc.Slots; i++ {
				pool.SlotStarts = append(pool.SlotStarts, open.Add(time.Duration(i)*step))
			}

			sim := &simulator{
				config: sc,
				pool:   pool,
				client: &http.Client{Timeout: 10 * time.Second},
				logger: c.logger,
			}
			sim.run(ctx)
			sim.printReport(cmd)

			violations, err := verifyNoOverlap(ctx, store.Repo, pool.Dentists, open.Add(-time.Hour), open.Add(24*time.Hour))
			if err != nil {
				return fmt.Errorf("verify: %w", err)
			}
			if len(violations) > 0 {
				for _, v := range violations {
					fmt.Fprintln(cmd.OutOrStdout(), "OVERLAP:", v)
				}
				return fmt.Errorf("%d overlapping live appointments found", len(violations))
			}
			fmt.Fprintln(cmd.OutOrStdout(), "verification passed: no overlapping live appointments")
			return nil
		},
	}

	cmd.Flags().StringVar(&sc.APIBaseURL, "api", "http://localhost:8080", "api-server base URL")
	cmd.Flags().DurationVar(&sc.Duration, "duration", 15*time.Second, "how long to run")
	cmd.Flags().IntVar(&sc.Workers, "workers", 20, "concurrent workers")
	cmd.Flags().IntVar(&sc.Dentists, "dentists", 2, "dentists to create")
	cmd.Flags().IntVar(&sc.Patients, "patients", 200, "distinct patient identities")
	cmd.Flags().IntVar(&sc.Slots, "slots", 6, "contested slot starts per dentist")
	cmd.Flags().Float64Var(&sc.CancelRatio, "cancel-ratio", 0.2, "share of operations that cancel a booking")
	cmd.Flags().IntVar(&sc.DaysAhead, "days-ahead", 7, "book on the first open day at least this many days ahead")
	return cmd
}

func nextOpenDay(hours appointment.ClinicHours, from time.Time) (time.Time, bool) {
	for i := 0; i < 7; i++ {
		if open, _, ok := hours.Window(from.AddDate(0, 0, i)); ok {
			return open, true
		}
	}
	return time.Time{}, false
}

func (s *simulator) run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.config.Duration)
	defer cancel()

	s.logger.Info("starting simulation",
		zap.Duration("duration", s.config.Duration),
		zap.Int("workers", s.config.Workers),
	)

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.logger.Info("simulation complete")
}

func (s *simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			if rng.Float64() < s.config.CancelRatio {
				s.doCancel(ctx, rng)
			} else {
				s.doBooking(ctx, rng)
			}
		}
	}
}

func (s *simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]
	body := map[string]any{
		"dentist_id": s.pool.Dentists[rng.Intn(len(s.pool.Dentists))].String(),
		"starts_at":  s.pool.SlotStarts[rng.Intn(len(s.pool.SlotStarts))].UTC().Format(time.RFC3339),
	}
	// half of the bookings use a service so durations differ and intervals partially overlap
	if rng.Intn(2) == 0 {
		body["service_id"] = s.pool.Services[rng.Intn(len(s.pool.Services))].ID.String()
	}
	payload, _ := json.Marshal(body)

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIBaseURL+"/appointments", bytes.NewReader(payload))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	setIdentity(req, patientID, appointment.RolePatient)

	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if ctx.Err() != nil {
		return
	}

	success, conflict := false, false
	if err == nil {
		defer resp.Body.Close()
		switch resp.StatusCode {
		case http.StatusCreated:
			success = true
			var appt struct {
				ID uuid.UUID `json:"id"`
			}
			if json.NewDecoder(resp.Body).Decode(&appt) == nil && appt.ID != uuid.Nil {
				s.pool.addAppointment(bookedAppointment{ID: appt.ID, PatientID: patientID})
			}
		case http.StatusConflict:
			conflict = true
		}
	}
	s.booking.record(latency, success, conflict)
}

func (s *simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	appt, ok := s.pool.randomAppointment(rng)
	if !ok {
		return
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/appointments/%s/cancel", s.config.APIBaseURL, appt.ID), nil)
	if err != nil {
		return
	}
	setIdentity(req, appt.PatientID, appointment.RolePatient)

	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if ctx.Err() != nil {
		return
	}

	success, conflict := false, false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
		// already cancelled by an earlier pick
		conflict = resp.StatusCode == http.StatusBadRequest
	}
	s.cancel.record(latency, success, conflict)
}

func setIdentity(req *http.Request, userID uuid.UUID, role appointment.Role) {
	req.Header.Set("X-User-ID", userID.String())
	req.Header.Set("X-User-Role", string(role))
}

// verifyNoOverlap reads back every live appointment of the dentists in
// [from, to) and reports pairs that overlap.
func verifyNoOverlap(ctx context.Context, repo appointment.Repository, dentists []uuid.UUID, from, to time.Time) ([]string, error) {
	var violations []string
	for _, dentistID := range dentists {
		live, err := repo.FindOverlapping(ctx, dentistID, appointment.Interval{Start: from, End: to})
		if err != nil {
			return nil, err
		}
		for i := 1; i < len(live); i++ {
			for j := 0; j < i; j++ {
				if live[i].Interval().Overlaps(live[j].Interval()) {
					violations = append(violations, fmt.Sprintf("dentist %s: %s [%s, %s) and %s [%s, %s)",
						dentistID,
						live[j].ID, live[j].StartsAt.Format(time.RFC3339), live[j].EndsAt.Format(time.RFC3339),
						live[i].ID, live[i].StartsAt.Format(time.RFC3339), live[i].EndsAt.Format(time.RFC3339),
					))
				}
			}
		}
	}
	return violations, nil
}

func (s *simulator) printReport(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "\n"+strings.Repeat("=", 80))
	fmt.Fprintln(out, "SIMULATION REPORT")
	fmt.Fprintln(out, strings.Repeat("=", 80))
	fmt.Fprintf(out, "Duration: %s\n", s.config.Duration)
	fmt.Fprintf(out, "Workers: %d\n", s.config.Workers)
	fmt.Fprintf(out, "Dentists: %d  Slot starts: %d\n\n", s.config.Dentists, s.config.Slots)

	printOperationReport(cmd, "Booking", &s.booking)
	printOperationReport(cmd, "Cancel", &s.cancel)
}

func printOperationReport(cmd *cobra.Command, name string, om *operationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}
	out := cmd.OutOrStdout()

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, lo, hi, p50, p95 := om.stats()

	fmt.Fprintf(out, "%s:\n", name)
	fmt.Fprintf(out, "  Total: %d\n", total)
	fmt.Fprintf(out, "  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Fprintf(out, "  Rejected: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Fprintf(out, "  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Fprintf(out, "  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n\n",
		avg.Round(time.Millisecond), lo.Round(time.Millisecond), hi.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
}
