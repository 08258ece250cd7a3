package core

import (
	"bloodsync/pkg/domain"
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

var refNow = time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestService(t *testing.T, opts ...ServiceOption) (*Service, *testClock) {
	t.Helper()
	clock := &testClock{now: refNow}
	opts = append([]ServiceOption{WithClock(clock)}, opts...)
	return NewInMemoryService(nil, opts...), clock
}

type logEntry struct {
	level string
	msg   string
	args  []any
}

type captureLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *captureLogger) add(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg, args: args})
}

func (l *captureLogger) Debug(msg string, args ...any) { l.add("debug", msg, args) }
func (l *captureLogger) Info(msg string, args ...any)  { l.add("info", msg, args) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.add("warn", msg, args) }
func (l *captureLogger) Error(msg string, args ...any) { l.add("error", msg, args) }

func (l *captureLogger) has(level, msg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.level == level && e.msg == msg {
			return true
		}
	}
	return false
}

var donorSeq int

func donorInput(group BloodGroup, city string) Donor {
	donorSeq++
	return Donor{
		Name:       fmt.Sprintf("Donor %d", donorSeq),
		Email:      fmt.Sprintf("donor%d@example.com", donorSeq),
		Age:        30,
		BloodGroup: group,
		WeightKg:   65,
		City:       city,
		State:      "Maharashtra",
		Pincode:    "400001",
	}
}

func mustRegisterDonor(t *testing.T, svc *Service, group BloodGroup, city string) Donor {
	t.Helper()
	d, err := svc.RegisterDonor(context.Background(), donorInput(group, city))
	if err != nil {
		t.Fatalf("register donor: %v", err)
	}
	return d
}

func mustSubmitRequest(t *testing.T, svc *Service, group BloodGroup, units int, urgency domain.Urgency) BloodRequest {
	t.Helper()
	r, err := svc.SubmitRequest(context.Background(), BloodRequest{
		PatientName:  "Patient " + string(group),
		PatientAge:   40,
		BloodGroup:   group,
		UnitsNeeded:  units,
		Urgency:      urgency,
		HospitalName: "City General Hospital",
		City:         "Mumbai",
	})
	if err != nil {
		t.Fatalf("submit request: %v", err)
	}
	return r
}

func mustAdjust(t *testing.T, svc *Service, group BloodGroup, units int, dir AdjustDirection) InventoryEntry {
	t.Helper()
	e, err := svc.AdjustInventory(context.Background(), group, units, dir)
	if err != nil {
		t.Fatalf("adjust inventory: %v", err)
	}
	return e
}

// setLastDonation rewrites a donor's history directly in the store.
func setLastDonation(t *testing.T, svc *Service, donorID string, last *time.Time) {
	t.Helper()
	_, err := svc.Store().RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.UpdateDonor(donorID, func(d *Donor) error {
			d.LastDonation = last
			return nil
		})
		return err
	})
	if err != nil {
		t.Fatalf("set last donation: %v", err)
	}
}

func daysAgo(n int) *time.Time {
	t := refNow.AddDate(0, 0, -n)
	return &t
}
