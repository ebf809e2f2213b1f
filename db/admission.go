package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrBusy is returned by Acquire while another request holds the lease
var ErrBusy = errors.New("a request is already in flight")

// CooldownError is returned by Acquire when the previous submission is too recent
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("cooldown: retry in %s", e.Remaining.Round(time.Second))
}

// admission is the shared submission state of every client on one store.
// A single LastSubmission serves both verification and chat.
type admission struct {
	LastSubmission int64  `json:"lastSubmission"` // unix ms
	Lease          string `json:"lease,omitempty"`
	LeaseExpires   int64  `json:"leaseExpires,omitempty"` // unix ms
}

func decodeAdmission(data []byte) admission {
	var a admission
	if len(data) > 0 && json.Unmarshal(data, &a) != nil {
		// A corrupt record must not lock every client out
		return admission{}
	}
	return a
}

// Acquire admits one submission at now. It fails with ErrBusy while an
// unexpired lease is held and with *CooldownError when less than cooldown
// has passed since the previous submission of any kind. On success the
// submission time is charged and the returned lease is held for ttl or
// until Release.
func (s *Store) Acquire(ctx context.Context, now time.Time, cooldown, ttl time.Duration) (string, error) {
	lease := uuid.NewString()
	nowMs := now.UnixMilli()

	err := s.kv.Update(ctx, keyAdmission, func(old []byte) ([]byte, error) {
		a := decodeAdmission(old)
		if a.Lease != "" && a.LeaseExpires > nowMs {
			return nil, ErrBusy
		}
		if a.LastSubmission > 0 {
			elapsed := time.Duration(nowMs-a.LastSubmission) * time.Millisecond
			if elapsed >= 0 && elapsed < cooldown {
				return nil, &CooldownError{Remaining: cooldown - elapsed}
			}
		}

		a.LastSubmission = nowMs
		a.Lease = lease
		a.LeaseExpires = now.Add(ttl).UnixMilli()
		return json.Marshal(a)
	})
	if err != nil {
		var ce *CooldownError
		if errors.Is(err, ErrBusy) || errors.As(err, &ce) {
			return "", err
		}
		return "", fmt.Errorf("failed to acquire submission lease: %w", err)
	}
	return lease, nil
}

// Release gives up lease. A lease that has since been replaced is left alone.
func (s *Store) Release(ctx context.Context, lease string) error {
	if lease == "" {
		return nil
	}
	err := s.kv.Update(ctx, keyAdmission, func(old []byte) ([]byte, error) {
		a := decodeAdmission(old)
		if a.Lease == lease {
			a.Lease = ""
			a.LeaseExpires = 0
		}
		return json.Marshal(a)
	})
	if err != nil {
		return fmt.Errorf("failed to release submission lease: %w", err)
	}
	return nil
}

// LastSubmission returns when the last submission was admitted, or the zero
// time if there was none
func (s *Store) LastSubmission(ctx context.Context) (time.Time, error) {
	data, _, err := s.kv.Get(ctx, keyAdmission)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read last submission: %w", err)
	}
	a := decodeAdmission(data)
	if a.LastSubmission == 0 {
		return time.Time{}, nil
	}
	return time.UnixMilli(a.LastSubmission), nil
}
