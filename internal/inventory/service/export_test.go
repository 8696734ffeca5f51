package service

import "time"

// SetClock replaces the wall clock used by the scheduler
func (s *SnapshotScheduler) SetClock(now func() time.Time) { s.now = now }

// SetClock replaces the wall clock used to reject future-dated entries
func (s *LedgerService) SetClock(now func() time.Time) { s.now = now }
