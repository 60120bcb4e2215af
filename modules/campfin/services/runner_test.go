package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRunner_RecordsSuccessfulRuns(t *testing.T) {
	books := &fakeBooks{}
	r := NewRunner(nil, time.Minute, books)

	s, err := r.Run(context.Background(), "county", RunOptions{}, func(_ context.Context, s *Summary) error {
		s.Created = 2
		s.Unchanged = 1
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, StatusOK, s.Status)
	require.Len(t, books.recorded, 1)
	require.Equal(t, "county", books.recorded[0].Kind)
	require.Equal(t, 2, books.recorded[0].Created)
}

func TestRunner_DryRunIsNotRecorded(t *testing.T) {
	books := &fakeBooks{}
	r := NewRunner(nil, time.Minute, books)

	s, err := r.Run(context.Background(), "county", RunOptions{DryRun: true}, func(context.Context, *Summary) error { return nil })
	require.NoError(t, err)
	require.Equal(t, StatusDryRun, s.Status)
	require.Empty(t, books.recorded)
}

func TestRunner_SkipsRecentImports(t *testing.T) {
	books := &fakeBooks{recent: true}
	r := NewRunner(nil, time.Minute, books)

	called := false
	s, err := r.Run(context.Background(), "county", RunOptions{MinInterval: time.Hour}, func(context.Context, *Summary) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	require.False(t, called)
	require.Equal(t, StatusSkipped, s.Status)
	require.Len(t, s.SkippedReasons, 1)
}

func TestRunner_LockedKindIsSkipped(t *testing.T) {
	r := NewRunner(lockedLocker{}, time.Minute, nil)
	s, err := r.Run(context.Background(), "filing", RunOptions{}, func(context.Context, *Summary) error {
		t.Fatal("must not run while locked")
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, StatusSkipped, s.Status)
}

func TestRunner_FailureIsReported(t *testing.T) {
	books := &fakeBooks{}
	r := NewRunner(nil, time.Minute, books)
	boom := errors.New("boom")

	s, err := r.Run(context.Background(), "county", RunOptions{}, func(context.Context, *Summary) error { return boom })
	require.ErrorIs(t, err, boom)
	require.Equal(t, StatusFailed, s.Status)
	require.Equal(t, "boom", s.Error)
	require.Empty(t, books.recorded)
}

func TestSummary_ReasonsAreCapped(t *testing.T) {
	s := newSummary("contribution", "")
	for range maxReasons + 5 {
		s.skip("bad row")
	}
	require.Equal(t, maxReasons+5, s.Skipped)
	require.Len(t, s.SkippedReasons, maxReasons)
}
