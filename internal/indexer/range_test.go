package indexer

import (
	"reflect"
	"testing"
	"time"
)

var day0 = time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)

func hours(n int) time.Time {
	return day0.Add(time.Duration(n) * time.Hour)
}

func TestSplitRange(t *testing.T) {
	got, err := SplitRange(hours(0), hours(5), 2*time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []Window{
		{From: hours(0), To: hours(2)},
		{From: hours(2), To: hours(4)},
		{From: hours(4), To: hours(5)},
	}

	if !reflect.DeepEqual(got, want) {
		t.Fatalf("windows mismatch: %+v != %+v", got, want)
	}
}

func TestSplitRangeSingle(t *testing.T) {
	got, err := SplitRange(hours(5), hours(6), 24*time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []Window{{From: hours(5), To: hours(6)}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("windows mismatch: %+v != %+v", got, want)
	}
}

func TestSplitRangeInvalid(t *testing.T) {
	if _, err := SplitRange(hours(10), hours(9), time.Hour); err == nil {
		t.Fatalf("expected error for inverted range")
	}
	if _, err := SplitRange(hours(1), hours(1), time.Hour); err == nil {
		t.Fatalf("expected error for empty range")
	}
	if _, err := SplitRange(hours(1), hours(10), 0); err == nil {
		t.Fatalf("expected error for zero window size")
	}
}
