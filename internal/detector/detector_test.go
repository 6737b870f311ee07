package detector

import (
	"testing"

	"availwatch/internal/status"
)

func TestDetectFiresOnUpgrade(t *testing.T) {
	ep, ok := Detect(status.NotAvailable, status.PreorderAvailable, 3, true)
	if !ok {
		t.Fatal("NotAvailable -> PreorderAvailable 应触发")
	}
	if ep.TriggeringStatus != status.PreorderAvailable || ep.Previous != status.NotAvailable {
		t.Fatalf("unexpected episode statuses: %+v", ep)
	}
	if ep.Count != 3 || !ep.Urgent {
		t.Fatalf("delivery options not carried: %+v", ep)
	}
	if ep.ID == "" {
		t.Fatal("episode id should be set")
	}
}

func TestDetectIgnoresRegressionAndRepeats(t *testing.T) {
	if _, ok := Detect(status.Available, status.SoldOut, 10, true); ok {
		t.Fatal("regression must not fire")
	}
	if _, ok := Detect(status.Available, status.Available, 10, true); ok {
		t.Fatal("unchanged status must not fire")
	}
	if _, ok := Detect(status.Unknown, status.NotAvailable, 10, true); ok {
		t.Fatal("NotAvailable is not an upgrade target")
	}
}

func TestDetectNormalisesCount(t *testing.T) {
	ep, ok := Detect(status.SoldOut, status.Available, 0, false)
	if !ok {
		t.Fatal("SoldOut -> Available 应触发")
	}
	if ep.Count != 1 {
		t.Fatalf("count should be clamped to 1, got %d", ep.Count)
	}
}

func TestDetectEpisodesAreDistinct(t *testing.T) {
	a, _ := Detect(status.NotAvailable, status.Available, 1, false)
	b, _ := Detect(status.NotAvailable, status.Available, 1, false)
	if a.ID == b.ID {
		t.Fatal("episode ids must be unique")
	}
}
