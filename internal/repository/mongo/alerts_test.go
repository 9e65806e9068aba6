package mongo

import (
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"torrentstream/seedwarden/internal/domain"
)

func TestAlertDocRoundTrip(t *testing.T) {
	raised := time.Date(2026, 5, 4, 10, 30, 15, 250*int(time.Millisecond), time.UTC)
	alert := domain.StallAlert{
		ID:         "abc:1777890615",
		TransferID: "abc",
		Name:       "Debian ISO",
		State:      "stalledDL",
		Progress:   0.42,
		StallCount: 4,
		RaisedAt:   raised,
	}

	doc := alertToDoc(alert)
	if doc.RaisedAt != raised.UnixMilli() {
		t.Fatalf("RaisedAt = %d, want %d", doc.RaisedAt, raised.UnixMilli())
	}
	got := docToAlert(doc)
	if got != alert {
		t.Fatalf("round trip = %+v, want %+v", got, alert)
	}
}

func TestAlertDocBSONFieldNames(t *testing.T) {
	raw, err := bson.Marshal(alertToDoc(domain.StallAlert{ID: "x:1", TransferID: "x", StallCount: 4}))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m bson.M
	if err := bson.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"_id", "transferId", "name", "state", "progress", "stallCount", "raisedAt"} {
		if _, ok := m[key]; !ok {
			t.Errorf("missing bson field %q", key)
		}
	}
}

func TestDocToAlert_ZeroTimestamp(t *testing.T) {
	got := docToAlert(stallAlertDoc{ID: "a:0"})
	if !got.RaisedAt.Equal(time.UnixMilli(0)) {
		t.Fatalf("RaisedAt = %v", got.RaisedAt)
	}
}

func TestClampLimit(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, defaultListLimit},
		{-3, defaultListLimit},
		{10, 10},
		{maxListLimit + 1, maxListLimit},
	}
	for _, tt := range tests {
		if got := clampLimit(tt.in); got != tt.want {
			t.Errorf("clampLimit(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
