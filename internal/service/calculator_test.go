package service

import (
	"math"
	"testing"

	"cpa-distribution-system/internal/configcache"
	"cpa-distribution-system/internal/models"
)

func testSettings() configcache.HierarchySettings {
	return configcache.HierarchySettings{
		MaxLevels:     3,
		Currency:      "USD",
		MinimumPayout: 0.01,
	}
}

func TestCalculateTwoLevelUpline(t *testing.T) {
	calculator := NewDistributionCalculator()
	event := &models.CommissionEvent{EventID: "evt-1"}
	upline := []UplineEntry{
		{ParticipantID: "456", Level: 2},
		{ParticipantID: "789", Level: 3},
	}
	table := configcache.LevelPayoutTable{2: 20.00, 3: 5.00}

	records := calculator.Calculate(event, upline, table, testSettings())

	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}

	var total float64
	for _, record := range records {
		total += record.DistributedAmount
		if record.EventID != "evt-1" {
			t.Errorf("record event id = %s, want evt-1", record.EventID)
		}
		if record.Currency != "USD" {
			t.Errorf("record currency = %s, want USD", record.Currency)
		}
		if record.Status != models.DistributionStatusPending {
			t.Errorf("record status = %s, want pending", record.Status)
		}
		if record.TransactionID == "" {
			t.Error("record missing transaction id")
		}
		if record.OriginalAmount != record.DistributedAmount {
			t.Errorf("original %f != distributed %f", record.OriginalAmount, record.DistributedAmount)
		}
	}
	if math.Abs(total-25.00) > 1e-9 {
		t.Errorf("total = %f, want 25.00", total)
	}
	if records[0].ParticipantID != "456" || records[0].Level != 2 {
		t.Errorf("first record = %s level %d, want 456 level 2", records[0].ParticipantID, records[0].Level)
	}
	if records[1].ParticipantID != "789" || records[1].Level != 3 {
		t.Errorf("second record = %s level %d, want 789 level 3", records[1].ParticipantID, records[1].Level)
	}
	if records[0].TransactionID == records[1].TransactionID {
		t.Error("transaction ids must be distinct per record")
	}
}

func TestCalculateZeroAmountLevelSkipped(t *testing.T) {
	calculator := NewDistributionCalculator()
	event := &models.CommissionEvent{EventID: "evt-2"}
	upline := []UplineEntry{
		{ParticipantID: "456", Level: 2},
		{ParticipantID: "789", Level: 3},
	}
	table := configcache.LevelPayoutTable{2: 0.00, 3: 5.00}

	records := calculator.Calculate(event, upline, table, testSettings())

	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].ParticipantID != "789" || records[0].DistributedAmount != 5.00 {
		t.Errorf("got %s amount %f, want 789 amount 5.00", records[0].ParticipantID, records[0].DistributedAmount)
	}
}

func TestCalculateMissingLevelSkipped(t *testing.T) {
	calculator := NewDistributionCalculator()
	event := &models.CommissionEvent{EventID: "evt-3"}
	upline := []UplineEntry{
		{ParticipantID: "456", Level: 2},
		{ParticipantID: "789", Level: 3},
	}
	table := configcache.LevelPayoutTable{2: 20.00}

	records := calculator.Calculate(event, upline, table, testSettings())

	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].ParticipantID != "456" {
		t.Errorf("got %s, want 456", records[0].ParticipantID)
	}
}

func TestCalculateBelowMinimumPayoutDropped(t *testing.T) {
	calculator := NewDistributionCalculator()
	event := &models.CommissionEvent{EventID: "evt-4"}
	upline := []UplineEntry{
		{ParticipantID: "456", Level: 2},
	}
	table := configcache.LevelPayoutTable{2: 0.005}

	records := calculator.Calculate(event, upline, table, testSettings())

	if len(records) != 0 {
		t.Fatalf("expected sub-minimum payout to be dropped, got %d records", len(records))
	}
}

func TestCalculateBeyondMaxLevelsSkipped(t *testing.T) {
	calculator := NewDistributionCalculator()
	event := &models.CommissionEvent{EventID: "evt-5"}
	upline := []UplineEntry{
		{ParticipantID: "456", Level: 2},
		{ParticipantID: "789", Level: 3},
		{ParticipantID: "999", Level: 4},
	}
	table := configcache.LevelPayoutTable{2: 20.00, 3: 5.00, 4: 1.00}

	records := calculator.Calculate(event, upline, table, testSettings())

	if len(records) != 2 {
		t.Fatalf("expected 2 records within max levels, got %d", len(records))
	}
	for _, record := range records {
		if record.Level > 3 {
			t.Errorf("record at level %d exceeds max levels", record.Level)
		}
	}
}

func TestCalculateEmptyUpline(t *testing.T) {
	calculator := NewDistributionCalculator()
	event := &models.CommissionEvent{EventID: "evt-6"}

	records := calculator.Calculate(event, nil, configcache.LevelPayoutTable{2: 20.00}, testSettings())

	if len(records) != 0 {
		t.Fatalf("expected no records for empty upline, got %d", len(records))
	}
}
