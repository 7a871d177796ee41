package sqlite_test

import (
	"context"
	"testing"

	"github.com/example/puma/internal/ports/secondary"
)

func TestVehicleRepository_ReplaceVehicles(t *testing.T) {
	engine := setupTestEngine(t)
	ctx := context.Background()

	err := engine.ReplaceVehicles(ctx, []*secondary.VehicleRecord{
		{Barcode: "12", Name: "Hilux", Location: "Yard"},
		{Barcode: "7", Name: "Cruiser", Model: "LC79"},
		{Barcode: "  ", Name: "Ghost"},
	})
	if err != nil {
		t.Fatalf("ReplaceVehicles failed: %v", err)
	}

	list, err := engine.ListVehicles(ctx)
	if err != nil {
		t.Fatalf("ListVehicles failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 vehicles, got %d", len(list))
	}
	if list[0].Name != "Cruiser" || list[1].Name != "Hilux" {
		t.Errorf("expected vehicles ordered by name, got %s, %s", list[0].Name, list[1].Name)
	}

	// A second load replaces the catalog wholesale.
	err = engine.ReplaceVehicles(ctx, []*secondary.VehicleRecord{
		{Barcode: "99", Name: "Ranger"},
		{Barcode: "99", Name: "Ranger XL"},
	})
	if err != nil {
		t.Fatalf("ReplaceVehicles failed: %v", err)
	}
	list, _ = engine.ListVehicles(ctx)
	if len(list) != 1 || list[0].Name != "Ranger XL" {
		t.Errorf("expected only the latest catalog, got %+v", list)
	}
}

func TestVehicleRepository_GetVehicle(t *testing.T) {
	engine := setupTestEngine(t)
	ctx := context.Background()

	if err := engine.ReplaceVehicles(ctx, []*secondary.VehicleRecord{
		{Barcode: "12", Name: "Hilux", Description: "Toyota Hilux 4x4", Location: "Yard"},
	}); err != nil {
		t.Fatalf("ReplaceVehicles failed: %v", err)
	}

	got, err := engine.GetVehicle(ctx, " 12 ")
	if err != nil {
		t.Fatalf("GetVehicle failed: %v", err)
	}
	if got == nil || got.Description != "Toyota Hilux 4x4" || got.Location != "Yard" {
		t.Errorf("unexpected vehicle %+v", got)
	}

	missing, err := engine.GetVehicle(ctx, "404")
	if err != nil {
		t.Fatalf("GetVehicle failed: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil, got %+v", missing)
	}
}
