package models

import "testing"

func ptr(value string) *string { return &value }

func TestHasIdentifier(t *testing.T) {
	if (Vehicle{}).HasIdentifier() {
		t.Fatalf("empty vehicle reports an identifier")
	}
	if !(Vehicle{Plate: ptr("CA1234BM")}).HasIdentifier() {
		t.Fatalf("vehicle with plate reports no identifier")
	}
	if !(Vehicle{VIN: ptr("WVWZZZ1JZ3W386752")}).HasIdentifier() {
		t.Fatalf("vehicle with vin reports no identifier")
	}
	if (Vehicle{Plate: ptr(""), VIN: ptr("")}).HasIdentifier() {
		t.Fatalf("vehicle with empty identifiers reports an identifier")
	}
}

func TestMatchesIdentifier(t *testing.T) {
	vehicle := Vehicle{Plate: ptr("CA1234BM"), VIN: ptr("WVWZZZ1JZ3W386752")}

	if !vehicle.MatchesIdentifier("CA1234BM") {
		t.Fatalf("plate match failed")
	}
	if !vehicle.MatchesIdentifier("WVWZZZ1JZ3W386752") {
		t.Fatalf("vin match failed")
	}
	if vehicle.MatchesIdentifier("ca1234bm") {
		t.Fatalf("matching is exact on normalized values, lower-case input matched")
	}
	if vehicle.MatchesIdentifier("") {
		t.Fatalf("empty identifier matched")
	}
	if (Vehicle{}).MatchesIdentifier("CA1234BM") {
		t.Fatalf("vehicle without identifiers matched")
	}
}
