package util

import (
	"reflect"
	"testing"
)

func TestNormalizeSymbols(t *testing.T) {
	got := NormalizeSymbols([]string{"aapl", " msft", "AAPL", "", "ibm", "Msft"})
	want := []string{"AAPL", "MSFT", "IBM"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestSplitSymbols(t *testing.T) {
	got := SplitSymbols("aapl, msft,,ibm\tBRK.B")
	want := []string{"aapl", "msft", "ibm", "BRK.B"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
	if got := SplitSymbols(" , "); len(got) != 0 {
		t.Fatalf("expected no symbols, got %v", got)
	}
}
