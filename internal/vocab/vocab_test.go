package vocab

import "testing"

func TestSize(t *testing.T) {
	if Size != 15 {
		t.Fatalf("expected 15 classes, got %d", Size)
	}
	if len(Labels()) != Size || len(Classes()) != Size {
		t.Fatalf("Labels/Classes length mismatch with Size")
	}
}

func TestClasses_MatchLabels(t *testing.T) {
	labels := Labels()
	seen := make(map[string]bool)
	for i, c := range Classes() {
		if c.Name != labels[i] {
			t.Errorf("index %d: class %q != label %q", i, c.Name, labels[i])
		}
		if c.Emoji == "" {
			t.Errorf("class %q has empty emoji", c.Name)
		}
		if seen[c.Name] {
			t.Errorf("duplicate label %q", c.Name)
		}
		seen[c.Name] = true
	}
}

func TestLabel(t *testing.T) {
	if l, ok := Label(0); !ok || l != "Bean" {
		t.Fatalf("Label(0) = %q, %v", l, ok)
	}
	if l, ok := Label(14); !ok || l != "Tomato" {
		t.Fatalf("Label(14) = %q, %v", l, ok)
	}
	for _, idx := range []int{-1, 15, 100} {
		if _, ok := Label(idx); ok {
			t.Errorf("Label(%d) should be out of range", idx)
		}
	}
}

func TestSymbol(t *testing.T) {
	if Symbol("Carrot") != "🥕" {
		t.Errorf("unexpected carrot symbol %q", Symbol("Carrot"))
	}
	// Shared symbols are allowed.
	if Symbol("Broccoli") != Symbol("Cauliflower") {
		t.Error("expected Broccoli and Cauliflower to share a symbol")
	}
	if Symbol("Durian") != DefaultSymbol {
		t.Errorf("expected fallback for unknown label, got %q", Symbol("Durian"))
	}
}

func TestLabels_ReturnsCopy(t *testing.T) {
	l := Labels()
	l[0] = "Mutated"
	if got, _ := Label(0); got != "Bean" {
		t.Fatalf("vocabulary mutated through Labels(): %q", got)
	}
	c := Classes()
	c[0].Name = "Mutated"
	if Classes()[0].Name != "Bean" {
		t.Fatal("vocabulary mutated through Classes()")
	}
}
