package registry

import "testing"

func TestInprocSessionIsDeterministic(t *testing.T) {
	artifact := []byte("fake-model-weights")
	a := newInprocSession(artifact, 2)
	b := newInprocSession(artifact, 2)

	input := []float64{1.0, 2.0, 3.0}
	outA, err := a.Predict(input)
	if err != nil {
		t.Fatalf("predict a: %v", err)
	}
	outB, err := b.Predict(input)
	if err != nil {
		t.Fatalf("predict b: %v", err)
	}
	for i := range outA {
		if outA[i] != outB[i] {
			t.Fatalf("expected deterministic output for same artifact, got %v vs %v", outA, outB)
		}
	}
}

func TestInprocSessionDiffersAcrossArtifacts(t *testing.T) {
	a := newInprocSession([]byte("artifact-one"), 1)
	b := newInprocSession([]byte("artifact-two"), 1)

	input := []float64{1.0, 2.0, 3.0}
	outA, _ := a.Predict(input)
	outB, _ := b.Predict(input)
	if outA[0] == outB[0] {
		t.Fatalf("expected different artifacts to produce different predictions")
	}
}
