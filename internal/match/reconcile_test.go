package match_test

import (
	"errors"
	"testing"

	"github.com/notenwerk/notenwerk/internal/match"
)

func reconcileRoster() []match.Candidate {
	return []match.Candidate{
		{EnrollmentID: 1, StudentID: "11111111", Email: "mike.mueller@uni.example", LastName: "Müller", FirstName: "Mike"},
		{EnrollmentID: 2, StudentID: "22222222", Email: "deniz.kaya@uni.example", LastName: "Kaya", FirstName: "Deniz"},
		{EnrollmentID: 3, StudentID: "33333333", Email: "mike.mueller2@uni.example", LastName: "Mueller", FirstName: "Mike"},
	}
}

func reconcileBatch() []match.Incoming {
	return []match.Incoming{
		{Artifact: match.Artifact{Ref: "a", Kind: match.KindFile, Filename: "11111111_Abgabe.pdf"}},
		{Artifact: match.Artifact{Ref: "b", Kind: match.KindEmail, SenderAddr: "deniz.kaya@uni.example"}},
		{Artifact: match.Artifact{Ref: "c", Kind: match.KindFile, Filename: "Mueller_Mike.pdf"}},
		{Artifact: match.Artifact{Ref: "d", Kind: match.KindFile, Filename: "Unrelated_Scan.pdf"}},
		{Artifact: match.Artifact{Ref: "e", Kind: match.KindEmail}, Err: errors.New("truncated message")},
		{Artifact: match.Artifact{Ref: "f", Kind: match.KindFile, Filename: "11111111_Nachreichung.pdf"}},
	}
}

func TestReconcilePartitions(t *testing.T) {
	e := match.NewEngine()
	rep := e.Reconcile(reconcileBatch(), reconcileRoster(), nil)

	if rep.Total() != 6 {
		t.Fatalf("Total = %d, want 6", rep.Total())
	}
	if len(rep.Matched) != 2 || rep.Matched[0].Artifact.Ref != "a" || rep.Matched[1].Artifact.Ref != "b" {
		t.Fatalf("Matched = %+v", rep.Matched)
	}
	// the two Mueller spellings tie on the same filename
	if len(rep.Ambiguous) != 1 || rep.Ambiguous[0].Artifact.Ref != "c" {
		t.Fatalf("Ambiguous = %+v", rep.Ambiguous)
	}
	if len(rep.Ambiguous[0].Result.Candidates) != 2 {
		t.Fatalf("ambiguous candidates = %+v", rep.Ambiguous[0].Result.Candidates)
	}
	if len(rep.Unmatched) != 1 || rep.Unmatched[0].Artifact.Ref != "d" {
		t.Fatalf("Unmatched = %+v", rep.Unmatched)
	}
	if len(rep.Failed) != 1 || rep.Failed[0].Artifact.Ref != "e" || rep.Failed[0].Err == nil {
		t.Fatalf("Failed = %+v", rep.Failed)
	}
	// second file for enrollment 1 inside the same batch is a duplicate
	if len(rep.Duplicates) != 1 || rep.Duplicates[0].Artifact.Ref != "f" {
		t.Fatalf("Duplicates = %+v", rep.Duplicates)
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	e := match.NewEngine()
	first := e.Reconcile(reconcileBatch(), reconcileRoster(), nil)

	// commit the first run, then replay the identical batch
	existing := map[int64]bool{}
	for _, it := range first.Matched {
		existing[it.Result.Candidate.EnrollmentID] = true
	}
	second := e.Reconcile(reconcileBatch(), reconcileRoster(), existing)

	if len(second.Matched) != 0 {
		t.Fatalf("replay matched = %+v", second.Matched)
	}
	if len(second.Duplicates) != 3 {
		t.Fatalf("replay duplicates = %+v", second.Duplicates)
	}
	if len(second.Ambiguous) != 1 || len(second.Unmatched) != 1 || len(second.Failed) != 1 {
		t.Fatalf("replay report = %+v", second)
	}
	if second.Total() != first.Total() {
		t.Fatalf("totals differ: %d vs %d", second.Total(), first.Total())
	}
}

func TestReconcileRespectsExisting(t *testing.T) {
	e := match.NewEngine()
	batch := []match.Incoming{
		{Artifact: match.Artifact{Ref: "a", Kind: match.KindFile, Filename: "22222222.pdf"}},
	}
	rep := e.Reconcile(batch, reconcileRoster(), map[int64]bool{2: true})
	if len(rep.Matched) != 0 || len(rep.Duplicates) != 1 {
		t.Fatalf("rep = %+v", rep)
	}
}
