package mapping

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/eslsoft/lingoledger/internal/entity"
)

func TestToHTTPError(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{entity.ErrInvalidUserID, http.StatusBadRequest, "invalid_user_id"},
		{fmt.Errorf("record: %w", entity.ErrInvalidExercise), http.StatusBadRequest, "invalid_exercise"},
		{entity.ErrInvalidQuery, http.StatusBadRequest, "invalid_query"},
		{entity.ErrUnknownUser, http.StatusNotFound, "unknown_user"},
		{entity.ErrUnknownExercise, http.StatusNotFound, "unknown_exercise"},
		{entity.ErrLedgerConflict, http.StatusConflict, "ledger_conflict"},
		{entity.NewStoreError("get ledger", context.DeadlineExceeded), http.StatusServiceUnavailable, "store_unavailable"},
		{errors.New("boom"), http.StatusInternalServerError, "internal"},
	}
	for _, tc := range cases {
		status, body := ToHTTPError(tc.err)
		if status != tc.status || body.Code != tc.code {
			t.Fatalf("%v: got %d/%s want %d/%s", tc.err, status, body.Code, tc.status, tc.code)
		}
	}

	_, body := ToHTTPError(entity.NewStoreError("get ledger", errors.New("dial tcp 10.0.0.1:5432")))
	if body.Message != entity.ErrStoreUnavailable.Error() {
		t.Fatalf("store errors must not leak driver details, got %q", body.Message)
	}
}

func TestToLedgerView(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	ledger := entity.NewLedger("user-1", t0)
	ledger.Hearts = 3
	ledger.Completed.Add(entity.ExerciseKindReading, "ex-42")

	view := ToLedgerView(ledger, t0.Add(90*time.Second))
	if view.MaxHearts != entity.MaxHearts || view.Hearts != 3 {
		t.Fatalf("unexpected view %+v", view)
	}
	if view.SecondsToNextHeart == nil || *view.SecondsToNextHeart != 210 {
		t.Fatalf("expected 210s to next heart, got %v", view.SecondsToNextHeart)
	}
	if ids := view.Completed["reading"]; len(ids) != 1 || ids[0] != "ex-42" {
		t.Fatalf("unexpected completions %v", view.Completed)
	}
	if _, ok := view.Completed["lesson"]; ok {
		t.Fatalf("empty kinds must be omitted")
	}

	full := entity.NewLedger("user-2", t0)
	if ToLedgerView(full, t0).SecondsToNextHeart != nil {
		t.Fatalf("full ledgers have no countdown")
	}
}
