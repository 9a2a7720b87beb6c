package filterexpr

import (
	"strings"
	"testing"
	"time"
)

type listParams struct {
	HeartsMax     *int
	HeartsBelow   *int
	ExperienceMin *int64
	Unlimited     *bool
	StaleBefore   *time.Time
	UserPrefix    *string
	UserIDs       []string
	PrimaryKey    string
	PrimaryDesc   bool
	SecondaryKey  string
	SecondaryDesc bool
}

type fakeMsg struct {
	filter  string
	orderBy string
}

func (m fakeMsg) GetFilter() string  { return m.filter }
func (m fakeMsg) GetOrderBy() string { return m.orderBy }

var testSchema = ResourceSchema{
	Filter: map[string]FilterField{
		"hearts": {
			Kind: KindNumber,
			Ops:  map[Op]string{OpLTE: "HeartsMax", OpLT: "HeartsBelow"},
		},
		"experience": {
			Kind: KindNumber,
			Ops:  map[Op]string{OpGTE: "ExperienceMin"},
		},
		"has_unlimited_hearts": {
			Kind: KindBool,
			Ops:  map[Op]string{OpEQ: "Unlimited"},
		},
		"last_heart_update": {
			Kind: KindTimestamp,
			Ops:  map[Op]string{OpLTE: "StaleBefore"},
		},
		"user_id": {
			Kind: KindString,
			Ops:  map[Op]string{OpSW: "UserPrefix", OpIN: "UserIDs"},
		},
	},
	Order: OrderSchema{
		DefaultPrimary:     "experience",
		DefaultPrimaryDesc: true,
		FallbackKey:        "user_id",
		Fields: map[string]OrderField{
			"experience": {Expr: "experience"},
			"hearts":     {Expr: "hearts"},
			"user_id":    {Expr: "user_id"},
		},
	},
}

func TestBindLedgerFilter(t *testing.T) {
	var params listParams
	msg := fakeMsg{
		filter:  "hearts < 5 && experience >= 100 && has_unlimited_hearts == false && last_heart_update <= timestamp('2024-01-01T00:00:00Z') && user_id.startsWith('auth0|')",
		orderBy: "hearts desc",
	}
	if err := Bind(msg, &params, testSchema); err != nil {
		t.Fatalf("Bind returned error: %v", err)
	}

	if params.HeartsBelow == nil || *params.HeartsBelow != 5 {
		t.Fatalf("expected HeartsBelow 5, got %v", params.HeartsBelow)
	}
	if params.HeartsMax != nil {
		t.Fatalf("expected HeartsMax to stay nil")
	}
	if params.ExperienceMin == nil || *params.ExperienceMin != 100 {
		t.Fatalf("expected ExperienceMin 100, got %v", params.ExperienceMin)
	}
	if params.Unlimited == nil || *params.Unlimited {
		t.Fatalf("expected Unlimited false, got %v", params.Unlimited)
	}
	want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if params.StaleBefore == nil || !params.StaleBefore.Equal(want) {
		t.Fatalf("expected StaleBefore %s, got %v", want, params.StaleBefore)
	}
	if params.UserPrefix == nil || *params.UserPrefix != "auth0|" {
		t.Fatalf("expected prefix, got %v", params.UserPrefix)
	}
	if params.PrimaryKey != "hearts" || !params.PrimaryDesc {
		t.Fatalf("unexpected primary order %q desc=%v", params.PrimaryKey, params.PrimaryDesc)
	}
	if params.SecondaryKey != "user_id" || params.SecondaryDesc {
		t.Fatalf("unexpected fallback order %q desc=%v", params.SecondaryKey, params.SecondaryDesc)
	}
}

func TestBindInList(t *testing.T) {
	var params listParams
	if err := Bind(fakeMsg{filter: "user_id in ['a', 'b']"}, &params, testSchema); err != nil {
		t.Fatalf("Bind returned error: %v", err)
	}
	if strings.Join(params.UserIDs, ",") != "a,b" {
		t.Fatalf("unexpected ids %v", params.UserIDs)
	}
	if params.PrimaryKey != "experience" || !params.PrimaryDesc {
		t.Fatalf("expected default ordering, got %q", params.PrimaryKey)
	}
}

func TestBindRejectsUnsupportedExpressions(t *testing.T) {
	cases := []string{
		"hearts < 5 || experience >= 1",
		"coins == 3",
		"experience <= 10",
		"hearts < 2.5",
		"has_unlimited_hearts == 'yes'",
		"hearts <",
		"hearts != 3",
		"!(hearts < 2)",
	}
	for _, filter := range cases {
		var params listParams
		if err := Bind(fakeMsg{filter: filter}, &params, testSchema); err == nil {
			t.Fatalf("expected error for %q", filter)
		}
	}
}

func TestBindRejectsBadOrder(t *testing.T) {
	cases := []string{"coins", "hearts sideways", "hearts, hearts", "hearts, experience, user_id"}
	for _, orderBy := range cases {
		var params listParams
		if err := Bind(fakeMsg{orderBy: orderBy}, &params, testSchema); err == nil {
			t.Fatalf("expected error for order_by %q", orderBy)
		}
	}
}

func TestBindOrderTieBreakIsDeterministic(t *testing.T) {
	for i := 0; i < 20; i++ {
		var params listParams
		if err := Bind(fakeMsg{orderBy: "user_id desc"}, &params, testSchema); err != nil {
			t.Fatalf("Bind returned error: %v", err)
		}
		if params.PrimaryKey != "user_id" || !params.PrimaryDesc {
			t.Fatalf("unexpected primary %q desc=%v", params.PrimaryKey, params.PrimaryDesc)
		}
		if params.SecondaryKey != "experience" || params.SecondaryDesc {
			t.Fatalf("expected experience tie-break, got %q desc=%v", params.SecondaryKey, params.SecondaryDesc)
		}
	}
}

func TestOrderSchemaColumn(t *testing.T) {
	schema := OrderSchema{Fields: map[string]OrderField{
		"updated_at": {},
		"hearts":     {Expr: "ledgers.hearts", Nulls: "last"},
	}}
	if col, ok := schema.Column("updated_at"); !ok || col.Expr != "updated_at" {
		t.Fatalf("expected key as default expr, got %+v ok=%v", col, ok)
	}
	if col, ok := schema.Column("hearts"); !ok || col.Expr != "ledgers.hearts" {
		t.Fatalf("unexpected column %+v", col)
	}
	if _, ok := schema.Column("coins"); ok {
		t.Fatalf("expected unknown key to miss")
	}
}
