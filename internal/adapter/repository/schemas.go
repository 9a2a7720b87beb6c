package repository

import "github.com/eslsoft/lingoledger/pkg/filterexpr"

var listLedgersSchema = filterexpr.ResourceSchema{
	Filter: map[string]filterexpr.FilterField{
		"hearts": {
			Kind: filterexpr.KindNumber,
			Ops: map[filterexpr.Op]string{
				filterexpr.OpEQ:  "Hearts",
				filterexpr.OpLT:  "HeartsBelow",
				filterexpr.OpLTE: "HeartsMax",
				filterexpr.OpGT:  "HeartsAbove",
				filterexpr.OpGTE: "HeartsMin",
			},
		},
		"experience": {
			Kind: filterexpr.KindNumber,
			Ops: map[filterexpr.Op]string{
				filterexpr.OpGTE: "ExperienceMin",
				filterexpr.OpLTE: "ExperienceMax",
			},
		},
		"has_unlimited_hearts": {
			Kind: filterexpr.KindBool,
			Ops:  map[filterexpr.Op]string{filterexpr.OpEQ: "Unlimited"},
		},
		"last_heart_update": {
			Kind: filterexpr.KindTimestamp,
			Ops: map[filterexpr.Op]string{
				filterexpr.OpLTE: "HeartUpdateBefore",
				filterexpr.OpGTE: "HeartUpdateAfter",
			},
		},
		"user_id": {
			Kind: filterexpr.KindString,
			Ops: map[filterexpr.Op]string{
				filterexpr.OpEQ: "UserID",
				filterexpr.OpSW: "UserPrefix",
				filterexpr.OpIN: "UserIDs",
			},
		},
	},
	Order: filterexpr.OrderSchema{
		DefaultPrimary:     "experience",
		DefaultPrimaryDesc: true,
		FallbackKey:        "user_id",
		FallbackDesc:       false,
		Fields: map[string]filterexpr.OrderField{
			"experience": {Expr: "experience"},
			"hearts":     {Expr: "hearts"},
			"updated_at": {Expr: "updated_at"},
			"created_at": {Expr: "created_at"},
			"user_id":    {Expr: "user_id"},
		},
	},
}
