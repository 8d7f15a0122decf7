package httpadapter

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"townsim/internal/app/history"
	"townsim/internal/app/host"
	"townsim/internal/app/ports"
	"townsim/internal/app/status"
	"townsim/internal/domain/contract"
	"townsim/internal/domain/town"
)

func TestResponseJSONUsesSnakeCase(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	view := status.TownView{
		ID:                     "t1",
		Partition:              "overworld",
		Name:                   "Riverside",
		Position:               town.Position{X: 1, Y: 64, Z: 2},
		Population:             12,
		BoundaryRadius:         12,
		DisplayRadius:          12,
		SearchRadius:           30,
		Resources:              map[string]int{"wheat": 3},
		TouristSpawningEnabled: true,
		MaxTourists:            1,
		CreatedAt:              now,
		Version:                2,
	}
	cases := []struct {
		name    string
		payload any
		want    []string
		notWant []string
	}{
		{
			name:    "town",
			payload: view,
			want:    []string{`"boundary_radius"`, `"tourist_spawning_enabled"`, `"max_tourists"`, `"search_radius"`, `"created_at"`},
			notWant: []string{`"BoundaryRadius"`, `"TouristCount"`},
		},
		{
			name: "contract",
			payload: &contract.Contract{
				ID: "c1", Kind: contract.KindSell, IssuerTownID: "t1", ResourceID: "wheat",
				Quantity: 2, ExpiryTick: 10, State: contract.StateOpen, Price: 3, HighestBidder: "alex", CurrentBid: 4,
			},
			want:    []string{`"issuer_town_id"`, `"expiry_tick"`, `"highest_bidder"`, `"current_bid"`},
			notWant: []string{`"IssuerTownID"`},
		},
		{
			name: "history",
			payload: history.Response{
				Events: []ports.Event{{TownID: "t1", Type: "town_created", OccurredAt: now}},
				Latest: history.Summary{TownID: "t1", Population: 12},
			},
			want:    []string{`"town_id"`, `"occurred_at"`, `"total_visitors"`},
			notWant: []string{`"OccurredAt"`},
		},
		{
			name:    "agent",
			payload: host.AgentView{ID: "a1", OriginTownID: "t1", Phase: "outbound"},
			want:    []string{`"origin_town_id"`, `"expiry_ticks"`, `"ride_extended"`},
		},
	}
	for _, tc := range cases {
		b, err := json.Marshal(tc.payload)
		if err != nil {
			t.Fatalf("%s: marshal: %v", tc.name, err)
		}
		s := string(b)
		for _, key := range tc.want {
			if !strings.Contains(s, key) {
				t.Fatalf("%s: expected %s in %s", tc.name, key, s)
			}
		}
		for _, key := range tc.notWant {
			if strings.Contains(s, key) {
				t.Fatalf("%s: unexpected %s in %s", tc.name, key, s)
			}
		}
	}
}
