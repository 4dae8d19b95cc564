package tornapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"factionwatch/internal/torn"
)

func TestRankedWarDecodeAndClassify(t *testing.T) {
	now := time.Now()
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/faction/wars", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"wars":{"ranked":{
			"war_id":9001,"target":5000,"start":` + strconv.FormatInt(now.Unix()-60, 10) + `,"end":null,
			"factions":[{"id":100,"score":1200},{"id":200,"score":900}]}}}`))
	})
	mux.HandleFunc("/v2/faction/100/basic", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"basic":{"name":"Us","tag":"US","members":80,"capacity":100,"respect":5000,"rank":{"level":10,"name":"Gold","wins":4}}}`))
	})
	mux.HandleFunc("/v2/faction/200/basic", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"basic":{"name":"Them","tag":"TH","members":90,"capacity":100,"respect":6000,"rank":{"level":11,"name":"Gold","wins":5}}}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := testClient(t, srv, nil)
	war, err := c.RankedWar(context.Background(), now)
	if err != nil {
		t.Fatalf("RankedWar: %v", err)
	}
	if war.ID != 9001 || war.Target != 5000 {
		t.Fatalf("bad war header: %+v", war)
	}
	if war.Status != torn.WarActive {
		t.Fatalf("status = %q, want active (null end means ongoing)", war.Status)
	}
	if len(war.Factions) != 2 {
		t.Fatalf("expected 2 factions, got %d", len(war.Factions))
	}
	us, ok := war.Us(100)
	if !ok || us.Score != 1200 || us.Name != "Us" {
		t.Fatalf("bad our faction: %+v", us)
	}
}

func TestRankedWarNoRankedWar(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"wars":{"ranked":null}}`))
	}))
	defer srv.Close()

	c := testClient(t, srv, nil)
	_, err := c.RankedWar(context.Background(), time.Now())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMembersNormalizesMapAndList(t *testing.T) {
	payloads := map[string]string{
		"list": `{"members":[{"id":2,"name":"B","level":10},{"id":1,"name":"A","level":20,"status":{"description":"Okay"}}]}`,
		"map":  `{"members":{"2":{"id":2,"name":"B","level":10},"1":{"id":1,"name":"A","level":20,"status":"Okay"}}}`,
	}
	for shape, body := range payloads {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(body))
		}))
		c := testClient(t, srv, nil)
		members, err := c.Members(context.Background())
		srv.Close()
		if err != nil {
			t.Fatalf("%s: Members: %v", shape, err)
		}
		if len(members) != 2 {
			t.Fatalf("%s: expected 2 members, got %d", shape, len(members))
		}
		// Normalization must yield one canonical order regardless of shape.
		if members[0].ID != 1 || members[1].ID != 2 {
			t.Fatalf("%s: members not ordered by id: %+v", shape, members)
		}
	}
}

func TestMembersSkipsMalformedRecords(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"members":[{"id":1,"name":"A"},{"name":"no id"},{"id":3,"name":"C"}]}`))
	}))
	defer srv.Close()

	c := testClient(t, srv, nil)
	members, err := c.Members(context.Background())
	if err != nil {
		t.Fatalf("Members: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("expected malformed record skipped, got %d members", len(members))
	}
}

func TestUserBountiesEmptyIsNotError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := testClient(t, srv, nil)
	bounties, err := c.UserBounties(context.Background(), 42)
	if err != nil {
		t.Fatalf("UserBounties: %v", err)
	}
	if bounties != nil {
		t.Fatalf("expected nil slice, got %v", bounties)
	}
}
