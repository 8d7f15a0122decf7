package httpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	metricsinmem "townsim/internal/adapter/metrics/inmemory"
	"townsim/internal/adapter/repo/memory"
	"townsim/internal/app/history"
	"townsim/internal/app/host"
	"townsim/internal/domain/town"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/cloudwego/hertz/pkg/route/param"
)

func newTestHandler(t *testing.T) (*Handler, *host.Simulation) {
	t.Helper()
	store := memory.NewStore()
	sim := host.NewSimulation(host.DefaultConfig(), host.Stores{
		Towns:     memory.NewTownRepo(store),
		Contracts: memory.NewContractRepo(store),
		Events:    memory.NewEventRepo(store),
		Tx:        memory.NewTxManager(store),
	}, nil, nil)
	seq := 0
	sim.NewID = func() string {
		seq++
		return fmt.Sprintf("id-%03d", seq)
	}
	sim.Now = func() time.Time { return time.Unix(1700000000, 0) }
	recorder := metricsinmem.NewRecorder()
	sim.Metrics = recorder
	if err := sim.OnPartitionLoad(context.Background(), "overworld"); err != nil {
		t.Fatalf("load: %v", err)
	}
	h, err := NewHandler(sim, history.UseCase{Events: memory.NewEventRepo(store)}, recorder)
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	return h, sim
}

func commandCtx(name, body, player string) *app.RequestContext {
	ctx := &app.RequestContext{}
	ctx.Params = param.Params{{Key: "partition", Value: "overworld"}, {Key: "command", Value: name}}
	ctx.Request.SetBody([]byte(body))
	if player != "" {
		ctx.Request.Header.Set(playerIDHeader, player)
	}
	return ctx
}

func decodeBody(t *testing.T, ctx *app.RequestContext) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(ctx.Response.Body(), &body); err != nil {
		t.Fatalf("decode response: %v body=%s", err, ctx.Response.Body())
	}
	return body
}

func errorCode(t *testing.T, ctx *app.RequestContext) string {
	t.Helper()
	body := decodeBody(t, ctx)
	e, ok := body["error"].(map[string]any)
	if !ok {
		t.Fatalf("expected error body, got %v", body)
	}
	return e["code"].(string)
}

func createTown(t *testing.T, h *Handler, name string, x int) string {
	t.Helper()
	ctx := commandCtx("create_town", fmt.Sprintf(`{"name":%q,"position":{"x":%d,"y":64,"z":0}}`, name, x), "")
	h.command(context.Background(), ctx)
	if got := ctx.Response.StatusCode(); got != consts.StatusOK {
		t.Fatalf("create_town status=%d body=%s", got, ctx.Response.Body())
	}
	result := decodeBody(t, ctx)["result"].(map[string]any)
	return result["id"].(string)
}

func TestCommand_CreateTownAndQuery(t *testing.T) {
	h, _ := newTestHandler(t)
	id := createTown(t, h, "Riverside", 0)

	ctx := &app.RequestContext{}
	ctx.Params = param.Params{{Key: "partition", Value: "overworld"}, {Key: "town_id", Value: id}}
	h.town(context.Background(), ctx)
	if got, want := ctx.Response.StatusCode(), consts.StatusOK; got != want {
		t.Fatalf("status mismatch: got=%d want=%d", got, want)
	}
	body := decodeBody(t, ctx)
	if body["name"] != "Riverside" {
		t.Fatalf("expected Riverside, got %v", body["name"])
	}
	if _, ok := body["max_tourists"]; !ok {
		t.Fatalf("expected snake_case max_tourists in %v", body)
	}
}

func TestCommand_UnknownCommand(t *testing.T) {
	h, _ := newTestHandler(t)
	ctx := commandCtx("launch_rocket", `{}`, "")
	h.command(context.Background(), ctx)
	if got, want := ctx.Response.StatusCode(), consts.StatusNotFound; got != want {
		t.Fatalf("status mismatch: got=%d want=%d", got, want)
	}
	if got := errorCode(t, ctx); got != "unknown_command" {
		t.Fatalf("unexpected code %q", got)
	}
}

func TestCommand_InvalidJSON(t *testing.T) {
	h, _ := newTestHandler(t)
	ctx := commandCtx("create_town", `{"name":`, "")
	h.command(context.Background(), ctx)
	if got, want := ctx.Response.StatusCode(), consts.StatusBadRequest; got != want {
		t.Fatalf("status mismatch: got=%d want=%d", got, want)
	}
	if got := errorCode(t, ctx); got != "invalid_json" {
		t.Fatalf("unexpected code %q", got)
	}
}

func TestCommand_SchemaViolation(t *testing.T) {
	h, _ := newTestHandler(t)
	ctx := commandCtx("add_resources", `{"town_id":"t1","resource":"wheat","amount":"lots"}`, "")
	h.command(context.Background(), ctx)
	if got, want := ctx.Response.StatusCode(), consts.StatusBadRequest; got != want {
		t.Fatalf("status mismatch: got=%d want=%d", got, want)
	}
	if got := errorCode(t, ctx); got != "schema_violation" {
		t.Fatalf("unexpected code %q", got)
	}
}

func TestCommand_DomainErrorsKeepTheirCode(t *testing.T) {
	h, _ := newTestHandler(t)
	id := createTown(t, h, "Riverside", 0)

	ctx := commandCtx("remove_resources", fmt.Sprintf(`{"town_id":%q,"resource":"wheat","amount":5}`, id), "")
	h.command(context.Background(), ctx)
	if got, want := ctx.Response.StatusCode(), consts.StatusBadRequest; got != want {
		t.Fatalf("status mismatch: got=%d want=%d body=%s", got, want, ctx.Response.Body())
	}
	if got := errorCode(t, ctx); got != town.CodeInsufficientResources {
		t.Fatalf("unexpected code %q", got)
	}

	ctx = commandCtx("expand_population", fmt.Sprintf(`{"town_id":%q,"amount":20}`, id), "")
	h.command(context.Background(), ctx)
	if got := ctx.Response.StatusCode(); got != consts.StatusOK {
		t.Fatalf("expand status=%d body=%s", got, ctx.Response.Body())
	}

	ctx = commandCtx("create_town", `{"name":"Neighbour","position":{"x":5,"y":64,"z":0}}`, "")
	h.command(context.Background(), ctx)
	if got, want := ctx.Response.StatusCode(), consts.StatusConflict; got != want {
		t.Fatalf("status mismatch: got=%d want=%d", got, want)
	}
	if got := errorCode(t, ctx); got != town.CodeBoundaryConflict {
		t.Fatalf("expected boundary conflict, got %q", got)
	}
}

func TestCommand_PartitionNotLoaded(t *testing.T) {
	h, _ := newTestHandler(t)
	ctx := commandCtx("create_town", `{"name":"Ash","position":{"x":0,"y":64,"z":0}}`, "")
	ctx.Params = param.Params{{Key: "partition", Value: "nether"}, {Key: "command", Value: "create_town"}}
	h.command(context.Background(), ctx)
	if got := errorCode(t, ctx); got != town.CodePartitionNotLoaded {
		t.Fatalf("unexpected code %q", got)
	}
}

func TestKPI_CountsCommands(t *testing.T) {
	h, _ := newTestHandler(t)
	createTown(t, h, "Riverside", 0)

	ctx := &app.RequestContext{}
	h.kpi(context.Background(), ctx)
	body := decodeBody(t, ctx)
	if body["command_total"] != float64(1) || body["command_success"] != float64(1) {
		t.Fatalf("unexpected kpi body %v", body)
	}
}

func TestWriteError_Mapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{town.Validation(town.CodeInvalidName, "bad"), consts.StatusBadRequest, town.CodeInvalidName},
		{town.NotFound(town.CodeTownNotFound, "gone"), consts.StatusNotFound, town.CodeTownNotFound},
		{town.Conflict(town.CodeBoundaryConflict, "overlap"), consts.StatusConflict, town.CodeBoundaryConflict},
		{town.State(town.CodeRateLimited, "slow down"), consts.StatusTooManyRequests, town.CodeRateLimited},
		{town.Internal("corrupt"), consts.StatusInternalServerError, town.CodeTownError},
		{fmt.Errorf("boom"), consts.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		ctx := &app.RequestContext{}
		writeError(ctx, tc.err)
		if got := ctx.Response.StatusCode(); got != tc.status {
			t.Fatalf("%v: status got=%d want=%d", tc.err, got, tc.status)
		}
		if got := errorCode(t, ctx); got != tc.code {
			t.Fatalf("%v: code got=%q want=%q", tc.err, got, tc.code)
		}
	}
}

func TestCompileCommandSchemas_CoversEveryCommand(t *testing.T) {
	names := make([]string, 0, len(commandDecoders))
	for name := range commandDecoders {
		names = append(names, name)
	}
	schemas, err := compileCommandSchemas(names)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if len(schemas) != len(commandDecoders) {
		t.Fatalf("expected %d schemas, got %d", len(commandDecoders), len(schemas))
	}
	if err := schemas.validate("post_sell", []byte(`{"town_id":"t","resource":"wheat","quantity":2,"price":3}`)); err != nil {
		t.Fatalf("expected valid post_sell, got %v", err)
	}
	if err := schemas.validate("post_sell", []byte(`{"town_id":"t","resource":"wheat","quantity":0,"price":3}`)); err == nil {
		t.Fatalf("expected zero quantity to be rejected")
	}
}

func TestCommand_ZeroAmountReachesDomainValidation(t *testing.T) {
	h, _ := newTestHandler(t)
	id := createTown(t, h, "Millbrook", 0)
	ctx := commandCtx("add_resources", fmt.Sprintf(`{"town_id":%q,"resource":"wheat","amount":0}`, id), "")
	h.command(context.Background(), ctx)
	if got, want := ctx.Response.StatusCode(), consts.StatusBadRequest; got != want {
		t.Fatalf("status mismatch: got=%d want=%d", got, want)
	}
	if got := errorCode(t, ctx); got != town.CodeInvalidAmount {
		t.Fatalf("expected %s from the town service, got %q", town.CodeInvalidAmount, got)
	}
}
