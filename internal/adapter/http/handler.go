package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"townsim/internal/app/history"
	"townsim/internal/app/host"
	"townsim/internal/app/ports"
	"townsim/internal/app/status"
	"townsim/internal/domain/contract"
	"townsim/internal/domain/town"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

const playerIDHeader = "X-Player-ID"

type Handler struct {
	Sim       *host.Simulation
	HistoryUC history.UseCase
	KPI       kpiSnapshotProvider
	// AllowedOrigins limits CORS to these origins; empty allows any.
	AllowedOrigins []string

	schemas commandSchemas
}

// NewHandler compiles the command body schemas once.
func NewHandler(sim *host.Simulation, historyUC history.UseCase, kpi kpiSnapshotProvider) (*Handler, error) {
	names := make([]string, 0, len(commandDecoders))
	for name := range commandDecoders {
		names = append(names, name)
	}
	schemas, err := compileCommandSchemas(names)
	if err != nil {
		return nil, err
	}
	return &Handler{Sim: sim, HistoryUC: historyUC, KPI: kpi, schemas: schemas}, nil
}

func (h *Handler) RegisterRoutes(s *server.Hertz) {
	s.Use(corsMiddleware(newCORSPolicy(h.AllowedOrigins)))

	p := s.Group("/api/partitions/:partition")
	p.POST("/load", h.loadPartition)
	p.POST("/unload", h.unloadPartition)
	p.POST("/commands/:command", h.command)

	p.GET("/towns", h.towns)
	p.GET("/towns/:town_id", h.town)
	p.GET("/towns/:town_id/platforms", h.platforms)
	p.GET("/towns/:town_id/payments", h.payments)
	p.GET("/town-at", h.townAt)
	p.GET("/boundaries", h.boundaries)
	p.GET("/contracts", h.contracts)
	p.GET("/contracts/:contract_id", h.contract)
	p.GET("/agents", h.agents)

	p.POST("/agents/:agent_id/position", h.agentPosition)
	p.POST("/agents/:agent_id/boarded", h.agentBoarded)
	p.POST("/agents/:agent_id/died", h.agentDied)
	p.POST("/agents/:agent_id/arrived", h.agentArrived)
	p.POST("/players/:player/position", h.playerPosition)
	p.POST("/players/:player/click/:town_id", h.townClicked)

	s.GET("/api/towns/:town_id/history", h.history)
	s.GET("/ops/kpi", h.kpi)
	s.GET("/healthz", func(_ context.Context, ctx *app.RequestContext) {
		ctx.JSON(consts.StatusOK, map[string]any{"ok": true, "tick": h.Sim.Tick(), "partitions": h.Sim.Partitions()})
	})
}

type commandDecoder func(body []byte, env host.Envelope) (host.Command, error)

type envelopeSetter[T any] interface {
	*T
	SetMeta(host.Envelope)
}

func decodeCommand[T host.Command, P envelopeSetter[T]](body []byte, env host.Envelope) (host.Command, error) {
	var c T
	if len(body) > 0 {
		if err := json.Unmarshal(body, &c); err != nil {
			return nil, err
		}
	}
	P(&c).SetMeta(env)
	return c, nil
}

var commandDecoders = map[string]commandDecoder{
	"create_town":          decodeCommand[host.CreateTown],
	"set_name":             decodeCommand[host.SetName],
	"set_search_radius":    decodeCommand[host.SetSearchRadius],
	"set_spawning":         decodeCommand[host.SetSpawning],
	"add_resources":        decodeCommand[host.AddResources],
	"remove_resources":     decodeCommand[host.RemoveResources],
	"trade_resource":       decodeCommand[host.TradeResource],
	"expand_population":    decodeCommand[host.ExpandPopulation],
	"deposit_storage":      decodeCommand[host.DepositStorage],
	"withdraw_storage":     decodeCommand[host.WithdrawStorage],
	"add_platform":         decodeCommand[host.AddPlatform],
	"remove_platform":      decodeCommand[host.RemovePlatform],
	"set_platform_enabled": decodeCommand[host.SetPlatformEnabled],
	"post_sell":            decodeCommand[host.PostSell],
	"post_courier":         decodeCommand[host.PostCourier],
	"bid_contract":         decodeCommand[host.BidContract],
	"accept_contract":      decodeCommand[host.AcceptContract],
	"complete_contract":    decodeCommand[host.CompleteContract],
	"reclaim_contract":     decodeCommand[host.ReclaimContract],
	"claim_payment":        decodeCommand[host.ClaimPayment],
	"remove_town":          decodeCommand[host.RemoveTown],
	"spawn_tourist":        decodeCommand[host.SpawnTourist],
}

func (h *Handler) loadPartition(c context.Context, ctx *app.RequestContext) {
	partition := ctx.Param("partition")
	if err := h.Sim.OnPartitionLoad(c, partition); err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, map[string]any{"partition": partition, "loaded": true})
}

func (h *Handler) unloadPartition(c context.Context, ctx *app.RequestContext) {
	partition := ctx.Param("partition")
	if err := h.Sim.OnPartitionUnload(c, partition); err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, map[string]any{"partition": partition, "loaded": false})
}

func (h *Handler) command(c context.Context, ctx *app.RequestContext) {
	name := ctx.Param("command")
	decode, ok := commandDecoders[name]
	if !ok {
		writeErrorBody(ctx, consts.StatusNotFound, "unknown_command", "unknown command "+name)
		return
	}
	body := ctx.Request.Body()
	if len(body) == 0 {
		body = []byte("{}")
	}
	if !json.Valid(body) {
		writeErrorBody(ctx, consts.StatusBadRequest, "invalid_json", "invalid json")
		return
	}
	if err := h.schemas.validate(name, body); err != nil {
		writeErrorBody(ctx, consts.StatusBadRequest, "schema_violation", err.Error())
		return
	}
	cmd, err := decode(body, host.Envelope{
		Partition: ctx.Param("partition"),
		Actor:     strings.TrimSpace(string(ctx.GetHeader(playerIDHeader))),
	})
	if err != nil {
		writeErrorBody(ctx, consts.StatusBadRequest, "invalid_json", "invalid json")
		return
	}

	var result any
	if string(ctx.Query("queued")) == "true" {
		select {
		case r := <-h.Sim.Submit(c, cmd):
			result, err = r.Value, r.Err
		case <-c.Done():
			err = c.Err()
		}
	} else {
		result, err = h.Sim.Dispatch(c, cmd)
	}
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, map[string]any{"command": name, "result": result})
}

func (h *Handler) towns(_ context.Context, ctx *app.RequestContext) {
	views, err := h.Sim.Towns(ctx.Param("partition"))
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, map[string]any{"towns": views})
}

func (h *Handler) town(_ context.Context, ctx *app.RequestContext) {
	view, err := h.Sim.Town(status.TownRequest{
		Partition: ctx.Param("partition"),
		TownID:    ctx.Param("town_id"),
		Player:    string(ctx.Query("player")),
	})
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, view)
}

func (h *Handler) platforms(_ context.Context, ctx *app.RequestContext) {
	enabledOnly := string(ctx.Query("enabled")) == "true"
	out, err := h.Sim.Platforms(ctx.Param("partition"), ctx.Param("town_id"), enabledOnly)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, map[string]any{"platforms": out})
}

func (h *Handler) payments(_ context.Context, ctx *app.RequestContext) {
	out, err := h.Sim.Payments(ctx.Param("partition"), ctx.Param("town_id"))
	if err != nil {
		writeError(ctx, err)
		return
	}
	if player := string(ctx.Query("player")); player != "" {
		filtered := out[:0]
		for _, p := range out {
			if p.Recipient == player {
				filtered = append(filtered, p)
			}
		}
		out = filtered
	}
	ctx.JSON(consts.StatusOK, map[string]any{"payments": out})
}

func (h *Handler) townAt(_ context.Context, ctx *app.RequestContext) {
	pos, err := queryPosition(ctx)
	if err != nil {
		writeError(ctx, err)
		return
	}
	view, ok, err := h.Sim.TownAt(ctx.Param("partition"), pos)
	if err != nil {
		writeError(ctx, err)
		return
	}
	if !ok {
		ctx.JSON(consts.StatusOK, map[string]any{"town": nil})
		return
	}
	ctx.JSON(consts.StatusOK, map[string]any{"town": view})
}

func (h *Handler) boundaries(_ context.Context, ctx *app.RequestContext) {
	pos, err := queryPosition(ctx)
	if err != nil {
		writeError(ctx, err)
		return
	}
	radius, err := queryInt(ctx, "radius", 0)
	if err != nil {
		writeError(ctx, err)
		return
	}
	out, err := h.Sim.BoundarySync(status.BoundaryRequest{
		Partition: ctx.Param("partition"),
		Center:    pos,
		Radius:    radius,
	})
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, map[string]any{"boundaries": out})
}

func (h *Handler) contracts(_ context.Context, ctx *app.RequestContext) {
	kind := contract.NormalizeKind(string(ctx.Query("kind")))
	out, err := h.Sim.Contracts(ctx.Param("partition"), kind)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, map[string]any{"contracts": out})
}

func (h *Handler) contract(_ context.Context, ctx *app.RequestContext) {
	out, err := h.Sim.Contract(ctx.Param("partition"), ctx.Param("contract_id"))
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, out)
}

func (h *Handler) agents(_ context.Context, ctx *app.RequestContext) {
	out, err := h.Sim.Agents(ctx.Param("partition"))
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, map[string]any{"agents": out})
}

type positionRequest struct {
	Position town.Vec `json:"position"`
}

type diedRequest struct {
	Cause string `json:"cause"`
}

type arrivedRequest struct {
	TownID string `json:"town_id"`
}

type playerPositionRequest struct {
	Position town.Position `json:"position"`
}

func (h *Handler) agentPosition(_ context.Context, ctx *app.RequestContext) {
	var body positionRequest
	if err := decodeJSON(ctx, &body); err != nil {
		writeErrorBody(ctx, consts.StatusBadRequest, "invalid_json", "invalid json")
		return
	}
	if err := h.Sim.OnAgentPositionChanged(ctx.Param("partition"), ctx.Param("agent_id"), body.Position); err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) agentBoarded(_ context.Context, ctx *app.RequestContext) {
	extended, err := h.Sim.OnAgentBoarded(ctx.Param("partition"), ctx.Param("agent_id"))
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, map[string]any{"extended": extended})
}

func (h *Handler) agentDied(c context.Context, ctx *app.RequestContext) {
	var body diedRequest
	if err := decodeJSON(ctx, &body); err != nil {
		writeErrorBody(ctx, consts.StatusBadRequest, "invalid_json", "invalid json")
		return
	}
	if err := h.Sim.OnAgentDied(c, ctx.Param("partition"), ctx.Param("agent_id"), body.Cause); err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) agentArrived(c context.Context, ctx *app.RequestContext) {
	var body arrivedRequest
	if err := decodeJSON(ctx, &body); err != nil {
		writeErrorBody(ctx, consts.StatusBadRequest, "invalid_json", "invalid json")
		return
	}
	counted, err := h.Sim.OnAgentArrived(c, ctx.Param("partition"), ctx.Param("agent_id"), body.TownID)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, map[string]any{"counted": counted})
}

func (h *Handler) playerPosition(c context.Context, ctx *app.RequestContext) {
	var body playerPositionRequest
	if err := decodeJSON(ctx, &body); err != nil {
		writeErrorBody(ctx, consts.StatusBadRequest, "invalid_json", "invalid json")
		return
	}
	if err := h.Sim.OnPlayerPositionChanged(c, ctx.Param("partition"), ctx.Param("player"), body.Position); err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) townClicked(c context.Context, ctx *app.RequestContext) {
	view, double, err := h.Sim.OnTownClicked(c, ctx.Param("partition"), ctx.Param("player"), ctx.Param("town_id"))
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, map[string]any{"town": view, "double_click": double})
}

func (h *Handler) history(c context.Context, ctx *app.RequestContext) {
	limit, _ := strconv.Atoi(string(ctx.Query("limit")))
	occurredFrom, _ := strconv.ParseInt(string(ctx.Query("occurred_from")), 10, 64)
	occurredTo, _ := strconv.ParseInt(string(ctx.Query("occurred_to")), 10, 64)
	resp, err := h.HistoryUC.Execute(c, history.Request{
		TownID:       ctx.Param("town_id"),
		Limit:        limit,
		OccurredFrom: occurredFrom,
		OccurredTo:   occurredTo,
	})
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, resp)
}

type kpiSnapshotProvider interface {
	SnapshotAny() any
}

func (h *Handler) kpi(_ context.Context, ctx *app.RequestContext) {
	if h.KPI == nil {
		writeErrorBody(ctx, consts.StatusNotFound, "not_configured", "kpi provider not configured")
		return
	}
	ctx.JSON(consts.StatusOK, h.KPI.SnapshotAny())
}

func decodeJSON(ctx *app.RequestContext, out any) error {
	body := ctx.Request.Body()
	if len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, out)
}

func queryPosition(ctx *app.RequestContext) (town.Position, error) {
	var pos town.Position
	var err error
	if pos.X, err = queryInt(ctx, "x", 0); err != nil {
		return pos, err
	}
	if pos.Y, err = queryInt(ctx, "y", 0); err != nil {
		return pos, err
	}
	if pos.Z, err = queryInt(ctx, "z", 0); err != nil {
		return pos, err
	}
	return pos, nil
}

func queryInt(ctx *app.RequestContext, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(string(ctx.Query(key)))
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, town.Validation(town.CodeInvalidPosition, "query %s must be an integer", key)
	}
	return n, nil
}

func writeError(ctx *app.RequestContext, err error) {
	var te *town.Error
	if errors.As(err, &te) {
		switch {
		case te.Code == town.CodeRateLimited:
			writeErrorBody(ctx, consts.StatusTooManyRequests, te.Code, te.Message)
		case errors.Is(err, town.ErrValidation):
			writeErrorBody(ctx, consts.StatusBadRequest, te.Code, te.Message)
		case errors.Is(err, town.ErrNotFound):
			writeErrorBody(ctx, consts.StatusNotFound, te.Code, te.Message)
		case errors.Is(err, town.ErrConflict), errors.Is(err, town.ErrState):
			writeErrorBody(ctx, consts.StatusConflict, te.Code, te.Message)
		default:
			writeErrorBody(ctx, consts.StatusInternalServerError, te.Code, te.Message)
		}
		return
	}
	switch {
	case errors.Is(err, ports.ErrNotFound):
		writeErrorBody(ctx, consts.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, ports.ErrConflict):
		writeErrorBody(ctx, consts.StatusConflict, "conflict", err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeErrorBody(ctx, consts.StatusServiceUnavailable, "cancelled", err.Error())
	default:
		writeErrorBody(ctx, consts.StatusInternalServerError, "internal_error", "internal error")
	}
}

func writeErrorBody(ctx *app.RequestContext, status int, code, message string) {
	ctx.JSON(status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
