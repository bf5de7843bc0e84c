package irrigation_controller

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/LeonardoBeccarini/gardenbot/internal/clock"
	"github.com/LeonardoBeccarini/gardenbot/internal/model/entities"
	"github.com/LeonardoBeccarini/gardenbot/internal/model/messages"
)

// Remote command texts.
const (
	CmdStart       = "/start"
	CmdMenu        = "/menu"
	CmdStartManual = "Start Manual Watering"
	CmdStop        = "Stop Watering"
	CmdStatus      = "Get Status"
)

const (
	msgWelcome      = "Welcome to GardenBot! Choose an option:"
	msgUnknown      = "I don't understand that command. Use /menu to see options."
	msgUnauthorized = "Unauthorized user."
)

// MenuOptions are the keyboard entries offered with every menu.
var MenuOptions = []string{CmdStartManual, CmdStop, CmdStatus}

// Dispatcher maps inbound commands onto controller operations. Only the authorized
// sender reaches the controller.
type Dispatcher struct {
	ctrl       *Controller
	out        Responder
	authorized string
	metrics    *Metrics
}

func NewDispatcher(ctrl *Controller, out Responder, authorized string, metrics *Metrics) *Dispatcher {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Dispatcher{ctrl: ctrl, out: out, authorized: authorized, metrics: metrics}
}

func (d *Dispatcher) Dispatch(ctx context.Context, cmd messages.Command, now clock.Millis) {
	text := strings.TrimSpace(cmd.Text)

	if cmd.SenderID != d.authorized {
		d.metrics.Commands.WithLabelValues(commandLabel(text), "false").Inc()
		// audit only: never log what an unknown sender wrote
		log.Warn().Str("sender", cmd.SenderID).Msg("command from unauthorized sender rejected")
		d.reply(ctx, cmd.SenderID, msgUnauthorized)
		return
	}
	d.metrics.Commands.WithLabelValues(commandLabel(text), "true").Inc()
	log.Info().Str("sender", cmd.SenderID).Str("command", text).Msg("command received")

	switch text {
	case CmdStart, CmdMenu:
		d.menu(ctx, cmd.SenderID, msgWelcome)
	case CmdStartManual:
		_ = d.ctrl.TryStart(ctx, entities.SourceManualRemote, now)
	case CmdStop:
		_ = d.ctrl.Stop(ctx, ReasonRemoteCommand, now)
	case CmdStatus:
		snap := d.ctrl.Capture(ctx, now, TriggerStatus)
		d.reply(ctx, cmd.SenderID, FormatReport(OnDemand, &snap, d.ctrl.View(now)))
	default:
		d.reply(ctx, cmd.SenderID, msgUnknown)
		d.menu(ctx, cmd.SenderID, msgWelcome)
	}
}

func (d *Dispatcher) reply(ctx context.Context, to, text string) {
	if err := d.out.Reply(ctx, to, text); err != nil {
		log.Warn().Err(err).Str("to", to).Msg("reply not delivered")
	}
}

func (d *Dispatcher) menu(ctx context.Context, to, text string) {
	if err := d.out.Menu(ctx, to, text, MenuOptions); err != nil {
		log.Warn().Err(err).Str("to", to).Msg("menu not delivered")
	}
}

// commandLabel keeps the metric cardinality bounded.
func commandLabel(text string) string {
	switch text {
	case CmdStart, CmdMenu:
		return "menu"
	case CmdStartManual:
		return "start"
	case CmdStop:
		return "stop"
	case CmdStatus:
		return "status"
	default:
		return "unknown"
	}
}
