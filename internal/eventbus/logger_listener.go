package eventbus

import (
	"context"

	"github.com/annel0/autotile/internal/logging"
)

// StartLoggingListener подписывается на все события и пишет их в лог.
// События клеток раскрываются через DecodeTileEvent.
// Функция неблокирующая.
func StartLoggingListener(bus EventBus) error {
	_, err := bus.Subscribe(context.Background(), Filter{}, func(ctx context.Context, ev *Envelope) {
		if ev.EventType == EventTileChanged {
			te, err := DecodeTileEvent(ev.Payload)
			if err == nil {
				logging.Debug("[EventBus] %s %s map=%s (%d,%d,%d) %d→%d idx=%d redraws=%d",
					ev.ID, ev.EventType, te.Map, te.X, te.Y, te.Layer, te.Previous, te.Tile, te.Index, te.Redraws)
				return
			}
			logging.LogProtocolError(ev.Source, err, ev.Payload)
		}
		logging.Debug("[EventBus] %s %s src=%s prio=%d size=%dB", ev.ID, ev.EventType, ev.Source, ev.Priority, len(ev.Payload))
	})
	if err != nil {
		return err
	}
	logging.Info("🪵 LoggingListener: подписка на все события активирована")
	return nil
}
