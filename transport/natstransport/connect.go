package natstransport

import (
	"fmt"
	"log/slog"
	"time"

	comms "github.com/nats-io/nats.go"
)

// Connect opens a NATS connection that keeps reconnecting for a couple of
// minutes before giving up. Connection state changes are logged to logger,
// or slog.Default when nil.
func Connect(url, name string, logger *slog.Logger) (*comms.Conn, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "natstransport"))
	logger.Info("connecting", slog.String("url", url), slog.String("name", name))

	nc, err := comms.Connect(url,
		comms.Name(name),
		comms.Timeout(10*time.Second),
		comms.ReconnectWait(2*time.Second),
		comms.MaxReconnects(60),
		comms.DisconnectErrHandler(func(_ *comms.Conn, err error) {
			logger.Warn("disconnected", slog.Any("error", err))
		}),
		comms.ReconnectHandler(func(nc *comms.Conn) {
			logger.Info("reconnected", slog.String("url", nc.ConnectedUrl()))
		}),
		comms.ClosedHandler(func(*comms.Conn) {
			logger.Info("connection closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("natstransport: connect %s: %w", url, err)
	}

	logger.Info("connected", slog.String("url", nc.ConnectedUrl()))
	return nc, nil
}
