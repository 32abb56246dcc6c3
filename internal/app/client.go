package app

import (
	"log/slog"
	"net/http"

	"github.com/samber/do/v2"

	"github.com/nfrund/classroom/internal/chat"
	"github.com/nfrund/classroom/internal/config"
	"github.com/nfrund/classroom/internal/middleware"
	"github.com/nfrund/classroom/internal/rooms"
	"github.com/nfrund/classroom/internal/transport"
)

// Identity is the user a terminal client acts as.
type Identity struct {
	UserID string
}

// ClientPackage registers the websocket transport and the room API client.
// The injector must already hold a *config.Config, a *slog.Logger and an
// Identity.
func ClientPackage(i do.Injector) {
	do.Provide(i, provideTransport)
	do.Provide(i, provideRooms)
}

// NewClientInjector returns an injector for a terminal chat client acting as
// userID.
func NewClientInjector(cfg *config.Config, logger *slog.Logger, userID string) *do.RootScope {
	i := do.New()
	do.ProvideValue(i, cfg)
	do.ProvideValue(i, logger)
	do.ProvideValue(i, Identity{UserID: userID})
	ClientPackage(i)
	return i
}

// OpenSession builds a chat session for roomID from the injector's services.
// The caller starts and closes it.
func OpenSession(i do.Injector, roomID string) (*chat.Session, error) {
	tc, err := do.Invoke[*transport.Client](i)
	if err != nil {
		return nil, err
	}
	roomsClient, err := do.Invoke[*rooms.Client](i)
	if err != nil {
		return nil, err
	}
	cfg := do.MustInvoke[*config.Config](i)
	identity := do.MustInvoke[Identity](i)

	return chat.NewSession(tc, roomsClient, roomID, identity.UserID,
		chat.WithTypingExpiry(cfg.TypingExpiry),
		chat.WithLogger(do.MustInvoke[*slog.Logger](i)),
	), nil
}

func provideTransport(i do.Injector) (*transport.Client, error) {
	cfg := do.MustInvoke[*config.Config](i)
	identity := do.MustInvoke[Identity](i)

	header := http.Header{}
	if identity.UserID != "" {
		header.Set(middleware.HeaderUserID, identity.UserID)
	}
	return transport.NewClient(transport.Options{
		URL:                  cfg.WSURL,
		MaxReconnectAttempts: cfg.ReconnectAttempts,
		ReconnectDelay:       cfg.ReconnectDelay,
		HTTPHeader:           header,
		Logger:               do.MustInvoke[*slog.Logger](i),
	}), nil
}

func provideRooms(i do.Injector) (*rooms.Client, error) {
	cfg := do.MustInvoke[*config.Config](i)
	return rooms.NewClient(cfg.APIURL, cfg.HTTPTimeout, do.MustInvoke[*slog.Logger](i)), nil
}
