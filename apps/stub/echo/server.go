package echostub

import (
	"context"
	"net/http"
	"strings"

	"github.com/dgrijalva/jwt-go"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/literate-limited/beeline/core"
)

type (
	Options struct {
		Addr           string
		DisableReqLogs bool
		Logger         core.Logger
		// DropSendAcks makes the stub swallow send_message entirely (no ack,
		// no broadcast), to exercise the client's failed-send rollback.
		DropSendAcks bool
	}

	Server interface {
		http.Handler
		Start()
		Stop(ctx context.Context) error
	}

	server struct {
		opts Options
		app  *echo.Echo
		hub  *hub
	}
)

var _ Server = (*server)(nil)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true }, // dev stub only
}

// NewServer returns the development signaling server. It implements the full
// socket event surface in memory so the realtime core can be exercised without
// the production backend.
func NewServer(opts Options) Server {
	s := &server{
		opts: opts,
		app:  echo.New(),
		hub:  newHub(opts),
	}
	s.setup()
	return s
}

func (s *server) setup() {
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.opts.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	s.app.Logger.SetLevel(log.ERROR)
	s.app.HideBanner = true

	s.app.GET("/", s.home)
	s.app.GET("/ws", s.serveWS)
}

func (s *server) home(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, echo.Map{"app": core.Conf.AppName + " signaling stub"})
}

// serveWS upgrades the connection and pumps it through the hub. The user
// identity comes from the bearer token's claims; the stub does not verify the
// signature.
func (s *server) serveWS(ctx echo.Context) error {
	userID := identify(ctx.Request())
	if userID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing or invalid token")
	}

	conn, err := upgrader.Upgrade(ctx.Response(), ctx.Request(), nil)
	if err != nil {
		return err
	}
	c := s.hub.register(userID, conn)
	go s.hub.readPump(c)
	return nil
}

func identify(r *http.Request) string {
	raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if raw == "" {
		return r.URL.Query().Get("user")
	}
	claims := jwt.MapClaims{}
	if _, _, err := new(jwt.Parser).ParseUnverified(raw, claims); err != nil {
		return ""
	}
	sub, _ := claims["sub"].(string)
	return sub
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.app.ServeHTTP(w, r)
}

func (s *server) Start() {
	if err := s.app.Start(s.opts.Addr); err != nil && err != http.ErrServerClosed {
		s.opts.Logger.Fatal("stub server stopped", err)
	}
}

func (s *server) Stop(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}
