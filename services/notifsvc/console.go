package notifsvc

import (
	"fmt"
	"log"
	"sync"

	"github.com/literate-limited/beeline/core"
)

type consoleService struct {
	prefix        string
	disableOutput bool

	mu   sync.Mutex
	sent []string
}

var _ core.Notifier = (*consoleService)(nil)

// NewConsoleService returns a Notifier that prints system notifications to the
// console. The browser Notification API lives on the other side of this
// boundary; the core only ever talks to the interface.
func NewConsoleService() core.Notifier {
	return &consoleService{prefix: "[" + core.Conf.AppName + "] "}
}

// NewConsoleServiceMock returns a silent Notifier that records notifications
// for tests.
func NewConsoleServiceMock() *consoleService {
	return &consoleService{disableOutput: true}
}

func (svc *consoleService) Notify(title, body string) {
	msg := fmt.Sprintf("%s%s: %s", svc.prefix, title, body)
	svc.mu.Lock()
	svc.sent = append(svc.sent, msg)
	svc.mu.Unlock()
	if !svc.disableOutput {
		log.Println(msg)
	}
}

// Sent returns the notifications recorded so far.
func (svc *consoleService) Sent() []string {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	out := make([]string, len(svc.sent))
	copy(out, svc.sent)
	return out
}
