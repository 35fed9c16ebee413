package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/literate-limited/beeline/core"
	"github.com/literate-limited/beeline/core/session"
	"github.com/literate-limited/beeline/services/logsvc"
	"github.com/literate-limited/beeline/services/notifsvc"
	"github.com/literate-limited/beeline/services/socketsvc"
)

var readPasswordFunc = term.ReadPassword // mockable

func main() {
	url := flag.String("url", core.Conf.Socket.URL, "signaling server websocket url")
	token := flag.String("token", "", "auth token; prompted when omitted")
	devUser := flag.String("dev-user", "", "mint a local dev token for this user id (stub server only)")
	flag.Parse()

	std := log.New(os.Stdout, "", log.LstdFlags)

	var logger core.Logger
	if core.Conf.Debug {
		logger = logsvc.NewConsoleLogger(std)
	} else {
		logger = logsvc.NewRollbarLogger(std, core.Conf)
	}
	logger.Enable(!core.Conf.TestMode)

	authToken := *token
	if authToken == "" && *devUser != "" {
		var err error
		if authToken, err = session.SignToken(*devUser, *devUser, core.Conf.SecretKey, 24*time.Hour); err != nil {
			logger.Fatal("minting dev token", err)
		}
	}
	if authToken == "" {
		fmt.Print("Enter auth token:")
		raw, err := readPasswordFunc(syscall.Stdin)
		fmt.Println()
		if err != nil {
			logger.Fatal("reading token", err)
		}
		authToken = string(raw)
	}

	claims, err := session.ParseToken(authToken, core.Conf.SecretKey)
	if err != nil {
		logger.Fatal("invalid auth token", err)
	}

	socket := socketsvc.NewClient(socketsvc.Options{
		URL:         *url,
		AuthToken:   authToken,
		Logger:      logger,
		MaxInterval: core.Conf.Socket.ReconnectMaxInterval,
	})

	sess, err := session.New(authToken, session.Options{
		Socket:   socket,
		Logger:   logger,
		Notifier: notifsvc.NewConsoleService(),
		Resolver: pairResolver{userID: claims.Subject},
		Alert:    func(msg string) { fmt.Println("!! " + msg) },
	})
	if err != nil {
		logger.Fatal("starting session", err)
	}
	defer sess.Teardown()

	sess.Connect()
	logger.Info("session started", logsvc.Person{ID: claims.Subject, Username: claims.Username})
	fmt.Printf("connected as %s; type 'help' for commands\n", sess.UserID())

	cli := commandLine{sess: sess}
	cli.run()
}
