package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/common-nighthawk/go-figure"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/jrsteele09/go-realms-auth/auth"
	"github.com/jrsteele09/go-realms-auth/identity"
	"github.com/jrsteele09/go-realms-auth/internal/config"
	"github.com/jrsteele09/go-realms-auth/internal/utils"
	"github.com/jrsteele09/go-realms-auth/realms"
	"github.com/jrsteele09/go-realms-auth/session"
	"github.com/jrsteele09/go-realms-auth/session/filestore"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func run(args []string) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "Recovered from panic: %v\n", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	if len(args) == 0 {
		usage()
		return nil
	}

	c := config.New()
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	storeOptions := []filestore.Option{filestore.WithLogger(log)}
	if passphrase := c.GetSessionPassphrase(); passphrase != "" {
		storeOptions = append(storeOptions, filestore.WithPassphrase(passphrase))
	}
	store := filestore.New(c.GetSessionFile(), storeOptions...)

	ctx := context.Background()
	provider, err := identity.NewOAuthProvider(ctx, identity.ProviderSettings{
		ClientID:       c.GetClientID(),
		Scopes:         c.GetScopes(),
		IssuerURL:      c.GetIssuerURL(),
		DeviceAuthURL:  c.GetDeviceAuthURL(),
		TokenURL:       c.GetTokenURL(),
		ServiceAuthURL: c.GetServiceAuthURL(),
	}, identity.WithLogger(log))
	if err != nil {
		return errors.Wrap(err, "identity.NewOAuthProvider")
	}

	manager, err := auth.NewSessionManager(store, provider, auth.WithLogger(log))
	if err != nil {
		return errors.Wrap(err, "auth.NewSessionManager")
	}

	switch args[0] {
	case "login":
		displayAppname(c.GetAppName())
		return login(provider, manager)
	case "status":
		return status(ctx, manager)
	case "logout":
		return manager.Clear(ctx)
	case "worlds":
		return worlds(ctx, c, manager, log)
	default:
		usage()
		return errors.Errorf("unknown command %q", args[0])
	}
}

func login(provider identity.Provider, manager *auth.SessionManager) error {
	flow, err := auth.NewLoginFlow(provider, manager)
	if err != nil {
		return errors.Wrap(err, "auth.NewLoginFlow")
	}

	attempt := flow.Start(auth.Callbacks{
		OnChallenge: func(challenge identity.Challenge) {
			fmt.Printf("To sign in, open %s and enter the code %s\n", challenge.VerificationURI, challenge.UserCode)
		},
		OnSuccess: func(sess *session.Session) {
			fmt.Printf("Signed in as %s\n", sess.UserInfo().Name)
		},
		OnError: func(err error) {
			fmt.Fprintf(os.Stderr, "Login failed: %s\n", err)
		},
	})

	select {
	case <-attempt.Done():
	case <-waitForStopSignal():
		attempt.Cancel()
		<-attempt.Done()
		fmt.Println("Login cancelled")
	}

	// A cancelled attempt is a clean exit; anything else failed and the
	// process must say so.
	if err := attempt.Err(); err != nil && !errors.Is(err, auth.LoginCancelledErr) {
		return err
	}
	return nil
}

func status(ctx context.Context, manager *auth.SessionManager) error {
	info, err := manager.UserInfo(ctx)
	if err != nil {
		return err
	}
	if info == nil {
		fmt.Println("Not signed in")
		return nil
	}
	fmt.Printf("Signed in as %s (%s)\n", utils.Value(info).Name, utils.Value(info).ID)
	return nil
}

func worlds(ctx context.Context, c config.Config, manager *auth.SessionManager, log zerolog.Logger) error {
	client, err := realms.NewClient(c.GetRealmsURL(), manager,
		realms.WithLogger(log), realms.WithClientVersion(c.GetClientVersion()))
	if err != nil {
		return errors.Wrap(err, "realms.NewClient")
	}

	available, err := client.Available(ctx)
	if err != nil {
		return err
	}
	if !available {
		fmt.Println("Realms is not available for this account")
		return nil
	}

	list, err := client.Worlds(ctx)
	if err != nil {
		return err
	}
	for _, world := range list {
		fmt.Printf("%8d  %-24s %s\n", world.ID, world.Name, world.Description)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func usage() {
	fmt.Println("usage: realms <login|status|logout|worlds>")
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
