package main

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	plantao "github.com/miguelbarbosa0221/automatizacao-plantao-sub000"
	"github.com/miguelbarbosa0221/automatizacao-plantao-sub000/core"
	"github.com/miguelbarbosa0221/automatizacao-plantao-sub000/internal/appconfig"
	"github.com/miguelbarbosa0221/automatizacao-plantao-sub000/schema"
	"pkt.systems/kryptograf/keymgmt"
	"pkt.systems/pslog"
)

const signInTimeout = 30 * time.Second

type sessionFlags struct {
	cfgPath           string
	login             string
	totp              string
	passwordFromStdin bool
}

func addSessionFlags(cmd *cobra.Command, flags *sessionFlags) {
	cmd.PersistentFlags().StringVarP(&flags.cfgPath, "config", "c", "", "path to config file")
	cmd.PersistentFlags().StringVarP(&flags.login, "login", "u", os.Getenv("PLANTAO_LOGIN"), "username or email")
	cmd.PersistentFlags().StringVar(&flags.totp, "totp", "", "current TOTP code")
	cmd.PersistentFlags().BoolVar(&flags.passwordFromStdin, "password-from-stdin", false, "read password from stdin")
}

func (f *sessionFlags) password(cmd *cobra.Command) (string, error) {
	if f.passwordFromStdin {
		return readStdinPassword(cmd.InOrStdin())
	}
	if env := os.Getenv("PLANTAO_PASSWORD"); env != "" {
		return env, nil
	}
	pass, err := keymgmt.PromptPassphrase(cmd.InOrStdin(), "Password: ", cmd.ErrOrStderr())
	if err != nil {
		return "", err
	}
	return string(pass), nil
}

// openSession starts the app and signs in. Callers must Stop the app.
func openSession(cmd *cobra.Command, flags *sessionFlags, opts ...plantao.AppOption) (*plantao.App, core.SessionState, error) {
	login := strings.TrimSpace(flags.login)
	if login == "" {
		return nil, core.SessionState{}, errors.New("login is required (--login or PLANTAO_LOGIN)")
	}
	password, err := flags.password(cmd)
	if err != nil {
		return nil, core.SessionState{}, err
	}
	cfg, err := appconfig.Load(flags.cfgPath)
	if err != nil {
		return nil, core.SessionState{}, err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	logger := pslog.Ctx(ctx)
	opts = append([]plantao.AppOption{plantao.WithToasts(cmd.ErrOrStderr())}, opts...)
	app, err := plantao.New(cfg, plantao.AppDeps{Logger: logger}, opts...)
	if err != nil {
		return nil, core.SessionState{}, err
	}
	if err := app.Start(ctx); err != nil {
		_ = app.Stop()
		return nil, core.SessionState{}, err
	}
	signCtx, cancel := context.WithTimeout(ctx, signInTimeout)
	defer cancel()
	state, err := app.SignIn(signCtx, login, password, flags.totp)
	if err != nil {
		_ = app.Stop()
		return nil, core.SessionState{}, err
	}
	if _, ok := state.ActiveOrg(); !ok {
		_ = app.Stop()
		return nil, core.SessionState{}, schema.ErrNoOrganization
	}
	logger.Debug("session ready", "user", state.Identity.ID, "org", state.Profile.ActiveOrganizationID)
	return app, state, nil
}

// waitCatalog blocks until every kind is loaded and returns the first sync failure.
func waitCatalog(ctx context.Context, app *plantao.App, kinds ...schema.EntityKind) error {
	ctx, cancel := context.WithTimeout(ctx, signInTimeout)
	defer cancel()
	for _, kind := range kinds {
		state, err := app.Catalog.Slot(kind).WaitLoaded(ctx)
		if err != nil {
			return err
		}
		if state.Err != nil {
			return state.Err
		}
	}
	return nil
}
