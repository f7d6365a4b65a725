package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/pancaim/cdm/pkg/cdmerrors"
	"github.com/pancaim/cdm/pkg/logger"
	"github.com/pancaim/cdm/pkg/storage"
)

// openStore opens the configured database. Without a configured password
// it first tries to connect without one and only prompts when that fails.
func openStore(ctx context.Context, params storage.Params) (storage.Store, error) {
	if needsPassword(params) && !storage.CanConnect(ctx, params, true) {
		password, err := promptPassword(params)
		if err != nil {
			return nil, err
		}
		params = params.WithPassword(password)
		if !storage.CanConnect(ctx, params, false) {
			return nil, cdmerrors.New(cdmerrors.ErrorTypeConnection, "cannot connect to database").
				WithDetail("database", describeParams(params))
		}
	}

	logger.Info("opening database", zap.Any("params", params.Redacted()))
	return storage.Open(ctx, params)
}

func needsPassword(p storage.Params) bool {
	return p.Password == "" && p.DSN == "" && p.Driver != "sqlite"
}

func promptPassword(params storage.Params) (string, error) {
	fd := int(os.Stdin.Fd()) //nolint:gosec // G115: file descriptors fit in int
	if !term.IsTerminal(fd) {
		return "", cdmerrors.New(cdmerrors.ErrorTypeConfig, "database password required but stdin is not a terminal").
			WithDetail("database", describeParams(params))
	}

	fmt.Fprintf(os.Stderr, "Password for %s: ", describeParams(params))
	password, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", cdmerrors.Wrap(err, cdmerrors.ErrorTypeConfig, "failed to read password")
	}
	return string(password), nil
}
