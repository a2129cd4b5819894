package dberrors_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/dataplane/orm/dberrors"
	"github.com/stretchr/testify/require"
)

func TestErrorMessageOmitsDebugWhenSanitized(t *testing.T) {
	dberrors.SetSanitize(true)
	defer dberrors.SetSanitize(true)

	err := dberrors.NewDriver(errors.New(`pq: duplicate key value violates unique constraint "users_email_key"`), false)
	require.NotContains(t, err.Error(), "users_email_key")
}

func TestErrorMessageIncludesDebugWhenUnsanitized(t *testing.T) {
	dberrors.SetSanitize(false)
	defer dberrors.SetSanitize(true)

	err := dberrors.NewDriver(errors.New(`pq: duplicate key value violates unique constraint "users_email_key"`), false)
	require.Contains(t, err.Error(), "users_email_key")
}

func TestKindIsMatchesWrappedError(t *testing.T) {
	base := dberrors.NewNotFound("id")
	wrapped := fmt.Errorf("lookup failed: %w", base)
	require.True(t, dberrors.KindIs(wrapped, dberrors.KindNotFound))

	require.True(t, dberrors.KindIs(base, dberrors.KindNotFound))
	require.False(t, dberrors.KindIs(base, dberrors.KindConflict))
	require.False(t, dberrors.KindIs(errors.New("plain"), dberrors.KindNotFound))
}

func TestRecoverableClassification(t *testing.T) {
	require.True(t, dberrors.Recoverable(dberrors.KindValidation))
	require.True(t, dberrors.Recoverable(dberrors.KindDriver))
	require.False(t, dberrors.Recoverable(dberrors.KindFatal))
}

func TestNewDriverMessageReflectsTransience(t *testing.T) {
	transient := dberrors.NewDriver(errors.New("connection reset"), true)
	permanent := dberrors.NewDriver(errors.New("constraint violation"), false)

	require.Contains(t, transient.Error(), "retry")
	require.NotContains(t, permanent.Error(), "retry may succeed")
}

func TestFieldIsIncludedInMessage(t *testing.T) {
	err := dberrors.NewValidation("email", "must not be empty")
	require.Contains(t, err.Error(), `field "email"`)
}
