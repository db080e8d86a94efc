package storage

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"contentflow/internal/util"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestRenderSchemaSubstitutesDimension(t *testing.T) {
	script, err := renderSchema(768)
	require.NoError(t, err)
	require.NotContains(t, script, dimPlaceholder)
	require.Equal(t, 2, strings.Count(script, "vector(768)"))
	require.Contains(t, script, "documents_user_hash_uq")
	require.Contains(t, script, "documents_user_type_url_uq")

	_, err = renderSchema(0)
	require.Error(t, err)
}

func TestMapWriteErrUniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "documents_user_hash_uq"}
	err := mapWriteErr("update document", fmt.Errorf("exec: %w", pgErr))
	require.ErrorIs(t, err, util.ErrDuplicateContent)
	require.Contains(t, err.Error(), "documents_user_hash_uq")

	other := mapWriteErr("update document", errors.New("connection reset"))
	require.False(t, errors.Is(other, util.ErrDuplicateContent))
}
