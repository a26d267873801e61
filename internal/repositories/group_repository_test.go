package repositories

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGroupRepoWithMock(t *testing.T) (*GroupRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewGroupRepo(sqlx.NewDb(db, "sqlmock")), mock
}

func groupRow(id, conversationID, ownerID int64) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "conversation_id", "name", "owner_id", "avatar_path", "created_at"}).
		AddRow(id, conversationID, "team", ownerID, nil, time.Now())
}

func TestLeaveOwnerHandsGroupToRemainingAdmin(t *testing.T) {
	repo, mock := newGroupRepoWithMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM groups WHERE id=\$1 FOR UPDATE`).
		WithArgs(int64(7)).
		WillReturnRows(groupRow(7, 70, 1))
	mock.ExpectExec(`UPDATE conversation_members SET left_at=`).
		WithArgs(int64(70), int64(1), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM conversation_members`)).
		WithArgs(int64(70)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery(`SELECT user_id FROM conversation_members`).
		WithArgs(int64(70), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(2))
	mock.ExpectExec(`UPDATE groups SET owner_id=\$2 WHERE id=\$1`).
		WithArgs(int64(7), int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	res, err := repo.Leave(context.Background(), 7, 1)
	require.NoError(t, err)
	require.NotNil(t, res.NewOwnerID)
	assert.Equal(t, int64(2), *res.NewOwnerID)
	assert.Nil(t, res.PromotedUserID)
	assert.False(t, res.GroupDeleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLeaveOwnerPromotesEarliestMemberWhenNoAdminLeft(t *testing.T) {
	repo, mock := newGroupRepoWithMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM groups WHERE id=\$1 FOR UPDATE`).
		WithArgs(int64(7)).
		WillReturnRows(groupRow(7, 70, 1))
	mock.ExpectExec(`UPDATE conversation_members SET left_at=`).
		WithArgs(int64(70), int64(1), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM conversation_members`)).
		WithArgs(int64(70)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery(`SELECT user_id FROM conversation_members`).
		WithArgs(int64(70), sqlmock.AnyArg()).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`UPDATE conversation_members SET role=\$2`).
		WithArgs(int64(70), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(3))
	mock.ExpectExec(`UPDATE groups SET owner_id=\$2 WHERE id=\$1`).
		WithArgs(int64(7), int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	res, err := repo.Leave(context.Background(), 7, 1)
	require.NoError(t, err)
	require.NotNil(t, res.NewOwnerID)
	assert.Equal(t, int64(3), *res.NewOwnerID)
	require.NotNil(t, res.PromotedUserID)
	assert.Equal(t, int64(3), *res.PromotedUserID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLeaveNonOwnerKeepsOwnership(t *testing.T) {
	repo, mock := newGroupRepoWithMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM groups WHERE id=\$1 FOR UPDATE`).
		WithArgs(int64(7)).
		WillReturnRows(groupRow(7, 70, 1))
	mock.ExpectExec(`UPDATE conversation_members SET left_at=`).
		WithArgs(int64(70), int64(2), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM conversation_members`)).
		WithArgs(int64(70)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectCommit()

	res, err := repo.Leave(context.Background(), 7, 2)
	require.NoError(t, err)
	assert.Nil(t, res.NewOwnerID)
	assert.Nil(t, res.PromotedUserID)
	assert.False(t, res.GroupDeleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLeaveLastMemberRemovesGroup(t *testing.T) {
	repo, mock := newGroupRepoWithMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM groups WHERE id=\$1 FOR UPDATE`).
		WithArgs(int64(7)).
		WillReturnRows(groupRow(7, 70, 1))
	mock.ExpectExec(`UPDATE conversation_members SET left_at=`).
		WithArgs(int64(70), int64(1), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM conversation_members`)).
		WithArgs(int64(70)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(`DELETE FROM join_requests WHERE conversation_id=\$1`).
		WithArgs(int64(70)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`DELETE FROM groups WHERE id=\$1`).
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM conversations WHERE id=\$1`).
		WithArgs(int64(70)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	res, err := repo.Leave(context.Background(), 7, 1)
	require.NoError(t, err)
	assert.True(t, res.GroupDeleted)
	assert.Nil(t, res.NewOwnerID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
