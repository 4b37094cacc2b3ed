package sqlxrepos

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iradukundapaci/communiserver-sub002/core"
	"github.com/iradukundapaci/communiserver-sub002/core/location"
)

func TestColumns(t *testing.T) {
	assert.Equal(t, "id, name, created_at, updated_at, deleted_at", columns(location.LevelProvince))
	assert.Equal(t,
		"id, name, village_id AS parent_id, has_leader, leader_id, members, created_at, updated_at, deleted_at",
		columns(location.LevelIsibo))
	assert.Equal(t,
		"id, isibo_id AS parent_id, code, street, representative_id, created_at, updated_at, deleted_at",
		columns(location.LevelHouse))
}

func TestLocationRepository_CreateNode(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewLocationRepository(db)
	now := time.Now().UTC()
	villageID := newID()

	mock.ExpectExec(regexp.QuoteMeta(
		"INSERT INTO isibos (id, created_at, updated_at, name, village_id, members) VALUES ($1, $2, $3, $4, $5, $6)")).
		WithArgs(sqlmock.AnyArg(), now, now, "Ubumwe", villageID, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := repo.CreateNode(context.Background(), location.Node{
		Level:     location.LevelIsibo,
		Name:      "Ubumwe",
		ParentID:  villageID,
		CreatedAt: now,
		UpdatedAt: now,
	})
	require.NoError(t, err)
	assert.True(t, validID(n.ID))
	assert.Equal(t, []location.Member{}, n.Members)
}

func TestLocationRepository_CreateNode_conflict(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewLocationRepository(db)

	mock.ExpectExec("INSERT INTO provinces").
		WillReturnError(&pq.Error{Code: pqUniqueViolation, Constraint: "provinces_name_key"})

	_, err := repo.CreateNode(context.Background(), location.Node{Level: location.LevelProvince, Name: "Kigali"})
	require.True(t, core.IsConflict(err))
	assert.Equal(t, location.ErrNameTaken.Error(), err.Error())
}

func TestLocationRepository_GetNode(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewLocationRepository(db)
	id, villageID, leaderID := newID(), newID(), newID()
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{
		"id", "name", "parent_id", "has_leader", "leader_id", "members", "created_at", "updated_at", "deleted_at",
	}).AddRow(id, "Ubumwe", villageID, true, leaderID, []byte(`[{"id":"m1","name":"Jean"}]`), now, now, nil)

	mock.ExpectQuery(regexp.QuoteMeta("FROM isibos WHERE id = $1 AND deleted_at IS NULL")).
		WithArgs(id).
		WillReturnRows(rows)

	n, err := repo.GetNode(context.Background(), location.LevelIsibo, id, false)
	require.NoError(t, err)
	assert.Equal(t, location.LevelIsibo, n.Level)
	assert.Equal(t, villageID, n.ParentID)
	assert.True(t, n.HasLeader)
	assert.Equal(t, leaderID, n.LeaderID)
	assert.Equal(t, []location.Member{{ID: "m1", Name: "Jean"}}, n.Members)
	assert.Nil(t, n.DeletedAt)
}

func TestLocationRepository_GetNode_notFound(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewLocationRepository(db)

	// malformed ids never reach the database
	_, err := repo.GetNode(context.Background(), location.LevelCell, "not-a-uuid", false)
	assert.True(t, core.IsNotFound(err))

	id := newID()
	mock.ExpectQuery("FROM cells WHERE id").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err = repo.GetNode(context.Background(), location.LevelCell, id, false)
	require.True(t, core.IsNotFound(err))
	assert.Equal(t, "cell not found", err.Error())
}

func TestLocationRepository_QueryNodes(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewLocationRepository(db)
	provinceID := newID()
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT COUNT(*) FROM districts WHERE deleted_at IS NULL AND province_id = $1 AND (name ILIKE $2)")).
		WithArgs(provinceID, "%gas%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY lower(name), id LIMIT $3 OFFSET $4")).
		WithArgs(provinceID, "%gas%", 2, 2).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "parent_id", "created_at", "updated_at", "deleted_at"}).
			AddRow(newID(), "Gasabo", provinceID, now, now, nil))

	page, err := repo.QueryNodes(context.Background(), location.LevelDistrict,
		location.QueryFilter{ParentID: provinceID},
		core.PageQuery{Page: 2, Size: 2, Search: "gas"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Gasabo", page.Items[0].Name)
	assert.Equal(t, core.PageMeta{TotalItems: 3, ItemCount: 1, ItemsPerPage: 2, TotalPages: 2, CurrentPage: 2}, page.Meta)
}

func TestLocationRepository_QueryNodes_pastLastPage(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewLocationRepository(db)

	pq := core.PageQuery{Page: 92233720368547760, Size: 100}
	pq.Clean()
	require.Greater(t, pq.Offset(), 0)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM provinces WHERE deleted_at IS NULL")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY lower(name), id LIMIT $1 OFFSET $2")).
		WithArgs(100, pq.Offset()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "created_at", "updated_at", "deleted_at"}))

	page, err := repo.QueryNodes(context.Background(), location.LevelProvince, location.QueryFilter{}, pq)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Equal(t, core.PageMeta{TotalItems: 3, ItemCount: 0, ItemsPerPage: 100, TotalPages: 1, CurrentPage: pq.Page}, page.Meta)
}

func TestLocationRepository_ListChildren(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewLocationRepository(db)
	cellID := newID()
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta(
		"FROM villages WHERE deleted_at IS NULL AND cell_id = $1 ORDER BY id")).
		WithArgs(cellID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "parent_id", "has_leader", "leader_id", "created_at", "updated_at", "deleted_at"}).
			AddRow(newID(), "Byimana", cellID, false, nil, now, now, nil))

	nodes, err := repo.ListChildren(context.Background(), location.LevelVillage, cellID)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "Byimana", nodes[0].Name)
	assert.Equal(t, cellID, nodes[0].ParentID)

	// provinces have no parent
	nodes, err = repo.ListChildren(context.Background(), location.LevelProvince, cellID)
	require.NoError(t, err)
	assert.Empty(t, nodes)
}

func TestLocationRepository_QueryNodes_invalidParent(t *testing.T) {
	db, _ := setupMockDB(t)
	repo := NewLocationRepository(db)

	page, err := repo.QueryNodes(context.Background(), location.LevelDistrict,
		location.QueryFilter{ParentID: "nope"}, core.PageQuery{Page: 1, Size: 10})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Equal(t, 0, page.Meta.TotalItems)
}

func TestLocationRepository_DeleteNode(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewLocationRepository(db)
	id := newID()
	at := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta(
		"UPDATE villages SET deleted_at = $1, has_leader = false, leader_id = NULL WHERE id = $2 AND deleted_at IS NULL")).
		WithArgs(at, id).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.DeleteNode(context.Background(), location.LevelVillage, id, at))

	mock.ExpectExec("UPDATE sectors SET deleted_at").
		WithArgs(at, id).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.DeleteNode(context.Background(), location.LevelSector, id, at)
	assert.True(t, core.IsNotFound(err))
}

func TestLocationRepository_SetLeader(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewLocationRepository(db)
	cellID, profileID := newID(), newID()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE cells SET leader_id = $1, has_leader = $2 WHERE id = $3")).
		WithArgs(profileID, true, cellID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.SetLeader(context.Background(), location.LevelCell, cellID, profileID))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE cells SET leader_id = $1, has_leader = $2 WHERE id = $3")).
		WithArgs(nil, false, cellID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.SetLeader(context.Background(), location.LevelCell, cellID, ""))
}

func TestLocationRepository_NameExists(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewLocationRepository(db)
	excluded := newID()

	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT EXISTS (SELECT 1 FROM cells WHERE deleted_at IS NULL AND lower(name) = lower($1) AND id <> $2)")).
		WithArgs("Kagarama", excluded).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.NameExists(context.Background(), location.LevelCell, "Kagarama", excluded)
	require.NoError(t, err)
	assert.True(t, exists)
}
