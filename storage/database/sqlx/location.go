package sqlxrepos

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/iradukundapaci/communiserver-sub002/core"
	"github.com/iradukundapaci/communiserver-sub002/core/location"
)

// levelTable describes where a level is stored; parentCol is empty for provinces.
type levelTable struct {
	name      string
	parentCol string
}

var levelTables = map[location.Level]levelTable{
	location.LevelProvince: {name: "provinces"},
	location.LevelDistrict: {name: "districts", parentCol: "province_id"},
	location.LevelSector:   {name: "sectors", parentCol: "district_id"},
	location.LevelCell:     {name: "cells", parentCol: "sector_id"},
	location.LevelVillage:  {name: "villages", parentCol: "cell_id"},
	location.LevelIsibo:    {name: "isibos", parentCol: "village_id"},
	location.LevelHouse:    {name: "houses", parentCol: "isibo_id"},
}

// columns is the select list of level, aliased to the nodeRow tags.
func columns(level location.Level) string {
	t := levelTables[level]
	cols := []string{"id"}
	if level != location.LevelHouse {
		cols = append(cols, "name")
	}
	if t.parentCol != "" {
		cols = append(cols, t.parentCol+" AS parent_id")
	}
	if level.HasLeader() {
		cols = append(cols, "has_leader", "leader_id")
	}
	switch level {
	case location.LevelIsibo:
		cols = append(cols, "members")
	case location.LevelHouse:
		cols = append(cols, "code", "street", "representative_id")
	}
	return strings.Join(append(cols, "created_at", "updated_at", "deleted_at"), ", ")
}

type nodeRow struct {
	ID               string         `db:"id"`
	Name             string         `db:"name"`
	ParentID         null.String    `db:"parent_id"`
	HasLeader        bool           `db:"has_leader"`
	LeaderID         null.String    `db:"leader_id"`
	Members          types.JSONText `db:"members"`
	Code             string         `db:"code"`
	Street           string         `db:"street"`
	RepresentativeID null.String    `db:"representative_id"`
	CreatedAt        time.Time      `db:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at"`
	DeletedAt        null.Time      `db:"deleted_at"`
}

func (row nodeRow) node(level location.Level) (location.Node, error) {
	n := location.Node{
		ID:               row.ID,
		Level:            level,
		Name:             row.Name,
		ParentID:         row.ParentID.String,
		HasLeader:        row.HasLeader,
		LeaderID:         row.LeaderID.String,
		Code:             row.Code,
		Street:           row.Street,
		RepresentativeID: row.RepresentativeID.String,
		CreatedAt:        row.CreatedAt.UTC(),
		UpdatedAt:        row.UpdatedAt.UTC(),
		DeletedAt:        row.DeletedAt.Ptr(),
	}
	if level == location.LevelIsibo {
		n.Members = []location.Member{}
		if len(row.Members) > 0 {
			if err := row.Members.Unmarshal(&n.Members); err != nil {
				return location.Node{}, errors.Wrap(err, "decoding isibo members")
			}
		}
	}
	return n, nil
}

func marshalMembers(members []location.Member) (types.JSONText, error) {
	if members == nil {
		members = []location.Member{}
	}
	b, err := json.Marshal(members)
	return types.JSONText(b), errors.Wrap(err, "encoding isibo members")
}

// insertSQL builds an INSERT with `?` placeholders.
func insertSQL(table string, cols ...string) string {
	return "INSERT INTO " + table + " (" + strings.Join(cols, ", ") + ") VALUES (" +
		strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ") + ")"
}

type locationRepository struct {
	base
}

var _ location.Repository = (*locationRepository)(nil)

func NewLocationRepository(db *sqlx.DB) location.Repository {
	return &locationRepository{base{db: db}}
}

func (repo *locationRepository) CreateNode(ctx context.Context, n location.Node) (location.Node, error) {
	t := levelTables[n.Level]
	n.ID = newID()

	cols := []string{"id", "created_at", "updated_at"}
	args := []interface{}{n.ID, n.CreatedAt.UTC(), n.UpdatedAt.UTC()}
	if n.Level != location.LevelHouse {
		cols = append(cols, "name")
		args = append(args, n.Name)
	}
	if t.parentCol != "" {
		cols = append(cols, t.parentCol)
		args = append(args, n.ParentID)
	}
	switch n.Level {
	case location.LevelIsibo:
		if n.Members == nil {
			n.Members = []location.Member{}
		}
		members, err := marshalMembers(n.Members)
		if err != nil {
			return location.Node{}, err
		}
		cols = append(cols, "members")
		args = append(args, members)
	case location.LevelHouse:
		cols = append(cols, "code", "street")
		args = append(args, n.Code, n.Street)
	}

	exec := repo.exec(ctx)
	if _, err := exec.ExecContext(ctx, exec.Rebind(insertSQL(t.name, cols...)), args...); err != nil {
		return location.Node{}, translate(err, string(n.Level), "inserting "+string(n.Level))
	}
	return n, nil
}

func (repo *locationRepository) GetNode(ctx context.Context, level location.Level, id string, unscoped bool) (location.Node, error) {
	if !validID(id) {
		return location.Node{}, core.NewNotFoundError(string(level))
	}
	q := "SELECT " + columns(level) + " FROM " + levelTables[level].name + " WHERE id = ?"
	if !unscoped {
		q += " AND deleted_at IS NULL"
	}

	exec := repo.exec(ctx)
	var row nodeRow
	if err := exec.GetContext(ctx, &row, exec.Rebind(q), id); err != nil {
		return location.Node{}, translate(err, string(level), "getting "+string(level))
	}
	return row.node(level)
}

func (repo *locationRepository) QueryNodes(ctx context.Context, level location.Level, qf location.QueryFilter, pq core.PageQuery) (core.Page[location.Node], error) {
	t := levelTables[level]
	if qf.ParentID != "" && (t.parentCol == "" || !validID(qf.ParentID)) {
		return core.NewPage[location.Node](nil, 0, pq), nil
	}

	var w where
	w.add("deleted_at IS NULL")
	if qf.ParentID != "" {
		w.add(t.parentCol+" = ?", qf.ParentID)
	}
	orderBy := "lower(name), id"
	if level == location.LevelHouse {
		orderBy = "lower(code), id"
		if pq.Search != "" {
			w.search(pq.SearchPattern(), "code", "street")
		}
	} else if pq.Search != "" {
		w.search(pq.SearchPattern(), "name")
	}

	var rows []nodeRow
	total, err := selectPage(ctx, repo.exec(ctx), &rows, columns(level), t.name, w, orderBy, pq)
	if err != nil {
		return core.Page[location.Node]{}, errors.Wrap(err, "querying "+t.name)
	}
	nodes := make([]location.Node, 0, len(rows))
	for _, row := range rows {
		n, err := row.node(level)
		if err != nil {
			return core.Page[location.Node]{}, err
		}
		nodes = append(nodes, n)
	}
	return core.NewPage(nodes, total, pq), nil
}

func (repo *locationRepository) UpdateNode(ctx context.Context, n location.Node) (location.Node, error) {
	if !validID(n.ID) {
		return location.Node{}, core.NewNotFoundError(string(n.Level))
	}
	sets := []string{"updated_at = ?"}
	args := []interface{}{n.UpdatedAt.UTC()}
	switch n.Level {
	case location.LevelHouse:
		sets = append(sets, "code = ?", "street = ?")
		args = append(args, n.Code, n.Street)
	case location.LevelIsibo:
		members, err := marshalMembers(n.Members)
		if err != nil {
			return location.Node{}, err
		}
		sets = append(sets, "name = ?", "members = ?")
		args = append(args, n.Name, members)
	default:
		sets = append(sets, "name = ?")
		args = append(args, n.Name)
	}
	args = append(args, n.ID)

	q := "UPDATE " + levelTables[n.Level].name + " SET " + strings.Join(sets, ", ") +
		" WHERE id = ? AND deleted_at IS NULL RETURNING " + columns(n.Level)
	exec := repo.exec(ctx)
	var row nodeRow
	if err := exec.GetContext(ctx, &row, exec.Rebind(q), args...); err != nil {
		return location.Node{}, translate(err, string(n.Level), "updating "+string(n.Level))
	}
	return row.node(n.Level)
}

func (repo *locationRepository) DeleteNode(ctx context.Context, level location.Level, id string, at time.Time) error {
	if !validID(id) {
		return core.NewNotFoundError(string(level))
	}
	q := "UPDATE " + levelTables[level].name + " SET deleted_at = ?"
	if level.HasLeader() {
		q += ", has_leader = false, leader_id = NULL"
	}
	q += " WHERE id = ? AND deleted_at IS NULL"

	exec := repo.exec(ctx)
	res, err := exec.ExecContext(ctx, exec.Rebind(q), at.UTC(), id)
	if err != nil {
		return errors.Wrap(err, "deleting "+string(level))
	}
	return affected(res, string(level))
}

func (repo *locationRepository) NameExists(ctx context.Context, level location.Level, name, excludeID string) (bool, error) {
	var w where
	w.add("deleted_at IS NULL")
	w.add("lower(name) = lower(?)", name)
	if excludeID != "" && validID(excludeID) {
		w.add("id <> ?", excludeID)
	}

	exec := repo.exec(ctx)
	var exists bool
	q := "SELECT EXISTS (SELECT 1 FROM " + levelTables[level].name + w.String() + ")"
	if err := exec.GetContext(ctx, &exists, exec.Rebind(q), w.args...); err != nil {
		return false, errors.Wrap(err, "checking "+string(level)+" name")
	}
	return exists, nil
}

func (repo *locationRepository) SetLeader(ctx context.Context, level location.Level, nodeID, profileID string) error {
	if !validID(nodeID) {
		return core.NewNotFoundError(string(level))
	}
	q := "UPDATE " + levelTables[level].name + " SET leader_id = ?, has_leader = ? WHERE id = ? AND deleted_at IS NULL"
	exec := repo.exec(ctx)
	res, err := exec.ExecContext(ctx, exec.Rebind(q), null.NewString(profileID, profileID != ""), profileID != "", nodeID)
	if err != nil {
		return errors.Wrap(err, "setting "+string(level)+" leader")
	}
	return affected(res, string(level))
}

func (repo *locationRepository) ListChildren(ctx context.Context, level location.Level, parentID string) ([]location.Node, error) {
	t := levelTables[level]
	if t.parentCol == "" || !validID(parentID) {
		return nil, nil
	}
	q := "SELECT " + columns(level) + " FROM " + t.name + " WHERE deleted_at IS NULL AND " + t.parentCol + " = ? ORDER BY id"

	exec := repo.exec(ctx)
	var rows []nodeRow
	if err := exec.SelectContext(ctx, &rows, exec.Rebind(q), parentID); err != nil {
		return nil, errors.Wrap(err, "listing "+t.name)
	}
	nodes := make([]location.Node, 0, len(rows))
	for _, row := range rows {
		n, err := row.node(level)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

func (repo *locationRepository) FindLedBy(ctx context.Context, level location.Level, profileID string) (location.Node, error) {
	if !validID(profileID) {
		return location.Node{}, core.NewNotFoundError(string(level))
	}
	q := "SELECT " + columns(level) + " FROM " + levelTables[level].name +
		" WHERE deleted_at IS NULL AND has_leader AND leader_id = ? LIMIT 1"

	exec := repo.exec(ctx)
	var row nodeRow
	if err := exec.GetContext(ctx, &row, exec.Rebind(q), profileID); err != nil {
		return location.Node{}, translate(err, string(level), "finding "+string(level)+" by leader")
	}
	return row.node(level)
}

func (repo *locationRepository) SetRepresentative(ctx context.Context, houseID, userID string) error {
	if !validID(houseID) {
		return core.NewNotFoundError(string(location.LevelHouse))
	}
	exec := repo.exec(ctx)
	res, err := exec.ExecContext(ctx,
		exec.Rebind("UPDATE houses SET representative_id = ? WHERE id = ? AND deleted_at IS NULL"),
		null.NewString(userID, userID != ""), houseID)
	if err != nil {
		return errors.Wrap(err, "setting house representative")
	}
	return affected(res, string(location.LevelHouse))
}
